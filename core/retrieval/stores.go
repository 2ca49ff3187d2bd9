package retrieval

import (
	"context"

	"github.com/siherrmann/memoria/model"
)

// EntryStore reads full entry records.
type EntryStore interface {
	SelectEntriesByIDs(ctx context.Context, entryType model.EntryType, ids []string) ([]*model.Entry, error)
	SelectEntries(ctx context.Context, filter model.EntryFilter) ([]*model.Entry, error)
}

// LexicalIndex finds entries matching a search term. Only entries passing
// filter are matched.
type LexicalIndex interface {
	Search(ctx context.Context, term string, filter model.EntryFilter) (*model.LexicalMatches, error)
}

// VectorStore reads the stored embeddings of entries passing filter.
type VectorStore interface {
	SelectEmbeddings(ctx context.Context, filter model.EntryFilter) ([]*model.StoredEmbedding, error)
}

// ScopeStore resolves the registered parent of a scope. It returns nil for
// scopes without a registered parent.
type ScopeStore interface {
	SelectParent(ctx context.Context, scope model.Scope) (*model.Scope, error)
}

// GraphTraverser walks the relation graph.
type GraphTraverser interface {
	Traverse(ctx context.Context, query model.TraversalQuery) (*model.ReachableNodes, error)
}
