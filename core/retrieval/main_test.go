package retrieval

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/siherrmann/memoria/core/embedding"
	"github.com/siherrmann/memoria/helper"
	"github.com/siherrmann/memoria/model"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// MockEntryStore is an in-memory entry store for testing
type MockEntryStore struct {
	entries   []*model.Entry
	failTypes map[model.EntryType]bool
	listCalls int
}

func (m *MockEntryStore) SelectEntriesByIDs(ctx context.Context, entryType model.EntryType, ids []string) ([]*model.Entry, error) {
	if m.failTypes[entryType] {
		return nil, errors.New("connection reset")
	}
	var entries []*model.Entry
	for _, entry := range m.entries {
		if entry.Type == entryType && slices.Contains(ids, entry.ID) {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (m *MockEntryStore) SelectEntries(ctx context.Context, filter model.EntryFilter) ([]*model.Entry, error) {
	m.listCalls++
	var entries []*model.Entry
	for _, entry := range m.entries {
		if len(filter.Types) > 0 && !slices.Contains(filter.Types, entry.Type) {
			continue
		}
		if len(filter.Scopes) > 0 && !model.ScopeChain(filter.Scopes).Contains(entry.Scope) {
			continue
		}
		if filter.ActiveOnly && !entry.IsActive {
			continue
		}
		if len(filter.Tags) > 0 && !slices.ContainsFunc(filter.Tags, entry.HasTag) {
			continue
		}
		if !allTags(entry, filter.RequireTags) || slices.ContainsFunc(filter.ExcludeTags, entry.HasTag) {
			continue
		}
		entries = append(entries, entry)
	}
	if filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[:filter.Limit]
	}
	return entries, nil
}

func allTags(entry *model.Entry, tags []string) bool {
	for _, tag := range tags {
		if !entry.HasTag(tag) {
			return false
		}
	}
	return true
}

// MockLexicalIndex returns fixed scores for every term. With scopeOf set
// it only matches refs whose scope passes the filter.
type MockLexicalIndex struct {
	scores  map[model.NodeRef]float64
	scopeOf map[model.NodeRef]model.Scope
	limit   int
	err     error
	terms   []string
	filters []model.EntryFilter
}

func (m *MockLexicalIndex) Search(ctx context.Context, term string, filter model.EntryFilter) (*model.LexicalMatches, error) {
	m.terms = append(m.terms, term)
	m.filters = append(m.filters, filter)
	if m.err != nil {
		return nil, m.err
	}

	refs := make([]model.NodeRef, 0, len(m.scores))
	for ref := range m.scores {
		if slices.Contains(filter.Types, ref.Type) && inScope(m.scopeOf, ref, filter) {
			refs = append(refs, ref)
		}
	}
	slices.SortFunc(refs, func(a, b model.NodeRef) int {
		if c := cmp.Compare(m.scores[b], m.scores[a]); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if m.limit > 0 && len(refs) > m.limit {
		refs = refs[:m.limit]
	}

	matches := model.NewLexicalMatches()
	for _, ref := range refs {
		matches.Add(ref.Type, ref.ID, m.scores[ref])
	}
	return matches, nil
}

// MockVectorStore returns a fixed embedding set. With scopeOf set it only
// returns embeddings whose scope passes the filter.
type MockVectorStore struct {
	embeddings []*model.StoredEmbedding
	scopeOf    map[model.NodeRef]model.Scope
	err        error
	filters    []model.EntryFilter
}

func (m *MockVectorStore) SelectEmbeddings(ctx context.Context, filter model.EntryFilter) ([]*model.StoredEmbedding, error) {
	m.filters = append(m.filters, filter)
	if m.err != nil {
		return nil, m.err
	}
	var embeddings []*model.StoredEmbedding
	for _, e := range m.embeddings {
		r := model.NodeRef{Type: e.EntryType, ID: e.EntryID}
		if slices.Contains(filter.Types, e.EntryType) && inScope(m.scopeOf, r, filter) {
			embeddings = append(embeddings, e)
		}
	}
	return embeddings, nil
}

func inScope(scopeOf map[model.NodeRef]model.Scope, r model.NodeRef, filter model.EntryFilter) bool {
	if scopeOf == nil || len(filter.Scopes) == 0 {
		return true
	}
	return model.ScopeChain(filter.Scopes).Contains(scopeOf[r])
}

// MockTraverser answers traversals from a fixed reachability table
type MockTraverser struct {
	reach   map[model.NodeRef][]model.NodeRef
	err     error
	queries []model.TraversalQuery
}

func (m *MockTraverser) Traverse(ctx context.Context, query model.TraversalQuery) (*model.ReachableNodes, error) {
	m.queries = append(m.queries, query)
	if m.err != nil {
		return nil, m.err
	}
	result := model.NewReachableNodes()
	for _, node := range m.reach[query.Start] {
		result.Add(node)
	}
	result.Strategy = "mock"
	return result, nil
}

func ref(entryType model.EntryType, id string) model.NodeRef {
	return model.NodeRef{Type: entryType, ID: id}
}

func vector(entryType model.EntryType, id string, v ...float32) *model.StoredEmbedding {
	return &model.StoredEmbedding{EntryType: entryType, EntryID: id, Vector: v, Dimension: len(v)}
}

func intPtr(i int) *int {
	return &i
}

var apiProject = model.Scope{Type: model.ScopeTypeProject, ID: "api"}

func newMockEntries() *MockEntryStore {
	global := model.GlobalScope()
	return &MockEntryStore{entries: []*model.Entry{
		{ID: "g1", Type: model.EntryTypeGuideline, Scope: global, Name: "Error handling", Content: "Wrap errors with context", Priority: intPtr(80), Tags: []string{"go", "errors"}, IsActive: true, UpdatedAt: testNow},
		{ID: "g2", Type: model.EntryTypeGuideline, Scope: global, Name: "Logging", Content: "Use structured logging with slog", Priority: intPtr(20), Tags: []string{"go"}, IsActive: true, UpdatedAt: testNow},
		{ID: "k1", Type: model.EntryTypeKnowledge, Scope: global, Name: "Retry policy", Content: "Payment API errors are retried", Tags: []string{"payments"}, IsActive: true, UpdatedAt: testNow},
		{ID: "k2", Type: model.EntryTypeKnowledge, Scope: apiProject, Name: "Deploy checklist", Content: "Run migrations before deploy", Tags: []string{"deploy"}, IsActive: true, UpdatedAt: testNow},
		{ID: "k3", Type: model.EntryTypeKnowledge, Scope: model.Scope{Type: model.ScopeTypeProject, ID: "other"}, Name: "Other project", Content: "Unrelated notes", IsActive: true, UpdatedAt: testNow},
		{ID: "t1", Type: model.EntryTypeTool, Scope: global, Name: "golangci-lint", Content: "Linter runner", Tags: []string{"go", "lint"}, IsActive: true, UpdatedAt: testNow},
		{ID: "x1", Type: model.EntryTypeExperience, Scope: global, Name: "Outage", Content: "Legacy payment service crashed", IsActive: false, UpdatedAt: testNow},
	}}
}

// newTestEngine creates an engine over stores with a fixed clock.
func newTestEngine(t *testing.T, stores Stores) *Engine {
	t.Helper()
	if stores.Entries == nil {
		stores.Entries = newMockEntries()
	}
	engine, err := NewEngine(stores, model.PipelineConfig{}, helper.NewLogger(os.Stderr, slog.LevelError))
	require.NoError(t, err)
	engine.now = func() time.Time { return testNow }
	return engine
}

// fixedEmbedder embeds every text as v.
func fixedEmbedder(v ...float32) embedding.Provider {
	return embedding.FromFunc("test", func(text string) ([]float32, error) {
		return v, nil
	})
}

func itemIDs(response *model.QueryResponse) []string {
	ids := make([]string, 0, len(response.Items))
	for _, item := range response.Items {
		ids = append(ids, item.ID)
	}
	return ids
}
