package retrieval

import (
	"context"

	"github.com/siherrmann/memoria/helper"
	"github.com/siherrmann/memoria/model"
)

// ScopeResolver expands a scope into its inheritance chain.
type ScopeResolver struct {
	store ScopeStore
}

// NewScopeResolver creates a resolver. Without a store every chain is the
// scope itself followed by global.
func NewScopeResolver(store ScopeStore) *ScopeResolver {
	return &ScopeResolver{store: store}
}

// Resolve returns the chain from scope up to global, most specific first.
// Parents that are not broader than their child end the walk. On a store
// error the chain built so far is returned, still ending in global.
func (r *ScopeResolver) Resolve(ctx context.Context, scope model.Scope) (model.ScopeChain, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	chain := model.ScopeChain{scope}
	if scope.IsGlobal() {
		return chain, nil
	}

	var err error
	current := scope
	for r.store != nil {
		var parent *model.Scope
		parent, err = r.store.SelectParent(ctx, current)
		if err != nil {
			err = helper.NewError("select parent scope", err)
			break
		}
		if parent == nil || parent.IsGlobal() || !broader(parent.Type, current.Type) {
			break
		}
		chain = append(chain, *parent)
		current = *parent
	}

	return append(chain, model.GlobalScope()), err
}

// broader reports whether parent lies above child in session, project, org, global.
func broader(parent, child model.ScopeType) bool {
	for t, ok := child.ParentType(); ok; t, ok = t.ParentType() {
		if t == parent {
			return true
		}
	}
	return false
}
