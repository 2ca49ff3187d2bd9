package graph

import (
	"context"
	"log/slog"

	"github.com/siherrmann/memoria/helper"
	"github.com/siherrmann/memoria/model"
)

const (
	StrategyBulk      = "bulk"
	StrategyIterative = "iterative"
)

// EdgeStore defines the direct edge lookups the iterative walk needs
type EdgeStore interface {
	SelectEdgesFrom(ctx context.Context, node model.NodeRef, relationType model.RelationType) ([]*model.Relation, error)
	SelectEdgesTo(ctx context.Context, node model.NodeRef, relationType model.RelationType) ([]*model.Relation, error)
}

// MultiHopStore resolves a whole walk in one query. Stores that cannot do
// this return helper.ErrUnsupported.
type MultiHopStore interface {
	TraverseMultiHop(ctx context.Context, query model.TraversalQuery) ([]model.NodeRef, error)
}

// Strategy is one way of executing a traversal
type Strategy interface {
	Name() string
	Traverse(ctx context.Context, query model.TraversalQuery) (*model.ReachableNodes, error)
}

// Traverser runs the primary strategy and falls back to the secondary one
// on any error from it.
type Traverser struct {
	primary  Strategy
	fallback Strategy
	logger   *slog.Logger
}

// NewTraverser creates a traverser over store. If store also implements
// MultiHopStore the bulk query is tried first.
func NewTraverser(store EdgeStore, logger *slog.Logger) *Traverser {
	if logger == nil {
		logger = slog.Default()
	}

	var multiHop MultiHopStore
	if m, ok := store.(MultiHopStore); ok {
		multiHop = m
	}

	return NewTraverserWithStrategies(NewBulkStrategy(multiHop), NewIterativeStrategy(store), logger)
}

// NewTraverserWithStrategies creates a traverser from explicit strategies.
func NewTraverserWithStrategies(primary, fallback Strategy, logger *slog.Logger) *Traverser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Traverser{primary: primary, fallback: fallback, logger: logger}
}

// Traverse returns the distinct nodes reachable from query.Start, grouped
// by entry type. The start node and project nodes are never part of the
// result. Errors are only returned if the fallback fails as well.
func (t *Traverser) Traverse(ctx context.Context, query model.TraversalQuery) (*model.ReachableNodes, error) {
	query = query.Normalize()

	if t.primary != nil {
		result, err := t.primary.Traverse(ctx, query)
		if err == nil {
			result.Strategy = t.primary.Name()
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, helper.NewError("traverse", ctx.Err())
		}

		t.logger.Warn("Traversal strategy failed, falling back",
			slog.String("strategy", t.primary.Name()),
			slog.String("kind", helper.KindOf(err)),
			slog.String("error", err.Error()),
		)
	}

	if t.fallback == nil {
		return model.NewReachableNodes(), nil
	}

	result, err := t.fallback.Traverse(ctx, query)
	if err != nil {
		return nil, helper.NewError("traverse", err)
	}
	result.Strategy = t.fallback.Name()
	result.FellBack = t.primary != nil

	return result, nil
}

// BulkStrategy delegates the walk to a single multi-hop store query.
type BulkStrategy struct {
	store MultiHopStore
}

// NewBulkStrategy creates a bulk strategy. A nil store is unsupported.
func NewBulkStrategy(store MultiHopStore) *BulkStrategy {
	return &BulkStrategy{store: store}
}

func (s *BulkStrategy) Name() string {
	return StrategyBulk
}

// Traverse runs the multi-hop query.
func (s *BulkStrategy) Traverse(ctx context.Context, query model.TraversalQuery) (*model.ReachableNodes, error) {
	if s.store == nil {
		return nil, helper.Errorf(helper.ErrUnsupported, "store has no multi-hop query")
	}

	nodes, err := s.store.TraverseMultiHop(ctx, query)
	if err != nil {
		return nil, err
	}

	result := model.NewReachableNodes()
	for _, node := range nodes {
		if node == query.Start || node.Type == model.EntryTypeProject {
			continue
		}
		result.Add(node)
		if result.Len() >= query.MaxResults {
			break
		}
	}

	return result, nil
}

// IterativeStrategy walks the graph breadth first, one edge lookup per
// frontier node and direction.
type IterativeStrategy struct {
	store EdgeStore
}

// NewIterativeStrategy creates an iterative strategy. A nil store yields
// empty results.
func NewIterativeStrategy(store EdgeStore) *IterativeStrategy {
	return &IterativeStrategy{store: store}
}

func (s *IterativeStrategy) Name() string {
	return StrategyIterative
}

// Traverse walks up to query.Depth rounds. A node is enqueued at most once,
// so cycles terminate and no node appears at two distances.
func (s *IterativeStrategy) Traverse(ctx context.Context, query model.TraversalQuery) (*model.ReachableNodes, error) {
	result := model.NewReachableNodes()
	if s.store == nil {
		return result, nil
	}

	visited := map[model.NodeRef]bool{query.Start: true}
	frontier := []model.NodeRef{query.Start}

	for hop := 0; hop < query.Depth && len(frontier) > 0; hop++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var next []model.NodeRef
		for _, current := range frontier {
			neighbors, err := s.neighbors(ctx, current, query)
			if err != nil {
				return nil, err
			}

			for _, neighbor := range neighbors {
				if visited[neighbor] || neighbor.Type == model.EntryTypeProject {
					continue
				}
				visited[neighbor] = true
				next = append(next, neighbor)

				result.Add(neighbor)
				if result.Len() >= query.MaxResults {
					return result, nil
				}
			}
		}
		frontier = next
	}

	return result, nil
}

func (s *IterativeStrategy) neighbors(ctx context.Context, node model.NodeRef, query model.TraversalQuery) ([]model.NodeRef, error) {
	var neighbors []model.NodeRef

	if query.Direction.Forward() {
		edges, err := s.store.SelectEdgesFrom(ctx, node, query.RelationType)
		if err != nil {
			return nil, helper.NewError("select outgoing edges", err)
		}
		for _, edge := range edges {
			neighbors = append(neighbors, edge.Target())
		}
	}

	if query.Direction.Backward() {
		edges, err := s.store.SelectEdgesTo(ctx, node, query.RelationType)
		if err != nil {
			return nil, helper.NewError("select incoming edges", err)
		}
		for _, edge := range edges {
			neighbors = append(neighbors, edge.Source())
		}
	}

	return neighbors, nil
}
