// Package retrieval implements the query pipeline: scope resolution,
// strategy selection, lexical and semantic matching, graph expansion,
// filtering, ranking and caching.
package retrieval

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/siherrmann/memoria/core/embedding"
	"github.com/siherrmann/memoria/helper"
	"github.com/siherrmann/memoria/model"
)

// Stores holds the collaborators of the engine. Only Entries is required;
// a missing lexical index, vector store or embedder degrades the strategy.
type Stores struct {
	Entries   EntryStore
	Lexical   LexicalIndex
	Vectors   VectorStore
	Scopes    ScopeStore
	Traverser GraphTraverser
	Embedder  embedding.Provider
	Cache     Cache
	Metrics   *Metrics
}

// Engine runs structured memory queries
type Engine struct {
	stores   Stores
	resolver *ScopeResolver
	config   model.PipelineConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine creates a new query engine. A zero config uses the defaults.
func NewEngine(stores Stores, config model.PipelineConfig, logger *slog.Logger) (*Engine, error) {
	if stores.Entries == nil {
		return nil, helper.Errorf(helper.ErrInvalidInput, "entry store is required")
	}
	if stores.Embedder == nil {
		stores.Embedder = embedding.Disabled()
	}
	if config == (model.PipelineConfig{}) {
		config = model.DefaultPipelineConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		stores:   stores,
		resolver: NewScopeResolver(stores.Scopes),
		config:   config,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Config returns the pipeline configuration in use.
func (e *Engine) Config() model.PipelineConfig {
	return e.config
}

// InvalidateCache drops every cached response.
func (e *Engine) InvalidateCache(ctx context.Context) error {
	if e.stores.Cache == nil {
		return nil
	}
	return e.stores.Cache.Invalidate(ctx)
}

// RunQuery answers request. Only invalid requests and cancellation return
// an error; unavailable indexes and stores degrade the result instead.
func (e *Engine) RunQuery(ctx context.Context, request model.QueryRequest) (*model.QueryResponse, error) {
	start := time.Now()

	scope, err := e.normalize(&request)
	if err != nil {
		return nil, err
	}

	p := newPipeline(e, request, scope, start)
	p.telemetry.Cache.Key = CacheKey(request, scope)

	if response, ok := e.cached(ctx, p); ok {
		return response, nil
	}

	stages := []struct {
		name  model.StageName
		stage func(context.Context)
	}{
		{model.StageResolve, p.resolve},
		{model.StageStrategy, p.selectStrategy},
		{model.StageLexical, p.lexicalMatch},
		{model.StageSemantic, p.semanticMatch},
		{model.StageGraphExpand, p.graphExpand},
		{model.StageFetch, p.fetch},
		{model.StageFilter, p.filter},
		{model.StageScore, p.score},
		{model.StageRerank, p.rerank},
		{model.StageCacheStore, p.cacheStore},
	}
	for _, s := range stages {
		p.run(ctx, s.name, s.stage)
		if err := ctx.Err(); err != nil {
			return nil, helper.NewError("query", err)
		}
	}

	p.telemetry.Strategy.Effective = p.strategy
	p.telemetry.TotalMs = millis(time.Since(start))
	e.stores.Metrics.query(p.strategy)

	e.logger.Debug("Query completed",
		slog.String("strategy", string(p.strategy)),
		slog.Int("results", len(p.items)),
		slog.Int("total", p.total),
		slog.Float64("total_ms", p.telemetry.TotalMs),
	)

	return &model.QueryResponse{
		Items:     p.items,
		Total:     p.total,
		Telemetry: p.telemetry,
		CacheHit:  false,
	}, nil
}

// normalize validates request in place and returns its scope.
func (e *Engine) normalize(request *model.QueryRequest) (model.Scope, error) {
	if request.ScopeType == "" {
		return model.Scope{}, helper.Errorf(helper.ErrInvalidInput, "scope type is required")
	}
	scope, err := model.NewScope(request.ScopeType, request.ScopeID)
	if err != nil {
		return model.Scope{}, err
	}
	request.ScopeType, request.ScopeID = scope.Type, scope.ID

	types := make([]model.EntryType, 0, len(request.Types))
	for _, t := range request.Types {
		if !t.Valid() {
			return model.Scope{}, helper.Errorf(helper.ErrInvalidInput, "unknown entry type %q", t)
		}
		if !slices.Contains(types, t) {
			types = append(types, t)
		}
	}
	request.Types = types

	if request.Limit < 0 || request.Offset < 0 {
		return model.Scope{}, helper.Errorf(helper.ErrInvalidInput, "limit and offset must not be negative")
	}
	if request.Limit == 0 {
		request.Limit = e.config.DefaultLimit
	}
	if e.config.MaxLimit > 0 {
		request.Limit = min(request.Limit, e.config.MaxLimit)
	}

	if related := request.RelatedTo; related != nil {
		if related.ID == "" {
			return model.Scope{}, helper.Errorf(helper.ErrInvalidInput, "related_to requires an id")
		}
		if !related.Type.Valid() && related.Type != model.EntryTypeProject {
			return model.Scope{}, helper.Errorf(helper.ErrInvalidInput, "unknown related_to type %q", related.Type)
		}
		direction, err := model.ParseDirection(string(related.Direction))
		if err != nil {
			return model.Scope{}, err
		}

		normalized := *related
		normalized.Direction = direction
		normalized.Depth = model.ClampDepth(related.Depth)
		request.RelatedTo = &normalized
	}

	request.Search = strings.TrimSpace(request.Search)
	request.Tags = cleanTags(request.Tags)
	request.RequireTags = cleanTags(request.RequireTags)
	request.ExcludeTags = cleanTags(request.ExcludeTags)

	return scope, nil
}

// cached answers from the cache. Cache errors count as misses.
func (e *Engine) cached(ctx context.Context, p *pipeline) (*model.QueryResponse, bool) {
	if e.stores.Cache == nil {
		return nil, false
	}

	response, ok, err := e.stores.Cache.Get(ctx, p.telemetry.Cache.Key)
	if err != nil {
		p.telemetry.Cache.Error = err.Error()
		e.logger.Warn("Query cache lookup failed", slog.String("error", err.Error()))
	}
	e.stores.Metrics.cache(ok)
	if !ok {
		return nil, false
	}

	telemetry := &model.Telemetry{}
	if response.Telemetry != nil {
		*telemetry = *response.Telemetry
	}
	telemetry.Stages = make([]model.StageTiming, 0, len(model.PipelineStages))
	for _, stage := range model.PipelineStages {
		telemetry.Stages = append(telemetry.Stages, model.StageTiming{Stage: stage})
	}
	telemetry.Cache = model.CacheTelemetry{Key: p.telemetry.Cache.Key, Hit: true}
	telemetry.TotalMs = millis(time.Since(p.start))

	response.Telemetry = telemetry
	response.CacheHit = true
	e.stores.Metrics.query(telemetry.Strategy.Effective)

	e.logger.Debug("Query served from cache",
		slog.String("key", telemetry.Cache.Key),
		slog.Int("results", len(response.Items)),
	)

	return response, true
}

func cleanTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	cleaned := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			cleaned = append(cleaned, tag)
		}
	}
	return cleaned
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
