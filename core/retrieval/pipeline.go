package retrieval

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/siherrmann/memoria/core/scoring"
	"github.com/siherrmann/memoria/helper"
	"github.com/siherrmann/memoria/model"
	"golang.org/x/sync/errgroup"
)

// candidate is an entry collected by one of the matching stages.
type candidate struct {
	ref        model.NodeRef
	// matched is set for candidates returned by a lexical or semantic stage.
	matched    bool
	lexical    float64
	semantic   float64
	graph      float64
	relatedVia *model.NodeRef
	entry      *model.Entry
	signals    model.ScoreSignals
	score      float64
}

// organic is the fused lexical and semantic relevance.
func (c *candidate) organic(bonus float64) float64 {
	return scoring.FuseRelevance(bonus, c.lexical, c.semantic)
}

// pipeline is the state of one query. It is owned by a single request.
type pipeline struct {
	engine     *Engine
	request    model.QueryRequest
	scope      model.Scope
	types      []model.EntryType
	search     string
	exclusions model.Exclusions
	chain      model.ScopeChain
	strategy   model.Strategy

	// related is the node set of a relatedTo constraint, nil without one.
	related map[model.NodeRef]bool

	candidates []*candidate
	byRef      map[model.NodeRef]*candidate
	results    []*candidate
	items      []model.QueryResultItem
	total      int

	telemetry *model.Telemetry
	start     time.Time
}

func newPipeline(engine *Engine, request model.QueryRequest, scope model.Scope, start time.Time) *pipeline {
	types := request.Types
	if len(types) == 0 {
		types = model.EntryTypes
	}

	return &pipeline{
		engine:    engine,
		request:   request,
		scope:     scope,
		types:     types,
		chain:     model.ScopeChain{scope, model.GlobalScope()},
		strategy:  model.StrategyFilter,
		byRef:     map[model.NodeRef]*candidate{},
		items:     []model.QueryResultItem{},
		telemetry: &model.Telemetry{Stages: []model.StageTiming{}},
		start:     start,
	}
}

func (p *pipeline) run(ctx context.Context, name model.StageName, stage func(context.Context)) {
	stageStart := time.Now()
	stage(ctx)
	duration := time.Since(stageStart)

	p.telemetry.Stages = append(p.telemetry.Stages, model.StageTiming{
		Stage:         name,
		StartOffsetMs: millis(stageStart.Sub(p.start)),
		DurationMs:    millis(duration),
	})
	p.engine.stores.Metrics.observeStage(name, duration)
}

// add returns the candidate for ref, creating it in discovery order.
func (p *pipeline) add(ref model.NodeRef) (*candidate, bool) {
	if c, ok := p.byRef[ref]; ok {
		return c, false
	}
	c := &candidate{ref: ref}
	p.byRef[ref] = c
	p.candidates = append(p.candidates, c)
	return c, true
}

func (p *pipeline) degrade(stage model.StageName, err error) {
	p.telemetry.Strategy.Degradations = append(p.telemetry.Strategy.Degradations,
		fmt.Sprintf("%s: %s", stage, helper.KindOf(err)))
	p.engine.stores.Metrics.degraded(stage)
	p.engine.logger.Warn("Query stage degraded",
		slog.String("stage", string(stage)),
		slog.String("kind", helper.KindOf(err)),
		slog.String("error", err.Error()),
	)
}

func (p *pipeline) resolve(ctx context.Context) {
	chain, err := p.engine.resolver.Resolve(ctx, p.scope)
	if err != nil {
		p.degrade(model.StageResolve, err)
	}
	if len(chain) > 0 {
		p.chain = chain
	}
	p.telemetry.Resolve.ScopeChain = p.chain
}

func (p *pipeline) selectStrategy(ctx context.Context) {
	stores := p.engine.stores
	p.search, p.exclusions = ParseExclusions(p.request.Search)

	hasTerm := p.search != ""
	hasVector := len(p.request.Embedding) > 0
	lexicalAvailable := stores.Lexical != nil
	embeddingAvailable := hasVector || stores.Embedder.Available(ctx)
	semanticAvailable := stores.Vectors != nil && embeddingAvailable

	p.strategy = selectStrategy(hasTerm, hasVector, lexicalAvailable, semanticAvailable)
	p.telemetry.Strategy = model.StrategyTelemetry{
		Selected:           p.strategy,
		Effective:          p.strategy,
		EmbeddingAvailable: embeddingAvailable,
		LexicalAvailable:   lexicalAvailable,
	}

	if hasTerm && p.strategy == model.StrategyFilter {
		p.degrade(model.StageStrategy, helper.Errorf(helper.ErrUnavailable, "no lexical index or embedding available"))
	}
}

func (p *pipeline) lexicalMatch(ctx context.Context) {
	if !runsLexical(p.strategy) {
		return
	}
	t := &p.telemetry.Lexical
	t.Ran = true

	matches, err := p.engine.stores.Lexical.Search(ctx, p.search, p.entryFilter())
	if err != nil {
		t.Error = err.Error()
		p.strategy = withoutLexical(p.strategy)
		p.degrade(model.StageLexical, err)
		return
	}

	limit := p.engine.config.LexicalLimit
	for _, entryType := range p.types {
		for _, id := range matches.IDsByType[entryType] {
			if limit > 0 && t.Matches >= limit {
				return
			}
			c, _ := p.add(model.NodeRef{Type: entryType, ID: id})
			c.matched = true
			c.lexical = max(c.lexical, clamp01(matches.ScoreByID[id]))
			t.Matches++
		}
	}
}

func (p *pipeline) semanticMatch(ctx context.Context) {
	if !runsSemantic(p.strategy) {
		return
	}
	stores := p.engine.stores
	config := p.engine.config
	t := &p.telemetry.Semantic
	t.Ran = true

	vector := p.request.Embedding
	t.EmbeddingSupplied = len(vector) > 0
	if !t.EmbeddingSupplied {
		embedded, err := stores.Embedder.Embed(ctx, p.search)
		if err != nil {
			t.Error = err.Error()
			p.strategy = withoutSemantic(p.strategy)
			p.degrade(model.StageSemantic, err)
			return
		}
		vector = embedded.Vector
		t.Model = embedded.Model
	}

	stored, err := stores.Vectors.SelectEmbeddings(ctx, p.entryFilter())
	if err != nil {
		t.Error = err.Error()
		p.strategy = withoutSemantic(p.strategy)
		p.degrade(model.StageSemantic, err)
		return
	}

	type match struct {
		ref   model.NodeRef
		score float64
	}
	var matches []match
	for _, s := range stored {
		t.Compared++
		score := scoring.Cosine(vector, s.Vector)
		if score < config.SemanticMinScore {
			continue
		}
		matches = append(matches, match{ref: model.NodeRef{Type: s.EntryType, ID: s.EntryID}, score: score})
	}

	slices.SortStableFunc(matches, func(a, b match) int {
		return cmp.Compare(b.score, a.score)
	})
	if config.SemanticTopK > 0 && len(matches) > config.SemanticTopK {
		matches = matches[:config.SemanticTopK]
	}

	for _, m := range matches {
		c, _ := p.add(m.ref)
		c.matched = true
		c.semantic = max(c.semantic, clamp01(m.score))
	}
	t.Matches = len(matches)
}

// graphExpand applies the relatedTo constraint and follows relations from
// the best scored candidates. Discovered nodes enter with a penalized score
// that never lowers an existing one.
func (p *pipeline) graphExpand(ctx context.Context) {
	if p.request.RelatedTo == nil && !p.request.FollowRelations {
		return
	}
	t := &p.telemetry.GraphExpand
	config := p.engine.config

	if p.engine.stores.Traverser == nil {
		err := helper.Errorf(helper.ErrUnavailable, "no graph traverser configured")
		t.Error = err.Error()
		p.degrade(model.StageGraphExpand, err)
		return
	}
	t.Ran = true

	if related := p.request.RelatedTo; related != nil {
		anchor := model.NodeRef{Type: related.Type, ID: related.ID}
		reached, err := p.traverse(ctx, model.TraversalQuery{
			Start:        anchor,
			Direction:    related.Direction,
			Depth:        related.Depth,
			RelationType: related.RelationType,
			MaxResults:   config.TraversalMaxResults,
		})
		if err != nil {
			t.Error = err.Error()
			p.degrade(model.StageGraphExpand, err)
		} else {
			p.related = map[model.NodeRef]bool{}
			score := config.GraphPenalty * config.NeutralScore
			for _, node := range reached.Nodes() {
				if !slices.Contains(p.types, node.Type) {
					continue
				}
				p.related[node] = true
				t.Discovered++
				p.merge(node, anchor, score)
			}
		}
	}

	if !p.request.FollowRelations || p.strategy == model.StrategyFilter {
		return
	}

	anchors := p.anchors(config.ExpansionAnchors)
	t.Anchors = len(anchors)
	for _, anchor := range anchors {
		reached, err := p.traverse(ctx, model.TraversalQuery{
			Start:      anchor.ref,
			Direction:  model.DirectionBoth,
			Depth:      config.FollowDepth,
			MaxResults: config.TraversalMaxResults,
		})
		if err != nil {
			t.Error = err.Error()
			p.degrade(model.StageGraphExpand, err)
			continue
		}

		score := config.GraphPenalty * anchor.organic(config.FusionBonus)
		for _, node := range reached.Nodes() {
			if !slices.Contains(p.types, node.Type) {
				continue
			}
			if p.related != nil && !p.related[node] {
				continue
			}
			t.Discovered++
			p.merge(node, anchor.ref, score)
		}
	}
}

// merge adds a graph discovered node. RelatedVia names the anchor that gave
// the best graph score, for nodes without an organic match only.
func (p *pipeline) merge(node, anchor model.NodeRef, score float64) {
	c, created := p.add(node)
	if created {
		p.telemetry.GraphExpand.Merged++
	}
	if score <= c.graph && !created {
		return
	}
	c.graph = max(c.graph, score)
	if !c.matched {
		via := anchor
		c.relatedVia = &via
	}
}

// anchors returns the n best organically matched candidates, ties kept in
// discovery order.
func (p *pipeline) anchors(n int) []*candidate {
	bonus := p.engine.config.FusionBonus
	var anchors []*candidate
	for _, c := range p.candidates {
		if c.organic(bonus) > 0 {
			anchors = append(anchors, c)
		}
	}
	slices.SortStableFunc(anchors, func(a, b *candidate) int {
		return cmp.Compare(b.organic(bonus), a.organic(bonus))
	})
	if len(anchors) > n {
		anchors = anchors[:n]
	}
	return anchors
}

func (p *pipeline) traverse(ctx context.Context, query model.TraversalQuery) (*model.ReachableNodes, error) {
	reached, err := p.engine.stores.Traverser.Traverse(ctx, query)
	if err != nil {
		return nil, err
	}

	t := &p.telemetry.GraphExpand
	t.Strategy = reached.Strategy
	if reached.FellBack {
		t.FellBack = true
		p.engine.stores.Metrics.traversalFallback()
	}
	return reached, nil
}

// fetch loads the full records of all candidates. Without any candidate
// source the scope chain is listed instead.
func (p *pipeline) fetch(ctx context.Context) {
	if p.strategy == model.StrategyFilter && p.related == nil {
		p.list(ctx)
		return
	}

	t := &p.telemetry.Fetch
	t.Requested = len(p.candidates)

	idsByType := map[model.EntryType][]string{}
	for _, c := range p.candidates {
		idsByType[c.ref.Type] = append(idsByType[c.ref.Type], c.ref.ID)
	}

	fetched := make([][]*model.Entry, len(p.types))
	failures := make([]error, len(p.types))
	g, gctx := errgroup.WithContext(ctx)
	for i, entryType := range p.types {
		ids := idsByType[entryType]
		if len(ids) == 0 {
			continue
		}
		g.Go(func() error {
			// A failed type drops its candidates without cancelling the others.
			fetched[i], failures[i] = p.engine.stores.Entries.SelectEntriesByIDs(gctx, entryType, ids)
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range failures {
		if err != nil {
			p.degrade(model.StageFetch, helper.NewError(fmt.Sprintf("fetch %s entries", p.types[i]), err))
		}
	}

	for _, entries := range fetched {
		for _, entry := range entries {
			if !entry.IsActive {
				continue
			}
			if c, ok := p.byRef[entry.Ref()]; ok {
				c.entry = entry
			}
		}
	}

	kept := p.candidates[:0]
	for _, c := range p.candidates {
		if c.entry != nil {
			kept = append(kept, c)
		}
	}
	p.candidates = kept
	t.Fetched = len(kept)
	t.Dropped = t.Requested - t.Fetched
}

// entryFilter restricts store lookups to active entries of the requested
// types and tags within the resolved scope chain.
func (p *pipeline) entryFilter() model.EntryFilter {
	return model.EntryFilter{
		Types:       p.types,
		Scopes:      p.chain,
		ActiveOnly:  true,
		Tags:        p.request.Tags,
		RequireTags: p.request.RequireTags,
		ExcludeTags: p.request.ExcludeTags,
	}
}

func (p *pipeline) list(ctx context.Context) {
	t := &p.telemetry.Fetch

	filter := p.entryFilter()
	filter.Limit = p.engine.config.FilterCandidateCap
	entries, err := p.engine.stores.Entries.SelectEntries(ctx, filter)
	if err != nil {
		p.degrade(model.StageFetch, err)
		return
	}

	for _, entry := range entries {
		c, _ := p.add(entry.Ref())
		c.entry = entry
	}
	t.Requested = len(entries)
	t.Fetched = len(entries)
}

func (p *pipeline) filter(ctx context.Context) {
	t := &p.telemetry.Filter
	t.Before = len(p.candidates)
	t.Exclusions = p.exclusions
	matcher := newExclusionMatcher(p.exclusions)

	p.results = make([]*candidate, 0, len(p.candidates))
	for _, c := range p.candidates {
		switch {
		case !slices.Contains(p.types, c.entry.Type):
			t.ExcludedByType++
		case !p.chain.Contains(c.entry.Scope):
			t.ExcludedByScope++
		case p.related != nil && !p.related[c.ref]:
			t.ExcludedByGraph++
		case !p.matchesTags(c.entry):
			t.ExcludedByTag++
		case matcher.Excludes(c.entry.SearchableText()):
			t.ExcludedByTerm++
		default:
			p.results = append(p.results, c)
		}
	}
	t.After = len(p.results)
}

// matchesTags applies any-of, all-of and none-of tag filters.
func (p *pipeline) matchesTags(entry *model.Entry) bool {
	if len(p.request.Tags) > 0 && !slices.ContainsFunc(p.request.Tags, entry.HasTag) {
		return false
	}
	for _, tag := range p.request.RequireTags {
		if !entry.HasTag(tag) {
			return false
		}
	}
	return !slices.ContainsFunc(p.request.ExcludeTags, entry.HasTag)
}

func (p *pipeline) score(ctx context.Context) {
	config := p.engine.config
	now := p.engine.now()
	t := &p.telemetry.Score

	for i, c := range p.results {
		relevance := max(c.organic(config.FusionBonus), c.graph)
		if !c.matched && c.graph == 0 {
			relevance = config.NeutralScore
		}

		c.signals = model.ScoreSignals{
			Lexical:   c.lexical,
			Semantic:  c.semantic,
			Graph:     c.graph,
			Relevance: relevance,
			Recency:   scoring.Recency(c.entry.UpdatedAt, now, config.RecencyHalfLife),
			Priority:  scoring.Priority(c.entry),
		}
		c.score = scoring.Final(config, c.signals)

		if i == 0 {
			t.MaxScore, t.MinScore = c.score, c.score
		}
		t.MaxScore = max(t.MaxScore, c.score)
		t.MinScore = min(t.MinScore, c.score)
	}
	t.Scored = len(p.results)
}

// rerank sorts by score, keeping discovery order on ties, and cuts the page.
func (p *pipeline) rerank(ctx context.Context) {
	slices.SortStableFunc(p.results, func(a, b *candidate) int {
		return cmp.Compare(b.score, a.score)
	})

	p.total = len(p.results)
	from := min(p.request.Offset, p.total)
	to := min(from+p.request.Limit, p.total)

	for _, c := range p.results[from:to] {
		p.items = append(p.items, model.QueryResultItem{
			Type:       c.entry.Type,
			ID:         c.entry.ID,
			Scope:      c.entry.Scope,
			Tags:       c.entry.Tags,
			Score:      c.score,
			RelatedVia: c.relatedVia,
			Signals:    c.signals,
			Entry:      c.entry,
		})
	}

	p.telemetry.Rerank = model.RerankTelemetry{
		Total:    p.total,
		Offset:   p.request.Offset,
		Returned: len(p.items),
	}
}

func (p *pipeline) cacheStore(ctx context.Context) {
	cache := p.engine.stores.Cache
	if cache == nil {
		return
	}

	p.telemetry.Strategy.Effective = p.strategy
	err := cache.Set(ctx, p.telemetry.Cache.Key, &model.QueryResponse{
		Items:     p.items,
		Total:     p.total,
		Telemetry: p.telemetry,
	})
	if err != nil {
		p.telemetry.Cache.Error = err.Error()
		p.engine.logger.Warn("Query cache store failed", slog.String("error", err.Error()))
		return
	}
	p.telemetry.Cache.Stored = true
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
