package hierarchy

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/siherrmann/memoria/core/embedding"
	"github.com/siherrmann/memoria/core/scoring"
	"github.com/siherrmann/memoria/helper"
	"github.com/siherrmann/memoria/model"
)

// SummaryStore defines the summary hierarchy reads the retriever needs
type SummaryStore interface {
	SelectMaxLevel(ctx context.Context, scope model.Scope) (int, bool, error)
	SelectSummariesAtLevel(ctx context.Context, scope model.Scope, level int) ([]*model.Summary, error)
	SelectChildSummaries(ctx context.Context, parentIDs []string) ([]*model.Summary, error)
	SelectSummary(ctx context.Context, id string) (*model.Summary, error)
	SelectMembers(ctx context.Context, summaryIDs []string) ([]*model.SummaryMember, error)
	IncrementAccessCount(ctx context.Context, id string) error
}

// Retriever finds leaf entries by descending the summary hierarchy
type Retriever struct {
	store    SummaryStore
	embedder embedding.Provider
	logger   *slog.Logger
}

// NewRetriever creates a retriever. A nil embedder means only queries with
// a precomputed embedding can be answered.
func NewRetriever(store SummaryStore, embedder embedding.Provider, logger *slog.Logger) *Retriever {
	if embedder == nil {
		embedder = embedding.Disabled()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{store: store, embedder: embedder, logger: logger}
}

// branch is a selected summary together with the path that led to it.
type branch struct {
	summary *model.Summary
	score   float64
	path    []string
	titles  []string
}

// Retrieve descends from the start level to level 0, keeping the
// expansionFactor most similar summaries above minSimilarity at each level,
// and returns the entry members of the selected level 0 summaries.
func (r *Retriever) Retrieve(ctx context.Context, options model.HierarchicalOptions) (*model.HierarchicalResult, error) {
	start := time.Now()
	result := &model.HierarchicalResult{
		Entries: []model.HierarchicalEntry{},
		Steps:   []model.RetrievalStep{},
	}
	defer func() { result.TotalTimeMs = elapsedMs(start) }()

	if err := options.Scope.Validate(); err != nil {
		return nil, helper.NewError("validate scope", err)
	}
	for _, entryType := range options.EntryTypes {
		if !entryType.Valid() {
			return nil, helper.Errorf(helper.ErrInvalidInput, "unknown entry type %q", entryType)
		}
	}

	queryEmbedding, err := r.queryEmbedding(ctx, options)
	if err != nil {
		return nil, err
	}
	if len(queryEmbedding) == 0 {
		return result, nil
	}
	result.QueryEmbedding = queryEmbedding

	maxLevel, ok, err := r.store.SelectMaxLevel(ctx, options.Scope)
	if err != nil {
		return nil, helper.NewError("select max level", err)
	}
	if !ok {
		return result, nil
	}

	level := maxLevel
	if options.StartLevel != nil {
		level = min(max(*options.StartLevel, 0), maxLevel)
	}

	expansionFactor := options.ExpansionFactorOrDefault()
	minSimilarity := options.MinSimilarityOrDefault()

	var selected []branch
	for ; level >= 0; level-- {
		stepStart := time.Now()

		candidates, parents, err := r.candidates(ctx, options.Scope, level, selected)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			result.Steps = append(result.Steps, model.RetrievalStep{Level: level, TimeMs: elapsedMs(stepStart)})
			selected = nil
			break
		}

		next := make([]branch, 0, len(candidates))
		for _, summary := range candidates {
			score := scoring.Cosine(queryEmbedding, summary.Embedding)
			if score < minSimilarity {
				continue
			}

			var path, titles []string
			if parent, ok := parents[derefID(summary.ParentSummaryID)]; ok {
				path = append(path, parent.path...)
				titles = append(titles, parent.titles...)
			}
			next = append(next, branch{
				summary: summary,
				score:   score,
				path:    append(path, summary.ID),
				titles:  append(titles, summary.Title),
			})
		}

		slices.SortStableFunc(next, func(a, b branch) int {
			return cmp.Compare(b.score, a.score)
		})
		if len(next) > expansionFactor {
			next = next[:expansionFactor]
		}

		result.Steps = append(result.Steps, model.RetrievalStep{
			Level:             level,
			SummariesSearched: len(candidates),
			SummariesMatched:  len(next),
			TimeMs:            elapsedMs(stepStart),
		})

		selected = next
		if len(selected) == 0 || level == 0 {
			break
		}
	}

	if level != 0 || len(selected) == 0 {
		return result, nil
	}

	entries, err := r.leaves(ctx, selected, options)
	if err != nil {
		return nil, err
	}
	result.Entries = entries

	return result, nil
}

// DrillDown returns a summary with its child summaries and entry members and
// records the access.
func (r *Retriever) DrillDown(ctx context.Context, summaryID string) (*model.DrillDownResult, error) {
	summary, err := r.store.SelectSummary(ctx, summaryID)
	if err != nil {
		return nil, err
	}

	err = r.store.IncrementAccessCount(ctx, summaryID)
	if err != nil {
		return nil, helper.NewError("increment access count", err)
	}
	now := time.Now().UTC()
	summary.AccessCount++
	summary.LastAccessedAt = &now

	children, err := r.store.SelectChildSummaries(ctx, []string{summaryID})
	if err != nil {
		return nil, helper.NewError("select child summaries", err)
	}

	members, err := r.store.SelectMembers(ctx, []string{summaryID})
	if err != nil {
		return nil, helper.NewError("select members", err)
	}

	entryMembers := make([]*model.SummaryMember, 0, len(members))
	for _, member := range members {
		if !member.IsSummary() {
			entryMembers = append(entryMembers, member)
		}
	}

	return &model.DrillDownResult{
		Summary:  summary,
		Children: children,
		Members:  entryMembers,
	}, nil
}

func (r *Retriever) queryEmbedding(ctx context.Context, options model.HierarchicalOptions) ([]float32, error) {
	if len(options.Embedding) > 0 {
		return options.Embedding, nil
	}
	if options.Query == "" {
		return nil, helper.Errorf(helper.ErrInvalidInput, "query text or embedding required")
	}
	if !r.embedder.Available(ctx) {
		return nil, nil
	}

	embedded, err := r.embedder.Embed(ctx, options.Query)
	if err != nil {
		r.logger.Warn("Query embedding failed, skipping hierarchical retrieval", slog.String("error", err.Error()))
		return nil, nil
	}

	return embedded.Vector, nil
}

// candidates loads the summaries to compare at level. Below the start level
// only children of the selected branches are considered.
func (r *Retriever) candidates(ctx context.Context, scope model.Scope, level int, selected []branch) ([]*model.Summary, map[string]branch, error) {
	if selected == nil {
		summaries, err := r.store.SelectSummariesAtLevel(ctx, scope, level)
		if err != nil {
			return nil, nil, helper.NewError("select summaries at level", err)
		}
		return summaries, nil, nil
	}

	parents := make(map[string]branch, len(selected))
	parentIDs := make([]string, 0, len(selected))
	for _, b := range selected {
		parents[b.summary.ID] = b
		parentIDs = append(parentIDs, b.summary.ID)
	}

	children, err := r.store.SelectChildSummaries(ctx, parentIDs)
	if err != nil {
		return nil, nil, helper.NewError("select child summaries", err)
	}

	summaries := children[:0]
	for _, child := range children {
		if child.Level == level && child.Scope == scope {
			summaries = append(summaries, child)
		}
	}

	return summaries, parents, nil
}

// leaves collects the entry members of the selected level 0 summaries. An
// entry reached through several summaries keeps its best score.
func (r *Retriever) leaves(ctx context.Context, selected []branch, options model.HierarchicalOptions) ([]model.HierarchicalEntry, error) {
	byID := make(map[string]branch, len(selected))
	ids := make([]string, 0, len(selected))
	for _, b := range selected {
		byID[b.summary.ID] = b
		ids = append(ids, b.summary.ID)
	}

	members, err := r.store.SelectMembers(ctx, ids)
	if err != nil {
		return nil, helper.NewError("select members", err)
	}

	entries := []model.HierarchicalEntry{}
	index := map[model.NodeRef]int{}
	for _, member := range members {
		if member.IsSummary() || !member.EntryType().Valid() {
			continue
		}
		if len(options.EntryTypes) > 0 && !slices.Contains(options.EntryTypes, member.EntryType()) {
			continue
		}
		parent, ok := byID[member.SummaryID]
		if !ok {
			continue
		}

		score := parent.score
		if member.ContributionScore > 0 {
			score *= member.ContributionScore
		}

		entry := model.HierarchicalEntry{
			Type:       member.EntryType(),
			ID:         member.MemberID,
			Score:      score,
			Path:       slices.Clone(parent.path),
			PathTitles: slices.Clone(parent.titles),
		}

		key := model.NodeRef{Type: entry.Type, ID: entry.ID}
		if i, ok := index[key]; ok {
			if entry.Score > entries[i].Score {
				entries[i] = entry
			}
			continue
		}
		index[key] = len(entries)
		entries = append(entries, entry)
	}

	slices.SortStableFunc(entries, func(a, b model.HierarchicalEntry) int {
		return cmp.Compare(b.Score, a.Score)
	})
	maxResults := options.MaxResultsOrDefault()
	if len(entries) > maxResults {
		entries = entries[:maxResults]
	}

	return entries, nil
}

func derefID(id *string) string {
	if id == nil {
		return ""
	}
	return *id
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
