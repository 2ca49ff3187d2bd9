package retrieval

import (
	"fmt"
	"strings"

	"github.com/siherrmann/memoria/model"
)

const (
	// BottleneckPercent is the share of the total time above which a stage
	// is reported as the bottleneck.
	BottleneckPercent = 30.0

	explainTopResults = 3
)

// Explain reshapes the telemetry of response into a per stage breakdown.
func Explain(request model.QueryRequest, response *model.QueryResponse) *model.Explanation {
	telemetry := response.Telemetry
	if telemetry == nil {
		telemetry = &model.Telemetry{}
	}

	explanation := &model.Explanation{
		Search:            request.Search,
		Scope:             model.Scope{Type: request.ScopeType, ID: request.ScopeID},
		Strategy:          telemetry.Strategy.Selected,
		EffectiveStrategy: telemetry.Strategy.Effective,
		CacheHit:          response.CacheHit,
		TotalMs:           telemetry.TotalMs,
		Order:             make([]model.StageName, 0, len(telemetry.Stages)),
		Stages:            make(map[model.StageName]model.StageExplanation, len(telemetry.Stages)),
		Degradations:      telemetry.Strategy.Degradations,
		ResultCount:       len(response.Items),
	}
	if len(telemetry.Resolve.ScopeChain) > 0 {
		explanation.Scope = telemetry.Resolve.ScopeChain[0]
	}

	total := telemetry.TotalMs
	if total <= 0 {
		for _, stage := range telemetry.Stages {
			total += stage.DurationMs
		}
	}

	var bottleneck model.StageName
	highest := 0.0
	for _, stage := range telemetry.Stages {
		percent := 0.0
		if total > 0 {
			percent = stage.DurationMs / total * 100
		}
		explanation.Order = append(explanation.Order, stage.Stage)
		explanation.Stages[stage.Stage] = model.StageExplanation{
			DurationMs: stage.DurationMs,
			Percent:    percent,
			Detail:     stageDetail(stage.Stage, telemetry),
		}
		if percent > highest {
			bottleneck, highest = stage.Stage, percent
		}
	}
	if highest > BottleneckPercent {
		explanation.Bottleneck = &bottleneck
	}

	for i, item := range response.Items {
		if i == explainTopResults {
			break
		}
		result := model.ResultExplanation{
			Rank:    i + 1,
			Type:    item.Type,
			ID:      item.ID,
			Score:   item.Score,
			Signals: item.Signals,
		}
		if item.Entry != nil {
			result.Title = item.Entry.Name
		}
		explanation.TopResults = append(explanation.TopResults, result)
	}

	return explanation
}

func stageDetail(stage model.StageName, t *model.Telemetry) string {
	switch stage {
	case model.StageResolve:
		scopes := make([]string, 0, len(t.Resolve.ScopeChain))
		for _, scope := range t.Resolve.ScopeChain {
			scopes = append(scopes, scope.String())
		}
		return "chain " + strings.Join(scopes, " > ")
	case model.StageStrategy:
		return fmt.Sprintf("selected %s, effective %s", t.Strategy.Selected, t.Strategy.Effective)
	case model.StageLexical:
		return ranDetail(t.Lexical.Ran, t.Lexical.Error, fmt.Sprintf("%d matches", t.Lexical.Matches))
	case model.StageSemantic:
		return ranDetail(t.Semantic.Ran, t.Semantic.Error,
			fmt.Sprintf("%d of %d embeddings matched", t.Semantic.Matches, t.Semantic.Compared))
	case model.StageGraphExpand:
		detail := fmt.Sprintf("%d anchors, %d discovered, %d merged", t.GraphExpand.Anchors, t.GraphExpand.Discovered, t.GraphExpand.Merged)
		if t.GraphExpand.FellBack {
			detail += ", iterative fallback"
		}
		return ranDetail(t.GraphExpand.Ran, t.GraphExpand.Error, detail)
	case model.StageFetch:
		return fmt.Sprintf("%d of %d fetched, %d dropped", t.Fetch.Fetched, t.Fetch.Requested, t.Fetch.Dropped)
	case model.StageFilter:
		f := t.Filter
		return fmt.Sprintf("%d of %d kept (term %d, type %d, tag %d, scope %d, graph %d)",
			f.After, f.Before, f.ExcludedByTerm, f.ExcludedByType, f.ExcludedByTag, f.ExcludedByScope, f.ExcludedByGraph)
	case model.StageScore:
		return fmt.Sprintf("%d scored, %.3f to %.3f", t.Score.Scored, t.Score.MinScore, t.Score.MaxScore)
	case model.StageRerank:
		return fmt.Sprintf("%d of %d returned from offset %d", t.Rerank.Returned, t.Rerank.Total, t.Rerank.Offset)
	case model.StageCacheStore:
		switch {
		case t.Cache.Hit:
			return "hit"
		case t.Cache.Stored:
			return "stored"
		case t.Cache.Error != "":
			return "error: " + t.Cache.Error
		}
		return "not cached"
	}
	return ""
}

func ranDetail(ran bool, err string, detail string) string {
	switch {
	case err != "":
		return "error: " + err
	case !ran:
		return "skipped"
	}
	return detail
}
