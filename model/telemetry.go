package model

// StageName identifies a query pipeline stage.
type StageName string

const (
	StageResolve     StageName = "resolve"
	StageStrategy    StageName = "strategy"
	StageLexical     StageName = "lexical-match"
	StageSemantic    StageName = "semantic-match"
	StageGraphExpand StageName = "graph-expand"
	StageFetch       StageName = "fetch"
	StageFilter      StageName = "filter"
	StageScore       StageName = "score"
	StageRerank      StageName = "rerank"
	StageCacheStore  StageName = "cache-store"
)

// PipelineStages lists the stages in execution order.
var PipelineStages = []StageName{
	StageResolve,
	StageStrategy,
	StageLexical,
	StageSemantic,
	StageGraphExpand,
	StageFetch,
	StageFilter,
	StageScore,
	StageRerank,
	StageCacheStore,
}

// StageTiming is the position of one stage on the request timeline.
type StageTiming struct {
	Stage         StageName `json:"stage"`
	StartOffsetMs float64   `json:"start_offset_ms"`
	DurationMs    float64   `json:"duration_ms"`
}

type ResolveTelemetry struct {
	ScopeChain ScopeChain `json:"scope_chain"`
}

type StrategyTelemetry struct {
	Selected           Strategy `json:"selected"`
	Effective          Strategy `json:"effective"`
	EmbeddingAvailable bool     `json:"embedding_available"`
	LexicalAvailable   bool     `json:"lexical_available"`
	Degradations       []string `json:"degradations,omitempty"`
}

type LexicalTelemetry struct {
	Ran     bool   `json:"ran"`
	Matches int    `json:"matches"`
	Error   string `json:"error,omitempty"`
}

type SemanticTelemetry struct {
	Ran               bool   `json:"ran"`
	EmbeddingSupplied bool   `json:"embedding_supplied"`
	Model             string `json:"model,omitempty"`
	Compared          int    `json:"compared"`
	Matches           int    `json:"matches"`
	Error             string `json:"error,omitempty"`
}

type GraphExpandTelemetry struct {
	Ran        bool   `json:"ran"`
	Anchors    int    `json:"anchors"`
	Discovered int    `json:"discovered"`
	Merged     int    `json:"merged"`
	Strategy   string `json:"strategy,omitempty"`
	FellBack   bool   `json:"fell_back,omitempty"`
	Error      string `json:"error,omitempty"`
}

type FetchTelemetry struct {
	Requested int `json:"requested"`
	Fetched   int `json:"fetched"`
	Dropped   int `json:"dropped"`
}

type FilterTelemetry struct {
	Before          int        `json:"before"`
	ExcludedByTerm  int        `json:"excluded_by_term"`
	ExcludedByType  int        `json:"excluded_by_type"`
	ExcludedByTag   int        `json:"excluded_by_tag"`
	ExcludedByScope int        `json:"excluded_by_scope"`
	ExcludedByGraph int        `json:"excluded_by_graph"`
	After           int        `json:"after"`
	Exclusions      Exclusions `json:"exclusions"`
}

type ScoreTelemetry struct {
	Scored   int     `json:"scored"`
	MaxScore float64 `json:"max_score"`
	MinScore float64 `json:"min_score"`
}

type RerankTelemetry struct {
	Total    int `json:"total"`
	Offset   int `json:"offset"`
	Returned int `json:"returned"`
}

type CacheTelemetry struct {
	Key    string `json:"key"`
	Hit    bool   `json:"hit"`
	Stored bool   `json:"stored"`
	Error  string `json:"error,omitempty"`
}

// Telemetry is the per-request trace of the query pipeline.
type Telemetry struct {
	Stages      []StageTiming        `json:"stages"`
	TotalMs     float64              `json:"total_ms"`
	Resolve     ResolveTelemetry     `json:"resolve"`
	Strategy    StrategyTelemetry    `json:"strategy"`
	Lexical     LexicalTelemetry     `json:"lexical"`
	Semantic    SemanticTelemetry    `json:"semantic"`
	GraphExpand GraphExpandTelemetry `json:"graph_expand"`
	Fetch       FetchTelemetry       `json:"fetch"`
	Filter      FilterTelemetry      `json:"filter"`
	Score       ScoreTelemetry       `json:"score"`
	Rerank      RerankTelemetry      `json:"rerank"`
	Cache       CacheTelemetry       `json:"cache"`
}

// Stage returns the timing of one stage.
func (t *Telemetry) Stage(name StageName) (StageTiming, bool) {
	for _, s := range t.Stages {
		if s.Stage == name {
			return s, true
		}
	}
	return StageTiming{}, false
}

// StageExplanation is the explain view of one stage.
type StageExplanation struct {
	DurationMs float64 `json:"duration_ms"`
	Percent    float64 `json:"percent"`
	Detail     string  `json:"detail,omitempty"`
}

// ResultExplanation shows why one result ranked where it did.
type ResultExplanation struct {
	Rank    int          `json:"rank"`
	Type    EntryType    `json:"type"`
	ID      string       `json:"id"`
	Title   string       `json:"title,omitempty"`
	Score   float64      `json:"score"`
	Signals ScoreSignals `json:"signals"`
}

// Explanation reshapes telemetry into a readable breakdown.
type Explanation struct {
	Search            string                         `json:"search,omitempty"`
	Scope             Scope                          `json:"scope"`
	Strategy          Strategy                       `json:"strategy"`
	EffectiveStrategy Strategy                       `json:"effective_strategy"`
	CacheHit          bool                           `json:"cache_hit"`
	TotalMs           float64                        `json:"total_ms"`
	Order             []StageName                    `json:"order"`
	Stages            map[StageName]StageExplanation `json:"stages"`
	Bottleneck        *StageName                     `json:"bottleneck"`
	Degradations      []string                       `json:"degradations,omitempty"`
	ResultCount       int                            `json:"result_count"`
	TopResults        []ResultExplanation            `json:"top_results,omitempty"`
}
