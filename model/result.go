package model

// Strategy is the retrieval mode a query runs in.
type Strategy string

const (
	// StrategyFilter applies scope, tag and relation filters only.
	StrategyFilter   Strategy = "filter"
	StrategyLexical  Strategy = "lexical"
	StrategySemantic Strategy = "semantic"
	StrategyHybrid   Strategy = "hybrid"
)

// RelatedTo restricts a query to nodes reachable from an anchor entry.
type RelatedTo struct {
	Type         EntryType    `json:"type"`
	ID           string       `json:"id"`
	Depth        int          `json:"depth,omitempty"`
	Direction    Direction    `json:"direction,omitempty"`
	RelationType RelationType `json:"relation_type,omitempty"`
}

// QueryRequest is a structured memory query.
type QueryRequest struct {
	Types           []EntryType `json:"types,omitempty"`
	Search          string      `json:"search,omitempty"`
	Embedding       []float32   `json:"embedding,omitempty"`
	ScopeType       ScopeType   `json:"scope_type"`
	ScopeID         string      `json:"scope_id,omitempty"`
	Tags            []string    `json:"tags,omitempty"`
	RequireTags     []string    `json:"require_tags,omitempty"`
	ExcludeTags     []string    `json:"exclude_tags,omitempty"`
	RelatedTo       *RelatedTo  `json:"related_to,omitempty"`
	FollowRelations bool        `json:"follow_relations,omitempty"`
	Limit           int         `json:"limit,omitempty"`
	Offset          int         `json:"offset,omitempty"`
}

// Exclusions are the negated words and phrases parsed out of a search term.
type Exclusions struct {
	Words   []string `json:"words,omitempty"`
	Phrases []string `json:"phrases,omitempty"`
}

// Empty reports whether there is nothing to exclude.
func (e Exclusions) Empty() bool {
	return len(e.Words) == 0 && len(e.Phrases) == 0
}

// ScoreSignals breaks a final score down into its inputs.
type ScoreSignals struct {
	Lexical   float64 `json:"lexical,omitempty"`
	Semantic  float64 `json:"semantic,omitempty"`
	Graph     float64 `json:"graph,omitempty"`
	Relevance float64 `json:"relevance"`
	Recency   float64 `json:"recency"`
	Priority  float64 `json:"priority"`
}

// QueryResultItem is one ranked entry of a query response.
type QueryResultItem struct {
	Type       EntryType    `json:"type"`
	ID         string       `json:"id"`
	Scope      Scope        `json:"scope"`
	Tags       []string     `json:"tags,omitempty"`
	Score      float64      `json:"score"`
	Path       []string     `json:"path,omitempty"`
	PathTitles []string     `json:"path_titles,omitempty"`
	RelatedVia *NodeRef     `json:"related_via,omitempty"`
	Signals    ScoreSignals `json:"signals"`
	Entry      *Entry       `json:"entry,omitempty"`
}

// QueryResponse is the ranked page of results with its trace.
type QueryResponse struct {
	Items     []QueryResultItem `json:"items"`
	Total     int               `json:"total"`
	Telemetry *Telemetry        `json:"telemetry"`
	CacheHit  bool              `json:"cache_hit"`
}
