package model

const (
	DefaultExpansionFactor        = 3
	DefaultMinSimilarity          = 0.5
	DefaultHierarchicalMaxResults = 10
)

// HierarchicalOptions configures a coarse-to-fine retrieval. Nil pointers
// take the defaults; an explicit zero expansion factor is honoured.
type HierarchicalOptions struct {
	Query           string      `json:"query,omitempty"`
	Embedding       []float32   `json:"embedding,omitempty"`
	Scope           Scope       `json:"scope"`
	StartLevel      *int        `json:"start_level,omitempty"`
	ExpansionFactor *int        `json:"expansion_factor,omitempty"`
	MinSimilarity   *float64    `json:"min_similarity,omitempty"`
	MaxResults      int         `json:"max_results,omitempty"`
	EntryTypes      []EntryType `json:"entry_types,omitempty"`
}

// ExpansionFactorOrDefault returns the configured expansion factor.
func (o *HierarchicalOptions) ExpansionFactorOrDefault() int {
	if o.ExpansionFactor == nil {
		return DefaultExpansionFactor
	}
	return max(*o.ExpansionFactor, 0)
}

// MinSimilarityOrDefault returns the configured similarity threshold.
func (o *HierarchicalOptions) MinSimilarityOrDefault() float64 {
	if o.MinSimilarity == nil {
		return DefaultMinSimilarity
	}
	return *o.MinSimilarity
}

// MaxResultsOrDefault returns the configured result cap.
func (o *HierarchicalOptions) MaxResultsOrDefault() int {
	if o.MaxResults <= 0 {
		return DefaultHierarchicalMaxResults
	}
	return o.MaxResults
}

// HierarchicalEntry is a leaf entry found under the summary path.
type HierarchicalEntry struct {
	Type       EntryType `json:"type"`
	ID         string    `json:"id"`
	Score      float64   `json:"score"`
	Path       []string  `json:"path"`
	PathTitles []string  `json:"path_titles"`
}

// RetrievalStep records the work done at one hierarchy level.
type RetrievalStep struct {
	Level             int     `json:"level"`
	SummariesSearched int     `json:"summaries_searched"`
	SummariesMatched  int     `json:"summaries_matched"`
	TimeMs            float64 `json:"time_ms"`
}

// HierarchicalResult is the outcome of a coarse-to-fine retrieval.
type HierarchicalResult struct {
	Entries        []HierarchicalEntry `json:"entries"`
	Steps          []RetrievalStep     `json:"steps"`
	TotalTimeMs    float64             `json:"total_time_ms"`
	QueryEmbedding []float32           `json:"query_embedding,omitempty"`
}

// DrillDownResult holds a summary with its child summaries and its entry
// members kept apart.
type DrillDownResult struct {
	Summary  *Summary         `json:"summary"`
	Children []*Summary       `json:"children"`
	Members  []*SummaryMember `json:"members"`
}
