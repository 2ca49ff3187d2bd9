package model

import "time"

// PipelineConfig tunes candidate gathering and ranking of the query pipeline.
type PipelineConfig struct {
	// Pagination
	DefaultLimit int `json:"default_limit"`
	MaxLimit     int `json:"max_limit"`

	// Candidate caps
	LexicalLimit        int     `json:"lexical_limit"`
	SemanticTopK        int     `json:"semantic_top_k"`
	SemanticMinScore    float64 `json:"semantic_min_score"`
	FilterCandidateCap  int     `json:"filter_candidate_cap"`
	ExpansionAnchors    int     `json:"expansion_anchors"`
	FollowDepth         int     `json:"follow_depth"`
	TraversalMaxResults int     `json:"traversal_max_results"`

	// Ranking parameters
	GraphPenalty    float64       `json:"graph_penalty"`    // Multiplier applied to the anchor's score
	FusionBonus     float64       `json:"fusion_bonus"`     // Share of the weaker signal added to the stronger
	NeutralScore    float64       `json:"neutral_score"`    // Relevance of listed candidates that no stage matched
	RelevanceWeight float64       `json:"relevance_weight"` // Weight for fused lexical/semantic/graph relevance
	RecencyWeight   float64       `json:"recency_weight"`
	PriorityWeight  float64       `json:"priority_weight"`
	RecencyHalfLife time.Duration `json:"recency_half_life"`

	// Cache
	CacheTTL time.Duration `json:"cache_ttl"`
}

// DefaultPipelineConfig returns a sensible default configuration
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		DefaultLimit:        20,
		MaxLimit:            100,
		LexicalLimit:        200,
		SemanticTopK:        50,
		SemanticMinScore:    0.3,
		FilterCandidateCap:  500,
		ExpansionAnchors:    5,
		FollowDepth:         1,
		TraversalMaxResults: DefaultTraversalMaxResults,
		GraphPenalty:        0.5,
		FusionBonus:         0.25,
		NeutralScore:        1.0,
		RelevanceWeight:     0.7,
		RecencyWeight:       0.15,
		PriorityWeight:      0.15,
		RecencyHalfLife:     30 * 24 * time.Hour,
		CacheTTL:            5 * time.Minute,
	}
}
