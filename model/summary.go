package model

import "time"

// MemberTypeSummary marks a summary member that is itself a summary.
const MemberTypeSummary = "summary"

// Summary is a node of the summary hierarchy. Level 0 summaries group
// entries, higher levels group the summaries one level below.
type Summary struct {
	ID               string     `json:"id"`
	Scope            Scope      `json:"scope"`
	Level            int        `json:"level"`
	ParentSummaryID  *string    `json:"parent_summary_id,omitempty"`
	Title            string     `json:"title"`
	Content          string     `json:"content"`
	Embedding        []float32  `json:"embedding,omitempty"`
	MemberCount      int        `json:"member_count"`
	CoherenceScore   float64    `json:"coherence_score,omitempty"`
	CompressionRatio float64    `json:"compression_ratio,omitempty"`
	AccessCount      int        `json:"access_count"`
	LastAccessedAt   *time.Time `json:"last_accessed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// SummaryMember links a summary to an entry or to a child summary.
type SummaryMember struct {
	SummaryID         string  `json:"summary_id"`
	MemberType        string  `json:"member_type"`
	MemberID          string  `json:"member_id"`
	ContributionScore float64 `json:"contribution_score"`
	DisplayOrder      int     `json:"display_order"`
}

// IsSummary reports whether the member is a child summary.
func (m *SummaryMember) IsSummary() bool {
	return m.MemberType == MemberTypeSummary
}

// EntryType returns the entry type of an entry member.
func (m *SummaryMember) EntryType() EntryType {
	return EntryType(m.MemberType)
}
