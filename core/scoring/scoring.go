// Package scoring holds the pure ranking functions shared by the query
// pipeline and the hierarchical retriever.
package scoring

import (
	"math"
	"time"

	"github.com/siherrmann/memoria/model"
)

// DefaultPriority is the priority signal of entries without a priority.
const DefaultPriority = 0.5

// Cosine returns the cosine similarity of a and b. Missing vectors,
// vectors of different length and zero vectors yield -Inf so they sort
// below every real match and never pass a threshold.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return math.Inf(-1)
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return math.Inf(-1)
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// FuseRelevance combines search signals into one relevance value. The
// strongest signal counts fully and bonus (0..1) of the remaining signals
// is added on top, so the result never decreases when any signal grows
// and a single strong signal is not penalized for being alone.
// Negative signals count as zero.
func FuseRelevance(bonus float64, signals ...float64) float64 {
	bonus = min(max(bonus, 0), 1)

	var strongest, sum float64
	for _, s := range signals {
		if s <= 0 || math.IsNaN(s) {
			continue
		}
		strongest = max(strongest, s)
		sum += s
	}

	return (1-bonus)*strongest + bonus*sum
}

// Recency decays from 1 for a fresh entry by half every halfLife.
// Timestamps in the future count as fresh.
func Recency(updatedAt, now time.Time, halfLife time.Duration) float64 {
	if halfLife <= 0 || updatedAt.IsZero() {
		return 1
	}
	age := now.Sub(updatedAt)
	if age <= 0 {
		return 1
	}
	return math.Pow(0.5, float64(age)/float64(halfLife))
}

// Priority maps a guideline priority of 0..100 onto 0..1. Every other
// entry gets DefaultPriority.
func Priority(entry *model.Entry) float64 {
	if entry == nil || entry.Type != model.EntryTypeGuideline || entry.Priority == nil {
		return DefaultPriority
	}
	return min(max(float64(*entry.Priority)/100, 0), 1)
}

// Final weighs relevance, recency and priority into the rank value.
func Final(config model.PipelineConfig, signals model.ScoreSignals) float64 {
	return config.RelevanceWeight*signals.Relevance +
		config.RecencyWeight*signals.Recency +
		config.PriorityWeight*signals.Priority
}
