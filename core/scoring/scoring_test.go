package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/siherrmann/memoria/model"
	"github.com/stretchr/testify/assert"
)

func TestCosine(t *testing.T) {
	t.Run("Identical vectors", func(t *testing.T) {
		assert.InDelta(t, 1.0, Cosine([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
	})

	t.Run("Orthogonal vectors", func(t *testing.T) {
		assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	})

	t.Run("Opposite vectors", func(t *testing.T) {
		assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-2, 0}), 1e-9)
	})

	t.Run("Unusable vectors are minus infinity", func(t *testing.T) {
		assert.True(t, math.IsInf(Cosine(nil, []float32{1}), -1), "Expected missing vector to be -Inf")
		assert.True(t, math.IsInf(Cosine([]float32{1, 0}, []float32{1}), -1), "Expected length mismatch to be -Inf")
		assert.True(t, math.IsInf(Cosine([]float32{0, 0}, []float32{1, 0}), -1), "Expected zero vector to be -Inf")
	})
}

func TestFuseRelevance(t *testing.T) {
	t.Run("Single signal is not penalized", func(t *testing.T) {
		assert.InDelta(t, 0.8, FuseRelevance(0.25, 0.8), 1e-9)
		assert.InDelta(t, 0.8, FuseRelevance(0.25, 0, 0.8), 1e-9)
	})

	t.Run("Second signal never lowers the score", func(t *testing.T) {
		lexicalOnly := FuseRelevance(0.25, 0.6, 0)
		for _, semantic := range []float64{0.01, 0.3, 0.6, 0.9, 1} {
			both := FuseRelevance(0.25, 0.6, semantic)
			assert.GreaterOrEqual(t, both, lexicalOnly, "Expected adding semantic %v to not lower the score", semantic)
			assert.GreaterOrEqual(t, both, FuseRelevance(0.25, 0, semantic))
		}
	})

	t.Run("Monotone in every signal", func(t *testing.T) {
		steps := []float64{0, 0.1, 0.4, 0.7, 1}
		for _, other := range steps {
			previous := -1.0
			for _, s := range steps {
				score := FuseRelevance(0.25, s, other)
				assert.GreaterOrEqual(t, score, previous)
				previous = score
			}
		}
	})

	t.Run("Negative signals count as zero", func(t *testing.T) {
		assert.InDelta(t, 0.5, FuseRelevance(0.25, 0.5, math.Inf(-1)), 1e-9)
		assert.Equal(t, 0.0, FuseRelevance(0.25))
	})
}

func TestRecency(t *testing.T) {
	now := time.Now()
	halfLife := 24 * time.Hour

	assert.InDelta(t, 1.0, Recency(now, now, halfLife), 1e-9)
	assert.InDelta(t, 0.5, Recency(now.Add(-halfLife), now, halfLife), 1e-9)
	assert.InDelta(t, 0.25, Recency(now.Add(-2*halfLife), now, halfLife), 1e-9)
	assert.Equal(t, 1.0, Recency(now.Add(time.Hour), now, halfLife), "Expected future timestamps to be fresh")
	assert.Equal(t, 1.0, Recency(now.Add(-halfLife), now, 0), "Expected no decay without half-life")
}

func TestPriority(t *testing.T) {
	priority := func(p int) *int { return &p }

	assert.Equal(t, 0.8, Priority(&model.Entry{Type: model.EntryTypeGuideline, Priority: priority(80)}))
	assert.Equal(t, 1.0, Priority(&model.Entry{Type: model.EntryTypeGuideline, Priority: priority(300)}))
	assert.Equal(t, DefaultPriority, Priority(&model.Entry{Type: model.EntryTypeGuideline}))
	assert.Equal(t, DefaultPriority, Priority(&model.Entry{Type: model.EntryTypeTool, Priority: priority(90)}))
	assert.Equal(t, DefaultPriority, Priority(nil))
}

func TestFinal(t *testing.T) {
	config := model.DefaultPipelineConfig()
	signals := model.ScoreSignals{Relevance: 1, Recency: 1, Priority: 1}

	assert.InDelta(t, 1.0, Final(config, signals), 1e-9)
	assert.InDelta(t, 0.7, Final(config, model.ScoreSignals{Relevance: 1}), 1e-9)
}
