package retrieval

import (
	"testing"

	"github.com/siherrmann/memoria/model"
	"github.com/stretchr/testify/assert"
)

func TestSelectStrategy(t *testing.T) {
	tests := []struct {
		name              string
		hasTerm           bool
		hasVector         bool
		lexicalAvailable  bool
		semanticAvailable bool
		expected          model.Strategy
	}{
		{"No term and no vector filters", false, false, true, true, model.StrategyFilter},
		{"Vector only runs semantic", false, true, true, true, model.StrategySemantic},
		{"Vector without vector store filters", false, true, true, false, model.StrategyFilter},
		{"Term with both runs hybrid", true, false, true, true, model.StrategyHybrid},
		{"Term with lexical only", true, false, true, false, model.StrategyLexical},
		{"Term with semantic only", true, false, false, true, model.StrategySemantic},
		{"Term with nothing available filters", true, false, false, false, model.StrategyFilter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, selectStrategy(tt.hasTerm, tt.hasVector, tt.lexicalAvailable, tt.semanticAvailable))
		})
	}
}

func TestStrategyDegradation(t *testing.T) {
	t.Run("Without lexical", func(t *testing.T) {
		assert.Equal(t, model.StrategySemantic, withoutLexical(model.StrategyHybrid))
		assert.Equal(t, model.StrategyFilter, withoutLexical(model.StrategyLexical))
		assert.Equal(t, model.StrategySemantic, withoutLexical(model.StrategySemantic))
	})

	t.Run("Without semantic", func(t *testing.T) {
		assert.Equal(t, model.StrategyLexical, withoutSemantic(model.StrategyHybrid))
		assert.Equal(t, model.StrategyFilter, withoutSemantic(model.StrategySemantic))
		assert.Equal(t, model.StrategyFilter, withoutSemantic(model.StrategyFilter))
	})

	t.Run("Stage membership", func(t *testing.T) {
		assert.True(t, runsLexical(model.StrategyHybrid))
		assert.False(t, runsLexical(model.StrategySemantic))
		assert.True(t, runsSemantic(model.StrategySemantic))
		assert.False(t, runsSemantic(model.StrategyFilter))
	})
}
