package retrieval

import (
	"testing"

	"github.com/siherrmann/memoria/model"
	"github.com/stretchr/testify/assert"
)

func TestParseExclusions(t *testing.T) {
	tests := []struct {
		name       string
		search     string
		cleaned    string
		exclusions model.Exclusions
	}{
		{"No exclusions", "retry policy", "retry policy", model.Exclusions{}},
		{"Single word", "retry -payment", "retry", model.Exclusions{Words: []string{"payment"}}},
		{"Double quoted phrase", `deploy -"Structured  Logging"`, "deploy", model.Exclusions{Phrases: []string{"structured logging"}}},
		{"Single quoted phrase", `-'rollback plan' api`, "api", model.Exclusions{Phrases: []string{"rollback plan"}}},
		{"Duplicates are merged", "-payment, -PAYMENT", "", model.Exclusions{Words: []string{"payment"}}},
		{"Double dash is kept", "--verbose flag", "--verbose flag", model.Exclusions{}},
		{"Lone dash is kept", "a - b", "a - b", model.Exclusions{}},
		{"Punctuation only is kept", "-!!!", "-!!!", model.Exclusions{}},
		{"Unterminated phrase loses its dash", `-"unterminated phrase`, `"unterminated phrase`, model.Exclusions{}},
		{"Quote inside a token", `-"a"b`, `"a"b`, model.Exclusions{}},
		{"Width and case are normalized", "-Ｐａｙｍｅｎｔ", "", model.Exclusions{Words: []string{"payment"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleaned, exclusions := ParseExclusions(tt.search)
			assert.Equal(t, tt.cleaned, cleaned)
			assert.Equal(t, tt.exclusions, exclusions)

			again, more := ParseExclusions(cleaned)
			assert.Equal(t, cleaned, again, "Expected parsing to be idempotent")
			assert.True(t, more.Empty(), "Expected no exclusions in the cleaned query")
		})
	}
}

func TestExclusionMatcher(t *testing.T) {
	t.Run("Words match on boundaries", func(t *testing.T) {
		matcher := newExclusionMatcher(model.Exclusions{Words: []string{"log"}})
		assert.False(t, matcher.Excludes("Use slog for logging"))
		assert.True(t, matcher.Excludes("write a log line"))
		assert.True(t, matcher.Excludes("Check the LOG."))
	})

	t.Run("Phrases match normalized substrings", func(t *testing.T) {
		matcher := newExclusionMatcher(model.Exclusions{Phrases: []string{"structured logging"}})
		assert.True(t, matcher.Excludes("Use Structured\n  Logging everywhere"))
		assert.False(t, matcher.Excludes("structured output and logging"))
	})

	t.Run("Empty matcher excludes nothing", func(t *testing.T) {
		assert.False(t, newExclusionMatcher(model.Exclusions{}).Excludes("anything"))
	})
}
