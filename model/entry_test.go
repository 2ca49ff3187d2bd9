package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/memoria/helper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryType(t *testing.T) {
	t.Run("Parse known types ignoring case", func(t *testing.T) {
		et, err := ParseEntryType(" Guideline ")

		require.NoError(t, err)
		assert.Equal(t, EntryTypeGuideline, et)
	})

	t.Run("Project is not a content type", func(t *testing.T) {
		_, err := ParseEntryType("project")

		assert.ErrorIs(t, err, helper.ErrInvalidInput)
		assert.False(t, EntryTypeProject.Valid())
	})

	t.Run("Every content type has a trait", func(t *testing.T) {
		for _, et := range EntryTypes {
			trait := et.Trait()
			assert.NotEmpty(t, trait.TitleField, "Expected title field for %s", et)
			assert.NotEmpty(t, trait.ContentField, "Expected content field for %s", et)
			assert.NotEmpty(t, trait.KeyField, "Expected key field for %s", et)
		}
	})
}

func TestEntryJSON(t *testing.T) {
	priority := 80
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("Tool uses name and description", func(t *testing.T) {
		entry := Entry{
			ID:        uuid.NewString(),
			Type:      EntryTypeTool,
			Scope:     GlobalScope(),
			Name:      "ripgrep",
			Content:   "Fast recursive search",
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}

		b, err := json.Marshal(entry)
		require.NoError(t, err)

		var fields map[string]interface{}
		require.NoError(t, json.Unmarshal(b, &fields))
		assert.Equal(t, "ripgrep", fields["name"])
		assert.Equal(t, "Fast recursive search", fields["description"])
		assert.NotContains(t, fields, "title")
	})

	t.Run("Guideline survives a round trip", func(t *testing.T) {
		entry := Entry{
			ID:        uuid.NewString(),
			Type:      EntryTypeGuideline,
			Scope:     Scope{Type: ScopeTypeProject, ID: "p1"},
			Name:      "no-force-push",
			Content:   "Never force push to main",
			Priority:  &priority,
			Tags:      []string{"git"},
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}

		b, err := json.Marshal(entry)
		require.NoError(t, err)

		var decoded Entry
		require.NoError(t, json.Unmarshal(b, &decoded))
		assert.Equal(t, entry.Name, decoded.Name)
		assert.Equal(t, entry.Content, decoded.Content)
		assert.Equal(t, entry.Scope, decoded.Scope)
		require.NotNil(t, decoded.Priority)
		assert.Equal(t, 80, *decoded.Priority)
		assert.True(t, decoded.CreatedAt.Equal(entry.CreatedAt))
	})
}

func TestEntryHelpers(t *testing.T) {
	entry := &Entry{
		ID:       "k1",
		Type:     EntryTypeKnowledge,
		Name:     "Retry budget",
		Content:  "Retries are capped at three",
		Category: "reliability",
		Tags:     []string{"Backend", "ops"},
	}

	t.Run("Key follows the type trait", func(t *testing.T) {
		assert.Equal(t, "Retry budget", entry.Key())
	})

	t.Run("Searchable text includes title content and category", func(t *testing.T) {
		text := entry.SearchableText()
		assert.Contains(t, text, "Retry budget")
		assert.Contains(t, text, "capped at three")
		assert.Contains(t, text, "reliability")
	})

	t.Run("Tags match case-insensitively", func(t *testing.T) {
		assert.True(t, entry.HasTag("backend"))
		assert.False(t, entry.HasTag("frontend"))
	})

	t.Run("Ref points at the entry", func(t *testing.T) {
		assert.Equal(t, NodeRef{Type: EntryTypeKnowledge, ID: "k1"}, entry.Ref())
	})
}

func TestLexicalMatches(t *testing.T) {
	t.Run("First score wins and ids keep order", func(t *testing.T) {
		m := NewLexicalMatches()
		m.Add(EntryTypeTool, "a", 0.9)
		m.Add(EntryTypeTool, "b", 0.5)
		m.Add(EntryTypeTool, "a", 0.1)

		assert.Equal(t, []string{"a", "b"}, m.IDsByType[EntryTypeTool])
		assert.Equal(t, 0.9, m.ScoreByID["a"])
		assert.Equal(t, 2, m.Len())
	})
}
