package database

import (
	"context"
	"errors"
	"testing"

	"github.com/siherrmann/memoria/helper"
	"github.com/siherrmann/memoria/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddings(t *testing.T) {
	database := initDB(t)
	ctx := context.Background()

	embeddingsDbHandler, err := NewEmbeddingsDBHandler(database, true)
	require.NoError(t, err)

	t.Run("Invalid call NewEmbeddingsDBHandler with nil database", func(t *testing.T) {
		_, err := NewEmbeddingsDBHandler(nil, false)
		assert.Error(t, err)
	})

	t.Run("Missing embedding is nil", func(t *testing.T) {
		embedding, err := embeddingsDbHandler.SelectEmbedding(ctx, model.EntryTypeTool, "missing")
		require.NoError(t, err)
		assert.Nil(t, embedding)
	})

	t.Run("Upsert and select", func(t *testing.T) {
		err := embeddingsDbHandler.UpsertEmbedding(ctx, &model.StoredEmbedding{EntryType: model.EntryTypeTool, EntryID: "t1", Vector: []float32{0.5, 0.25}, Model: "test"})
		require.NoError(t, err)

		err = embeddingsDbHandler.UpsertEmbedding(ctx, &model.StoredEmbedding{EntryType: model.EntryTypeTool, EntryID: "t1", Vector: []float32{1, 0, 0}, Model: "test"})
		require.NoError(t, err)

		embedding, err := embeddingsDbHandler.SelectEmbedding(ctx, model.EntryTypeTool, "t1")
		require.NoError(t, err)
		require.NotNil(t, embedding)
		assert.Equal(t, []float32{1, 0, 0}, embedding.Vector)
		assert.Equal(t, 3, embedding.Dimension)
		assert.Equal(t, "test", embedding.Model)
	})

	t.Run("Upsert rejects empty vector", func(t *testing.T) {
		err := embeddingsDbHandler.UpsertEmbedding(ctx, &model.StoredEmbedding{EntryType: model.EntryTypeTool, EntryID: "t2"})
		assert.True(t, errors.Is(err, helper.ErrInvalidInput))
	})

	t.Run("List by types", func(t *testing.T) {
		require.NoError(t, embeddingsDbHandler.UpsertEmbedding(ctx, &model.StoredEmbedding{EntryType: model.EntryTypeKnowledge, EntryID: "k1", Vector: []float32{0, 1, 0}}))

		tools, err := embeddingsDbHandler.SelectEmbeddings(ctx, model.EntryFilter{Types: []model.EntryType{model.EntryTypeTool}})
		require.NoError(t, err)
		require.Len(t, tools, 1)
		assert.Equal(t, "t1", tools[0].EntryID)

		all, err := embeddingsDbHandler.SelectEmbeddings(ctx, model.EntryFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, embeddingsDbHandler.DeleteEmbedding(ctx, model.EntryTypeKnowledge, "k1"))
		embedding, err := embeddingsDbHandler.SelectEmbedding(ctx, model.EntryTypeKnowledge, "k1")
		require.NoError(t, err)
		assert.Nil(t, embedding)
	})
}

func TestEmbeddingsSelectFilter(t *testing.T) {
	database := initDB(t)
	ctx := context.Background()

	entriesDbHandler, err := NewEntriesDBHandler(database, true)
	require.NoError(t, err)
	embeddingsDbHandler, err := NewEmbeddingsDBHandler(database, true)
	require.NoError(t, err)

	other := model.Scope{Type: model.ScopeTypeProject, ID: "other"}
	api := model.Scope{Type: model.ScopeTypeProject, ID: "api"}
	entries := []*model.Entry{
		{ID: "o1", Type: model.EntryTypeKnowledge, Scope: other, Name: "Other", IsActive: true},
		{ID: "a1", Type: model.EntryTypeKnowledge, Scope: api, Name: "Api", Tags: []string{"go"}, IsActive: true},
		{ID: "a2", Type: model.EntryTypeKnowledge, Scope: api, Name: "Inactive", IsActive: false},
		{ID: "g1", Type: model.EntryTypeGuideline, Scope: model.GlobalScope(), Name: "Global", IsActive: true},
	}
	for _, entry := range entries {
		require.NoError(t, entriesDbHandler.InsertEntry(ctx, entry))
		require.NoError(t, embeddingsDbHandler.UpsertEmbedding(ctx, &model.StoredEmbedding{EntryType: entry.Type, EntryID: entry.ID, Vector: []float32{1, 0}}))
	}
	require.NoError(t, embeddingsDbHandler.UpsertEmbedding(ctx, &model.StoredEmbedding{EntryType: model.EntryTypeTool, EntryID: "orphan", Vector: []float32{0, 1}}))

	ids := func(embeddings []*model.StoredEmbedding) []string {
		out := []string{}
		for _, embedding := range embeddings {
			out = append(out, embedding.EntryID)
		}
		return out
	}

	t.Run("Scope chain and active only", func(t *testing.T) {
		selected, err := embeddingsDbHandler.SelectEmbeddings(ctx, model.EntryFilter{
			Scopes:     []model.Scope{api, model.GlobalScope()},
			ActiveOnly: true,
		})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a1", "g1"}, ids(selected))
	})

	t.Run("Tags and types", func(t *testing.T) {
		selected, err := embeddingsDbHandler.SelectEmbeddings(ctx, model.EntryFilter{
			Types: []model.EntryType{model.EntryTypeKnowledge},
			Tags:  []string{"GO"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"a1"}, ids(selected))
	})

	t.Run("Type only listing keeps vectors without entries", func(t *testing.T) {
		selected, err := embeddingsDbHandler.SelectEmbeddings(ctx, model.EntryFilter{})
		require.NoError(t, err)
		assert.Len(t, selected, 5)
	})
}
