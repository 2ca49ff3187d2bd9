package database

import (
	"context"
	"testing"

	"github.com/siherrmann/memoria/helper"
	"github.com/siherrmann/memoria/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresHandlers(t *testing.T) {
	database := initPostgresDB(t)
	require.Equal(t, helper.DriverPostgres, database.Driver)
	ctx := context.Background()

	entriesDbHandler, err := NewEntriesDBHandler(database, false)
	require.NoError(t, err)
	edgesDbHandler, err := NewEdgesDBHandler(database, false)
	require.NoError(t, err)
	indexDbHandler, err := NewIndexDBHandler(database, 10)
	require.NoError(t, err)
	embeddingsDbHandler, err := NewEmbeddingsDBHandler(database, false)
	require.NoError(t, err)
	summariesDbHandler, err := NewSummariesDBHandler(database, false)
	require.NoError(t, err)

	seedLexicalEntries(t, entriesDbHandler)

	t.Run("Entries round trip", func(t *testing.T) {
		entry, err := entriesDbHandler.SelectEntry(ctx, model.EntryTypeGuideline, "g1")
		require.NoError(t, err)
		assert.Equal(t, "Error handling", entry.Name)
		assert.True(t, entry.IsActive)

		entries, err := entriesDbHandler.SelectEntries(ctx, model.EntryFilter{Scopes: []model.Scope{model.GlobalScope()}, ActiveOnly: true})
		require.NoError(t, err)
		assert.Len(t, entries, 3)
	})

	t.Run("Lexical search", func(t *testing.T) {
		matches, err := indexDbHandler.Search(ctx, "logging", model.EntryFilter{ActiveOnly: true})
		require.NoError(t, err)
		assert.Contains(t, matches.ScoreByID, "g2")
		assert.InDelta(t, 1.0, matches.ScoreByID["g2"], 1e-9)

		require.NoError(t, indexDbHandler.Rebuild(ctx))
	})

	t.Run("Multi-hop traversal", func(t *testing.T) {
		g1 := node(model.EntryTypeGuideline, "g1")
		g2 := node(model.EntryTypeGuideline, "g2")
		k1 := node(model.EntryTypeKnowledge, "k1")
		link(t, edgesDbHandler, g1, g2, model.RelationTypeRelatedTo)
		link(t, edgesDbHandler, g2, k1, model.RelationTypeRelatedTo)
		link(t, edgesDbHandler, k1, g1, model.RelationTypeRelatedTo)

		nodes, err := edgesDbHandler.TraverseMultiHop(ctx, model.TraversalQuery{Start: g1, Direction: model.DirectionBoth, Depth: 3})
		require.NoError(t, err)
		assert.ElementsMatch(t, []model.NodeRef{g2, k1}, nodes)
	})

	t.Run("Vectors", func(t *testing.T) {
		require.NoError(t, embeddingsDbHandler.UpsertEmbedding(ctx, &model.StoredEmbedding{EntryType: model.EntryTypeGuideline, EntryID: "g1", Vector: []float32{1, 2, 3}}))
		embedding, err := embeddingsDbHandler.SelectEmbedding(ctx, model.EntryTypeGuideline, "g1")
		require.NoError(t, err)
		require.NotNil(t, embedding)
		assert.Equal(t, []float32{1, 2, 3}, embedding.Vector)

		scope := model.Scope{Type: model.ScopeTypeOrg, ID: "acme"}
		require.NoError(t, summariesDbHandler.InsertSummary(ctx, &model.Summary{ID: "s1", Scope: scope, Level: 0, Title: "Errors", Embedding: []float32{0, 1}}))
		summary, err := summariesDbHandler.SelectSummary(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, []float32{0, 1}, summary.Embedding)
	})
}
