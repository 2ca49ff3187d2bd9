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

func TestSummariesNewSummariesDBHandler(t *testing.T) {
	database := initDB(t)

	t.Run("Valid call NewSummariesDBHandler", func(t *testing.T) {
		summariesDbHandler, err := NewSummariesDBHandler(database, true)
		assert.NoError(t, err, "Expected NewSummariesDBHandler to not return an error")
		require.NotNil(t, summariesDbHandler, "Expected NewSummariesDBHandler to return a non-nil instance")
	})

	t.Run("Invalid call NewSummariesDBHandler with nil database", func(t *testing.T) {
		_, err := NewSummariesDBHandler(nil, false)
		assert.Error(t, err, "Expected error when creating SummariesDBHandler with nil database")
	})
}

func TestSummariesHierarchy(t *testing.T) {
	database := initDB(t)
	ctx := context.Background()

	summariesDbHandler, err := NewSummariesDBHandler(database, true)
	require.NoError(t, err)

	scope := model.Scope{Type: model.ScopeTypeProject, ID: "p1"}

	t.Run("Max level of empty scope", func(t *testing.T) {
		_, ok, err := summariesDbHandler.SelectMaxLevel(ctx, scope)
		require.NoError(t, err)
		assert.False(t, ok, "Expected no level for a scope without summaries")
	})

	root := &model.Summary{ID: "root", Scope: scope, Level: 1, Title: "Testing", Embedding: []float32{1, 0, 0}}
	require.NoError(t, summariesDbHandler.InsertSummary(ctx, root))

	parentID := root.ID
	leaf := &model.Summary{ID: "leaf", Scope: scope, Level: 0, ParentSummaryID: &parentID, Title: "Unit tests"}
	require.NoError(t, summariesDbHandler.InsertSummary(ctx, leaf))

	t.Run("Select summary keeps embedding and parent", func(t *testing.T) {
		selected, err := summariesDbHandler.SelectSummary(ctx, "root")
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 0, 0}, selected.Embedding)
		assert.Nil(t, selected.ParentSummaryID)

		selected, err = summariesDbHandler.SelectSummary(ctx, "leaf")
		require.NoError(t, err)
		assert.Nil(t, selected.Embedding, "Expected a summary without embedding to scan as nil")
		require.NotNil(t, selected.ParentSummaryID)
		assert.Equal(t, "root", *selected.ParentSummaryID)
	})

	t.Run("Select missing summary", func(t *testing.T) {
		_, err := summariesDbHandler.SelectSummary(ctx, "missing")
		assert.True(t, errors.Is(err, helper.ErrNotFound))
	})

	t.Run("Parent must be one level up", func(t *testing.T) {
		wrong := &model.Summary{Scope: scope, Level: 1, ParentSummaryID: &parentID, Title: "Too high"}
		err := summariesDbHandler.InsertSummary(ctx, wrong)
		assert.True(t, errors.Is(err, helper.ErrInvalidInput), "Expected level mismatch to be invalid input, got %v", err)

		missing := "missing"
		orphan := &model.Summary{Scope: scope, Level: 0, ParentSummaryID: &missing, Title: "Orphan"}
		err = summariesDbHandler.InsertSummary(ctx, orphan)
		assert.True(t, errors.Is(err, helper.ErrNotFound), "Expected missing parent to be not found, got %v", err)
	})

	t.Run("Max level and levels", func(t *testing.T) {
		level, ok, err := summariesDbHandler.SelectMaxLevel(ctx, scope)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 1, level)

		summaries, err := summariesDbHandler.SelectSummariesAtLevel(ctx, scope, 1)
		require.NoError(t, err)
		require.Len(t, summaries, 1)
		assert.Equal(t, "root", summaries[0].ID)

		children, err := summariesDbHandler.SelectChildSummaries(ctx, []string{"root"})
		require.NoError(t, err)
		require.Len(t, children, 1)
		assert.Equal(t, "leaf", children[0].ID)
	})

	t.Run("Members and member count", func(t *testing.T) {
		require.NoError(t, summariesDbHandler.InsertMember(ctx, &model.SummaryMember{SummaryID: "root", MemberType: model.MemberTypeSummary, MemberID: "leaf", ContributionScore: 1}))
		require.NoError(t, summariesDbHandler.InsertMember(ctx, &model.SummaryMember{SummaryID: "leaf", MemberType: string(model.EntryTypeGuideline), MemberID: "g2", ContributionScore: 0.5, DisplayOrder: 2}))
		require.NoError(t, summariesDbHandler.InsertMember(ctx, &model.SummaryMember{SummaryID: "leaf", MemberType: string(model.EntryTypeGuideline), MemberID: "g1", ContributionScore: 0.9, DisplayOrder: 1}))

		err := summariesDbHandler.InsertMember(ctx, &model.SummaryMember{SummaryID: "leaf", MemberType: "recipe", MemberID: "x"})
		assert.True(t, errors.Is(err, helper.ErrInvalidInput))

		members, err := summariesDbHandler.SelectMembers(ctx, []string{"leaf"})
		require.NoError(t, err)
		require.Len(t, members, 2)
		assert.Equal(t, "g1", members[0].MemberID, "Expected members in display order")
		assert.Equal(t, "g2", members[1].MemberID)

		selected, err := summariesDbHandler.SelectSummary(ctx, "leaf")
		require.NoError(t, err)
		assert.Equal(t, 2, selected.MemberCount)
	})

	t.Run("Increment access count", func(t *testing.T) {
		require.NoError(t, summariesDbHandler.IncrementAccessCount(ctx, "leaf"))
		require.NoError(t, summariesDbHandler.IncrementAccessCount(ctx, "leaf"))

		selected, err := summariesDbHandler.SelectSummary(ctx, "leaf")
		require.NoError(t, err)
		assert.Equal(t, 2, selected.AccessCount)
		assert.NotNil(t, selected.LastAccessedAt)

		err = summariesDbHandler.IncrementAccessCount(ctx, "missing")
		assert.True(t, errors.Is(err, helper.ErrNotFound))
	})
}
