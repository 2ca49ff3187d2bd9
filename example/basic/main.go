package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/siherrmann/memoria"
	"github.com/siherrmann/memoria/core/embedding"
	"github.com/siherrmann/memoria/helper"
	"github.com/siherrmann/memoria/model"
)

func main() {
	ctx := context.Background()

	dir, err := os.MkdirTemp("", "memoria-basic")
	if err != nil {
		log.Fatalf("Failed to create temp directory: %v", err)
	}
	defer os.RemoveAll(dir)

	dbConfig := &helper.DatabaseConfiguration{
		Driver: helper.DriverSQLite,
		Path:   filepath.Join(dir, "memoria.db"),
	}

	// Local sentence embeddings, downloaded on first use
	embed, err := embedding.DefaultEmbedder()
	if err != nil {
		log.Fatalf("Failed to create embedder: %v", err)
	}

	m, err := memoria.NewMemoria(dbConfig, &memoria.Options{
		Embedder: embedding.FromFunc(embedding.DefaultModelName, embed),
	})
	if err != nil {
		log.Fatalf("Failed to create memoria: %v", err)
	}
	defer m.Close()

	project := model.Scope{Type: model.ScopeTypeProject, ID: "payments"}
	if err := m.InsertScope(ctx, project, model.GlobalScope(), "Payments"); err != nil {
		log.Fatalf("Failed to insert scope: %v", err)
	}

	entries := []*model.Entry{
		{ID: "wrap-errors", Type: model.EntryTypeGuideline, Scope: model.GlobalScope(), Name: "Wrap errors", Content: "Wrap returned errors with the operation that failed.", Tags: []string{"go", "errors"}, IsActive: true},
		{ID: "slog", Type: model.EntryTypeGuideline, Scope: model.GlobalScope(), Name: "Structured logging", Content: "Log with slog and key value attributes, never with fmt.", Tags: []string{"go", "logging"}, IsActive: true},
		{ID: "retries", Type: model.EntryTypeKnowledge, Scope: project, Name: "Provider retries", Content: "The card provider times out under load; retry twice with backoff.", Tags: []string{"payments"}, IsActive: true},
		{ID: "golangci", Type: model.EntryTypeTool, Scope: model.GlobalScope(), Name: "golangci-lint", Content: "Runs the linters configured for the repository.", Tags: []string{"go", "lint"}, IsActive: true},
	}
	for _, entry := range entries {
		if err := m.InsertEntry(ctx, entry); err != nil {
			log.Fatalf("Failed to insert entry %s: %v", entry.ID, err)
		}
	}

	err = m.InsertRelation(ctx, &model.Relation{
		SourceType:   model.EntryTypeGuideline,
		SourceID:     "wrap-errors",
		RelationType: model.RelationTypeAppliesTo,
		TargetType:   model.EntryTypeKnowledge,
		TargetID:     "retries",
	})
	if err != nil {
		log.Fatalf("Failed to insert relation: %v", err)
	}

	// Hybrid query with graph expansion
	request := model.QueryRequest{
		ScopeType:       model.ScopeTypeProject,
		ScopeID:         "payments",
		Search:          "how should failures be handled -logging",
		FollowRelations: true,
	}
	response, err := m.Query(ctx, request)
	if err != nil {
		log.Fatalf("Failed to query: %v", err)
	}

	fmt.Printf("Query %q (%s):\n", request.Search, response.Telemetry.Strategy.Effective)
	for i, item := range response.Items {
		via := ""
		if item.RelatedVia != nil {
			via = " via " + item.RelatedVia.String()
		}
		fmt.Printf("%d. [%s] %s (score %.3f)%s\n", i+1, item.Type, item.Entry.Name, item.Score, via)
	}

	explanation, err := m.Explain(ctx, request)
	if err != nil {
		log.Fatalf("Failed to explain: %v", err)
	}
	fmt.Printf("\nSecond run served from cache: %t\n", explanation.CacheHit)

	// Summary hierarchy over the global guidelines
	rootID := "engineering"
	summaries := []*model.Summary{
		{ID: rootID, Scope: model.GlobalScope(), Level: 1, Title: "Engineering practices", Content: "How we write and check Go code."},
		{ID: "error-practices", Scope: model.GlobalScope(), Level: 0, ParentSummaryID: &rootID, Title: "Error handling", Content: "Wrapping and reporting errors."},
	}
	for _, summary := range summaries {
		if err := m.InsertSummary(ctx, summary); err != nil {
			log.Fatalf("Failed to insert summary: %v", err)
		}
	}
	members := []*model.SummaryMember{
		{SummaryID: rootID, MemberType: model.MemberTypeSummary, MemberID: "error-practices", ContributionScore: 1},
		{SummaryID: "error-practices", MemberType: string(model.EntryTypeGuideline), MemberID: "wrap-errors", ContributionScore: 0.9},
	}
	for _, member := range members {
		if err := m.InsertSummaryMember(ctx, member); err != nil {
			log.Fatalf("Failed to insert summary member: %v", err)
		}
	}

	minSimilarity := 0.2
	result, err := m.RetrieveHierarchical(ctx, model.HierarchicalOptions{
		Query:         "error wrapping",
		Scope:         model.GlobalScope(),
		MinSimilarity: &minSimilarity,
	})
	if err != nil {
		log.Fatalf("Failed to retrieve hierarchically: %v", err)
	}

	fmt.Printf("\nHierarchical retrieval took %.1fms over %d levels:\n", result.TotalTimeMs, len(result.Steps))
	for _, entry := range result.Entries {
		fmt.Printf("- %s:%s (score %.3f) path %v\n", entry.Type, entry.ID, entry.Score, entry.PathTitles)
	}
}
