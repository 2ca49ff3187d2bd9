package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/siherrmann/memoria"
	"github.com/siherrmann/memoria/core/embedding"
	"github.com/siherrmann/memoria/helper"
	"github.com/siherrmann/memoria/model"
)

// This example runs memoria on postgres with a shared redis query cache.
// Embeddings come from an OpenAI compatible API if OPENAI_API_KEY is set,
// otherwise queries run lexical only.
func main() {
	ctx := context.Background()

	// Start test containers for postgres and redis
	pgTeardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer pgTeardown(ctx)

	redisTeardown, redisAddr, err := helper.MustStartRedisContainer()
	if err != nil {
		log.Fatalf("Failed to start redis container: %v", err)
	}
	defer redisTeardown(ctx)

	dbConfig := &helper.DatabaseConfiguration{
		Driver:   helper.DriverPostgres,
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}

	registry := prometheus.NewRegistry()
	options := &memoria.Options{
		Embedder: embedding.NewOpenAIProvider(embedding.OpenAIConfig{
			APIKey: os.Getenv("OPENAI_API_KEY"),
		}),
		RedisURL:   "redis://" + redisAddr + "/0",
		Registerer: registry,
	}

	// Two instances share one store and one cache
	writer, err := memoria.NewMemoria(dbConfig, options)
	if err != nil {
		log.Fatalf("Failed to create writer: %v", err)
	}
	defer writer.Close()

	options.Registerer = nil
	reader, err := memoria.NewMemoria(dbConfig, options)
	if err != nil {
		log.Fatalf("Failed to create reader: %v", err)
	}
	defer reader.Close()

	org := model.Scope{Type: model.ScopeTypeOrg, ID: "acme"}
	project := model.Scope{Type: model.ScopeTypeProject, ID: "checkout"}
	session := model.Scope{Type: model.ScopeTypeSession, ID: "incident-42"}
	scopes := []struct {
		scope, parent model.Scope
		name          string
	}{
		{org, model.GlobalScope(), "Acme"},
		{project, org, "Checkout"},
		{session, project, "Incident 42"},
	}
	for _, s := range scopes {
		if err := writer.InsertScope(ctx, s.scope, s.parent, s.name); err != nil {
			log.Fatalf("Failed to insert scope %s: %v", s.scope, err)
		}
	}

	priority := 90
	entries := []*model.Entry{
		{ID: "timeouts", Type: model.EntryTypeGuideline, Scope: org, Name: "Timeouts", Content: "Every outbound call carries a context deadline.", Priority: &priority, Tags: []string{"reliability"}, IsActive: true},
		{ID: "psp-outage", Type: model.EntryTypeExperience, Scope: project, Name: "Payment provider outage", Content: "Checkout failed for an hour because provider calls had no timeout.", Tags: []string{"incident"}, IsActive: true},
		{ID: "dashboards", Type: model.EntryTypeKnowledge, Scope: project, Name: "Checkout dashboards", Content: "Latency and error rate dashboards for the checkout service.", Tags: []string{"observability"}, IsActive: true},
		{ID: "notes", Type: model.EntryTypeKnowledge, Scope: session, Name: "Incident notes", Content: "Provider latency spiked at 14:02, timeouts fired as expected.", IsActive: true},
	}
	for _, entry := range entries {
		if err := writer.InsertEntry(ctx, entry); err != nil {
			log.Fatalf("Failed to insert entry %s: %v", entry.ID, err)
		}
	}

	relations := []*model.Relation{
		{SourceType: model.EntryTypeExperience, SourceID: "psp-outage", RelationType: model.RelationTypeDerivedFrom, TargetType: model.EntryTypeGuideline, TargetID: "timeouts"},
		{SourceType: model.EntryTypeKnowledge, SourceID: "notes", RelationType: model.RelationTypeRelatedTo, TargetType: model.EntryTypeExperience, TargetID: "psp-outage"},
	}
	for _, relation := range relations {
		if err := writer.InsertRelation(ctx, relation); err != nil {
			log.Fatalf("Failed to insert relation: %v", err)
		}
	}

	request := model.QueryRequest{
		ScopeType: model.ScopeTypeSession,
		ScopeID:   "incident-42",
		Search:    "provider timeout",
		RelatedTo: &model.RelatedTo{Type: model.EntryTypeKnowledge, ID: "notes", Depth: 2},
	}

	explanation, err := writer.Explain(ctx, request)
	if err != nil {
		log.Fatalf("Failed to explain query: %v", err)
	}
	printExplanation("writer", explanation)

	// The reader is answered from the shared cache
	explanation, err = reader.Explain(ctx, request)
	if err != nil {
		log.Fatalf("Failed to explain query: %v", err)
	}
	printExplanation("reader", explanation)

	families, err := registry.Gather()
	if err != nil {
		log.Fatalf("Failed to gather metrics: %v", err)
	}
	fmt.Println("\nWriter metrics:")
	for _, family := range families {
		fmt.Printf("- %s (%d series)\n", family.GetName(), len(family.GetMetric()))
	}
}

func printExplanation(name string, explanation *model.Explanation) {
	fmt.Printf("\n[%s] strategy %s -> %s, cache hit %t, %.2fms\n",
		name, explanation.Strategy, explanation.EffectiveStrategy, explanation.CacheHit, explanation.TotalMs)
	for _, stage := range explanation.Order {
		s := explanation.Stages[stage]
		fmt.Printf("  %-15s %6.2fms %5.1f%%  %s\n", stage, s.DurationMs, s.Percent, s.Detail)
	}
	if explanation.Bottleneck != nil {
		fmt.Printf("  bottleneck: %s\n", *explanation.Bottleneck)
	}
	for _, degradation := range explanation.Degradations {
		fmt.Printf("  degraded: %s\n", degradation)
	}
	for _, result := range explanation.TopResults {
		fmt.Printf("  %d. %s:%s %q score %.3f\n", result.Rank, result.Type, result.ID, result.Title, result.Score)
	}
}
