package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/siherrmann/memoria"
	"github.com/siherrmann/memoria/helper"
	"github.com/siherrmann/memoria/model"
	"github.com/spf13/cobra"
)

// seedFile is the JSON layout read by the seed command.
type seedFile struct {
	Scopes []struct {
		Scope  model.Scope `json:"scope"`
		Parent model.Scope `json:"parent"`
		Name   string      `json:"name"`
	} `json:"scopes"`
	Entries   []*model.Entry         `json:"entries"`
	Relations []*model.Relation      `json:"relations"`
	Summaries []*model.Summary       `json:"summaries"`
	Members   []*model.SummaryMember `json:"members"`
}

// seedCounts reports what the seed command stored.
type seedCounts struct {
	Scopes    int `json:"scopes"`
	Entries   int `json:"entries"`
	Relations int `json:"relations"`
	Summaries int `json:"summaries"`
	Members   int `json:"members"`
}

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "seed <file.json>",
		Short: "Load scopes, entries, relations and summaries from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE:  runSeed,
	})
}

func runSeed(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return helper.NewError("read seed file", err)
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return helper.Errorf(helper.ErrInvalidInput, "parse seed file: %v", err)
	}

	m, err := openMemoria()
	if err != nil {
		return err
	}
	defer m.Close()

	counts, err := loadSeed(cmd.Context(), m, &seed)
	if err != nil {
		return err
	}
	return printJSON(cmd, counts)
}

// loadSeed stores summaries in file order, so parents must precede children.
func loadSeed(ctx context.Context, m *memoria.Memoria, seed *seedFile) (seedCounts, error) {
	var counts seedCounts

	for _, s := range seed.Scopes {
		if err := m.InsertScope(ctx, s.Scope, s.Parent, s.Name); err != nil {
			return counts, err
		}
		counts.Scopes++
	}
	for _, entry := range seed.Entries {
		if err := m.InsertEntry(ctx, entry); err != nil {
			return counts, err
		}
		counts.Entries++
	}
	for _, relation := range seed.Relations {
		if err := m.InsertRelation(ctx, relation); err != nil {
			return counts, err
		}
		counts.Relations++
	}
	for _, summary := range seed.Summaries {
		if err := m.InsertSummary(ctx, summary); err != nil {
			return counts, err
		}
		counts.Summaries++
	}
	for _, member := range seed.Members {
		if err := m.InsertSummaryMember(ctx, member); err != nil {
			return counts, err
		}
		counts.Members++
	}

	return counts, nil
}
