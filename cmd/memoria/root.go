package main

import (
	"encoding/json"
	"log/slog"
	"os"
	"strings"

	"github.com/siherrmann/memoria"
	"github.com/siherrmann/memoria/helper"
	"github.com/siherrmann/memoria/model"
	"github.com/spf13/cobra"
)

var (
	dbPath  string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "memoria",
	Short: "Query a scoped memory store",
	Long:  "Runs structured queries, hierarchical retrieval and graph traversal against a memoria store and prints JSON.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (default: $MEMORIA_DB_PATH or ~/.memoria/memoria.db)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline details to stderr")
}

// openMemoria opens the store from the environment. Logs go to stderr so
// stdout only carries JSON.
func openMemoria() (*memoria.Memoria, error) {
	if dbPath != "" {
		if err := os.Setenv("MEMORIA_DB_PATH", dbPath); err != nil {
			return nil, err
		}
	}

	config, err := helper.NewDatabaseConfiguration()
	if err != nil {
		return nil, err
	}
	options, err := memoria.OptionsFromEnv()
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	options.Logger = helper.NewLogger(os.Stderr, level)

	return memoria.NewMemoria(config, options)
}

func printJSON(cmd *cobra.Command, v any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// parseNodeRef parses "type:id".
func parseNodeRef(s string) (model.NodeRef, error) {
	typ, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return model.NodeRef{}, helper.Errorf(helper.ErrInvalidInput, "node %q must look like type:id", s)
	}
	entryType := model.EntryType(strings.ToLower(typ))
	if !entryType.Valid() && entryType != model.EntryTypeProject {
		return model.NodeRef{}, helper.Errorf(helper.ErrInvalidInput, "unknown node type %q", typ)
	}
	return model.NodeRef{Type: entryType, ID: id}, nil
}

func parseEntryTypes(values []string) ([]model.EntryType, error) {
	types := make([]model.EntryType, 0, len(values))
	for _, value := range values {
		t, err := model.ParseEntryType(value)
		if err != nil {
			return nil, helper.NewError("parse --type", err)
		}
		types = append(types, t)
	}
	return types, nil
}
