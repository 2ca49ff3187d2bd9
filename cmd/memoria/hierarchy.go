package main

import (
	"github.com/siherrmann/memoria/model"
	"github.com/spf13/cobra"
)

func init() {
	retrieve := &cobra.Command{
		Use:   "hierarchical",
		Short: "Retrieve entries through the summary hierarchy",
		RunE:  runHierarchical,
	}
	retrieve.Flags().StringP("query", "q", "", "Query text (required)")
	retrieve.Flags().String("scope-type", string(model.ScopeTypeGlobal), "Scope type of the hierarchy")
	retrieve.Flags().String("scope-id", "", "Scope id of the hierarchy")
	retrieve.Flags().Int("start-level", -1, "Level to start from (default: the top level)")
	retrieve.Flags().Int("expansion", model.DefaultExpansionFactor, "Summaries kept per level")
	retrieve.Flags().Float64("min-similarity", model.DefaultMinSimilarity, "Minimum summary similarity")
	retrieve.Flags().Int("max-results", model.DefaultHierarchicalMaxResults, "Maximum entries returned")
	retrieve.Flags().StringSliceP("type", "t", nil, "Entry types to return (default: all)")
	_ = retrieve.MarkFlagRequired("query")

	drillDown := &cobra.Command{
		Use:   "drilldown <summary-id>",
		Short: "Show a summary with its children and members",
		Args:  cobra.ExactArgs(1),
		RunE:  runDrillDown,
	}

	rootCmd.AddCommand(retrieve, drillDown)
}

func runHierarchical(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	query, _ := flags.GetString("query")
	scopeType, _ := flags.GetString("scope-type")
	scopeID, _ := flags.GetString("scope-id")
	startLevel, _ := flags.GetInt("start-level")
	expansion, _ := flags.GetInt("expansion")
	minSimilarity, _ := flags.GetFloat64("min-similarity")
	maxResults, _ := flags.GetInt("max-results")
	typeNames, _ := flags.GetStringSlice("type")

	scope, err := model.NewScope(model.ScopeType(scopeType), scopeID)
	if err != nil {
		return err
	}
	types, err := parseEntryTypes(typeNames)
	if err != nil {
		return err
	}

	options := model.HierarchicalOptions{
		Query:           query,
		Scope:           scope,
		ExpansionFactor: &expansion,
		MinSimilarity:   &minSimilarity,
		MaxResults:      maxResults,
		EntryTypes:      types,
	}
	if flags.Changed("start-level") {
		options.StartLevel = &startLevel
	}

	m, err := openMemoria()
	if err != nil {
		return err
	}
	defer m.Close()

	result, err := m.RetrieveHierarchical(cmd.Context(), options)
	if err != nil {
		return err
	}
	return printJSON(cmd, result)
}

func runDrillDown(cmd *cobra.Command, args []string) error {
	m, err := openMemoria()
	if err != nil {
		return err
	}
	defer m.Close()

	result, err := m.DrillDown(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd, result)
}
