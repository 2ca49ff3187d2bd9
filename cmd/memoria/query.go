package main

import (
	"github.com/siherrmann/memoria/model"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a structured query",
		Long: `Run a structured query through the retrieval pipeline.

The search term supports exclusions: -word drops entries containing the
word, -"some phrase" drops entries containing the phrase.`,
		RunE: runQuery,
	}

	cmd.Flags().String("scope-type", string(model.ScopeTypeGlobal), "Scope type: global, org, project or session")
	cmd.Flags().String("scope-id", "", "Scope id, required for non-global scopes")
	cmd.Flags().StringP("search", "s", "", "Search term")
	cmd.Flags().StringSliceP("type", "t", nil, "Entry types to return (default: all)")
	cmd.Flags().StringSlice("tag", nil, "Return entries with any of these tags")
	cmd.Flags().StringSlice("require-tag", nil, "Return entries with all of these tags")
	cmd.Flags().StringSlice("exclude-tag", nil, "Drop entries with any of these tags")
	cmd.Flags().String("related-to", "", "Only return entries reachable from this type:id node")
	cmd.Flags().Int("depth", 1, "Hop depth for --related-to")
	cmd.Flags().String("direction", "both", "Edge direction for --related-to: forward, backward or both")
	cmd.Flags().String("relation", "", "Relation type for --related-to (default: all)")
	cmd.Flags().Bool("follow", false, "Add entries related to the best matches")
	cmd.Flags().IntP("limit", "l", 0, "Page size (default from pipeline config)")
	cmd.Flags().Int("offset", 0, "Page offset")
	cmd.Flags().Bool("explain", false, "Print the stage breakdown instead of the results")

	rootCmd.AddCommand(cmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	scopeType, _ := flags.GetString("scope-type")
	scopeID, _ := flags.GetString("scope-id")
	search, _ := flags.GetString("search")
	typeNames, _ := flags.GetStringSlice("type")
	tags, _ := flags.GetStringSlice("tag")
	requireTags, _ := flags.GetStringSlice("require-tag")
	excludeTags, _ := flags.GetStringSlice("exclude-tag")
	relatedTo, _ := flags.GetString("related-to")
	follow, _ := flags.GetBool("follow")
	limit, _ := flags.GetInt("limit")
	offset, _ := flags.GetInt("offset")
	explain, _ := flags.GetBool("explain")

	types, err := parseEntryTypes(typeNames)
	if err != nil {
		return err
	}

	request := model.QueryRequest{
		Types:           types,
		Search:          search,
		ScopeType:       model.ScopeType(scopeType),
		ScopeID:         scopeID,
		Tags:            tags,
		RequireTags:     requireTags,
		ExcludeTags:     excludeTags,
		FollowRelations: follow,
		Limit:           limit,
		Offset:          offset,
	}

	if relatedTo != "" {
		anchor, err := parseNodeRef(relatedTo)
		if err != nil {
			return err
		}
		depth, _ := flags.GetInt("depth")
		direction, _ := flags.GetString("direction")
		relation, _ := flags.GetString("relation")
		request.RelatedTo = &model.RelatedTo{
			Type:         anchor.Type,
			ID:           anchor.ID,
			Depth:        depth,
			Direction:    model.Direction(direction),
			RelationType: model.RelationType(relation),
		}
	}

	m, err := openMemoria()
	if err != nil {
		return err
	}
	defer m.Close()

	if explain {
		explanation, err := m.Explain(cmd.Context(), request)
		if err != nil {
			return err
		}
		return printJSON(cmd, explanation)
	}

	response, err := m.Query(cmd.Context(), request)
	if err != nil {
		return err
	}
	return printJSON(cmd, response)
}
