package main

import (
	"github.com/siherrmann/memoria/model"
	"github.com/spf13/cobra"
)

// traversalOutput is the JSON shape of a traversal.
type traversalOutput struct {
	Start    model.NodeRef   `json:"start"`
	Nodes    []model.NodeRef `json:"nodes"`
	Strategy string          `json:"strategy"`
	FellBack bool            `json:"fell_back"`
}

func init() {
	traverse := &cobra.Command{
		Use:   "traverse <type:id>",
		Short: "List nodes reachable from a node",
		Args:  cobra.ExactArgs(1),
		RunE:  runTraverse,
	}
	traverse.Flags().Int("depth", 1, "Maximum hop count (1-5)")
	traverse.Flags().String("direction", "both", "Edge direction: forward, backward or both")
	traverse.Flags().String("relation", "", "Relation type to follow (default: all)")
	traverse.Flags().Int("max-results", model.DefaultTraversalMaxResults, "Maximum nodes returned")

	relations := &cobra.Command{
		Use:   "relations <type:id>",
		Short: "List the direct relations of a node",
		Args:  cobra.ExactArgs(1),
		RunE:  runRelations,
	}
	relations.Flags().String("direction", "both", "Edge direction: forward, backward or both")
	relations.Flags().String("relation", "", "Relation type (default: all)")

	rootCmd.AddCommand(traverse, relations)
}

func runTraverse(cmd *cobra.Command, args []string) error {
	start, err := parseNodeRef(args[0])
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	depth, _ := flags.GetInt("depth")
	directionName, _ := flags.GetString("direction")
	relation, _ := flags.GetString("relation")
	maxResults, _ := flags.GetInt("max-results")

	direction, err := model.ParseDirection(directionName)
	if err != nil {
		return err
	}

	m, err := openMemoria()
	if err != nil {
		return err
	}
	defer m.Close()

	reached, err := m.Traverse(cmd.Context(), model.TraversalQuery{
		Start:        start,
		Direction:    direction,
		Depth:        model.ClampDepth(depth),
		RelationType: model.RelationType(relation),
		MaxResults:   maxResults,
	})
	if err != nil {
		return err
	}

	return printJSON(cmd, traversalOutput{
		Start:    start,
		Nodes:    reached.Nodes(),
		Strategy: reached.Strategy,
		FellBack: reached.FellBack,
	})
}

func runRelations(cmd *cobra.Command, args []string) error {
	node, err := parseNodeRef(args[0])
	if err != nil {
		return err
	}
	direction, _ := cmd.Flags().GetString("direction")
	relation, _ := cmd.Flags().GetString("relation")

	m, err := openMemoria()
	if err != nil {
		return err
	}
	defer m.Close()

	relations, err := m.Relations(cmd.Context(), node, model.Direction(direction), model.RelationType(relation))
	if err != nil {
		return err
	}
	if relations == nil {
		relations = []*model.Relation{}
	}
	return printJSON(cmd, relations)
}
