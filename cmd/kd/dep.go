package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var depCmd = &cobra.Command{
	Use:     "dep",
	Short:   "Manage relationships between issues",
	GroupID: "graph",
}

var depAddCmd = &cobra.Command{
	Use:   "add <source> <relation> <target>",
	Short: "Add an edge (blocks, depends_on, parent_of or relates_to)",
	Long: `Add an edge between two issues.

A depends_on edge is stored as the equivalent blocks edge, so
"kd dep add impl depends_on api" records "api blocks impl". Adding a
blocking edge that would close a cycle is rejected with the cycle path.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := graphClient.AddEdge(cmd.Context(), args[0], args[1], args[2])
		if err != nil {
			return fmt.Errorf("adding edge: %w", err)
		}
		return printEdgeResult(cmd.OutOrStdout(), "Added", res)
	},
}

var depRemoveCmd = &cobra.Command{
	Use:   "remove <source> <relation> <target>",
	Short: "Remove an edge",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := graphClient.RemoveEdge(cmd.Context(), args[0], args[1], args[2])
		if err != nil {
			return fmt.Errorf("removing edge: %w", err)
		}
		return printEdgeResult(cmd.OutOrStdout(), "Removed", res)
	},
}

var depListCmd = &cobra.Command{
	Use:   "list [<id>]",
	Short: "List the relationships of an issue, or every edge",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if len(args) == 0 {
			edges, err := graphClient.Edges(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing edges: %w", err)
			}
			return printEdges(out, edges)
		}
		deps, err := graphClient.Deps(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("listing dependencies: %w", err)
		}
		return printDepSet(out, deps)
	},
}

var depRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the edge index from issue fields",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := graphClient.Rebuild(cmd.Context())
		if err != nil {
			return fmt.Errorf("rebuilding index: %w", err)
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, res)
		}
		fmt.Fprintf(out, "Rebuilt index: %d edges (%d added, %d removed)\n", res.Total, res.Added, res.Removed)
		return nil
	},
}

func init() {
	depCmd.AddCommand(depAddCmd)
	depCmd.AddCommand(depRemoveCmd)
	depCmd.AddCommand(depListCmd)
	depCmd.AddCommand(depRebuildCmd)
}
