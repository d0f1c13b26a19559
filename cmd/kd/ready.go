package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var readyCmd = &cobra.Command{
	Use:     "ready",
	Short:   "List issues with no unresolved blockers",
	GroupID: "graph",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		issues, err := graphClient.Ready(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing ready issues: %w", err)
		}
		return printIssues(cmd.OutOrStdout(), issues, "No ready issues.")
	},
}

var topoCmd = &cobra.Command{
	Use:     "topo",
	Short:   "List open issues in dependency order",
	Long:    "List every non-closed issue so that each appears after all of its blockers.\nTies are broken by priority, then id.",
	GroupID: "graph",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		issues, err := graphClient.Topo(cmd.Context())
		if err != nil {
			return fmt.Errorf("sorting issues: %w", err)
		}
		return printIssues(cmd.OutOrStdout(), issues, "No open issues.")
	},
}
