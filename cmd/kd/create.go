package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/groblegark/kdeps/internal/client"
)

var createCmd = &cobra.Command{
	Use:     "create <title>",
	Short:   "Create an issue",
	GroupID: "issues",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		priority, _ := cmd.Flags().GetString("priority")

		issue, err := graphClient.CreateIssue(cmd.Context(), &client.CreateIssueRequest{
			ID:       id,
			Title:    strings.Join(args, " "),
			Priority: priority,
		})
		if err != nil {
			return fmt.Errorf("creating issue: %w", err)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, issue)
		}
		fmt.Fprintf(out, "Created %s: %s\n", issue.ID, issue.Title)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:     "show <id>",
	Short:   "Show an issue",
	GroupID: "issues",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		issue, err := graphClient.Issue(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("getting issue: %w", err)
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, issue)
		}
		printIssue(out, issue)
		return nil
	},
}

func init() {
	createCmd.Flags().String("id", "", "issue id (generated when empty)")
	createCmd.Flags().StringP("priority", "p", "", "low, medium, high or critical (default medium)")
}
