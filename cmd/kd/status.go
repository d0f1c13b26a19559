package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/groblegark/kdeps/internal/model"
)

// setStatus writes one issue's status and prints every resulting change,
// including dependents that became blocked or open.
func setStatus(cmd *cobra.Command, id string, status model.Status) error {
	changes, err := graphClient.SetStatus(cmd.Context(), id, status)
	if err != nil {
		return fmt.Errorf("setting status of %s: %w", id, err)
	}
	out := cmd.OutOrStdout()
	if !jsonOutput && len(changes) == 0 {
		fmt.Fprintf(out, "%s: unchanged\n", id)
		return nil
	}
	return printChanges(out, changes)
}

var closeCmd = &cobra.Command{
	Use:     "close <id>",
	Short:   "Close an issue and unblock its dependents",
	GroupID: "issues",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setStatus(cmd, args[0], model.StatusClosed)
	},
}

var reopenCmd = &cobra.Command{
	Use:     "reopen <id>",
	Short:   "Reopen a closed issue and re-block its dependents",
	GroupID: "issues",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setStatus(cmd, args[0], model.StatusOpen)
	},
}

var statusCmd = &cobra.Command{
	Use:       "status <id> <status>",
	Short:     "Set the status of an issue",
	GroupID:   "issues",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"open", "in_progress", "review", "blocked", "deferred", "closed"},
	RunE: func(cmd *cobra.Command, args []string) error {
		status := model.Status(args[1])
		if !status.IsValid() {
			return fmt.Errorf("invalid status %q", args[1])
		}
		return setStatus(cmd, args[0], status)
	},
}
