package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/groblegark/kdeps/internal/graph"
)

var depsCmd = &cobra.Command{
	Use:   "deps [<root>]",
	Short: "Export the dependency graph as text, dot or mermaid",
	Long: `Export the dependency graph.

With a root id only the root and the issues it transitively blocks are
shown. The root may also be given with --root.`,
	GroupID: "graph",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		formatName, _ := cmd.Flags().GetString("format")
		root, _ := cmd.Flags().GetString("root")
		if len(args) == 1 {
			root = args[0]
		}
		format, err := graph.ParseFormat(formatName)
		if err != nil {
			return err
		}
		out, err := graphClient.Export(cmd.Context(), format, root)
		if err != nil {
			return fmt.Errorf("exporting graph: %w", err)
		}
		_, err = io.WriteString(cmd.OutOrStdout(), out)
		return err
	},
}

func init() {
	depsCmd.Flags().StringP("format", "f", string(graph.FormatText), "output format (text, dot or mermaid)")
	depsCmd.Flags().String("root", "", "only show what this issue transitively blocks")
}
