package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/groblegark/kdeps/internal/ui"
)

// healthReport is the --json form of kd health.
type healthReport struct {
	Status    string `json:"status"`
	Transport string `json:"transport"`
	Target    string `json:"target"`
	LatencyMS int64  `json:"latency_ms"`
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the graph is reachable",
	Long: `Check that the graph is reachable over the selected transport.

Exits non-zero when the server, or the local store, reports anything but ok.`,
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		status, err := graphClient.Health(cmd.Context())
		if err != nil {
			return fmt.Errorf("%s unreachable: %w", healthTarget(), err)
		}
		rep := healthReport{
			Status:    status,
			Transport: transport,
			Target:    healthTarget(),
			LatencyMS: time.Since(start).Milliseconds(),
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			if err := printJSON(out, rep); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(out, "%s %s via %s (%dms)\n", ui.RenderHealth(rep.Status), rep.Target, rep.Transport, rep.LatencyMS)
		}
		if status != "ok" {
			return fmt.Errorf("unhealthy: %s", status)
		}
		return nil
	},
}

// healthTarget names what the selected transport talks to.
func healthTarget() string {
	switch transport {
	case transportHTTP:
		return httpURL
	case transportGRPC:
		return serverAddr
	}
	return kdDir
}
