package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/groblegark/kdeps/internal/client"
	"github.com/groblegark/kdeps/internal/config"
)

// Transports accepted by --transport.
const (
	transportLocal = "local"
	transportHTTP  = "http"
	transportGRPC  = "grpc"
)

var (
	serverAddr string
	httpURL    string
	transport  string
	authToken  string
	kdDir      string
	jsonOutput bool

	graphClient client.GraphClient
)

func defaultTransport() string {
	if s := os.Getenv("KD_TRANSPORT"); s != "" {
		return s
	}
	if t := activeRemote().Transport; t != "" {
		return t
	}
	return transportLocal
}

func defaultHTTPURL() string {
	if s := os.Getenv("KD_HTTP_URL"); s != "" {
		return s
	}
	if u := activeRemote().HTTPURL; u != "" {
		return u
	}
	return "http://localhost:8080"
}

func defaultServer() string {
	if s := os.Getenv("KD_SERVER"); s != "" {
		return s
	}
	if u := activeRemote().Addr; u != "" {
		return u
	}
	return "localhost:9090"
}

func defaultToken() string {
	if s := os.Getenv("KD_AUTH_TOKEN"); s != "" {
		return s
	}
	return activeRemote().Token
}

func defaultDir() string {
	if s := os.Getenv("KD_DIR"); s != "" {
		return s
	}
	return ".kd"
}

var rootCmd = &cobra.Command{
	Use:           "kd <command>",
	Short:         "Issue dependency graph",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd.Context())
		if err != nil {
			return err
		}
		graphClient = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if graphClient != nil {
			_ = graphClient.Close()
			graphClient = nil
		}
	},
}

// newClient connects to the graph over the selected transport.
func newClient(ctx context.Context) (client.GraphClient, error) {
	switch transport {
	case transportLocal:
		cfg, err := config.LoadDir(kdDir)
		if err != nil {
			return nil, err
		}
		engine, closeFn, err := openEngine(ctx, cfg, quietLogger(), nil)
		if err != nil {
			return nil, err
		}
		return client.NewLocalClient(engine, closeFn), nil
	case transportHTTP:
		return client.NewHTTPClient(httpURL, authToken), nil
	case transportGRPC:
		c, err := client.NewGRPCClient(serverAddr, authToken)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to server: %w", err)
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown transport %q (must be local, http or grpc)", transport)
}

// noClient replaces the root pre-run for commands that never talk to a graph.
func noClient(*cobra.Command, []string) error { return nil }

func init() {
	rootCmd.PersistentFlags().StringVar(&transport, "transport", defaultTransport(), "transport (local, http or grpc)")
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", defaultHTTPURL(), "HTTP server URL")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", defaultServer(), "gRPC server address")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", defaultToken(), "bearer token for http and grpc")
	rootCmd.PersistentFlags().StringVar(&kdDir, "dir", defaultDir(), "kd directory for the local transport")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "graph", Title: "Graph:"},
		&cobra.Group{ID: "issues", Title: "Issues:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Graph
	rootCmd.AddCommand(depCmd)
	rootCmd.AddCommand(readyCmd)
	rootCmd.AddCommand(topoCmd)
	rootCmd.AddCommand(depsCmd)

	// Issues
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(closeCmd)
	rootCmd.AddCommand(reopenCmd)
	rootCmd.AddCommand(statusCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
