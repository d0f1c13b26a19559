package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/groblegark/kdeps/internal/client"
	"github.com/groblegark/kdeps/internal/config"
	"github.com/groblegark/kdeps/internal/events"
	"github.com/groblegark/kdeps/internal/graph"
	"github.com/groblegark/kdeps/internal/ui"
	"github.com/groblegark/kdeps/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow graph changes",
	Long: `Follow graph changes.

With a NATS URL (--nats, KD_NATS_URL or the active remote) every kd event
is printed as it is published. Otherwise, on the local transport, the issue
directory is watched and the edge index is caught up after each edit made
outside kd.`,
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		natsURL, _ := cmd.Flags().GetString("nats")
		topic, _ := cmd.Flags().GetString("topic")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if natsURL != "" {
			return watchNATS(ctx, cmd.OutOrStdout(), natsURL, topic)
		}
		local, ok := graphClient.(*client.LocalClient)
		if !ok {
			return fmt.Errorf("watch needs a NATS URL or the local transport")
		}
		cfg, err := config.LoadDir(kdDir)
		if err != nil {
			return err
		}
		if cfg.Store != config.StoreFile {
			return fmt.Errorf("watch needs a NATS URL when the store is %s", cfg.Store)
		}
		return watchFiles(ctx, cmd.OutOrStdout(), cfg.IssuesDir(), local.Engine())
	},
}

func defaultNATSURL() string {
	if s := os.Getenv("KD_NATS_URL"); s != "" {
		return s
	}
	return activeRemote().NATSURL
}

// watchNATS prints each event published on topic, prefixed by its subject,
// until ctx ends. With --json only the payload is printed.
func watchNATS(ctx context.Context, out io.Writer, url, topic string) error {
	logger := quietLogger()
	sub, err := events.NewNATSSubscriber(url,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(*nats.Conn) {
			logger.Warn("nats reconnected")
		}),
	)
	if err != nil {
		return err
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(topic)
	if err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if jsonOutput {
				fmt.Fprintln(out, string(msg.Data))
				continue
			}
			fmt.Fprintf(out, "%s %s\n", ui.RenderMuted(msg.Topic), msg.Data)
		}
	}
}

// watchFiles keeps the index caught up with issue files until ctx ends and
// reports each refresh that changed it.
func watchFiles(ctx context.Context, out io.Writer, dir string, engine *graph.Engine) error {
	fmt.Fprintf(out, "Watching %s\n", dir)
	w := watch.New(dir, engine,
		watch.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, nil))),
		watch.OnRefresh(func(res *graph.RebuildResult) {
			if res.Added == 0 && res.Removed == 0 {
				return
			}
			if jsonOutput {
				_ = printJSON(out, res)
				return
			}
			fmt.Fprintf(out, "Index caught up: %d edges (%d added, %d removed)\n", res.Total, res.Added, res.Removed)
		}),
	)
	return w.Run(ctx)
}

func init() {
	watchCmd.Flags().String("nats", defaultNATSURL(), "NATS URL to follow events from")
	watchCmd.Flags().String("topic", events.TopicAll, "event topic (NATS wildcards allowed)")
}
