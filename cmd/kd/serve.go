package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/groblegark/kdeps/internal/config"
	"github.com/groblegark/kdeps/internal/events"
	"github.com/groblegark/kdeps/internal/server"
	kdsync "github.com/groblegark/kdeps/internal/sync"
	"github.com/groblegark/kdeps/internal/telemetry"
	"github.com/groblegark/kdeps/internal/watch"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var serveCmd = &cobra.Command{
	Use:               "serve",
	Short:             "Serve the graph over HTTP and gRPC",
	GroupID:           "system",
	Args:              cobra.NoArgs,
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		cfg, err := config.LoadDir(kdDir)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

// serve runs every server component until ctx is cancelled or one of them
// fails, then shuts the rest down.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdownTracing, err := telemetry.Init(ctx, cfg.Trace, os.Stderr, "kd", version)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error("error flushing traces", "err", err)
		}
	}()

	hub := server.NewHub()
	publisher := events.Fanout{hub}
	if cfg.NATSURL != "" {
		nats, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			return err
		}
		publisher = append(publisher, nats)
		logger.Info("events enabled", "nats_url", cfg.NATSURL)
	} else {
		logger.Info("NATS events disabled (KD_NATS_URL not set)")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
	}()

	engine, closeStore, err := openEngine(ctx, cfg, logger, publisher)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error("error closing store", "err", err)
		}
	}()

	graphServer := server.NewGraphServer(engine, hub)
	grpcServer := server.NewGRPCServer(graphServer, cfg.AuthToken)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           graphServer.NewHTTPHandler(cfg.AuthToken),
		ReadHeaderTimeout: 10 * time.Second,
	}
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}
	if cfg.AuthToken == "" {
		logger.Warn("authentication disabled (KD_AUTH_TOKEN not set)")
	}

	scheduler, err := newScheduler(ctx, cfg, engine, logger)
	if err != nil {
		lis.Close()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if scheduler != nil {
		logger.Info("sync scheduler started", "interval", cfg.SyncInterval)
		g.Go(func() error { return scheduler.Run(gctx) })
	}
	g.Go(func() error {
		logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.Store == config.StoreFile {
		g.Go(func() error {
			return watch.New(cfg.IssuesDir(), engine, watch.WithLogger(logger)).Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		// Ends open event streams so the HTTP shutdown is not held up.
		_ = hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		grpcServer.GracefulStop()
		return nil
	})

	logger.Info("kd server started", "store", cfg.Store, "grpc_addr", cfg.GRPCAddr, "http_addr", cfg.HTTPAddr)
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// newScheduler builds the periodic export from the sync settings. It
// returns nil when sync is disabled or has no destination.
func newScheduler(ctx context.Context, cfg *config.Config, g kdsync.Graph, logger *slog.Logger) (*kdsync.Scheduler, error) {
	if cfg.SyncInterval <= 0 {
		return nil, nil
	}
	var dests []kdsync.Destination
	if cfg.SyncS3Bucket != "" {
		s3, err := kdsync.NewS3Destination(ctx, kdsync.S3Config{
			Bucket:   cfg.SyncS3Bucket,
			Key:      cfg.SyncS3Key,
			Region:   cfg.SyncS3Region,
			Endpoint: cfg.SyncS3Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("sync S3 destination: %w", err)
		}
		dests = append(dests, s3)
		logger.Info("sync destination enabled", "destination", s3.Name())
	}
	if cfg.SyncGitRepo != "" {
		git := kdsync.NewGitDestination(cfg.SyncGitRepo, cfg.SyncGitFile, cfg.SyncGitBranch)
		dests = append(dests, git)
		logger.Info("sync destination enabled", "destination", git.Name())
	}
	if len(dests) == 0 {
		logger.Warn("sync interval set but no destination configured")
		return nil, nil
	}
	for i, d := range dests {
		if cfg.SyncCompress {
			d = kdsync.Zstd(d)
		}
		dests[i] = kdsync.WithRetry(d, kdsync.DefaultRetryMaxElapsed)
	}
	return kdsync.NewScheduler(g, dests, cfg.SyncInterval, logger), nil
}
