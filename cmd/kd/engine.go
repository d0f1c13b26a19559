package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/afero"

	"github.com/groblegark/kdeps/internal/config"
	"github.com/groblegark/kdeps/internal/events"
	"github.com/groblegark/kdeps/internal/graph"
	"github.com/groblegark/kdeps/internal/index"
	"github.com/groblegark/kdeps/internal/store"
	"github.com/groblegark/kdeps/internal/store/filestore"
	"github.com/groblegark/kdeps/internal/store/postgres"
)

// openEngine opens the configured store and its edge index backend and
// returns an engine over them. The returned func closes the store.
func openEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger, publisher events.Publisher) (*graph.Engine, func() error, error) {
	var (
		s       store.Store
		backend index.Backend
	)
	switch cfg.Store {
	case config.StorePostgres:
		pg, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		s, backend = pg, postgres.NewIndexBackend(pg.DB())
	default:
		fs, err := filestore.Open(cfg.IssuesDir())
		if err != nil {
			return nil, nil, fmt.Errorf("open issue store: %w", err)
		}
		s, backend = fs, index.NewFileBackend(afero.NewOsFs(), cfg.IndexPath())
	}

	opts := []graph.Option{graph.WithLogger(logger)}
	if publisher != nil {
		opts = append(opts, graph.WithPublisher(publisher))
	}
	return graph.New(s, index.New(backend), opts...), s.Close, nil
}

// quietLogger is used by one-shot commands: only warnings reach stderr.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
