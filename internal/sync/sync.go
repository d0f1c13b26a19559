package sync

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Destination receives each graph export.
type Destination interface {
	// Name identifies the destination in logs and errors.
	Name() string
	Write(ctx context.Context, data []byte) error
}

// Scheduler exports the graph on an interval and hands the payload to each
// destination. A destination is skipped while the graph is unchanged since
// its last successful write.
type Scheduler struct {
	graph    Graph
	dests    []Destination
	interval time.Duration
	logger   *slog.Logger

	// last holds, per destination, the digest of the export it last took.
	last map[string][sha256.Size]byte
}

func NewScheduler(g Graph, dests []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		graph:    g,
		dests:    dests,
		interval: interval,
		logger:   logger,
		last:     make(map[string][sha256.Size]byte),
	}
}

// Run syncs immediately and then on every tick until ctx is done. Failed
// syncs are logged and retried on the next tick.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.SyncNow(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("sync failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// SyncNow exports once and returns how many destinations were written.
// Every destination is attempted; failures are joined.
func (s *Scheduler) SyncNow(ctx context.Context) (int, error) {
	var buf bytes.Buffer
	if err := ExportJSONL(ctx, s.graph, &buf); err != nil {
		return 0, fmt.Errorf("export: %w", err)
	}
	data := buf.Bytes()
	sum := contentDigest(data)

	var (
		written int
		errs    []error
	)
	for _, d := range s.dests {
		name := d.Name()
		if prev, ok := s.last[name]; ok && prev == sum {
			continue
		}
		if err := d.Write(ctx, data); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		s.last[name] = sum
		written++
	}
	if written > 0 {
		s.logger.Info("graph exported", "destinations", written, "bytes", len(data))
	}
	return written, errors.Join(errs...)
}

// contentDigest hashes an export without its header line, which carries
// the export time.
func contentDigest(export []byte) [sha256.Size]byte {
	if i := bytes.IndexByte(export, '\n'); i >= 0 {
		export = export[i+1:]
	}
	return sha256.Sum256(export)
}
