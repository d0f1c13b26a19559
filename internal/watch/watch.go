// Package watch keeps the edge index caught up while issue files are edited
// outside kd.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/groblegark/kdeps/internal/graph"
	"github.com/groblegark/kdeps/internal/store/filestore"
)

// DefaultDebounce is how long the watcher waits after the last change before
// refreshing.
const DefaultDebounce = 200 * time.Millisecond

// Refresher is the part of the engine the watcher drives.
type Refresher interface {
	Refresh(ctx context.Context) (*graph.RebuildResult, error)
}

// Watcher refreshes the index whenever issue files in a directory change.
type Watcher struct {
	dir       string
	refresher Refresher
	debounce  time.Duration
	logger    *slog.Logger
	onRefresh func(*graph.RebuildResult)
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before a refresh.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// OnRefresh registers a callback run after every successful refresh.
func OnRefresh(fn func(*graph.RebuildResult)) Option {
	return func(w *Watcher) { w.onRefresh = fn }
}

// New returns a watcher for the issue files in dir.
func New(dir string, r Refresher, opts ...Option) *Watcher {
	w := &Watcher{
		dir:       dir,
		refresher: r,
		debounce:  DefaultDebounce,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run refreshes once, then watches until ctx is cancelled. Bursts of events
// collapse into one refresh.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.refresh(ctx)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "dir", w.dir, "err", err)

		case <-timer.C:
			w.refresh(ctx)

		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Watcher) refresh(ctx context.Context) {
	res, err := w.refresher.Refresh(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn("index refresh failed", "err", err)
		}
		return
	}
	if res.Added > 0 || res.Removed > 0 {
		w.logger.Info("index refreshed from disk", "added", res.Added, "removed", res.Removed, "total", res.Total)
	}
	if w.onRefresh != nil {
		w.onRefresh(res)
	}
}

// relevant reports whether event touches an issue file. Temp files written
// during atomic saves are dotfiles and are skipped.
func relevant(event fsnotify.Event) bool {
	if _, ok := filestore.IDFromPath(event.Name); !ok {
		return false
	}
	return event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}
