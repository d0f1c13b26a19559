package sync

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultRetryMaxElapsed bounds how long a destination write is retried.
const DefaultRetryMaxElapsed = 30 * time.Second

// retryDestination retries failed writes with exponential backoff.
type retryDestination struct {
	next       Destination
	maxElapsed time.Duration
	initial    time.Duration
}

// WithRetry wraps next so failed writes are retried until maxElapsed has
// passed or the context is cancelled.
func WithRetry(next Destination, maxElapsed time.Duration) Destination {
	return &retryDestination{next: next, maxElapsed: maxElapsed, initial: backoff.DefaultInitialInterval}
}

func (d *retryDestination) Name() string { return d.next.Name() }

func (d *retryDestination) Write(ctx context.Context, data []byte) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.initial
	bo.MaxElapsedTime = d.maxElapsed
	return backoff.Retry(func() error {
		return d.next.Write(ctx, data)
	}, backoff.WithContext(bo, ctx))
}
