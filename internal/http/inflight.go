package http

import (
	"context"
	"sync/atomic"
	"time"
)

// InFlightTracker counts requests currently inside the handler chain. Shutdown
// drains on it after the listener closes, so a slow forced refresh finishes
// writing its response before the widget store is closed underneath it.
type InFlightTracker struct {
	count atomic.Int64
}

// Increment records a request entering the handler chain.
func (t *InFlightTracker) Increment() {
	t.count.Add(1)
}

// Decrement records a request leaving the handler chain.
func (t *InFlightTracker) Decrement() {
	t.count.Add(-1)
}

// Count returns the number of requests currently in flight.
func (t *InFlightTracker) Count() int64 {
	return t.count.Load()
}

// WaitForZero polls at checkInterval until the count reaches zero or ctx is
// done, whichever comes first.
func (t *InFlightTracker) WaitForZero(ctx context.Context, checkInterval time.Duration) error {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	for t.Count() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// globalInFlightTracker is fed by MetricsMiddleware and drained by main during
// graceful shutdown.
var globalInFlightTracker = &InFlightTracker{}

// InFlightCount returns the process-wide in-flight request count.
func InFlightCount() int64 {
	return globalInFlightTracker.Count()
}

// WaitForInFlight blocks until all in-flight requests complete or ctx is done.
func WaitForInFlight(ctx context.Context, checkInterval time.Duration) error {
	return globalInFlightTracker.WaitForZero(ctx, checkInterval)
}
