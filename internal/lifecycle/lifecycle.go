// Package lifecycle holds the process-wide shutdown flag. The health handler
// reads it so load balancers stop routing to a draining instance before the
// widget scheduler and storage are torn down.
package lifecycle

import "sync/atomic"

var shuttingDown atomic.Bool

// SetShuttingDown flips the drain flag. Set on SIGTERM/SIGINT, before the
// HTTP server shutdown begins.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}
