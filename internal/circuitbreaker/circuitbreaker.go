// Package circuitbreaker guards the calendar API: after repeated upstream
// failures the breaker opens and month fetches fail fast instead of piling
// retries onto a dead endpoint. After a cooling period a limited number of
// probe calls decide whether to close again.
package circuitbreaker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State is the breaker position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	}
	return "unknown"
}

// ErrOpen is returned when the breaker rejects a call without running it.
type ErrOpen struct {
	Component string
}

func (e *ErrOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for %s", e.Component)
}

// Config holds breaker tuning. Zero values fall back to 5 failures to open,
// 2 probe successes to close, 30s cooling.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	Component        string
	OnStateChange    func(from, to State)
}

// CircuitBreaker tracks consecutive outcomes of upstream calls.
type CircuitBreaker struct {
	cfg Config
	now func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
}

// New creates a closed breaker.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Call runs fn unless the breaker is open and still cooling. Success and
// failure counts drive the closed -> open -> half-open -> closed cycle.
// fn's error is returned unchanged so sentinel checks keep working upstream.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := fn()
	cb.record(err == nil)
	return err
}

// admit decides whether a call may proceed, moving open -> half-open once the
// cooling period has elapsed.
func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.cfg.Timeout {
			cb.mu.Unlock()
			return &ErrOpen{Component: cb.cfg.Component}
		}
		cb.transition(StateHalfOpen)
	}
	cb.mu.Unlock()
	return nil
}

// record feeds one call outcome into the state machine.
func (cb *CircuitBreaker) record(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !success {
		cb.failures++
		cb.openedAt = cb.now()
		if cb.state == StateHalfOpen || cb.failures >= cb.cfg.FailureThreshold {
			cb.transition(StateOpen)
		}
		return
	}

	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.transition(StateClosed)
		}
	}
}

// transition moves to a new state and fires the callback. Caller holds mu;
// the callback runs under the lock, so it must not call back into the breaker.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.failures = 0
	cb.successes = 0
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}

// State returns the current breaker position.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
