// Package breaker implements a process-local circuit breaker around external
// calls. Each named dependency gets its own instance; state is intentionally
// not shared across processes.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned when the breaker rejects a call without attempting it.
// Callers must not retry inline; the pipeline's failure policy decides.
var ErrOpen = errors.New("circuit open")

// State is the current breaker state.
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
		return "half-open"
	default:
		return "unknown"
	}
}

// Settings configures a Breaker.
type Settings struct {
	// FailureThreshold is the count of consecutive failures that opens the breaker.
	FailureThreshold int
	// ResetInterval is how long the breaker stays open before allowing a probe.
	ResetInterval time.Duration
	// CallTimeout bounds each individual call. Zero disables the per-call timeout.
	CallTimeout time.Duration
}

// Breaker guards one named external dependency.
type Breaker struct {
	name     string
	settings Settings

	mu        sync.Mutex
	state     State
	failures  int
	openUntil time.Time
	probing   bool

	now func() time.Time
}

// New creates a Breaker in the closed state.
func New(name string, settings Settings) *Breaker {
	if settings.FailureThreshold <= 0 {
		settings.FailureThreshold = 3
	}
	if settings.ResetInterval <= 0 {
		settings.ResetInterval = 30 * time.Second
	}
	return &Breaker{
		name:     name,
		settings: settings,
		state:    StateClosed,
		now:      time.Now,
	}
}

// Execute runs fn under the breaker's policy. The context passed to fn carries
// the per-call timeout; fn must honor cancellation.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.before(); err != nil {
		return err
	}

	callCtx := ctx
	if b.settings.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, b.settings.CallTimeout)
		defer cancel()
	}

	err := fn(callCtx)
	b.after(err)
	return err
}

// State returns the current state, refreshing an expired open window first.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && !b.now().Before(b.openUntil) {
		return StateHalfOpen
	}
	return b.state
}

// before decides whether the call may proceed.
func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Before(b.openUntil) {
			return fmt.Errorf("%w: %s retries at %s", ErrOpen, b.name, b.openUntil.UTC().Format(time.RFC3339))
		}
		// Reset interval elapsed: allow exactly one probe through.
		b.state = StateHalfOpen
		b.probing = true
		slog.Info("breaker half-open, probing", "breaker", b.name)
		return nil
	case StateHalfOpen:
		if b.probing {
			return fmt.Errorf("%w: %s probe in flight", ErrOpen, b.name)
		}
		b.probing = true
		return nil
	}
	return nil
}

// after records the call outcome and transitions state.
func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if b.state != StateClosed {
			slog.Info("breaker closed", "breaker", b.name)
		}
		b.state = StateClosed
		b.failures = 0
		b.probing = false
		return
	}

	switch b.state {
	case StateHalfOpen:
		// Probe failed: back to open, reset the probe-eligible time.
		b.trip()
	case StateClosed:
		b.failures++
		if b.failures >= b.settings.FailureThreshold {
			b.trip()
		}
	}
}

func (b *Breaker) trip() {
	b.state = StateOpen
	b.failures = 0
	b.probing = false
	b.openUntil = b.now().Add(b.settings.ResetInterval)
	slog.Warn("breaker opened", "breaker", b.name, "retry_at", b.openUntil.UTC())
}
