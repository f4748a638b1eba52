// Package resilience provides the call-guarding primitives shared by the
// retrieval and generation paths: a circuit breaker for flaky backends and
// a token-bucket rate limiter for paid ones.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the breaker's position in its closed/open/half-open cycle.
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
	}
	return "unknown"
}

// ErrCircuitOpen is returned without invoking the callee while the breaker
// rejects traffic.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerOpts tunes the breaker. Zero fields take the defaults.
type BreakerOpts struct {
	// FailThreshold is the run of consecutive failures that opens the breaker.
	FailThreshold int
	// Timeout is how long an open breaker rejects before probing again.
	Timeout time.Duration
	// HalfOpenMax bounds concurrent probe calls while half-open.
	HalfOpenMax int
}

// DefaultBreakerOpts are the defaults used across the services.
var DefaultBreakerOpts = BreakerOpts{
	FailThreshold: 5,
	Timeout:       30 * time.Second,
	HalfOpenMax:   1,
}

// Breaker is a consecutive-failure circuit breaker. After FailThreshold
// failures in a row it rejects every call for Timeout, then lets up to
// HalfOpenMax probes through; one probe success closes it again.
type Breaker struct {
	opts BreakerOpts
	now  func() time.Time

	mu        sync.Mutex
	state     State
	streak    int       // consecutive failures while closed
	openUntil time.Time // rejection deadline while open
	probes    int       // probes admitted this half-open window
}

// NewBreaker builds a closed breaker, filling unset options from
// DefaultBreakerOpts.
func NewBreaker(opts BreakerOpts) *Breaker {
	if opts.FailThreshold <= 0 {
		opts.FailThreshold = DefaultBreakerOpts.FailThreshold
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultBreakerOpts.Timeout
	}
	if opts.HalfOpenMax <= 0 {
		opts.HalfOpenMax = DefaultBreakerOpts.HalfOpenMax
	}
	return &Breaker{opts: opts, now: time.Now}
}

// State reports the breaker's current state, applying the open to half-open
// transition if the rejection window has lapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

func (b *Breaker) stateLocked() State {
	if b.state == StateOpen && !b.now().Before(b.openUntil) {
		b.state = StateHalfOpen
		b.probes = 0
	}
	return b.state
}

// Call runs f unless the breaker is rejecting, and feeds the outcome back
// into the breaker's state. The callee's error is returned as-is.
func (b *Breaker) Call(ctx context.Context, f func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := f(ctx)
	b.record(err)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.stateLocked() {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if b.probes >= b.opts.HalfOpenMax {
			return ErrCircuitOpen
		}
		b.probes++
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		if b.state == StateHalfOpen {
			b.state = StateClosed
		}
		b.streak = 0
		return
	}
	b.streak++
	if b.state == StateHalfOpen || b.streak >= b.opts.FailThreshold {
		b.trip()
	}
}

// trip opens the breaker for a fresh rejection window. Must hold mu.
func (b *Breaker) trip() {
	b.state = StateOpen
	b.openUntil = b.now().Add(b.opts.Timeout)
	b.streak = 0
	b.probes = 0
}
