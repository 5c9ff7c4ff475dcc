// Package circuitbreaker sheds requests to an upstream that keeps
// failing, so a venue outage degrades into fast local errors instead of
// a pile of hung connections.
package circuitbreaker

import (
	"sync"
	"time"

	"nakula/pkg/core"
)

// State identifies the breaker position.
type State int

const (
	// StateClosed passes every request.
	StateClosed State = iota
	// StateOpen rejects every request until the cooldown elapses.
	StateOpen
	// StateHalfOpen passes probe requests to test recovery.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Defaults for zero Config fields.
const (
	DefaultFailThreshold    = 5
	DefaultSuccessThreshold = 2
	DefaultCooldown         = 30 * time.Second
)

// Config controls when the breaker trips and when it re-probes.
type Config struct {
	// FailThreshold is the run of consecutive failures that opens the
	// breaker.
	FailThreshold int
	// SuccessThreshold is the run of half-open successes that closes it
	// again.
	SuccessThreshold int
	// Cooldown is how long an open breaker rejects before admitting a
	// probe.
	Cooldown time.Duration
}

// Breaker is a consecutive-failure circuit breaker. FailThreshold
// failures in a row open it; after Cooldown it half-opens and admits
// probes until SuccessThreshold successes in a row close it, or a
// single failure re-opens it. Safe for concurrent use.
type Breaker struct {
	failThreshold    int
	successThreshold int
	cooldown         time.Duration
	clock            core.Clock

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time

	requests int64
	rejected int64
	trips    int64
}

// Option customizes a Breaker.
type Option func(*Breaker)

// WithClock substitutes the time source used for the cooldown.
func WithClock(clock core.Clock) Option {
	return func(b *Breaker) {
		b.clock = clock
	}
}

// New builds a Breaker, substituting defaults for zero Config fields.
func New(cfg Config, opts ...Option) *Breaker {
	if cfg.FailThreshold <= 0 {
		cfg.FailThreshold = DefaultFailThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultSuccessThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}

	b := &Breaker{
		failThreshold:    cfg.FailThreshold,
		successThreshold: cfg.SuccessThreshold,
		cooldown:         cfg.Cooldown,
		clock:            core.SystemClock{},
		state:            StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Allow reports whether a request may proceed. An open breaker whose
// cooldown has elapsed half-opens and admits the caller as a probe.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.requests++
	if b.state != StateOpen {
		return true
	}
	if b.clock.Now().Sub(b.openedAt) < b.cooldown {
		b.rejected++
		return false
	}
	b.state = StateHalfOpen
	b.failures = 0
	b.successes = 0
	return true
}

// Record feeds the outcome of an allowed request back into the breaker.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		if success {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.failThreshold {
			b.trip()
		}
	case StateHalfOpen:
		if !success {
			b.trip()
			return
		}
		b.successes++
		if b.successes >= b.successThreshold {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
		}
	case StateOpen:
		// A request admitted just before the trip may still land here.
	}
}

func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.clock.Now()
	b.failures = 0
	b.successes = 0
	b.trips++
}

// State returns the current breaker position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset force-closes the breaker and clears the failure run.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
}

// Snapshot is a point-in-time view of breaker activity.
type Snapshot struct {
	State    State
	Requests int64
	Rejected int64
	Trips    int64
}

// Stats returns counters accumulated since construction.
func (b *Breaker) Stats() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		State:    b.state,
		Requests: b.requests,
		Rejected: b.rejected,
		Trips:    b.trips,
	}
}
