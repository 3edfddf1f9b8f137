// Package breaker provides a small, thread-safe circuit breaker that keeps a
// failing remote cache tier from adding latency to every request.
//
// States:
//   - Closed: calls flow normally; consecutive failures are counted.
//   - Open: calls are refused with [ErrOpen]; after OpenTimeout the breaker
//     moves to HalfOpen.
//   - HalfOpen: a limited number of probe calls are let through; enough
//     consecutive successes close the breaker, any failure reopens it.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] when the call was not attempted.
var ErrOpen = errors.New("breaker: circuit open")

// State represents the current circuit breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds the circuit breaker parameters.
type Config struct {
	// FailureThreshold is the number of consecutive failures in Closed state
	// before the breaker trips to Open.
	FailureThreshold int

	// OpenTimeout is how long the breaker stays Open before transitioning
	// to HalfOpen.
	OpenTimeout time.Duration

	// HalfOpenMaxSuccess is the number of consecutive successes required in
	// HalfOpen state to close the breaker again.
	HalfOpenMaxSuccess int

	// OnStateChange, if set, is called after every transition. It runs with
	// the breaker unlocked.
	OnStateChange func(from, to State)
}

// DefaultConfig trips after 5 consecutive failures, probes again after 10
// seconds and closes after 2 successful probes.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:   5,
		OpenTimeout:        10 * time.Second,
		HalfOpenMaxSuccess: 2,
	}
}

// Breaker is a circuit breaker. All methods are safe for concurrent use.
type Breaker struct {
	mu sync.Mutex

	cfg Config

	state     State
	failures  int // consecutive failures in Closed
	successes int // consecutive successes in HalfOpen
	openedAt  time.Time
	nowFunc   func() time.Time // for testing; defaults to time.Now
}

// New creates a Breaker. Zero fields of cfg take their DefaultConfig value.
func New(cfg Config) *Breaker {
	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}
	if cfg.HalfOpenMaxSuccess <= 0 {
		cfg.HalfOpenMaxSuccess = def.HalfOpenMaxSuccess
	}
	return &Breaker{
		cfg:     cfg,
		state:   Closed,
		nowFunc: time.Now,
	}
}

// State returns the current state. An Open breaker whose timeout elapsed
// reports HalfOpen.
func (b *Breaker) State() State {
	b.mu.Lock()
	from, to := b.checkOpenTimeout()
	s := b.state
	b.mu.Unlock()
	b.changed(from, to)
	return s
}

// Allow reports whether a call may go through: always when Closed, while
// probe slots remain when HalfOpen, never when Open.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	from, to := b.checkOpenTimeout()
	var ok bool
	switch b.state {
	case Closed:
		ok = true
	case HalfOpen:
		ok = b.successes < b.cfg.HalfOpenMaxSuccess
	}
	b.mu.Unlock()
	b.changed(from, to)
	return ok
}

// Do runs fn if the breaker allows it and records the outcome.
func (b *Breaker) Do(fn func() error) error {
	if !b.Allow() {
		return ErrOpen
	}
	if err := fn(); err != nil {
		b.OnFailure()
		return err
	}
	b.OnSuccess()
	return nil
}

// OnSuccess records a successful call.
func (b *Breaker) OnSuccess() {
	b.mu.Lock()
	from := b.state
	switch b.state {
	case Closed:
		b.failures = 0
	case HalfOpen:
		b.successes++
		if b.successes >= b.cfg.HalfOpenMaxSuccess {
			b.state = Closed
			b.failures = 0
			b.successes = 0
		}
	}
	to := b.state
	b.mu.Unlock()
	b.changed(from, to)
}

// OnFailure records a failed call.
func (b *Breaker) OnFailure() {
	b.mu.Lock()
	from := b.state
	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.toOpen()
		}
	case HalfOpen:
		b.toOpen()
	}
	to := b.state
	b.mu.Unlock()
	b.changed(from, to)
}

// checkOpenTimeout transitions from Open to HalfOpen when the timeout has
// elapsed. Must be called with b.mu held.
func (b *Breaker) checkOpenTimeout() (from, to State) {
	from = b.state
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cfg.OpenTimeout {
		b.state = HalfOpen
		b.successes = 0
	}
	return from, b.state
}

func (b *Breaker) toOpen() {
	b.state = Open
	b.openedAt = b.now()
	b.successes = 0
}

func (b *Breaker) changed(from, to State) {
	if from != to && b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}

func (b *Breaker) now() time.Time {
	if b.nowFunc != nil {
		return b.nowFunc()
	}
	return time.Now()
}
