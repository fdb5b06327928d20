// Package breaker implements a sliding-window circuit breaker and a periodic
// health Monitor for provider calls. No provider call in this module is
// routed through a Breaker; the only user of the package is cmd doctor,
// through Monitor.
package breaker

import (
	"sync"
	"time"

	"github.com/mcpcontext/browser/internal/errs"
)

// State is the circuit breaker's current state.
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

const (
	defaultWindow            = 20
	defaultMinCalls          = 10
	defaultFailureRate       = 0.5
	defaultCooldown          = 30 * time.Second
	defaultHalfOpenSuccesses = 3
)

// Breaker trips open when, over the last Window calls (with at least
// MinCalls observed), the failure rate reaches FailureRate. Once Cooldown has
// passed it moves to the half-open state, and requires HalfOpenSuccesses
// consecutive successful probes before closing; any half-open failure reopens
// it immediately.
type Breaker struct {
	name              string
	window            int
	minCalls          int
	failureRate       float64
	cooldown          time.Duration
	halfOpenSuccesses int

	mu                sync.Mutex
	state             State
	outcomes          []bool // ring buffer, true = success
	head              int
	calls             int
	openedAt          time.Time
	halfOpenSuccessCt int
}

// Option configures a Breaker.
type Option func(*Breaker)

func WithWindow(n int) Option           { return func(b *Breaker) { b.window = n } }
func WithMinCalls(n int) Option         { return func(b *Breaker) { b.minCalls = n } }
func WithFailureRate(r float64) Option  { return func(b *Breaker) { b.failureRate = r } }
func WithCooldown(d time.Duration) Option { return func(b *Breaker) { b.cooldown = d } }
func WithHalfOpenSuccesses(n int) Option { return func(b *Breaker) { b.halfOpenSuccesses = n } }

// New creates a Breaker with the spec's default sliding-window parameters
// (window=20, minCalls=10, failureRate=0.5, cooldown=30s, halfOpenSuccesses=3).
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:              name,
		window:            defaultWindow,
		minCalls:          defaultMinCalls,
		failureRate:       defaultFailureRate,
		cooldown:          defaultCooldown,
		halfOpenSuccesses: defaultHalfOpenSuccesses,
		state:             StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.outcomes = make([]bool, 0, b.window)
	return b
}

func (b *Breaker) Name() string { return b.name }

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState()
}

// currentState must be called with b.mu held.
func (b *Breaker) currentState() State {
	if b.state == StateOpen && time.Since(b.openedAt) > b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

func (b *Breaker) record(success bool) {
	if len(b.outcomes) < b.window {
		b.outcomes = append(b.outcomes, success)
	} else {
		b.outcomes[b.head] = success
		b.head = (b.head + 1) % b.window
	}
	b.calls++
}

func (b *Breaker) failureRateNow() (rate float64, n int) {
	n = len(b.outcomes)
	if n == 0 {
		return 0, 0
	}
	fails := 0
	for _, ok := range b.outcomes {
		if !ok {
			fails++
		}
	}
	return float64(fails) / float64(n), n
}

// Allow reports whether a call should be permitted right now.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState() != StateOpen
}

// Execute runs fn through the breaker, recording the outcome and applying
// state transitions per the sliding-window/half-open-probe algorithm.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	state := b.currentState()
	if state == StateOpen {
		b.mu.Unlock()
		return errs.Transient(b.name+": circuit open", nil).WithDetail("breaker", b.name)
	}
	if state == StateHalfOpen && b.state != StateHalfOpen {
		b.state = StateHalfOpen
		b.halfOpenSuccessCt = 0
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		if err != nil {
			b.state = StateOpen
			b.openedAt = time.Now()
			b.halfOpenSuccessCt = 0
			return err
		}
		b.halfOpenSuccessCt++
		if b.halfOpenSuccessCt >= b.halfOpenSuccesses {
			b.state = StateClosed
			b.outcomes = b.outcomes[:0]
			b.head = 0
		}
		return nil
	default: // StateClosed
		b.record(err == nil)
		if err != nil {
			rate, n := b.failureRateNow()
			if n >= b.minCalls && rate >= b.failureRate {
				b.state = StateOpen
				b.openedAt = time.Now()
			}
			return err
		}
		return nil
	}
}

// ExecuteWithResult runs fn, falling back when the circuit is open or the
// call fails in a way the breaker trips on.
func ExecuteWithResult[T any](b *Breaker, fn func() (T, error), fallback func() (T, error)) (T, error) {
	b.mu.Lock()
	state := b.currentState()
	if state == StateOpen {
		b.mu.Unlock()
		return fallback()
	}
	if state == StateHalfOpen && b.state != StateHalfOpen {
		b.state = StateHalfOpen
		b.halfOpenSuccessCt = 0
	}
	b.mu.Unlock()

	result, err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		if err != nil {
			b.state = StateOpen
			b.openedAt = time.Now()
			b.halfOpenSuccessCt = 0
			b.mu.Unlock()
			fb, ferr := fallback()
			b.mu.Lock()
			return fb, ferr
		}
		b.halfOpenSuccessCt++
		if b.halfOpenSuccessCt >= b.halfOpenSuccesses {
			b.state = StateClosed
			b.outcomes = b.outcomes[:0]
			b.head = 0
		}
		return result, nil
	default:
		b.record(err == nil)
		if err != nil {
			rate, n := b.failureRateNow()
			if n >= b.minCalls && rate >= b.failureRate {
				b.state = StateOpen
				b.openedAt = time.Now()
			}
			b.mu.Unlock()
			fb, ferr := fallback()
			b.mu.Lock()
			return fb, ferr
		}
		return result, nil
	}
}
