package circuitbreaker

import (
	"context"
	"sync"
	"time"

	"github.com/nzskirting/orderdesk/pkg/errors"
)

// State represents the state of the circuit breaker
type State int

const (
	StateClosed   State = iota // requests allowed
	StateHalfOpen              // probing whether the upstream recovered
	StateOpen                  // requests rejected
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	}
	return "unknown"
}

// Config configures a CircuitBreaker
type Config struct {
	Name             string
	FailureThreshold int
	ResetTimeout     time.Duration
	HalfOpenMaxCalls int
}

// CircuitBreaker stops calling an upstream after consecutive failures and
// lets a limited number of trial calls through once ResetTimeout has passed.
type CircuitBreaker struct {
	cfg             Config
	mu              sync.Mutex
	state           State
	failureCount    int
	halfOpenCalls   int
	lastStateChange time.Time
	now             func() time.Time
}

// Snapshot is a point-in-time view used for logging
type Snapshot struct {
	Name            string    `json:"name"`
	State           string    `json:"state"`
	FailureCount    int       `json:"failure_count"`
	LastStateChange time.Time `json:"last_state_change"`
}

// New creates a closed circuit breaker
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}

	return &CircuitBreaker{
		cfg:             cfg,
		state:           StateClosed,
		lastStateChange: time.Now(),
		now:             time.Now,
	}
}

func (cb *CircuitBreaker) setState(s State) {
	cb.state = s
	cb.lastStateChange = cb.now()
	cb.halfOpenCalls = 0
}

// Allow reports whether a call may proceed
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.lastStateChange) >= cb.cfg.ResetTimeout {
		cb.setState(StateHalfOpen)
	}

	switch cb.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		cb.halfOpenCalls++
		return cb.halfOpenCalls <= cb.cfg.HalfOpenMaxCalls
	default:
		return false
	}
}

// Success reports a successful call
func (cb *CircuitBreaker) Success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0

	if cb.state == StateHalfOpen {
		cb.setState(StateClosed)
	}
}

// Failure reports a failed call
func (cb *CircuitBreaker) Failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.cfg.FailureThreshold {
			cb.setState(StateOpen)
		}
	case StateHalfOpen:
		cb.setState(StateOpen)
	}
}

// Reset forces the breaker closed
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
	cb.setState(StateClosed)
}

// Execute runs fn when the breaker allows it and records the outcome
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.Allow() {
		return errors.NewAppError(errors.ErrCircuitOpen, cb.cfg.Name+" circuit is open", 503)
	}

	if err := fn(ctx); err != nil {
		cb.Failure()
		return err
	}

	cb.Success()
	return nil
}

// State returns the current state
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return cb.state
}

// Snapshot returns the breaker's current metrics
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Snapshot{
		Name:            cb.cfg.Name,
		State:           cb.state.String(),
		FailureCount:    cb.failureCount,
		LastStateChange: cb.lastStateChange,
	}
}
