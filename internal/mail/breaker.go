package mail

import (
	"errors"
	"sync"
	"time"
)

// BreakerState represents the state of a Breaker
type BreakerState int

const (
	// StateClosed indicates mail is flowing normally
	StateClosed BreakerState = iota
	// StateOpen indicates sends are refused until the reset timeout elapses
	StateOpen
	// StateHalfOpen indicates a single trial send is allowed
	StateHalfOpen
)

// String returns the string representation of BreakerState
func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen indicates the mail server failed repeatedly and sends are paused
var ErrCircuitOpen = errors.New("mail circuit breaker is open")

// Breaker stops hammering a failing mail server. After failureThreshold
// consecutive failures it refuses sends for resetTimeout, then lets one trial
// through; the trial's result closes or re-opens the circuit.
type Breaker struct {
	failureThreshold int
	resetTimeout     time.Duration
	now              func() time.Time

	mu          sync.Mutex
	state       BreakerState
	failures    int
	openedAt    time.Time
	trialActive bool
}

// NewBreaker creates a closed breaker
func NewBreaker(failureThreshold int, resetTimeout time.Duration) *Breaker {
	if failureThreshold < 1 {
		failureThreshold = 1
	}
	return &Breaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		now:              time.Now,
		state:            StateClosed,
	}
}

// Call runs fn if the breaker allows it and records the outcome
func (b *Breaker) Call(fn func() error) error {
	if !b.acquire() {
		return ErrCircuitOpen
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.trialActive = false

	if err != nil {
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.failureThreshold {
			b.state = StateOpen
			b.openedAt = b.now()
		}
		return err
	}

	b.failures = 0
	b.state = StateClosed
	return nil
}

func (b *Breaker) acquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advanceLocked()
	switch b.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		if b.trialActive {
			return false
		}
		b.trialActive = true
		return true
	default:
		return false
	}
}

// advanceLocked moves an expired open circuit to half-open (must hold lock)
func (b *Breaker) advanceLocked() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.resetTimeout {
		b.state = StateHalfOpen
		b.failures = 0
	}
}

// State returns the current state
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advanceLocked()
	return b.state
}

// Failures returns the consecutive failure count
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
