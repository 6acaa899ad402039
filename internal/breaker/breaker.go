// Package breaker guards a single upstream dependency against repeated
// failures. One breaker instance is shared by every processing cycle that
// targets the same dependency within a worker process; it is never persisted.
package breaker

import (
	"sync"
	"time"
)

// State is the breaker state.
type State int

const (
	// StateClosed permits calls.
	StateClosed State = iota
	// StateOpen refuses calls until the recovery timeout elapses.
	StateOpen
	// StateHalfOpen permits a single probing call.
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
	default:
		return "unknown"
	}
}

const (
	DefaultFailureThreshold = 5
	DefaultRecoveryTimeout  = 60 * time.Second
)

// Breaker tracks consecutive failures against one logical dependency.
// Safe for concurrent use.
type Breaker struct {
	threshold int
	recovery  time.Duration
	now       func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	probing     bool
}

// New returns a closed breaker.
func New(failureThreshold int, recoveryTimeout time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = DefaultRecoveryTimeout
	}
	return &Breaker{
		threshold: failureThreshold,
		recovery:  recoveryTimeout,
		now:       time.Now,
		state:     StateClosed,
	}
}

// CanExecute reports whether a call may be attempted. When the breaker is
// open and the recovery timeout has elapsed it transitions to half-open and
// permits exactly one probe; further calls are refused until the probe's
// outcome is recorded.
func (b *Breaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.lastFailure) >= b.recovery {
			b.state = StateHalfOpen
			b.probing = true
			return true
		}
		return false
	case StateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return false
	}
}

// RecordSuccess notes a successful call. A half-open probe success closes
// the breaker and clears the failure count. In closed state the count is
// decremented toward zero: risk accounting dampens, capability is untouched.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.state = StateClosed
		b.failures = 0
		b.probing = false
	case StateClosed:
		if b.failures > 0 {
			b.failures--
		}
	}
}

// RecordFailure notes a failed call. Reaching the threshold opens the
// breaker; a half-open probe failure reopens it and refreshes the
// recovery window.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.now()

	if b.state == StateHalfOpen {
		b.state = StateOpen
		b.probing = false
		return
	}

	b.failures++
	if b.failures >= b.threshold {
		b.state = StateOpen
	}
}

// State returns the current state without mutating it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current consecutive-failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset forcibly returns the breaker to closed with counters cleared.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.lastFailure = time.Time{}
	b.probing = false
}

// SetClock overrides the breaker's clock. Test hook.
func (b *Breaker) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}
