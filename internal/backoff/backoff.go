// Package backoff computes retry delays for failed jobs and HTTP attempts.
// Policies are pure: given the same seed they produce the same delays.
package backoff

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

const (
	DefaultBase       = 1 * time.Second
	DefaultMultiplier = 2.0
	DefaultMax        = 5 * time.Minute
	DefaultJitter     = 0.2

	DefaultDenialBudget = 2
	DefaultDenialDelay  = 2 * time.Second
)

// Policy is the standard exponential policy: base * multiplier^attempt,
// capped at Max, with a bounded random jitter fraction applied last.
// The jitter source is mutex-guarded, so one policy may be shared across
// goroutines.
type Policy struct {
	Base       time.Duration
	Multiplier float64
	Max        time.Duration
	Jitter     float64

	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a policy seeded for deterministic jitter.
func New(base time.Duration, multiplier float64, max time.Duration, jitter float64, seed int64) *Policy {
	if base <= 0 {
		base = DefaultBase
	}
	if multiplier < 1 {
		multiplier = DefaultMultiplier
	}
	if max <= 0 {
		max = DefaultMax
	}
	if jitter < 0 {
		jitter = 0
	}
	return &Policy{
		Base:       base,
		Multiplier: multiplier,
		Max:        max,
		Jitter:     jitter,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// Default returns the policy used when nothing is configured.
func Default() *Policy {
	return New(DefaultBase, DefaultMultiplier, DefaultMax, DefaultJitter, time.Now().UnixNano())
}

// Delay returns the delay before retrying after the given attempt count.
// attempt is the number of attempts already made (0 for the first retry).
// The result is always in [0, Max].
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(p.Base) * math.Pow(p.Multiplier, float64(attempt))
	if d > float64(p.Max) {
		d = float64(p.Max)
	}
	if p.Jitter > 0 && p.rng != nil {
		p.mu.Lock()
		r := p.rng.Float64()
		p.mu.Unlock()
		d += d * p.Jitter * (2*r - 1)
	}
	if d < 0 {
		return 0
	}
	if d > float64(p.Max) {
		return p.Max
	}
	return time.Duration(d)
}

// DelayWithHint prefers a server-supplied retry hint over the computed
// exponential delay. The hint is still clamped to Max.
func (p *Policy) DelayWithHint(attempt int, hint time.Duration) time.Duration {
	if hint > 0 {
		if hint > p.Max {
			return p.Max
		}
		return hint
	}
	return p.Delay(attempt)
}

// FastFail is the stricter policy for access-denial responses. Exponential
// growth buys nothing against anti-automation blocks, so the budget is small
// and the delay short and fixed.
type FastFail struct {
	Budget int
	Delay  time.Duration
	Jitter time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewFastFail returns a fast-fail policy seeded for deterministic jitter.
func NewFastFail(budget int, delay, jitter time.Duration, seed int64) *FastFail {
	if budget <= 0 {
		budget = DefaultDenialBudget
	}
	if delay <= 0 {
		delay = DefaultDenialDelay
	}
	if jitter < 0 {
		jitter = 0
	}
	return &FastFail{
		Budget: budget,
		Delay:  delay,
		Jitter: jitter,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Exhausted reports whether the given attempt count has used up the budget.
func (f *FastFail) Exhausted(attempts int) bool {
	return attempts >= f.Budget
}

// Next returns the fixed delay plus [0, Jitter).
func (f *FastFail) Next() time.Duration {
	d := f.Delay
	if f.Jitter > 0 && f.rng != nil {
		f.mu.Lock()
		d += time.Duration(f.rng.Int63n(int64(f.Jitter)))
		f.mu.Unlock()
	}
	return d
}
