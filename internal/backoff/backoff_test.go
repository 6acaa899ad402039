package backoff

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_ExponentialGrowth(t *testing.T) {
	p := New(time.Second, 2, time.Hour, 0, 1)

	assert.Equal(t, time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	assert.Equal(t, 8*time.Second, p.Delay(3))
}

func TestPolicy_StrictlyIncreasingUntilCap(t *testing.T) {
	p := New(time.Second, 2, 60*time.Second, 0, 1)

	prev := p.Delay(0)
	for attempt := 1; attempt < 20; attempt++ {
		d := p.Delay(attempt)
		if prev < p.Max {
			assert.Greater(t, d, prev, "attempt %d", attempt)
		}
		assert.LessOrEqual(t, d, p.Max, "attempt %d", attempt)
		prev = d
	}
	assert.Equal(t, p.Max, p.Delay(19))
}

func TestPolicy_CapHoldsWithJitter(t *testing.T) {
	p := New(time.Second, 2, 30*time.Second, 0.2, 42)

	for attempt := 0; attempt < 50; attempt++ {
		d := p.Delay(attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, p.Max)
	}
}

func TestPolicy_JitterBounds(t *testing.T) {
	p := New(10*time.Second, 2, time.Hour, 0.2, 7)

	d := p.Delay(0)
	assert.GreaterOrEqual(t, d, 8*time.Second)
	assert.LessOrEqual(t, d, 12*time.Second)
}

func TestPolicy_DeterministicGivenSeed(t *testing.T) {
	a := New(time.Second, 2, time.Minute, 0.2, 99)
	b := New(time.Second, 2, time.Minute, 0.2, 99)

	for attempt := 0; attempt < 10; attempt++ {
		assert.Equal(t, a.Delay(attempt), b.Delay(attempt))
	}
}

func TestPolicy_RetryHintPrecedence(t *testing.T) {
	p := New(time.Second, 2, time.Minute, 0, 1)

	assert.Equal(t, 17*time.Second, p.DelayWithHint(3, 17*time.Second))
	// Hint is still clamped to the maximum.
	assert.Equal(t, time.Minute, p.DelayWithHint(0, 2*time.Hour))
	// Without a hint the exponential delay applies.
	assert.Equal(t, 8*time.Second, p.DelayWithHint(3, 0))
}

func TestPolicy_Defaults(t *testing.T) {
	p := New(0, 0, 0, -1, 1)

	assert.Equal(t, DefaultBase, p.Base)
	assert.Equal(t, DefaultMultiplier, p.Multiplier)
	assert.Equal(t, DefaultMax, p.Max)
	assert.Equal(t, float64(0), p.Jitter)
}

func TestFastFail_Budget(t *testing.T) {
	f := NewFastFail(2, 2*time.Second, 0, 1)

	assert.False(t, f.Exhausted(0))
	assert.False(t, f.Exhausted(1))
	assert.True(t, f.Exhausted(2))
	assert.True(t, f.Exhausted(5))
}

func TestFastFail_FixedDelayWithJitter(t *testing.T) {
	f := NewFastFail(2, 2*time.Second, time.Second, 3)

	for i := 0; i < 20; i++ {
		d := f.Next()
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.Less(t, d, 3*time.Second)
	}
}

func TestPolicy_SharedAcrossGoroutines(t *testing.T) {
	p := New(time.Second, 2, time.Minute, 0.2, 7)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for attempt := 0; attempt < 100; attempt++ {
				d := p.Delay(attempt % 10)
				assert.GreaterOrEqual(t, d, time.Duration(0))
				assert.LessOrEqual(t, d, p.Max)
			}
		}()
	}
	wg.Wait()
}

func TestFastFail_SharedAcrossGoroutines(t *testing.T) {
	f := NewFastFail(2, 2*time.Second, time.Second, 7)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				d := f.Next()
				assert.GreaterOrEqual(t, d, 2*time.Second)
				assert.Less(t, d, 3*time.Second)
			}
		}()
	}
	wg.Wait()
}
