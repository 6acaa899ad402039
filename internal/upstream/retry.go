package upstream

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"marketpulse/apps/worker/internal/backoff"
)

const (
	// DefaultMaxRetries bounds retries for 429/5xx/transport failures.
	DefaultMaxRetries = 6
)

// RetryConfig drives the per-request retry loop in Do. This is blocking,
// attempt-level retry for a single HTTP call; job-level rescheduling via
// not_before is a separate mechanism and never sleeps the worker.
type RetryConfig struct {
	MaxRetries int
	Policy     *backoff.Policy
	FastFail   *backoff.FastFail

	sleep func(time.Duration)
}

func (c *RetryConfig) normalize() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.Policy == nil {
		c.Policy = backoff.Default()
	}
	if c.FastFail == nil {
		c.FastFail = backoff.NewFastFail(backoff.DefaultDenialBudget, backoff.DefaultDenialDelay, time.Second, time.Now().UnixNano())
	}
	if c.sleep == nil {
		c.sleep = time.Sleep
	}
}

// Do performs one logical request with per-error-class retries:
// 403 responses burn a small fixed budget with a short delay, 429 honors the
// server's retry hint, 5xx and transport failures back off exponentially.
// Any other response, success or not, returns immediately for the caller to
// classify. The final failed Outcome is returned alongside the error when the
// retries are exhausted by HTTP failures.
func Do(ctx context.Context, c Client, req Request, cfg RetryConfig) (Outcome, error) {
	cfg.normalize()

	var (
		lastOut Outcome
		lastErr error
		denials int
	)

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		out, err := c.Call(ctx, req)
		if err != nil {
			// Transport failure.
			if ctx.Err() != nil {
				return Outcome{}, ctx.Err()
			}
			lastOut, lastErr = Outcome{}, err
			if err := sleepCtx(ctx, cfg.sleep, cfg.Policy.Delay(attempt)); err != nil {
				return Outcome{}, err
			}
			continue
		}

		switch {
		case out.HTTPStatus == http.StatusForbidden:
			if cfg.FastFail.Exhausted(denials) {
				return out, fmt.Errorf("request blocked after %d attempts: status %d", denials+1, out.HTTPStatus)
			}
			denials++
			lastOut, lastErr = out, nil
			if err := sleepCtx(ctx, cfg.sleep, cfg.FastFail.Next()); err != nil {
				return Outcome{}, err
			}
		case out.HTTPStatus == http.StatusTooManyRequests:
			lastOut, lastErr = out, nil
			if err := sleepCtx(ctx, cfg.sleep, cfg.Policy.DelayWithHint(attempt, out.RetryAfter)); err != nil {
				return Outcome{}, err
			}
		case out.HTTPStatus >= 500:
			lastOut, lastErr = out, nil
			if err := sleepCtx(ctx, cfg.sleep, cfg.Policy.Delay(attempt)); err != nil {
				return Outcome{}, err
			}
		default:
			return out, nil
		}
	}

	if lastErr != nil {
		return lastOut, fmt.Errorf("request failed after retries: %w", lastErr)
	}
	return lastOut, fmt.Errorf("request failed after retries: status %d", lastOut.HTTPStatus)
}

func sleepCtx(ctx context.Context, sleep func(time.Duration), d time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	sleep(d)
	return nil
}
