// Package retry runs an operation again after failures, either at a fixed
// interval or with exponential backoff and jitter.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// Config controls how often and how long an operation is retried.
type Config struct {
	MaxRetries int           // retries after the first attempt (0 = no retry)
	BaseDelay  time.Duration // delay before the first retry
	MaxDelay   time.Duration // cap for exponential delays
	Fixed      bool          // keep BaseDelay for every retry instead of doubling
}

// DefaultConfig returns exponential defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// FixedConfig retries n times, waiting delay between attempts.
func FixedConfig(n int, delay time.Duration) Config {
	return Config{MaxRetries: n, BaseDelay: delay, MaxDelay: delay, Fixed: true}
}

// permanent marks an error that must not be retried.
type permanent struct{ err error }

func (p *permanent) Error() string { return p.err.Error() }
func (p *permanent) Unwrap() error { return p.err }

// Permanent wraps err so Do returns it without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanent{err: err}
}

// Do runs fn until it succeeds, returns a Permanent error, retries run out,
// or ctx is done. It returns the number of attempts made and the last error.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) (attempts int, err error) {
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		attempts = attempt + 1
		err = fn(ctx)
		if err == nil {
			return attempts, nil
		}
		var p *permanent
		if errors.As(err, &p) {
			return attempts, p.err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		delay := cfg.BaseDelay
		if !cfg.Fixed {
			delay = backoffWithJitter(cfg.BaseDelay, cfg.MaxDelay, attempt)
		}
		if err := sleep(ctx, delay); err != nil {
			return attempts, err
		}
	}
	return attempts, err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// backoffWithJitter computes delay = min(base * 2^attempt, max) + jitter(±25%).
func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	delay := base << uint(attempt)
	if delay > max || delay <= 0 {
		delay = max
	}

	quarter := delay / 4
	if quarter > 0 {
		jitter := time.Duration(rand.Int64N(int64(quarter*2))) - quarter
		delay += jitter
	}
	return delay
}
