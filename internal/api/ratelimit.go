package api

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"
)

// rateLimiter paces outgoing requests with a token bucket so loops in the
// CLI (shell, watch) cannot hammer the API.
type rateLimiter struct {
	limiter *rate.Limiter // nil = disabled
}

// newRateLimiter creates a limiter. rpm is requests per minute, burst is the
// max burst allowed. If rpm <= 0, the limiter always allows.
func newRateLimiter(rpm, burst int) *rateLimiter {
	if rpm <= 0 {
		return &rateLimiter{}
	}
	if burst <= 0 {
		burst = 5
	}
	return &rateLimiter{limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst)}
}

// wait blocks until a request may be sent or ctx is done.
func (rl *rateLimiter) wait(ctx context.Context, op string) error {
	if rl.limiter == nil {
		return nil
	}
	if rl.limiter.Allow() {
		return nil
	}
	slog.Debug("api.rate_limited", "op", op)
	return rl.limiter.Wait(ctx)
}

func (rl *rateLimiter) enabled() bool {
	return rl.limiter != nil
}
