package pairing

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/omniwp/internal/api"
	"github.com/nextlevelbuilder/omniwp/internal/retry"
)

// StatusSource reads the current link status.
type StatusSource interface {
	WhatsAppStatus(ctx context.Context) (*api.WhatsAppStatus, error)
}

// PollerConfig controls the background status poll.
type PollerConfig struct {
	Interval   time.Duration // between polls (default 2m)
	Timeout    time.Duration // per attempt (default 10s)
	Retries    int           // extra attempts after a failure
	RetryDelay time.Duration // fixed delay between attempts (default 5s)
}

// StatusPoller periodically refreshes a LinkIndicator. It never touches the
// pairing session.
type StatusPoller struct {
	src StatusSource
	ind *LinkIndicator
	cfg PollerConfig
}

// NewStatusPoller creates a poller. Zero config fields take defaults.
func NewStatusPoller(src StatusSource, ind *LinkIndicator, cfg PollerConfig) *StatusPoller {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	return &StatusPoller{src: src, ind: ind, cfg: cfg}
}

// Poll runs one poll with retries. On failure the indicator keeps its last
// value and is marked stale; the error is returned for logging only.
func (p *StatusPoller) Poll(ctx context.Context) error {
	var st *api.WhatsAppStatus
	attempts, err := retry.Do(ctx, retry.FixedConfig(p.cfg.Retries, p.cfg.RetryDelay), func(ctx context.Context) error {
		actx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
		res, err := p.src.WhatsAppStatus(actx)
		if err != nil {
			if api.KindOf(err) != "" && !api.Transient(err) {
				return retry.Permanent(err)
			}
			return err
		}
		st = res
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		p.ind.MarkStale()
		slog.Warn("whatsapp status poll failed", "attempts", attempts, "error", err)
		return err
	}
	p.ind.Observe(st.Status, st.Message)
	slog.Debug("whatsapp status polled", "status", st.Status, "attempts", attempts)
	return nil
}

// Run polls immediately and then every Interval until ctx is done.
func (p *StatusPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		_ = p.Poll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
