// Package api is the HTTP client for the CRM REST API.
//
// Every call returns either the decoded payload or an *Error whose Kind tells
// the caller how to react. A 401 on any call also fires the OnUnauthorized
// hook so the session can be torn down in one place.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"

	"github.com/nextlevelbuilder/omniwp/internal/session"
	"github.com/nextlevelbuilder/omniwp/internal/tracing"
)

// maxErrorBody caps how much of a failed response is read for its message.
const maxErrorBody = 64 * 1024

// Config configures a Client.
type Config struct {
	BaseURL           string
	Timeout           time.Duration // default per-request timeout
	ConnectTimeout    time.Duration // timeout for the WhatsApp connect request
	RequestsPerMinute int
	Burst             int
	Tokens            session.TokenSource
	HTTPClient        *http.Client // optional, for tests
}

// Client talks to the CRM REST API.
type Client struct {
	baseURL        string
	timeout        time.Duration
	connectTimeout time.Duration
	http           *http.Client
	tokens         session.TokenSource
	limiter        *rateLimiter

	mu             sync.RWMutex
	onUnauthorized func()
}

// New creates a Client. BaseURL must already be normalized.
func New(cfg Config) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		timeout:        cfg.Timeout,
		connectTimeout: cfg.ConnectTimeout,
		http:           cfg.HTTPClient,
		tokens:         cfg.Tokens,
		limiter:        newRateLimiter(cfg.RequestsPerMinute, cfg.Burst),
	}
	if c.timeout <= 0 {
		c.timeout = 30 * time.Second
	}
	if c.connectTimeout <= 0 {
		c.connectTimeout = 5 * time.Minute
	}
	if c.http == nil {
		// Timeouts are applied per request through the context.
		c.http = &http.Client{}
	}
	if c.tokens == nil {
		c.tokens = session.StaticToken("")
	}
	return c
}

// BaseURL returns the API root the client targets.
func (c *Client) BaseURL() string { return c.baseURL }

// OnUnauthorized registers fn to run once for every 401 response.
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	c.onUnauthorized = fn
	c.mu.Unlock()
}

// RateLimited reports whether client-side pacing is active.
func (c *Client) RateLimited() bool { return c.limiter.enabled() }

// request describes one call.
type request struct {
	op      string
	method  string
	path    string
	query   url.Values
	body    any
	auth    bool
	timeout time.Duration
}

func (c *Client) do(ctx context.Context, r request, out any) (err error) {
	var token string
	if r.auth {
		token, err = c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", r.op, err)
		}
	}

	timeout := r.timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := tracing.Start(ctx, "api."+r.op,
		attribute.String("http.request.method", r.method),
		attribute.String("url.path", r.path),
	)
	defer func() { tracing.End(span, err) }()

	if err := c.limiter.wait(ctx, r.op); err != nil {
		return c.transportError(r.op, err)
	}

	target := c.baseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", r.op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", r.op, err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", reqID)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		slog.Debug("api request failed", "op", r.op, "request_id", reqID, "error", err)
		return c.transportError(r.op, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	slog.Debug("api request", "op", r.op, "status", resp.StatusCode,
		"request_id", reqID, "duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode >= 300 {
		return c.statusError(r.op, resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &Error{Kind: KindTimeout, Op: r.op, Err: err}
		}
		return &Error{Kind: KindDecode, Status: resp.StatusCode, Op: r.op, Err: err}
	}
	return nil
}

func (c *Client) transportError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}
	return &Error{Kind: KindNetwork, Op: op, Err: err}
}

func (c *Client) statusError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var eb errorBody
	_ = json.Unmarshal(raw, &eb)

	apiErr := &Error{
		Kind:    kindForStatus(resp.StatusCode),
		Status:  resp.StatusCode,
		Message: strings.TrimSpace(eb.text()),
		Op:      op,
	}
	if apiErr.Kind == KindUnauthorized {
		slog.Warn("security.unauthorized", "op", op)
		c.mu.RLock()
		fn := c.onUnauthorized
		c.mu.RUnlock()
		if fn != nil {
			fn()
		}
	}
	return apiErr
}
