package api

import (
	"context"
	"net/http"
)

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, in LoginRequest) (*AuthResponse, error) {
	var out AuthResponse
	err := c.do(ctx, request{op: "auth.login", method: http.MethodPost, path: "/auth/login", body: in}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates an account and returns its token.
func (c *Client) Register(ctx context.Context, in RegisterRequest) (*AuthResponse, error) {
	var out AuthResponse
	err := c.do(ctx, request{op: "auth.register", method: http.MethodPost, path: "/auth/register", body: in}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks that the backend is up.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, request{op: "health", method: http.MethodGet, path: "/health"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
