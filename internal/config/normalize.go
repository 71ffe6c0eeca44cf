package config

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeBaseURL validates the API base URL and strips trailing slashes.
//   - A missing scheme defaults to https
//   - Only http and https are accepted
//   - The host must be present
func NormalizeBaseURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("api.baseUrl is empty")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("parse api.baseUrl: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("api.baseUrl scheme %q not supported", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("api.baseUrl missing host")
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// PushURL derives the Socket.IO WebSocket endpoint from the API base URL.
// The push server listens on the API origin, not under the versioned path.
func PushURL(baseURL string, eio int) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/socket.io/"
	q := url.Values{}
	q.Set("EIO", fmt.Sprint(eio))
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
