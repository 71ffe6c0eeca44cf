// Package session holds the authenticated user and bearer token.
//
// The session is persisted in local storage under a fixed key and restored at
// startup before any authenticated call. Callers never read the store directly
// while a request is running: they take a Snapshot (or go through a
// TokenSource), which is immutable.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nextlevelbuilder/omniwp/internal/crypto"
)

// StorageKey is the local storage key holding the persisted session.
const StorageKey = "auth-storage"

// ErrNoToken is returned when an authenticated call is attempted without a session.
var ErrNoToken = errors.New("no authentication token available")

// User is the logged-in account.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Snapshot is an immutable copy of the session at one instant.
type Snapshot struct {
	Token string
	User  *User
}

// Authenticated reports whether the snapshot carries a token and a user.
func (s Snapshot) Authenticated() bool {
	return s.Token != "" && s.User != nil
}

// TokenSource yields the bearer token for one request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenSource. Handy in tests.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// StaticToken returns a TokenSource that always yields token.
func StaticToken(token string) TokenSource {
	return TokenFunc(func(context.Context) (string, error) {
		if token == "" {
			return "", ErrNoToken
		}
		return token, nil
	})
}

// Storage is the durable key/value backend (LocalStorage in production).
type Storage interface {
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}

// persisted mirrors the dashboard's stored shape so both can share a backend.
type persisted struct {
	State struct {
		User            *User  `json:"user"`
		Token           string `json:"token"`
		IsAuthenticated bool   `json:"isAuthenticated"`
	} `json:"state"`
	Version int `json:"version"`
}

// Manager owns the current session.
type Manager struct {
	storage Storage
	sealer  *crypto.Sealer // nil stores the token as-is

	mu      sync.RWMutex
	current Snapshot
}

// NewManager creates a manager. sealer may be nil.
func NewManager(storage Storage, sealer *crypto.Sealer) *Manager {
	return &Manager{storage: storage, sealer: sealer}
}

// Restore loads the persisted session. Corrupt data is discarded, not fatal.
func (m *Manager) Restore(ctx context.Context) error {
	raw, ok, err := m.storage.GetItem(ctx, StorageKey)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = Snapshot{}
	if !ok {
		return nil
	}

	var p persisted
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		slog.Warn("discarding unreadable session", "error", err)
		return m.storage.RemoveItem(ctx, StorageKey)
	}

	token := p.State.Token
	if m.sealer != nil {
		token, err = m.sealer.Open(token)
		if err != nil {
			slog.Warn("discarding session sealed with another key", "error", err)
			return m.storage.RemoveItem(ctx, StorageKey)
		}
	}
	if token == "" || p.State.User == nil {
		return nil
	}
	m.current = Snapshot{Token: token, User: p.State.User}
	return nil
}

// Login stores a new session.
func (m *Manager) Login(ctx context.Context, user User, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrNoToken
	}
	if err := m.persist(ctx, &user, token); err != nil {
		return err
	}

	m.mu.Lock()
	m.current = Snapshot{Token: token, User: &user}
	m.mu.Unlock()
	return nil
}

// Logout clears the session in memory and in storage.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.current = Snapshot{}
	m.mu.Unlock()
	return m.storage.RemoveItem(ctx, StorageKey)
}

// Snapshot returns the current session.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Token implements TokenSource. A snapshot attached to ctx wins over the live session.
func (m *Manager) Token(ctx context.Context) (string, error) {
	if s, ok := SnapshotFromContext(ctx); ok {
		if s.Token == "" {
			return "", ErrNoToken
		}
		return s.Token, nil
	}
	if t := m.Snapshot().Token; t != "" {
		return t, nil
	}
	return "", ErrNoToken
}

func (m *Manager) persist(ctx context.Context, user *User, token string) error {
	stored := token
	if m.sealer != nil {
		var err error
		if stored, err = m.sealer.Seal(token); err != nil {
			return fmt.Errorf("seal token: %w", err)
		}
	}

	var p persisted
	p.State.User = user
	p.State.Token = stored
	p.State.IsAuthenticated = true
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := m.storage.SetItem(ctx, StorageKey, string(data)); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}
