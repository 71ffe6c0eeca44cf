// Package cache is a resource-keyed, time-boxed read-through cache for API
// reads. Entries are scoped to the signed-in user, go stale after a
// per-resource window and are dropped wholesale when a mutation touches the
// same resource.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// Resource names used as key prefixes.
const (
	ResourceClients          = "clients"
	ResourceOrders           = "orders"
	ResourceMessages         = "messages"
	ResourceWhatsAppStatus   = "whatsapp.status"
	ResourceWhatsAppInfo     = "whatsapp.info"
	ResourceAvailability     = "whatsapp.availability"
	ResourceWhatsAppMessages = "whatsapp.messages"
)

// Entry is one cached payload.
type Entry struct {
	Data     json.RawMessage `json:"data"`
	StoredAt time.Time       `json:"storedAt"`
}

// Store is a cache backend.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, e Entry) error
	DeletePrefix(ctx context.Context, prefix string) error
	Clear(ctx context.Context) error
	Close() error
}

// Key identifies a cached read.
type Key struct {
	Resource string
	Params   string // canonical query parameters, empty for plain lists
}

// Options configures a Cache.
type Options struct {
	// Scope returns the current user id; entries of other users are never served.
	Scope func() string
	// StaleAfter returns the freshness window of a resource.
	StaleAfter func(resource string) time.Duration
	// ServeStaleOn decides whether a failed refetch may fall back to a stale
	// entry. Nil means always.
	ServeStaleOn func(err error) bool
	Now          func() time.Time
}

// Cache wraps a Store with read-through semantics.
type Cache struct {
	store Store
	opts  Options
	group singleflight.Group
}

// New creates a Cache over store.
func New(store Store, opts Options) *Cache {
	if opts.Scope == nil {
		opts.Scope = func() string { return "" }
	}
	if opts.StaleAfter == nil {
		opts.StaleAfter = func(string) time.Duration { return 30 * time.Second }
	}
	if opts.ServeStaleOn == nil {
		opts.ServeStaleOn = func(error) bool { return true }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{store: store, opts: opts}
}

func (c *Cache) scopePrefix() string {
	scope := c.opts.Scope()
	if scope == "" {
		scope = "anon"
	}
	return scope + ":"
}

func (c *Cache) fullKey(k Key) string {
	return c.scopePrefix() + k.Resource + ":" + k.Params
}

// Query returns the cached value for key if fresh, otherwise calls fetch and
// caches its result. Concurrent queries for the same key share one fetch.
// When fetch fails and a stale entry exists, the stale value is returned.
func Query[T any](ctx context.Context, c *Cache, key Key, fetch func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	full := c.fullKey(key)

	entry, found, err := c.store.Get(ctx, full)
	if err != nil {
		slog.Warn("cache read failed", "key", full, "error", err)
		found = false
	}

	var cached T
	if found {
		if err := json.Unmarshal(entry.Data, &cached); err != nil {
			slog.Debug("cache entry unreadable, refetching", "key", full, "error", err)
			found = false
		} else if c.opts.Now().Sub(entry.StoredAt) < c.opts.StaleAfter(key.Resource) {
			return cached, nil
		}
	}

	v, err, _ := c.group.Do(full, func() (any, error) {
		fresh, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(fresh)
		if err == nil {
			err = c.store.Set(ctx, full, Entry{Data: data, StoredAt: c.opts.Now()})
		}
		if err != nil {
			slog.Warn("cache write failed", "key", full, "error", err)
		}
		return fresh, nil
	})
	if err != nil {
		if found && c.opts.ServeStaleOn(err) {
			slog.Debug("serving stale cache entry", "key", full, "error", err)
			return cached, nil
		}
		return zero, err
	}
	return v.(T), nil
}

// Invalidate drops every entry of resource for the current user.
func (c *Cache) Invalidate(ctx context.Context, resource string) error {
	return c.store.DeletePrefix(ctx, c.scopePrefix()+resource+":")
}

// Clear drops every entry of every user.
func (c *Cache) Clear(ctx context.Context) error {
	return c.store.Clear(ctx)
}

// Close releases the backend.
func (c *Cache) Close() error {
	return c.store.Close()
}

// ParamsKey builds a canonical Params string from key/value pairs,
// skipping empty values.
func ParamsKey(kv ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(kv[i])
		b.WriteByte('=')
		b.WriteString(kv[i+1])
	}
	return b.String()
}
