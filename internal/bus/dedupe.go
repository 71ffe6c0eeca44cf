package bus

import (
	"encoding/json"
	"sync"
	"time"
)

// Defaults for message activity deduplication.
const (
	DefaultDedupeTTL  = 10 * time.Minute
	DefaultDedupeSize = 2000
)

// DedupeCache is a TTL-based set of recently seen keys.
// Entries expire after ttl and are pruned lazily on each check.
type DedupeCache struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

func NewDedupeCache(ttl time.Duration, maxSize int) *DedupeCache {
	return &DedupeCache{
		entries: make(map[string]time.Time, 64),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// IsDuplicate reports whether key was seen within the TTL window and
// records it otherwise.
func (d *DedupeCache) IsDuplicate(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	cutoff := now.Add(-d.ttl)
	if seen, ok := d.entries[key]; ok && !seen.Before(cutoff) {
		return true
	}
	d.prune(cutoff)
	d.entries[key] = now
	return false
}

// prune drops expired entries, then the oldest ones while over maxSize.
// Caller holds d.mu.
func (d *DedupeCache) prune(cutoff time.Time) {
	for k, seen := range d.entries {
		if seen.Before(cutoff) {
			delete(d.entries, k)
		}
	}
	for d.maxSize > 0 && len(d.entries) >= d.maxSize {
		var oldest string
		var oldestAt time.Time
		for k, seen := range d.entries {
			if oldest == "" || seen.Before(oldestAt) {
				oldest, oldestAt = k, seen
			}
		}
		delete(d.entries, oldest)
	}
}

// Key identifies the message: its server id when the payload has one,
// otherwise the direction and the raw payload.
func (e MessageActivity) Key() string {
	var ids struct {
		ID        string `json:"id"`
		MessageID string `json:"messageId"`
	}
	if json.Unmarshal(e.Raw, &ids) == nil {
		if ids.ID != "" {
			return e.Direction + ":" + ids.ID
		}
		if ids.MessageID != "" {
			return e.Direction + ":" + ids.MessageID
		}
	}
	return e.Direction + ":" + string(e.Raw)
}

// Deduplicated wraps h so repeated MessageActivity events reach it once.
// Other events pass through.
func Deduplicated(d *DedupeCache, h Handler) Handler {
	return func(e Event) {
		if m, ok := e.(MessageActivity); ok && d.IsDuplicate(m.Key()) {
			return
		}
		h(e)
	}
}
