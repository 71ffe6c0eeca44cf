package pairing

import (
	"sync"
	"time"

	"github.com/nextlevelbuilder/omniwp/internal/bus"
	"github.com/nextlevelbuilder/omniwp/pkg/protocol"
)

// Indicator is the background "am I linked" signal.
type Indicator struct {
	Status    protocol.LinkStatus
	Linked    bool
	Known     bool      // at least one status has been observed
	Stale     bool      // the latest poll failed; Status is the last known value
	CheckedAt time.Time // when Status was last confirmed
	Message   string
}

// LinkIndicator holds the Indicator. Observations come from the status poll,
// push status events and connect results. Failures only mark it stale.
type LinkIndicator struct {
	mu       sync.RWMutex
	cur      Indicator
	now      func() time.Time
	onChange func(Indicator)
}

// NewLinkIndicator returns an indicator with no known status.
func NewLinkIndicator() *LinkIndicator {
	return &LinkIndicator{now: time.Now}
}

// Get returns the current value.
func (l *LinkIndicator) Get() Indicator {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cur
}

// OnChange registers fn to receive every update. fn must not block.
func (l *LinkIndicator) OnChange(fn func(Indicator)) {
	l.mu.Lock()
	l.onChange = fn
	l.mu.Unlock()
}

// Observe records a confirmed status.
func (l *LinkIndicator) Observe(status protocol.LinkStatus, message string) {
	l.update(func(ind *Indicator) {
		ind.Status = status
		ind.Linked = status == protocol.StatusConnected
		ind.Known = true
		ind.Stale = false
		ind.CheckedAt = l.now()
		ind.Message = message
	})
}

// MarkStale flags the current value as unconfirmed. The status itself is kept.
func (l *LinkIndicator) MarkStale() {
	l.update(func(ind *Indicator) {
		ind.Stale = true
	})
}

func (l *LinkIndicator) update(fn func(*Indicator)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(&l.cur)
	if l.onChange != nil {
		l.onChange(l.cur)
	}
}

// Watch feeds push status events into the indicator until the returned
// Dispose is called.
func (l *LinkIndicator) Watch(b *bus.Bus) bus.Dispose {
	return b.Subscribe(func(e bus.Event) {
		if sc, ok := e.(bus.StatusChanged); ok {
			l.Observe(sc.Status, sc.Message)
		}
	})
}
