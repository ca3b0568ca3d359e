// Package guard suppresses feedback loops between the reconciler and the
// target platform. The reconciler marks every platform object it writes;
// inbound change notifications for a marked object within the TTL are
// treated as self-inflicted and ignored.
package guard

import (
	"sync"
	"time"
)

// Guard is a bounded, time-windowed set of platform object ids. It is the
// only state shared across passes and notification handlers and is safe for
// concurrent use. Entries expire lazily; no background goroutine is needed
// because the set stays small (one entry per recent write).
type Guard struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
	now     func() time.Time
}

// New creates a guard whose marks expire after ttl.
func New(ttl time.Duration) *Guard {
	return &Guard{
		ttl:     ttl,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// NewWithClock creates a guard with an injected clock for tests.
func NewWithClock(ttl time.Duration, now func() time.Time) *Guard {
	g := New(ttl)
	g.now = now
	return g
}

// MarkSelfWrite records that the reconciler just wrote the given object.
func (g *Guard) MarkSelfWrite(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.expireLocked()
	g.entries[id] = g.now()
}

// IsSelfWrite reports whether a change notification for the object should be
// attributed to the reconciler's own write.
func (g *Guard) IsSelfWrite(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	writtenAt, ok := g.entries[id]
	if !ok {
		return false
	}
	if g.now().Sub(writtenAt) >= g.ttl {
		delete(g.entries, id)
		return false
	}
	return true
}

// Len returns the number of marks currently held, including not yet expired
// ones. Intended for tests and diagnostics.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.expireLocked()
	return len(g.entries)
}

func (g *Guard) expireLocked() {
	now := g.now()
	for id, writtenAt := range g.entries {
		if now.Sub(writtenAt) >= g.ttl {
			delete(g.entries, id)
		}
	}
}
