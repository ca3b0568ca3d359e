package guard

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGuard_MarkAndCheck(t *testing.T) {
	current := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	g := NewWithClock(10*time.Second, func() time.Time { return current })

	assert.False(t, g.IsSelfWrite("ev-1"))

	g.MarkSelfWrite("ev-1")
	assert.True(t, g.IsSelfWrite("ev-1"))
	assert.False(t, g.IsSelfWrite("ev-2"))

	// Just inside the TTL.
	current = current.Add(9 * time.Second)
	assert.True(t, g.IsSelfWrite("ev-1"))

	// At the TTL boundary the mark no longer applies.
	current = current.Add(time.Second)
	assert.False(t, g.IsSelfWrite("ev-1"))
}

func TestGuard_ReMarkExtendsWindow(t *testing.T) {
	current := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	g := NewWithClock(10*time.Second, func() time.Time { return current })

	g.MarkSelfWrite("ev-1")
	current = current.Add(8 * time.Second)
	g.MarkSelfWrite("ev-1")
	current = current.Add(8 * time.Second)
	assert.True(t, g.IsSelfWrite("ev-1"))
}

func TestGuard_LazyExpiry(t *testing.T) {
	current := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	g := NewWithClock(10*time.Second, func() time.Time { return current })

	g.MarkSelfWrite("ev-1")
	g.MarkSelfWrite("ev-2")
	assert.Equal(t, 2, g.Len())

	current = current.Add(time.Minute)
	assert.Equal(t, 0, g.Len())
}

func TestGuard_ConcurrentAccess(t *testing.T) {
	g := New(time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				g.MarkSelfWrite("shared")
				g.IsSelfWrite("shared")
			}
		}()
	}
	wg.Wait()

	assert.True(t, g.IsSelfWrite("shared"))
}
