package reconcile

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferrydust/guildsync/guard"
	"github.com/ferrydust/guildsync/recurrence"
	"github.com/ferrydust/guildsync/storage"
	"github.com/ferrydust/guildsync/storage/memory"
)

func newNotifierFixture(t *testing.T) (*Notifier, *fixture, *int) {
	t.Helper()

	store := memory.NewCanonicalStore()
	platform := memory.NewPlatformStore()
	g := guard.NewWithClock(10*time.Second, func() time.Time { return testNow })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r, err := New(store, platform, g, logger, Options{
		ScopeID: testScope,
		Clock:   func() time.Time { return testNow },
	})
	require.NoError(t, err)

	passes := 0
	n := NewNotifier(r, func() { passes++ })
	f := &fixture{reconciler: r, store: store, platform: platform, guard: g, windowEnd: testNow.AddDate(0, 6, 0)}
	return n, f, &passes
}

func TestNotifier_SelfWriteSuppressed(t *testing.T) {
	n, f, passes := newNotifierFixture(t)

	f.guard.MarkSelfWrite("plat-1")
	n.OnPlatformEventUpdated(context.Background(), storage.PlatformEvent{ID: "plat-1"})
	assert.Zero(t, *passes)

	n.OnPlatformEventDeleted(context.Background(), storage.PlatformEvent{ID: "plat-2"})
	assert.Equal(t, 1, *passes)
}

func TestNotifier_AllKindsTriggerPass(t *testing.T) {
	n, _, passes := newNotifierFixture(t)
	ctx := context.Background()
	ev := storage.PlatformEvent{ID: "plat-1"}

	n.OnPlatformEventCreated(ctx, ev)
	n.OnPlatformEventUpdated(ctx, ev)
	n.OnPlatformEventDeleted(ctx, ev)
	n.OnPlatformEventCanceled(ctx, ev)
	assert.Equal(t, 4, *passes)
}

func TestNotifier_MirrorsPlatformEditUpstream(t *testing.T) {
	n, f, _ := newNotifierFixture(t)

	ev := canonical("src-1", "Guild Council", testNow.Add(48*time.Hour))
	ev.PlatformEventID = "plat-1"
	f.store.Put(ev)

	n.OnPlatformEventUpdated(context.Background(), storage.PlatformEvent{
		ID:       "plat-1",
		Name:     "Guild Council (moved)",
		StartAt:  ev.StartAt.Add(time.Hour),
		EndAt:    ev.EndAt.Add(time.Hour),
		Location: "Main Hall",
		Recurrence: &recurrence.DiscreteRecurrence{
			Frequency: recurrence.FreqWeekly,
			Interval:  1,
			ByWeekday: []recurrence.Weekday{recurrence.Thursday},
		},
	})

	mirrored, ok := f.store.Get("src-1")
	require.True(t, ok)
	assert.Equal(t, "Guild Council (moved)", mirrored.Name)
	assert.Equal(t, "Main Hall", mirrored.Location)
	assert.Equal(t, ev.StartAt.Add(time.Hour), mirrored.StartAt)
	assert.Equal(t, "FREQ=WEEKLY;BYDAY=TH", mirrored.RecurrenceRule)
	assert.Equal(t, testNow, mirrored.LastWrittenAt)
}

func TestNotifier_MirrorIgnoresUntrackedObjects(t *testing.T) {
	n, f, passes := newNotifierFixture(t)

	ev := canonical("src-1", "Guild Council", testNow.Add(48*time.Hour))
	f.store.Put(ev)

	n.OnPlatformEventUpdated(context.Background(), storage.PlatformEvent{ID: "unknown", Name: "Someone else's"})

	untouched, _ := f.store.Get("src-1")
	assert.Equal(t, "Guild Council", untouched.Name)
	// The pass still runs; the reconciler decides what to do with it.
	assert.Equal(t, 1, *passes)
}

func TestScheduler_RequestPassCoalesces(t *testing.T) {
	f := newFixture(t)
	s, err := NewScheduler(f.reconciler, "@every 1h", 6)
	require.NoError(t, err)

	// Triggers before the loop runs collapse into a single pending pass.
	s.RequestPass()
	s.RequestPass()
	s.RequestPass()
	assert.Len(t, s.trigger, 1)
}

func TestScheduler_RejectsBadCronSpec(t *testing.T) {
	f := newFixture(t)
	_, err := NewScheduler(f.reconciler, "not a schedule", 6)
	assert.Error(t, err)
}

func TestScheduler_Window(t *testing.T) {
	f := newFixture(t)
	s, err := NewScheduler(f.reconciler, "@every 5m", 3)
	require.NoError(t, err)

	start, end := s.Window()
	assert.Equal(t, testNow, start)
	assert.Equal(t, testNow.AddDate(0, 3, 0), end)
}
