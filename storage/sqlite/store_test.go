package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferrydust/guildsync/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleEvent(id string, start time.Time) storage.CanonicalEvent {
	return storage.CanonicalEvent{
		SourceEventID:     id,
		Name:              "Officers Meeting",
		Description:       "Monthly sync",
		StartAt:           start,
		EndAt:             start.Add(2 * time.Hour),
		Location:          "Voice channel",
		RecurringSeriesID: "S1",
		RecurrenceRule:    "FREQ=MONTHLY;BYDAY=2MO",
	}
}

func TestStore_UpsertAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertEvent(ctx, sampleEvent("occ-2", base.AddDate(0, 1, 4))))
	require.NoError(t, s.UpsertEvent(ctx, sampleEvent("occ-1", base)))

	events, err := s.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "occ-1", events[0].SourceEventID)
	assert.Equal(t, base, events[0].StartAt)
	assert.Equal(t, "FREQ=MONTHLY;BYDAY=2MO", events[0].RecurrenceRule)
}

func TestStore_UpsertReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)

	ev := sampleEvent("occ-1", base)
	require.NoError(t, s.UpsertEvent(ctx, ev))

	ev.Name = "Officers Meeting (rescheduled)"
	ev.StartAt = base.Add(time.Hour)
	require.NoError(t, s.UpsertEvent(ctx, ev))

	got, err := s.GetEvent(ctx, "occ-1")
	require.NoError(t, err)
	assert.Equal(t, "Officers Meeting (rescheduled)", got.Name)
	assert.Equal(t, base.Add(time.Hour), got.StartAt)
}

func TestStore_UpdateWritesBackrefs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)

	ev := sampleEvent("occ-1", base)
	require.NoError(t, s.UpsertEvent(ctx, ev))

	ev.PlatformEventID = "plat-1"
	ev.LastWrittenAt = base.Add(-time.Minute)
	require.NoError(t, s.UpdateEvent(ctx, ev))

	got, err := s.GetEvent(ctx, "occ-1")
	require.NoError(t, err)
	assert.Equal(t, "plat-1", got.PlatformEventID)
	assert.Equal(t, base.Add(-time.Minute), got.LastWrittenAt)
}

func TestStore_UpdateMissing(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateEvent(context.Background(), storage.CanonicalEvent{SourceEventID: "ghost"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_GetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetEvent(context.Background(), "ghost")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertEvent(ctx, sampleEvent("occ-1", time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC))))
	require.NoError(t, s.DeleteEvent(ctx, "occ-1"))

	events, err := s.ListEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestStore_ZeroTimesSurvive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ev := sampleEvent("occ-1", time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC))
	ev.LastWrittenAt = time.Time{}
	require.NoError(t, s.UpsertEvent(ctx, ev))

	got, err := s.GetEvent(ctx, "occ-1")
	require.NoError(t, err)
	assert.True(t, got.LastWrittenAt.IsZero())
}
