package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferrydust/guildsync/storage"
)

func TestCanonicalStore_ListSortedByStart(t *testing.T) {
	s := NewCanonicalStore()
	base := time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)

	s.Put(storage.CanonicalEvent{SourceEventID: "b", StartAt: base.Add(time.Hour)})
	s.Put(storage.CanonicalEvent{SourceEventID: "a", StartAt: base})
	s.Put(storage.CanonicalEvent{SourceEventID: "c", StartAt: base.Add(2 * time.Hour)})

	events, err := s.ListEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "a", events[0].SourceEventID)
	assert.Equal(t, "c", events[2].SourceEventID)
}

func TestCanonicalStore_UpdateMissing(t *testing.T) {
	s := NewCanonicalStore()
	err := s.UpdateEvent(context.Background(), storage.CanonicalEvent{SourceEventID: "ghost"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPlatformStore_CRUD(t *testing.T) {
	s := NewPlatformStore()
	ctx := context.Background()

	created, err := s.CreateEvent(ctx, "scope-1", storage.PlatformEvent{Name: "Raid Night"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	events, err := s.ListEvents(ctx, "scope-1")
	require.NoError(t, err)
	require.Len(t, events, 1)

	updated, err := s.UpdateEvent(ctx, "scope-1", created.ID, storage.PlatformEvent{Name: "Raid Night II"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Raid Night II", updated.Name)

	require.NoError(t, s.DeleteEvent(ctx, "scope-1", created.ID))
	err = s.DeleteEvent(ctx, "scope-1", created.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPlatformStore_UpdateKeepsProvenance(t *testing.T) {
	s := NewPlatformStore()
	ctx := context.Background()

	s.Put("scope-1", storage.PlatformEvent{ID: "user-ev", Name: "Community Meetup", CreatedBy: storage.ActorUser})

	updated, err := s.UpdateEvent(ctx, "scope-1", "user-ev", storage.PlatformEvent{Name: "Community Meetup (moved)"})
	require.NoError(t, err)
	assert.Equal(t, storage.ActorUser, updated.CreatedBy)
}

func TestPlatformStore_ScopesIsolated(t *testing.T) {
	s := NewPlatformStore()
	ctx := context.Background()

	s.Put("scope-1", storage.PlatformEvent{ID: "ev-1"})

	events, err := s.ListEvents(ctx, "scope-2")
	require.NoError(t, err)
	assert.Empty(t, events)
}
