// Package storage defines the two collaborator contracts the reconciler
// orchestrates: the upstream system of record holding canonical events, and
// the target platform holding materialized scheduled events. Both are thin
// I/O boundaries; all diffing logic lives in the reconcile package.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a requested event doesn't exist
	ErrNotFound = errors.New("event not found")
	// ErrConflict is returned when a write conflicts with concurrent state
	ErrConflict = errors.New("event conflict")
	// ErrUnavailable is returned when the backing service cannot be reached
	ErrUnavailable = errors.New("store unavailable")
)

// CanonicalStore connects the reconciler to the system of record. Please use
// the error types provided.
type CanonicalStore interface {
	// ListEvents retrieves every canonical event. The reconciler applies
	// its own time-window filtering.
	ListEvents(ctx context.Context) ([]CanonicalEvent, error)
	// UpdateEvent persists a modified canonical event, keyed by
	// SourceEventID. The reconciler uses this to write back
	// PlatformEventID/MasterPlatformEventID and to mirror
	// platform-originated edits upstream.
	UpdateEvent(ctx context.Context, event CanonicalEvent) error
}

// PlatformClient connects the reconciler to the target platform's scheduled
// event CRUD surface. scopeID selects the platform scope (e.g. one guild or
// workspace) the events live in.
type PlatformClient interface {
	// ListEvents retrieves all not-yet-deleted events in the scope.
	ListEvents(ctx context.Context, scopeID string) ([]PlatformEvent, error)
	// CreateEvent materializes a new event and returns it with its
	// platform-assigned id.
	CreateEvent(ctx context.Context, scopeID string, event PlatformEvent) (*PlatformEvent, error)
	// UpdateEvent overwrites the mutable fields of an existing event.
	UpdateEvent(ctx context.Context, scopeID, eventID string, event PlatformEvent) (*PlatformEvent, error)
	// DeleteEvent removes an event.
	DeleteEvent(ctx context.Context, scopeID, eventID string) error
}
