// Package memory provides in-memory implementations of both collaborator
// contracts, used by tests and the runnable example.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ferrydust/guildsync/storage"
)

// CanonicalStore is an in-memory system of record.
type CanonicalStore struct {
	mu     sync.RWMutex
	events map[string]storage.CanonicalEvent
}

// NewCanonicalStore creates an empty in-memory canonical store.
func NewCanonicalStore() *CanonicalStore {
	return &CanonicalStore{events: make(map[string]storage.CanonicalEvent)}
}

// Put seeds or replaces an event, keyed by SourceEventID.
func (s *CanonicalStore) Put(event storage.CanonicalEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.SourceEventID] = event
}

// Get returns a stored event by source id.
func (s *CanonicalStore) Get(sourceEventID string) (storage.CanonicalEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[sourceEventID]
	return ev, ok
}

// ListEvents implements storage.CanonicalStore. Events are returned in
// ascending StartAt order for deterministic passes.
func (s *CanonicalStore) ListEvents(ctx context.Context) ([]storage.CanonicalEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]storage.CanonicalEvent, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

// UpdateEvent implements storage.CanonicalStore.
func (s *CanonicalStore) UpdateEvent(ctx context.Context, event storage.CanonicalEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[event.SourceEventID]; !ok {
		return fmt.Errorf("update %q: %w", event.SourceEventID, storage.ErrNotFound)
	}
	s.events[event.SourceEventID] = event
	return nil
}

// PlatformStore is an in-memory target platform.
type PlatformStore struct {
	mu     sync.RWMutex
	scopes map[string]map[string]storage.PlatformEvent
}

// NewPlatformStore creates an empty in-memory platform.
func NewPlatformStore() *PlatformStore {
	return &PlatformStore{scopes: make(map[string]map[string]storage.PlatformEvent)}
}

// Put seeds or replaces an event with its id intact, e.g. to simulate a
// user-created event.
func (s *PlatformStore) Put(scopeID string, event storage.PlatformEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scope(scopeID)[event.ID] = event
}

// Get returns a stored event by id.
func (s *PlatformStore) Get(scopeID, eventID string) (storage.PlatformEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.scopes[scopeID][eventID]
	return ev, ok
}

// ListEvents implements storage.PlatformClient.
func (s *PlatformStore) ListEvents(ctx context.Context, scopeID string) ([]storage.PlatformEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scope := s.scopes[scopeID]
	out := make([]storage.PlatformEvent, 0, len(scope))
	for _, ev := range scope {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

// CreateEvent implements storage.PlatformClient, assigning a fresh id.
func (s *PlatformStore) CreateEvent(ctx context.Context, scopeID string, event storage.PlatformEvent) (*storage.PlatformEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event.ID = uuid.NewString()
	s.scope(scopeID)[event.ID] = event
	return &event, nil
}

// UpdateEvent implements storage.PlatformClient.
func (s *PlatformStore) UpdateEvent(ctx context.Context, scopeID, eventID string, event storage.PlatformEvent) (*storage.PlatformEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	scope := s.scope(scopeID)
	existing, ok := scope[eventID]
	if !ok {
		return nil, fmt.Errorf("update %q: %w", eventID, storage.ErrNotFound)
	}
	event.ID = eventID
	// Provenance and lifecycle state are platform-managed, not mutable
	// through the CRUD surface.
	event.CreatedBy = existing.CreatedBy
	event.Status = existing.Status
	scope[eventID] = event
	return &event, nil
}

// DeleteEvent implements storage.PlatformClient.
func (s *PlatformStore) DeleteEvent(ctx context.Context, scopeID, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	scope := s.scope(scopeID)
	if _, ok := scope[eventID]; !ok {
		return fmt.Errorf("delete %q: %w", eventID, storage.ErrNotFound)
	}
	delete(scope, eventID)
	return nil
}

// scope returns the event map for a scope, creating it on first use. Callers
// must hold the lock.
func (s *PlatformStore) scope(scopeID string) map[string]storage.PlatformEvent {
	scope, ok := s.scopes[scopeID]
	if !ok {
		scope = make(map[string]storage.PlatformEvent)
		s.scopes[scopeID] = scope
	}
	return scope
}
