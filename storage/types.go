package storage

import (
	"time"

	"github.com/ferrydust/guildsync/recurrence"
)

// CanonicalEvent is one event as held by the system of record. Identity for
// matching is SourceEventID; PlatformEventID is a back-reference filled in by
// the reconciler once the event is materialized on the target platform.
type CanonicalEvent struct {
	// SourceEventID is the upstream identity key.
	SourceEventID string

	// PlatformEventID points at the platform object materialized for this
	// event, empty until the reconciler has created one.
	PlatformEventID string

	// MasterPlatformEventID points at the recurring master object when this
	// occurrence is represented by a series master rather than an
	// independent platform object.
	MasterPlatformEventID string

	Name        string
	Description string
	StartAt     time.Time
	EndAt       time.Time
	Location    string

	// RecurringSeriesID groups pre-expanded occurrences of one series.
	// Occurrences sharing an id are ordered by StartAt.
	RecurringSeriesID string

	// RecurrenceRule is the RFC5545 RRULE string, empty for one-off events.
	RecurrenceRule string

	// LastWrittenAt is the time of the most recent upstream write. The
	// reconciler holds off updates for a short quiet period afterwards in
	// case a platform-originated edit is still in flight.
	LastWrittenAt time.Time
}

// Recurring reports whether the event belongs to a recurring series: the
// series id is set and the rule denotes more than a single occurrence.
func (e *CanonicalEvent) Recurring() bool {
	return e.RecurringSeriesID != "" && recurrence.MultiOccurrence(e.RecurrenceRule)
}

// PlatformEventStatus is the lifecycle state of a platform event.
type PlatformEventStatus int

const (
	StatusScheduled PlatformEventStatus = iota
	StatusActive
	StatusCanceled
)

// String provides a human-readable representation of the status.
func (s PlatformEventStatus) String() string {
	switch s {
	case StatusActive:
		return "Active"
	case StatusCanceled:
		return "Canceled"
	default:
		return "Scheduled"
	}
}

// Actor identifies who created a platform event. Provenance decides what the
// reconciler may do: only bot-created events are ever deleted or have their
// recurrence rewritten; user-created events receive additive corrections
// only.
type Actor int

const (
	ActorBot Actor = iota
	ActorUser
)

// String provides a human-readable representation of the actor.
func (a Actor) String() string {
	if a == ActorUser {
		return "User"
	}
	return "Bot"
}

// PlatformEvent is one scheduled event on the target platform.
type PlatformEvent struct {
	ID          string
	Name        string
	Description string
	StartAt     time.Time
	// EndAt may be zero; some platform events carry no explicit end.
	EndAt    time.Time
	Location string
	// Recurrence is nil for one-off events.
	Recurrence *recurrence.DiscreteRecurrence
	Status     PlatformEventStatus
	CreatedBy  Actor
}

// ActiveAt reports whether the event is running at the given instant. An
// event without an end time is judged by its platform status alone.
func (e *PlatformEvent) ActiveAt(now time.Time) bool {
	if e.Status == StatusActive {
		return true
	}
	if e.EndAt.IsZero() {
		return false
	}
	return !now.Before(e.StartAt) && now.Before(e.EndAt)
}
