package reconcile

import (
	"errors"
	"fmt"
)

var (
	// ErrPlatformWrite marks a create/update/delete the platform rejected.
	// The event is skipped for this pass and retried on the next one.
	ErrPlatformWrite = errors.New("platform write failed")
	// ErrUpstreamWrite marks a failed back-reference write to the system of
	// record. This risks a duplicate create on the next pass, which the
	// name+time fallback match later resolves.
	ErrUpstreamWrite = errors.New("upstream write failed")
)

// EventError is one per-event failure inside a pass. Failures never abort
// the pass; they are collected here so the caller can decide to retry.
type EventError struct {
	Op              string
	SourceEventID   string
	PlatformEventID string
	Err             error
}

func (e EventError) Error() string {
	return fmt.Sprintf("%s source=%q platform=%q: %v", e.Op, e.SourceEventID, e.PlatformEventID, e.Err)
}

func (e EventError) Unwrap() error { return e.Err }

// Report aggregates the outcome of one reconciliation pass.
type Report struct {
	Created int
	Updated int
	Deleted int
	// Skipped counts events deliberately left alone this pass: currently
	// active, or written upstream inside the quiet period.
	Skipped int
	Errors  []EventError
}

// OK reports whether the pass completed without per-event failures.
func (r *Report) OK() bool { return len(r.Errors) == 0 }
