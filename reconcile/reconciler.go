// Package reconcile drives one-way-at-a-time convergence between a system
// of record holding canonical events and a target platform with a
// simplified, materialized recurrence model. Each pass recomputes a fresh
// diff from current state, so individual failures are self-healing: the
// next pass simply tries again.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ferrydust/guildsync/guard"
	"github.com/ferrydust/guildsync/storage"
)

const (
	// DefaultMaxOccurrences caps how many concrete occurrences a recurring
	// master asks the platform to expand.
	DefaultMaxOccurrences = 24
	// DefaultMatchTolerance bounds start/end drift for matching and update
	// detection. Whether this should scale with event duration is an open
	// question; it stays configurable per deployment.
	DefaultMatchTolerance = 5 * time.Minute
	// DefaultQuietPeriod suppresses reconciler overwrites right after an
	// upstream write, when a platform-originated edit may still be in
	// flight.
	DefaultQuietPeriod = 10 * time.Second
)

// Options configures a Reconciler. Zero values fall back to the defaults
// above.
type Options struct {
	// ScopeID selects the platform scope whose events are reconciled.
	ScopeID        string
	MaxOccurrences int
	MatchTolerance time.Duration
	QuietPeriod    time.Duration
	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// Reconciler orchestrates reconciliation passes. Passes are serialized: a
// pass runs to completion before the next one starts, since two interleaved
// passes could both decide to create the same missing event.
type Reconciler struct {
	store    storage.CanonicalStore
	platform storage.PlatformClient
	guard    *guard.Guard
	logger   *slog.Logger
	opts     Options
	now      func() time.Time

	runMu sync.Mutex
}

// New creates a reconciler over the two collaborator contracts.
func New(store storage.CanonicalStore, platform storage.PlatformClient, g *guard.Guard, logger *slog.Logger, opts Options) (*Reconciler, error) {
	if store == nil {
		return nil, fmt.Errorf("canonical store is required")
	}
	if platform == nil {
		return nil, fmt.Errorf("platform client is required")
	}
	if g == nil {
		return nil, fmt.Errorf("loop guard is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxOccurrences <= 0 {
		opts.MaxOccurrences = DefaultMaxOccurrences
	}
	if opts.MatchTolerance <= 0 {
		opts.MatchTolerance = DefaultMatchTolerance
	}
	if opts.QuietPeriod <= 0 {
		opts.QuietPeriod = DefaultQuietPeriod
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		store:    store,
		platform: platform,
		guard:    g,
		logger:   logger,
		opts:     opts,
		now:      now,
	}, nil
}

// Plan computes the diff for the given window without mutating either side.
func (r *Reconciler) Plan(ctx context.Context, windowStart, windowEnd time.Time) (*Plan, error) {
	canonicals, platforms, err := r.fetch(ctx)
	if err != nil {
		return nil, err
	}
	return r.computePlan(r.now(), windowStart, windowEnd, canonicals, platforms), nil
}

// Run executes one reconciliation pass over the window. Only a failure to
// list either side aborts the pass; every other failure is recorded in the
// report and the pass continues best-effort.
func (r *Reconciler) Run(ctx context.Context, windowStart, windowEnd time.Time) (*Report, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	canonicals, platforms, err := r.fetch(ctx)
	if err != nil {
		return nil, err
	}

	now := r.now()
	plan := r.computePlan(now, windowStart, windowEnd, canonicals, platforms)
	report := &Report{Skipped: plan.Skipped}

	for _, p := range plan.ToDelete {
		if err := r.platform.DeleteEvent(ctx, r.opts.ScopeID, p.ID); err != nil {
			r.recordError(report, EventError{
				Op:              "delete",
				PlatformEventID: p.ID,
				Err:             fmt.Errorf("%w: %w", ErrPlatformWrite, err),
			})
			continue
		}
		r.guard.MarkSelfWrite(p.ID)
		report.Deleted++
	}

	for _, entry := range plan.ToCreate {
		created, err := r.platform.CreateEvent(ctx, r.opts.ScopeID, r.platformSpec(entry))
		if err != nil {
			r.recordError(report, EventError{
				Op:            "create",
				SourceEventID: entry.Canonical.SourceEventID,
				Err:           fmt.Errorf("%w: %w", ErrPlatformWrite, err),
			})
			continue
		}
		r.guard.MarkSelfWrite(created.ID)
		report.Created++
		// Persist the back-reference immediately so a failed pass cannot
		// produce a duplicate create next time.
		r.syncUpstream(ctx, report, entry, created.ID)
	}

	for _, entry := range plan.ToUpdate {
		if _, err := r.platform.UpdateEvent(ctx, r.opts.ScopeID, entry.Platform.ID, r.platformSpec(entry)); err != nil {
			r.recordError(report, EventError{
				Op:              "update",
				SourceEventID:   entry.Canonical.SourceEventID,
				PlatformEventID: entry.Platform.ID,
				Err:             fmt.Errorf("%w: %w", ErrPlatformWrite, err),
			})
			continue
		}
		r.guard.MarkSelfWrite(entry.Platform.ID)
		report.Updated++
		r.syncUpstream(ctx, report, entry, entry.Platform.ID)
	}

	for _, entry := range plan.Bookkeeping {
		r.syncUpstream(ctx, report, entry, entry.Platform.ID)
	}

	r.logger.Info("reconciliation pass complete",
		"scope_id", r.opts.ScopeID,
		"created", report.Created,
		"updated", report.Updated,
		"deleted", report.Deleted,
		"skipped", report.Skipped,
		"errors", len(report.Errors))
	return report, nil
}

// fetch loads both sides of the diff. Nothing can be decided safely with
// only one side, so either failure aborts the pass.
func (r *Reconciler) fetch(ctx context.Context) ([]storage.CanonicalEvent, []storage.PlatformEvent, error) {
	canonicals, err := r.store.ListEvents(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list canonical events: %w", err)
	}
	platforms, err := r.platform.ListEvents(ctx, r.opts.ScopeID)
	if err != nil {
		return nil, nil, fmt.Errorf("list platform events: %w", err)
	}
	return canonicals, platforms, nil
}

// platformSpec renders the platform-side shape of an entry.
func (r *Reconciler) platformSpec(entry Entry) storage.PlatformEvent {
	return storage.PlatformEvent{
		Name:        entry.Canonical.Name,
		Description: entry.Canonical.Description,
		StartAt:     entry.Canonical.StartAt,
		EndAt:       entry.Canonical.EndAt,
		Location:    entry.Canonical.Location,
		Recurrence:  entry.Recurrence,
		Status:      storage.StatusScheduled,
		CreatedBy:   storage.ActorBot,
	}
}

// syncUpstream writes materialization bookkeeping back to the system of
// record: the entry's own platform back-reference, and for a collapsed
// series the master pointer on every other occurrence, so downstream
// consumers know those occurrences have no independent platform object.
func (r *Reconciler) syncUpstream(ctx context.Context, report *Report, entry Entry, platformID string) {
	ev := entry.Canonical
	if ev.PlatformEventID != platformID || ev.MasterPlatformEventID != "" {
		ev.PlatformEventID = platformID
		ev.MasterPlatformEventID = ""
		if err := r.store.UpdateEvent(ctx, ev); err != nil {
			r.recordError(report, EventError{
				Op:              "backref",
				SourceEventID:   ev.SourceEventID,
				PlatformEventID: platformID,
				Err:             fmt.Errorf("%w: %w", ErrUpstreamWrite, err),
			})
		}
	}

	for _, rest := range entry.SeriesRest {
		if rest.MasterPlatformEventID == platformID && rest.PlatformEventID == "" {
			continue
		}
		rest.MasterPlatformEventID = platformID
		rest.PlatformEventID = ""
		if err := r.store.UpdateEvent(ctx, rest); err != nil {
			r.recordError(report, EventError{
				Op:              "propagate",
				SourceEventID:   rest.SourceEventID,
				PlatformEventID: platformID,
				Err:             fmt.Errorf("%w: %w", ErrUpstreamWrite, err),
			})
		}
	}
}

func (r *Reconciler) recordError(report *Report, ee EventError) {
	r.logger.Warn("event reconciliation failed",
		"op", ee.Op,
		"source_id", ee.SourceEventID,
		"platform_id", ee.PlatformEventID,
		"error", ee.Err)
	report.Errors = append(report.Errors, ee)
}
