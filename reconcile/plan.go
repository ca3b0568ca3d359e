package reconcile

import (
	"sort"
	"time"

	"github.com/ferrydust/guildsync/recurrence"
	"github.com/ferrydust/guildsync/storage"
)

// Entry pairs a canonical event with the platform object it matched, if any.
type Entry struct {
	Canonical storage.CanonicalEvent
	// Platform is the matched existing object; nil for creates.
	Platform *storage.PlatformEvent
	// Recurrence is the recurrence the platform object should carry; nil
	// for one-off events.
	Recurrence *recurrence.DiscreteRecurrence
	// SeriesRest holds the remaining occurrences of a collapsed series;
	// they are represented by this entry's master object and only need
	// upstream bookkeeping.
	SeriesRest []storage.CanonicalEvent
}

// Plan is the computed diff for one pass: three disjoint mutation lists plus
// upstream-only bookkeeping. It is transient and recomputed every pass.
type Plan struct {
	ToCreate []Entry
	ToUpdate []Entry
	ToDelete []storage.PlatformEvent
	// Bookkeeping entries need no platform mutation, only back-reference
	// or series-master writes to the system of record.
	Bookkeeping []Entry
	// Skipped counts events deferred this pass (active, or inside the
	// upstream quiet period).
	Skipped int
}

// Empty reports whether the plan mutates the platform at all.
func (p *Plan) Empty() bool {
	return len(p.ToCreate) == 0 && len(p.ToUpdate) == 0 && len(p.ToDelete) == 0
}

// desiredEvent is one canonical event after window filtering and series
// collapse, ready to be matched against the platform.
type desiredEvent struct {
	canonical storage.CanonicalEvent
	rec       *recurrence.DiscreteRecurrence
	rest      []storage.CanonicalEvent
}

// computePlan derives the pass plan from a snapshot of both sides. It is
// pure with respect to both stores; Run executes the result.
func (r *Reconciler) computePlan(now, windowStart, windowEnd time.Time, canonicals []storage.CanonicalEvent, platforms []storage.PlatformEvent) *Plan {
	desired := r.desiredEvents(now, windowStart, windowEnd, canonicals)
	index := newPlatformIndex(platforms)
	plan := &Plan{}
	referenced := make(map[string]bool)

	for _, d := range desired {
		entry := Entry{Canonical: d.canonical, Recurrence: d.rec, SeriesRest: d.rest}

		existing := index.match(d.canonical, r.opts.MatchTolerance)
		if existing == nil {
			plan.ToCreate = append(plan.ToCreate, entry)
			continue
		}
		referenced[existing.ID] = true
		entry.Platform = existing

		// Live events are never edited or deleted mid-session; the next
		// pass picks them up once they are over.
		if existing.ActiveAt(now) {
			plan.Skipped++
			continue
		}
		// A fresh upstream write may mean a platform-side edit is still
		// being mirrored; hold off one pass rather than clobber it.
		quiet := now.Sub(d.canonical.LastWrittenAt) < r.opts.QuietPeriod

		if recurrenceChanged(d.rec, existing.Recurrence) {
			if quiet {
				plan.Skipped++
				continue
			}
			if existing.CreatedBy == storage.ActorBot {
				// The platform cannot rewrite a live recurrence rule in
				// place; replace the object.
				plan.ToDelete = append(plan.ToDelete, *existing)
				create := entry
				create.Platform = nil
				plan.ToCreate = append(plan.ToCreate, create)
				continue
			}
			// User-created events keep their recurrence; apply only
			// additive field corrections.
			entry.Recurrence = existing.Recurrence
			if r.fieldsDiffer(d.canonical, existing) {
				plan.ToUpdate = append(plan.ToUpdate, entry)
			}
			continue
		}

		if r.fieldsDiffer(d.canonical, existing) {
			if quiet {
				plan.Skipped++
				continue
			}
			plan.ToUpdate = append(plan.ToUpdate, entry)
			continue
		}

		if r.needsBookkeeping(entry, existing.ID) {
			plan.Bookkeeping = append(plan.Bookkeeping, entry)
		}
	}

	// Deletion pass: platform objects no canonical event claims. Ownership
	// decides, not window membership: only bot-created objects are removed,
	// and never while running or already canceled.
	for i := range platforms {
		p := &platforms[i]
		if referenced[p.ID] || p.CreatedBy != storage.ActorBot {
			continue
		}
		if p.Status == storage.StatusCanceled || p.ActiveAt(now) {
			continue
		}
		plan.ToDelete = append(plan.ToDelete, *p)
	}

	return plan
}

// desiredEvents filters canonical events to the pass window and collapses
// recurring series: a representable series keeps only its earliest
// occurrence, tagged with the translated recurrence; an unsupported series
// degrades to independent one-off events for every occurrence.
func (r *Reconciler) desiredEvents(now, windowStart, windowEnd time.Time, canonicals []storage.CanonicalEvent) []desiredEvent {
	var singles []storage.CanonicalEvent
	series := make(map[string][]storage.CanonicalEvent)

	for _, ev := range canonicals {
		// The platform refuses events starting in the past, and an event
		// already over has nothing left to materialize.
		if !ev.StartAt.After(now) || !ev.EndAt.After(now) {
			continue
		}
		if ev.StartAt.Before(windowStart) || ev.StartAt.After(windowEnd) {
			continue
		}
		if ev.Recurring() {
			series[ev.RecurringSeriesID] = append(series[ev.RecurringSeriesID], ev)
		} else {
			singles = append(singles, ev)
		}
	}

	out := make([]desiredEvent, 0, len(singles)+len(series))
	for _, ev := range singles {
		out = append(out, desiredEvent{canonical: ev})
	}

	for id, occurrences := range series {
		sort.Slice(occurrences, func(i, j int) bool {
			return occurrences[i].StartAt.Before(occurrences[j].StartAt)
		})
		first := occurrences[0]

		rec, err := recurrence.ToDiscrete(first.RecurrenceRule, first.StartAt, r.opts.MaxOccurrences).Get()
		if err != nil {
			// Correctness over compactness: keep every occurrence.
			r.logger.Debug("series not representable on platform, materializing occurrences individually",
				"series_id", id,
				"rule", first.RecurrenceRule,
				"error", err)
			for _, ev := range occurrences {
				out = append(out, desiredEvent{canonical: ev})
			}
			continue
		}
		out = append(out, desiredEvent{canonical: first, rec: &rec, rest: occurrences[1:]})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].canonical, out[j].canonical
		if !a.StartAt.Equal(b.StartAt) {
			return a.StartAt.Before(b.StartAt)
		}
		return a.SourceEventID < b.SourceEventID
	})
	return out
}

// fieldsDiffer reports whether a matched platform object disagrees with the
// canonical event beyond the match tolerance. Recurrence shape is compared
// separately by the caller.
func (r *Reconciler) fieldsDiffer(ev storage.CanonicalEvent, p *storage.PlatformEvent) bool {
	if ev.Name != p.Name || ev.Description != p.Description || ev.Location != p.Location {
		return true
	}
	if !withinTolerance(ev.StartAt, p.StartAt, r.opts.MatchTolerance) {
		return true
	}
	// Platform objects without an end time never disagree on it.
	if !p.EndAt.IsZero() && !withinTolerance(ev.EndAt, p.EndAt, r.opts.MatchTolerance) {
		return true
	}
	return false
}

// needsBookkeeping reports whether upstream records lag behind an otherwise
// converged entry: a stale back-reference, or series occurrences not yet
// pointing at their master.
func (r *Reconciler) needsBookkeeping(entry Entry, platformID string) bool {
	if entry.Canonical.PlatformEventID != platformID || entry.Canonical.MasterPlatformEventID != "" {
		return true
	}
	for _, rest := range entry.SeriesRest {
		if rest.MasterPlatformEventID != platformID || rest.PlatformEventID != "" {
			return true
		}
	}
	return false
}

func recurrenceChanged(want, have *recurrence.DiscreteRecurrence) bool {
	if (want == nil) != (have == nil) {
		return true
	}
	return want != nil && !want.Equal(*have)
}

func withinTolerance(a, b time.Time, tolerance time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= tolerance
}

// platformIndex matches canonical events to platform objects. Each object
// can be consumed at most once per pass, so two canonical events can never
// claim the same platform object even under name/time collisions.
type platformIndex struct {
	byID     map[string]*storage.PlatformEvent
	all      []*storage.PlatformEvent
	consumed map[string]bool
}

func newPlatformIndex(events []storage.PlatformEvent) *platformIndex {
	idx := &platformIndex{
		byID:     make(map[string]*storage.PlatformEvent, len(events)),
		consumed: make(map[string]bool),
	}
	for i := range events {
		p := &events[i]
		idx.byID[p.ID] = p
		idx.all = append(idx.all, p)
	}
	sort.Slice(idx.all, func(i, j int) bool { return idx.all[i].ID < idx.all[j].ID })
	return idx
}

// match resolves a canonical event to a platform object: by back-reference
// first, then by exact name plus start/end agreement within the tolerance.
// The fallback recovers objects whose platform identity was lost, e.g. after
// a manual delete-and-recreate, without duplicating them.
func (x *platformIndex) match(ev storage.CanonicalEvent, tolerance time.Duration) *storage.PlatformEvent {
	if ev.PlatformEventID != "" {
		if p, ok := x.byID[ev.PlatformEventID]; ok && !x.consumed[p.ID] &&
			withinTolerance(ev.StartAt, p.StartAt, tolerance) {
			x.consumed[p.ID] = true
			return p
		}
	}
	for _, p := range x.all {
		if x.consumed[p.ID] || p.Name != ev.Name {
			continue
		}
		if !withinTolerance(ev.StartAt, p.StartAt, tolerance) {
			continue
		}
		if !p.EndAt.IsZero() && !withinTolerance(ev.EndAt, p.EndAt, tolerance) {
			continue
		}
		x.consumed[p.ID] = true
		return p
	}
	return nil
}
