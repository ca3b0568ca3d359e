package reconcile

import (
	"context"

	"github.com/ferrydust/guildsync/recurrence"
	"github.com/ferrydust/guildsync/storage"
)

// Notifier receives inbound change notifications from the target platform.
// Every notification is first checked against the loop guard: a change the
// reconciler itself just wrote is self-inflicted and must not trigger a
// reverse sync, or the two sides would chase each other forever.
type Notifier struct {
	reconciler *Reconciler
	// requestPass asks the owning scheduler for a reconciliation pass. It
	// must not block.
	requestPass func()
}

// NewNotifier wires platform notifications to the reconciler. requestPass
// is invoked for every non-self-inflicted change.
func NewNotifier(r *Reconciler, requestPass func()) *Notifier {
	if requestPass == nil {
		requestPass = func() {}
	}
	return &Notifier{reconciler: r, requestPass: requestPass}
}

// OnPlatformEventCreated handles a platform-side create.
func (n *Notifier) OnPlatformEventCreated(ctx context.Context, event storage.PlatformEvent) {
	n.handle(ctx, "created", event, false)
}

// OnPlatformEventUpdated handles a platform-side edit. Edits to objects the
// reconciler tracks are mirrored back into the system of record before the
// next pass, so the pass sees the platform's version as upstream truth
// instead of reverting it.
func (n *Notifier) OnPlatformEventUpdated(ctx context.Context, event storage.PlatformEvent) {
	n.handle(ctx, "updated", event, true)
}

// OnPlatformEventDeleted handles a platform-side delete.
func (n *Notifier) OnPlatformEventDeleted(ctx context.Context, event storage.PlatformEvent) {
	n.handle(ctx, "deleted", event, false)
}

// OnPlatformEventCanceled handles a platform-side cancellation.
func (n *Notifier) OnPlatformEventCanceled(ctx context.Context, event storage.PlatformEvent) {
	n.handle(ctx, "canceled", event, false)
}

func (n *Notifier) handle(ctx context.Context, kind string, event storage.PlatformEvent, mirror bool) {
	r := n.reconciler
	if r.guard.IsSelfWrite(event.ID) {
		r.logger.Debug("suppressed self-inflicted platform notification",
			"kind", kind,
			"platform_id", event.ID)
		return
	}

	r.logger.Debug("platform notification received",
		"kind", kind,
		"platform_id", event.ID,
		"name", event.Name)

	if mirror {
		n.mirrorEdit(ctx, event)
	}
	n.requestPass()
}

// mirrorEdit copies a platform-originated edit onto the canonical event that
// references the object. Best-effort: a failure here is only logged, since
// the subsequent pass re-reads both sides anyway.
func (n *Notifier) mirrorEdit(ctx context.Context, event storage.PlatformEvent) {
	r := n.reconciler

	canonicals, err := r.store.ListEvents(ctx)
	if err != nil {
		r.logger.Warn("mirror: list canonical events failed", "error", err)
		return
	}

	for _, ev := range canonicals {
		if ev.PlatformEventID != event.ID {
			continue
		}
		ev.Name = event.Name
		ev.Description = event.Description
		ev.StartAt = event.StartAt
		if !event.EndAt.IsZero() {
			ev.EndAt = event.EndAt
		}
		ev.Location = event.Location
		if event.Recurrence != nil {
			if rule, ok := recurrence.ToRuleString(*event.Recurrence, event.StartAt).Get(); ok {
				ev.RecurrenceRule = rule
			}
		}
		ev.LastWrittenAt = r.now()

		if err := r.store.UpdateEvent(ctx, ev); err != nil {
			r.logger.Warn("mirror: upstream write failed",
				"source_id", ev.SourceEventID,
				"platform_id", event.ID,
				"error", err)
			return
		}
		r.logger.Info("mirrored platform edit upstream",
			"source_id", ev.SourceEventID,
			"platform_id", event.ID)
		return
	}

	r.logger.Debug("mirror: no canonical event references platform object",
		"platform_id", event.ID)
}
