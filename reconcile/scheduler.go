package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs reconciliation passes periodically on a cron expression
// and on demand via RequestPass (used by the Notifier). Requests are
// coalesced: any number of triggers while a pass is pending collapse into
// one pass.
type Scheduler struct {
	reconciler   *Reconciler
	cron         *cron.Cron
	windowMonths int

	trigger chan struct{}
	done    chan struct{}
}

// NewScheduler creates a scheduler firing on cronSpec (robfig/cron syntax,
// e.g. "@every 5m" or "*/15 * * * *"). windowMonths bounds how far into the
// future canonical events are considered each pass.
func NewScheduler(r *Reconciler, cronSpec string, windowMonths int) (*Scheduler, error) {
	if windowMonths <= 0 {
		windowMonths = 6
	}
	s := &Scheduler{
		reconciler:   r,
		cron:         cron.New(),
		windowMonths: windowMonths,
		trigger:      make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	if _, err := s.cron.AddFunc(cronSpec, s.RequestPass); err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", cronSpec, err)
	}
	return s, nil
}

// Start begins periodic scheduling and pass execution. It returns
// immediately; passes run on a background goroutine until ctx is canceled
// or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	go s.loop(ctx)
	// Initial pass so a fresh start converges without waiting a period.
	s.RequestPass()
}

// Stop halts periodic scheduling and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	close(s.done)
}

// RequestPass asks for a reconciliation pass. Non-blocking; extra requests
// while one is already pending are absorbed.
func (s *Scheduler) RequestPass() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-s.trigger:
			s.runPass(ctx)
		}
	}
}

func (s *Scheduler) runPass(ctx context.Context) {
	r := s.reconciler
	now := r.now()
	windowEnd := now.AddDate(0, s.windowMonths, 0)

	report, err := r.Run(ctx, now, windowEnd)
	if err != nil {
		r.logger.Error("reconciliation pass aborted", "error", err)
		return
	}
	if !report.OK() {
		r.logger.Warn("reconciliation pass finished with event failures",
			"failed", len(report.Errors))
	}
}

// Window returns the pass window the scheduler would use right now. Useful
// for callers running one-shot passes with the same bounds.
func (s *Scheduler) Window() (time.Time, time.Time) {
	now := s.reconciler.now()
	return now, now.AddDate(0, s.windowMonths, 0)
}
