// Command example runs a guildsync daemon against an in-memory scheduling
// platform, seeding a few canonical events so the reconciliation passes have
// something to do. It demonstrates the full wiring: config, upstream store,
// loop guard, reconciler and scheduler.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ferrydust/guildsync/caldav"
	"github.com/ferrydust/guildsync/config"
	"github.com/ferrydust/guildsync/guard"
	"github.com/ferrydust/guildsync/reconcile"
	"github.com/ferrydust/guildsync/storage"
	"github.com/ferrydust/guildsync/storage/memory"
	"github.com/ferrydust/guildsync/storage/sqlite"
)

func main() {
	configPath := flag.String("config", "guildsync.yaml", "path to the YAML configuration file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	if cfg.ScopeID == "" {
		cfg.ScopeID = "demo-guild"
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	store, cleanup, err := buildUpstream(cfg, logger)
	if err != nil {
		logger.Error("failed to open upstream store", "kind", cfg.Upstream.Kind, "error", err)
		os.Exit(1)
	}
	defer cleanup()

	platform := memory.NewPlatformStore()
	g := guard.New(cfg.SelfWriteSuppress())

	r, err := reconcile.New(store, platform, g, logger, reconcile.Options{
		ScopeID:        cfg.ScopeID,
		MaxOccurrences: cfg.MaxMaterializedOccurrences,
		MatchTolerance: cfg.MatchTolerance(),
		QuietPeriod:    cfg.SelfWriteSuppress(),
	})
	if err != nil {
		logger.Error("failed to build reconciler", "error", err)
		os.Exit(1)
	}

	s, err := reconcile.NewScheduler(r, cfg.RefreshCron, cfg.SyncWindowMonths)
	if err != nil {
		logger.Error("failed to build scheduler", "schedule", cfg.RefreshCron, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s.Start(ctx)
	defer s.Stop()

	logger.Info("guildsync running",
		"scope", cfg.ScopeID,
		"upstream", cfg.Upstream.Kind,
		"schedule", cfg.RefreshCron)

	<-ctx.Done()
	logger.Info("shutting down")
}

// buildUpstream opens the configured system-of-record backend. The sqlite
// backend is seeded with demo events when the database is empty.
func buildUpstream(cfg *config.Config, logger *slog.Logger) (storage.CanonicalStore, func(), error) {
	switch cfg.Upstream.Kind {
	case "caldav":
		src, err := caldav.New(caldav.Options{
			URL:      cfg.Upstream.CalDAVURL,
			Username: cfg.Upstream.CalDAVUsername,
			Password: cfg.Upstream.CalDAVPassword,
			Logger:   logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return src, func() {}, nil
	default:
		db, err := sqlite.New(cfg.Upstream.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := seedIfEmpty(db, logger); err != nil {
			db.Close()
			return nil, nil, err
		}
		return db, func() { db.Close() }, nil
	}
}

func seedIfEmpty(db *sqlite.Store, logger *slog.Logger) error {
	ctx := context.Background()
	existing, err := db.ListEvents(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	now := time.Now().UTC().Truncate(time.Hour)
	seeds := []storage.CanonicalEvent{
		{
			SourceEventID: "officers-kickoff",
			Name:          "Officers Meeting",
			Description:   "Monthly planning sync",
			StartAt:       now.Add(48 * time.Hour),
			EndAt:         now.Add(49 * time.Hour),
			Location:      "Officers voice channel",
		},
		{
			SourceEventID:     "raid-night",
			Name:              "Raid Night",
			Description:       "Weekly progression raid",
			StartAt:           now.Add(72 * time.Hour),
			EndAt:             now.Add(75 * time.Hour),
			Location:          "Raid voice channel",
			RecurringSeriesID: "raid-night",
			RecurrenceRule:    "FREQ=WEEKLY;BYDAY=TH",
		},
	}
	for _, ev := range seeds {
		if err := db.UpsertEvent(ctx, ev); err != nil {
			return err
		}
	}
	logger.Info("seeded demo events", "count", len(seeds))
	return nil
}
