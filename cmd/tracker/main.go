// Package main is the entry point of the attendance tracker.
//
// The tracker is a single long-running process per class meeting: it reads
// the NDJSON scan stream from stdin, folds observations into the device
// registry, resolves identities, keeps attendance, and serves the review and
// reporting API over HTTP. All live state is in memory; the journal is
// archived to PostgreSQL so a crashed session can be replayed and resumed.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rollcall-hub/rollcall/config"
	"github.com/rollcall-hub/rollcall/internal/application/command"
	"github.com/rollcall-hub/rollcall/internal/application/eventhandler"
	"github.com/rollcall-hub/rollcall/internal/application/projection"
	"github.com/rollcall-hub/rollcall/internal/application/query"
	"github.com/rollcall-hub/rollcall/internal/domain/attendance"
	"github.com/rollcall-hub/rollcall/internal/domain/device"
	"github.com/rollcall-hub/rollcall/internal/domain/identity"
	"github.com/rollcall-hub/rollcall/internal/domain/journal"
	"github.com/rollcall-hub/rollcall/internal/domain/shared"
	"github.com/rollcall-hub/rollcall/internal/infrastructure/ingest"
	"github.com/rollcall-hub/rollcall/internal/infrastructure/messaging"
	"github.com/rollcall-hub/rollcall/internal/infrastructure/persistence/memory"
	"github.com/rollcall-hub/rollcall/internal/infrastructure/persistence/postgres"
	"github.com/rollcall-hub/rollcall/internal/infrastructure/persistence/redis"
	"github.com/rollcall-hub/rollcall/internal/infrastructure/pipeline"
	"github.com/rollcall-hub/rollcall/internal/infrastructure/scheduler"
	"github.com/rollcall-hub/rollcall/internal/infrastructure/scheduler/jobs"
	httpapi "github.com/rollcall-hub/rollcall/internal/interface/http"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting attendance tracker",
		"env", cfg.App.Environment,
		"debug", cfg.App.Debug,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. POSTGRESQL JOURNAL ARCHIVE (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var dbConn *postgres.Connection
	if cfg.Database.URL != "" {
		log.Info("connecting to database...")
		dbConn, err = postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer func() {
			log.Info("closing database connection...")
			dbConn.Close()
		}()

		if err := dbConn.Ping(ctx); err != nil {
			return fmt.Errorf("database ping failed: %w", err)
		}

		migrator := postgres.NewMigrator(dbConn)
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date")
	} else {
		log.Warn("DATABASE_URL not set, journal archive disabled")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS PRESENCE CACHE (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var snapshotCache attendance.SnapshotCache
	if cfg.Redis.URL != "" {
		log.Info("connecting to Redis...")
		redisCache, err := redis.NewCacheFromURL(cfg.Redis.URL)
		if err != nil {
			log.Warn("failed to connect to Redis, presence cache disabled", "error", err)
		} else {
			defer redisCache.Close()
			snapshotCache = redis.NewPresenceCache(redisCache)
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. STATE STORES
	// The registry, roster, attendance and live journal are in-memory; the
	// journal is the source of truth and is archived in the background.
	// ─────────────────────────────────────────────────────────────────────────
	registry := memory.NewRegistry(cfg.Engine.SignalHistorySize)
	rosterRepo := memory.NewRoster()
	attendanceRepo := memory.NewAttendance()
	journalLog := memory.NewJournal()
	defer journalLog.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// 6. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	eventBusConfig := messaging.DefaultInMemoryEventBusConfig()
	eventBusConfig.Logger = log
	eventBus := messaging.NewInMemoryEventBus(eventBusConfig)
	defer func() {
		log.Info("closing event bus...")
		_ = eventBus.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 7. SESSION & STARTUP REPLAY
	// Resuming replays the archived journal into the fresh stores before any
	// new observation is accepted.
	// ─────────────────────────────────────────────────────────────────────────
	session := shared.SessionID(strings.TrimSpace(cfg.Engine.SessionID))
	resuming := !session.IsZero()
	if !resuming {
		session = shared.NewSessionID()
	}

	var archive journal.Archive
	if dbConn != nil {
		archive = postgres.NewJournalArchiveRepo(dbConn, session)
	}

	if resuming {
		if archive == nil {
			return fmt.Errorf("SESSION_ID set but no archive to replay from")
		}
		replayer := projection.NewReplayer(registry, rosterRepo, attendanceRepo, log)
		applied, err := replayer.Replay(ctx, archive, projection.Options{Sink: journalLog})
		if err != nil {
			return fmt.Errorf("session replay failed: %w", err)
		}
		log.Info("session resumed from archive", "session", session, "entries", applied)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. IDENTITY RESOLUTION
	// ─────────────────────────────────────────────────────────────────────────
	policy := identity.Policy{
		AutoConfirm: shared.Confidence(cfg.Engine.AutoConfirmThreshold),
		Review:      shared.Confidence(cfg.Engine.ReviewThreshold),
	}
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("invalid resolution policy: %w", err)
	}
	classifier := identity.NewKnownDeviceClassifier(rosterRepo, identity.NewFrequencyClassifier())
	resolver := identity.NewResolver(policy)

	// ─────────────────────────────────────────────────────────────────────────
	// 9. BACKGROUND JOBS
	// ─────────────────────────────────────────────────────────────────────────
	var archiveJob *jobs.ArchiveJournal
	sched := scheduler.New(log)
	if archive != nil {
		archiveJob = jobs.NewArchiveJournal(journalLog, archive, log)
		if err := sched.Register(archiveJob, scheduler.IntervalSchedule{Interval: cfg.Engine.ArchiveInterval}); err != nil {
			return fmt.Errorf("failed to register archive job: %w", err)
		}
	}

	runner := scheduler.NewTaskRunner(log)
	defer runner.Close()
	retrain := &retrainControl{
		ctx:    ctx,
		runner: runner,
		job:    jobs.NewRetrainClassifier(journalLog, classifier, eventBus, session, log),
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 10. COMMAND & QUERY HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	recordHandler := command.NewRecordObservationHandler(
		registry, attendanceRepo, classifier, resolver, journalLog, eventBus, log)
	overrideHandler := command.NewOverrideHandler(
		registry, attendanceRepo, rosterRepo, resolver, journalLog, eventBus, log)
	rosterHandler := command.NewRosterHandler(
		rosterRepo, registry, resolver, journalLog, eventBus, log)

	deviceQueries := query.NewDeviceReviewHandler(registry)
	snapshotHandler := query.NewAttendanceSnapshotHandler(attendanceRepo, rosterRepo, snapshotCache, log)
	reportHandler := query.NewSessionReportHandler(attendanceRepo, rosterRepo)

	// ─────────────────────────────────────────────────────────────────────────
	// 11. OBSERVATION PIPELINE
	// The session handler owns the sweep and needs the pipeline as its
	// flusher, so the sweep closure is bound after both exist.
	// ─────────────────────────────────────────────────────────────────────────
	var sessionHandler *command.SessionHandler

	pl := pipeline.New(
		pipeline.Config{QueueSize: cfg.Engine.QueueSize, Logger: log},
		func(ctx context.Context, obs device.Observation) error {
			_, err := recordHandler.Handle(ctx, command.RecordObservationCommand{Observation: obs})
			return err
		},
		func(ctx context.Context, now time.Time) error {
			_, err := sessionHandler.SweepAbsences(ctx, command.SweepAbsencesCommand{Session: session, Now: now})
			return err
		},
	)

	var archiver command.Archiver
	if archiveJob != nil {
		archiver = archiveJob
	}
	sessionHandler = command.NewSessionHandler(
		registry, attendanceRepo, journalLog, eventBus,
		pl, retrain, archiver,
		command.SessionHandlerConfig{AbsenceTimeout: cfg.Engine.AbsenceTimeout},
		log,
	)

	if !resuming {
		if _, err := sessionHandler.Open(ctx, command.OpenSessionCommand{Session: session}); err != nil {
			return fmt.Errorf("failed to open session: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 12. EVENT SUBSCRIBERS
	// ─────────────────────────────────────────────────────────────────────────
	if snapshotCache != nil {
		refresher := eventhandler.NewSnapshotRefresher(snapshotHandler, snapshotCache, log)
		if err := refresher.Register(eventBus); err != nil {
			return fmt.Errorf("failed to register snapshot refresher: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 13. HTTP API
	// ─────────────────────────────────────────────────────────────────────────
	serverConfig := httpapi.DefaultConfig()
	serverConfig.Host = cfg.HTTP.Host
	serverConfig.Port = cfg.HTTP.Port
	server := httpapi.NewServer(serverConfig, httpapi.Dependencies{
		Overrides:     overrideHandler,
		Roster:        rosterHandler,
		Session:       sessionHandler,
		Devices:       deviceQueries,
		Snapshot:      snapshotHandler,
		Report:        reportHandler,
		ActiveSession: func() shared.SessionID { return session },
		Logger:        log,
	})
	serverErrCh := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 14. SCAN STREAM & PIPELINE START
	// ─────────────────────────────────────────────────────────────────────────
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	pl.Start(ctx, cfg.Engine.SweepInterval)

	adapter := ingest.NewAdapter(shared.Signal(cfg.Engine.RSSIThreshold), log)
	source := ingest.NewJSONLSource(os.Stdin, log)
	go func() {
		for raw := range source.Events(ctx) {
			obs, err := adapter.Normalize(raw, session)
			if err != nil {
				continue
			}
			if err := pl.Enqueue(ctx, obs); err != nil {
				log.Warn("observation not enqueued", "error", err)
				return
			}
		}
		log.Info("scan stream ended",
			"dropped", adapter.Dropped(),
			"filtered", adapter.Filtered(),
		)
	}()

	log.Info("attendance tracker is running",
		"session", session,
		"address", server.Address(),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 15. GRACEFUL SHUTDOWN
	// Closing the session drains the pipeline, finalizes attendance, archives
	// the journal tail and kicks off the retrain over the completed session.
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-serverErrCh:
		if err != nil {
			log.Error("HTTP server failed", "error", err)
		}
	case <-ctx.Done():
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	closeResult, err := sessionHandler.Close(shutdownCtx, command.CloseSessionCommand{Session: session})
	if err != nil {
		log.Error("session close failed", "error", err)
	} else {
		log.Info("session finalized",
			"present_at_close", len(closeResult.PresentAtClose),
			"left_early", len(closeResult.LeftEarly),
		)
	}

	pl.Stop()
	sched.Stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", "error", err)
	}

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// retrainControl adapts the one-shot task runner to the session handler's
// retrain hooks.
type retrainControl struct {
	ctx    context.Context
	runner *scheduler.TaskRunner
	job    *jobs.RetrainClassifier
}

func (r *retrainControl) Restart() error {
	return r.runner.Launch(r.ctx, r.job)
}

func (r *retrainControl) Cancel() {
	r.runner.Cancel(r.job.Name())
}

// setupLogger configures structured logging. Logs go to stderr: stdin carries
// the scan stream and stdout stays clean for shell composition.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}
