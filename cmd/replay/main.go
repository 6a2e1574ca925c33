// Package main is the journal replay tool. It rebuilds the state of an
// archived session from PostgreSQL and prints the attendance report, which is
// how a report is recovered after the tracker process is gone.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/rollcall-hub/rollcall/internal/application/projection"
	"github.com/rollcall-hub/rollcall/internal/application/query"
	"github.com/rollcall-hub/rollcall/internal/domain/shared"
	"github.com/rollcall-hub/rollcall/internal/infrastructure/persistence/memory"
	"github.com/rollcall-hub/rollcall/internal/infrastructure/persistence/postgres"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var (
		sessionFlag = flag.String("session", "", "session ID to replay (required)")
		formatFlag  = flag.String("format", "csv", "report format: csv or json")
		untilFlag   = flag.Uint64("until", 0, "stop after this journal sequence number (0 replays everything)")
		dbFlag      = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL URL of the journal archive")
		debugFlag   = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if *debugFlag {
		opts.Level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, opts))

	session := shared.SessionID(*sessionFlag)
	if session.IsZero() {
		flag.Usage()
		return fmt.Errorf("-session is required")
	}
	if *dbFlag == "" {
		return fmt.Errorf("no archive: set DATABASE_URL or pass -database-url")
	}

	conn, err := postgres.NewConnectionFromURL(ctx, *dbFlag)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()

	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Replay into fresh in-memory stores. The same entries always rebuild the
	// same state, so the printed report matches what the tracker would have
	// served at the replay bound.
	registry := memory.NewRegistry(0)
	rosterRepo := memory.NewRoster()
	attendanceRepo := memory.NewAttendance()

	archive := postgres.NewJournalArchiveRepo(conn, session)
	replayer := projection.NewReplayer(registry, rosterRepo, attendanceRepo, log)

	applied, err := replayer.Replay(ctx, archive, projection.Options{UntilSeq: *untilFlag})
	if err != nil {
		return fmt.Errorf("replay failed: %w", err)
	}
	if applied == 0 {
		return fmt.Errorf("no journal entries archived for session %s", session)
	}
	log.Info("journal replayed", "session", session, "entries", applied)

	report, err := query.NewSessionReportHandler(attendanceRepo, rosterRepo).Report(ctx, session)
	if err != nil {
		return fmt.Errorf("failed to build report: %w", err)
	}

	switch *formatFlag {
	case "csv":
		return report.WriteCSV(os.Stdout)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	default:
		return fmt.Errorf("unknown format %q", *formatFlag)
	}
}
