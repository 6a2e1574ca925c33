package query

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/rollcall-hub/rollcall/internal/domain/attendance"
	"github.com/rollcall-hub/rollcall/internal/domain/roster"
	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE SNAPSHOT
// The live presence picture for a session. Served from the hot-path cache
// when one is wired; a miss rebuilds from the repositories and republishes.
// ══════════════════════════════════════════════════════════════════════════════

// AttendanceSnapshotHandler serves the live presence picture.
type AttendanceSnapshotHandler struct {
	attendance attendance.Repository
	roster     roster.Repository
	cache      attendance.SnapshotCache
	logger     *slog.Logger
}

// NewAttendanceSnapshotHandler creates a new AttendanceSnapshotHandler. The
// cache is optional.
func NewAttendanceSnapshotHandler(
	attendanceRepo attendance.Repository,
	rosterRepo roster.Repository,
	cache attendance.SnapshotCache,
	logger *slog.Logger,
) *AttendanceSnapshotHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttendanceSnapshotHandler{
		attendance: attendanceRepo,
		roster:     rosterRepo,
		cache:      cache,
		logger:     logger,
	}
}

// Snapshot returns the presence picture for the session. Every enrolled
// student appears, absentees included.
func (h *AttendanceSnapshotHandler) Snapshot(ctx context.Context, session shared.SessionID) (attendance.Snapshot, error) {
	if h.cache != nil {
		snapshot, found, err := h.cache.Load(ctx, session)
		if err != nil {
			h.logger.Warn("snapshot cache read failed", "error", err)
		} else if found {
			return snapshot, nil
		}
	}

	snapshot, err := h.Build(ctx, session, time.Now().UTC())
	if err != nil {
		return attendance.Snapshot{}, err
	}

	if h.cache != nil {
		if err := h.cache.Publish(ctx, snapshot); err != nil {
			h.logger.Warn("snapshot cache write failed", "error", err)
		}
	}
	return snapshot, nil
}

// Build assembles a snapshot from the repositories, bypassing the cache.
func (h *AttendanceSnapshotHandler) Build(ctx context.Context, session shared.SessionID, now time.Time) (attendance.Snapshot, error) {
	students, err := h.roster.All(ctx)
	if err != nil {
		return attendance.Snapshot{}, err
	}
	records, err := h.attendance.BySession(ctx, session)
	if err != nil {
		return attendance.Snapshot{}, err
	}

	byStudent := make(map[shared.StudentID]*attendance.Record, len(records))
	for _, rec := range records {
		byStudent[rec.Student] = rec
	}

	snapshot := attendance.Snapshot{
		Session:     session,
		GeneratedAt: now,
		Students:    make([]attendance.SnapshotEntry, 0, len(students)),
	}
	for _, student := range students {
		entry := attendance.SnapshotEntry{
			StudentID: student.ID,
			Name:      student.Name,
			State:     attendance.StateAbsent,
		}
		if rec, ok := byStudent[student.ID]; ok {
			entry.State = rec.State()
			entry.EnteredAt = rec.EnteredAt()
			entry.ExitedAt = rec.ExitedAt()
		}
		if entry.State == attendance.StatePresent {
			snapshot.Present++
		}
		snapshot.Students = append(snapshot.Students, entry)
	}

	// Roster reads are name-ordered already; keep the contract explicit for
	// records of students removed mid-session.
	sort.SliceStable(snapshot.Students, func(i, j int) bool {
		return snapshot.Students[i].Name < snapshot.Students[j].Name
	})
	return snapshot, nil
}
