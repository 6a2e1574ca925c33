package command

import (
	"context"
	"log/slog"
	"time"

	"github.com/rollcall-hub/rollcall/internal/domain/attendance"
	"github.com/rollcall-hub/rollcall/internal/domain/device"
	"github.com/rollcall-hub/rollcall/internal/domain/journal"
	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION LIFECYCLE
// Opening a session, sweeping silent devices into early exits, and closing
// the session with final attendance states.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultAbsenceTimeout is how long a confirmed device may stay silent before
// its student is considered to have left.
const DefaultAbsenceTimeout = 10 * time.Minute

// Flusher drains the observation pipeline. Implemented by the pipeline; nil
// means there is nothing to drain.
type Flusher interface {
	Flush(ctx context.Context) error
}

// RetrainControl manages the background classifier retrain task.
type RetrainControl interface {
	// Restart cancels any in-flight retrain and launches a fresh one.
	Restart() error

	// Cancel stops any in-flight retrain without starting another.
	Cancel()
}

// Archiver pushes pending journal entries to durable storage.
type Archiver interface {
	Run(ctx context.Context) error
}

// OpenSessionCommand opens a class meeting.
type OpenSessionCommand struct {
	// Session is the ID to open; zero generates a fresh one.
	Session shared.SessionID
	At      time.Time
}

// SweepAbsencesCommand runs the absence sweep at the given instant.
type SweepAbsencesCommand struct {
	Session shared.SessionID
	Now     time.Time
}

// CloseSessionCommand finalizes a class meeting.
type CloseSessionCommand struct {
	Session shared.SessionID
	At      time.Time
}

// SweepResult lists the students swept into an early exit.
type SweepResult struct {
	LeftEarly []shared.StudentID
}

// CloseResult summarizes the final attendance states.
type CloseResult struct {
	PresentAtClose []shared.StudentID
	LeftEarly      []shared.StudentID
}

// SessionHandler handles session lifecycle commands.
type SessionHandler struct {
	registry   device.Registry
	attendance attendance.Repository
	recorder   recorder
	flusher    Flusher
	retrain    RetrainControl
	archiver   Archiver
	timeout    time.Duration
	logger     *slog.Logger
}

// SessionHandlerConfig configures the session handler.
type SessionHandlerConfig struct {
	// AbsenceTimeout is the silence window before a student is swept out.
	AbsenceTimeout time.Duration
}

// NewSessionHandler creates a new SessionHandler. Flusher, retrain control
// and archiver are optional; nil values skip the corresponding close step.
func NewSessionHandler(
	registry device.Registry,
	attendanceRepo attendance.Repository,
	journalLog journal.Journal,
	bus shared.EventBus,
	flusher Flusher,
	retrain RetrainControl,
	archiver Archiver,
	cfg SessionHandlerConfig,
	logger *slog.Logger,
) *SessionHandler {
	if cfg.AbsenceTimeout <= 0 {
		cfg.AbsenceTimeout = DefaultAbsenceTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionHandler{
		registry:   registry,
		attendance: attendanceRepo,
		recorder:   newRecorder(journalLog, bus, logger),
		flusher:    flusher,
		retrain:    retrain,
		archiver:   archiver,
		timeout:    cfg.AbsenceTimeout,
		logger:     logger,
	}
}

// Open records the start of a session.
func (h *SessionHandler) Open(ctx context.Context, cmd OpenSessionCommand) (shared.SessionID, error) {
	session := cmd.Session
	if session.IsZero() {
		session = shared.NewSessionID()
	}
	at := orNow(cmd.At)

	if err := h.recorder.append(ctx, shared.EventSessionOpened, session, at, nil); err != nil {
		return "", err
	}
	h.recorder.publish(shared.NewSessionEvent(shared.EventSessionOpened, session, at))

	h.logger.Info("session opened", "session", session)
	return session, nil
}

// SweepAbsences closes the presence segment of every student whose confirmed
// device has been silent longer than the timeout. The exit time is the last
// sighting, not the sweep time. Manually marked presence is never swept; only
// the professor takes it back.
func (h *SessionHandler) SweepAbsences(ctx context.Context, cmd SweepAbsencesCommand) (*SweepResult, error) {
	now := orNow(cmd.Now)

	lastSeen, manual, err := h.confirmedSightings(ctx, cmd.Session)
	if err != nil {
		return nil, err
	}

	records, err := h.attendance.BySession(ctx, cmd.Session)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{}
	for _, rec := range records {
		if rec.State() != attendance.StatePresent {
			continue
		}
		seen, tracked := lastSeen[rec.Student]
		if !tracked || manual[rec.Student] {
			continue
		}
		if now.Sub(seen) <= h.timeout {
			continue
		}

		if err := rec.LeaveEarly(seen); err != nil {
			return nil, err
		}
		if err := h.attendance.Save(ctx, rec); err != nil {
			return nil, err
		}
		if err := h.recorder.attendance(ctx, shared.EventStudentLeftEarly, rec.Student, cmd.Session, false, seen); err != nil {
			return nil, err
		}
		result.LeftEarly = append(result.LeftEarly, rec.Student)
	}
	return result, nil
}

// Close finalizes the session: drain the pipeline, close every open presence
// segment, journal the close, archive, and kick off a retrain over the
// now-complete session history.
func (h *SessionHandler) Close(ctx context.Context, cmd CloseSessionCommand) (*CloseResult, error) {
	at := orNow(cmd.At)

	if h.flusher != nil {
		if err := h.flusher.Flush(ctx); err != nil {
			return nil, err
		}
	}

	lastSeen, manual, err := h.confirmedSightings(ctx, cmd.Session)
	if err != nil {
		return nil, err
	}

	records, err := h.attendance.BySession(ctx, cmd.Session)
	if err != nil {
		return nil, err
	}

	result := &CloseResult{}
	for _, rec := range records {
		if rec.State() != attendance.StatePresent {
			continue
		}

		seen, tracked := lastSeen[rec.Student]
		stillHere := !tracked || manual[rec.Student] || at.Sub(seen) <= h.timeout
		if stillHere {
			if err := rec.CloseAsPresent(at); err != nil {
				return nil, err
			}
			if err := h.attendance.Save(ctx, rec); err != nil {
				return nil, err
			}
			if err := h.recorder.attendance(ctx, shared.EventStudentPresentAtClose, rec.Student, cmd.Session, false, at); err != nil {
				return nil, err
			}
			result.PresentAtClose = append(result.PresentAtClose, rec.Student)
			continue
		}

		if err := rec.LeaveEarly(seen); err != nil {
			return nil, err
		}
		if err := h.attendance.Save(ctx, rec); err != nil {
			return nil, err
		}
		if err := h.recorder.attendance(ctx, shared.EventStudentLeftEarly, rec.Student, cmd.Session, false, seen); err != nil {
			return nil, err
		}
		result.LeftEarly = append(result.LeftEarly, rec.Student)
	}

	if err := h.recorder.append(ctx, shared.EventSessionClosed, cmd.Session, at, nil); err != nil {
		return nil, err
	}
	h.recorder.publish(shared.NewSessionEvent(shared.EventSessionClosed, cmd.Session, at))

	if h.archiver != nil {
		if err := h.archiver.Run(ctx); err != nil {
			h.logger.Error("final archive run failed", "error", err)
		}
	}
	if h.retrain != nil {
		if err := h.retrain.Restart(); err != nil {
			h.logger.Error("retrain restart failed", "error", err)
		}
	}

	h.logger.Info("session closed",
		"session", cmd.Session,
		"present_at_close", len(result.PresentAtClose),
		"left_early", len(result.LeftEarly),
	)
	return result, nil
}

// confirmedSightings maps each student confirmed in the session to the last
// sighting of their confirmed device, and flags manual confirmations.
func (h *SessionHandler) confirmedSightings(ctx context.Context, session shared.SessionID) (map[shared.StudentID]time.Time, map[shared.StudentID]bool, error) {
	all, err := h.registry.All(ctx)
	if err != nil {
		return nil, nil, err
	}

	lastSeen := make(map[shared.StudentID]time.Time)
	manual := make(map[shared.StudentID]bool)
	for _, rec := range all {
		if rec.Status != device.StatusConfirmed || rec.ConfirmedIn != session {
			continue
		}
		if rec.LastSeen.After(lastSeen[rec.AssignedStudent]) {
			lastSeen[rec.AssignedStudent] = rec.LastSeen
		}
		if rec.ManualConfirm {
			manual[rec.AssignedStudent] = true
		}
	}
	return lastSeen, manual, nil
}
