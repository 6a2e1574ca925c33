package command

import (
	"context"
	"log/slog"
	"time"

	"github.com/rollcall-hub/rollcall/internal/domain/attendance"
	"github.com/rollcall-hub/rollcall/internal/domain/device"
	"github.com/rollcall-hub/rollcall/internal/domain/identity"
	"github.com/rollcall-hub/rollcall/internal/domain/journal"
	"github.com/rollcall-hub/rollcall/internal/domain/roster"
	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFESSOR OVERRIDES
// Manual decisions over the registry and attendance. Professor decisions are
// authoritative and journaled with the manual flag set, so replay and the
// resolver both know not to displace them automatically.
// ══════════════════════════════════════════════════════════════════════════════

// ConfirmAssignmentCommand confirms a device to a student by hand.
type ConfirmAssignmentCommand struct {
	Identifier shared.DeviceID
	StudentID  shared.StudentID
	Session    shared.SessionID

	// Force demotes the student's current confirmed device instead of
	// failing on the conflict.
	Force bool

	// At is the decision time; zero means now.
	At time.Time
}

// Validate validates the command.
func (c ConfirmAssignmentCommand) Validate() error {
	if !c.Identifier.IsValid() {
		return shared.ErrInvalidIdentifier
	}
	if c.StudentID.IsZero() {
		return shared.ErrUnknownStudent
	}
	if !c.Session.IsValid() {
		return shared.ErrSessionNotOpen
	}
	return nil
}

// RejectAssignmentCommand clears a pending review without an assignment.
type RejectAssignmentCommand struct {
	Identifier shared.DeviceID
	Session    shared.SessionID
	At         time.Time
}

// UnassignDeviceCommand revokes an assignment entirely.
type UnassignDeviceCommand struct {
	Identifier shared.DeviceID
	Session    shared.SessionID
	At         time.Time
}

// MarkAttendanceCommand sets a student's presence by hand, for students whose
// device never shows up or who are present without one.
type MarkAttendanceCommand struct {
	StudentID shared.StudentID
	Session   shared.SessionID

	// Present opens a segment; false closes the open one as an early exit.
	Present bool

	At time.Time
}

// OverrideResult reports what a professor decision changed.
type OverrideResult struct {
	Outcome identity.Outcome
	Changed bool
}

// OverrideHandler handles all professor override commands.
type OverrideHandler struct {
	registry   device.Registry
	attendance attendance.Repository
	roster     roster.Repository
	resolver   *identity.Resolver
	recorder   recorder
	logger     *slog.Logger
}

// NewOverrideHandler creates a new OverrideHandler.
func NewOverrideHandler(
	registry device.Registry,
	attendanceRepo attendance.Repository,
	rosterRepo roster.Repository,
	resolver *identity.Resolver,
	journalLog journal.Journal,
	bus shared.EventBus,
	logger *slog.Logger,
) *OverrideHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OverrideHandler{
		registry:   registry,
		attendance: attendanceRepo,
		roster:     rosterRepo,
		resolver:   resolver,
		recorder:   newRecorder(journalLog, bus, logger),
		logger:     logger,
	}
}

// ConfirmAssignment applies a manual confirmation and marks the student
// present as of the decision time.
func (h *OverrideHandler) ConfirmAssignment(ctx context.Context, cmd ConfirmAssignmentCommand) (*OverrideResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	if _, err := h.roster.Get(ctx, cmd.StudentID); err != nil {
		return nil, err
	}
	at := orNow(cmd.At)

	var outcome identity.Outcome
	err := h.registry.Mutate(ctx, func(tx device.Txn) error {
		var err error
		outcome, err = h.resolver.ConfirmManual(tx, cmd.Identifier, cmd.StudentID, cmd.Session, cmd.Force)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !outcome.Changed() {
		return &OverrideResult{}, nil
	}

	if err := h.recorder.assignment(ctx, outcome, cmd.Session, at); err != nil {
		return nil, err
	}
	if _, err := h.markPresent(ctx, cmd.Session, cmd.StudentID, at, true); err != nil {
		return nil, err
	}
	return &OverrideResult{Outcome: outcome, Changed: true}, nil
}

// RejectAssignment clears a pending review. The device stays observable and
// may be queued for review again by a later, stronger prediction.
func (h *OverrideHandler) RejectAssignment(ctx context.Context, cmd RejectAssignmentCommand) (*OverrideResult, error) {
	if !cmd.Identifier.IsValid() {
		return nil, shared.ErrInvalidIdentifier
	}
	at := orNow(cmd.At)

	var outcome identity.Outcome
	err := h.registry.Mutate(ctx, func(tx device.Txn) error {
		var err error
		outcome, err = h.resolver.Reject(tx, cmd.Identifier)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := h.recorder.assignment(ctx, outcome, cmd.Session, at); err != nil {
		return nil, err
	}
	return &OverrideResult{Outcome: outcome, Changed: outcome.Changed()}, nil
}

// UnassignDevice revokes an assignment. Attendance already accrued by the
// student is left alone; only the device link is severed.
func (h *OverrideHandler) UnassignDevice(ctx context.Context, cmd UnassignDeviceCommand) (*OverrideResult, error) {
	if !cmd.Identifier.IsValid() {
		return nil, shared.ErrInvalidIdentifier
	}
	at := orNow(cmd.At)

	var outcome identity.Outcome
	err := h.registry.Mutate(ctx, func(tx device.Txn) error {
		var err error
		outcome, err = h.resolver.Revoke(tx, cmd.Identifier)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := h.recorder.assignment(ctx, outcome, cmd.Session, at); err != nil {
		return nil, err
	}
	return &OverrideResult{Outcome: outcome, Changed: outcome.Changed()}, nil
}

// MarkAttendance sets presence by hand.
func (h *OverrideHandler) MarkAttendance(ctx context.Context, cmd MarkAttendanceCommand) (*OverrideResult, error) {
	if cmd.StudentID.IsZero() {
		return nil, shared.ErrUnknownStudent
	}
	if _, err := h.roster.Get(ctx, cmd.StudentID); err != nil {
		return nil, err
	}
	at := orNow(cmd.At)

	if cmd.Present {
		changed, err := h.markPresent(ctx, cmd.Session, cmd.StudentID, at, true)
		if err != nil {
			return nil, err
		}
		return &OverrideResult{Changed: changed}, nil
	}

	rec, err := h.attendance.Get(ctx, cmd.Session, cmd.StudentID)
	if err != nil {
		return nil, err
	}
	if err := rec.LeaveEarly(at); err != nil {
		return nil, err
	}
	if err := h.attendance.Save(ctx, rec); err != nil {
		return nil, err
	}
	if err := h.recorder.attendance(ctx, shared.EventStudentLeftEarly, cmd.StudentID, cmd.Session, true, at); err != nil {
		return nil, err
	}
	return &OverrideResult{Changed: true}, nil
}

func (h *OverrideHandler) markPresent(ctx context.Context, session shared.SessionID, student shared.StudentID, at time.Time, manual bool) (bool, error) {
	return enterPresence(ctx, h.attendance, h.recorder, session, student, at, manual)
}

func orNow(at time.Time) time.Time {
	if at.IsZero() {
		return time.Now().UTC()
	}
	return at
}
