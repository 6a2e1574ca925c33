package command

import (
	"context"
	"log/slog"
	"time"

	"github.com/rollcall-hub/rollcall/internal/domain/device"
	"github.com/rollcall-hub/rollcall/internal/domain/identity"
	"github.com/rollcall-hub/rollcall/internal/domain/journal"
	"github.com/rollcall-hub/rollcall/internal/domain/roster"
	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROSTER COMMANDS
// Enrollment management. Removing a student also releases every registry
// assignment pointing at them; device records themselves are kept.
// ══════════════════════════════════════════════════════════════════════════════

// AddStudentCommand enrolls a student, optionally with pre-bound devices.
type AddStudentCommand struct {
	Name    string
	Email   string
	Devices []string
	Session shared.SessionID
	At      time.Time
}

// Validate validates the command.
func (c AddStudentCommand) Validate() error {
	if len(c.Name) == 0 {
		return shared.ErrEmptyName
	}
	for _, raw := range c.Devices {
		if _, err := shared.NewDeviceID(raw); err != nil {
			return err
		}
	}
	return nil
}

// BindDeviceCommand registers a device identifier to an enrolled student.
type BindDeviceCommand struct {
	StudentID  shared.StudentID
	Identifier shared.DeviceID
	Session    shared.SessionID
	At         time.Time
}

// UnbindDeviceCommand removes an identifier from a student's known devices.
// Registry assignments for the identifier are untouched; the device override
// commands revoke those.
type UnbindDeviceCommand struct {
	StudentID  shared.StudentID
	Identifier shared.DeviceID
	Session    shared.SessionID
	At         time.Time
}

// RemoveStudentCommand unenrolls a student.
type RemoveStudentCommand struct {
	StudentID shared.StudentID
	Session   shared.SessionID
	At        time.Time
}

// ImportEntry is one row of a roster import.
type ImportEntry struct {
	Name    string
	Email   string
	Devices []string
}

// ImportRosterCommand enrolls a batch of students at once, typically before
// the first session of a course.
type ImportRosterCommand struct {
	Entries []ImportEntry
	Session shared.SessionID
	At      time.Time
}

// ImportRosterResult reports what an import created.
type ImportRosterResult struct {
	Added   []shared.StudentID
	Skipped int
}

// RosterHandler handles enrollment commands.
type RosterHandler struct {
	roster   roster.Repository
	registry device.Registry
	resolver *identity.Resolver
	recorder recorder
	logger   *slog.Logger
}

// NewRosterHandler creates a new RosterHandler.
func NewRosterHandler(
	rosterRepo roster.Repository,
	registry device.Registry,
	resolver *identity.Resolver,
	journalLog journal.Journal,
	bus shared.EventBus,
	logger *slog.Logger,
) *RosterHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RosterHandler{
		roster:   rosterRepo,
		registry: registry,
		resolver: resolver,
		recorder: newRecorder(journalLog, bus, logger),
		logger:   logger,
	}
}

// AddStudent enrolls one student.
func (h *RosterHandler) AddStudent(ctx context.Context, cmd AddStudentCommand) (*roster.Student, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	at := orNow(cmd.At)

	student, err := roster.NewStudent(cmd.Name, cmd.Email, at)
	if err != nil {
		return nil, err
	}
	for _, raw := range cmd.Devices {
		id, err := shared.NewDeviceID(raw)
		if err != nil {
			return nil, err
		}
		student.BindDevice(id, at)
	}

	if err := h.roster.Save(ctx, student); err != nil {
		return nil, err
	}

	err = h.recorder.append(ctx, shared.EventStudentAdded, cmd.Session, at, journal.RosterPayload{
		StudentID: student.ID,
		Name:      student.Name,
	})
	if err != nil {
		return nil, err
	}
	for id := range student.KnownDevices {
		err = h.recorder.append(ctx, shared.EventDeviceBound, cmd.Session, at, journal.RosterPayload{
			StudentID:  student.ID,
			Identifier: id,
		})
		if err != nil {
			return nil, err
		}
	}
	return student, nil
}

// BindDevice registers an identifier to a student. Fails with ErrDeviceBound
// when the identifier already belongs to somebody else.
func (h *RosterHandler) BindDevice(ctx context.Context, cmd BindDeviceCommand) error {
	if !cmd.Identifier.IsValid() {
		return shared.ErrInvalidIdentifier
	}
	at := orNow(cmd.At)

	student, err := h.roster.Get(ctx, cmd.StudentID)
	if err != nil {
		return err
	}
	if student.Owns(cmd.Identifier) {
		return nil
	}

	student.BindDevice(cmd.Identifier, at)
	if err := h.roster.Save(ctx, student); err != nil {
		return err
	}

	return h.recorder.append(ctx, shared.EventDeviceBound, cmd.Session, at, journal.RosterPayload{
		StudentID:  student.ID,
		Identifier: cmd.Identifier,
	})
}

// UnbindDevice removes an identifier from a student's known devices.
// Unbinding an identifier the student does not carry is a no-op.
func (h *RosterHandler) UnbindDevice(ctx context.Context, cmd UnbindDeviceCommand) error {
	if !cmd.Identifier.IsValid() {
		return shared.ErrInvalidIdentifier
	}
	at := orNow(cmd.At)

	student, err := h.roster.Get(ctx, cmd.StudentID)
	if err != nil {
		return err
	}
	if !student.Owns(cmd.Identifier) {
		return nil
	}

	student.UnbindDevice(cmd.Identifier, at)
	if err := h.roster.Save(ctx, student); err != nil {
		return err
	}

	return h.recorder.append(ctx, shared.EventDeviceUnbound, cmd.Session, at, journal.RosterPayload{
		StudentID:  student.ID,
		Identifier: cmd.Identifier,
	})
}

// RemoveStudent unenrolls a student and releases every assignment and pending
// candidacy pointing at them.
func (h *RosterHandler) RemoveStudent(ctx context.Context, cmd RemoveStudentCommand) error {
	at := orNow(cmd.At)

	student, err := h.roster.Remove(ctx, cmd.StudentID)
	if err != nil {
		return err
	}

	var released []identity.Outcome
	err = h.registry.Mutate(ctx, func(tx device.Txn) error {
		released, err = h.resolver.ReleaseStudent(tx, student.ID)
		return err
	})
	if err != nil {
		return err
	}

	err = h.recorder.append(ctx, shared.EventStudentRemoved, cmd.Session, at, journal.RosterPayload{
		StudentID: student.ID,
		Name:      student.Name,
	})
	if err != nil {
		return err
	}
	for _, outcome := range released {
		if err := h.recorder.assignment(ctx, outcome, cmd.Session, at); err != nil {
			return err
		}
	}
	return nil
}

// ImportRoster enrolls a batch. Rows that fail validation are skipped and
// logged rather than aborting the rest of the import.
func (h *RosterHandler) ImportRoster(ctx context.Context, cmd ImportRosterCommand) (*ImportRosterResult, error) {
	result := &ImportRosterResult{}
	for _, entry := range cmd.Entries {
		student, err := h.AddStudent(ctx, AddStudentCommand{
			Name:    entry.Name,
			Email:   entry.Email,
			Devices: entry.Devices,
			Session: cmd.Session,
			At:      cmd.At,
		})
		if err != nil {
			if shared.IsValidation(err) || shared.IsConflict(err) {
				h.logger.Warn("roster import row skipped", "name", entry.Name, "error", err)
				result.Skipped++
				continue
			}
			return result, err
		}
		result.Added = append(result.Added, student.ID)
	}
	return result, nil
}
