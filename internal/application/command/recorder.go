// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rollcall-hub/rollcall/internal/domain/attendance"
	"github.com/rollcall-hub/rollcall/internal/domain/identity"
	"github.com/rollcall-hub/rollcall/internal/domain/journal"
	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

// recorder journals transitions and announces them on the event bus. Every
// command handler embeds one so the journal and the bus always agree on what
// happened. Journal failures are fatal to the command; bus failures are
// logged and absorbed, subscribers are best-effort.
type recorder struct {
	journal journal.Journal
	bus     shared.EventBus
	logger  *slog.Logger
}

func newRecorder(j journal.Journal, bus shared.EventBus, logger *slog.Logger) recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return recorder{journal: j, bus: bus, logger: logger}
}

func (r recorder) publish(event shared.Event) {
	if r.bus == nil {
		return
	}
	if err := r.bus.Publish(event); err != nil {
		r.logger.Warn("event publish failed", "type", event.EventType(), "error", err)
	}
}

func (r recorder) append(ctx context.Context, kind shared.EventType, session shared.SessionID, at time.Time, payload interface{}) error {
	entry, err := journal.NewEntry(kind, session, at, payload)
	if err != nil {
		return err
	}
	_, err = r.journal.Append(ctx, entry)
	return err
}

// observation journals an accepted observation and announces it.
func (r recorder) observation(ctx context.Context, id shared.DeviceID, session shared.SessionID, rssi shared.Signal, at time.Time, firstSeen bool) error {
	err := r.append(ctx, shared.EventObservationRecorded, session, at, journal.ObservationPayload{
		Identifier: id,
		RSSI:       rssi,
		FirstSeen:  firstSeen,
	})
	if err != nil {
		return err
	}
	r.publish(shared.NewObservationRecordedEvent(id, session, rssi, at, firstSeen))
	return nil
}

// assignment journals a resolution outcome and announces it, including the
// demotion of a displaced record when the outcome carries one.
func (r recorder) assignment(ctx context.Context, out identity.Outcome, session shared.SessionID, at time.Time) error {
	if !out.Changed() {
		return nil
	}

	if out.Demoted != nil {
		err := r.append(ctx, shared.EventAssignmentPending, session, at, journal.AssignmentPayload{
			Identifier: out.Demoted.Identifier,
			StudentID:  out.Demoted.StudentID,
		})
		if err != nil {
			return err
		}
		r.publish(shared.NewAssignmentChangedEvent(
			shared.EventAssignmentPending, out.Demoted.Identifier, out.Demoted.StudentID, session, 0, false, at))
	}

	err := r.append(ctx, out.Transition, session, at, journal.AssignmentPayload{
		Identifier: out.Identifier,
		StudentID:  out.StudentID,
		Score:      out.Score,
		Manual:     out.Manual,
	})
	if err != nil {
		return err
	}
	r.publish(shared.NewAssignmentChangedEvent(
		out.Transition, out.Identifier, out.StudentID, session, out.Score, out.Manual, at))
	return nil
}

// enterPresence opens a presence segment for the student, creating the
// attendance record on first entry. Returns true when a segment was opened;
// an already open segment is a no-op.
func enterPresence(ctx context.Context, repo attendance.Repository, rec recorder, session shared.SessionID, student shared.StudentID, at time.Time, manual bool) (bool, error) {
	record, err := repo.Get(ctx, session, student)
	if errors.Is(err, shared.ErrAttendanceNotFound) || shared.IsNotFound(err) {
		record = attendance.NewRecord(session, student)
	} else if err != nil {
		return false, err
	}

	entered, err := record.Enter(at)
	if err != nil {
		return false, err
	}
	if !entered {
		return false, nil
	}
	if err := repo.Save(ctx, record); err != nil {
		return false, err
	}
	if err := rec.attendance(ctx, shared.EventStudentEntered, student, session, manual, at); err != nil {
		return false, err
	}
	return true, nil
}

// attendance journals a presence transition and announces it.
func (r recorder) attendance(ctx context.Context, kind shared.EventType, student shared.StudentID, session shared.SessionID, manual bool, at time.Time) error {
	err := r.append(ctx, kind, session, at, journal.AttendancePayload{
		StudentID: student,
		Manual:    manual,
	})
	if err != nil {
		return err
	}
	r.publish(shared.NewAttendanceChangedEvent(kind, student, session, manual, at))
	return nil
}
