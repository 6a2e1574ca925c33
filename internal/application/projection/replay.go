// Package projection rebuilds engine state from the session journal. Replay
// is deterministic: applying the same entries to an empty state always yields
// the same registry, roster and attendance, which is what makes the journal
// the source of truth after a restart.
package projection

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rollcall-hub/rollcall/internal/domain/attendance"
	"github.com/rollcall-hub/rollcall/internal/domain/device"
	"github.com/rollcall-hub/rollcall/internal/domain/journal"
	"github.com/rollcall-hub/rollcall/internal/domain/roster"
	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

const replayPageSize = 200

// Source is anything replay can page entries out of. Both the live journal
// and the durable archive satisfy it.
type Source interface {
	List(ctx context.Context, afterSeq uint64, limit int) ([]journal.Entry, error)
}

// Options bound a replay run.
type Options struct {
	// AfterSeq skips entries at or below this sequence number.
	AfterSeq uint64

	// UntilSeq stops after this sequence number; zero means no bound.
	UntilSeq uint64

	// Sink, when set, receives every applied entry. Startup replay points it
	// at the fresh live journal so sequence numbers continue where the
	// archive stopped.
	Sink journal.Journal
}

// Replayer applies journal entries to the state stores.
type Replayer struct {
	registry   device.Registry
	roster     roster.Repository
	attendance attendance.Repository
	logger     *slog.Logger
}

// NewReplayer creates a new Replayer.
func NewReplayer(
	registry device.Registry,
	rosterRepo roster.Repository,
	attendanceRepo attendance.Repository,
	logger *slog.Logger,
) *Replayer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Replayer{
		registry:   registry,
		roster:     rosterRepo,
		attendance: attendanceRepo,
		logger:     logger,
	}
}

// Replay pages entries out of the source and applies them in sequence order.
// Returns the number of entries applied.
func (r *Replayer) Replay(ctx context.Context, source Source, opts Options) (int, error) {
	after := opts.AfterSeq
	applied := 0

	for {
		page, err := source.List(ctx, after, replayPageSize)
		if err != nil {
			return applied, err
		}
		if len(page) == 0 {
			return applied, nil
		}

		for _, entry := range page {
			if opts.UntilSeq > 0 && entry.Seq > opts.UntilSeq {
				return applied, nil
			}
			if err := r.Apply(ctx, entry); err != nil {
				return applied, err
			}
			if opts.Sink != nil {
				if _, err := opts.Sink.Append(ctx, entry); err != nil {
					return applied, err
				}
			}
			applied++
			after = entry.Seq
		}
	}
}

// Apply folds one entry into the state stores.
func (r *Replayer) Apply(ctx context.Context, entry journal.Entry) error {
	switch entry.Kind {
	case shared.EventObservationRecorded:
		return r.applyObservation(ctx, entry)

	case shared.EventAssignmentPending,
		shared.EventAssignmentConfirmed,
		shared.EventAssignmentRejected,
		shared.EventAssignmentRevoked:
		return r.applyAssignment(ctx, entry)

	case shared.EventStudentEntered,
		shared.EventStudentLeftEarly,
		shared.EventStudentPresentAtClose:
		return r.applyAttendance(ctx, entry)

	case shared.EventStudentAdded,
		shared.EventStudentRemoved,
		shared.EventDeviceBound,
		shared.EventDeviceUnbound:
		return r.applyRoster(ctx, entry)

	case shared.EventSessionOpened, shared.EventSessionClosed, shared.EventClassifierRetrained:
		// Lifecycle markers carry no state.
		return nil

	default:
		r.logger.Warn("unknown journal entry kind skipped", "kind", entry.Kind, "seq", entry.Seq)
		return nil
	}
}

func (r *Replayer) applyObservation(ctx context.Context, entry journal.Entry) error {
	var p journal.ObservationPayload
	if err := entry.Decode(&p); err != nil {
		return err
	}
	obs, err := device.NewObservation(p.Identifier, p.RSSI, entry.At, entry.Session)
	if err != nil {
		return err
	}
	_, _, err = r.registry.Record(ctx, obs)
	return err
}

func (r *Replayer) applyAssignment(ctx context.Context, entry journal.Entry) error {
	var p journal.AssignmentPayload
	if err := entry.Decode(&p); err != nil {
		return err
	}

	return r.registry.Mutate(ctx, func(tx device.Txn) error {
		rec, err := tx.Get(p.Identifier)
		if err != nil {
			return err
		}

		switch entry.Kind {
		case shared.EventAssignmentPending:
			// A pending entry against a confirmed record is a journaled
			// demotion; the record's own student is the candidate then.
			if rec.Status == device.StatusConfirmed {
				return rec.Demote()
			}
			return rec.MarkPending(p.StudentID, p.Score)

		case shared.EventAssignmentConfirmed:
			if rec.Status == device.StatusConfirmed && rec.AssignedStudent != p.StudentID {
				if err := rec.Unassign(); err != nil {
					return err
				}
			}
			return rec.Confirm(p.StudentID, entry.Session, p.Score, p.Manual)

		case shared.EventAssignmentRejected:
			return rec.Reject()

		case shared.EventAssignmentRevoked:
			return rec.Unassign()
		}
		return nil
	})
}

func (r *Replayer) applyAttendance(ctx context.Context, entry journal.Entry) error {
	var p journal.AttendancePayload
	if err := entry.Decode(&p); err != nil {
		return err
	}

	rec, err := r.attendance.Get(ctx, entry.Session, p.StudentID)
	if errors.Is(err, shared.ErrAttendanceNotFound) || shared.IsNotFound(err) {
		rec = attendance.NewRecord(entry.Session, p.StudentID)
	} else if err != nil {
		return err
	}

	switch entry.Kind {
	case shared.EventStudentEntered:
		if _, err := rec.Enter(entry.At); err != nil {
			return err
		}
	case shared.EventStudentLeftEarly:
		if err := rec.LeaveEarly(entry.At); err != nil {
			return err
		}
	case shared.EventStudentPresentAtClose:
		if err := rec.CloseAsPresent(entry.At); err != nil {
			return err
		}
	}
	return r.attendance.Save(ctx, rec)
}

func (r *Replayer) applyRoster(ctx context.Context, entry journal.Entry) error {
	var p journal.RosterPayload
	if err := entry.Decode(&p); err != nil {
		return err
	}

	switch entry.Kind {
	case shared.EventStudentAdded:
		student := &roster.Student{
			ID:           p.StudentID,
			Name:         p.Name,
			KnownDevices: make(map[shared.DeviceID]time.Time),
			CreatedAt:    entry.At,
			UpdatedAt:    entry.At,
		}
		return r.roster.Save(ctx, student)

	case shared.EventDeviceBound:
		student, err := r.roster.Get(ctx, p.StudentID)
		if err != nil {
			return err
		}
		student.BindDevice(p.Identifier, entry.At)
		return r.roster.Save(ctx, student)

	case shared.EventDeviceUnbound:
		student, err := r.roster.Get(ctx, p.StudentID)
		if err != nil {
			return err
		}
		student.UnbindDevice(p.Identifier, entry.At)
		return r.roster.Save(ctx, student)

	case shared.EventStudentRemoved:
		_, err := r.roster.Remove(ctx, p.StudentID)
		if shared.IsNotFound(err) {
			return nil
		}
		return err
	}
	return nil
}
