package command

import (
	"context"
	"log/slog"
	"time"

	"github.com/rollcall-hub/rollcall/internal/domain/attendance"
	"github.com/rollcall-hub/rollcall/internal/domain/device"
	"github.com/rollcall-hub/rollcall/internal/domain/identity"
	"github.com/rollcall-hub/rollcall/internal/domain/journal"
	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD OBSERVATION COMMAND
// The hot path: fold one normalized observation into the registry, run the
// classifier on unassigned devices, and move attendance when a confirmed
// device is sighted.
// ══════════════════════════════════════════════════════════════════════════════

// RecordObservationCommand carries one normalized observation.
type RecordObservationCommand struct {
	// Observation is a validated sighting produced by the ingest adapter.
	Observation device.Observation
}

// Validate validates the command.
func (c RecordObservationCommand) Validate() error {
	if !c.Observation.ID.IsValid() {
		return shared.ErrInvalidIdentifier
	}
	if c.Observation.At.IsZero() {
		return shared.ErrMalformedObservation
	}
	return nil
}

// RecordObservationResult describes what one observation caused.
type RecordObservationResult struct {
	// FirstSeen is true when this identifier entered the registry.
	FirstSeen bool

	// Status is the record's assignment status after resolution.
	Status device.Status

	// Outcome is the assignment transition, if any.
	Outcome identity.Outcome

	// Entered is true when the observation opened a presence segment.
	Entered bool
}

// RecordObservationHandler handles the RecordObservationCommand.
type RecordObservationHandler struct {
	registry   device.Registry
	attendance attendance.Repository
	classifier identity.Classifier
	resolver   *identity.Resolver
	recorder   recorder
	logger     *slog.Logger
}

// NewRecordObservationHandler creates a new RecordObservationHandler.
func NewRecordObservationHandler(
	registry device.Registry,
	attendanceRepo attendance.Repository,
	classifier identity.Classifier,
	resolver *identity.Resolver,
	journalLog journal.Journal,
	bus shared.EventBus,
	logger *slog.Logger,
) *RecordObservationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordObservationHandler{
		registry:   registry,
		attendance: attendanceRepo,
		classifier: classifier,
		resolver:   resolver,
		recorder:   newRecorder(journalLog, bus, logger),
		logger:     logger,
	}
}

// Handle executes the record observation command.
func (h *RecordObservationHandler) Handle(ctx context.Context, cmd RecordObservationCommand) (*RecordObservationResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	obs := cmd.Observation

	rec, created, err := h.registry.Record(ctx, obs)
	if err != nil {
		return nil, err
	}

	if err := h.recorder.observation(ctx, obs.ID, obs.Session, obs.RSSI, obs.At, created); err != nil {
		return nil, err
	}

	result := &RecordObservationResult{FirstSeen: created, Status: rec.Status}

	switch rec.Status {
	case device.StatusUnassigned:
		outcome, err := h.resolveUnassigned(ctx, obs)
		if err != nil {
			return nil, err
		}
		result.Outcome = outcome
		if outcome.Changed() {
			result.Status = device.StatusPendingReview
			if outcome.Transition == shared.EventAssignmentConfirmed {
				result.Status = device.StatusConfirmed
				entered, err := h.markPresent(ctx, obs.Session, outcome.StudentID, obs.At)
				if err != nil {
					return nil, err
				}
				result.Entered = entered
			}
		}

	case device.StatusConfirmed:
		outcome, err := h.carryConfirmation(ctx, rec, obs)
		if err != nil {
			return nil, err
		}
		result.Outcome = outcome

		// A sighting of a confirmed device keeps the student present. Enter
		// is idempotent while a segment is open and re-opens one after an
		// early exit.
		student := rec.AssignedStudent
		if outcome.Changed() {
			student = outcome.StudentID
		}
		if !student.IsZero() && (outcome.Changed() || rec.ConfirmedIn == obs.Session) {
			entered, err := h.markPresent(ctx, obs.Session, student, obs.At)
			if err != nil {
				return nil, err
			}
			result.Entered = entered
		}
	}

	return result, nil
}

// resolveUnassigned asks the classifier for candidates and applies them inside
// one registry mutation. A failing classifier degrades to no candidates; the
// device simply stays unassigned until the professor or a retrain catches up.
func (h *RecordObservationHandler) resolveUnassigned(ctx context.Context, obs device.Observation) (identity.Outcome, error) {
	snapshot, err := h.registry.Get(ctx, obs.ID)
	if err != nil {
		return identity.Outcome{}, err
	}

	candidates, err := h.classifier.Predict(ctx, snapshot)
	if err != nil {
		h.logger.Warn("classifier unavailable, observation left unresolved",
			"identifier", obs.ID,
			"error", err,
		)
		return identity.Outcome{}, nil
	}
	if len(candidates) == 0 {
		return identity.Outcome{}, nil
	}

	var outcome identity.Outcome
	err = h.registry.Mutate(ctx, func(tx device.Txn) error {
		outcome, err = h.resolver.ResolveAuto(tx, obs.ID, obs.Session, candidates)
		return err
	})
	if err != nil {
		return identity.Outcome{}, err
	}

	if err := h.recorder.assignment(ctx, outcome, obs.Session, obs.At); err != nil {
		return identity.Outcome{}, err
	}
	return outcome, nil
}

// carryConfirmation re-confirms a device that was confirmed in an earlier
// session the first time it shows up in the current one, unless the student
// already holds a different confirmed device here.
func (h *RecordObservationHandler) carryConfirmation(ctx context.Context, rec *device.Record, obs device.Observation) (identity.Outcome, error) {
	if rec.ConfirmedIn == obs.Session || rec.AssignedStudent.IsZero() {
		return identity.Outcome{}, nil
	}

	var outcome identity.Outcome
	err := h.registry.Mutate(ctx, func(tx device.Txn) error {
		live, err := tx.Get(obs.ID)
		if err != nil {
			return err
		}
		if live.Status != device.StatusConfirmed || live.ConfirmedIn == obs.Session {
			return nil
		}
		if _, held := tx.ConfirmedFor(live.AssignedStudent, obs.Session); held {
			return nil
		}
		if err := live.Confirm(live.AssignedStudent, obs.Session, live.Confidence, live.ManualConfirm); err != nil {
			return err
		}
		outcome = identity.Outcome{
			Transition: shared.EventAssignmentConfirmed,
			Identifier: live.ID,
			StudentID:  live.AssignedStudent,
			Score:      live.Confidence,
			Manual:     live.ManualConfirm,
		}
		return nil
	})
	if err != nil {
		return identity.Outcome{}, err
	}

	if err := h.recorder.assignment(ctx, outcome, obs.Session, obs.At); err != nil {
		return identity.Outcome{}, err
	}
	return outcome, nil
}

func (h *RecordObservationHandler) markPresent(ctx context.Context, session shared.SessionID, student shared.StudentID, at time.Time) (bool, error) {
	return enterPresence(ctx, h.attendance, h.recorder, session, student, at, false)
}
