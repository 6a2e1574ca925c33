package identity

import (
	"github.com/rollcall-hub/rollcall/internal/domain/device"
	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

// Policy holds the resolution thresholds. Values are configuration inputs;
// the resolver never tunes them.
type Policy struct {
	// AutoConfirm is the minimum score for automatic confirmation.
	AutoConfirm shared.Confidence

	// Review is the minimum score for queueing a pending review. Scores below
	// it leave the record untouched.
	Review shared.Confidence
}

// DefaultPolicy returns the stock thresholds.
func DefaultPolicy() Policy {
	return Policy{AutoConfirm: 0.9, Review: 0.5}
}

// Validate checks threshold ordering.
func (p Policy) Validate() error {
	if !p.AutoConfirm.IsValid() || !p.Review.IsValid() {
		return shared.NewDomainError("identity", "Policy", shared.ErrValueOutOfRange, "thresholds must be within [0, 1]")
	}
	if p.Review > p.AutoConfirm {
		return shared.NewDomainError("identity", "Policy", shared.ErrInvalidInput, "review threshold above auto-confirm threshold")
	}
	return nil
}

// Demotion describes the losing side of a confirmation conflict.
type Demotion struct {
	Identifier shared.DeviceID
	StudentID  shared.StudentID
}

// Outcome describes what a resolution did. Transition is empty when nothing
// changed.
type Outcome struct {
	Transition shared.EventType
	Identifier shared.DeviceID
	StudentID  shared.StudentID
	Score      shared.Confidence
	Manual     bool

	// Demoted is set when this resolution displaced another record's
	// confirmation. The displaced record drops to pending review, never out
	// of the registry.
	Demoted *Demotion
}

// Changed reports whether the resolution produced a transition.
func (o Outcome) Changed() bool {
	return o.Transition != ""
}

// Resolver applies classifier output and professor decisions to the registry.
// All methods run inside a registry mutation scope (device.Txn), so a failed
// resolution rolls back as a unit and manual overrides serialize against
// automatic resolution of the same identifier.
type Resolver struct {
	policy Policy
}

// NewResolver creates a resolver with the given thresholds.
func NewResolver(policy Policy) *Resolver {
	return &Resolver{policy: policy}
}

// ResolveAuto applies ranked candidates to an unassigned record.
//
// Score at or above the auto-confirm threshold confirms the assignment unless
// the student already holds a confirmed device this session; in that conflict
// the higher score keeps the confirmation and the other record is left in
// pending review. A manually confirmed holder is never displaced. Scores in
// the review band queue the record for the professor; weaker scores change
// nothing.
func (r *Resolver) ResolveAuto(tx device.Txn, id shared.DeviceID, session shared.SessionID, candidates []Candidate) (Outcome, error) {
	rec, err := tx.Get(id)
	if err != nil {
		return Outcome{}, err
	}
	if rec.Status != device.StatusUnassigned {
		return Outcome{}, nil
	}
	if len(candidates) == 0 {
		return Outcome{}, nil
	}

	top := candidates[0]
	score := top.Score.Clamp()
	switch {
	case score < r.policy.Review:
		return Outcome{}, nil

	case score < r.policy.AutoConfirm:
		if err := rec.MarkPending(top.StudentID, score); err != nil {
			return Outcome{}, err
		}
		return Outcome{
			Transition: shared.EventAssignmentPending,
			Identifier: id,
			StudentID:  top.StudentID,
			Score:      score,
		}, nil
	}

	holder, held := tx.ConfirmedFor(top.StudentID, session)
	if held && holder.ID != id {
		if holder.ManualConfirm || holder.Confidence >= score {
			// Existing confirmation wins; keep the newcomer reviewable.
			if err := rec.MarkPending(top.StudentID, score); err != nil {
				return Outcome{}, err
			}
			return Outcome{
				Transition: shared.EventAssignmentPending,
				Identifier: id,
				StudentID:  top.StudentID,
				Score:      score,
			}, nil
		}
		if err := holder.Demote(); err != nil {
			return Outcome{}, err
		}
		if err := rec.Confirm(top.StudentID, session, score, false); err != nil {
			return Outcome{}, err
		}
		return Outcome{
			Transition: shared.EventAssignmentConfirmed,
			Identifier: id,
			StudentID:  top.StudentID,
			Score:      score,
			Demoted:    &Demotion{Identifier: holder.ID, StudentID: top.StudentID},
		}, nil
	}

	if err := rec.Confirm(top.StudentID, session, score, false); err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Transition: shared.EventAssignmentConfirmed,
		Identifier: id,
		StudentID:  top.StudentID,
		Score:      score,
	}, nil
}

// ConfirmManual applies a professor confirmation. Professor decisions are
// authoritative: a record confirmed to somebody else is reassigned. If the
// student already holds a different confirmed device this session the call
// fails with ErrConflictingConfirmation unless force is set, in which case
// the current holder is demoted to pending review.
func (r *Resolver) ConfirmManual(tx device.Txn, id shared.DeviceID, student shared.StudentID, session shared.SessionID, force bool) (Outcome, error) {
	rec, err := tx.Get(id)
	if err != nil {
		return Outcome{}, err
	}
	if rec.IsConfirmedFor(student, session) {
		return Outcome{}, nil
	}

	var demoted *Demotion
	holder, held := tx.ConfirmedFor(student, session)
	if held && holder.ID != id {
		if !force {
			return Outcome{}, shared.ErrConflictingConfirmation
		}
		if err := holder.Demote(); err != nil {
			return Outcome{}, err
		}
		demoted = &Demotion{Identifier: holder.ID, StudentID: student}
	}

	if rec.Status == device.StatusConfirmed && rec.AssignedStudent != student {
		if err := rec.Unassign(); err != nil {
			return Outcome{}, err
		}
	}
	if err := rec.Confirm(student, session, 1.0, true); err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Transition: shared.EventAssignmentConfirmed,
		Identifier: id,
		StudentID:  student,
		Score:      1.0,
		Manual:     true,
		Demoted:    demoted,
	}, nil
}

// Reject clears a pending review.
func (r *Resolver) Reject(tx device.Txn, id shared.DeviceID) (Outcome, error) {
	rec, err := tx.Get(id)
	if err != nil {
		return Outcome{}, err
	}
	candidate := rec.Candidate
	if err := rec.Reject(); err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Transition: shared.EventAssignmentRejected,
		Identifier: id,
		StudentID:  candidate,
		Manual:     true,
	}, nil
}

// Revoke removes an assignment entirely, returning the record to unassigned.
func (r *Resolver) Revoke(tx device.Txn, id shared.DeviceID) (Outcome, error) {
	rec, err := tx.Get(id)
	if err != nil {
		return Outcome{}, err
	}
	student := rec.AssignedStudent
	if student.IsZero() {
		student = rec.Candidate
	}
	if err := rec.Unassign(); err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Transition: shared.EventAssignmentRevoked,
		Identifier: id,
		StudentID:  student,
		Manual:     true,
	}, nil
}

// ReleaseStudent revokes every assignment and pending candidacy pointing at a
// removed student. Device records themselves are kept.
func (r *Resolver) ReleaseStudent(tx device.Txn, student shared.StudentID) ([]Outcome, error) {
	var outcomes []Outcome
	for _, rec := range tx.ByStudent(student) {
		if err := rec.Unassign(); err != nil {
			return nil, err
		}
		outcomes = append(outcomes, Outcome{
			Transition: shared.EventAssignmentRevoked,
			Identifier: rec.ID,
			StudentID:  student,
		})
	}
	return outcomes, nil
}
