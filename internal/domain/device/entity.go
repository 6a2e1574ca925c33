// Package device holds the device registry aggregate: every identifier ever
// observed, its bounded signal history, and its assignment status.
package device

import (
	"time"

	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

// Status is the assignment state of a device record.
type Status string

const (
	StatusUnassigned    Status = "unassigned"
	StatusPendingReview Status = "pending_review"
	StatusConfirmed     Status = "confirmed"
)

// IsValid checks the status is one of the known states.
func (s Status) IsValid() bool {
	switch s {
	case StatusUnassigned, StatusPendingReview, StatusConfirmed:
		return true
	}
	return false
}

// DefaultHistorySize bounds the per-device signal sample ring.
const DefaultHistorySize = 50

// Observation is a single normalized sighting of a device. Immutable once
// created by the ingest adapter.
type Observation struct {
	ID      shared.DeviceID
	RSSI    shared.Signal
	At      time.Time
	Session shared.SessionID
}

// NewObservation validates and builds an observation.
func NewObservation(id shared.DeviceID, rssi shared.Signal, at time.Time, session shared.SessionID) (Observation, error) {
	if !id.IsValid() {
		return Observation{}, shared.ErrInvalidIdentifier
	}
	if !rssi.IsValid() {
		return Observation{}, shared.ErrInvalidSignal
	}
	if at.IsZero() {
		return Observation{}, shared.WrapError("device", "NewObservation", shared.ErrInvalidInput, "observation has no timestamp", nil)
	}
	if !session.IsValid() {
		return Observation{}, shared.WrapError("device", "NewObservation", shared.ErrInvalidInput, "observation has no session", nil)
	}
	return Observation{ID: id, RSSI: rssi, At: at, Session: session}, nil
}

// SignalSample is one point of signal history.
type SignalSample struct {
	RSSI shared.Signal
	At   time.Time
}

// Record is the registry entry for one observed identifier. Records are never
// destroyed; unassignment and student removal only clear the assignment fields.
type Record struct {
	ID        shared.DeviceID
	FirstSeen time.Time
	LastSeen  time.Time

	// History is a bounded ring of recent signal samples, oldest evicted first.
	History []SignalSample

	Status          Status
	AssignedStudent shared.StudentID
	Candidate       shared.StudentID
	Confidence      shared.Confidence
	ConfirmedIn     shared.SessionID
	ManualConfirm   bool

	historySize int
}

// NewRecord creates a fresh unassigned record from its first observation.
func NewRecord(obs Observation, historySize int) *Record {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	r := &Record{
		ID:          obs.ID,
		FirstSeen:   obs.At,
		LastSeen:    obs.At,
		Status:      StatusUnassigned,
		historySize: historySize,
	}
	r.History = append(r.History, SignalSample{RSSI: obs.RSSI, At: obs.At})
	return r
}

// Observe folds a new observation into the record. Duplicate timestamps are
// ignored so a replayed or re-delivered observation cannot skew the history.
// Returns true when the sample was recorded.
func (r *Record) Observe(obs Observation) bool {
	if obs.ID != r.ID {
		return false
	}
	if len(r.History) > 0 && !obs.At.After(r.LastSeen) {
		if obs.At.Equal(r.LastSeen) {
			return false
		}
		// A re-delivered sample can match any retained timestamp, not just
		// the newest one.
		for _, s := range r.History {
			if s.At.Equal(obs.At) {
				return false
			}
		}
		// Out-of-order sample: keep it for the classifier but leave LastSeen alone.
		r.appendSample(SignalSample{RSSI: obs.RSSI, At: obs.At})
		return true
	}
	r.appendSample(SignalSample{RSSI: obs.RSSI, At: obs.At})
	r.LastSeen = obs.At
	if r.FirstSeen.IsZero() || obs.At.Before(r.FirstSeen) {
		r.FirstSeen = obs.At
	}
	return true
}

func (r *Record) appendSample(s SignalSample) {
	size := r.historySize
	if size <= 0 {
		size = DefaultHistorySize
	}
	r.History = append(r.History, s)
	if len(r.History) > size {
		// Evict oldest. Copy down instead of reslicing so the backing array
		// does not grow without bound.
		copy(r.History, r.History[1:])
		r.History = r.History[:size]
	}
}

// MarkPending puts the record up for professor review with the classifier's
// top candidate attached.
func (r *Record) MarkPending(candidate shared.StudentID, score shared.Confidence) error {
	if r.Status == StatusConfirmed {
		return shared.ErrDeviceAssigned
	}
	r.Status = StatusPendingReview
	r.Candidate = candidate
	r.Confidence = score.Clamp()
	return nil
}

// Confirm assigns the record to a student for the given session. A record that
// is already confirmed must be revoked or demoted first; the resolver owns that
// decision.
func (r *Record) Confirm(student shared.StudentID, session shared.SessionID, score shared.Confidence, manual bool) error {
	if student.IsZero() {
		return shared.ErrUnknownStudent
	}
	if r.Status == StatusConfirmed && r.AssignedStudent != student {
		return shared.ErrDeviceAssigned
	}
	r.Status = StatusConfirmed
	r.AssignedStudent = student
	r.Candidate = student
	r.Confidence = score.Clamp()
	r.ConfirmedIn = session
	r.ManualConfirm = manual
	return nil
}

// Demote moves a confirmed record back to pending review. Used when another
// device wins the confirmation conflict; the losing record keeps its candidate
// so the professor can still resolve it by hand.
func (r *Record) Demote() error {
	if r.Status != StatusConfirmed {
		return shared.ErrStateTransition
	}
	r.Status = StatusPendingReview
	r.Candidate = r.AssignedStudent
	r.AssignedStudent = ""
	r.ConfirmedIn = ""
	r.ManualConfirm = false
	return nil
}

// Reject clears a pending review. The record stays in the registry and keeps
// its signal history.
func (r *Record) Reject() error {
	if r.Status != StatusPendingReview {
		return shared.ErrNotPendingReview
	}
	r.Status = StatusUnassigned
	r.Candidate = ""
	r.Confidence = 0
	return nil
}

// Unassign clears any assignment. Valid from confirmed and pending review.
func (r *Record) Unassign() error {
	if r.Status == StatusUnassigned {
		return shared.ErrDeviceUnassigned
	}
	r.Status = StatusUnassigned
	r.AssignedStudent = ""
	r.Candidate = ""
	r.Confidence = 0
	r.ConfirmedIn = ""
	r.ManualConfirm = false
	return nil
}

// IsConfirmedFor reports whether the record holds the confirmation for the
// student within the session.
func (r *Record) IsConfirmedFor(student shared.StudentID, session shared.SessionID) bool {
	return r.Status == StatusConfirmed && r.AssignedStudent == student && r.ConfirmedIn == session
}

// MeanSignal returns the average RSSI over the retained history.
func (r *Record) MeanSignal() float64 {
	if len(r.History) == 0 {
		return 0
	}
	var sum int
	for _, s := range r.History {
		sum += int(s.RSSI)
	}
	return float64(sum) / float64(len(r.History))
}

// Clone returns a deep copy. Repositories hand out clones so readers can never
// mutate committed state.
func (r *Record) Clone() *Record {
	cp := *r
	cp.History = make([]SignalSample, len(r.History))
	copy(cp.History, r.History)
	return &cp
}
