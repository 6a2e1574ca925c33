// Package attendance derives per-session presence state from confirmed device
// assignments. One record exists per (session, student) pair; re-entries after
// an early exit append new segments instead of overwriting history.
package attendance

import (
	"time"

	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

// State is the presence state of a student within a session.
type State string

const (
	StateAbsent         State = "absent"
	StatePresent        State = "present"
	StateLeftEarly      State = "left_early"
	StatePresentAtClose State = "present_at_close"
)

// IsTerminal reports whether the state can no longer change within an open
// session. Only left_early permits re-entry; present_at_close exists only
// after the session closed.
func (s State) IsTerminal() bool {
	return s == StatePresentAtClose
}

// Segment is one contiguous presence interval. ExitedAt is zero while the
// segment is open.
type Segment struct {
	State     State
	EnteredAt time.Time
	ExitedAt  time.Time
}

// Open reports whether the segment has not been closed yet.
func (s Segment) Open() bool {
	return s.ExitedAt.IsZero()
}

// Record is the attendance history of one student in one session.
type Record struct {
	Session shared.SessionID
	Student shared.StudentID

	// Segments in entry order. At most the last one is open.
	Segments []Segment
}

// NewRecord creates an absent record with no presence segments.
func NewRecord(session shared.SessionID, student shared.StudentID) *Record {
	return &Record{Session: session, Student: student}
}

// State returns the current presence state, derived from the segments.
func (r *Record) State() State {
	if len(r.Segments) == 0 {
		return StateAbsent
	}
	last := r.Segments[len(r.Segments)-1]
	if last.Open() {
		return StatePresent
	}
	return last.State
}

// Enter opens a presence segment. Idempotent while a segment is already open;
// returns true when a new segment was opened. Entering after the session
// closed is rejected.
func (r *Record) Enter(at time.Time) (bool, error) {
	cur := r.State()
	if cur.IsTerminal() {
		return false, shared.ErrSessionClosed
	}
	if cur == StatePresent {
		return false, nil
	}
	r.Segments = append(r.Segments, Segment{State: StatePresent, EnteredAt: at})
	return true, nil
}

// LeaveEarly closes the open segment as an early exit. The student may
// re-enter later, which opens a new segment.
func (r *Record) LeaveEarly(at time.Time) error {
	return r.closeOpen(StateLeftEarly, at)
}

// CloseAsPresent closes the open segment at session end with the student
// still in the room.
func (r *Record) CloseAsPresent(at time.Time) error {
	return r.closeOpen(StatePresentAtClose, at)
}

func (r *Record) closeOpen(final State, at time.Time) error {
	if len(r.Segments) == 0 {
		return shared.ErrNoOpenSegment
	}
	last := &r.Segments[len(r.Segments)-1]
	if !last.Open() {
		return shared.ErrNoOpenSegment
	}
	if at.Before(last.EnteredAt) {
		at = last.EnteredAt
	}
	last.State = final
	last.ExitedAt = at
	return nil
}

// EnteredAt returns the start of the first presence segment, zero when the
// student never entered.
func (r *Record) EnteredAt() time.Time {
	if len(r.Segments) == 0 {
		return time.Time{}
	}
	return r.Segments[0].EnteredAt
}

// ExitedAt returns the end of the last closed segment, zero while open or
// never entered.
func (r *Record) ExitedAt() time.Time {
	if len(r.Segments) == 0 {
		return time.Time{}
	}
	last := r.Segments[len(r.Segments)-1]
	return last.ExitedAt
}

// PresentDuration sums the lengths of all closed segments plus the open one
// up to now.
func (r *Record) PresentDuration(now time.Time) time.Duration {
	var total time.Duration
	for _, seg := range r.Segments {
		end := seg.ExitedAt
		if seg.Open() {
			end = now
		}
		if end.After(seg.EnteredAt) {
			total += end.Sub(seg.EnteredAt)
		}
	}
	return total
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	cp := *r
	cp.Segments = make([]Segment, len(r.Segments))
	copy(cp.Segments, r.Segments)
	return &cp
}
