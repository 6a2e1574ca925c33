package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/rollcall-hub/rollcall/internal/domain/attendance"
	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

type attendanceKey struct {
	session shared.SessionID
	student shared.StudentID
}

// Attendance is the in-memory attendance record store.
type Attendance struct {
	mu      sync.RWMutex
	records map[attendanceKey]*attendance.Record
}

// NewAttendance creates an empty attendance store.
func NewAttendance() *Attendance {
	return &Attendance{records: make(map[attendanceKey]*attendance.Record)}
}

// Get implements attendance.Repository.
func (a *Attendance) Get(_ context.Context, session shared.SessionID, student shared.StudentID) (*attendance.Record, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	rec, ok := a.records[attendanceKey{session: session, student: student}]
	if !ok {
		return nil, shared.ErrAttendanceNotFound
	}
	return rec.Clone(), nil
}

// Save implements attendance.Repository.
func (a *Attendance) Save(_ context.Context, rec *attendance.Record) error {
	if !rec.Session.IsValid() || rec.Student.IsZero() {
		return shared.ErrInvalidID
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.records[attendanceKey{session: rec.Session, student: rec.Student}] = rec.Clone()
	return nil
}

// BySession implements attendance.Repository.
func (a *Attendance) BySession(_ context.Context, session shared.SessionID) ([]*attendance.Record, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []*attendance.Record
	for key, rec := range a.records {
		if key.session == session {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Student < out[j].Student })
	return out, nil
}
