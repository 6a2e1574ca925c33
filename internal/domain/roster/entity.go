// Package roster holds the student aggregate: who is enrolled and which
// device identifiers they are known to carry.
package roster

import (
	"strings"
	"time"

	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

// Student is one enrolled person. A student may carry zero or more known
// devices; a device identifier belongs to at most one student.
type Student struct {
	ID    shared.StudentID
	Name  string
	Email string

	// KnownDevices maps identifier to the time it was registered to this
	// student. Registration time breaks classifier ties.
	KnownDevices map[shared.DeviceID]time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewStudent creates a student with a fresh ID and no known devices.
func NewStudent(name, email string, now time.Time) (*Student, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.ErrEmptyName
	}
	return &Student{
		ID:           shared.NewStudentID(),
		Name:         name,
		Email:        strings.TrimSpace(email),
		KnownDevices: make(map[shared.DeviceID]time.Time),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// BindDevice registers an identifier as belonging to this student. Rebinding
// the same identifier keeps the original registration time.
func (s *Student) BindDevice(id shared.DeviceID, now time.Time) {
	if _, ok := s.KnownDevices[id]; ok {
		return
	}
	s.KnownDevices[id] = now
	s.UpdatedAt = now
}

// UnbindDevice removes an identifier from the student's known devices.
func (s *Student) UnbindDevice(id shared.DeviceID, now time.Time) {
	if _, ok := s.KnownDevices[id]; !ok {
		return
	}
	delete(s.KnownDevices, id)
	s.UpdatedAt = now
}

// Owns reports whether the identifier is registered to this student.
func (s *Student) Owns(id shared.DeviceID) bool {
	_, ok := s.KnownDevices[id]
	return ok
}

// EarliestRegistration returns the oldest known-device registration time.
// Zero time when the student has no known devices.
func (s *Student) EarliestRegistration() time.Time {
	var earliest time.Time
	for _, at := range s.KnownDevices {
		if earliest.IsZero() || at.Before(earliest) {
			earliest = at
		}
	}
	return earliest
}

// Clone returns a deep copy.
func (s *Student) Clone() *Student {
	cp := *s
	cp.KnownDevices = make(map[shared.DeviceID]time.Time, len(s.KnownDevices))
	for id, at := range s.KnownDevices {
		cp.KnownDevices[id] = at
	}
	return &cp
}
