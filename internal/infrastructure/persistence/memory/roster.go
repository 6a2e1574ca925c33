package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/rollcall-hub/rollcall/internal/domain/roster"
	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

// Roster is the in-memory student roster. Save enforces that a device
// identifier belongs to at most one student.
type Roster struct {
	mu       sync.RWMutex
	students map[shared.StudentID]*roster.Student
}

// NewRoster creates an empty roster.
func NewRoster() *Roster {
	return &Roster{students: make(map[shared.StudentID]*roster.Student)}
}

// Save implements roster.Repository.
func (r *Roster) Save(_ context.Context, student *roster.Student) error {
	if !student.ID.IsValid() {
		return shared.ErrInvalidID
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for id := range student.KnownDevices {
		for otherID, other := range r.students {
			if otherID != student.ID && other.Owns(id) {
				return shared.ErrDeviceBound
			}
		}
	}
	r.students[student.ID] = student.Clone()
	return nil
}

// Get implements roster.Repository.
func (r *Roster) Get(_ context.Context, id shared.StudentID) (*roster.Student, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.students[id]
	if !ok {
		return nil, shared.ErrUnknownStudent
	}
	return s.Clone(), nil
}

// Remove implements roster.Repository.
func (r *Roster) Remove(_ context.Context, id shared.StudentID) (*roster.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.students[id]
	if !ok {
		return nil, shared.ErrUnknownStudent
	}
	delete(r.students, id)
	return s, nil
}

// OwnerOf implements roster.Repository.
func (r *Roster) OwnerOf(_ context.Context, id shared.DeviceID) (*roster.Student, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.students {
		if s.Owns(id) {
			return s.Clone(), true, nil
		}
	}
	return nil, false, nil
}

// All implements roster.Repository.
func (r *Roster) All(_ context.Context) ([]*roster.Student, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*roster.Student, 0, len(r.students))
	for _, s := range r.students {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Count implements roster.Repository.
func (r *Roster) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.students), nil
}
