package roster

import (
	"context"

	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

// Repository stores the student roster. Reads return clones. A device
// identifier resolves to at most one owner; Save enforces that binding an
// identifier already bound to another student fails with ErrDeviceBound.
type Repository interface {
	// Save inserts or updates a student.
	Save(ctx context.Context, student *Student) error

	// Get returns a student by ID or ErrUnknownStudent.
	Get(ctx context.Context, id shared.StudentID) (*Student, error)

	// Remove deletes a student and returns the removed entity so callers can
	// release any assignments referencing it.
	Remove(ctx context.Context, id shared.StudentID) (*Student, error)

	// OwnerOf returns the student that has the identifier among their known
	// devices, if any.
	OwnerOf(ctx context.Context, id shared.DeviceID) (*Student, bool, error)

	// All returns every student, ordered by name.
	All(ctx context.Context) ([]*Student, error)

	// Count returns the roster size.
	Count(ctx context.Context) (int, error)
}
