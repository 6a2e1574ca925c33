package device

import (
	"context"

	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

// Txn is a mutation scope over the registry. Records obtained through a Txn
// are live; the registry commits all changes atomically when the Mutate
// callback returns nil and discards them when it returns an error, so a failed
// resolution can never leave the registry partially updated.
type Txn interface {
	// Get returns the live record for an identifier.
	Get(id shared.DeviceID) (*Record, error)

	// ConfirmedFor returns the record currently holding the student's
	// confirmation for the session, if any.
	ConfirmedFor(student shared.StudentID, session shared.SessionID) (*Record, bool)

	// ByStudent returns all records assigned or pending toward a student.
	ByStudent(student shared.StudentID) []*Record
}

// Registry stores one record per identifier ever observed. Reads return
// clones; all mutation is serialized, which also serializes manual overrides
// against in-flight automatic resolution on the same identifier.
type Registry interface {
	// Record folds an observation into the registry, creating the record on
	// first sight. Reports whether a new record was created.
	Record(ctx context.Context, obs Observation) (*Record, bool, error)

	// Get returns the record for an identifier or ErrDeviceNotFound.
	Get(ctx context.Context, id shared.DeviceID) (*Record, error)

	// Unassigned lists records awaiting assignment, ordered by first
	// appearance, oldest first.
	Unassigned(ctx context.Context) ([]*Record, error)

	// PendingReview lists records waiting on a professor decision, ordered by
	// first appearance.
	PendingReview(ctx context.Context) ([]*Record, error)

	// ByStudent returns records assigned to or pending toward a student.
	ByStudent(ctx context.Context, student shared.StudentID) ([]*Record, error)

	// All returns every record in the registry.
	All(ctx context.Context) ([]*Record, error)

	// Count returns the number of known identifiers.
	Count(ctx context.Context) (int, error)

	// Mutate runs fn inside an atomic mutation scope.
	Mutate(ctx context.Context, fn func(tx Txn) error) error
}
