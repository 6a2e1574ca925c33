package attendance

import (
	"context"

	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

// Repository stores attendance records keyed by (session, student). Reads
// return clones; Save replaces the stored record atomically.
type Repository interface {
	// Get returns the record for the pair or ErrAttendanceNotFound.
	Get(ctx context.Context, session shared.SessionID, student shared.StudentID) (*Record, error)

	// Save inserts or replaces a record.
	Save(ctx context.Context, record *Record) error

	// BySession returns all records for a session.
	BySession(ctx context.Context, session shared.SessionID) ([]*Record, error)
}
