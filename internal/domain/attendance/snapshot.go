package attendance

import (
	"context"
	"time"

	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

// SnapshotEntry is one student's row in a presence snapshot.
type SnapshotEntry struct {
	StudentID shared.StudentID `json:"student_id"`
	Name      string           `json:"name"`
	State     State            `json:"state"`
	EnteredAt time.Time        `json:"entered_at"`
	ExitedAt  time.Time        `json:"exited_at"`
}

// Snapshot is the full attendance picture for one session at a point in
// time, ordered by student name.
type Snapshot struct {
	Session     shared.SessionID `json:"session"`
	GeneratedAt time.Time        `json:"generated_at"`
	Present     int              `json:"present"`
	Students    []SnapshotEntry  `json:"students"`
}

// SnapshotCache publishes and serves presence snapshots. Implemented by the
// hot-path cache; a no-op implementation keeps the engine running without one.
type SnapshotCache interface {
	// Publish overwrites the cached snapshot for the session.
	Publish(ctx context.Context, snapshot Snapshot) error

	// Load returns the cached snapshot, found=false on a miss.
	Load(ctx context.Context, session shared.SessionID) (Snapshot, bool, error)

	// Invalidate drops the cached snapshot for the session.
	Invalidate(ctx context.Context, session shared.SessionID) error
}
