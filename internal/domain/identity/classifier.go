// Package identity contains the classifier capability and the assignment
// resolver that turns classifier scores into device assignments.
package identity

import (
	"context"
	"time"

	"github.com/rollcall-hub/rollcall/internal/domain/device"
	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

// Candidate is one ranked prediction for a device record.
type Candidate struct {
	StudentID shared.StudentID
	Score     shared.Confidence
}

// TrainingExample is one (identifier, student) pair derived from historical
// session logs. Examples are a read-only projection; they are regenerated
// from the journal on every retrain, never updated in place.
type TrainingExample struct {
	Identifier shared.DeviceID
	StudentID  shared.StudentID

	// Sessions is the number of distinct sessions in which this pair was
	// confirmed.
	Sessions int

	// LastConfirmed is the most recent confirmation time for the pair.
	LastConfirmed time.Time
}

// Classifier scores unassigned device records against the roster. Predictions
// are ranked best first. An empty slice is a valid answer: with no training
// data every identifier stays unresolved until the professor steps in.
//
// Predict must never run training work; retraining happens off the hot path
// through Retrain, which honors context cancellation.
type Classifier interface {
	Predict(ctx context.Context, rec *device.Record) ([]Candidate, error)
	Retrain(ctx context.Context, examples []TrainingExample) error
}
