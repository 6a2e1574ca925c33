package identity

import (
	"context"
	"sort"
	"time"

	"github.com/rollcall-hub/rollcall/internal/domain/device"
	"github.com/rollcall-hub/rollcall/internal/domain/roster"
	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

// KnownDeviceClassifier decorates another classifier with the roster's known
// devices. An identifier registered to a student short-circuits with full
// confidence; everything else falls through to the wrapped model. Score ties
// from the wrapped model are broken by the earliest known-device registration
// time among the tied students, then by ID for determinism.
type KnownDeviceClassifier struct {
	roster roster.Repository
	next   Classifier
}

// NewKnownDeviceClassifier wires the decorator. next may be nil, in which case
// only exact known-device matches ever produce predictions.
func NewKnownDeviceClassifier(r roster.Repository, next Classifier) *KnownDeviceClassifier {
	return &KnownDeviceClassifier{roster: r, next: next}
}

// Predict implements Classifier.
func (c *KnownDeviceClassifier) Predict(ctx context.Context, rec *device.Record) ([]Candidate, error) {
	owner, ok, err := c.roster.OwnerOf(ctx, rec.ID)
	if err != nil {
		return nil, shared.WrapError("identity", "Predict", shared.ErrServiceUnavailable, "roster lookup failed", err)
	}
	if ok {
		return []Candidate{{StudentID: owner.ID, Score: 1.0}}, nil
	}

	if c.next == nil {
		return nil, nil
	}
	candidates, err := c.next.Predict(ctx, rec)
	if err != nil {
		return nil, err
	}
	if len(candidates) > 1 {
		c.breakTies(ctx, candidates)
	}
	return candidates, nil
}

// Retrain implements Classifier by delegating to the wrapped model.
func (c *KnownDeviceClassifier) Retrain(ctx context.Context, examples []TrainingExample) error {
	if c.next == nil {
		return nil
	}
	return c.next.Retrain(ctx, examples)
}

func (c *KnownDeviceClassifier) breakTies(ctx context.Context, candidates []Candidate) {
	registered := make(map[shared.StudentID]time.Time, len(candidates))
	for _, cand := range candidates {
		if student, err := c.roster.Get(ctx, cand.StudentID); err == nil {
			if at := student.EarliestRegistration(); !at.IsZero() {
				registered[cand.StudentID] = at
			}
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		ri, iOK := registered[candidates[i].StudentID]
		rj, jOK := registered[candidates[j].StudentID]
		switch {
		case iOK && jOK && !ri.Equal(rj):
			// Earliest registration wins the tie.
			return ri.Before(rj)
		case iOK != jOK:
			return iOK
		default:
			return candidates[i].StudentID < candidates[j].StudentID
		}
	})
}
