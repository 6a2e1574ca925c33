package identity

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/rollcall-hub/rollcall/internal/domain/device"
	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

// feature is the hashed form of a device identifier. The model keys on
// digests instead of raw identifiers so a dumped model does not leak the
// hardware addresses it was trained on.
type feature [blake2b.Size256]byte

func featureOf(id shared.DeviceID) feature {
	return blake2b.Sum256([]byte(id))
}

// pairStats is the accumulated evidence for one (feature, student) pair.
type pairStats struct {
	sessions int
}

// FrequencyClassifier scores candidates by co-occurrence frequency: how often
// an identifier was confirmed for a student across past sessions, relative to
// all confirmations of that identifier. It holds the whole model in memory and
// swaps it atomically on retrain, so Predict stays lock-cheap on the hot path.
type FrequencyClassifier struct {
	mu     sync.RWMutex
	counts map[feature]map[shared.StudentID]pairStats
	totals map[feature]int
}

// NewFrequencyClassifier creates an untrained classifier. Until the first
// retrain every prediction is empty.
func NewFrequencyClassifier() *FrequencyClassifier {
	return &FrequencyClassifier{}
}

// Predict implements Classifier.
func (c *FrequencyClassifier) Predict(_ context.Context, rec *device.Record) ([]Candidate, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.counts == nil {
		return nil, nil
	}
	f := featureOf(rec.ID)
	byStudent, ok := c.counts[f]
	if !ok || c.totals[f] == 0 {
		return nil, nil
	}

	total := float64(c.totals[f])
	candidates := make([]Candidate, 0, len(byStudent))
	for student, stats := range byStudent {
		candidates = append(candidates, Candidate{
			StudentID: student,
			Score:     shared.Confidence(float64(stats.sessions) / total).Clamp(),
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].StudentID < candidates[j].StudentID
	})
	return candidates, nil
}

// Retrain implements Classifier. The model is rebuilt from scratch and swapped
// in atomically; a cancelled retrain leaves the previous model untouched.
func (c *FrequencyClassifier) Retrain(ctx context.Context, examples []TrainingExample) error {
	counts := make(map[feature]map[shared.StudentID]pairStats)
	totals := make(map[feature]int)

	for i, ex := range examples {
		// Training sets can get large across a semester; stay cancellable.
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return shared.WrapError("identity", "Retrain", shared.ErrTimeout, "retrain cancelled", err)
			}
		}
		if ex.Sessions <= 0 || ex.StudentID.IsZero() || !ex.Identifier.IsValid() {
			continue
		}
		f := featureOf(ex.Identifier)
		byStudent := counts[f]
		if byStudent == nil {
			byStudent = make(map[shared.StudentID]pairStats)
			counts[f] = byStudent
		}
		stats := byStudent[ex.StudentID]
		stats.sessions += ex.Sessions
		byStudent[ex.StudentID] = stats
		totals[f] += ex.Sessions
	}

	c.mu.Lock()
	c.counts = counts
	c.totals = totals
	c.mu.Unlock()
	return nil
}

// Trained reports whether the classifier has a model loaded.
func (c *FrequencyClassifier) Trained() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counts != nil
}
