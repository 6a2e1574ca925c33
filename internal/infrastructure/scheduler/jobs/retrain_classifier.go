// Package jobs contains the background jobs run by the scheduler and the
// one-shot task runner.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/rollcall-hub/rollcall/internal/domain/identity"
	"github.com/rollcall-hub/rollcall/internal/domain/journal"
	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

const trainingPageSize = 200

// RetrainClassifier rebuilds the classifier model from the full session log.
// Launched through the task runner after each session close; a newer launch
// cancels a still-running one.
type RetrainClassifier struct {
	journal    journal.Journal
	classifier identity.Classifier
	bus        shared.EventBus
	session    shared.SessionID
	logger     *slog.Logger
}

// NewRetrainClassifier wires the retrain job for one session close.
func NewRetrainClassifier(j journal.Journal, c identity.Classifier, bus shared.EventBus, session shared.SessionID, logger *slog.Logger) *RetrainClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrainClassifier{journal: j, classifier: c, bus: bus, session: session, logger: logger}
}

// Name implements scheduler.Job.
func (j *RetrainClassifier) Name() string {
	return "classifier.retrain"
}

// Description implements scheduler.Job.
func (j *RetrainClassifier) Description() string {
	return "rebuild the identity classifier from confirmed assignment history"
}

// Run implements scheduler.Job.
func (j *RetrainClassifier) Run(ctx context.Context) error {
	var (
		entries []journal.Entry
		after   uint64
	)
	for {
		page, err := j.journal.List(ctx, after, trainingPageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}
		entries = append(entries, page...)
		after = page[len(page)-1].Seq
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	examples := identity.BuildTrainingSet(entries)
	if len(examples) == 0 {
		j.logger.Info("no confirmed assignments yet, classifier stays untrained")
		return nil
	}

	if err := j.classifier.Retrain(ctx, examples); err != nil {
		return err
	}
	j.logger.Info("classifier retrained", "examples", len(examples))

	if j.bus != nil {
		if err := j.bus.Publish(shared.NewClassifierRetrainedEvent(j.session, len(examples), time.Now())); err != nil {
			j.logger.Warn("could not publish retrain event", "error", err)
		}
	}
	return nil
}
