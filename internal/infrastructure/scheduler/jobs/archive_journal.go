package jobs

import (
	"context"
	"log/slog"

	"github.com/rollcall-hub/rollcall/internal/domain/journal"
	"github.com/rollcall-hub/rollcall/pkg/retry"
)

const archivePageSize = 200

// ArchiveJournal mirrors new live journal entries into the durable archive.
// Runs periodically and once more during shutdown, after the final flush.
type ArchiveJournal struct {
	journal journal.Journal
	archive journal.Archive
	retrier *retry.Retrier
	logger  *slog.Logger
}

// NewArchiveJournal wires the archive job.
func NewArchiveJournal(j journal.Journal, a journal.Archive, logger *slog.Logger) *ArchiveJournal {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArchiveJournal{
		journal: j,
		archive: a,
		retrier: retry.ArchiveRetrier(),
		logger:  logger,
	}
}

// Name implements scheduler.Job.
func (j *ArchiveJournal) Name() string {
	return "journal.archive"
}

// Description implements scheduler.Job.
func (j *ArchiveJournal) Description() string {
	return "push new session log entries to the durable archive"
}

// Run implements scheduler.Job.
func (j *ArchiveJournal) Run(ctx context.Context) error {
	last, err := j.archive.LastSeq(ctx)
	if err != nil {
		return err
	}

	var pushed int
	for {
		page, err := j.journal.List(ctx, last, archivePageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}

		err = j.retrier.Do(ctx, func(ctx context.Context) error {
			if err := j.archive.Store(ctx, page); err != nil {
				return retry.Retryable(err)
			}
			return nil
		})
		if err != nil {
			return err
		}

		pushed += len(page)
		last = page[len(page)-1].Seq
	}

	if pushed > 0 {
		j.logger.Debug("journal entries archived", "entries", pushed, "last_seq", last)
	}
	return nil
}
