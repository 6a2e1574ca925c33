package memory

import (
	"context"
	"sync"

	"github.com/rollcall-hub/rollcall/internal/domain/journal"
	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

// Journal is the live append-only session log. Entries are sequenced here;
// the Postgres archive mirrors them asynchronously.
type Journal struct {
	mu      sync.RWMutex
	entries []journal.Entry
	closed  bool
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{}
}

// Append implements journal.Journal.
func (j *Journal) Append(_ context.Context, entry journal.Entry) (journal.Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return journal.Entry{}, shared.ErrJournalClosed
	}
	entry.Seq = uint64(len(j.entries)) + 1
	j.entries = append(j.entries, entry)
	return entry, nil
}

// List implements journal.Journal.
func (j *Journal) List(_ context.Context, afterSeq uint64, limit int) ([]journal.Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if afterSeq >= uint64(len(j.entries)) {
		return nil, nil
	}
	rest := j.entries[afterSeq:]
	if limit > 0 && len(rest) > limit {
		rest = rest[:limit]
	}
	out := make([]journal.Entry, len(rest))
	copy(out, rest)
	return out, nil
}

// LastSeq implements journal.Journal.
func (j *Journal) LastSeq(_ context.Context) (uint64, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return uint64(len(j.entries)), nil
}

// Close stops further appends. Used during shutdown after the final flush so
// a late producer cannot extend a closed session's log.
func (j *Journal) Close() {
	j.mu.Lock()
	j.closed = true
	j.mu.Unlock()
}
