package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rollcall-hub/rollcall/internal/domain/journal"
	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

// JournalArchiveRepo implements journal.Archive on top of the
// journal_entries table. One repo instance is scoped to a single session;
// sequence numbers are the live journal's, mirrored as-is.
type JournalArchiveRepo struct {
	conn    *Connection
	session shared.SessionID
}

// NewJournalArchiveRepo creates an archive repository for the session.
func NewJournalArchiveRepo(conn *Connection, session shared.SessionID) *JournalArchiveRepo {
	return &JournalArchiveRepo{conn: conn, session: session}
}

// Store implements journal.Archive. ON CONFLICT DO NOTHING makes re-storing
// an already archived sequence number a no-op, which lets the archive job
// retry a partially applied batch.
func (r *JournalArchiveRepo) Store(ctx context.Context, entries []journal.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, e := range entries {
			payload := e.Payload
			if len(payload) == 0 {
				payload = json.RawMessage(`{}`)
			}
			batch.Queue(`
				INSERT INTO journal_entries (session_id, seq, occurred_at, kind, payload)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (session_id, seq) DO NOTHING
			`, string(r.session), int64(e.Seq), e.At, string(e.Kind), payload)
		}

		results := tx.SendBatch(ctx, batch)
		defer results.Close()

		for range entries {
			if _, err := results.Exec(); err != nil {
				return fmt.Errorf("failed to archive entry: %w", err)
			}
		}
		return nil
	})
}

// List implements journal.Archive.
func (r *JournalArchiveRepo) List(ctx context.Context, afterSeq uint64, limit int) ([]journal.Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.conn.Query(ctx, `
		SELECT seq, occurred_at, kind, payload
		FROM journal_entries
		WHERE session_id = $1 AND seq > $2
		ORDER BY seq
		LIMIT $3
	`, string(r.session), int64(afterSeq), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query archived entries: %w", err)
	}
	defer rows.Close()

	var entries []journal.Entry
	for rows.Next() {
		var (
			seq     int64
			e       journal.Entry
			kind    string
			payload []byte
		)
		if err := rows.Scan(&seq, &e.At, &kind, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan archived entry: %w", err)
		}
		e.Seq = uint64(seq)
		e.Kind = shared.EventType(kind)
		e.Session = r.session
		e.Payload = json.RawMessage(payload)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// LastSeq implements journal.Archive.
func (r *JournalArchiveRepo) LastSeq(ctx context.Context) (uint64, error) {
	var last int64
	err := r.conn.QueryRow(ctx, `
		SELECT COALESCE(MAX(seq), 0)
		FROM journal_entries
		WHERE session_id = $1
	`, string(r.session)).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("failed to query last archived seq: %w", err)
	}
	return uint64(last), nil
}
