package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE JOURNAL ENTRIES
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create journal_entries table
-- Version: 001

-- Append-only session journal archive. The live journal assigns the
-- sequence numbers; the archive mirrors them, so (session_id, seq) is the
-- natural key and re-storing an entry is a no-op.
CREATE TABLE IF NOT EXISTS journal_entries (
    session_id UUID NOT NULL,
    seq BIGINT NOT NULL,
    occurred_at TIMESTAMP WITH TIME ZONE NOT NULL,
    kind VARCHAR(50) NOT NULL,
    payload JSONB NOT NULL DEFAULT '{}'::jsonb,
    archived_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (session_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_journal_entries_kind ON journal_entries(session_id, kind);
CREATE INDEX IF NOT EXISTS idx_journal_entries_occurred ON journal_entries(session_id, occurred_at);
`

const migration001Down = `
DROP TABLE IF EXISTS journal_entries;
`

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_journal_entries",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
	}
}
