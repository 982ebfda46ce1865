package database

import (
	"fmt"
	"log/slog"
)

func (db *DB) RunMigrations() error {
	slog.Info("Running database migrations...")

	migrations := []string{
		createLedgerEventsTable,
		createLedgerEventsOrderIndex,
		createCursorTable,
		createAuditLogTable,
		createAuditLogSubjectIndex,
	}

	for i, migration := range migrations {
		slog.Info("Running migration", "step", i+1)
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	slog.Info("All migrations completed successfully")
	return nil
}

// Append-only ledger event log. (block_number, log_index) is the replay
// key; re-inserting an already-persisted event is a no-op.
const createLedgerEventsTable = `
CREATE TABLE IF NOT EXISTS ledger_events (
    block_number BIGINT NOT NULL,
    log_index INTEGER NOT NULL,
    kind VARCHAR(50) NOT NULL,
    event_address VARCHAR(64) NOT NULL,
    token_id BIGINT NOT NULL,
    payload JSONB NOT NULL,
    observed_at TIMESTAMP NOT NULL DEFAULT NOW(),
    PRIMARY KEY (block_number, log_index)
);`

const createLedgerEventsOrderIndex = `
CREATE INDEX IF NOT EXISTS idx_ledger_events_listing
ON ledger_events (event_address, token_id, block_number, log_index);`

// Single-row reconciliation cursor.
const createCursorTable = `
CREATE TABLE IF NOT EXISTS reconcile_cursor (
    id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    cursor_value VARCHAR(128) NOT NULL,
    updated_at TIMESTAMP NOT NULL DEFAULT NOW()
);`

// Audit trail of coordination messages consumed from NATS.
const createAuditLogTable = `
CREATE TABLE IF NOT EXISTS coordination_audit (
    id SERIAL PRIMARY KEY,
    subject VARCHAR(100) NOT NULL,
    event_address VARCHAR(64) NOT NULL,
    token_id BIGINT NOT NULL,
    account VARCHAR(64),
    amount BIGINT,
    payload JSONB NOT NULL,
    recorded_at TIMESTAMP NOT NULL DEFAULT NOW()
);`

const createAuditLogSubjectIndex = `
CREATE INDEX IF NOT EXISTS idx_coordination_audit_subject
ON coordination_audit (subject, recorded_at);`
