package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"chamber/internal/database"
	"chamber/internal/models"
)

// LedgerLogRepository persists the raw ledger event stream plus the
// reconciliation cursor, so the in-memory store can be rebuilt by
// replay after a restart.
type LedgerLogRepository struct {
	db *database.DB
}

func NewLedgerLogRepository(db *database.DB) *LedgerLogRepository {
	return &LedgerLogRepository{db: db}
}

// SaveBatch appends a polling batch and advances the cursor in one
// transaction. Events already present are skipped, so replaying the
// same batch is harmless.
func (r *LedgerLogRepository) SaveBatch(ctx context.Context, events []models.LedgerEvent, cursor string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ledger_events (block_number, log_index, kind, event_address, token_id, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (block_number, log_index) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range events {
		e := &events[i]
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", e.ID(), err)
		}
		if _, err := stmt.ExecContext(ctx, int64(e.BlockNumber), int32(e.LogIndex), e.Kind, e.EventAddress, e.TokenID, payload); err != nil {
			return fmt.Errorf("failed to insert event %s: %w", e.ID(), err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO reconcile_cursor (id, cursor_value, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET cursor_value = $1, updated_at = NOW()`, cursor); err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}

	return tx.Commit()
}

// LoadCursor returns the persisted cursor, or "" when reconciliation
// has never run.
func (r *LedgerLogRepository) LoadCursor(ctx context.Context) (string, error) {
	var cursor string
	err := r.db.QueryRowContext(ctx, `SELECT cursor_value FROM reconcile_cursor WHERE id = 1`).Scan(&cursor)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load cursor: %w", err)
	}
	return cursor, nil
}

// Replay streams all persisted events in ledger order into fn. Used at
// startup to rebuild the store snapshot before live polling resumes.
func (r *LedgerLogRepository) Replay(ctx context.Context, fn func(models.LedgerEvent) error) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT payload FROM ledger_events
		ORDER BY block_number, log_index`)
	if err != nil {
		return fmt.Errorf("failed to query ledger events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return fmt.Errorf("failed to scan event payload: %w", err)
		}
		var event models.LedgerEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return fmt.Errorf("failed to unmarshal event payload: %w", err)
		}
		if err := fn(event); err != nil {
			return err
		}
	}

	return rows.Err()
}

// Count returns the number of persisted ledger events.
func (r *LedgerLogRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_events`).Scan(&n)
	return n, err
}
