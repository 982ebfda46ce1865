package repository

import (
	"context"
	"fmt"
	"time"

	"chamber/internal/database"
	"chamber/internal/models"
)

// AuditRepository records coordination messages consumed from NATS so
// operators can trace what the service brokered and when.
type AuditRepository struct {
	db *database.DB
}

// AuditRecord is one consumed coordination message.
type AuditRecord struct {
	ID         int64             `json:"id" db:"id"`
	Subject    string            `json:"subject" db:"subject"`
	Key        models.ListingKey `json:"key"`
	Account    *string           `json:"account" db:"account"`
	Amount     *int64            `json:"amount" db:"amount"`
	Payload    []byte            `json:"payload" db:"payload"`
	RecordedAt time.Time         `json:"recorded_at" db:"recorded_at"`
}

func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Insert(ctx context.Context, subject string, key models.ListingKey, account string, amount int64, payload []byte) error {
	var acc *string
	if account != "" {
		acc = &account
	}
	var amt *int64
	if amount != 0 {
		amt = &amount
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO coordination_audit (subject, event_address, token_id, account, amount, payload)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		subject, key.EventAddress, key.TokenID, acc, amt, payload)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

// Recent returns the latest records for a subject, newest first.
func (r *AuditRepository) Recent(ctx context.Context, subject string, limit int) ([]AuditRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, subject, event_address, token_id, account, amount, payload, recorded_at
		FROM coordination_audit
		WHERE subject = $1
		ORDER BY recorded_at DESC
		LIMIT $2`, subject, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	var records []AuditRecord
	for rows.Next() {
		var rec AuditRecord
		if err := rows.Scan(&rec.ID, &rec.Subject, &rec.Key.EventAddress, &rec.Key.TokenID,
			&rec.Account, &rec.Amount, &rec.Payload, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}
