package repository

import (
	"chamber/internal/database"
)

type Repositories struct {
	LedgerLog *LedgerLogRepository
	Audit     *AuditRepository
}

func NewRepositories(db *database.DB) *Repositories {
	return &Repositories{
		LedgerLog: NewLedgerLogRepository(db),
		Audit:     NewAuditRepository(db),
	}
}
