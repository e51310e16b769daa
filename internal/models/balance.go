package models

import (
	"time"

	"github.com/google/uuid"
)

// Balance is a per-user projection of the transaction log, not an independent
// source of truth. Available + Pending = Total. Writers update it in the same
// database transaction as the Transaction insert.
type Balance struct {
	UserID    uuid.UUID `json:"user_id"`
	Available int64     `json:"available"`
	Pending   int64     `json:"pending"`
	Currency  string    `json:"currency"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *Balance) Total() int64 { return b.Available + b.Pending }
