package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	EscrowStatusNotDeposited      = "not_deposited"
	EscrowStatusHeld              = "held"
	EscrowStatusPartiallyReleased = "partially_released"
	EscrowStatusReleased          = "released"
	EscrowStatusRefunded          = "refunded"
)

// EscrowAccount holds a project's funds. Invariant, enforced on every
// mutation: HeldAmount + ReleasedAmount == TotalAmount. ReleasedAmount counts
// everything that has left escrow, releases and refunds alike; the Transaction
// log records direction.
type EscrowAccount struct {
	ID             uuid.UUID   `json:"id"`
	ProjectID      uuid.UUID   `json:"project_id"`
	Currency       string      `json:"currency"`
	TotalAmount    int64       `json:"total_amount"`
	HeldAmount     int64       `json:"held_amount"`
	ReleasedAmount int64       `json:"released_amount"`
	USD            USDSnapshot `json:"usd_snapshot"`
	Status         string      `json:"status"`
	Frozen         bool        `json:"frozen"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}
