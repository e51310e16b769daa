package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction type enum.
const (
	TxTypeDeposit           = "deposit"
	TxTypeRelease           = "release"
	TxTypeWithdrawal        = "withdrawal"
	TxTypeRefund            = "refund"
	TxTypeFee               = "fee"
	TxTypeDisputeSettlement = "dispute_settlement"
)

// Transaction status enum. completed and failed are terminal: corrections are
// new, compensating transactions, never in-place edits.
const (
	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusFailed    = "failed"
	TxStatusRefunded  = "refunded"
)

// Transaction is an immutable, append-only ledger entry. ProjectID links it to
// the escrow account; it is nil only for withdrawals, which draw on a user
// balance rather than a project.
type Transaction struct {
	ID            uuid.UUID  `json:"id"`
	ProjectID     *uuid.UUID `json:"project_id,omitempty"`
	MilestoneID   *uuid.UUID `json:"milestone_id,omitempty"`
	UserID        *uuid.UUID `json:"user_id,omitempty"`
	Type          string     `json:"type"`
	Status        string     `json:"status"`
	Amount        int64      `json:"amount"`
	Currency      string     `json:"currency"`
	PlatformFee   int64      `json:"platform_fee"`
	ProcessingFee int64      `json:"processing_fee"`
	GatewayRef    *string    `json:"gateway_ref,omitempty"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	Description   string     `json:"description,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// Terminal reports whether the transaction may no longer be mutated.
func (t *Transaction) Terminal() bool {
	return t.Status == TxStatusCompleted || t.Status == TxStatusFailed
}
