package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	PayoutStatusPending    = "pending"
	PayoutStatusProcessing = "processing"
	PayoutStatusCompleted  = "completed"
	PayoutStatusFailed     = "failed"
	PayoutStatusCancelled  = "cancelled"
)

// Payout method kinds.
const (
	PayoutMethodBank   = "bank_transfer"
	PayoutMethodPaypal = "paypal"
	PayoutMethodCrypto = "crypto"
)

// Payout is a withdrawal request against a user balance. Fees and net amount
// are fixed at request time so the record never drifts from the quote.
// TransactionID points at the withdrawal entry opened with the request; the
// worker settles that same entry rather than appending a second one.
type Payout struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	MethodID      uuid.UUID  `json:"method_id"`
	TransactionID uuid.UUID  `json:"transaction_id"`
	Amount        int64      `json:"amount"`
	PlatformFee   int64      `json:"platform_fee"`
	ProcessingFee int64      `json:"processing_fee"`
	NetAmount     int64      `json:"net_amount"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status"`
	GatewayRef    *string    `json:"gateway_ref,omitempty"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	RequestedAt   time.Time  `json:"requested_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// PayoutMethod is a registered external destination for payouts.
type PayoutMethod struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Kind        string    `json:"kind"`
	Destination string    `json:"destination"`
	Label       string    `json:"label,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
