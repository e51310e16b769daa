package models

import (
	"time"

	"github.com/google/uuid"
)

// Project status enum. A project is never physically deleted once active;
// cancelled is a soft terminal state.
const (
	ProjectStatusDraft             = "draft"
	ProjectStatusPendingAcceptance = "pending_acceptance"
	ProjectStatusAwaitingDeposit   = "awaiting_deposit"
	ProjectStatusActive            = "active"
	ProjectStatusCompleted         = "completed"
	ProjectStatusCancelled         = "cancelled"
	ProjectStatusDisputed          = "disputed"
)

type Project struct {
	ID               uuid.UUID    `json:"id"`
	ClientID         uuid.UUID    `json:"client_id"`
	FreelancerID     *uuid.UUID   `json:"freelancer_id,omitempty"`
	Title            string       `json:"title"`
	Description      string       `json:"description,omitempty"`
	Budget           Money        `json:"budget"`
	BudgetUSD        *USDSnapshot `json:"budget_usd,omitempty"`
	Deadline         *time.Time   `json:"deadline,omitempty"`
	Status           string       `json:"status"`
	PlatformFeeBps   int64        `json:"platform_fee_bps"`
	ProcessingFeeBps int64        `json:"processing_fee_bps"`
	AutoApprovalDays int          `json:"auto_approval_days"`
	MaxRevisions     int          `json:"max_revisions_per_milestone"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}
