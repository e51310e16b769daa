package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ProjectActivity action kinds. The audit trail is write-only: every
// state-affecting component appends, nothing reads it back.
const (
	ActivityProjectCreated     = "project_created"
	ActivityProjectCancelled   = "project_cancelled"
	ActivityProjectCompleted   = "project_completed"
	ActivityInvitationSent     = "invitation_sent"
	ActivityInvitationAnswered = "invitation_answered"
	ActivityDepositMade        = "deposit_made"
	ActivityMilestoneStarted   = "milestone_started"
	ActivityMilestoneSubmitted = "milestone_submitted"
	ActivityMilestoneApproved  = "milestone_approved"
	ActivityRevisionRequested  = "revision_requested"
	ActivityDisputeOpened      = "dispute_opened"
	ActivityDisputeResolved    = "dispute_resolved"
	ActivityPaymentReleased    = "payment_released"
	ActivityRefundIssued       = "refund_issued"
	ActivityProposalSubmitted  = "proposal_submitted"
	ActivityProposalDecided    = "proposal_decided"
	ActivityPayoutRequested    = "payout_requested"
)

type ProjectActivity struct {
	ID        uuid.UUID       `json:"id"`
	ProjectID uuid.UUID       `json:"project_id"`
	ActorID   uuid.UUID       `json:"actor_id"`
	Action    string          `json:"action"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
