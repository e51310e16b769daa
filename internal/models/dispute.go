package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	DisputeStatusPending     = "pending"
	DisputeStatusInReview    = "in_review"
	DisputeStatusMediation   = "mediation"
	DisputeStatusArbitration = "arbitration"
	DisputeStatusResolved    = "resolved"
	DisputeStatusEscalated   = "escalated"
)

// Dispute phases, strictly ordered. No skipping backward.
const (
	DisputePhaseAutomatedReview = "automated_review"
	DisputePhaseMediation       = "mediation"
	DisputePhaseArbitration     = "arbitration"
)

const (
	DecisionClientFavor      = "client_favor"
	DecisionFreelancerFavor  = "freelancer_favor"
	DecisionPartialSplit     = "partial_split"
	DecisionRevisionRequired = "revision_required"
	DecisionCaseClosed       = "case_closed"
)

// Dispute contests a single milestone. The communication log and evidence
// list are append-only; entries are immutable once added.
type Dispute struct {
	ID           uuid.UUID          `json:"id"`
	MilestoneID  uuid.UUID          `json:"milestone_id"`
	ProjectID    uuid.UUID          `json:"project_id"`
	ClientID     uuid.UUID          `json:"client_id"`
	FreelancerID uuid.UUID          `json:"freelancer_id"`
	RaisedBy     uuid.UUID          `json:"raised_by"`
	Reason       string             `json:"reason"`
	Status       string             `json:"status"`
	Phase        string             `json:"phase"`
	ArbitratorID *uuid.UUID         `json:"arbitrator_id,omitempty"`
	Resolution   *DisputeResolution `json:"resolution,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	ResolvedAt   *time.Time         `json:"resolved_at,omitempty"`
}

// Open reports whether the dispute still accepts messages and evidence.
func (d *Dispute) Open() bool {
	return d.Status != DisputeStatusResolved && d.Status != DisputeStatusEscalated
}

type DisputeMessage struct {
	ID        uuid.UUID `json:"id"`
	DisputeID uuid.UUID `json:"dispute_id"`
	AuthorID  uuid.UUID `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type Evidence struct {
	ID          uuid.UUID       `json:"id"`
	DisputeID   uuid.UUID       `json:"dispute_id"`
	SubmittedBy uuid.UUID       `json:"submitted_by"`
	Kind        string          `json:"kind"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// DisputeResolution records the terminal monetary decision. Invariant:
// ClientAmount + FreelancerAmount equals the disputed milestone amount.
type DisputeResolution struct {
	ID               uuid.UUID `json:"id"`
	DisputeID        uuid.UUID `json:"dispute_id"`
	Decision         string    `json:"decision"`
	ClientAmount     int64     `json:"client_amount"`
	FreelancerAmount int64     `json:"freelancer_amount"`
	Notes            string    `json:"notes,omitempty"`
	DecidedBy        uuid.UUID `json:"decided_by"`
	CreatedAt        time.Time `json:"created_at"`
}
