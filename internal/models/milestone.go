package models

import (
	"time"

	"github.com/google/uuid"
)

// Milestone status enum. approved and a resolved disputed are terminal.
const (
	MilestoneStatusPending           = "pending"
	MilestoneStatusInProgress        = "in_progress"
	MilestoneStatusSubmitted         = "submitted"
	MilestoneStatusRevisionRequested = "revision_requested"
	MilestoneStatusApproved          = "approved"
	MilestoneStatusDisputed          = "disputed"
)

type Milestone struct {
	ID                 uuid.UUID  `json:"id"`
	ProjectID          uuid.UUID  `json:"project_id"`
	Order              int        `json:"order"`
	Title              string     `json:"title"`
	AcceptanceCriteria string     `json:"acceptance_criteria,omitempty"`
	Amount             Money      `json:"amount"`
	Deadline           *time.Time `json:"deadline,omitempty"`
	Status             string     `json:"status"`
	RevisionsUsed      int        `json:"revisions_used"`
	SubmittedAt        *time.Time `json:"submitted_at,omitempty"`
	ApprovedAt         *time.Time `json:"approved_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Deliverable is an append-only work submission attached to a milestone.
type Deliverable struct {
	ID          uuid.UUID `json:"id"`
	MilestoneID uuid.UUID `json:"milestone_id"`
	SubmittedBy uuid.UUID `json:"submitted_by"`
	Note        string    `json:"note,omitempty"`
	FileURL     string    `json:"file_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
