package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ProposalStatusPending    = "pending"
	ProposalStatusApproved   = "approved"
	ProposalStatusRejected   = "rejected"
	ProposalStatusSuperseded = "superseded"
)

// MilestoneTerms are the fields a change proposal may amend. Nil means
// unchanged.
type MilestoneTerms struct {
	Amount             *int64     `json:"amount,omitempty"`
	Deadline           *time.Time `json:"deadline,omitempty"`
	AcceptanceCriteria *string    `json:"acceptance_criteria,omitempty"`
}

// ChangeProposal is a mutual-consent amendment to milestone terms. A new
// proposal on the same milestone supersedes any still-pending prior one.
type ChangeProposal struct {
	ID          uuid.UUID      `json:"id"`
	MilestoneID uuid.UUID      `json:"milestone_id"`
	ProposedBy  uuid.UUID      `json:"proposed_by"`
	Original    MilestoneTerms `json:"original_values"`
	Proposed    MilestoneTerms `json:"proposed_values"`
	Status      string         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	DecidedAt   *time.Time     `json:"decided_at,omitempty"`
}
