package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/milestonepay/backend/internal/middleware"
	"github.com/milestonepay/backend/internal/models"
	"github.com/milestonepay/backend/internal/services"
)

// MilestoneHandler serves /api/v1/milestones endpoints. Every operation is a
// thin shell over the lifecycle service; authorization beyond authentication
// lives there.
type MilestoneHandler struct {
	Lifecycle *services.Lifecycle
	Logger    *slog.Logger
}

func (h *MilestoneHandler) actorAndID(w http.ResponseWriter, r *http.Request) (models.Actor, uuid.UUID, bool) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return models.Actor{}, uuid.Nil, false
	}
	id, ok := extractID(r, "/api/v1/milestones/")
	if !ok {
		http.Error(w, `{"error":"invalid milestone id"}`, http.StatusBadRequest)
		return models.Actor{}, uuid.Nil, false
	}
	return actor, id, true
}

// Start handles POST /api/v1/milestones/{id}/start.
func (h *MilestoneHandler) Start(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	if err := h.Lifecycle.StartMilestone(r.Context(), actor, id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.MilestoneStatusInProgress})
}

type submitRequest struct {
	Note    string `json:"note"`
	FileURL string `json:"file_url"`
}

// Submit handles POST /api/v1/milestones/{id}/submit.
func (h *MilestoneHandler) Submit(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if err := h.Lifecycle.SubmitMilestone(r.Context(), actor, id, req.Note, req.FileURL); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.MilestoneStatusSubmitted})
}

// Approve handles POST /api/v1/milestones/{id}/approve. Approval releases the
// milestone amount from escrow.
func (h *MilestoneHandler) Approve(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	if err := h.Lifecycle.ApproveMilestone(r.Context(), actor, id); err != nil {
		h.Logger.Error("approve milestone", "milestone_id", id, "error", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.MilestoneStatusApproved})
}

type revisionRequest struct {
	Reason string `json:"reason"`
}

// RequestRevision handles POST /api/v1/milestones/{id}/revision.
func (h *MilestoneHandler) RequestRevision(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req revisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if err := h.Lifecycle.RequestRevision(r.Context(), actor, id, req.Reason); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.MilestoneStatusRevisionRequested})
}

type openDisputeRequest struct {
	Reason string `json:"reason"`
}

// OpenDispute handles POST /api/v1/milestones/{id}/dispute. Escrow freezes
// until the dispute resolves.
func (h *MilestoneHandler) OpenDispute(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req openDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	d, err := h.Lifecycle.OpenDispute(r.Context(), actor, id, req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

type proposeChangeRequest struct {
	Amount             *int64     `json:"amount"`
	Deadline           *time.Time `json:"deadline"`
	AcceptanceCriteria *string    `json:"acceptance_criteria"`
}

// ProposeChange handles POST /api/v1/milestones/{id}/proposals.
func (h *MilestoneHandler) ProposeChange(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req proposeChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	terms := models.MilestoneTerms{
		Amount:             req.Amount,
		Deadline:           req.Deadline,
		AcceptanceCriteria: req.AcceptanceCriteria,
	}
	p, err := h.Lifecycle.ProposeChange(r.Context(), actor, id, terms)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

type decideProposalRequest struct {
	Approve bool `json:"approve"`
}

// DecideProposal handles POST /api/v1/proposals/{id}/decide.
func (h *MilestoneHandler) DecideProposal(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, ok := extractID(r, "/api/v1/proposals/")
	if !ok {
		http.Error(w, `{"error":"invalid proposal id"}`, http.StatusBadRequest)
		return
	}
	var req decideProposalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if err := h.Lifecycle.DecideProposal(r.Context(), actor, id, req.Approve); err != nil {
		writeServiceError(w, err)
		return
	}
	status := models.ProposalStatusRejected
	if req.Approve {
		status = models.ProposalStatusApproved
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}
