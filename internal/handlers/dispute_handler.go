package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/milestonepay/backend/internal/middleware"
	"github.com/milestonepay/backend/internal/models"
	"github.com/milestonepay/backend/internal/services"
)

// DisputeReader is the read-side subset the handler needs beyond the engine.
type DisputeReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	ListMessages(ctx context.Context, disputeID uuid.UUID) ([]*models.DisputeMessage, error)
	ListEvidence(ctx context.Context, disputeID uuid.UUID) ([]*models.Evidence, error)
}

// DisputeHandler serves /api/v1/disputes endpoints.
type DisputeHandler struct {
	Engine   *services.DisputeEngine
	Disputes DisputeReader
	Logger   *slog.Logger
}

func (h *DisputeHandler) actorAndID(w http.ResponseWriter, r *http.Request) (models.Actor, uuid.UUID, bool) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return models.Actor{}, uuid.Nil, false
	}
	id, ok := extractID(r, "/api/v1/disputes/")
	if !ok {
		http.Error(w, `{"error":"invalid dispute id"}`, http.StatusBadRequest)
		return models.Actor{}, uuid.Nil, false
	}
	return actor, id, true
}

// Get handles GET /api/v1/disputes/{id}, with the communication log and
// evidence inlined.
func (h *DisputeHandler) Get(w http.ResponseWriter, r *http.Request) {
	_, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	d, err := h.Disputes.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	msgs, err := h.Disputes.ListMessages(r.Context(), id)
	if err != nil {
		h.Logger.Error("list dispute messages", "dispute_id", id, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	ev, err := h.Disputes.ListEvidence(r.Context(), id)
	if err != nil {
		h.Logger.Error("list dispute evidence", "dispute_id", id, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dispute": d, "messages": msgs, "evidence": ev})
}

type disputeMessageRequest struct {
	Body string `json:"body"`
}

// AddMessage handles POST /api/v1/disputes/{id}/messages.
func (h *DisputeHandler) AddMessage(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req disputeMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	m, err := h.Engine.AddMessage(r.Context(), actor, id, req.Body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

type evidenceRequest struct {
	Kind     string          `json:"kind"`
	Metadata json.RawMessage `json:"metadata"`
}

// AddEvidence handles POST /api/v1/disputes/{id}/evidence. Metadata is
// validated against the per-kind schema before storage.
func (h *DisputeHandler) AddEvidence(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req evidenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	ev, err := h.Engine.AddEvidence(r.Context(), actor, id, req.Kind, req.Metadata)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

// MoveToMediation handles POST /api/v1/disputes/{id}/mediation.
func (h *DisputeHandler) MoveToMediation(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	if err := h.Engine.MoveToMediation(r.Context(), actor, id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"phase": models.DisputePhaseMediation})
}

type assignArbitratorRequest struct {
	ArbitratorID string `json:"arbitrator_id"`
}

// AssignArbitrator handles POST /api/v1/disputes/{id}/arbitrator. Operator
// only; moves the dispute to the arbitration phase.
func (h *DisputeHandler) AssignArbitrator(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req assignArbitratorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	arbitratorID, err := uuid.Parse(req.ArbitratorID)
	if err != nil {
		http.Error(w, `{"error":"invalid arbitrator_id"}`, http.StatusBadRequest)
		return
	}
	if err := h.Engine.AssignArbitrator(r.Context(), actor, id, arbitratorID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"phase": models.DisputePhaseArbitration})
}

// Escalate handles POST /api/v1/disputes/{id}/escalate.
func (h *DisputeHandler) Escalate(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	if err := h.Engine.Escalate(r.Context(), actor, id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.DisputeStatusEscalated})
}

type resolveRequest struct {
	Decision         string `json:"decision"`
	ClientAmount     int64  `json:"client_amount"`
	FreelancerAmount int64  `json:"freelancer_amount"`
	Notes            string `json:"notes"`
}

// Resolve handles POST /api/v1/disputes/{id}/resolve.
func (h *DisputeHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	res, err := h.Engine.Resolve(r.Context(), actor, id, req.Decision, req.ClientAmount, req.FreelancerAmount, req.Notes)
	if err != nil {
		h.Logger.Error("resolve dispute", "dispute_id", id, "error", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
