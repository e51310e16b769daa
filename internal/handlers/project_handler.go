package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/milestonepay/backend/internal/middleware"
	"github.com/milestonepay/backend/internal/models"
	"github.com/milestonepay/backend/internal/services"
)

// ProjectReader is the read-side repository subset the handler needs beyond
// the lifecycle service.
type ProjectReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error)
	ListByClientID(ctx context.Context, clientID uuid.UUID) ([]*models.Project, error)
	ListByFreelancerID(ctx context.Context, freelancerID uuid.UUID) ([]*models.Project, error)
}

type MilestoneReader interface {
	ListByProjectID(ctx context.Context, projectID uuid.UUID) ([]*models.Milestone, error)
}

type ActivityReader interface {
	ListByProjectID(ctx context.Context, projectID uuid.UUID) ([]*models.ProjectActivity, error)
}

// ProjectHandler serves /api/v1/projects endpoints.
type ProjectHandler struct {
	Lifecycle  *services.Lifecycle
	Projects   ProjectReader
	Milestones MilestoneReader
	Activities ActivityReader
	Logger     *slog.Logger
}

type milestoneRequest struct {
	Title              string     `json:"title"`
	AcceptanceCriteria string     `json:"acceptance_criteria"`
	Amount             int64      `json:"amount"`
	Deadline           *time.Time `json:"deadline"`
}

type createProjectRequest struct {
	Title            string             `json:"title"`
	Description      string             `json:"description"`
	BudgetAmount     int64              `json:"budget_amount"`
	Currency         string             `json:"currency"`
	Deadline         *time.Time         `json:"deadline"`
	AutoApprovalDays int                `json:"auto_approval_days"`
	MaxRevisions     int                `json:"max_revisions"`
	Milestones       []milestoneRequest `json:"milestones"`
}

// CreateProject handles POST /api/v1/projects.
func (h *ProjectHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	in := services.CreateProjectInput{
		Title:            req.Title,
		Description:      req.Description,
		Budget:           models.Money{Amount: req.BudgetAmount, Currency: req.Currency},
		Deadline:         req.Deadline,
		AutoApprovalDays: req.AutoApprovalDays,
		MaxRevisions:     req.MaxRevisions,
	}
	for _, m := range req.Milestones {
		in.Milestones = append(in.Milestones, services.MilestoneInput{
			Title:              m.Title,
			AcceptanceCriteria: m.AcceptanceCriteria,
			Amount:             m.Amount,
			Deadline:           m.Deadline,
		})
	}
	p, err := h.Lifecycle.CreateProject(r.Context(), actor, in)
	if err != nil {
		h.Logger.Error("create project", "error", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// ListProjects handles GET /api/v1/projects — the caller's projects, on
// whichever side of the table they sit.
func (h *ProjectHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var (
		list []*models.Project
		err  error
	)
	if actor.Role == models.RoleFreelancer {
		list, err = h.Projects.ListByFreelancerID(r.Context(), actor.ID)
	} else {
		list, err = h.Projects.ListByClientID(r.Context(), actor.ID)
	}
	if err != nil {
		h.Logger.Error("list projects", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.Project{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GetProject handles GET /api/v1/projects/{id}, with milestones inlined.
func (h *ProjectHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	id, ok := extractID(r, "/api/v1/projects/")
	if !ok {
		http.Error(w, `{"error":"invalid project id"}`, http.StatusBadRequest)
		return
	}
	p, err := h.Projects.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	ms, err := h.Milestones.ListByProjectID(r.Context(), id)
	if err != nil {
		h.Logger.Error("list milestones", "project_id", id, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"project": p, "milestones": ms})
}

type inviteRequest struct {
	FreelancerID string `json:"freelancer_id"`
	Message      string `json:"message"`
}

// Invite handles POST /api/v1/projects/{id}/invite.
func (h *ProjectHandler) Invite(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	projectID, ok := extractID(r, "/api/v1/projects/")
	if !ok {
		http.Error(w, `{"error":"invalid project id"}`, http.StatusBadRequest)
		return
	}
	var req inviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	freelancerID, err := uuid.Parse(req.FreelancerID)
	if err != nil {
		http.Error(w, `{"error":"invalid freelancer_id"}`, http.StatusBadRequest)
		return
	}
	inv, err := h.Lifecycle.Invite(r.Context(), actor, projectID, freelancerID, req.Message)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

type respondInvitationRequest struct {
	Accept bool `json:"accept"`
}

// RespondInvitation handles POST /api/v1/invitations/{id}/respond.
func (h *ProjectHandler) RespondInvitation(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, ok := extractID(r, "/api/v1/invitations/")
	if !ok {
		http.Error(w, `{"error":"invalid invitation id"}`, http.StatusBadRequest)
		return
	}
	var req respondInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if err := h.Lifecycle.RespondInvitation(r.Context(), actor, id, req.Accept); err != nil {
		writeServiceError(w, err)
		return
	}
	status := models.InvitationStatusDeclined
	if req.Accept {
		status = models.InvitationStatusAccepted
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// Cancel handles POST /api/v1/projects/{id}/cancel.
func (h *ProjectHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, ok := extractID(r, "/api/v1/projects/")
	if !ok {
		http.Error(w, `{"error":"invalid project id"}`, http.StatusBadRequest)
		return
	}
	if err := h.Lifecycle.CancelProject(r.Context(), actor, id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.ProjectStatusCancelled})
}

// Activity handles GET /api/v1/projects/{id}/activity.
func (h *ProjectHandler) Activity(w http.ResponseWriter, r *http.Request) {
	id, ok := extractID(r, "/api/v1/projects/")
	if !ok {
		http.Error(w, `{"error":"invalid project id"}`, http.StatusBadRequest)
		return
	}
	list, err := h.Activities.ListByProjectID(r.Context(), id)
	if err != nil {
		h.Logger.Error("list activity", "project_id", id, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.ProjectActivity{}
	}
	writeJSON(w, http.StatusOK, list)
}

// ProjectSubroute returns the path segment after the project id, e.g.
// "invite" for /api/v1/projects/{id}/invite.
func ProjectSubroute(r *http.Request) string {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/projects/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}
