// Package dashboard serves read-only account views for the web frontend:
// profile, balances, transaction history, invitations and payouts.
package dashboard

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/milestonepay/backend/internal/auth"
	"github.com/milestonepay/backend/internal/models"
	"github.com/milestonepay/backend/internal/repository"
)

type Handler struct {
	authSvc  auth.Service
	users    *auth.Repository
	balances *repository.BalanceRepo
	txs      *repository.TransactionRepo
	invites  *repository.InvitationRepo
	payouts  *repository.PayoutRepo
	log      *slog.Logger
}

func NewHandler(
	authSvc auth.Service,
	users *auth.Repository,
	balances *repository.BalanceRepo,
	txs *repository.TransactionRepo,
	invites *repository.InvitationRepo,
	payouts *repository.PayoutRepo,
	log *slog.Logger,
) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		authSvc:  authSvc,
		users:    users,
		balances: balances,
		txs:      txs,
		invites:  invites,
		payouts:  payouts,
		log:      log,
	}
}

func (h *Handler) actorFromRequest(r *http.Request) (models.Actor, error) {
	authz := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return models.Actor{}, fmt.Errorf("bad authorization format")
	}
	token := strings.TrimSpace(authz[len(prefix):])
	if token == "" {
		return models.Actor{}, fmt.Errorf("empty token")
	}
	return h.authSvc.ValidateToken(r.Context(), token)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// GET /api/v1/account/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actorFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	u, err := h.users.GetByID(r.Context(), actor.ID)
	if err != nil {
		h.log.Error("get user", "user_id", actor.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// GET /api/v1/account/balances
func (h *Handler) ListBalances(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actorFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	list, err := h.balances.ListByUserID(r.Context(), actor.ID)
	if err != nil {
		h.log.Error("list balances", "user_id", actor.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.Balance{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GET /api/v1/account/transactions
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actorFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	list, err := h.txs.ListByUserID(r.Context(), actor.ID)
	if err != nil {
		h.log.Error("list transactions", "user_id", actor.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.Transaction{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GET /api/v1/account/invitations
func (h *Handler) ListInvitations(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actorFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	list, err := h.invites.ListByFreelancerID(r.Context(), actor.ID)
	if err != nil {
		h.log.Error("list invitations", "user_id", actor.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.ProjectInvitation{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GET /api/v1/account/payouts
func (h *Handler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actorFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	list, err := h.payouts.ListByUserID(r.Context(), actor.ID)
	if err != nil {
		h.log.Error("list payouts", "user_id", actor.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.Payout{}
	}
	writeJSON(w, http.StatusOK, list)
}
