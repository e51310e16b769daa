package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/milestonepay/backend/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
// Unknown errors become opaque 500s; the caller is expected to have logged
// them already.
func writeServiceError(w http.ResponseWriter, err error) {
	var vErr *services.ValidationError
	var cErr *services.ConflictError
	var pErr *services.PaymentError
	switch {
	case errors.Is(err, services.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, services.ErrInsufficientFunds):
		writeJSON(w, http.StatusPaymentRequired, map[string]string{"error": "insufficient funds"})
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": vErr.Error()})
	case errors.As(err, &cErr):
		writeJSON(w, http.StatusConflict, map[string]string{"error": cErr.Error()})
	case errors.As(err, &pErr):
		writeJSON(w, http.StatusPaymentRequired, map[string]string{"error": pErr.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// extractID pulls the UUID path segment following the given prefix, e.g.
// extractID(r, "/api/v1/projects/") on /api/v1/projects/{id}/deposit.
func extractID(r *http.Request, prefix string) (uuid.UUID, bool) {
	path := strings.TrimPrefix(r.URL.Path, prefix)
	parts := strings.SplitN(path, "/", 2)
	if len(parts) == 0 {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(parts[0])
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
