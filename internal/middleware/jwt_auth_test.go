package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/milestonepay/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type stubValidator struct {
	actor models.Actor
	err   error
}

func (s *stubValidator) ValidateToken(_ context.Context, _ string) (models.Actor, error) {
	return s.actor, s.err
}

// okHandler writes 200 and the actor role (for assertions).
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	if actor, ok := ActorFromCtx(r.Context()); ok {
		w.Write([]byte(actor.Role))
	}
	w.WriteHeader(http.StatusOK)
})

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestJWTAuth_ValidToken(t *testing.T) {
	actor := models.Actor{ID: uuid.New(), Role: models.RoleClient}
	handler := JWTAuth(&stubValidator{actor: actor})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer sometoken")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != models.RoleClient {
		t.Errorf("expected role %q in body, got %q", models.RoleClient, rec.Body.String())
	}
}

func TestJWTAuth_MissingHeader(t *testing.T) {
	handler := JWTAuth(&stubValidator{})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestJWTAuth_InvalidToken(t *testing.T) {
	handler := JWTAuth(&stubValidator{err: errors.New("expired")})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer badtoken")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(models.RoleOperator)(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	actor := models.Actor{ID: uuid.New(), Role: models.RoleFreelancer}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req.WithContext(WithActor(req.Context(), actor)))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for wrong role, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	actor.Role = models.RoleOperator
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req.WithContext(WithActor(req.Context(), actor)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for operator, got %d", rec.Code)
	}
}
