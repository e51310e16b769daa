package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/milestonepay/backend/internal/models"
)

// injectActor wraps a handler to pre-set the actor in context, simulating
// what JWTAuth would do upstream.
func injectActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := models.Actor{ID: uuid.New(), Role: models.RoleClient}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// deposit200 proves the middleware let the request through and the body is
// still readable downstream.
var deposit200 = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
})

func TestDepositCheck_Valid(t *testing.T) {
	handler := injectActor(DepositCheck()(deposit200))

	body := `{"amount":500000,"currency":"USD"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	// The handler must see the original body after the middleware peeked.
	if rec.Body.String() != body {
		t.Errorf("body not restored for handler: %s", rec.Body.String())
	}
}

func TestDepositCheck_ParsedValuesReachHandler(t *testing.T) {
	var gotAmount int64
	var gotCurrency string
	var gotOK bool
	handler := injectActor(DepositCheck()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAmount, gotCurrency, gotOK = DepositFromCtx(r.Context())
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":2500,"currency":"EUR"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !gotOK {
		t.Fatal("expected parsed deposit in context")
	}
	if gotAmount != 2500 || gotCurrency != "EUR" {
		t.Errorf("parsed deposit: got %d %s, want 2500 EUR", gotAmount, gotCurrency)
	}
}

func TestDepositCheck_NonPositiveAmount(t *testing.T) {
	handler := injectActor(DepositCheck()(deposit200))

	body := `{"amount":0,"currency":"USD"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "amount must be > 0") {
		t.Errorf("expected amount error, got: %s", rec.Body.String())
	}
}

func TestDepositCheck_UnsupportedCurrency(t *testing.T) {
	handler := injectActor(DepositCheck()(deposit200))

	body := `{"amount":100,"currency":"XRP"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "not supported") {
		t.Errorf("expected currency error, got: %s", rec.Body.String())
	}
}

func TestDepositCheck_NoActor(t *testing.T) {
	handler := DepositCheck()(deposit200)

	body := `{"amount":100,"currency":"USD"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
