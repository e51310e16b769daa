package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const ctxDepositKey contextKey = "parsed_deposit"

// SupportedCurrencies is the set of settlement currencies the platform
// accepts. DepositCheck rejects requests in other currencies early.
var SupportedCurrencies = map[string]bool{
	"USD": true,
	"EUR": true,
	"GBP": true,
	"CAD": true,
	"AUD": true,
}

// parsedDeposit is stored in context so the handler can read the amount
// without re-parsing the body.
type parsedDeposit struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// DepositFromCtx returns the amount and currency parsed by DepositCheck. ok
// is false when the middleware did not run on this request.
func DepositFromCtx(ctx context.Context) (amount int64, currency string, ok bool) {
	if d, ok := ctx.Value(ctxDepositKey).(*parsedDeposit); ok {
		return d.Amount, d.Currency, true
	}
	return 0, "", false
}

// DepositCheck validates deposit requests before they reach the ledger:
// authenticated actor, positive amount, supported currency. Reads the body to
// extract "amount" and "currency", then replaces r.Body so downstream
// handlers can re-read it.
func DepositCheck() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := ActorFromCtx(r.Context()); !ok {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}

			bodyBytes, err := io.ReadAll(r.Body)
			r.Body.Close()
			if err != nil {
				http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
				return
			}
			// Restore body for the handler.
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			var peek parsedDeposit
			if err := json.Unmarshal(bodyBytes, &peek); err != nil {
				http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
				return
			}
			if peek.Amount <= 0 {
				http.Error(w, `{"error":"amount must be > 0"}`, http.StatusBadRequest)
				return
			}
			if peek.Currency != "" && !SupportedCurrencies[peek.Currency] {
				http.Error(w, fmt.Sprintf(`{"error":"currency %q is not supported"}`, peek.Currency), http.StatusBadRequest)
				return
			}

			ctx := context.WithValue(r.Context(), ctxDepositKey, &peek)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
