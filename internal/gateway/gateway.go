// Package gateway defines the external payment and rate capabilities the core
// consumes. The core never speaks a provider protocol; implementations live at
// the edge.
package gateway

import (
	"context"
	"time"
)

// Result is the outcome of a gateway money movement.
type Result struct {
	Success   bool
	Reference string
}

// PaymentGateway captures deposits, pays out transfers, and reverses charges.
// Calls are slow and fallible; callers invoke them at most once per
// transaction attempt and own the retry policy.
type PaymentGateway interface {
	Charge(ctx context.Context, amount int64, currency, method string) (Result, error)
	Transfer(ctx context.Context, amount int64, currency, destination string) (Result, error)
	Refund(ctx context.Context, reference string, amount int64) error
}

// RateProvider supplies an exchange rate for a currency pair at a point in
// time. The core records the supplied rate as a snapshot and never recomputes.
type RateProvider interface {
	Rate(ctx context.Context, from, to string, at time.Time) (float64, error)
}
