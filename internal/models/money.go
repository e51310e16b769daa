package models

import "time"

// Money is an amount in minor units (cents) plus its ISO 4217 currency code.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// USDSnapshot is the USD value recorded at conversion time. It is the
// audit-of-record: once taken it is never recomputed against a fresh rate.
type USDSnapshot struct {
	Amount int64     `json:"amount_usd"`
	Rate   float64   `json:"rate"`
	RateAt time.Time `json:"rate_at"`
}
