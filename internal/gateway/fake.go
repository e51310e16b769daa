package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// FakeGateway is a deterministic in-process gateway for local development and
// tests. It approves everything unless a failure is injected.
type FakeGateway struct {
	mu       sync.Mutex
	seq      int
	failNext error
}

func NewFakeGateway() *FakeGateway { return &FakeGateway{} }

// FailNext makes the next Charge or Transfer return err.
func (g *FakeGateway) FailNext(err error) {
	g.mu.Lock()
	g.failNext = err
	g.mu.Unlock()
}

func (g *FakeGateway) next(prefix string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failNext != nil {
		err := g.failNext
		g.failNext = nil
		return "", err
	}
	g.seq++
	return fmt.Sprintf("%s_%06d", prefix, g.seq), nil
}

func (g *FakeGateway) Charge(_ context.Context, amount int64, currency, method string) (Result, error) {
	if amount <= 0 {
		return Result{}, errors.New("charge amount must be positive")
	}
	ref, err := g.next("ch")
	if err != nil {
		return Result{}, err
	}
	_ = method
	_ = currency
	return Result{Success: true, Reference: ref}, nil
}

func (g *FakeGateway) Transfer(_ context.Context, amount int64, currency, destination string) (Result, error) {
	if amount <= 0 {
		return Result{}, errors.New("transfer amount must be positive")
	}
	if destination == "" {
		return Result{}, errors.New("missing destination")
	}
	ref, err := g.next("tr")
	if err != nil {
		return Result{}, err
	}
	_ = currency
	return Result{Success: true, Reference: ref}, nil
}

func (g *FakeGateway) Refund(_ context.Context, reference string, amount int64) error {
	if reference == "" || amount <= 0 {
		return errors.New("invalid refund")
	}
	return nil
}

var _ PaymentGateway = (*FakeGateway)(nil)

// FixedRates serves rates from a static table keyed by "FROM/TO".
type FixedRates struct {
	Rates map[string]float64
}

func NewFixedRates(rates map[string]float64) *FixedRates {
	return &FixedRates{Rates: rates}
}

func (f *FixedRates) Rate(_ context.Context, from, to string, _ time.Time) (float64, error) {
	from = strings.ToUpper(from)
	to = strings.ToUpper(to)
	if from == to {
		return 1, nil
	}
	if r, ok := f.Rates[from+"/"+to]; ok {
		return r, nil
	}
	return 0, fmt.Errorf("no rate for %s/%s", from, to)
}

var _ RateProvider = (*FixedRates)(nil)
