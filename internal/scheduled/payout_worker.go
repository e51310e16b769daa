// Package scheduled holds the background jobs: payout transfers and the
// milestone auto-approval sweep.
package scheduled

import (
	"context"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/milestonepay/backend/internal/services"
)

type PayoutTransferArgs struct {
	PayoutID uuid.UUID `json:"payout_id"`
}

func (PayoutTransferArgs) Kind() string { return "payout_transfer" }

// PayoutTransferWorker executes the external transfer for a requested payout.
// Process is idempotent on non-pending payouts, so duplicate deliveries are
// harmless.
type PayoutTransferWorker struct {
	river.WorkerDefaults[PayoutTransferArgs]
	payouts *services.PayoutProcessor
}

func NewPayoutTransferWorker(payouts *services.PayoutProcessor) *PayoutTransferWorker {
	return &PayoutTransferWorker{payouts: payouts}
}

func (w *PayoutTransferWorker) Work(ctx context.Context, job *river.Job[PayoutTransferArgs]) error {
	return w.payouts.Process(ctx, job.Args.PayoutID)
}
