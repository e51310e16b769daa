package scheduled

import (
	"context"
	"log/slog"
	"time"

	"github.com/riverqueue/river"

	"github.com/milestonepay/backend/internal/models"
	"github.com/milestonepay/backend/internal/services"
)

type AutoApproveSweepArgs struct{}

func (AutoApproveSweepArgs) Kind() string { return "auto_approve_sweep" }

// SubmittedLister finds candidate milestones for the sweep.
type SubmittedLister interface {
	ListSubmittedBefore(ctx context.Context, cutoff time.Time) ([]*models.Milestone, error)
}

// AutoApproveSweepWorker approves milestones whose review window has lapsed
// without a client response. AutoApprove itself rechecks status and window
// per milestone, so the sweep can over-select candidates safely.
type AutoApproveSweepWorker struct {
	river.WorkerDefaults[AutoApproveSweepArgs]
	milestones SubmittedLister
	lifecycle  *services.Lifecycle
	logger     *slog.Logger
}

func NewAutoApproveSweepWorker(milestones SubmittedLister, lifecycle *services.Lifecycle, logger *slog.Logger) *AutoApproveSweepWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &AutoApproveSweepWorker{milestones: milestones, lifecycle: lifecycle, logger: logger}
}

func (w *AutoApproveSweepWorker) Work(ctx context.Context, job *river.Job[AutoApproveSweepArgs]) error {
	candidates, err := w.milestones.ListSubmittedBefore(ctx, time.Now())
	if err != nil {
		return err
	}
	for _, m := range candidates {
		if err := w.lifecycle.AutoApprove(ctx, m.ID); err != nil {
			// One bad milestone must not starve the rest of the sweep.
			w.logger.Error("auto-approve failed", "milestone_id", m.ID, "error", err)
		}
	}
	return nil
}
