// Package audit writes the project activity trail. It is a write-only sink:
// recording failures are logged, never propagated, so the audit path cannot
// fail a business operation that has already committed its own writes.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/milestonepay/backend/internal/models"
)

// ActivityRepo appends activity rows, inside the caller's transaction when
// one is supplied.
type ActivityRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, a *models.ProjectActivity) error
}

type Recorder struct {
	Repo   ActivityRepo
	Logger *slog.Logger
}

func NewRecorder(repo ActivityRepo, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{Repo: repo, Logger: logger}
}

// Record appends one activity entry. details is marshalled to JSON; a nil
// details writes no payload.
func (r *Recorder) Record(ctx context.Context, tx pgx.Tx, projectID, actorID uuid.UUID, action string, details any) {
	var raw json.RawMessage
	if details != nil {
		b, err := json.Marshal(details)
		if err != nil {
			r.Logger.Error("audit: marshal details", "action", action, "error", err)
		} else {
			raw = b
		}
	}
	a := &models.ProjectActivity{
		ID:        uuid.New(),
		ProjectID: projectID,
		ActorID:   actorID,
		Action:    action,
		Details:   raw,
		CreatedAt: time.Now(),
	}
	if err := r.Repo.CreateTx(ctx, tx, a); err != nil {
		r.Logger.Error("audit: record activity", "action", action, "project_id", projectID, "error", err)
	}
}
