package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/milestonepay/backend/internal/models"
)

type ActivityRepo struct {
	pool *pgxpool.Pool
}

func NewActivityRepo(pool *pgxpool.Pool) *ActivityRepo {
	return &ActivityRepo{pool: pool}
}

func (r *ActivityRepo) CreateTx(ctx context.Context, tx pgx.Tx, a *models.ProjectActivity) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO project_activity (id, project_id, actor_id, action, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.ProjectID, a.ActorID, a.Action, a.Details, a.CreatedAt)
	return err
}

func (r *ActivityRepo) ListByProjectID(ctx context.Context, projectID uuid.UUID) ([]*models.ProjectActivity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, project_id, actor_id, action, details, created_at
		FROM project_activity WHERE project_id = $1 ORDER BY created_at DESC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.ProjectActivity
	for rows.Next() {
		var a models.ProjectActivity
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.ActorID, &a.Action, &a.Details, &a.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &a)
	}
	return list, rows.Err()
}
