package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/milestonepay/backend/internal/models"
)

type PayoutMethodRepo struct {
	pool *pgxpool.Pool
}

func NewPayoutMethodRepo(pool *pgxpool.Pool) *PayoutMethodRepo {
	return &PayoutMethodRepo{pool: pool}
}

func (r *PayoutMethodRepo) Create(ctx context.Context, m *models.PayoutMethod) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO payout_methods (id, user_id, kind, destination, label)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, m.ID, m.UserID, m.Kind, m.Destination, m.Label).Scan(&m.CreatedAt)
}

func (r *PayoutMethodRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PayoutMethod, error) {
	var m models.PayoutMethod
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, kind, destination, label, created_at
		FROM payout_methods WHERE id = $1
	`, id).Scan(&m.ID, &m.UserID, &m.Kind, &m.Destination, &m.Label, &m.CreatedAt)
	if err != nil {
		return nil, scanErr(err)
	}
	return &m, nil
}

func (r *PayoutMethodRepo) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.PayoutMethod, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, kind, destination, label, created_at
		FROM payout_methods WHERE user_id = $1 ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.PayoutMethod
	for rows.Next() {
		var m models.PayoutMethod
		if err := rows.Scan(&m.ID, &m.UserID, &m.Kind, &m.Destination, &m.Label, &m.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &m)
	}
	return list, rows.Err()
}

func (r *PayoutMethodRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM payout_methods WHERE id = $1`, id)
	return err
}
