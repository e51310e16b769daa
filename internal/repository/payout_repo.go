package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/milestonepay/backend/internal/models"
)

type PayoutRepo struct {
	pool *pgxpool.Pool
}

func NewPayoutRepo(pool *pgxpool.Pool) *PayoutRepo {
	return &PayoutRepo{pool: pool}
}

const payoutCols = `id, user_id, method_id, transaction_id, amount, platform_fee, processing_fee,
	net_amount, currency, status, gateway_ref, failure_reason, requested_at, completed_at`

func (r *PayoutRepo) CreateTx(ctx context.Context, tx pgx.Tx, p *models.Payout) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO payouts (id, user_id, method_id, transaction_id, amount, platform_fee, processing_fee,
			net_amount, currency, status, gateway_ref, failure_reason, requested_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, p.ID, p.UserID, p.MethodID, p.TransactionID, p.Amount, p.PlatformFee, p.ProcessingFee,
		p.NetAmount, p.Currency, p.Status, p.GatewayRef, p.FailureReason, p.RequestedAt, p.CompletedAt)
	return err
}

func (r *PayoutRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	p, err := scanPayout(r.pool.QueryRow(ctx, `SELECT `+payoutCols+` FROM payouts WHERE id = $1`, id))
	if err != nil {
		return nil, scanErr(err)
	}
	return p, nil
}

func (r *PayoutRepo) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Payout, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+payoutCols+` FROM payouts WHERE user_id = $1 ORDER BY requested_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func (r *PayoutRepo) UpdateTx(ctx context.Context, tx pgx.Tx, p *models.Payout) error {
	_, err := tx.Exec(ctx, `
		UPDATE payouts SET status = $2, gateway_ref = $3, failure_reason = $4, completed_at = $5
		WHERE id = $1
	`, p.ID, p.Status, p.GatewayRef, p.FailureReason, p.CompletedAt)
	return err
}

func scanPayout(row pgx.Row) (*models.Payout, error) {
	var p models.Payout
	err := row.Scan(&p.ID, &p.UserID, &p.MethodID, &p.TransactionID, &p.Amount, &p.PlatformFee,
		&p.ProcessingFee, &p.NetAmount, &p.Currency, &p.Status, &p.GatewayRef, &p.FailureReason,
		&p.RequestedAt, &p.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
