package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/milestonepay/backend/internal/models"
	"github.com/milestonepay/backend/internal/services"
)

type TransactionRepo struct {
	pool *pgxpool.Pool
}

func NewTransactionRepo(pool *pgxpool.Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

const txCols = `id, project_id, milestone_id, user_id, tx_type, status, amount, currency,
	platform_fee, processing_fee, gateway_ref, failure_reason, description, created_at, completed_at`

// CreateTx appends a ledger entry. The only legal mutation afterwards is the
// pending -> completed/failed settlement; corrections beyond that are new
// compensating entries.
func (r *TransactionRepo) CreateTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO transactions (id, project_id, milestone_id, user_id, tx_type, status, amount, currency,
			platform_fee, processing_fee, gateway_ref, failure_reason, description, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, t.ID, t.ProjectID, t.MilestoneID, t.UserID, t.Type, t.Status, t.Amount, t.Currency,
		t.PlatformFee, t.ProcessingFee, t.GatewayRef, t.FailureReason, t.Description, t.CreatedAt, t.CompletedAt)
	return err
}

// CompleteTx settles a pending entry with the gateway reference. Terminal
// entries are immutable, so the guard refuses anything but a pending row.
func (r *TransactionRepo) CompleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, gatewayRef string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE transactions SET status = $2, gateway_ref = $3, completed_at = now()
		WHERE id = $1 AND status = $4
	`, id, models.TxStatusCompleted, gatewayRef, models.TxStatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return services.ErrNotFound
	}
	return nil
}

// FailTx settles a pending entry as failed with the gateway's reason.
func (r *TransactionRepo) FailTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE transactions SET status = $2, failure_reason = $3, completed_at = now()
		WHERE id = $1 AND status = $4
	`, id, models.TxStatusFailed, reason, models.TxStatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return services.ErrNotFound
	}
	return nil
}

func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	t, err := scanTransaction(r.pool.QueryRow(ctx, `SELECT `+txCols+` FROM transactions WHERE id = $1`, id))
	if err != nil {
		return nil, scanErr(err)
	}
	return t, nil
}

func (r *TransactionRepo) ListByProjectID(ctx context.Context, projectID uuid.UUID) ([]*models.Transaction, error) {
	return r.list(ctx, `SELECT `+txCols+` FROM transactions WHERE project_id = $1 ORDER BY created_at DESC`, projectID)
}

func (r *TransactionRepo) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Transaction, error) {
	return r.list(ctx, `SELECT `+txCols+` FROM transactions WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (r *TransactionRepo) list(ctx context.Context, sql string, args ...any) ([]*models.Transaction, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.ID, &t.ProjectID, &t.MilestoneID, &t.UserID, &t.Type, &t.Status,
		&t.Amount, &t.Currency, &t.PlatformFee, &t.ProcessingFee,
		&t.GatewayRef, &t.FailureReason, &t.Description, &t.CreatedAt, &t.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
