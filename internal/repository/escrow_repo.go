package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/milestonepay/backend/internal/models"
)

type EscrowRepo struct {
	pool *pgxpool.Pool
}

func NewEscrowRepo(pool *pgxpool.Pool) *EscrowRepo {
	return &EscrowRepo{pool: pool}
}

const escrowCols = `id, project_id, currency, total_amount, held_amount, released_amount,
	usd_amount, usd_rate, usd_rate_at, status, frozen, created_at, updated_at`

// GetByProjectIDForUpdate locks the account row for the duration of the
// transaction. All balance mutations go through this lock.
func (r *EscrowRepo) GetByProjectIDForUpdate(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) (*models.EscrowAccount, error) {
	a, err := scanEscrow(tx.QueryRow(ctx, `
		SELECT `+escrowCols+` FROM escrow_accounts WHERE project_id = $1 FOR UPDATE
	`, projectID))
	if err != nil {
		return nil, scanErr(err)
	}
	return a, nil
}

func (r *EscrowRepo) GetByProjectID(ctx context.Context, projectID uuid.UUID) (*models.EscrowAccount, error) {
	a, err := scanEscrow(r.pool.QueryRow(ctx, `
		SELECT `+escrowCols+` FROM escrow_accounts WHERE project_id = $1
	`, projectID))
	if err != nil {
		return nil, scanErr(err)
	}
	return a, nil
}

func (r *EscrowRepo) CreateTx(ctx context.Context, tx pgx.Tx, a *models.EscrowAccount) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO escrow_accounts (id, project_id, currency, total_amount, held_amount, released_amount,
			usd_amount, usd_rate, usd_rate_at, status, frozen, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, a.ID, a.ProjectID, a.Currency, a.TotalAmount, a.HeldAmount, a.ReleasedAmount,
		a.USD.Amount, a.USD.Rate, a.USD.RateAt, a.Status, a.Frozen, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r *EscrowRepo) UpdateTx(ctx context.Context, tx pgx.Tx, a *models.EscrowAccount) error {
	_, err := tx.Exec(ctx, `
		UPDATE escrow_accounts SET total_amount = $2, held_amount = $3, released_amount = $4,
			usd_amount = $5, usd_rate = $6, usd_rate_at = $7, status = $8, frozen = $9, updated_at = now()
		WHERE id = $1
	`, a.ID, a.TotalAmount, a.HeldAmount, a.ReleasedAmount,
		a.USD.Amount, a.USD.Rate, a.USD.RateAt, a.Status, a.Frozen)
	return err
}

func scanEscrow(row pgx.Row) (*models.EscrowAccount, error) {
	var a models.EscrowAccount
	err := row.Scan(&a.ID, &a.ProjectID, &a.Currency, &a.TotalAmount, &a.HeldAmount, &a.ReleasedAmount,
		&a.USD.Amount, &a.USD.Rate, &a.USD.RateAt, &a.Status, &a.Frozen, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
