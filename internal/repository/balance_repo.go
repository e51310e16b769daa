package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/milestonepay/backend/internal/models"
	"github.com/milestonepay/backend/internal/services"
)

// BalanceRepo maintains the per-user, per-currency balance projection. Rows
// are upserted on first credit and locked with the write so concurrent
// payouts cannot both pass the availability check.
type BalanceRepo struct {
	pool *pgxpool.Pool
}

func NewBalanceRepo(pool *pgxpool.Pool) *BalanceRepo {
	return &BalanceRepo{pool: pool}
}

func (r *BalanceRepo) Get(ctx context.Context, userID uuid.UUID, currency string) (*models.Balance, error) {
	var b models.Balance
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, available, pending, currency, updated_at
		FROM balances WHERE user_id = $1 AND currency = $2
	`, userID, currency).Scan(&b.UserID, &b.Available, &b.Pending, &b.Currency, &b.UpdatedAt)
	if err != nil {
		return nil, scanErr(err)
	}
	return &b, nil
}

func (r *BalanceRepo) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Balance, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, available, pending, currency, updated_at
		FROM balances WHERE user_id = $1 ORDER BY currency
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Balance
	for rows.Next() {
		var b models.Balance
		if err := rows.Scan(&b.UserID, &b.Available, &b.Pending, &b.Currency, &b.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &b)
	}
	return list, rows.Err()
}

// AddAvailableTx credits (or debits) the available balance, creating the row
// on first use.
func (r *BalanceRepo) AddAvailableTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, currency string, delta int64) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO balances (user_id, currency, available, pending, updated_at)
		VALUES ($1, $2, $3, 0, now())
		ON CONFLICT (user_id, currency)
		DO UPDATE SET available = balances.available + $3, updated_at = now()
	`, userID, currency, delta)
	return err
}

// DeductAvailableTx moves amount from available to pending, failing with
// ErrInsufficientFunds when the row is missing or available < amount.
func (r *BalanceRepo) DeductAvailableTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, currency string, amount int64) error {
	tag, err := tx.Exec(ctx, `
		UPDATE balances SET available = available - $3, pending = pending + $3, updated_at = now()
		WHERE user_id = $1 AND currency = $2 AND available >= $3
	`, userID, currency, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return services.ErrInsufficientFunds
	}
	return nil
}

// SettlePendingTx drains the pending amount (restore=false) or returns it to
// available (restore=true) after the external transfer resolves.
func (r *BalanceRepo) SettlePendingTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, currency string, amount int64, restore bool) error {
	var sql string
	if restore {
		sql = `UPDATE balances SET pending = pending - $3, available = available + $3, updated_at = now()
			WHERE user_id = $1 AND currency = $2 AND pending >= $3`
	} else {
		sql = `UPDATE balances SET pending = pending - $3, updated_at = now()
			WHERE user_id = $1 AND currency = $2 AND pending >= $3`
	}
	tag, err := tx.Exec(ctx, sql, userID, currency, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return services.ErrInsufficientFunds
	}
	return nil
}
