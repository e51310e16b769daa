package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/milestonepay/backend/internal/models"
)

type ProjectRepo struct {
	pool *pgxpool.Pool
}

func NewProjectRepo(pool *pgxpool.Pool) *ProjectRepo {
	return &ProjectRepo{pool: pool}
}

const projectCols = `id, client_id, freelancer_id, title, description, budget_amount, budget_currency,
	budget_usd_amount, budget_usd_rate, budget_usd_rate_at, deadline, status,
	platform_fee_bps, processing_fee_bps, auto_approval_days, max_revisions, created_at, updated_at`

func (r *ProjectRepo) CreateTx(ctx context.Context, tx pgx.Tx, p *models.Project) error {
	var usdAmount *int64
	var usdRate *float64
	var usdRateAt any
	if p.BudgetUSD != nil {
		usdAmount = &p.BudgetUSD.Amount
		usdRate = &p.BudgetUSD.Rate
		usdRateAt = p.BudgetUSD.RateAt
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO projects (id, client_id, freelancer_id, title, description, budget_amount, budget_currency,
			budget_usd_amount, budget_usd_rate, budget_usd_rate_at, deadline, status,
			platform_fee_bps, processing_fee_bps, auto_approval_days, max_revisions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, p.ID, p.ClientID, p.FreelancerID, p.Title, p.Description, p.Budget.Amount, p.Budget.Currency,
		usdAmount, usdRate, usdRateAt, p.Deadline, p.Status,
		p.PlatformFeeBps, p.ProcessingFeeBps, p.AutoApprovalDays, p.MaxRevisions, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *ProjectRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+projectCols+` FROM projects WHERE id = $1`, id)
	return scanProject(row)
}

func (r *ProjectRepo) UpdateTx(ctx context.Context, tx pgx.Tx, p *models.Project) error {
	_, err := tx.Exec(ctx, `
		UPDATE projects SET freelancer_id = $2, title = $3, description = $4, deadline = $5, status = $6,
			auto_approval_days = $7, max_revisions = $8, updated_at = now()
		WHERE id = $1
	`, p.ID, p.FreelancerID, p.Title, p.Description, p.Deadline, p.Status, p.AutoApprovalDays, p.MaxRevisions)
	return err
}

func (r *ProjectRepo) ListByClientID(ctx context.Context, clientID uuid.UUID) ([]*models.Project, error) {
	return r.list(ctx, `SELECT `+projectCols+` FROM projects WHERE client_id = $1 ORDER BY created_at DESC`, clientID)
}

func (r *ProjectRepo) ListByFreelancerID(ctx context.Context, freelancerID uuid.UUID) ([]*models.Project, error) {
	return r.list(ctx, `SELECT `+projectCols+` FROM projects WHERE freelancer_id = $1 ORDER BY created_at DESC`, freelancerID)
}

func (r *ProjectRepo) list(ctx context.Context, sql string, args ...any) ([]*models.Project, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProject(row pgx.Row) (*models.Project, error) {
	var p models.Project
	var usdAmount *int64
	var usdRate *float64
	var usdRateAt *time.Time
	err := row.Scan(&p.ID, &p.ClientID, &p.FreelancerID, &p.Title, &p.Description,
		&p.Budget.Amount, &p.Budget.Currency, &usdAmount, &usdRate, &usdRateAt,
		&p.Deadline, &p.Status, &p.PlatformFeeBps, &p.ProcessingFeeBps,
		&p.AutoApprovalDays, &p.MaxRevisions, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, scanErr(err)
	}
	if usdAmount != nil && usdRate != nil && usdRateAt != nil {
		p.BudgetUSD = &models.USDSnapshot{Amount: *usdAmount, Rate: *usdRate, RateAt: *usdRateAt}
	}
	return &p, nil
}
