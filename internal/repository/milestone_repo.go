package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/milestonepay/backend/internal/models"
)

type MilestoneRepo struct {
	pool *pgxpool.Pool
}

func NewMilestoneRepo(pool *pgxpool.Pool) *MilestoneRepo {
	return &MilestoneRepo{pool: pool}
}

const milestoneCols = `id, project_id, milestone_order, title, acceptance_criteria, amount, currency,
	deadline, status, revisions_used, submitted_at, approved_at, created_at, updated_at`

func (r *MilestoneRepo) CreateTx(ctx context.Context, tx pgx.Tx, m *models.Milestone) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO milestones (id, project_id, milestone_order, title, acceptance_criteria, amount, currency,
			deadline, status, revisions_used, submitted_at, approved_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, m.ID, m.ProjectID, m.Order, m.Title, m.AcceptanceCriteria, m.Amount.Amount, m.Amount.Currency,
		m.Deadline, m.Status, m.RevisionsUsed, m.SubmittedAt, m.ApprovedAt, m.CreatedAt, m.UpdatedAt)
	return err
}

func (r *MilestoneRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Milestone, error) {
	m, err := scanMilestone(r.pool.QueryRow(ctx, `SELECT `+milestoneCols+` FROM milestones WHERE id = $1`, id))
	if err != nil {
		return nil, scanErr(err)
	}
	return m, nil
}

func (r *MilestoneRepo) ListByProjectID(ctx context.Context, projectID uuid.UUID) ([]*models.Milestone, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+milestoneCols+` FROM milestones WHERE project_id = $1 ORDER BY milestone_order
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// ListSubmittedBefore returns milestones still in submitted past the given
// cutoff. The auto-approval sweep feeds on this.
func (r *MilestoneRepo) ListSubmittedBefore(ctx context.Context, cutoff time.Time) ([]*models.Milestone, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+milestoneCols+` FROM milestones
		WHERE status = $1 AND submitted_at <= $2 ORDER BY submitted_at
	`, models.MilestoneStatusSubmitted, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

func (r *MilestoneRepo) UpdateTx(ctx context.Context, tx pgx.Tx, m *models.Milestone) error {
	_, err := tx.Exec(ctx, `
		UPDATE milestones SET title = $2, acceptance_criteria = $3, amount = $4, deadline = $5,
			status = $6, revisions_used = $7, submitted_at = $8, approved_at = $9, updated_at = now()
		WHERE id = $1
	`, m.ID, m.Title, m.AcceptanceCriteria, m.Amount.Amount, m.Deadline,
		m.Status, m.RevisionsUsed, m.SubmittedAt, m.ApprovedAt)
	return err
}

func (r *MilestoneRepo) AddDeliverableTx(ctx context.Context, tx pgx.Tx, d *models.Deliverable) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO deliverables (id, milestone_id, submitted_by, note, file_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, d.ID, d.MilestoneID, d.SubmittedBy, d.Note, d.FileURL, d.CreatedAt)
	return err
}

func (r *MilestoneRepo) ListDeliverables(ctx context.Context, milestoneID uuid.UUID) ([]*models.Deliverable, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, milestone_id, submitted_by, note, file_url, created_at
		FROM deliverables WHERE milestone_id = $1 ORDER BY created_at
	`, milestoneID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Deliverable
	for rows.Next() {
		var d models.Deliverable
		if err := rows.Scan(&d.ID, &d.MilestoneID, &d.SubmittedBy, &d.Note, &d.FileURL, &d.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &d)
	}
	return list, rows.Err()
}

func scanMilestone(row pgx.Row) (*models.Milestone, error) {
	var m models.Milestone
	err := row.Scan(&m.ID, &m.ProjectID, &m.Order, &m.Title, &m.AcceptanceCriteria,
		&m.Amount.Amount, &m.Amount.Currency, &m.Deadline, &m.Status, &m.RevisionsUsed,
		&m.SubmittedAt, &m.ApprovedAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
