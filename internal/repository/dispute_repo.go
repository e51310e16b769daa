package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/milestonepay/backend/internal/models"
)

type DisputeRepo struct {
	pool *pgxpool.Pool
}

func NewDisputeRepo(pool *pgxpool.Pool) *DisputeRepo {
	return &DisputeRepo{pool: pool}
}

const disputeCols = `id, milestone_id, project_id, client_id, freelancer_id, raised_by, reason,
	status, phase, arbitrator_id, created_at, updated_at, resolved_at`

func (r *DisputeRepo) CreateTx(ctx context.Context, tx pgx.Tx, d *models.Dispute) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO disputes (id, milestone_id, project_id, client_id, freelancer_id, raised_by, reason,
			status, phase, arbitrator_id, created_at, updated_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, d.ID, d.MilestoneID, d.ProjectID, d.ClientID, d.FreelancerID, d.RaisedBy, d.Reason,
		d.Status, d.Phase, d.ArbitratorID, d.CreatedAt, d.UpdatedAt, d.ResolvedAt)
	return err
}

func (r *DisputeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	d, err := scanDispute(r.pool.QueryRow(ctx, `SELECT `+disputeCols+` FROM disputes WHERE id = $1`, id))
	if err != nil {
		return nil, scanErr(err)
	}
	return d, nil
}

func (r *DisputeRepo) ListByProjectID(ctx context.Context, projectID uuid.UUID) ([]*models.Dispute, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+disputeCols+` FROM disputes WHERE project_id = $1 ORDER BY created_at DESC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

func (r *DisputeRepo) CountOpenByProjectID(ctx context.Context, projectID uuid.UUID) (int, error) {
	var n int
	// Escalated disputes still count: the project stays disputed until an
	// operator decides them.
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM disputes
		WHERE project_id = $1 AND status <> $2
	`, projectID, models.DisputeStatusResolved).Scan(&n)
	return n, err
}

func (r *DisputeRepo) UpdateTx(ctx context.Context, tx pgx.Tx, d *models.Dispute) error {
	_, err := tx.Exec(ctx, `
		UPDATE disputes SET status = $2, phase = $3, arbitrator_id = $4, resolved_at = $5, updated_at = now()
		WHERE id = $1
	`, d.ID, d.Status, d.Phase, d.ArbitratorID, d.ResolvedAt)
	return err
}

func (r *DisputeRepo) AddMessageTx(ctx context.Context, tx pgx.Tx, m *models.DisputeMessage) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO dispute_messages (id, dispute_id, author_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, m.ID, m.DisputeID, m.AuthorID, m.Body, m.CreatedAt)
	return err
}

func (r *DisputeRepo) ListMessages(ctx context.Context, disputeID uuid.UUID) ([]*models.DisputeMessage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, dispute_id, author_id, body, created_at
		FROM dispute_messages WHERE dispute_id = $1 ORDER BY created_at
	`, disputeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.DisputeMessage
	for rows.Next() {
		var m models.DisputeMessage
		if err := rows.Scan(&m.ID, &m.DisputeID, &m.AuthorID, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &m)
	}
	return list, rows.Err()
}

func (r *DisputeRepo) AddEvidenceTx(ctx context.Context, tx pgx.Tx, e *models.Evidence) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO dispute_evidence (id, dispute_id, submitted_by, kind, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.DisputeID, e.SubmittedBy, e.Kind, e.Metadata, e.CreatedAt)
	return err
}

func (r *DisputeRepo) ListEvidence(ctx context.Context, disputeID uuid.UUID) ([]*models.Evidence, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, dispute_id, submitted_by, kind, metadata, created_at
		FROM dispute_evidence WHERE dispute_id = $1 ORDER BY created_at
	`, disputeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Evidence
	for rows.Next() {
		var e models.Evidence
		if err := rows.Scan(&e.ID, &e.DisputeID, &e.SubmittedBy, &e.Kind, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}

func (r *DisputeRepo) CreateResolutionTx(ctx context.Context, tx pgx.Tx, res *models.DisputeResolution) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO dispute_resolutions (id, dispute_id, decision, client_amount, freelancer_amount, notes, decided_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, res.ID, res.DisputeID, res.Decision, res.ClientAmount, res.FreelancerAmount, res.Notes, res.DecidedBy, res.CreatedAt)
	return err
}

func scanDispute(row pgx.Row) (*models.Dispute, error) {
	var d models.Dispute
	err := row.Scan(&d.ID, &d.MilestoneID, &d.ProjectID, &d.ClientID, &d.FreelancerID, &d.RaisedBy,
		&d.Reason, &d.Status, &d.Phase, &d.ArbitratorID, &d.CreatedAt, &d.UpdatedAt, &d.ResolvedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
