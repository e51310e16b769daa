package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/milestonepay/backend/internal/models"
)

// ProposalRepo stores change proposals. Original and proposed terms are kept
// as jsonb blobs since they are read and written whole.
type ProposalRepo struct {
	pool *pgxpool.Pool
}

func NewProposalRepo(pool *pgxpool.Pool) *ProposalRepo {
	return &ProposalRepo{pool: pool}
}

func (r *ProposalRepo) CreateTx(ctx context.Context, tx pgx.Tx, p *models.ChangeProposal) error {
	original, err := json.Marshal(p.Original)
	if err != nil {
		return err
	}
	proposed, err := json.Marshal(p.Proposed)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO change_proposals (id, milestone_id, proposed_by, original_terms, proposed_terms, status, created_at, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID, p.MilestoneID, p.ProposedBy, original, proposed, p.Status, p.CreatedAt, p.DecidedAt)
	return err
}

func (r *ProposalRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.ChangeProposal, error) {
	p, err := scanProposal(r.pool.QueryRow(ctx, `
		SELECT id, milestone_id, proposed_by, original_terms, proposed_terms, status, created_at, decided_at
		FROM change_proposals WHERE id = $1
	`, id))
	if err != nil {
		return nil, scanErr(err)
	}
	return p, nil
}

func (r *ProposalRepo) GetPendingByMilestoneID(ctx context.Context, milestoneID uuid.UUID) (*models.ChangeProposal, error) {
	p, err := scanProposal(r.pool.QueryRow(ctx, `
		SELECT id, milestone_id, proposed_by, original_terms, proposed_terms, status, created_at, decided_at
		FROM change_proposals WHERE milestone_id = $1 AND status = $2
		ORDER BY created_at DESC LIMIT 1
	`, milestoneID, models.ProposalStatusPending))
	if err != nil {
		return nil, scanErr(err)
	}
	return p, nil
}

func (r *ProposalRepo) UpdateTx(ctx context.Context, tx pgx.Tx, p *models.ChangeProposal) error {
	_, err := tx.Exec(ctx, `
		UPDATE change_proposals SET status = $2, decided_at = $3 WHERE id = $1
	`, p.ID, p.Status, p.DecidedAt)
	return err
}

func scanProposal(row pgx.Row) (*models.ChangeProposal, error) {
	var p models.ChangeProposal
	var original, proposed []byte
	err := row.Scan(&p.ID, &p.MilestoneID, &p.ProposedBy, &original, &proposed, &p.Status, &p.CreatedAt, &p.DecidedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(original, &p.Original); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(proposed, &p.Proposed); err != nil {
		return nil, err
	}
	return &p, nil
}
