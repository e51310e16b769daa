package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/milestonepay/backend/internal/models"
)

type InvitationRepo struct {
	pool *pgxpool.Pool
}

func NewInvitationRepo(pool *pgxpool.Pool) *InvitationRepo {
	return &InvitationRepo{pool: pool}
}

func (r *InvitationRepo) CreateTx(ctx context.Context, tx pgx.Tx, inv *models.ProjectInvitation) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO project_invitations (id, project_id, freelancer_id, message, status, created_at, responded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, inv.ID, inv.ProjectID, inv.FreelancerID, inv.Message, inv.Status, inv.CreatedAt, inv.RespondedAt)
	return err
}

func (r *InvitationRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.ProjectInvitation, error) {
	var inv models.ProjectInvitation
	err := r.pool.QueryRow(ctx, `
		SELECT id, project_id, freelancer_id, message, status, created_at, responded_at
		FROM project_invitations WHERE id = $1
	`, id).Scan(&inv.ID, &inv.ProjectID, &inv.FreelancerID, &inv.Message, &inv.Status, &inv.CreatedAt, &inv.RespondedAt)
	if err != nil {
		return nil, scanErr(err)
	}
	return &inv, nil
}

func (r *InvitationRepo) ListByFreelancerID(ctx context.Context, freelancerID uuid.UUID) ([]*models.ProjectInvitation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, project_id, freelancer_id, message, status, created_at, responded_at
		FROM project_invitations WHERE freelancer_id = $1 ORDER BY created_at DESC
	`, freelancerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.ProjectInvitation
	for rows.Next() {
		var inv models.ProjectInvitation
		if err := rows.Scan(&inv.ID, &inv.ProjectID, &inv.FreelancerID, &inv.Message, &inv.Status, &inv.CreatedAt, &inv.RespondedAt); err != nil {
			return nil, err
		}
		list = append(list, &inv)
	}
	return list, rows.Err()
}

func (r *InvitationRepo) UpdateTx(ctx context.Context, tx pgx.Tx, inv *models.ProjectInvitation) error {
	_, err := tx.Exec(ctx, `
		UPDATE project_invitations SET status = $2, responded_at = $3 WHERE id = $1
	`, inv.ID, inv.Status, inv.RespondedAt)
	return err
}
