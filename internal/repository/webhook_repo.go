package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WebhookRepo stores webhook endpoint registrations. It implements
// events.EndpointSource.
type WebhookRepo struct {
	pool *pgxpool.Pool
}

func NewWebhookRepo(pool *pgxpool.Pool) *WebhookRepo {
	return &WebhookRepo{pool: pool}
}

func (r *WebhookRepo) Register(ctx context.Context, id uuid.UUID, userID uuid.UUID, url string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO webhook_endpoints (id, user_id, url)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, url) DO NOTHING
	`, id, userID, url)
	return err
}

func (r *WebhookRepo) Unregister(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM webhook_endpoints WHERE id = $1`, id)
	return err
}

func (r *WebhookRepo) ListEndpoints(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT url FROM webhook_endpoints`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}
