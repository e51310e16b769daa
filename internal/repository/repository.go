// Package repository holds the pgx-backed persistence layer. Methods with a
// Tx suffix run inside a caller-owned transaction; the rest use the pool
// directly. Row lookups translate pgx.ErrNoRows into services.ErrNotFound so
// callers never depend on driver errors.
package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/milestonepay/backend/internal/services"
)

func scanErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return services.ErrNotFound
	}
	return err
}
