// Package store implements the product and cart rule collaborators on
// PostgreSQL through pgx.
package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// DBTX is the subset of pgx used by the repositories; *pgxpool.Pool and
// pgx.Tx both satisfy it.
type DBTX interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
