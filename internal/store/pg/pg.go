// Package pg is the Postgres-backed store.Store implementation: raw SQL
// over sqlx.DB (itself backed by pgx/v5's stdlib driver), column-constant
// strings, and partial updates via execMapUpdate — the same shape as the
// teacher's internal/store/pg/teams.go, generalized to the scheduler's
// entities and conditional-update semantics (spec.md §9 "conditional
// atomic updates substitute for transactions").
package pg

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" sql driver
)

// Store implements store.Store (via its embedded sub-stores in this
// package) on top of one Postgres connection pool.
type Store struct {
	db *sqlx.DB
}

// Open connects to dsn using pgx's stdlib driver wrapped in sqlx.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: connect: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// execMapUpdate builds and runs `UPDATE table SET col=$1, ... WHERE id=$N`
// from a map of column->value, the partial-update helper the teacher's
// store layer calls but never defines in the retrieved files.
func execMapUpdate(ctx context.Context, db *sqlx.DB, table string, id interface{}, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	cols := make([]string, 0, len(updates))
	args := make([]interface{}, 0, len(updates)+1)
	i := 1
	for col, val := range updates {
		cols = append(cols, fmt.Sprintf("%s = $%d", col, i))
		args = append(args, val)
		i++
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", table, strings.Join(cols, ", "), i)
	_, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("pg: update %s: %w", table, err)
	}
	return nil
}
