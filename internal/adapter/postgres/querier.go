package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guillermoBallester/rowtrail/internal/core/domain"
)

// Querier adapts a pgx connection pool to the narrow execute/query
// surface the interception layer works against.
type Querier struct {
	pool *pgxpool.Pool
}

func NewQuerier(pool *pgxpool.Pool) *Querier {
	return &Querier{pool: pool}
}

func (q *Querier) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := q.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q *Querier) Query(ctx context.Context, sql string, args ...any) ([]domain.Snapshot, error) {
	rows, err := q.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()
	return rowsToSnapshots(rows)
}
