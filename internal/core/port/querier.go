package port

import (
	"context"

	"github.com/guillermoBallester/rowtrail/internal/core/domain"
)

// Querier is the narrow database surface the interception layer needs:
// execute a mutating statement, or run a read and get rows back as
// column-name keyed maps. *pgxpool.Pool is adapted to this interface by
// the postgres adapter.
type Querier interface {
	// Exec runs a statement and returns the affected row count.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)

	// Query runs a statement that returns rows.
	Query(ctx context.Context, sql string, args ...any) ([]domain.Snapshot, error)
}
