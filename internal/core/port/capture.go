package port

import (
	"context"

	"github.com/guillermoBallester/rowtrail/internal/core/domain"
)

// CaptureResult carries the snapshots produced around one real execution.
type CaptureResult struct {
	Before domain.Snapshot
	After  domain.Snapshot
	Rows   int64

	// Executed reports whether the real statement ran. A strategy that
	// fails before executing returns Executed == false so the orchestrator
	// can fall back to another strategy without duplicating the execution.
	Executed bool
}

// CaptureStrategy wraps the real execution of a parsed statement and
// produces before/after row images.
//
// Contract: the underlying statement is executed at most once per Capture
// call. An error with Executed == false means the strategy declined before
// touching the database; an error with Executed == true is the real
// execution's failure and must propagate to the caller unchanged.
type CaptureStrategy interface {
	Name() string
	Capture(ctx context.Context, q Querier, stmt *domain.Statement, args []any) (CaptureResult, error)
}

// ColumnSource resolves the ordered column list for a schema-qualified
// table. An empty list means no capture clause can be built for the table.
type ColumnSource interface {
	Columns(ctx context.Context, schema, table string) ([]string, error)
	Invalidate(schema, table string)
}
