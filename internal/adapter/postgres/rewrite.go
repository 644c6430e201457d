package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/guillermoBallester/rowtrail/internal/core/domain"
	"github.com/guillermoBallester/rowtrail/internal/core/port"
)

// oldNewMinVersion is the first server version with old/new aliases in
// RETURNING, which the UPDATE rewrite depends on.
const oldNewMinVersion = 180000

// RewriteStrategy captures before/after images by appending a RETURNING
// clause to the real statement, so capture and mutation are a single
// database operation. This is the atomic, race-free path.
//
// The splice point comes from the parse tree's statement span, never from
// scanning the raw text for keywords, so literals containing "WHERE" or
// "VALUES" cannot corrupt the rewrite.
type RewriteStrategy struct {
	columns port.ColumnSource
	logger  *slog.Logger

	mu     sync.Mutex
	oldNew *bool // lazily detected old/new RETURNING support
}

func NewRewriteStrategy(columns port.ColumnSource, logger *slog.Logger) *RewriteStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &RewriteStrategy{columns: columns, logger: logger}
}

func (s *RewriteStrategy) Name() string { return "rewrite" }

func (s *RewriteStrategy) Capture(ctx context.Context, q port.Querier, stmt *domain.Statement, args []any) (port.CaptureResult, error) {
	var res port.CaptureResult

	if stmt.HasReturning {
		return res, fmt.Errorf("%w: statement already has a RETURNING clause", domain.ErrRewriteUnsupported)
	}
	if stmt.Op == domain.OpUpdate && !s.oldNewSupported(ctx, q) {
		return res, fmt.Errorf("%w: server lacks old/new RETURNING (need >= %d)", domain.ErrRewriteUnsupported, oldNewMinVersion)
	}

	cols, err := s.columns.Columns(ctx, stmt.Schema, stmt.Table)
	if err != nil {
		return res, fmt.Errorf("%w: %w", domain.ErrNoColumns, err)
	}
	if len(cols) == 0 {
		return res, fmt.Errorf("%w: %s", domain.ErrNoColumns, stmt.Table)
	}

	rewritten := appendReturning(stmt, cols)

	rows, err := q.Query(ctx, rewritten, args...)
	if err != nil {
		// A failed single statement has no effect, so a rewrite-induced
		// error (bad column from a stale cache, unsupported syntax) can
		// safely hand off to the fallback strategy. Anything else is the
		// real statement's own failure.
		if rewriteInduced(err) {
			s.columns.Invalidate(stmt.Schema, stmt.Table)
			return res, fmt.Errorf("%w: %w", domain.ErrRewriteUnsupported, err)
		}
		res.Executed = true
		return res, err
	}

	res.Executed = true
	res.Rows = int64(len(rows))
	res.Before, res.After = imagesFromReturning(stmt.Op, cols, rows)
	return res, nil
}

// appendReturning splices the capture clause onto the end of the first
// statement, using the parser-reported statement span.
func appendReturning(stmt *domain.Statement, cols []string) string {
	head := strings.TrimRight(stmt.Text[:stmt.End], " \t\r\n;")

	var b strings.Builder
	b.WriteString(head)
	b.WriteString(" RETURNING ")
	for i, col := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		quoted := pgx.Identifier{col}.Sanitize()
		if stmt.Op == domain.OpUpdate {
			b.WriteString(fmt.Sprintf("old.%s AS %s, new.%s AS %s",
				quoted,
				pgx.Identifier{"old_" + col}.Sanitize(),
				quoted,
				pgx.Identifier{"new_" + col}.Sanitize(),
			))
		} else {
			b.WriteString(quoted)
		}
	}
	return b.String()
}

// imagesFromReturning folds the returned rows into before/after images.
// For INSERT only the after-image is populated, for DELETE only the
// before-image; UPDATE fills both from the old_/new_ aliased columns.
// NULLs are recorded as real nulls, not dropped.
func imagesFromReturning(op domain.OpKind, cols []string, rows []domain.Snapshot) (before, after domain.Snapshot) {
	before = domain.Snapshot{}
	after = domain.Snapshot{}
	for _, row := range rows {
		for _, col := range cols {
			switch op {
			case domain.OpInsert:
				if v, ok := row[col]; ok {
					after[col] = v
				}
			case domain.OpDelete:
				if v, ok := row[col]; ok {
					before[col] = v
				}
			case domain.OpUpdate:
				if v, ok := row["old_"+col]; ok {
					before[col] = v
				}
				if v, ok := row["new_"+col]; ok {
					after[col] = v
				}
			}
		}
	}
	return before, after
}

func (s *RewriteStrategy) oldNewSupported(ctx context.Context, q port.Querier) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.oldNew != nil {
		return *s.oldNew
	}

	supported := false
	rows, err := q.Query(ctx, queryServerVersion)
	if err != nil || len(rows) == 0 {
		s.logger.Warn("server version probe failed, assuming no old/new RETURNING support",
			slog.Any("error", err),
		)
		// Leave undetected so a transient failure retries next time.
		return false
	}
	switch v := rows[0]["version_num"].(type) {
	case int32:
		supported = v >= oldNewMinVersion
	case int64:
		supported = v >= oldNewMinVersion
	}
	s.oldNew = &supported
	return supported
}

// rewriteInduced reports whether a statement failure is attributable to
// the appended RETURNING clause rather than the statement itself.
func rewriteInduced(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "42601", // syntax_error
		"42703",  // undefined_column
		"0A000":  // feature_not_supported
		return true
	}
	return false
}
