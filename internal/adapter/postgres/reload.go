package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/guillermoBallester/rowtrail/internal/core/domain"
	"github.com/guillermoBallester/rowtrail/internal/core/port"
)

// generatedColumns are field names recognized as auto-generated and
// excluded when relocating a just-inserted row. Matching is a
// case-insensitive suffix comparison, which also covers exact matches.
var generatedColumns = []string{
	"id",
	"createdat",
	"createddate",
	"timestamp",
	"rowversion",
	"modifiedat",
	"modifieddate",
}

// ReloadStrategy captures images with separate reads around the real
// execution: a before-select on the captured WHERE text, the unmodified
// statement, then an after-reload. It is best-effort and inherently racy
// (a concurrent writer can change the row between the execution and the
// reload); that is the documented trade-off of this mode, not a bug to
// mask. It is the fallback when query rewriting is unavailable.
type ReloadStrategy struct {
	logger *slog.Logger
}

func NewReloadStrategy(logger *slog.Logger) *ReloadStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReloadStrategy{logger: logger}
}

func (s *ReloadStrategy) Name() string { return "reload" }

func (s *ReloadStrategy) Capture(ctx context.Context, q port.Querier, stmt *domain.Statement, args []any) (port.CaptureResult, error) {
	res := port.CaptureResult{Before: domain.Snapshot{}, After: domain.Snapshot{}}

	if stmt.Op != domain.OpInsert && stmt.WhereText != "" {
		res.Before = s.selectByWhere(ctx, q, stmt, args)
	}

	rows, err := q.Exec(ctx, stmt.Text, args...)
	res.Executed = true
	if err != nil {
		return res, err
	}
	res.Rows = rows

	switch stmt.Op {
	case domain.OpUpdate:
		if stmt.WhereText != "" {
			res.After = s.selectByWhere(ctx, q, stmt, args)
		}
	case domain.OpDelete:
		// After-image of a delete is the empty snapshot by definition.
	case domain.OpInsert:
		res.After = s.insertAfterImage(ctx, q, stmt, domain.ParamsFromArgs(args))
	}
	return res, nil
}

// selectByWhere re-runs the statement's own predicate as a plain select,
// using the renumbered clause so only the arguments the predicate
// references are bound. A prepared select carrying an unreferenced
// parameter fails with an undetermined parameter type. Failures degrade
// to an empty image.
func (s *ReloadStrategy) selectByWhere(ctx context.Context, q port.Querier, stmt *domain.Statement, args []any) domain.Snapshot {
	sel := fmt.Sprintf("SELECT * FROM %s WHERE %s", qualifiedTable(stmt), stmt.WhereBindText)

	bound := make([]any, 0, len(stmt.WhereParams))
	for _, ord := range stmt.WhereParams {
		if ord <= len(args) {
			bound = append(bound, args[ord-1])
		}
	}

	rows, err := q.Query(ctx, sel, bound...)
	if err != nil {
		s.logger.Warn("reload select failed, image degraded",
			slog.String("table", stmt.Table),
			slog.String("error", err.Error()),
		)
		return domain.Snapshot{}
	}
	img := domain.Snapshot{}
	for _, row := range rows {
		for col, v := range row {
			img[col] = v
		}
	}
	return img
}

// insertAfterImage locates the just-inserted row by matching all non-null
// bound values, excluding auto-generated fields, newest first. When no
// usable predicate remains or the reload finds nothing, the image is
// reconstructed from the parsed column/value list, and failing that, from
// the raw parameter binding map.
func (s *ReloadStrategy) insertAfterImage(ctx context.Context, q port.Querier, stmt *domain.Statement, params domain.Params) domain.Snapshot {
	type predicate struct {
		column string
		value  any
	}
	var preds []predicate
	for i, col := range stmt.InsertColumns {
		if i >= len(stmt.InsertValues) || isGeneratedColumn(col) {
			continue
		}
		v, ok := resolveValue(stmt.InsertValues[i], params)
		if !ok || v == nil {
			continue
		}
		preds = append(preds, predicate{column: col, value: v})
	}

	if len(preds) > 0 {
		var (
			b    strings.Builder
			vals []any
		)
		b.WriteString("SELECT * FROM ")
		b.WriteString(qualifiedTable(stmt))
		b.WriteString(" WHERE ")
		for i, p := range preds {
			if i > 0 {
				b.WriteString(" AND ")
			}
			fmt.Fprintf(&b, "%s = $%d", pgx.Identifier{p.column}.Sanitize(), i+1)
			vals = append(vals, p.value)
		}
		b.WriteString(" ORDER BY 1 DESC LIMIT 1")

		rows, err := q.Query(ctx, b.String(), vals...)
		if err != nil {
			s.logger.Warn("insert relocation failed, falling back to parsed values",
				slog.String("table", stmt.Table),
				slog.String("error", err.Error()),
			)
		} else if len(rows) > 0 {
			return rows[0]
		}
	}

	img := domain.Snapshot{}
	for i, col := range stmt.InsertColumns {
		if i >= len(stmt.InsertValues) {
			break
		}
		switch vs := stmt.InsertValues[i]; vs.Kind {
		case domain.ValueNull:
			img[col] = nil
		case domain.ValueLiteral:
			img[col] = vs.Literal
		case domain.ValueParam:
			if v, ok := params.Lookup(vs.Param); ok {
				img[col] = v
			}
		}
	}
	if len(img) > 0 {
		return img
	}

	img = domain.Snapshot{}
	for k, v := range params {
		img[k] = v
	}
	return img
}

func resolveValue(vs domain.ValueSource, params domain.Params) (any, bool) {
	switch vs.Kind {
	case domain.ValueParam:
		return params.Lookup(vs.Param)
	case domain.ValueLiteral:
		return vs.Literal, true
	case domain.ValueNull:
		return nil, true
	default:
		return nil, false
	}
}

func isGeneratedColumn(name string) bool {
	lower := strings.ToLower(name)
	for _, g := range generatedColumns {
		if strings.HasSuffix(lower, g) {
			return true
		}
	}
	return false
}

func qualifiedTable(stmt *domain.Statement) string {
	if stmt.TableRef != "" {
		return stmt.TableRef
	}
	if stmt.Schema != "" {
		return pgx.Identifier{stmt.Schema, stmt.Table}.Sanitize()
	}
	return pgx.Identifier{stmt.Table}.Sanitize()
}
