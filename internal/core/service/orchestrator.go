package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/guillermoBallester/rowtrail/internal/core/domain"
	"github.com/guillermoBallester/rowtrail/internal/core/port"
)

// Interceptor is the state machine bound to each outgoing mutating
// statement: classify, capture around the single real execution, then
// assemble and dispatch the audit record.
//
// Only the real execution's failure ever reaches the caller. Parse
// failures degrade to pass-through; capture failures degrade to a partial
// or skipped audit; dispatch failures are logged and swallowed.
type Interceptor struct {
	parser     port.StatementParser
	querier    port.Querier
	strategies []port.CaptureStrategy
	assembler  *Assembler
	filter     port.AuditFilter
	logger     *slog.Logger
	tracer     trace.Tracer
	inst       port.Instrumentation
}

func NewInterceptor(
	parser port.StatementParser,
	querier port.Querier,
	strategies []port.CaptureStrategy,
	assembler *Assembler,
	filter port.AuditFilter,
	logger *slog.Logger,
	tracer trace.Tracer,
	inst port.Instrumentation,
) *Interceptor {
	if logger == nil {
		logger = slog.Default()
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	return &Interceptor{
		parser:     parser,
		querier:    querier,
		strategies: strategies,
		assembler:  assembler,
		filter:     filter,
		logger:     logger,
		tracer:     tracer,
		inst:       inst,
	}
}

// Exec runs a statement through the interception state machine and
// returns the affected row count, exactly as a non-audited call would.
func (s *Interceptor) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	stmt := s.parser.Parse(sql)
	if !stmt.Auditable() {
		return s.querier.Exec(ctx, sql, args...)
	}
	if s.filter != nil && !s.filter.ShouldAudit(stmt.Schema, stmt.Table) {
		return s.querier.Exec(ctx, sql, args...)
	}

	ctx, span := s.tracer.Start(ctx, "Interceptor.Exec",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation.name", string(stmt.Op)),
			attribute.String("db.collection.name", stmt.Table),
		),
	)
	defer span.End()

	start := time.Now()
	res, captured, err := s.capture(ctx, stmt, args)
	s.inst.RecordCaptureDuration(ctx, float64(time.Since(start).Milliseconds()))
	if err != nil {
		// The real execution failed; propagate unchanged, no audit record.
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res.Rows, err
	}
	if !captured {
		// Every strategy declined before touching the database. Auditing
		// is skipped for this call; the statement still runs once.
		s.logger.Warn("no capture strategy applicable, executing without audit",
			slog.String("table", stmt.Table),
			slog.String("operation", string(stmt.Op)),
		)
		s.inst.IncrementCaptureFailures(ctx)
		return s.querier.Exec(ctx, sql, args...)
	}

	s.assembler.Dispatch(ctx, stmt, domain.ParamsFromArgs(args), res)
	s.inst.IncrementAudited(ctx)
	span.SetAttributes(attribute.Int64("db.response.returned_rows", res.Rows))
	return res.Rows, nil
}

// capture walks the strategy chain. A strategy that errors without
// executing hands off to the next; once a strategy has executed, its
// outcome is final.
func (s *Interceptor) capture(ctx context.Context, stmt *domain.Statement, args []any) (port.CaptureResult, bool, error) {
	for _, strat := range s.strategies {
		res, err := strat.Capture(ctx, s.querier, stmt, args)
		if err != nil && !res.Executed {
			s.logger.Warn("capture strategy declined, falling back",
				slog.String("strategy", strat.Name()),
				slog.String("table", stmt.Table),
				slog.String("error", err.Error()),
			)
			s.inst.IncrementCaptureFallbacks(ctx)
			continue
		}
		if err != nil {
			return res, true, err
		}
		return res, true, nil
	}
	return port.CaptureResult{}, false, nil
}

// Query forwards reads untouched; only mutating statements are
// intercepted.
func (s *Interceptor) Query(ctx context.Context, sql string, args ...any) ([]domain.Snapshot, error) {
	return s.querier.Query(ctx, sql, args...)
}
