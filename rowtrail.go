// Package rowtrail intercepts data-mutating SQL statements issued through
// a pgx connection pool and produces complete audit records (before-image,
// after-image, actor context, and the statement itself) without requiring
// the calling code to change.
//
// Wrap a pool and route writes through Exec:
//
//	db, err := rowtrail.Wrap(pool, rowtrail.WithFileSink("audit.jsonl"))
//	...
//	ctx = rowtrail.WithActor(ctx, rowtrail.Actor{ID: "u-17", Name: "Ada"})
//	n, err := db.Exec(ctx, "UPDATE users SET email = $1 WHERE id = $2", email, id)
//
// Auditing is advisory: only the real statement's own failure ever reaches
// the caller, and a statement that cannot be parsed or captured still
// executes exactly as it would without interception.
package rowtrail

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/guillermoBallester/rowtrail/internal/actor"
	"github.com/guillermoBallester/rowtrail/internal/adapter/postgres"
	"github.com/guillermoBallester/rowtrail/internal/audit"
	"github.com/guillermoBallester/rowtrail/internal/core/domain"
	"github.com/guillermoBallester/rowtrail/internal/core/port"
	"github.com/guillermoBallester/rowtrail/internal/core/service"
	"github.com/guillermoBallester/rowtrail/internal/policy"
	"github.com/guillermoBallester/rowtrail/internal/telemetry"
)

// Re-exported core types so callers never import internal packages.
type (
	Record        = domain.Record
	Snapshot      = domain.Snapshot
	Actor         = domain.Actor
	Params        = domain.Params
	Sink          = port.Sink
	ActorProvider = port.ActorProvider
)

// auditLogTable is the sink's own table; mutations against it are never
// audited, so a shared pool cannot recurse.
const auditLogTable = "rowtrail_audit_log"

// Strategy selects the primary snapshot capture technique.
type Strategy string

const (
	// StrategyRewrite appends a RETURNING clause to the real statement so
	// capture and mutation are one atomic database operation. It falls
	// back to StrategyReload when the rewrite is not applicable.
	StrategyRewrite Strategy = "rewrite"

	// StrategyReload captures with separate selects around the real
	// execution. Best-effort: concurrent writers can skew the images.
	StrategyReload Strategy = "reload"
)

type options struct {
	sink         Sink
	fileSinkPath string
	actors       ActorProvider
	policyFile   string
	policy       *policy.Policy
	strategy     Strategy
	logger       *slog.Logger
	metadataTTL  time.Duration
	tracer       trace.Tracer
	inst         port.Instrumentation
}

// Option configures Wrap.
type Option func(*options)

// WithSink routes finished audit records to a custom sink instead of the
// default database audit table.
func WithSink(s Sink) Option { return func(o *options) { o.sink = s } }

// WithFileSink writes audit records as NDJSON to the given path.
func WithFileSink(path string) Option {
	return func(o *options) { o.fileSinkPath = path }
}

// WithActorProvider resolves actor identity once per audited execution.
func WithActorProvider(p ActorProvider) Option { return func(o *options) { o.actors = p } }

// WithStaticActor stamps every record with the same fixed identity.
func WithStaticActor(a Actor) Option {
	return func(o *options) { o.actors = actor.StaticProvider{Actor: a} }
}

// WithPolicyFile loads a YAML audit policy (table include/exclude rules
// and column masking) from the given path.
func WithPolicyFile(path string) Option { return func(o *options) { o.policyFile = path } }

// WithStrategy selects the primary capture strategy.
func WithStrategy(s Strategy) Option { return func(o *options) { o.strategy = s } }

// WithLogger sets the logger; defaults to slog.Default().
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithMetadataTTL expires cached table column lists after d. Zero (the
// default) caches for the process lifetime; call DB.InvalidateTable after
// DDL in that mode.
func WithMetadataTTL(d time.Duration) Option { return func(o *options) { o.metadataTTL = d } }

// WithTelemetry records OTel metrics and spans via the global providers.
func WithTelemetry() Option {
	return func(o *options) {
		o.inst = telemetry.NewInstruments()
		o.tracer = otel.Tracer("github.com/guillermoBallester/rowtrail")
	}
}

// WithActor returns a context carrying the identity behind subsequent
// intercepted executions; pair it with the default ContextProvider.
func WithActor(ctx context.Context, a Actor) context.Context {
	return actor.WithActor(ctx, a)
}

// DB wraps a pgx pool with audit interception. The pool stays owned by
// the caller; Close releases only the sink.
type DB struct {
	pool  *pgxpool.Pool
	svc   *service.Interceptor
	cache *postgres.MetadataCache
	sink  Sink
}

// Wrap builds the interception pipeline around an existing pool.
func Wrap(pool *pgxpool.Pool, opts ...Option) (*DB, error) {
	o := &options{
		strategy: StrategyRewrite,
		logger:   slog.Default(),
		actors:   actor.ContextProvider{},
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.policyFile != "" {
		pol, err := policy.LoadFromFile(o.policyFile)
		if err != nil {
			return nil, fmt.Errorf("loading audit policy: %w", err)
		}
		o.policy = pol
	}

	querier := postgres.NewQuerier(pool)

	if o.sink == nil && o.fileSinkPath != "" {
		fs, err := audit.NewFileSink(o.fileSinkPath)
		if err != nil {
			return nil, fmt.Errorf("opening audit file: %w", err)
		}
		o.sink = fs
	}
	if o.sink == nil {
		o.sink = postgres.NewAuditTableSink(querier, o.logger)
	}

	cache := postgres.NewMetadataCache(querier, o.metadataTTL, o.logger)

	var strategies []port.CaptureStrategy
	switch o.strategy {
	case StrategyReload:
		strategies = []port.CaptureStrategy{postgres.NewReloadStrategy(o.logger)}
	default:
		strategies = []port.CaptureStrategy{
			postgres.NewRewriteStrategy(cache, o.logger),
			postgres.NewReloadStrategy(o.logger),
		}
	}

	filter := tableFilter{policy: o.policy}
	assembler := service.NewAssembler(o.sink, o.actors, filter, o.logger, o.inst)
	parser := domain.NewParser(o.logger)
	svc := service.NewInterceptor(parser, querier, strategies, assembler, filter, o.logger, o.tracer, o.inst)

	return &DB{pool: pool, svc: svc, cache: cache, sink: o.sink}, nil
}

// Exec runs a statement through the interception pipeline. Mutating
// statements are audited; anything else passes through untouched. The
// returned row count matches what a direct pool.Exec would report.
func (db *DB) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	return db.svc.Exec(ctx, sql, args...)
}

// Query forwards reads directly to the pool.
func (db *DB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return db.pool.Query(ctx, sql, args...)
}

// Pool exposes the wrapped pool for calls that bypass interception.
func (db *DB) Pool() *pgxpool.Pool { return db.pool }

// InvalidateTable drops the cached column list for a table; call it after
// DDL changes the table's shape.
func (db *DB) InvalidateTable(schema, table string) {
	db.cache.Invalidate(schema, table)
}

// Close releases the sink. The pool remains open.
func (db *DB) Close() error { return db.sink.Close() }

// tableFilter layers the self-exclusion rule over the optional policy.
type tableFilter struct {
	policy *policy.Policy
}

func (f tableFilter) ShouldAudit(schema, table string) bool {
	if strings.EqualFold(table, auditLogTable) {
		return false
	}
	return f.policy.ShouldAudit(schema, table)
}

func (f tableFilter) MaskImage(schema, table string, img Snapshot) {
	f.policy.MaskImage(schema, table, img)
}
