// Command rowtrail executes SQL statements from stdin through the audit
// interception pipeline against DATABASE_URL. It exists for smoke-testing
// a policy, sink, and capture setup: statements are terminated by a
// semicolon at end of line, executed one at a time, and the affected row
// count is printed for each.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/guillermoBallester/rowtrail"
	"github.com/guillermoBallester/rowtrail/internal/adapter/postgres"
	"github.com/guillermoBallester/rowtrail/internal/config"
	"github.com/guillermoBallester/rowtrail/internal/core/port"
	"github.com/guillermoBallester/rowtrail/internal/telemetry"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	overrides := parseFlags()

	cfg, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Logs go to stderr; stdout carries the per-statement results.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	logger.Info("starting rowtrail",
		slog.String("version", version),
		slog.String("log_level", cfg.LogLevel.String()),
		slog.String("capture_strategy", cfg.CaptureStrategy),
		slog.String("sink", cfg.Sink),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if cfg.OTelEnabled {
		provider, err := telemetry.Init(ctx, "rowtrail", version)
		if err != nil {
			return fmt.Errorf("initializing telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown", slog.String("error", err.Error()))
			}
		}()
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolSettings{
		MaxConns:        cfg.PoolMaxConns,
		MinConns:        cfg.PoolMinConns,
		MaxConnLifetime: cfg.PoolMaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	logger.Info("database pool connected", slog.String("db.system", "postgresql"))

	opts := []rowtrail.Option{
		rowtrail.WithLogger(logger),
		rowtrail.WithStrategy(rowtrail.Strategy(cfg.CaptureStrategy)),
		rowtrail.WithMetadataTTL(cfg.MetadataTTL),
	}
	switch cfg.Sink {
	case config.SinkFile:
		opts = append(opts, rowtrail.WithFileSink(cfg.AuditFile))
	case config.SinkNone:
		opts = append(opts, rowtrail.WithSink(port.NoopSink{}))
	}
	if cfg.PolicyFile != "" {
		opts = append(opts, rowtrail.WithPolicyFile(cfg.PolicyFile))
		logger.Info("policy loaded", slog.String("file", cfg.PolicyFile))
	}
	if cfg.OTelEnabled {
		opts = append(opts, rowtrail.WithTelemetry())
	}

	db, err := rowtrail.Wrap(pool, opts...)
	if err != nil {
		return fmt.Errorf("wrapping pool: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("closing sink", slog.String("error", err.Error()))
		}
	}()

	return execStdin(ctx, db, logger)
}

// execStdin reads semicolon-terminated statements and executes each one.
func execStdin(ctx context.Context, db *rowtrail.DB, logger *slog.Logger) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var stmt strings.Builder
	flush := func() error {
		sql := strings.TrimSpace(stmt.String())
		stmt.Reset()
		if sql == "" {
			return nil
		}
		rows, err := db.Exec(ctx, sql)
		if err != nil {
			return fmt.Errorf("executing statement: %w", err)
		}
		fmt.Printf("%d row(s) affected\n", rows)
		return nil
	}

	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := scanner.Text()
		stmt.WriteString(line)
		stmt.WriteString("\n")
		if strings.HasSuffix(strings.TrimSpace(line), ";") {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}
	if err := flush(); err != nil {
		return err
	}

	logger.Info("shutdown complete")
	return nil
}

func parseFlags() config.Overrides {
	var (
		databaseURL = flag.String("database-url", "", "PostgreSQL connection URL (overrides DATABASE_URL)")
		logLevel    = flag.String("log-level", "", "log level: debug, info, warn, error")
		strategy    = flag.String("strategy", "", "capture strategy: rewrite or reload")
		sink        = flag.String("sink", "", "audit sink: postgres, file, or none")
		auditFile   = flag.String("audit-file", "", "path for the NDJSON file sink")
		policyFile  = flag.String("policy-file", "", "path to audit policy YAML")
		metadataTTL = flag.Duration("metadata-ttl", 0, "column metadata cache TTL (0 = never expire)")
		otel        = flag.Bool("otel", false, "enable OpenTelemetry tracing and metrics")
	)
	flag.Parse()

	var o config.Overrides
	if *databaseURL != "" {
		o.DatabaseURL = databaseURL
	}
	if *logLevel != "" {
		o.LogLevel = logLevel
	}
	if *strategy != "" {
		o.CaptureStrategy = strategy
	}
	if *sink != "" {
		o.Sink = sink
	}
	if *auditFile != "" {
		o.AuditFile = auditFile
	}
	if *policyFile != "" {
		o.PolicyFile = policyFile
	}
	if *metadataTTL > 0 {
		o.MetadataTTL = metadataTTL
	}
	o.OTelEnabled = *otel
	return o
}
