package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/guillermoBallester/rowtrail/internal/core/domain"
	"github.com/guillermoBallester/rowtrail/internal/core/port"
)

// AuditTableSink persists finished audit records into the
// rowtrail_audit_log table, creating it lazily on first write.
type AuditTableSink struct {
	q      port.Querier
	logger *slog.Logger

	mu      sync.Mutex
	created bool
}

func NewAuditTableSink(q port.Querier, logger *slog.Logger) *AuditTableSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditTableSink{q: q, logger: logger}
}

func (s *AuditTableSink) Write(ctx context.Context, rec *domain.Record) error {
	if err := s.ensureSchema(ctx); err != nil {
		return fmt.Errorf("ensuring audit schema: %w", err)
	}

	params, err := marshalMap(rec.Params)
	if err != nil {
		return fmt.Errorf("serializing params: %w", err)
	}
	before, err := marshalMap(rec.Before)
	if err != nil {
		return fmt.Errorf("serializing before-image: %w", err)
	}
	after, err := marshalMap(rec.After)
	if err != nil {
		return fmt.Errorf("serializing after-image: %w", err)
	}
	props, err := marshalMap(rec.Properties)
	if err != nil {
		return fmt.Errorf("serializing custom properties: %w", err)
	}

	_, err = s.q.Exec(ctx, queryInsertAuditRecord,
		rec.Timestamp,
		rec.Event,
		rec.Statement,
		params,
		before,
		after,
		rec.Table,
		string(rec.Op),
		nullable(rec.ActorID),
		nullable(rec.ActorName),
		nullable(rec.ActorAddress),
		nullable(rec.ActorAgent),
		rec.Host,
		rec.PID,
		int64(rec.GoroutineID),
		props,
	)
	if err != nil {
		return fmt.Errorf("inserting audit record: %w", err)
	}
	return nil
}

func (s *AuditTableSink) Close() error { return nil }

// ensureSchema creates the audit table on first use. A failed attempt is
// retried on the next write rather than latched.
func (s *AuditTableSink) ensureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.created {
		return nil
	}
	if _, err := s.q.Exec(ctx, queryCreateAuditTable); err != nil {
		return err
	}
	s.created = true
	s.logger.Debug("audit table ready")
	return nil
}

// marshalMap serializes a mapping as JSON for a JSONB column. Values that
// cannot be marshalled directly (driver-specific types) are stringified.
func marshalMap[M ~map[string]V, V any](m M) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err == nil {
		return data, nil
	}
	safe := make(map[string]any, len(m))
	for k, v := range m {
		safe[k] = fmt.Sprintf("%v", v)
	}
	return json.Marshal(safe)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
