package port

import (
	"context"

	"github.com/guillermoBallester/rowtrail/internal/core/domain"
)

// Sink consumes finished audit records. Write is invoked exactly once per
// successfully audited execution; implementations may persist, forward,
// fan out, or filter. Sink failures are non-fatal to the caller.
type Sink interface {
	Write(ctx context.Context, rec *domain.Record) error
	Close() error
}

// ActorProvider resolves the identity behind the current execution.
// ok == false means no context is available; actor fields are then
// omitted from the record.
type ActorProvider interface {
	Current(ctx context.Context) (domain.Actor, bool)
}

// AuditFilter decides which tables are audited and how captured images
// are masked before dispatch. A nil filter audits everything unmasked.
type AuditFilter interface {
	ShouldAudit(schema, table string) bool
	MaskImage(schema, table string, img domain.Snapshot)
}

// NoopSink discards all audit records.
type NoopSink struct{}

func (NoopSink) Write(context.Context, *domain.Record) error { return nil }
func (NoopSink) Close() error                                { return nil }
