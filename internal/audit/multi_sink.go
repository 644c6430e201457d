package audit

import (
	"context"
	"errors"

	"github.com/guillermoBallester/rowtrail/internal/core/domain"
	"github.com/guillermoBallester/rowtrail/internal/core/port"
)

// MultiSink fans each record out to every wrapped sink. All sinks are
// attempted; failures are joined so no single sink can starve the rest.
type MultiSink struct {
	sinks []port.Sink
}

func NewMultiSink(sinks ...port.Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Write(ctx context.Context, rec *domain.Record) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
