package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/guillermoBallester/rowtrail"

// Instruments holds pre-created OTel metric instruments.
type Instruments struct {
	Audited          metric.Int64Counter
	CaptureFallbacks metric.Int64Counter
	CaptureFailures  metric.Int64Counter
	DispatchFailures metric.Int64Counter
	CaptureDuration  metric.Float64Histogram
}

// NewInstruments creates metric instruments from the global MeterProvider.
// Returns nil-safe instruments: if creation fails, noop instruments are used.
func NewInstruments() *Instruments {
	meter := otel.Meter(meterName)
	return newInstrumentsFromMeter(meter)
}

// NoopInstruments returns instruments that record nothing.
func NoopInstruments() *Instruments {
	meter := noop.NewMeterProvider().Meter(meterName)
	return newInstrumentsFromMeter(meter)
}

func newInstrumentsFromMeter(meter metric.Meter) *Instruments {
	// OTel SDK returns noop instruments on error; safe to discard.
	audited, _ := meter.Int64Counter("rowtrail.audit.count",
		metric.WithDescription("Total number of statements audited"),
	)
	fallbacks, _ := meter.Int64Counter("rowtrail.capture.fallbacks",
		metric.WithDescription("Captures that fell back from the rewrite strategy"),
	)
	failures, _ := meter.Int64Counter("rowtrail.capture.failures",
		metric.WithDescription("Executions where every capture strategy declined"),
	)
	dispatch, _ := meter.Int64Counter("rowtrail.dispatch.failures",
		metric.WithDescription("Audit records rejected by the sink"),
	)
	duration, _ := meter.Float64Histogram("rowtrail.capture.duration",
		metric.WithDescription("Capture plus execution duration in milliseconds"),
		metric.WithUnit("ms"),
	)

	return &Instruments{
		Audited:          audited,
		CaptureFallbacks: fallbacks,
		CaptureFailures:  failures,
		DispatchFailures: dispatch,
		CaptureDuration:  duration,
	}
}

func (i *Instruments) IncrementAudited(ctx context.Context) {
	i.Audited.Add(ctx, 1)
}

func (i *Instruments) IncrementCaptureFallbacks(ctx context.Context) {
	i.CaptureFallbacks.Add(ctx, 1)
}

func (i *Instruments) IncrementCaptureFailures(ctx context.Context) {
	i.CaptureFailures.Add(ctx, 1)
}

func (i *Instruments) IncrementDispatchFailures(ctx context.Context) {
	i.DispatchFailures.Add(ctx, 1)
}

func (i *Instruments) RecordCaptureDuration(ctx context.Context, ms float64) {
	i.CaptureDuration.Record(ctx, ms)
}
