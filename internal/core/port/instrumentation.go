package port

import "context"

// Instrumentation records application-level metrics.
type Instrumentation interface {
	IncrementAudited(ctx context.Context)
	IncrementCaptureFallbacks(ctx context.Context)
	IncrementCaptureFailures(ctx context.Context)
	IncrementDispatchFailures(ctx context.Context)
	RecordCaptureDuration(ctx context.Context, ms float64)
}

// NoopInstrumentation discards all metrics.
type NoopInstrumentation struct{}

func (NoopInstrumentation) IncrementAudited(context.Context)               {}
func (NoopInstrumentation) IncrementCaptureFallbacks(context.Context)      {}
func (NoopInstrumentation) IncrementCaptureFailures(context.Context)       {}
func (NoopInstrumentation) IncrementDispatchFailures(context.Context)      {}
func (NoopInstrumentation) RecordCaptureDuration(context.Context, float64) {}
