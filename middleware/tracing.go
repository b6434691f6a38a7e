package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/outreachlab/cadence/job"
)

// tracerName is the instrumentation scope name for cadence tracing.
const tracerName = "github.com/outreachlab/cadence"

// Tracing returns middleware that wraps delivery in an OpenTelemetry span.
// If no TracerProvider is configured globally, the default noop tracer is used
// and this middleware becomes a pass-through with zero overhead.
//
// Span attributes include: cadence.job.id, cadence.sequence, cadence.step,
// cadence.entity_id, cadence.attempt.
// On error, the span status is set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx, span := tracer.Start(ctx, "cadence.job.dispatch",
			trace.WithAttributes(
				attribute.String("cadence.job.id", j.ID.String()),
				attribute.String("cadence.sequence", j.SequenceID),
				attribute.String("cadence.step", j.StepID),
				attribute.String("cadence.entity_id", j.EntityID),
				attribute.Int("cadence.attempt", j.Attempts),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
