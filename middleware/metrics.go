package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/outreachlab/cadence/job"
)

// meterName is the instrumentation scope name for cadence metrics.
const meterName = "github.com/outreachlab/cadence"

// Metrics returns middleware that records per-dispatch metrics using
// the global OTel MeterProvider. If no MeterProvider is configured, noop
// instruments are used and this middleware becomes a pass-through.
//
// Instruments:
//   - cadence.dispatch.duration (Float64Histogram): delivery time in seconds,
//     with attributes: sequence, step, status ("ok" or "error")
//   - cadence.dispatch.total (Int64Counter): total dispatches,
//     with attributes: sequence, step, status ("ok" or "error")
func Metrics() Middleware {
	meter := otel.Meter(meterName)
	return MetricsWithMeter(meter)
}

// MetricsWithMeter returns metrics middleware using the provided meter.
// This variant allows injecting a specific MeterProvider for testing.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// Create instruments once at middleware construction time.
	// OTel instruments are safe for concurrent use. On error, the API
	// returns noop instruments so the middleware degrades gracefully.
	duration, dErr := meter.Float64Histogram(
		"cadence.dispatch.duration",
		metric.WithDescription("Duration of notification delivery in seconds"),
		metric.WithUnit("s"),
	)
	_ = dErr // noop fallback guaranteed by OTel API contract

	dispatches, cErr := meter.Int64Counter(
		"cadence.dispatch.total",
		metric.WithDescription("Total number of notification dispatches"),
		metric.WithUnit("{dispatch}"),
	)
	_ = cErr // noop fallback guaranteed by OTel API contract

	return func(ctx context.Context, j *job.Job, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}

		attrs := metric.WithAttributes(
			attribute.String("sequence", j.SequenceID),
			attribute.String("step", j.StepID),
			attribute.String("status", status),
		)

		duration.Record(ctx, elapsed, attrs)
		dispatches.Add(ctx, 1, attrs)

		return err
	}
}
