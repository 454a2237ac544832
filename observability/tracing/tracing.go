// Package tracing wraps a single governance evaluation in an OpenTelemetry
// span, closed on every exit path including a panic, with the resulting
// audit record's hash attached once it is known.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "trustgate/observability/tracing"

// EvaluateSpan starts a span named "governance.evaluate" carrying agentID,
// and returns a finish function that records the outcome, the audit record
// hash, and any error before ending the span. Call finish via defer so the
// span closes even if the caller panics.
func EvaluateSpan(ctx context.Context, agentID string) (context.Context, func(outcome, recordHash string, err error)) {
	tracer := otel.Tracer(instrumentationName)
	ctx, span := tracer.Start(ctx, "governance.evaluate", trace.WithAttributes(
		attribute.String("agent_id", agentID),
	))

	return ctx, func(outcome, recordHash string, err error) {
		if outcome != "" {
			span.SetAttributes(attribute.String("outcome", outcome))
		}
		if recordHash != "" {
			span.SetAttributes(attribute.String("record_hash", recordHash))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}
