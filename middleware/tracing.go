package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/theopensystemslab/sendq/destination"
)

// tracerName is the instrumentation scope name for sendq tracing.
const tracerName = "github.com/theopensystemslab/sendq"

// Tracing returns middleware that wraps each delivery attempt in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a pass-through
// with zero overhead.
//
// Span attributes include: sendq.attempt_id, sendq.session_id,
// sendq.destination, sendq.authority, sendq.attempt.
// On error, the span status is set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, sub *destination.Submission, next Handler) error {
		ctx, span := tracer.Start(ctx, "sendq.submit",
			trace.WithAttributes(
				attribute.String("sendq.attempt_id", sub.ID.String()),
				attribute.String("sendq.session_id", sub.SessionID),
				attribute.String("sendq.destination", string(sub.Destination)),
				attribute.String("sendq.authority", sub.Authority.Key),
				attribute.Int("sendq.attempt", sub.Attempt),
			),
			trace.WithSpanKind(trace.SpanKindClient),
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
