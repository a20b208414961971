package otel

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// GetTraceID extracts the active trace id so log lines from the pipeline can
// be correlated with their spans. A zero id is returned when ctx carries no
// valid span.
func GetTraceID(ctx context.Context) string {
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	return "00000000000000000000000000000000"
}
