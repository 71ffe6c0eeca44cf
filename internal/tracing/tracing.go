// Package tracing wraps OpenTelemetry span handling for outgoing calls.
//
// Spans go to the global tracer provider. Without the otel build tag that
// provider is the no-op default, so callers never need to check whether
// export is enabled.
package tracing

import (
	"context"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/nextlevelbuilder/omniwp"
	previewMaxLen       = 500
)

// Start opens a client span named name.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// End closes span, recording err when non-nil.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Preview(err.Error()))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Preview truncates s to a size suitable for a span attribute.
func Preview(s string) string {
	if len(s) <= previewMaxLen {
		return s
	}
	cut := previewMaxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
