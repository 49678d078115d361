package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SetSpanAttributes sets attributes on a span. Safe to call with a nil span.
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span == nil {
		return
	}
	span.SetAttributes(attrs...)
}

// RecordError records an error on a span. Safe to call with a nil span.
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
}

// SetSpanError marks a span as failed with the given message. Safe to call
// with a nil span.
func SetSpanError(span trace.Span, message string) {
	if span == nil {
		return
	}
	span.SetStatus(codes.Error, message)
}

// SetSpanSuccess marks a span as successful. Safe to call with a nil span.
func SetSpanSuccess(span trace.Span) {
	if span == nil {
		return
	}
	span.SetStatus(codes.Ok, "")
}
