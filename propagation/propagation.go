// Package propagation extracts distributed trace context from HTTP headers.
package propagation

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Datadog header names.
const (
	HeaderTraceID          = "x-datadog-trace-id"
	HeaderParentID         = "x-datadog-parent-id"
	HeaderSamplingPriority = "x-datadog-sampling-priority"
)

// SpanContext identifies the remote span a request continues.
// IDs are lowercase hex: 32 characters for traces, 16 for spans.
type SpanContext struct {
	TraceID          string
	ParentID         string
	SamplingPriority *int
}

// HasSamplingPriority reports whether the upstream sent a sampling decision.
func (c SpanContext) HasSamplingPriority() bool {
	return c.SamplingPriority != nil
}

var w3c = propagation.TraceContext{}

// Extract reads Datadog headers, then W3C traceparent. It returns false when
// neither carries a valid trace ID.
func Extract(h http.Header) (SpanContext, bool) {
	if sc, ok := extractDatadog(h); ok {
		return sc, true
	}
	return extractW3C(h)
}

func extractDatadog(h http.Header) (SpanContext, bool) {
	traceID, err := strconv.ParseUint(h.Get(HeaderTraceID), 10, 64)
	if err != nil || traceID == 0 {
		return SpanContext{}, false
	}

	sc := SpanContext{TraceID: fmt.Sprintf("%032x", traceID)}
	if parentID, err := strconv.ParseUint(h.Get(HeaderParentID), 10, 64); err == nil && parentID != 0 {
		sc.ParentID = fmt.Sprintf("%016x", parentID)
	}
	if p, err := strconv.Atoi(h.Get(HeaderSamplingPriority)); err == nil {
		sc.SamplingPriority = &p
	}
	return sc, true
}

func extractW3C(h http.Header) (SpanContext, bool) {
	ctx := w3c.Extract(context.Background(), propagation.HeaderCarrier(h))
	remote := trace.SpanContextFromContext(ctx)
	if !remote.IsValid() {
		return SpanContext{}, false
	}

	sc := SpanContext{
		TraceID:  remote.TraceID().String(),
		ParentID: remote.SpanID().String(),
	}
	p := 0
	if remote.IsSampled() {
		p = 1
	}
	sc.SamplingPriority = &p
	return sc, true
}
