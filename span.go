package apmz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zoobzio/apmz/ext"
)

// bundleKeyType is a private type for context keys to avoid collisions.
type bundleKeyType string

const (
	bundleKey bundleKeyType = "apmz"
)

// Span represents a single unit of work in a distributed trace.
// Spans are NOT thread-safe - do not modify from multiple goroutines.
//
//nolint:govet // Field alignment optimized for JSON serialization order
type Span struct {
	Tags      map[Tag]string `json:"tags,omitempty"`
	StartTime time.Time      `json:"start_time"`
	EndTime   time.Time      `json:"end_time,omitempty"`
	Duration  time.Duration  `json:"duration"`
	TraceID   string         `json:"trace_id"`
	SpanID    string         `json:"span_id"`
	ParentID  string         `json:"parent_id,omitempty"`
	Name      string         `json:"name"`
	Service   string         `json:"service,omitempty"`
	Resource  string         `json:"resource"`
	Type      string         `json:"type,omitempty"`
	Error     bool           `json:"error,omitempty"`
}

// clone copies the span, including its tags.
func (s *Span) clone() Span {
	c := *s
	if s.Tags != nil {
		c.Tags = make(map[Tag]string, len(s.Tags))
		for k, v := range s.Tags {
			c.Tags[k] = v
		}
	}
	return c
}

type startConfig struct {
	service        string
	resource       string
	spanType       string
	remoteTraceID  string
	remoteParentID string
}

// StartOption configures a span at start.
type StartOption func(*startConfig)

// WithService sets the service the span belongs to.
// Child spans inherit their parent's service when none is given.
func WithService(service string) StartOption {
	return func(c *startConfig) {
		c.service = service
	}
}

// WithResource sets the resource label, e.g. "GET /users". Defaults to the span name.
func WithResource(resource string) StartOption {
	return func(c *startConfig) {
		c.resource = resource
	}
}

// WithSpanType sets the span type, e.g. ext.SpanTypeWeb.
func WithSpanType(spanType string) StartOption {
	return func(c *startConfig) {
		c.spanType = spanType
	}
}

// WithRemoteParent continues a trace started in another process.
// Ignored when the context already holds a span.
func WithRemoteParent(traceID, parentID string) StartOption {
	return func(c *startConfig) {
		c.remoteTraceID = traceID
		c.remoteParentID = parentID
	}
}

// ActiveSpan wraps a Span with thread-safe tag operations and lifecycle management.
// Safe for concurrent use by multiple goroutines.
type ActiveSpan struct {
	span   *Span
	tracer *Tracer
	mu     sync.Mutex // Protects Tags map from concurrent writes.
}

// SetTag adds a key-value pair to the span.
// No-op if span is already finished.
func (a *ActiveSpan) SetTag(key Tag, value string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setTagLocked(key, value)
}

// SetTags adds several tags at once.
func (a *ActiveSpan) SetTags(tags map[Tag]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for k, v := range tags {
		a.setTagLocked(k, v)
	}
}

func (a *ActiveSpan) setTagLocked(key Tag, value string) {
	// Don't modify finished spans.
	if !a.span.EndTime.IsZero() {
		return
	}
	if a.span.Tags == nil {
		a.span.Tags = make(map[Tag]string)
	}
	a.span.Tags[key] = value
}

// GetTag retrieves a tag value by key.
func (a *ActiveSpan) GetTag(key Tag) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.span.Tags == nil {
		return "", false
	}
	value, ok := a.span.Tags[key]
	return value, ok
}

// SetError marks the span as failed. A non-nil err is stored as ext.ErrorMsg.
func (a *ActiveSpan) SetError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.span.EndTime.IsZero() {
		return
	}
	a.span.Error = true
	if err != nil {
		a.setTagLocked(ext.ErrorMsg, err.Error())
	}
}

// SetErrorf marks the span as failed with a formatted message.
func (a *ActiveSpan) SetErrorf(format string, args ...interface{}) {
	a.SetError(fmt.Errorf(format, args...))
}

// IsError reports whether the span was marked as failed.
func (a *ActiveSpan) IsError() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.span.Error
}

// Finish completes the span and sends it to the tracer for collection.
// Safe to call multiple times - subsequent calls are no-ops.
func (a *ActiveSpan) Finish() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.span.EndTime.IsZero() {
		return
	}

	a.span.EndTime = a.tracer.clock.Now()
	a.span.Duration = a.span.EndTime.Sub(a.span.StartTime)

	a.tracer.collectSpan(a.span)
}

// TraceID returns the trace ID of this span.
func (a *ActiveSpan) TraceID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.span.TraceID
}

// SpanID returns the span ID of this span.
func (a *ActiveSpan) SpanID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.span.SpanID
}

// Context creates a new context with this span embedded.
// The returned context can be used to start child spans.
func (a *ActiveSpan) Context(parent context.Context) context.Context {
	bundle := &contextBundle{tracer: a.tracer, span: a.span}
	return context.WithValue(parent, bundleKey, bundle)
}

// GetSpan extracts the current span from a context.
// Returns nil if no span is present.
func GetSpan(ctx context.Context) *Span {
	if ctx == nil {
		return nil
	}

	if bundle, ok := ctx.Value(bundleKey).(*contextBundle); ok {
		return bundle.span
	}

	return nil
}
