// Package apmz provides the span tracer used by apmz integrations.
//
// Spans carry a service, a resource and a type in addition to their name and
// tags, and may continue a trace started in another process.
//
// Basic Usage:
//
//	tracer := apmz.New()
//	defer tracer.Close()
//
//	collector := apmz.NewCollector("export", 1000)
//	tracer.AddCollector("export", collector)
//
//	ctx, span := tracer.StartSpan(ctx, "chi.request",
//		apmz.WithService("shop"),
//		apmz.WithResource("GET /cart"),
//		apmz.WithSpanType(ext.SpanTypeWeb),
//	)
//	defer span.Finish()
//
// Fork Safety:
//
// ID pools refill from background goroutines and collectors buffer spans
// from their own goroutine. Neither survives a fork. The tracer registers a
// forksafe hook that rebuilds both, and StartSpan is a forksafe.Func, so the
// first span started in a child process sees fresh state.
//
// Thread Safety:
//
// Tracer, Collector and ActiveSpan are safe for concurrent use.
// Span values handed to handlers and exporters are copies.
package apmz

// Key represents a span operation name.
type Key = string

// Tag represents a span tag key.
type Tag = string
