// Package ext holds span tag names and span types shared by integrations.
package ext

// Span types.
const (
	SpanTypeWeb = "web"
)

// HTTP tags.
const (
	HTTPMethod      = "http.method"
	HTTPURL         = "http.url"
	HTTPQueryString = "http.query.string"
	HTTPStatusCode  = "http.status_code"
	HTTPRoute       = "http.route"

	// HTTPRequestHeaders prefixes stored request headers.
	HTTPRequestHeaders = "http.request.headers"
	// HTTPResponseHeaders prefixes stored response headers.
	HTTPResponseHeaders = "http.response.headers"
)

// AnalyticsSampleRate marks a span for trace analytics at the given rate.
const AnalyticsSampleRate = "_dd1.sr.eausr"

// SamplingPriority carries the upstream sampling decision.
const SamplingPriority = "_sampling_priority_v1"

// ErrorMsg holds a description of the failure on errored spans.
const ErrorMsg = "error.msg"
