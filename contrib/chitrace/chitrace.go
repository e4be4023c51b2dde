// Package chitrace traces requests served by a go-chi router.
//
// Every request gets a span named "chi.request" with the service, a
// "METHOD path" resource and the web span type. Incoming Datadog or W3C
// headers continue the caller's trace.
//
//	r := chi.NewRouter()
//	r.Use(chitrace.Middleware(chitrace.WithServiceName("shop")))
//
// Any http.Handler can be traced with WrapHandler. Wrapping an already
// traced handler returns it unchanged.
package chitrace

import (
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/zoobzio/apmz"
	"github.com/zoobzio/apmz/ext"
	"github.com/zoobzio/apmz/propagation"
)

// Middleware returns chi middleware that traces each request.
func Middleware(opts ...Option) func(http.Handler) http.Handler {
	cfg := newConfig(opts...)
	requests := newRequestCounter(cfg.registerer)
	return func(next http.Handler) http.Handler {
		return wrap(next, cfg, requests)
	}
}

// WrapHandler traces h. A handler that is already traced is returned as is.
func WrapHandler(h http.Handler, opts ...Option) http.Handler {
	cfg := newConfig(opts...)
	return wrap(h, cfg, newRequestCounter(cfg.registerer))
}

func wrap(next http.Handler, cfg *config, requests *prometheus.CounterVec) http.Handler {
	if _, ok := next.(*tracedHandler); ok {
		return next
	}
	return &tracedHandler{next: next, cfg: cfg, requests: requests}
}

type tracedHandler struct {
	next     http.Handler
	cfg      *config
	requests *prometheus.CounterVec
}

func (h *tracedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cfg := h.cfg
	headers := r.Header.Clone()

	opts := []apmz.StartOption{
		apmz.WithService(cfg.serviceName),
		apmz.WithResource(r.Method + " " + r.URL.Path),
		apmz.WithSpanType(ext.SpanTypeWeb),
	}

	var remote propagation.SpanContext
	var continued bool
	if cfg.distributedTracing {
		if remote, continued = propagation.Extract(headers); continued {
			opts = append(opts, apmz.WithRemoteParent(remote.TraceID, remote.ParentID))
		}
	}

	ctx, span := cfg.tracer.StartSpan(r.Context(), cfg.spanName, opts...)

	tags := requestTags(r, cfg)
	if !math.IsNaN(cfg.analyticsRate) {
		tags[ext.AnalyticsSampleRate] = strconv.FormatFloat(cfg.analyticsRate, 'f', -1, 64)
	}
	if continued && remote.HasSamplingPriority() {
		tags[ext.SamplingPriority] = strconv.Itoa(*remote.SamplingPriority)
	}
	span.SetTags(tags)
	storeHeaders(span, ext.HTTPRequestHeaders, headers, cfg.headerTags)

	rw := newResponseWriter(w)
	r = r.WithContext(ctx)

	defer func() {
		status := rw.Status()
		rec := recover()
		if rec != nil {
			status = http.StatusInternalServerError
			span.SetErrorf("panic: %v", rec)
			cfg.log.Debug("traced handler panicked", zap.String("resource", r.Method+" "+r.URL.Path), zap.Any("panic", rec))
		}

		h.finish(span, rw, r, status)

		if rec != nil {
			panic(rec)
		}
	}()

	h.next.ServeHTTP(rw, r)
}

// finish records the response on the span and closes it.
func (h *tracedHandler) finish(span *apmz.ActiveSpan, rw *responseWriter, r *http.Request, status int) {
	span.SetTag(ext.HTTPStatusCode, strconv.Itoa(status))
	if status >= 500 && status < 600 && !span.IsError() {
		span.SetErrorf("%d: %s", status, http.StatusText(status))
	}
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			span.SetTag(ext.HTTPRoute, pattern)
		}
	}
	storeHeaders(span, ext.HTTPResponseHeaders, rw.Header(), h.cfg.headerTags)

	h.requests.WithLabelValues(statusClass(status)).Inc()
	span.Finish()
}

func requestTags(r *http.Request, cfg *config) map[apmz.Tag]string {
	scheme := r.URL.Scheme
	if scheme == "" {
		scheme = "http"
		if r.TLS != nil {
			scheme = "https"
		}
	}

	tags := map[apmz.Tag]string{
		ext.HTTPMethod: r.Method,
		ext.HTTPURL:    scheme + "://" + r.Host + r.URL.Path,
	}
	if cfg.traceQueryString {
		tags[ext.HTTPQueryString] = r.URL.RawQuery
	}
	return tags
}
