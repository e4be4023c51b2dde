package chitrace

import (
	"math"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/zoobzio/apmz"
	"github.com/zoobzio/apmz/internal/env"
)

// defaultSpanName is the operation name of request spans.
const defaultSpanName = "chi.request"

type config struct {
	tracer             *apmz.Tracer
	registerer         prometheus.Registerer
	log                *zap.Logger
	serviceName        string
	spanName           string
	headerTags         []string
	analyticsRate      float64
	distributedTracing bool
	traceQueryString   bool
}

// Option configures the middleware.
type Option func(*config)

var (
	sharedTracer     *apmz.Tracer
	sharedTracerOnce sync.Once
)

// defaultTracer is shared by every middleware built without WithTracer.
func defaultTracer() *apmz.Tracer {
	sharedTracerOnce.Do(func() {
		sharedTracer = apmz.New()
	})
	return sharedTracer
}

// newConfig reads the environment, then applies opts on top.
func newConfig(opts ...Option) *config {
	cfg := &config{
		serviceName:        env.Get("APMZ_CHI_SERVICE", "chi"),
		spanName:           defaultSpanName,
		distributedTracing: env.Bool("APMZ_CHI_DISTRIBUTED_TRACING", true),
		traceQueryString:   env.Bool("APMZ_CHI_TRACE_QUERY_STRING", false),
		headerTags:         env.List("APMZ_CHI_HEADER_TAGS"),
		analyticsRate:      math.NaN(),
	}
	if env.Bool("APMZ_CHI_ANALYTICS_ENABLED", env.Bool("APMZ_TRACE_ANALYTICS_ENABLED", false)) {
		WithAnalyticsRate(env.Float("APMZ_CHI_ANALYTICS_SAMPLE_RATE", 1.0))(cfg)
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.tracer == nil {
		cfg.tracer = defaultTracer()
	}
	if cfg.log == nil {
		cfg.log = zap.L().Named("chitrace")
	}
	return cfg
}

// WithTracer sets the tracer that records request spans.
func WithTracer(t *apmz.Tracer) Option {
	return func(cfg *config) {
		cfg.tracer = t
	}
}

// WithServiceName sets the service of request spans.
func WithServiceName(name string) Option {
	return func(cfg *config) {
		cfg.serviceName = name
	}
}

// WithSpanName overrides the operation name of request spans.
func WithSpanName(name string) Option {
	return func(cfg *config) {
		cfg.spanName = name
	}
}

// WithDistributedTracing toggles continuing traces from incoming headers.
func WithDistributedTracing(enabled bool) Option {
	return func(cfg *config) {
		cfg.distributedTracing = enabled
	}
}

// WithQueryString toggles the http.query.string tag.
func WithQueryString(enabled bool) Option {
	return func(cfg *config) {
		cfg.traceQueryString = enabled
	}
}

// WithAnalyticsRate marks request spans for trace analytics. A NaN rate disables it.
func WithAnalyticsRate(rate float64) Option {
	return func(cfg *config) {
		if rate >= 0.0 && rate <= 1.0 {
			cfg.analyticsRate = rate
		} else {
			cfg.analyticsRate = math.NaN()
		}
	}
}

// WithHeaderTags stores the named request and response headers as span tags.
func WithHeaderTags(headers ...string) Option {
	return func(cfg *config) {
		cfg.headerTags = append(cfg.headerTags, headers...)
	}
}

// WithRegisterer registers the request counter with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(cfg *config) {
		cfg.registerer = reg
	}
}

// WithLogger sets the middleware logger.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *config) {
		cfg.log = logger
	}
}
