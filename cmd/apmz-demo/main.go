// Command apmz-demo serves a traced chi router and logs exported spans.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/zoobzio/apmz"
	"github.com/zoobzio/apmz/contrib/chitrace"
	"github.com/zoobzio/apmz/forksafe"
)

type options struct {
	addr           string
	service        string
	exportInterval time.Duration
	headerTags     []string
	queryString    bool
	debug          bool
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}
	fs := pflag.NewFlagSet("apmz-demo", pflag.ContinueOnError)
	fs.StringVar(&opts.addr, "addr", ":8080", "listen address")
	fs.StringVar(&opts.service, "service", "apmz-demo", "service name of request spans")
	fs.DurationVar(&opts.exportInterval, "export-interval", 5*time.Second, "how often buffered spans are exported to the log")
	fs.StringSliceVar(&opts.headerTags, "header-tags", nil, "headers stored as span tags")
	fs.BoolVar(&opts.queryString, "trace-query-string", false, "tag spans with the raw query string")
	fs.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.exportInterval <= 0 {
		return nil, errors.New("export-interval must be > 0")
	}
	return opts, nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := newLogger(opts.debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if err := run(opts, logger); err != nil {
		logger.Fatal("demo failed", zap.Error(err))
	}
}

func run(opts *options, logger *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(forksafe.Default().Collectors()...)

	tracer := apmz.New(apmz.WithLogger(logger.Named("apmz")))
	defer tracer.Close()

	collector := apmz.NewCollector("log", 10000)
	tracer.AddCollector("log", collector)

	router := newRouter(opts, tracer, reg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go exportLoop(ctx, collector, opts.exportInterval, logger)

	srv := &http.Server{
		Addr:              opts.addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", opts.addr), zap.String("forksafe_strategy", forksafe.Default().Strategy()))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRouter(opts *options, tracer *apmz.Tracer, reg *prometheus.Registry) chi.Router {
	r := chi.NewRouter()
	r.Use(chitrace.Middleware(
		chitrace.WithTracer(tracer),
		chitrace.WithServiceName(opts.service),
		chitrace.WithQueryString(opts.queryString),
		chitrace.WithHeaderTags(opts.headerTags...),
		chitrace.WithRegisterer(reg),
	))

	r.Get("/hello/{name}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "hello, %s\n", chi.URLParam(r, "name"))
	})
	r.Get("/fail", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "simulated failure", http.StatusInternalServerError)
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return r
}

func exportLoop(ctx context.Context, c *apmz.Collector, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, span := range c.Export() {
				logger.Info("span",
					zap.String("trace_id", span.TraceID),
					zap.String("span_id", span.SpanID),
					zap.String("parent_id", span.ParentID),
					zap.String("name", span.Name),
					zap.String("service", span.Service),
					zap.String("resource", span.Resource),
					zap.Bool("error", span.Error),
					zap.Duration("duration", span.Duration),
					zap.Any("tags", span.Tags),
				)
			}
			if dropped := c.DroppedCount(); dropped > 0 {
				logger.Warn("spans dropped", zap.Int64("dropped", dropped))
			}
		}
	}
}
