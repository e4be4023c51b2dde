package integration

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zoobzio/apmz"
	"github.com/zoobzio/apmz/contrib/chitrace"
)

const defaultWait = time.Second

func newService(t *testing.T, tracer *apmz.Tracer) http.Handler {
	t.Helper()
	r := chi.NewRouter()
	r.Use(chitrace.Middleware(chitrace.WithTracer(tracer), chitrace.WithServiceName("orders")))
	r.Get("/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, db := tracer.StartSpan(r.Context(), "db.query", apmz.WithResource("SELECT order"))
		db.Finish()
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func TestServiceSpansNestUnderRequest(t *testing.T) {
	tracer := apmz.New(apmz.WithLogger(zap.NewNop()))
	defer tracer.Close()
	collector := NewMockCollector(t, "http", 100)
	tracer.AddCollector("http", collector.Collector)

	req := httptest.NewRequest(http.MethodGet, "/orders/9", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	newService(t, tracer).ServeHTTP(httptest.NewRecorder(), req)

	spans := collector.WaitForSpans(2, defaultWait)
	collector.AssertParentChild(spans, "chi.request", "db.query")
	for _, s := range spans {
		if s.TraceID != "4bf92f3577b34da6a3ce929d0e0e4736" {
			t.Errorf("Expected %s to continue the remote trace, got %s", s.Name, s.TraceID)
		}
		if s.Service != "orders" {
			t.Errorf("Expected %s to carry the request service, got %q", s.Name, s.Service)
		}
	}
}

func TestServiceAfterForkUnderLoad(t *testing.T) {
	proc := NewProcess(7000)
	tracer := apmz.New(apmz.WithForksafe(proc.NewCoordinator()), apmz.WithLogger(zap.NewNop()))
	defer tracer.Close()
	collector := NewMockCollector(t, "http", 1000)
	tracer.AddCollector("http", collector.Collector)
	svc := newService(t, tracer)

	svc.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/1", nil))
	proc.Fork()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/2", nil))
		}()
	}
	wg.Wait()

	if tracer.Reinits() != 1 {
		t.Errorf("Expected a single re-initialization, got %d", tracer.Reinits())
	}
	// The parent's spans are discarded before the first child span starts.
	spans := collector.Export()
	if len(spans) != 64 {
		t.Errorf("Expected 64 child spans, got %d", len(spans))
	}
}
