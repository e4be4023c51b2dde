package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zoobzio/apmz"
)

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"--addr", ":9000", "--header-tags", "x-a,x-b", "--export-interval", "1s"})
	require.NoError(t, err)
	assert.Equal(t, ":9000", opts.addr)
	assert.Equal(t, []string{"x-a", "x-b"}, opts.headerTags)
	assert.Equal(t, time.Second, opts.exportInterval)
	assert.Equal(t, "apmz-demo", opts.service)

	_, err = parseFlags([]string{"--export-interval", "0s"})
	assert.Error(t, err)

	_, err = parseFlags([]string{"--unknown"})
	assert.Error(t, err)
}

func TestRouterServesMetricsAndTraces(t *testing.T) {
	opts, err := parseFlags(nil)
	require.NoError(t, err)

	tracer := apmz.New(apmz.WithLogger(zap.NewNop()))
	defer tracer.Close()
	collector := apmz.NewCollector("test", 10)
	collector.SetSyncMode(true)
	tracer.AddCollector("test", collector)

	reg := prometheus.NewRegistry()
	router := newRouter(opts, tracer, reg)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/hello/gopher", nil))
	assert.Equal(t, "hello, gopher\n", rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "apmz_chitrace_requests_total"))

	spans := collector.Export()
	require.Len(t, spans, 2)
	assert.Equal(t, "apmz-demo", spans[0].Service)
	assert.Equal(t, "GET /hello/gopher", spans[0].Resource)
}
