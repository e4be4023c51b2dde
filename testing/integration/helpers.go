// Package integration exercises the tracer, fork coordinator and HTTP
// instrumentation together.
package integration

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/zoobzio/apmz"
	"github.com/zoobzio/apmz/forksafe"
)

// MockCollector wraps a real collector with test utilities.
// Provides synchronous collection and verification helpers.
//
//nolint:govet // Field alignment optimized for test helper readability
type MockCollector struct {
	exported []apmz.Span
	*apmz.Collector
	t  *testing.T
	mu sync.Mutex
}

// NewMockCollector creates a synchronous collector for testing.
func NewMockCollector(t *testing.T, name string, bufferSize int) *MockCollector {
	collector := apmz.NewCollector(name, bufferSize)
	collector.SetSyncMode(true)
	t.Cleanup(collector.Close)
	return &MockCollector{
		Collector: collector,
		t:         t,
		exported:  make([]apmz.Span, 0),
	}
}

// Export returns collected spans and clears the buffer.
func (m *MockCollector) Export() []apmz.Span {
	m.mu.Lock()
	defer m.mu.Unlock()

	spans := m.Collector.Export()
	m.exported = append(m.exported, spans...)
	return spans
}

// WaitForSpans waits for expected number of spans with timeout.
func (m *MockCollector) WaitForSpans(expected int, timeout time.Duration) []apmz.Span {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if m.Count() >= expected {
			return m.Export()
		}
		time.Sleep(5 * time.Millisecond)
	}

	spans := m.Export()
	m.t.Errorf("Timeout waiting for spans: expected %d, got %d", expected, len(spans))
	return spans
}

// AssertParentChild verifies parent-child relationship between two spans.
func (m *MockCollector) AssertParentChild(spans []apmz.Span, parentName, childName string) {
	var parent, child *apmz.Span
	for i := range spans {
		switch spans[i].Name {
		case parentName:
			parent = &spans[i]
		case childName:
			child = &spans[i]
		}
	}

	if parent == nil || child == nil {
		m.t.Errorf("Expected spans %q and %q, got parent=%v child=%v", parentName, childName, parent != nil, child != nil)
		return
	}
	if child.ParentID != parent.SpanID {
		m.t.Errorf("Parent-child relationship broken: child ParentID=%s, parent SpanID=%s", child.ParentID, parent.SpanID)
	}
	if child.TraceID != parent.TraceID {
		m.t.Errorf("Trace ID mismatch: parent=%s, child=%s", parent.TraceID, child.TraceID)
	}
}

// Process simulates the process id seen by a fork coordinator.
type Process struct {
	pid atomic.Int64
}

// NewProcess starts a simulated process with the given id.
func NewProcess(pid int) *Process {
	p := &Process{}
	p.pid.Store(int64(pid))
	return p
}

// Getpid returns the simulated process id.
func (p *Process) Getpid() int { return int(p.pid.Load()) }

// Fork makes the current goroutines observe a child process id.
func (p *Process) Fork() { p.pid.Add(1) }

// NewCoordinator returns a manual-strategy coordinator watching p.
func (p *Process) NewCoordinator(opts ...forksafe.Option) *forksafe.Coordinator {
	opts = append([]forksafe.Option{
		forksafe.WithPIDFunc(p.Getpid),
		forksafe.WithLogger(zap.NewNop()),
		forksafe.WithStrategy(forksafe.StrategyManual),
	}, opts...)
	return forksafe.New(opts...)
}
