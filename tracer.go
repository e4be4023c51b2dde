package apmz

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"

	"github.com/zoobzio/apmz/forksafe"
)

// contextBundle holds both tracer and span to reduce context allocations.
type contextBundle struct {
	tracer *Tracer
	span   *Span
}

// SpanHandler is called when a span completes.
type SpanHandler func(span Span)

type handlerEntry struct {
	handler SpanHandler
	id      uint64
}

type idPools struct {
	trace *IDPool
	span  *IDPool
}

func (p *idPools) close() {
	p.trace.Close()
	p.span.Close()
}

// startRequest carries StartSpan arguments through the fork-safe wrapper.
type startRequest struct {
	ctx  context.Context
	name string
	opts []StartOption
}

// Tracer manages span lifecycle and collection.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Tracer struct {
	handlers     []handlerEntry
	collectors   map[string]*Collector
	panicHook    func(handlerID uint64, r interface{})
	start        *forksafe.Func[startRequest, *Span]
	forks        *forksafe.Coordinator
	pools        atomic.Pointer[idPools]
	clock        clockz.Clock
	log          *zap.Logger
	handlersLock sync.RWMutex
	poolsLock    sync.Mutex
	nextID       atomic.Uint64
	reinits      atomic.Uint64
	closed       atomic.Bool
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithClock sets the clock used for span timestamps.
// Enables clock injection for deterministic testing.
func WithClock(clock clockz.Clock) Option {
	return func(t *Tracer) {
		t.clock = clock
	}
}

// WithForksafe sets the coordinator that re-initializes the tracer after a fork.
// Defaults to forksafe.Default().
func WithForksafe(c *forksafe.Coordinator) Option {
	return func(t *Tracer) {
		t.forks = c
	}
}

// WithLogger sets the tracer logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracer) {
		t.log = logger
	}
}

// New creates a new tracer.
// Uses the real clock and the process-wide fork coordinator unless overridden.
func New(opts ...Option) *Tracer {
	t := &Tracer{
		handlers:   make([]handlerEntry, 0),
		collectors: make(map[string]*Collector),
		clock:      clockz.RealClock,
		forks:      forksafe.Default(),
		log:        zap.L().Named("apmz"),
	}
	for _, opt := range opts {
		opt(t)
	}

	t.start = forksafe.Wrap(t.forks, t.afterFork, t.startSpan)
	return t
}

// afterFork rebuilds state owned by goroutines that did not survive the fork.
func (t *Tracer) afterFork() {
	if t.closed.Load() {
		return
	}

	t.poolsLock.Lock()
	if old := t.pools.Swap(nil); old != nil {
		old.close()
	}
	t.poolsLock.Unlock()

	t.handlersLock.RLock()
	for _, c := range t.collectors {
		c.reinit()
	}
	t.handlersLock.RUnlock()

	t.reinits.Add(1)
	t.log.Debug("tracer re-initialized after fork")
}

// Reinits returns how many times the tracer re-initialized after a fork.
func (t *Tracer) Reinits() uint64 {
	return t.reinits.Load()
}

// ensureIDPools returns the ID pools, creating them if needed.
func (t *Tracer) ensureIDPools() *idPools {
	if p := t.pools.Load(); p != nil {
		return p
	}

	t.poolsLock.Lock()
	defer t.poolsLock.Unlock()

	if p := t.pools.Load(); p != nil {
		return p
	}

	// Pool size based on number of CPUs for optimal contention balance.
	poolSize := runtime.NumCPU() * 100
	p := &idPools{
		trace: NewIDPool(poolSize, t.randomID(16, time.RFC3339Nano)),
		span:  NewIDPool(poolSize, t.randomID(8, "15:04:05.000000")),
	}
	t.pools.Store(p)
	return p
}

func (t *Tracer) randomID(size int, fallbackLayout string) func() string {
	return func() string {
		bytes := make([]byte, size)
		if _, err := rand.Read(bytes); err != nil {
			// Fallback to time-based ID if crypto/rand fails.
			return hex.EncodeToString([]byte(t.clock.Now().Format(fallbackLayout)))
		}
		return hex.EncodeToString(bytes)
	}
}

// AddCollector attaches a collector that receives every finished span.
func (t *Tracer) AddCollector(name string, c *Collector) {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()
	t.collectors[name] = c
}

// OnSpanComplete registers a handler called synchronously when spans complete.
func (t *Tracer) OnSpanComplete(handler SpanHandler) uint64 {
	if handler == nil {
		return 0
	}

	id := t.nextID.Add(1)

	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	t.handlers = append(t.handlers, handlerEntry{id: id, handler: handler})
	return id
}

// RemoveHandler removes a handler by ID.
func (t *Tracer) RemoveHandler(id uint64) {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	// Preserve order
	for i, h := range t.handlers {
		if h.id == id {
			copy(t.handlers[i:], t.handlers[i+1:])
			t.handlers = t.handlers[:len(t.handlers)-1]
			return
		}
	}
}

// SetPanicHook sets a function to be called when a handler panics.
func (t *Tracer) SetPanicHook(hook func(handlerID uint64, r interface{})) {
	t.panicHook = hook
}

// StartSpan creates a new span and returns it wrapped in an ActiveSpan.
// If the context contains an existing span, the new span will be its child.
// Otherwise a remote parent given with WithRemoteParent is continued.
func (t *Tracer) StartSpan(ctx context.Context, operation Key, opts ...StartOption) (context.Context, *ActiveSpan) {
	// Handle nil context by creating a new one.
	if ctx == nil {
		ctx = context.Background()
	}

	span := t.start.Call(startRequest{ctx: ctx, name: operation, opts: opts})
	activeSpan := &ActiveSpan{span: span, tracer: t}

	// Single allocation for tracer and span.
	bundle := &contextBundle{tracer: t, span: span}
	return context.WithValue(ctx, bundleKey, bundle), activeSpan
}

func (t *Tracer) startSpan(req startRequest) *Span {
	var cfg startConfig
	for _, opt := range req.opts {
		opt(&cfg)
	}

	pools := t.ensureIDPools()
	span := &Span{
		SpanID:    pools.span.Get(),
		Name:      req.name,
		Service:   cfg.service,
		Resource:  cfg.resource,
		Type:      cfg.spanType,
		StartTime: t.clock.Now(),
	}
	if span.Resource == "" {
		span.Resource = req.name
	}

	switch parent := GetSpan(req.ctx); {
	case parent != nil:
		span.TraceID = parent.TraceID
		span.ParentID = parent.SpanID
		if span.Service == "" {
			span.Service = parent.Service
		}
	case cfg.remoteTraceID != "":
		span.TraceID = cfg.remoteTraceID
		span.ParentID = cfg.remoteParentID
	default:
		span.TraceID = pools.trace.Get()
	}

	return span
}

// collectSpan hands a finished span to every collector and handler.
func (t *Tracer) collectSpan(span *Span) {
	t.handlersLock.RLock()
	collectors := make([]*Collector, 0, len(t.collectors))
	for _, c := range t.collectors {
		collectors = append(collectors, c)
	}
	handlers := make([]handlerEntry, len(t.handlers))
	copy(handlers, t.handlers)
	t.handlersLock.RUnlock()

	for _, c := range collectors {
		c.Collect(span)
	}
	if len(handlers) == 0 {
		return
	}

	snapshot := span.clone()
	for _, h := range handlers {
		t.safeCall(h, snapshot)
	}
}

func (t *Tracer) safeCall(entry handlerEntry, span Span) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("span handler panicked", zap.Uint64("handler", entry.id), zap.Any("panic", r))
			if t.panicHook != nil {
				t.panicHook(entry.id, r)
			}
		}
	}()
	entry.handler(span)
}

// Close shuts down the tracer gracefully and cleans up resources.
// Hooks cannot be unregistered, so the fork coordinator keeps the Tracer
// value reachable for the life of the process. Close drops its collectors,
// handlers and ID pools so only the bare struct is retained, and the hook
// does nothing once the tracer is closed.
func (t *Tracer) Close() {
	t.closed.Store(true)

	// Stop new handler executions
	t.handlersLock.Lock()
	t.handlers = nil
	collectors := t.collectors
	t.collectors = make(map[string]*Collector)
	t.handlersLock.Unlock()

	for _, c := range collectors {
		c.Close()
	}

	t.poolsLock.Lock()
	if p := t.pools.Swap(nil); p != nil {
		p.close()
	}
	t.poolsLock.Unlock()
}
