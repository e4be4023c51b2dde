package forksafe

import (
	"reflect"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

// Hook re-initializes fork-sensitive state in a child process.
type Hook func()

// Registry holds after-in-child hooks in registration order.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Registry struct {
	hooks     []Hook
	log       *zap.Logger
	metrics   *metrics
	panicHook PanicHandler
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return newRegistry(cfg, newMetrics(cfg.registerer))
}

func newRegistry(cfg config, m *metrics) *Registry {
	return &Registry{
		hooks:     make([]Hook, 0),
		log:       cfg.logger,
		metrics:   m,
		panicHook: cfg.panicHook,
	}
}

// Register appends a hook. Duplicates are kept and fire once per registration.
func (r *Registry) Register(h Hook) {
	if h == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.hooks = append(r.hooks, h)
}

// Len returns the number of registered hooks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks)
}

// RunAll invokes every hook registered at call time, in order.
// A panicking hook is logged and skipped; RunAll itself never panics.
func (r *Registry) RunAll() {
	r.mu.RLock()
	if len(r.hooks) == 0 {
		r.mu.RUnlock()
		return
	}

	hooks := make([]Hook, len(r.hooks))
	copy(hooks, r.hooks)
	r.mu.RUnlock()

	for i, h := range hooks {
		r.safeCall(i, h)
	}
}

func (r *Registry) safeCall(index int, h Hook) {
	defer func() {
		if rec := recover(); rec != nil {
			r.metrics.hookFailures.Inc()
			r.logger().Error("exception ignored in forksafe hook",
				zap.Int("index", index),
				zap.String("hook", hookName(h)),
				zap.Any("panic", rec),
				zap.Stack("stack"),
			)
			r.notifyPanic(index, h, rec)
		}
	}()

	r.metrics.hookRuns.Inc()
	h()
}

// notifyPanic calls the panic handler; a panicking handler is logged and dropped.
func (r *Registry) notifyPanic(index int, h Hook, rec interface{}) {
	if r.panicHook == nil {
		return
	}

	defer func() {
		if hrec := recover(); hrec != nil {
			r.logger().Error("forksafe panic handler panicked",
				zap.Int("index", index),
				zap.String("hook", hookName(h)),
				zap.Any("panic", hrec),
			)
		}
	}()

	r.panicHook(index, rec)
}

func (r *Registry) logger() *zap.Logger {
	if r.log != nil {
		return r.log
	}
	return zap.L().Named("forksafe")
}

func hookName(h Hook) string {
	if fn := runtime.FuncForPC(reflect.ValueOf(h).Pointer()); fn != nil {
		return fn.Name()
	}
	return "unknown"
}
