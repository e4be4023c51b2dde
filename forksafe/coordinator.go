package forksafe

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Coordinator owns a hook registry and the strategy that triggers it.
// Safe for concurrent use by multiple goroutines.
type Coordinator struct {
	registry *Registry
	strategy Strategy
	metrics  *metrics
}

// New creates a coordinator. The manual strategy records the live process id
// now, so hooks only run after a later change.
func New(opts ...Option) *Coordinator {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	m := newMetrics(cfg.registerer)
	c := &Coordinator{
		registry: newRegistry(cfg, m),
		metrics:  m,
	}

	switch {
	case cfg.strategy == StrategyNative && cfg.atFork == nil:
		c.registry.logger().Warn("native forksafe strategy requested without an AtFork facility, using manual",
			zap.String("strategy", cfg.strategy))
	case cfg.strategy != StrategyAuto && cfg.strategy != StrategyNative && cfg.strategy != StrategyManual:
		c.registry.logger().Warn("unknown forksafe strategy, using auto",
			zap.String("strategy", cfg.strategy))
	}

	if cfg.atFork != nil && cfg.strategy != StrategyManual {
		cfg.atFork(c.registry.RunAll)
		c.strategy = nativeStrategy{}
	} else {
		c.strategy = newManualStrategy(c.registry, m, cfg.pid)
	}

	c.registry.logger().Debug("forksafe coordinator ready", zap.String("strategy", c.strategy.Name()))
	return c
}

// Register appends afterInChild to the registry and returns a Decorator for
// the functions that depend on the state it re-initializes.
func (c *Coordinator) Register(afterInChild Hook) Decorator {
	c.registry.Register(afterInChild)
	return Decorator{c: c}
}

// RunAllHooks runs every registered hook in order. It is the entry point for
// native fork facilities and for tests simulating a fork.
func (c *Coordinator) RunAllHooks() {
	c.registry.RunAll()
}

// Strategy returns the name of the active strategy.
func (c *Coordinator) Strategy() string {
	return c.strategy.Name()
}

// Registry returns the underlying hook registry.
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// Collectors returns the coordinator's metrics for registration elsewhere.
func (c *Coordinator) Collectors() []prometheus.Collector {
	return c.metrics.collectors()
}

var std = New()

// Default returns the process-wide coordinator, created at package init.
func Default() *Coordinator { return std }

// Register adds afterInChild to the process-wide coordinator.
func Register(afterInChild Hook) Decorator { return std.Register(afterInChild) }

// RunAllHooks runs the hooks of the process-wide coordinator.
func RunAllHooks() { std.RunAllHooks() }
