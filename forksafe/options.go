package forksafe

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/zoobzio/apmz/internal/env"
)

// Strategy names.
const (
	StrategyAuto   = "auto"
	StrategyNative = "native"
	StrategyManual = "manual"
)

// PanicHandler is called with the hook index and recovered value when a hook panics.
type PanicHandler func(index int, r interface{})

type config struct {
	logger     *zap.Logger
	registerer prometheus.Registerer
	pid        func() int
	atFork     AtFork
	panicHook  PanicHandler
	strategy   string
}

func defaultConfig() config {
	return config{
		pid:      getpid,
		atFork:   platformAtFork,
		strategy: env.Get("APMZ_FORKSAFE_STRATEGY", StrategyAuto),
	}
}

// Option configures a Coordinator or Registry.
type Option func(*config)

// WithLogger sets the logger used to report hook failures.
// Defaults to the global zap logger at the time of logging.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithRegisterer registers the forksafe metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *config) {
		c.registerer = reg
	}
}

// WithPIDFunc replaces the process id source used by the manual strategy.
func WithPIDFunc(pid func() int) Option {
	return func(c *config) {
		if pid != nil {
			c.pid = pid
		}
	}
}

// WithAtFork supplies a native after-fork-in-child facility.
func WithAtFork(atFork AtFork) Option {
	return func(c *config) {
		c.atFork = atFork
	}
}

// WithPanicHandler sets a function called after a hook panic has been logged.
func WithPanicHandler(h PanicHandler) Option {
	return func(c *config) {
		c.panicHook = h
	}
}

// WithStrategy forces a strategy. StrategyManual ignores any AtFork facility.
func WithStrategy(name string) Option {
	return func(c *config) {
		c.strategy = name
	}
}
