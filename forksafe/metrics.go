package forksafe

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	hookRuns       prometheus.Counter
	hookFailures   prometheus.Counter
	forkDetections prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		hookRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "apmz",
			Subsystem: "forksafe",
			Name:      "hook_runs_total",
			Help:      "Total number of after-in-child hook invocations.",
		}),
		hookFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "apmz",
			Subsystem: "forksafe",
			Name:      "hook_failures_total",
			Help:      "Total number of after-in-child hooks that panicked.",
		}),
		forkDetections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "apmz",
			Subsystem: "forksafe",
			Name:      "fork_detections_total",
			Help:      "Total number of process id changes observed by wrapped calls.",
		}),
	}
	if reg == nil {
		return m
	}
	m.hookRuns = register(reg, m.hookRuns)
	m.hookFailures = register(reg, m.hookFailures)
	m.forkDetections = register(reg, m.forkDetections)
	return m
}

// register adopts an already registered counter so several coordinators can
// share one registry.
func register(reg prometheus.Registerer, c prometheus.Counter) prometheus.Counter {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing
			}
		}
	}
	return c
}

func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.hookRuns, m.hookFailures, m.forkDetections}
}
