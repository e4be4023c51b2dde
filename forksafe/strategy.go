package forksafe

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// AtFork installs afterInChild as a callback run in the child after every fork.
type AtFork func(afterInChild func())

// platformAtFork is nil: the Go runtime exposes no after-fork-in-child callback.
var platformAtFork AtFork

// Strategy decides when registered hooks run.
type Strategy interface {
	// Check runs the registry if a fork happened since the last check.
	Check()
	// Name returns StrategyNative or StrategyManual.
	Name() string
}

// nativeStrategy relies on the AtFork facility; wrapped calls go straight through.
type nativeStrategy struct{}

func (nativeStrategy) Check() {}

func (nativeStrategy) Name() string { return StrategyNative }

// manualStrategy detects forks by watching the process id on every call.
//
//nolint:govet // Field order optimized for functionality over memory
type manualStrategy struct {
	registry *Registry
	metrics  *metrics
	log      func() *zap.Logger
	pid      func() int
	lastPID  atomic.Int64
	mu       sync.Mutex
}

func newManualStrategy(r *Registry, m *metrics, pid func() int) *manualStrategy {
	s := &manualStrategy{
		registry: r,
		metrics:  m,
		log:      r.logger,
		pid:      pid,
	}
	s.lastPID.Store(int64(pid()))
	return s
}

// Check compares the live process id with the last one seen. lastPID only
// changes under mu, after all hooks have returned, so a goroutine that
// observes the new id on the fast path never runs ahead of the hooks.
func (s *manualStrategy) Check() {
	pid := int64(s.pid())
	if s.lastPID.Load() == pid {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	last := s.lastPID.Load()
	if last == pid {
		// Another goroutine handled this fork while we waited.
		return
	}

	s.metrics.forkDetections.Inc()
	s.log().Debug("fork detected, running after-in-child hooks",
		zap.Int64("last_pid", last),
		zap.Int64("pid", pid),
		zap.Int("hooks", s.registry.Len()),
	)

	s.registry.RunAll()
	s.lastPID.Store(pid)
}

func (*manualStrategy) Name() string { return StrategyManual }
