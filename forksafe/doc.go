// Package forksafe re-initializes fork-sensitive state in child processes.
//
// A fork copies process memory but not the OS resources behind it: sockets,
// locks held by other threads and background goroutines are all gone in the
// child. Code that owns such state registers an after-in-child Hook and wraps
// the functions that depend on it.
//
// Basic Usage:
//
//	c := forksafe.New()
//
//	flush := forksafe.Wrap(c, reconnect, func(batch []Span) error {
//		// reconnect has already run if this is a forked child.
//		return send(batch)
//	})
//
//	err := flush.Call(batch)
//
// Strategies:
//
// When an after-fork facility is available (see WithAtFork) the registry is
// installed as its callback once and wrapped calls carry no overhead. Otherwise
// every wrapped call compares the live process id against the last one seen
// and runs all hooks, in registration order, on the first call after a change.
// Only one goroutine ever runs the hooks for a given fork.
//
// Hooks:
//
// A panicking hook is recovered and logged, and the remaining hooks still run.
// Hooks must not call wrapped functions of the same Coordinator; the detector
// lock is held while they run.
package forksafe
