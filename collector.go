package apmz

import (
	"sync"
	"sync/atomic"
	"time"
)

// closeTimeout bounds how long Close waits for the collector goroutine to drain.
const closeTimeout = 100 * time.Millisecond

// Collector buffers completed spans for batch export.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type Collector struct {
	spans        []Span
	loop         *collectorLoop
	droppedCount atomic.Int64
	name         string
	bufferSize   int
	mu           sync.Mutex
	loopMu       sync.RWMutex
	closed       atomic.Bool
	syncMode     atomic.Bool
}

// collectorLoop is one generation of the receiving goroutine and its channels.
type collectorLoop struct {
	spansCh chan Span
	stopCh  chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewCollector creates a new collector with the specified name and buffer size.
func NewCollector(name string, bufferSize int) *Collector {
	c := &Collector{
		name:       name,
		bufferSize: bufferSize,
		spans:      make([]Span, 0, 8),
	}
	c.loop = c.startLoop()
	return c
}

// Name returns the collector name.
func (c *Collector) Name() string {
	return c.name
}

func (c *Collector) startLoop() *collectorLoop {
	l := &collectorLoop{
		spansCh: make(chan Span, c.bufferSize),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.run(l)
	return l
}

// run receives spans until stopped, then drains what is left.
func (c *Collector) run(l *collectorLoop) {
	defer close(l.done)

	for {
		select {
		case <-l.stopCh:
			for {
				select {
				case span := <-l.spansCh:
					c.buffer(span)
				default:
					return
				}
			}
		case span := <-l.spansCh:
			c.buffer(span)
		}
	}
}

func (l *collectorLoop) stop() {
	l.once.Do(func() { close(l.stopCh) })
	select {
	case <-l.done:
	case <-time.After(closeTimeout):
	}
}

// Collect attempts to buffer a span with backpressure protection.
// If the internal channel is full, the span is dropped and the drop counter is incremented.
// In sync mode, spans are buffered directly for deterministic testing.
func (c *Collector) Collect(span *Span) {
	if span == nil || c.closed.Load() {
		c.droppedCount.Add(1)
		return
	}

	spanCopy := span.clone()
	if c.syncMode.Load() {
		c.buffer(spanCopy)
		return
	}

	c.loopMu.RLock()
	defer c.loopMu.RUnlock()

	// closed only flips under the write lock.
	if c.closed.Load() {
		c.droppedCount.Add(1)
		return
	}

	select {
	case c.loop.spansCh <- spanCopy:
	default:
		// Channel full - drop span to prevent blocking.
		c.droppedCount.Add(1)
	}
}

func (c *Collector) buffer(span Span) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spans = append(c.spans, span)
}

// Export returns all buffered spans and clears the internal buffer.
// The returned slice is safe to modify without affecting the collector.
func (c *Collector) Export() []Span {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.spans) == 0 {
		return nil
	}

	result := c.spans
	// Shrink oversized buffers instead of keeping their capacity.
	if cap(c.spans) > 256 && len(c.spans) < cap(c.spans)/8 {
		c.spans = make([]Span, 0, 32)
	} else {
		c.spans = make([]Span, 0, cap(c.spans))
	}
	return result
}

// Count returns the current number of buffered spans.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.spans)
}

// DroppedCount returns the total number of spans dropped due to backpressure.
func (c *Collector) DroppedCount() int64 {
	return c.droppedCount.Load()
}

// SetSyncMode enables synchronous collection for testing.
// When enabled, spans are buffered directly without using the channel.
func (c *Collector) SetSyncMode(sync bool) {
	c.syncMode.Store(sync)
}

// Reset clears all buffered spans and resets the drop counter.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.spans = c.spans[:0]
	c.droppedCount.Store(0)
}

// reinit restarts the receiving goroutine and discards spans inherited from
// the parent process, which the parent exports itself.
func (c *Collector) reinit() {
	if c.closed.Load() {
		return
	}

	c.loopMu.Lock()
	old := c.loop
	c.loop = c.startLoop()
	c.loopMu.Unlock()

	// The old goroutine is gone after a real fork; stop it when it is not.
	old.once.Do(func() { close(old.stopCh) })
	c.Reset()
}

// Close stops the collector. Buffered spans stay available to Export.
// Safe to call multiple times.
func (c *Collector) Close() {
	c.loopMu.Lock()
	if c.closed.Swap(true) {
		c.loopMu.Unlock()
		return
	}
	l := c.loop
	c.loopMu.Unlock()

	l.stop()
}
