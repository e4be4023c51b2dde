package apmz

import (
	"sync"
)

// IDPool keeps pre-generated IDs to amortize crypto/rand overhead.
// The refill goroutine is fork-sensitive; Tracer rebuilds its pools after a fork.
type IDPool struct {
	factory func() string
	ids     chan string
	stopCh  chan struct{}
	once    sync.Once
}

// NewIDPool creates an ID pool with the specified capacity and starts refilling it.
func NewIDPool(capacity int, factory func() string) *IDPool {
	pool := &IDPool{
		ids:     make(chan string, capacity),
		factory: factory,
		stopCh:  make(chan struct{}),
	}
	go pool.refill()
	return pool
}

// Get retrieves an ID from the pool, or generates one if the pool is empty.
func (p *IDPool) Get() string {
	select {
	case id := <-p.ids:
		return id
	default:
		return p.factory()
	}
}

func (p *IDPool) refill() {
	for {
		id := p.factory()
		select {
		case p.ids <- id:
		case <-p.stopCh:
			return
		}
	}
}

// Close stops the refill goroutine. Safe to call multiple times.
func (p *IDPool) Close() {
	p.once.Do(func() { close(p.stopCh) })
}
