// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    ReadContainedEvery: 10, // sample logs: ~every 10th contained read
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := storekit.New[User](storekit.Options[User]{
//	    Store: store,
//	    Codec: codec.JSON[User]{},
//	    Hooks: hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/storekit"
)

// Hooks forwards events to inner on worker goroutines. Events that do not
// fit in the queue are dropped and counted.
type Hooks struct {
	inner   storekit.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ storekit.Hooks = (*Hooks)(nil)

func New(inner storekit.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Later events are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped is the number of events lost to a full queue or a closed hook.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) ReadContained(op, k string, err error) {
	h.try(func() { h.inner.ReadContained(op, k, err) })
}
func (h *Hooks) WriteFailed(op, k string, err error) {
	h.try(func() { h.inner.WriteFailed(op, k, err) })
}
func (h *Hooks) LockContended(n string, d time.Duration) {
	h.try(func() { h.inner.LockContended(n, d) })
}
func (h *Hooks) LockRenewFailed(n string, err error) {
	h.try(func() { h.inner.LockRenewFailed(n, err) })
}
func (h *Hooks) LockLost(n string) { h.try(func() { h.inner.LockLost(n) }) }
