// Package local is an in-process coordinator.Coordinator. Locks only
// coordinate goroutines of the same process; leases are enforced lazily on
// access with the same semantics as the Redis coordinator.
package local

import (
	"context"
	"sync"
	"time"

	co "github.com/unkn0wn-root/storekit/coordinator"
)

type lock struct {
	holder   string
	count    int64
	expireAt time.Time
}

type Coordinator struct {
	mu    sync.Mutex
	locks map[string]*lock
	subs  map[string]map[*subscription]struct{}
	now   func() time.Time
}

var _ co.Coordinator = (*Coordinator)(nil)

func New() *Coordinator {
	return &Coordinator{
		locks: make(map[string]*lock),
		subs:  make(map[string]map[*subscription]struct{}),
		now:   time.Now,
	}
}

// live returns the unexpired lock for name. A lease that ran out counts as a
// release and wakes subscribers. Caller holds mu.
func (c *Coordinator) live(name string) *lock {
	l, ok := c.locks[name]
	if !ok {
		return nil
	}
	if !c.now().Before(l.expireAt) {
		delete(c.locks, name)
		c.notify(name)
		return nil
	}
	return l
}

func (c *Coordinator) TryAcquire(_ context.Context, name, holder string, lease time.Duration) (co.Grant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.live(name)
	switch {
	case l == nil:
		l = &lock{holder: holder}
		c.locks[name] = l
	case l.holder != holder:
		return co.Grant{RetryAfter: l.expireAt.Sub(c.now())}, nil
	}
	l.count++
	l.expireAt = c.now().Add(lease)
	return co.Grant{Acquired: true, HoldCount: l.count}, nil
}

func (c *Coordinator) Renew(_ context.Context, name, holder string, lease time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.live(name)
	if l == nil || l.holder != holder {
		return false, nil
	}
	l.expireAt = c.now().Add(lease)
	return true, nil
}

func (c *Coordinator) Release(_ context.Context, name, holder string, lease time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.live(name)
	if l == nil || l.holder != holder {
		return 0, co.ErrNotHeld
	}
	l.count--
	if l.count > 0 {
		l.expireAt = c.now().Add(lease)
		return l.count, nil
	}
	delete(c.locks, name)
	c.notify(name)
	return 0, nil
}

func (c *Coordinator) ForceRelease(_ context.Context, name string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.live(name) == nil {
		return false, nil
	}
	delete(c.locks, name)
	c.notify(name)
	return true, nil
}

func (c *Coordinator) Status(_ context.Context, name, holder string) (co.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.live(name)
	if l == nil {
		return co.Status{}, nil
	}
	st := co.Status{Locked: true}
	if l.holder == holder {
		st.HoldCount = l.count
	}
	return st, nil
}

func (c *Coordinator) Subscribe(_ context.Context, name string) (co.Subscription, error) {
	s := &subscription{c: c, name: name, ch: make(chan struct{}, 1)}
	c.mu.Lock()
	set, ok := c.subs[name]
	if !ok {
		set = make(map[*subscription]struct{})
		c.subs[name] = set
	}
	set[s] = struct{}{}
	c.mu.Unlock()
	return s, nil
}

func (c *Coordinator) Close(context.Context) error { return nil }

// notify signals every subscriber of name. Caller holds mu.
func (c *Coordinator) notify(name string) {
	for s := range c.subs[name] {
		select {
		case s.ch <- struct{}{}:
		default:
		}
	}
}

type subscription struct {
	c    *Coordinator
	name string
	ch   chan struct{}
	once sync.Once
}

func (s *subscription) C() <-chan struct{} { return s.ch }

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.c.mu.Lock()
		defer s.c.mu.Unlock()
		set := s.c.subs[s.name]
		delete(set, s)
		if len(set) == 0 {
			delete(s.c.subs, s.name)
		}
	})
	return nil
}
