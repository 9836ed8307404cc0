package storekit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	co "github.com/unkn0wn-root/storekit/coordinator"
	"github.com/unkn0wn-root/storekit/internal/keys"
)

type locker struct {
	ns    string
	coord co.Coordinator
	lease time.Duration
	retry time.Duration
	policy
}

func newLocker(opts LockerOptions) (*locker, error) {
	if opts.Coordinator == nil {
		return nil, fmt.Errorf("storekit: coordinator is required")
	}
	if opts.DefaultLease < 0 || opts.RetryInterval < 0 {
		return nil, fmt.Errorf("storekit: lease and retry interval must not be negative")
	}
	return &locker{
		ns:     opts.Namespace,
		coord:  opts.Coordinator,
		lease:  coalesce(opts.DefaultLease, defaultLease),
		retry:  coalesce(opts.RetryInterval, defaultRetryInterval),
		policy: newPolicy(opts.Logger, opts.Hooks),
	}, nil
}

func (l *locker) GetLock(name string) *Lock {
	return &Lock{
		name:   name,
		key:    keys.Join(l.ns, name),
		holder: uuid.NewString(),
		l:      l,
	}
}

func (l *locker) Close(ctx context.Context) error { return l.coord.Close(ctx) }

// Lock is a handle on a named, re-entrant, leased lock. The handle itself is
// the holder: goroutines sharing a handle share ownership, separate handles
// from GetLock contend with each other even inside one process.
//
// The hold count lives in the coordination service next to the lease, so it
// is updated atomically with acquisition and release.
type Lock struct {
	name   string
	key    string
	holder string
	l      *locker

	mu        sync.Mutex
	lease     time.Duration // lease of the outermost acquisition
	gen       uint64        // bumped by every outermost acquisition
	stopRenew context.CancelFunc
	renewDone chan struct{}
}

func (k *Lock) Name() string { return k.name }

// Acquire tries to take the lock.
//
// wait == 0 makes a single attempt, wait > 0 waits up to that long and
// WaitForever waits until ctx ends. lease == 0 uses the locker's default lease
// and keeps renewing it until the final Release; lease > 0 is fixed and lapses
// unless released first.
//
// Contention returns (false, nil). Coordinator failures return an *OpError and
// a cancelled ctx returns its error.
func (k *Lock) Acquire(ctx context.Context, wait, lease time.Duration) (bool, error) {
	start := time.Now()
	renew := lease <= 0
	if renew {
		lease = k.l.lease
	}

	g, err := k.l.coord.TryAcquire(ctx, k.key, k.holder, lease)
	if err != nil {
		return false, k.l.fail("lock.acquire", k.name, err)
	}
	if g.Acquired {
		k.held(g, lease, renew)
		return true, nil
	}
	if wait == 0 {
		k.l.hooks.LockContended(k.name, 0)
		return false, nil
	}

	sub, err := k.l.coord.Subscribe(ctx, k.key)
	if err != nil {
		return false, k.l.fail("lock.subscribe", k.name, err)
	}
	defer sub.Close()

	var deadline <-chan time.Time
	if wait > 0 {
		t := time.NewTimer(wait - time.Since(start))
		defer t.Stop()
		deadline = t.C
	}

	for {
		// the first pass covers a release between the attempt above and Subscribe
		g, err = k.l.coord.TryAcquire(ctx, k.key, k.holder, lease)
		if err != nil {
			return false, k.l.fail("lock.acquire", k.name, err)
		}
		if g.Acquired {
			k.held(g, lease, renew)
			return true, nil
		}

		pause := k.l.retry
		if g.RetryAfter > 0 && g.RetryAfter < pause {
			pause = g.RetryAfter
		}
		t := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			t.Stop()
			return false, ctx.Err()
		case <-deadline:
			t.Stop()
			k.l.hooks.LockContended(k.name, time.Since(start))
			return false, nil
		case <-sub.C():
		case <-t.C:
		}
		t.Stop()
	}
}

// Lock blocks until the lock is held or ctx ends, with a renewed lease.
func (k *Lock) Lock(ctx context.Context) error {
	_, err := k.Acquire(ctx, WaitForever, 0)
	return err
}

// TryLock makes one attempt with a renewed lease.
func (k *Lock) TryLock(ctx context.Context) (bool, error) {
	return k.Acquire(ctx, 0, 0)
}

// Release undoes one acquisition. The lock is freed when the hold count
// reaches zero. Releasing a lock this handle does not hold (never acquired,
// already fully released, or lost to lease expiry) returns an error wrapping
// ErrNotHeld.
func (k *Lock) Release(ctx context.Context) error {
	k.mu.Lock()
	lease := coalesce(k.lease, k.l.lease)
	gen := k.gen
	k.mu.Unlock()

	n, err := k.l.coord.Release(ctx, k.key, k.holder, lease)
	if err != nil {
		if errors.Is(err, co.ErrNotHeld) {
			k.stopWatchdog(gen)
		}
		return k.l.fail("lock.release", k.name, err)
	}
	if n == 0 {
		k.stopWatchdog(gen)
	}
	return nil
}

// ForceRelease frees the lock regardless of who holds it.
func (k *Lock) ForceRelease(ctx context.Context) (bool, error) {
	k.mu.Lock()
	gen := k.gen
	k.mu.Unlock()

	ok, err := k.l.coord.ForceRelease(ctx, k.key)
	if err != nil {
		return false, k.l.fail("lock.forceRelease", k.name, err)
	}
	k.stopWatchdog(gen)
	return ok, nil
}

// HoldCount is how many times this handle currently holds the lock.
func (k *Lock) HoldCount(ctx context.Context) (int64, error) {
	st, err := k.status(ctx)
	return st.HoldCount, err
}

// IsHeld reports whether this handle holds the lock.
func (k *Lock) IsHeld(ctx context.Context) (bool, error) {
	st, err := k.status(ctx)
	return st.HoldCount > 0, err
}

// IsLocked reports whether anyone holds the lock.
func (k *Lock) IsLocked(ctx context.Context) (bool, error) {
	st, err := k.status(ctx)
	return st.Locked, err
}

func (k *Lock) status(ctx context.Context) (co.Status, error) {
	st, err := k.l.coord.Status(ctx, k.key, k.holder)
	if err != nil {
		return co.Status{}, &OpError{Op: "lock.status", Key: k.name, Err: err}
	}
	return st, nil
}

// held records a successful acquisition. Only the outermost one decides the
// lease mode; re-entrant acquisitions leave it alone.
func (k *Lock) held(g co.Grant, lease time.Duration, renew bool) {
	if g.HoldCount != 1 {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.stopWatchdogLocked()
	k.gen++
	k.lease = lease
	if !renew {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	k.stopRenew, k.renewDone = cancel, done
	go k.watchdog(ctx, lease, done)
}

// watchdog extends the lease every lease/3 until stopped or the lock is lost.
func (k *Lock) watchdog(ctx context.Context, lease time.Duration, done chan struct{}) {
	defer close(done)
	every := lease / 3
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		rctx, cancel := context.WithTimeout(ctx, every)
		ok, err := k.l.coord.Renew(rctx, k.key, k.holder, lease)
		cancel()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			k.l.log.Warn("lock renew failed", Fields{"lock": k.name, "err": err})
			k.l.hooks.LockRenewFailed(k.name, err)
			continue
		}
		if !ok {
			k.l.log.Warn("lock lost before release", Fields{"lock": k.name})
			k.l.hooks.LockLost(k.name)
			return
		}
	}
}

// stopWatchdog stops the watchdog of acquisition gen. A newer outermost
// acquisition that raced in after the coordinator call keeps its own.
func (k *Lock) stopWatchdog(gen uint64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.gen != gen {
		return
	}
	k.stopWatchdogLocked()
}

func (k *Lock) stopWatchdogLocked() {
	if k.stopRenew == nil {
		return
	}
	k.stopRenew()
	<-k.renewDone
	k.stopRenew, k.renewDone = nil, nil
}
