// Package coordinator defines the coordination client consumed by storekit's
// lock facade.
//
// A lock is identified by name and owned by a holder token. Ownership is
// re-entrant per holder: the service counts acquisitions by the same holder and
// only frees the lock when that count drops to zero or the lease runs out.
// Lease expiry is enforced by the service itself.
package coordinator

import (
	"context"
	"errors"
	"time"
)

// ErrNotHeld is returned by Release when holder does not own the lock.
var ErrNotHeld = errors.New("coordinator: lock not held by holder")

// Grant is the outcome of one acquisition attempt.
type Grant struct {
	Acquired bool
	// HoldCount is the holder's re-entrancy count after a successful attempt.
	HoldCount int64
	// RetryAfter is the current holder's remaining lease when not acquired.
	// Zero or negative means unknown.
	RetryAfter time.Duration
}

// Status describes a lock from one holder's point of view.
type Status struct {
	Locked    bool  // held by anyone
	HoldCount int64 // held by the asking holder this many times
}

// Subscription delivers a signal whenever the lock is released.
// Signals may be coalesced; receivers must re-check by trying to acquire.
type Subscription interface {
	C() <-chan struct{}
	Close() error
}

type Coordinator interface {
	// TryAcquire makes one non-blocking attempt. On success the lease is
	// (re)set to lease.
	TryAcquire(ctx context.Context, name, holder string, lease time.Duration) (Grant, error)
	// Renew extends the lease if holder still owns the lock. Returns false when it does not.
	Renew(ctx context.Context, name, holder string, lease time.Duration) (bool, error)
	// Release decrements holder's count and frees the lock at zero, notifying
	// subscribers. While the count stays positive the lease is reset to lease.
	// Returns the remaining count or ErrNotHeld.
	Release(ctx context.Context, name, holder string, lease time.Duration) (int64, error)
	// ForceRelease frees the lock whoever holds it. Returns false if it was free.
	ForceRelease(ctx context.Context, name string) (bool, error)
	Status(ctx context.Context, name, holder string) (Status, error)
	// Subscribe returns once the subscription is active, so a release that
	// happens after Subscribe returns is never missed.
	Subscribe(ctx context.Context, name string) (Subscription, error)
	Close(ctx context.Context) error
}
