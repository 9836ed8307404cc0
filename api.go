package storekit

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/storekit/codec"
	co "github.com/unkn0wn-root/storekit/coordinator"
	pr "github.com/unkn0wn-root/storekit/provider"
)

// Cache is the structure-aware facade over a provider.Store.
// V is the caller's value type; serialization is handled by a Codec[V].
//
// Reads never return errors: on failure they log, call Hooks.ReadContained and
// return the zero value, so a miss and a failed read look alike. Writes return
// an *OpError on failure.
type Cache[V any] interface {
	Close(context.Context) error

	// Keys
	Exists(ctx context.Context, key string) bool
	Delete(ctx context.Context, key string) (bool, error)
	DeleteMany(ctx context.Context, keys []string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	TimeToLive(ctx context.Context, key string) TTL

	// Scalar
	SetValue(ctx context.Context, key string, value V, ttl time.Duration) error
	GetValue(ctx context.Context, key string) (V, bool)
	Increment(ctx context.Context, key string, delta int64) (int64, error)

	// Hash
	SetField(ctx context.Context, key, field string, value V) error
	SetFields(ctx context.Context, key string, fields map[string]V) error
	GetField(ctx context.Context, key, field string) (V, bool)
	GetAllFields(ctx context.Context, key string) map[string]V
	DeleteFields(ctx context.Context, key string, fields ...string) (int64, error)

	// List
	PushLeft(ctx context.Context, key string, values ...V) (int64, error)
	PushRight(ctx context.Context, key string, values ...V) (int64, error)
	Range(ctx context.Context, key string, start, stop int64) []V
	SetAt(ctx context.Context, key string, index int64, value V) error
	RemoveValue(ctx context.Context, key string, count int64, value V) (int64, error)

	// Set (Members order is unspecified)
	AddMembers(ctx context.Context, key string, values ...V) (int64, error)
	Members(ctx context.Context, key string) []V
	IsMember(ctx context.Context, key string, value V) bool
	RemoveMembers(ctx context.Context, key string, values ...V) (int64, error)

	// Sorted set
	AddScored(ctx context.Context, key string, value V, score float64) (bool, error)
	Score(ctx context.Context, key string, value V) (float64, bool)
	RangeByRank(ctx context.Context, key string, start, stop int64) []V
	RangeByScore(ctx context.Context, key string, min, max float64) []Scored[V]
}

// Scored is a sorted-set member with its score.
type Scored[V any] struct {
	Value V
	Score float64
}

// TTLState tells apart the cases a bare TTL number conflates.
type TTLState int

const (
	TTLUnknown    TTLState = iota // the lookup failed
	TTLMissing                    // no such key (never written, deleted or expired)
	TTLPersistent                 // key exists without expiry
	TTLExpiring                   // key exists and expires after Remaining
)

// Legacy TTL sentinels carried in TTL.Remaining.
const (
	NoExpiry   time.Duration = -1
	KeyMissing time.Duration = -2
)

// TTL is the result of TimeToLive. Remaining is NoExpiry for both
// TTLPersistent and TTLUnknown; check State to distinguish them.
type TTL struct {
	Remaining time.Duration
	State     TTLState
}

// Options configure a Cache. Store and Codec are required.
type Options[V any] struct {
	// Required
	Store pr.Store
	Codec c.Codec[V]

	Namespace string // optional key prefix, "<ns>:<key>"
	Logger    Logger // if nil, NopLogger is used
	Hooks     Hooks  // if nil, NopHooks is used
}

func New[V any](opts Options[V]) (Cache[V], error) {
	return newCache[V](opts)
}

// WaitForever makes Acquire block until the lock is obtained or ctx ends.
const WaitForever time.Duration = -1

// Locker hands out named distributed locks.
type Locker interface {
	// GetLock returns a new handle; every handle is a distinct holder.
	GetLock(name string) *Lock
	Close(context.Context) error
}

// LockerOptions configure a Locker. Coordinator is required.
type LockerOptions struct {
	Coordinator co.Coordinator

	Namespace string // optional lock-name prefix
	Logger    Logger
	Hooks     Hooks
	// DefaultLease applies when Acquire gets lease 0; such locks are renewed
	// by a watchdog every DefaultLease/3 until released. 0 => 30s.
	DefaultLease time.Duration
	// RetryInterval caps the pause between attempts while waiting, in case a
	// release notification is lost. 0 => 100ms.
	RetryInterval time.Duration
}

func NewLocker(opts LockerOptions) (Locker, error) {
	return newLocker(opts)
}
