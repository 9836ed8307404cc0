// Package provider defines the store client consumed by storekit's cache facade.
//
// A Store executes one command per call against a key-value server that holds
// five structures per key: scalar, hash, list, set and sorted set. Values are
// opaque bytes; the facade owns (de)serialization. Implementations must be safe
// for concurrent use and must return exactly the bytes previously written.
//
// Implementations translate their client's failures into the sentinel errors
// below where one applies. Anything else is treated as a transport failure.
package provider

import (
	"context"
	"errors"
	"time"
)

// TTL sentinels returned by Store.TTL.
const (
	// TTLPersistent means the key exists and has no expiry.
	TTLPersistent time.Duration = -1
	// TTLMissing means the key does not exist.
	TTLMissing time.Duration = -2
)

var (
	// ErrIndexOutOfRange is returned by LSet when the index is outside the list
	// or the list does not exist.
	ErrIndexOutOfRange = errors.New("provider: index out of range")
	// ErrWrongType is returned when a command targets a key holding another structure.
	ErrWrongType = errors.New("provider: operation against a key holding the wrong kind of value")
	// ErrNotInteger is returned by IncrBy when the stored value is not an integer
	// or the result would overflow.
	ErrNotInteger = errors.New("provider: value is not an integer or out of range")
	// ErrRejected is returned when the store refuses a write under memory
	// pressure (ristretto admission, Redis OOM).
	ErrRejected = errors.New("provider: write rejected by store")
)

// ScoredMember is one sorted-set member with its score.
type ScoredMember struct {
	Member []byte
	Score  float64
}

// Store is a structure-aware byte store.
type Store interface {
	// Keys
	Exists(ctx context.Context, key string) (bool, error)
	// Del removes keys and returns how many existed.
	Del(ctx context.Context, keys ...string) (int64, error)
	// Expire attaches ttl to key. Returns false if the key does not exist.
	// A non-positive ttl deletes the key.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// TTL returns the remaining lifetime, TTLPersistent or TTLMissing.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Scalar
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set overwrites key (any structure) and clears its expiry; ttl > 0 attaches a new one.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// IncrBy atomically adds delta to the integer at key (missing = 0).
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)

	// Hash
	HSet(ctx context.Context, key string, fields map[string][]byte) error
	HGet(ctx context.Context, key, field string) ([]byte, bool, error)
	HGetAll(ctx context.Context, key string) (map[string][]byte, error)
	HDel(ctx context.Context, key string, fields ...string) (int64, error)

	// List
	// LPush inserts values one by one at the head, so the last value ends up first.
	LPush(ctx context.Context, key string, values ...[]byte) (int64, error)
	RPush(ctx context.Context, key string, values ...[]byte) (int64, error)
	LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)
	LSet(ctx context.Context, key string, index int64, value []byte) error
	// LRem removes occurrences of value: count > 0 from the head, count < 0 from
	// the tail, count == 0 all of them.
	LRem(ctx context.Context, key string, count int64, value []byte) (int64, error)

	// Set
	SAdd(ctx context.Context, key string, members ...[]byte) (int64, error)
	SMembers(ctx context.Context, key string) ([][]byte, error)
	SIsMember(ctx context.Context, key string, member []byte) (bool, error)
	SRem(ctx context.Context, key string, members ...[]byte) (int64, error)

	// Sorted set
	// ZAdd returns true when member was inserted, false when only its score changed.
	ZAdd(ctx context.Context, key string, member []byte, score float64) (bool, error)
	ZScore(ctx context.Context, key string, member []byte) (float64, bool, error)
	// ZRange returns members by rank, ascending by score then member bytes.
	ZRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)
	// ZRangeByScore returns members with min <= score <= max, ascending.
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]ScoredMember, error)

	// Close releases resources.
	Close(ctx context.Context) error
}
