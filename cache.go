package storekit

import (
	"context"
	"fmt"
	"strings"
	"time"

	c "github.com/unkn0wn-root/storekit/codec"
	"github.com/unkn0wn-root/storekit/internal/keys"
	pr "github.com/unkn0wn-root/storekit/provider"
)

type cache[V any] struct {
	ns    string
	store pr.Store
	codec c.Codec[V]
	policy
}

func newCache[V any](opts Options[V]) (*cache[V], error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("storekit: store is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("storekit: codec is required")
	}
	return &cache[V]{
		ns:     opts.Namespace,
		store:  opts.Store,
		codec:  opts.Codec,
		policy: newPolicy(opts.Logger, opts.Hooks),
	}, nil
}

func (c *cache[V]) Close(ctx context.Context) error {
	return c.store.Close(ctx)
}

func (c *cache[V]) key(k string) string { return keys.Join(c.ns, k) }

// ---- keys

func (c *cache[V]) Exists(ctx context.Context, key string) bool {
	ok, err := c.store.Exists(ctx, c.key(key))
	return failOpen(c.policy, "exists", key, ok, err, false)
}

func (c *cache[V]) Delete(ctx context.Context, key string) (bool, error) {
	n, err := c.store.Del(ctx, c.key(key))
	if err != nil {
		return false, c.fail("delete", key, err)
	}
	return n > 0, nil
}

func (c *cache[V]) DeleteMany(ctx context.Context, ks []string) (int64, error) {
	if len(ks) == 0 {
		return 0, nil
	}
	n, err := c.store.Del(ctx, keys.JoinAll(c.ns, ks)...)
	if err != nil {
		return 0, c.fail("deleteMany", strings.Join(ks, ","), err)
	}
	return n, nil
}

func (c *cache[V]) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.store.Expire(ctx, c.key(key), ttl)
	if err != nil {
		return false, c.fail("expire", key, err)
	}
	return ok, nil
}

func (c *cache[V]) TimeToLive(ctx context.Context, key string) TTL {
	d, err := c.store.TTL(ctx, c.key(key))
	if err != nil {
		c.contain("timeToLive", key, err)
		return TTL{Remaining: NoExpiry, State: TTLUnknown}
	}
	switch d {
	case pr.TTLMissing:
		return TTL{Remaining: KeyMissing, State: TTLMissing}
	case pr.TTLPersistent:
		return TTL{Remaining: NoExpiry, State: TTLPersistent}
	}
	return TTL{Remaining: d, State: TTLExpiring}
}

// ---- scalar

// SetValue writes value; ttl > 0 attaches an expiry in the same command,
// otherwise any previous expiry is cleared.
func (c *cache[V]) SetValue(ctx context.Context, key string, value V, ttl time.Duration) error {
	b, err := c.encode(value)
	if err == nil {
		err = c.store.Set(ctx, c.key(key), b, ttl)
	}
	if err != nil {
		return c.fail("setValue", key, err)
	}
	return nil
}

func (c *cache[V]) GetValue(ctx context.Context, key string) (V, bool) {
	var zero V
	b, ok, err := c.store.Get(ctx, c.key(key))
	if err == nil && !ok {
		return zero, false
	}
	v, err := c.decodeAfter(b, err)
	if err != nil {
		c.contain("getValue", key, err)
		return zero, false
	}
	return v, true
}

// Increment is a write: a lost or wrong count must never be returned silently.
func (c *cache[V]) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	n, err := c.store.IncrBy(ctx, c.key(key), delta)
	if err != nil {
		return 0, c.fail("increment", key, err)
	}
	return n, nil
}

// ---- hash

func (c *cache[V]) SetField(ctx context.Context, key, field string, value V) error {
	b, err := c.encode(value)
	if err == nil {
		err = c.store.HSet(ctx, c.key(key), map[string][]byte{field: b})
	}
	if err != nil {
		return c.fail("setField", key+":"+field, err)
	}
	return nil
}

func (c *cache[V]) SetFields(ctx context.Context, key string, fields map[string]V) error {
	if len(fields) == 0 {
		return nil
	}
	raw := make(map[string][]byte, len(fields))
	for f, v := range fields {
		b, err := c.encode(v)
		if err != nil {
			return c.fail("setFields", key, err)
		}
		raw[f] = b
	}
	if err := c.store.HSet(ctx, c.key(key), raw); err != nil {
		return c.fail("setFields", key, err)
	}
	return nil
}

func (c *cache[V]) GetField(ctx context.Context, key, field string) (V, bool) {
	var zero V
	b, ok, err := c.store.HGet(ctx, c.key(key), field)
	if err == nil && !ok {
		return zero, false
	}
	v, err := c.decodeAfter(b, err)
	if err != nil {
		c.contain("getField", key+":"+field, err)
		return zero, false
	}
	return v, true
}

func (c *cache[V]) GetAllFields(ctx context.Context, key string) map[string]V {
	raw, err := c.store.HGetAll(ctx, c.key(key))
	out := make(map[string]V, len(raw))
	if err == nil {
		for f, b := range raw {
			var v V
			if v, err = c.decode(b); err != nil {
				break
			}
			out[f] = v
		}
	}
	if err != nil {
		c.contain("getAllFields", key, err)
		return map[string]V{}
	}
	return out
}

func (c *cache[V]) DeleteFields(ctx context.Context, key string, fields ...string) (int64, error) {
	if len(fields) == 0 {
		return 0, nil
	}
	n, err := c.store.HDel(ctx, c.key(key), fields...)
	if err != nil {
		return 0, c.fail("deleteFields", key, err)
	}
	return n, nil
}

// ---- list

func (c *cache[V]) PushLeft(ctx context.Context, key string, values ...V) (int64, error) {
	return c.push(ctx, "pushLeft", key, values, c.store.LPush)
}

func (c *cache[V]) PushRight(ctx context.Context, key string, values ...V) (int64, error) {
	return c.push(ctx, "pushRight", key, values, c.store.RPush)
}

func (c *cache[V]) push(ctx context.Context, op, key string, values []V,
	fn func(context.Context, string, ...[]byte) (int64, error)) (int64, error) {
	if len(values) == 0 {
		return 0, c.fail(op, key, ErrNoValues)
	}
	raw, err := c.encodeAll(values)
	if err != nil {
		return 0, c.fail(op, key, err)
	}
	n, err := fn(ctx, c.key(key), raw...)
	if err != nil {
		return 0, c.fail(op, key, err)
	}
	return n, nil
}

func (c *cache[V]) Range(ctx context.Context, key string, start, stop int64) []V {
	raw, err := c.store.LRange(ctx, c.key(key), start, stop)
	return c.decodeList("range", key, raw, err)
}

func (c *cache[V]) SetAt(ctx context.Context, key string, index int64, value V) error {
	b, err := c.encode(value)
	if err == nil {
		err = c.store.LSet(ctx, c.key(key), index, b)
	}
	if err != nil {
		return c.fail("setAt", fmt.Sprintf("%s:%d", key, index), err)
	}
	return nil
}

func (c *cache[V]) RemoveValue(ctx context.Context, key string, count int64, value V) (int64, error) {
	b, err := c.encode(value)
	if err != nil {
		return 0, c.fail("removeValue", key, err)
	}
	n, err := c.store.LRem(ctx, c.key(key), count, b)
	if err != nil {
		return 0, c.fail("removeValue", key, err)
	}
	return n, nil
}

// ---- set

func (c *cache[V]) AddMembers(ctx context.Context, key string, values ...V) (int64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	raw, err := c.encodeAll(values)
	if err != nil {
		return 0, c.fail("addMembers", key, err)
	}
	n, err := c.store.SAdd(ctx, c.key(key), raw...)
	if err != nil {
		return 0, c.fail("addMembers", key, err)
	}
	return n, nil
}

func (c *cache[V]) Members(ctx context.Context, key string) []V {
	raw, err := c.store.SMembers(ctx, c.key(key))
	return c.decodeList("members", key, raw, err)
}

func (c *cache[V]) IsMember(ctx context.Context, key string, value V) bool {
	b, err := c.encode(value)
	ok := false
	if err == nil {
		ok, err = c.store.SIsMember(ctx, c.key(key), b)
	}
	return failOpen(c.policy, "isMember", key, ok, err, false)
}

func (c *cache[V]) RemoveMembers(ctx context.Context, key string, values ...V) (int64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	raw, err := c.encodeAll(values)
	if err != nil {
		return 0, c.fail("removeMembers", key, err)
	}
	n, err := c.store.SRem(ctx, c.key(key), raw...)
	if err != nil {
		return 0, c.fail("removeMembers", key, err)
	}
	return n, nil
}

// ---- sorted set

func (c *cache[V]) AddScored(ctx context.Context, key string, value V, score float64) (bool, error) {
	b, err := c.encode(value)
	added := false
	if err == nil {
		added, err = c.store.ZAdd(ctx, c.key(key), b, score)
	}
	if err != nil {
		return false, c.fail("addScored", key, err)
	}
	return added, nil
}

func (c *cache[V]) Score(ctx context.Context, key string, value V) (float64, bool) {
	b, err := c.encode(value)
	var (
		s  float64
		ok bool
	)
	if err == nil {
		s, ok, err = c.store.ZScore(ctx, c.key(key), b)
	}
	if err != nil {
		c.contain("score", key, err)
		return 0, false
	}
	return s, ok
}

func (c *cache[V]) RangeByRank(ctx context.Context, key string, start, stop int64) []V {
	raw, err := c.store.ZRange(ctx, c.key(key), start, stop)
	return c.decodeList("rangeByRank", key, raw, err)
}

func (c *cache[V]) RangeByScore(ctx context.Context, key string, min, max float64) []Scored[V] {
	raw, err := c.store.ZRangeByScore(ctx, c.key(key), min, max)
	out := make([]Scored[V], 0, len(raw))
	if err == nil {
		for _, sm := range raw {
			var v V
			if v, err = c.decode(sm.Member); err != nil {
				break
			}
			out = append(out, Scored[V]{Value: v, Score: sm.Score})
		}
	}
	if err != nil {
		c.contain("rangeByScore", key, err)
		return []Scored[V]{}
	}
	return out
}

// ---- codec plumbing

func (c *cache[V]) encode(v V) ([]byte, error) {
	b, err := c.codec.Encode(v)
	if err != nil {
		return nil, &SerializationError{Err: err}
	}
	return b, nil
}

func (c *cache[V]) encodeAll(vs []V) ([][]byte, error) {
	out := make([][]byte, len(vs))
	for i, v := range vs {
		b, err := c.encode(v)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

func (c *cache[V]) decode(b []byte) (V, error) {
	v, err := c.codec.Decode(b)
	if err != nil {
		var zero V
		return zero, &SerializationError{Decode: true, Err: err}
	}
	return v, nil
}

// decodeAfter decodes b unless the preceding store call already failed.
func (c *cache[V]) decodeAfter(b []byte, err error) (V, error) {
	if err != nil {
		var zero V
		return zero, err
	}
	return c.decode(b)
}

// decodeList decodes a collection read; any failure empties the whole result.
func (c *cache[V]) decodeList(op, key string, raw [][]byte, err error) []V {
	out := make([]V, 0, len(raw))
	if err == nil {
		for _, b := range raw {
			var v V
			if v, err = c.decode(b); err != nil {
				break
			}
			out = append(out, v)
		}
	}
	if err != nil {
		c.contain(op, key, err)
		return []V{}
	}
	return out
}
