// Package ristretto is an in-process provider.Store on top of dgraph-io/ristretto.
//
// It keeps every structure in a bounded ristretto cache, so entries may be
// evicted under cost pressure exactly like a remote store under maxmemory.
// Commands are serialized behind one mutex, which makes IncrBy and the
// read-modify-write structure commands atomic. Useful for single-process
// deployments and tests.
package ristretto

import (
	"bytes"
	"context"
	"errors"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	rc "github.com/dgraph-io/ristretto"

	pr "github.com/unkn0wn-root/storekit/provider"
)

type Config struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	Metrics     bool
	// Cost computes the admission cost of an entry. Defaults to its byte size.
	Cost func(key string, approxBytes int) int64
}

type Provider struct {
	mu      sync.Mutex
	c       *rc.Cache
	cost    func(string, int) int64
	maxCost int64
	now     func() time.Time
}

var _ pr.Store = (*Provider)(nil)

func New(cfg Config) (*Provider, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	p := &Provider{c: c, cost: cfg.Cost, maxCost: cfg.MaxCost, now: time.Now}
	if p.cost == nil {
		p.cost = func(_ string, n int) int64 { return int64(n) + 1 }
	}
	return p, nil
}

type kind uint8

const (
	kindString kind = iota + 1
	kindHash
	kindList
	kindSet
	kindZSet
)

type entry struct {
	kind     kind
	str      []byte
	hash     map[string][]byte
	list     [][]byte
	set      map[string]struct{}
	zset     map[string]float64
	expireAt time.Time // zero => no TTL
}

func (e *entry) size() int {
	n := len(e.str)
	for f, v := range e.hash {
		n += len(f) + len(v)
	}
	for _, v := range e.list {
		n += len(v)
	}
	for m := range e.set {
		n += len(m)
	}
	for m := range e.zset {
		n += len(m) + 8
	}
	return n
}

func (e *entry) empty() bool {
	switch e.kind {
	case kindHash:
		return len(e.hash) == 0
	case kindList:
		return len(e.list) == 0
	case kindSet:
		return len(e.set) == 0
	case kindZSet:
		return len(e.zset) == 0
	}
	return false
}

// load returns the live entry for key, dropping it if expired. Caller holds mu.
func (p *Provider) load(key string) *entry {
	v, ok := p.c.Get(key)
	if !ok {
		return nil
	}
	e, _ := v.(*entry)
	if e == nil {
		// self-heal: drop unexpected entry shape
		p.drop(key)
		return nil
	}
	if !e.expireAt.IsZero() && !p.now().Before(e.expireAt) {
		p.drop(key)
		return nil
	}
	return e
}

// typed loads key and checks its structure. Caller holds mu.
func (p *Provider) typed(key string, k kind) (*entry, error) {
	e := p.load(key)
	if e == nil {
		return nil, nil
	}
	if e.kind != k {
		return nil, pr.ErrWrongType
	}
	return e, nil
}

// save (re)admits e under key and waits until it is visible. A write that
// ristretto refuses, or that costs more than the whole cache, drops the key
// the way an eviction would and reports ErrRejected. Caller holds mu.
func (p *Provider) save(key string, e *entry) error {
	cost := p.cost(key, e.size())
	if cost > p.maxCost || !p.c.Set(key, e, cost) {
		p.drop(key)
		return pr.ErrRejected
	}
	p.c.Wait()
	if v, ok := p.c.Get(key); !ok || v != any(e) {
		p.drop(key)
		return pr.ErrRejected
	}
	return nil
}

// settle removes emptied collections and refreshes the admission cost. Caller holds mu.
func (p *Provider) settle(key string, e *entry) error {
	if e.empty() {
		p.drop(key)
		return nil
	}
	return p.save(key, e)
}

func (p *Provider) drop(key string) {
	p.c.Del(key)
	p.c.Wait()
}

func (p *Provider) Exists(_ context.Context, key string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.load(key) != nil, nil
}

func (p *Provider) Del(_ context.Context, keys ...string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var n int64
	for _, k := range keys {
		if p.load(k) != nil {
			p.drop(k)
			n++
		}
	}
	return n, nil
}

func (p *Provider) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.load(key)
	if e == nil {
		return false, nil
	}
	if ttl <= 0 {
		p.drop(key)
		return true, nil
	}
	e.expireAt = p.now().Add(ttl)
	return true, nil
}

func (p *Provider) TTL(_ context.Context, key string) (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.load(key)
	if e == nil {
		return pr.TTLMissing, nil
	}
	if e.expireAt.IsZero() {
		return pr.TTLPersistent, nil
	}
	return e.expireAt.Sub(p.now()), nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, err := p.typed(key, kindString)
	if err != nil || e == nil {
		return nil, false, err
	}
	return clone(e.str), true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := &entry{kind: kindString, str: clone(value)}
	if ttl > 0 {
		e.expireAt = p.now().Add(ttl)
	}
	return p.save(key, e)
}

func (p *Provider) IncrBy(_ context.Context, key string, delta int64) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, err := p.typed(key, kindString)
	if err != nil {
		return 0, err
	}
	var cur int64
	if e != nil {
		cur, err = strconv.ParseInt(string(e.str), 10, 64)
		if err != nil {
			return 0, pr.ErrNotInteger
		}
	} else {
		e = &entry{kind: kindString}
	}
	if (delta > 0 && cur > math.MaxInt64-delta) || (delta < 0 && cur < math.MinInt64-delta) {
		return 0, pr.ErrNotInteger
	}
	cur += delta
	e.str = strconv.AppendInt(nil, cur, 10)
	if err := p.save(key, e); err != nil { // keeps expireAt like INCRBY
		return 0, err
	}
	return cur, nil
}

func (p *Provider) HSet(_ context.Context, key string, fields map[string][]byte) error {
	if len(fields) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	e, err := p.typed(key, kindHash)
	if err != nil {
		return err
	}
	if e == nil {
		e = &entry{kind: kindHash, hash: make(map[string][]byte, len(fields))}
	}
	for f, v := range fields {
		e.hash[f] = clone(v)
	}
	return p.save(key, e)
}

func (p *Provider) HGet(_ context.Context, key, field string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, err := p.typed(key, kindHash)
	if err != nil || e == nil {
		return nil, false, err
	}
	v, ok := e.hash[field]
	if !ok {
		return nil, false, nil
	}
	return clone(v), true, nil
}

func (p *Provider) HGetAll(_ context.Context, key string) (map[string][]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, err := p.typed(key, kindHash)
	if err != nil {
		return nil, err
	}
	out := map[string][]byte{}
	if e != nil {
		for f, v := range e.hash {
			out[f] = clone(v)
		}
	}
	return out, nil
}

func (p *Provider) HDel(_ context.Context, key string, fields ...string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, err := p.typed(key, kindHash)
	if err != nil || e == nil {
		return 0, err
	}
	var n int64
	for _, f := range fields {
		if _, ok := e.hash[f]; ok {
			delete(e.hash, f)
			n++
		}
	}
	if err := p.settle(key, e); err != nil {
		return 0, err
	}
	return n, nil
}

func (p *Provider) LPush(_ context.Context, key string, values ...[]byte) (int64, error) {
	return p.push(key, values, true)
}

func (p *Provider) RPush(_ context.Context, key string, values ...[]byte) (int64, error) {
	return p.push(key, values, false)
}

func (p *Provider) push(key string, values [][]byte, head bool) (int64, error) {
	if len(values) == 0 {
		return 0, errors.New("ristretto: wrong number of arguments for push")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	e, err := p.typed(key, kindList)
	if err != nil {
		return 0, err
	}
	if e == nil {
		e = &entry{kind: kindList}
	}
	for _, v := range values {
		if head {
			e.list = append([][]byte{clone(v)}, e.list...)
		} else {
			e.list = append(e.list, clone(v))
		}
	}
	if err := p.save(key, e); err != nil {
		return 0, err
	}
	return int64(len(e.list)), nil
}

func (p *Provider) LRange(_ context.Context, key string, start, stop int64) ([][]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, err := p.typed(key, kindList)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return [][]byte{}, nil
	}
	lo, hi, ok := span(start, stop, int64(len(e.list)))
	if !ok {
		return [][]byte{}, nil
	}
	out := make([][]byte, 0, hi-lo+1)
	for _, v := range e.list[lo : hi+1] {
		out = append(out, clone(v))
	}
	return out, nil
}

func (p *Provider) LSet(_ context.Context, key string, index int64, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, err := p.typed(key, kindList)
	if err != nil {
		return err
	}
	if e == nil {
		return pr.ErrIndexOutOfRange
	}
	n := int64(len(e.list))
	if index < 0 {
		index += n
	}
	if index < 0 || index >= n {
		return pr.ErrIndexOutOfRange
	}
	e.list[index] = clone(value)
	return p.save(key, e)
}

func (p *Provider) LRem(_ context.Context, key string, count int64, value []byte) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, err := p.typed(key, kindList)
	if err != nil || e == nil {
		return 0, err
	}
	limit := count
	if limit < 0 {
		limit = -limit
	}
	drop := make([]bool, len(e.list))
	var removed int64
	visit := func(i int) bool {
		if bytes.Equal(e.list[i], value) {
			drop[i] = true
			removed++
		}
		return limit == 0 || removed < limit
	}
	if count >= 0 {
		for i := 0; i < len(e.list) && visit(i); i++ {
		}
	} else {
		for i := len(e.list) - 1; i >= 0 && visit(i); i-- {
		}
	}
	if removed == 0 {
		return 0, nil
	}
	kept := e.list[:0:0]
	for i, v := range e.list {
		if !drop[i] {
			kept = append(kept, v)
		}
	}
	e.list = kept
	if err := p.settle(key, e); err != nil {
		return 0, err
	}
	return removed, nil
}

func (p *Provider) SAdd(_ context.Context, key string, members ...[]byte) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	e, err := p.typed(key, kindSet)
	if err != nil {
		return 0, err
	}
	if e == nil {
		e = &entry{kind: kindSet, set: make(map[string]struct{}, len(members))}
	}
	var n int64
	for _, m := range members {
		if _, ok := e.set[string(m)]; !ok {
			e.set[string(m)] = struct{}{}
			n++
		}
	}
	if err := p.save(key, e); err != nil {
		return 0, err
	}
	return n, nil
}

func (p *Provider) SMembers(_ context.Context, key string) ([][]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, err := p.typed(key, kindSet)
	if err != nil {
		return nil, err
	}
	out := [][]byte{}
	if e != nil {
		for m := range e.set {
			out = append(out, []byte(m))
		}
	}
	return out, nil
}

func (p *Provider) SIsMember(_ context.Context, key string, member []byte) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, err := p.typed(key, kindSet)
	if err != nil || e == nil {
		return false, err
	}
	_, ok := e.set[string(member)]
	return ok, nil
}

func (p *Provider) SRem(_ context.Context, key string, members ...[]byte) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, err := p.typed(key, kindSet)
	if err != nil || e == nil {
		return 0, err
	}
	var n int64
	for _, m := range members {
		if _, ok := e.set[string(m)]; ok {
			delete(e.set, string(m))
			n++
		}
	}
	if err := p.settle(key, e); err != nil {
		return 0, err
	}
	return n, nil
}

func (p *Provider) ZAdd(_ context.Context, key string, member []byte, score float64) (bool, error) {
	if math.IsNaN(score) {
		return false, errors.New("ristretto: score is not a valid float")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	e, err := p.typed(key, kindZSet)
	if err != nil {
		return false, err
	}
	if e == nil {
		e = &entry{kind: kindZSet, zset: make(map[string]float64)}
	}
	_, existed := e.zset[string(member)]
	e.zset[string(member)] = score
	if err := p.save(key, e); err != nil {
		return false, err
	}
	return !existed, nil
}

func (p *Provider) ZScore(_ context.Context, key string, member []byte) (float64, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, err := p.typed(key, kindZSet)
	if err != nil || e == nil {
		return 0, false, err
	}
	s, ok := e.zset[string(member)]
	return s, ok, nil
}

func (p *Provider) ZRange(_ context.Context, key string, start, stop int64) ([][]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, err := p.typed(key, kindZSet)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return [][]byte{}, nil
	}
	sorted := ordered(e.zset)
	lo, hi, ok := span(start, stop, int64(len(sorted)))
	if !ok {
		return [][]byte{}, nil
	}
	out := make([][]byte, 0, hi-lo+1)
	for _, sm := range sorted[lo : hi+1] {
		out = append(out, sm.Member)
	}
	return out, nil
}

func (p *Provider) ZRangeByScore(_ context.Context, key string, min, max float64) ([]pr.ScoredMember, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, err := p.typed(key, kindZSet)
	if err != nil {
		return nil, err
	}
	out := []pr.ScoredMember{}
	if e == nil {
		return out, nil
	}
	for _, sm := range ordered(e.zset) {
		if sm.Score >= min && sm.Score <= max {
			out = append(out, sm)
		}
	}
	return out, nil
}

func (p *Provider) Close(_ context.Context) error {
	p.c.Wait()
	p.c.Close()
	return nil
}

// Helper to expose metrics if desired by the application (not part of provider.Store).
func (p *Provider) Metrics() *rc.Metrics { return p.c.Metrics }

// span clamps an inclusive [start, stop] range with negative indices counted
// from the tail, the way LRANGE and ZRANGE do.
func span(start, stop, n int64) (int64, int64, bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop, true
}

// ordered sorts by score, ties by member bytes.
func ordered(z map[string]float64) []pr.ScoredMember {
	out := make([]pr.ScoredMember, 0, len(z))
	for m, s := range z {
		out = append(out, pr.ScoredMember{Member: []byte(m), Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return bytes.Compare(out[i].Member, out[j].Member) < 0
	})
	return out
}

func clone(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return append([]byte(nil), b...)
}
