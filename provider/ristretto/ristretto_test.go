package ristretto

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	pr "github.com/unkn0wn-root/storekit/provider"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := New(Config{NumCounters: 10_000, MaxCost: 1 << 20, BufferItems: 64, Metrics: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p
}

func strs(bs [][]byte) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = string(b)
	}
	return out
}

func eq(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error for zero config")
	}
}

func TestExpiryWithFakeClock(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)
	now := time.Unix(1_700_000_000, 0)
	p.now = func() time.Time { return now }

	if err := p.Set(ctx, "k", []byte("v"), 10*time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if d, _ := p.TTL(ctx, "k"); d != 10*time.Second {
		t.Fatalf("TTL = %v", d)
	}

	// INCRBY keeps the expiry of an existing key
	if err := p.Set(ctx, "n", []byte("1"), 10*time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := p.IncrBy(ctx, "n", 1); err != nil {
		t.Fatalf("IncrBy: %v", err)
	}
	if d, _ := p.TTL(ctx, "n"); d != 10*time.Second {
		t.Fatalf("TTL after IncrBy = %v", d)
	}

	now = now.Add(10 * time.Second)
	if _, ok, _ := p.Get(ctx, "k"); ok {
		t.Fatalf("key should be expired at its deadline")
	}
	if d, _ := p.TTL(ctx, "k"); d != pr.TTLMissing {
		t.Fatalf("TTL of expired key = %v", d)
	}
}

func TestExpire(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	if ok, _ := p.Expire(ctx, "missing", time.Second); ok {
		t.Fatalf("Expire on missing key should report false")
	}
	_ = p.Set(ctx, "k", []byte("v"), 0)
	if d, _ := p.TTL(ctx, "k"); d != pr.TTLPersistent {
		t.Fatalf("TTL = %v", d)
	}
	if ok, _ := p.Expire(ctx, "k", 0); !ok {
		t.Fatalf("Expire(0) on existing key should report true")
	}
	if ok, _ := p.Exists(ctx, "k"); ok {
		t.Fatalf("non-positive expiry deletes the key")
	}
}

func TestWrongType(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)
	_ = p.Set(ctx, "k", []byte("v"), 0)

	checks := map[string]error{}
	_, checks["LRange"] = p.LRange(ctx, "k", 0, -1)
	_, checks["SAdd"] = p.SAdd(ctx, "k", []byte("m"))
	_, _, checks["HGet"] = p.HGet(ctx, "k", "f")
	_, checks["ZAdd"] = p.ZAdd(ctx, "k", []byte("m"), 1)
	for name, err := range checks {
		if !errors.Is(err, pr.ErrWrongType) {
			t.Errorf("%s on scalar: %v", name, err)
		}
	}

	_, _ = p.RPush(ctx, "l", []byte("a"))
	if _, _, err := p.Get(ctx, "l"); !errors.Is(err, pr.ErrWrongType) {
		t.Fatalf("Get on list: %v", err)
	}
}

func TestIncrBy(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	if n, err := p.IncrBy(ctx, "n", math.MaxInt64); err != nil || n != math.MaxInt64 {
		t.Fatalf("IncrBy: %d %v", n, err)
	}
	if _, err := p.IncrBy(ctx, "n", 1); !errors.Is(err, pr.ErrNotInteger) {
		t.Fatalf("overflow: %v", err)
	}
	_ = p.Set(ctx, "s", []byte("1.5"), 0)
	if _, err := p.IncrBy(ctx, "s", 1); !errors.Is(err, pr.ErrNotInteger) {
		t.Fatalf("non-integer: %v", err)
	}
}

func TestListOrderingAndRanges(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	_, _ = p.LPush(ctx, "l", []byte("a"), []byte("b"), []byte("c"))
	_, _ = p.RPush(ctx, "l", []byte("d"))

	tests := []struct {
		start, stop int64
		want        []string
	}{
		{0, -1, []string{"c", "b", "a", "d"}},
		{1, 2, []string{"b", "a"}},
		{-2, -1, []string{"a", "d"}},
		{-100, 100, []string{"c", "b", "a", "d"}},
		{3, 1, []string{}},
		{10, 20, []string{}},
	}
	for _, tt := range tests {
		got, err := p.LRange(ctx, "l", tt.start, tt.stop)
		if err != nil {
			t.Fatalf("LRange: %v", err)
		}
		if !eq(strs(got), tt.want) {
			t.Errorf("LRange(%d,%d) = %v, want %v", tt.start, tt.stop, strs(got), tt.want)
		}
	}

	if err := p.LSet(ctx, "l", -1, []byte("D")); err != nil {
		t.Fatalf("LSet negative index: %v", err)
	}
	if err := p.LSet(ctx, "missing", 0, []byte("x")); !errors.Is(err, pr.ErrIndexOutOfRange) {
		t.Fatalf("LSet on missing list: %v", err)
	}
	if _, err := p.LPush(ctx, "l"); err == nil {
		t.Fatalf("push without values should fail")
	}
}

func TestEmptyCollectionsDisappear(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	_, _ = p.SAdd(ctx, "s", []byte("m"))
	_, _ = p.SRem(ctx, "s", []byte("m"))
	_ = p.HSet(ctx, "h", map[string][]byte{"f": []byte("v")})
	_, _ = p.HDel(ctx, "h", "f")
	_, _ = p.RPush(ctx, "l", []byte("x"))
	_, _ = p.LRem(ctx, "l", 0, []byte("x"))

	for _, k := range []string{"s", "h", "l"} {
		if ok, _ := p.Exists(ctx, k); ok {
			t.Errorf("%s should be gone once empty", k)
		}
	}
}

func TestSortedSetTiesOrderByMember(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	_, _ = p.ZAdd(ctx, "z", []byte("b"), 1)
	_, _ = p.ZAdd(ctx, "z", []byte("a"), 1)
	_, _ = p.ZAdd(ctx, "z", []byte("c"), 0)

	got, _ := p.ZRange(ctx, "z", 0, -1)
	if !eq(strs(got), []string{"c", "a", "b"}) {
		t.Fatalf("ZRange = %v", strs(got))
	}
	sm, _ := p.ZRangeByScore(ctx, "z", math.Inf(-1), 0)
	if len(sm) != 1 || string(sm[0].Member) != "c" {
		t.Fatalf("ZRangeByScore = %+v", sm)
	}
	if _, err := p.ZAdd(ctx, "z", []byte("x"), math.NaN()); err == nil {
		t.Fatalf("NaN score should be rejected")
	}
}

func TestReturnedBytesAreCopies(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	in := []byte("value")
	_ = p.Set(ctx, "k", in, 0)
	in[0] = 'X'
	out, _, _ := p.Get(ctx, "k")
	if string(out) != "value" {
		t.Fatalf("stored bytes alias the caller's slice: %q", out)
	}
	out[0] = 'Y'
	again, _, _ := p.Get(ctx, "k")
	if string(again) != "value" {
		t.Fatalf("returned bytes alias the stored value: %q", again)
	}
	if p.Metrics() == nil {
		t.Fatalf("metrics enabled in config")
	}
}

func TestRejectedWritesReportError(t *testing.T) {
	ctx := context.Background()
	p, err := New(Config{NumCounters: 100, MaxCost: 64, BufferItems: 64})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close(ctx)

	big := make([]byte, 200)
	if err := p.Set(ctx, "big", big, 0); !errors.Is(err, pr.ErrRejected) {
		t.Fatalf("oversized Set: %v", err)
	}
	if _, ok, _ := p.Get(ctx, "big"); ok {
		t.Fatalf("rejected value must not be readable")
	}

	// a growing structure that no longer fits is dropped, not half-written
	if _, err := p.RPush(ctx, "l", []byte("a")); err != nil {
		t.Fatalf("RPush small: %v", err)
	}
	if _, err := p.RPush(ctx, "l", big); !errors.Is(err, pr.ErrRejected) {
		t.Fatalf("oversized RPush: %v", err)
	}
	if ok, _ := p.Exists(ctx, "l"); ok {
		t.Fatalf("rejected list should be gone")
	}
	if _, err := p.ZAdd(ctx, "z", big, 1); !errors.Is(err, pr.ErrRejected) {
		t.Fatalf("oversized ZAdd: %v", err)
	}
	if err := p.HSet(ctx, "h", map[string][]byte{"f": big}); !errors.Is(err, pr.ErrRejected) {
		t.Fatalf("oversized HSet: %v", err)
	}
}
