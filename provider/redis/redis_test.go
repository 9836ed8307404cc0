package redis

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/storekit/provider"
)

func TestScoreArg(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{math.Inf(1), "+inf"},
		{math.Inf(-1), "-inf"},
		{1.5, "1.5"},
		{-3, "-3"},
		{1e21, "1e+21"},
	}
	for _, tt := range tests {
		if got := scoreArg(tt.in); got != tt.want {
			t.Errorf("scoreArg(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTranslatePassesThroughNonServerErrors(t *testing.T) {
	plain := errors.New("dial tcp: refused")
	if got := translate(plain); got != plain {
		t.Fatalf("translate changed a transport error: %v", got)
	}
	if translate(nil) != nil {
		t.Fatalf("translate(nil) != nil")
	}
}

func TestNewRequiresClient(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNilClient) {
		t.Fatalf("New without client: %v", err)
	}
}

// integration tests need a scratch Redis: STOREKIT_REDIS_ADDR=localhost:6379
func newIntegration(t *testing.T) (*Redis, string) {
	t.Helper()
	addr := os.Getenv("STOREKIT_REDIS_ADDR")
	if addr == "" {
		t.Skip("STOREKIT_REDIS_ADDR not set")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	p, err := New(Config{Client: rdb, CloseClient: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	prefix := "storekit-test:" + uuid.NewString() + ":"
	t.Cleanup(func() {
		ctx := context.Background()
		iter := rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			rdb.Del(ctx, iter.Val())
		}
		_ = p.Close(ctx)
	})
	return p, prefix
}

func TestRedisScalarAndTTL(t *testing.T) {
	p, ns := newIntegration(t)
	ctx := context.Background()
	k := ns + "k"

	if d, err := p.TTL(ctx, k); err != nil || d != pr.TTLMissing {
		t.Fatalf("TTL missing: %v %v", d, err)
	}
	if err := p.Set(ctx, k, []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if d, _ := p.TTL(ctx, k); d <= 0 || d > time.Minute {
		t.Fatalf("TTL = %v", d)
	}
	if b, ok, err := p.Get(ctx, k); err != nil || !ok || string(b) != "v" {
		t.Fatalf("Get: %q %v %v", b, ok, err)
	}
	if _, err := p.IncrBy(ctx, k, 1); !errors.Is(err, pr.ErrNotInteger) {
		t.Fatalf("IncrBy on text: %v", err)
	}
	if _, err := p.LRange(ctx, k, 0, -1); !errors.Is(err, pr.ErrWrongType) {
		t.Fatalf("LRange on scalar: %v", err)
	}
	if n, err := p.Del(ctx, k, ns+"missing"); err != nil || n != 1 {
		t.Fatalf("Del: %d %v", n, err)
	}
}

func TestRedisStructures(t *testing.T) {
	p, ns := newIntegration(t)
	ctx := context.Background()

	if err := p.HSet(ctx, ns+"h", map[string][]byte{"a": []byte("1"), "b": []byte("2")}); err != nil {
		t.Fatalf("HSet: %v", err)
	}
	if all, err := p.HGetAll(ctx, ns+"h"); err != nil || len(all) != 2 || string(all["b"]) != "2" {
		t.Fatalf("HGetAll: %v %v", all, err)
	}
	if _, ok, err := p.HGet(ctx, ns+"h", "zz"); err != nil || ok {
		t.Fatalf("HGet missing: %v %v", ok, err)
	}

	if _, err := p.RPush(ctx, ns+"l", []byte("a"), []byte("b")); err != nil {
		t.Fatalf("RPush: %v", err)
	}
	if err := p.LSet(ctx, ns+"l", 5, []byte("x")); !errors.Is(err, pr.ErrIndexOutOfRange) {
		t.Fatalf("LSet out of range: %v", err)
	}

	if added, err := p.ZAdd(ctx, ns+"z", []byte("m"), 2); err != nil || !added {
		t.Fatalf("ZAdd: %v %v", added, err)
	}
	if s, ok, err := p.ZScore(ctx, ns+"z", []byte("m")); err != nil || !ok || s != 2 {
		t.Fatalf("ZScore: %v %v %v", s, ok, err)
	}
	if _, ok, err := p.ZScore(ctx, ns+"z", []byte("nope")); err != nil || ok {
		t.Fatalf("ZScore missing: %v %v", ok, err)
	}
	sm, err := p.ZRangeByScore(ctx, ns+"z", math.Inf(-1), math.Inf(1))
	if err != nil || len(sm) != 1 || string(sm[0].Member) != "m" {
		t.Fatalf("ZRangeByScore: %+v %v", sm, err)
	}
}
