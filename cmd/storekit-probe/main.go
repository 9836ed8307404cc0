// Command storekit-probe checks that the configured backend serves every
// structure the cache facade uses and that locks can be taken and released.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/storekit"
	"github.com/unkn0wn-root/storekit/codec"
	"github.com/unkn0wn-root/storekit/config"
	co "github.com/unkn0wn-root/storekit/coordinator"
	localco "github.com/unkn0wn-root/storekit/coordinator/local"
	redisco "github.com/unkn0wn-root/storekit/coordinator/redis"
	asynchook "github.com/unkn0wn-root/storekit/hooks/async"
	zaplog "github.com/unkn0wn-root/storekit/log/zap"
	pr "github.com/unkn0wn-root/storekit/provider"
	redisstore "github.com/unkn0wn-root/storekit/provider/redis"
	rstore "github.com/unkn0wn-root/storekit/provider/ristretto"
	"github.com/unkn0wn-root/storekit/sloghooks"
)

type sample struct {
	ID    string    `json:"id"`
	Count int       `json:"count"`
	At    time.Time `json:"at"`
}

func main() {
	dir := "."
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	cfg, err := config.Load(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	zl, err := zaplog.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer zl.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Error("probe failed", zap.Error(err))
		os.Exit(1)
	}
	zl.Info("probe passed", zap.String("backend", cfg.Backend))
}

func run(ctx context.Context, cfg *config.Config, zl *zap.Logger) error {
	store, coord, closeAll, err := backend(cfg)
	if err != nil {
		return err
	}
	defer closeAll()

	hooks := asynchook.New(sloghooks.New(slog.Default(), sloghooks.Options{ReadContainedEvery: 10}), 1, 256)
	defer hooks.Close()
	log := zaplog.ZapLogger{L: zl}

	cache, err := storekit.New[sample](storekit.Options[sample]{
		Store:     store,
		Codec:     codec.JSON[sample]{},
		Namespace: cfg.Cache.Namespace,
		Logger:    log,
		Hooks:     hooks,
	})
	if err != nil {
		return err
	}

	lopts := cfg.Lock.LockerOptions()
	lopts.Coordinator, lopts.Logger, lopts.Hooks = coord, log, hooks
	locker, err := storekit.NewLocker(lopts)
	if err != nil {
		return err
	}

	key := "probe:" + uuid.NewString()
	defer cache.DeleteMany(context.Background(), []string{key, key + ":n", key + ":h", key + ":l", key + ":z"}) //nolint:errcheck

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	checks := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"value", func(ctx context.Context) error {
			want := sample{ID: key, Count: 1, At: time.Now().UTC().Truncate(time.Second)}
			if err := cache.SetValue(ctx, key, want, time.Minute); err != nil {
				return err
			}
			got, ok := cache.GetValue(ctx, key)
			if !ok || got.ID != want.ID || got.Count != want.Count || !got.At.Equal(want.At) {
				return fmt.Errorf("read back %+v (found=%v), want %+v", got, ok, want)
			}
			if ttl := cache.TimeToLive(ctx, key); ttl.State != storekit.TTLExpiring {
				return fmt.Errorf("ttl state %d, want expiring", ttl.State)
			}
			return nil
		}},
		{"counter", func(ctx context.Context) error {
			n, err := cache.Increment(ctx, key+":n", 5)
			if err == nil && n != 5 {
				err = fmt.Errorf("counter %d, want 5", n)
			}
			return err
		}},
		{"hash", func(ctx context.Context) error {
			if err := cache.SetField(ctx, key+":h", "f", sample{ID: "f"}); err != nil {
				return err
			}
			if _, ok := cache.GetField(ctx, key+":h", "f"); !ok {
				return errors.New("field not found")
			}
			return nil
		}},
		{"list", func(ctx context.Context) error {
			if _, err := cache.PushRight(ctx, key+":l", sample{ID: "a"}, sample{ID: "b"}); err != nil {
				return err
			}
			if got := cache.Range(ctx, key+":l", 0, -1); len(got) != 2 {
				return fmt.Errorf("list length %d, want 2", len(got))
			}
			return nil
		}},
		{"sorted set", func(ctx context.Context) error {
			if _, err := cache.AddScored(ctx, key+":z", sample{ID: "a"}, 1); err != nil {
				return err
			}
			if got := cache.RangeByScore(ctx, key+":z", 0, 1); len(got) != 1 {
				return fmt.Errorf("range by score returned %d members, want 1", len(got))
			}
			return nil
		}},
		{"lock", func(ctx context.Context) error {
			lk := locker.GetLock(key)
			ok, err := lk.Acquire(ctx, time.Second, 0)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("lock contended")
			}
			return lk.Release(ctx)
		}},
	}

	for _, c := range checks {
		start := time.Now()
		if err := c.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
		zl.Debug("check passed", zap.String("check", c.name), zap.Duration("took", time.Since(start)))
	}
	if d := hooks.Dropped(); d > 0 {
		zl.Warn("hook events dropped", zap.Uint64("dropped", d))
	}
	return nil
}

func backend(cfg *config.Config) (pr.Store, co.Coordinator, func(), error) {
	switch cfg.Backend {
	case config.BackendLocal:
		store, err := rstore.New(cfg.Local.RistrettoConfig())
		if err != nil {
			return nil, nil, nil, err
		}
		return store, localco.New(), func() { _ = store.Close(context.Background()) }, nil
	default:
		rdb := goredis.NewUniversalClient(cfg.Redis.UniversalOptions())
		store, err := redisstore.New(redisstore.Config{Client: rdb})
		if err != nil {
			return nil, nil, nil, err
		}
		coord, err := redisco.New(redisco.Config{Client: rdb, ChannelPrefix: cfg.Lock.ChannelPrefix})
		if err != nil {
			return nil, nil, nil, err
		}
		return store, coord, func() { _ = rdb.Close() }, nil
	}
}
