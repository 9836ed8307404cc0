// Package redis implements coordinator.Coordinator on Redis.
//
// A lock is a hash at the lock name mapping holder -> re-entrancy count, with
// the lease as the key's PEXPIRE. All state transitions run as Lua scripts so
// they are atomic on the server. Releases PUBLISH on a per-lock channel that
// blocked acquirers subscribe to.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	co "github.com/unkn0wn-root/storekit/coordinator"
)

var ErrNilClient = errors.New("redis coordinator: nil client")

const releasedMsg = "released"

var (
	acquireScript = goredis.NewScript(`
if redis.call('exists', KEYS[1]) == 0 or redis.call('hexists', KEYS[1], ARGV[2]) == 1 then
	local n = redis.call('hincrby', KEYS[1], ARGV[2], 1)
	redis.call('pexpire', KEYS[1], ARGV[1])
	return {1, n}
end
return {0, redis.call('pttl', KEYS[1])}
`)

	renewScript = goredis.NewScript(`
if redis.call('hexists', KEYS[1], ARGV[2]) == 1 then
	redis.call('pexpire', KEYS[1], ARGV[1])
	return 1
end
return 0
`)

	releaseScript = goredis.NewScript(`
if redis.call('hexists', KEYS[1], ARGV[2]) == 0 then
	return -1
end
local n = redis.call('hincrby', KEYS[1], ARGV[2], -1)
if n > 0 then
	redis.call('pexpire', KEYS[1], ARGV[1])
	return n
end
redis.call('del', KEYS[1])
redis.call('publish', ARGV[3], ARGV[4])
return 0
`)

	forceReleaseScript = goredis.NewScript(`
if redis.call('del', KEYS[1]) == 1 then
	redis.call('publish', ARGV[1], ARGV[2])
	return 1
end
return 0
`)

	statusScript = goredis.NewScript(`
local n = redis.call('hget', KEYS[1], ARGV[1])
if not n then
	n = 0
end
return {redis.call('exists', KEYS[1]), tonumber(n)}
`)
)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this coordinator exclusively owns the client
	// ChannelPrefix names release channels as <prefix><lock name>.
	// Defaults to "storekit_lock__channel:".
	ChannelPrefix string
}

type Coordinator struct {
	rdb         goredis.UniversalClient
	closeClient bool
	chPrefix    string
}

var _ co.Coordinator = (*Coordinator)(nil)

func New(cfg Config) (*Coordinator, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	p := cfg.ChannelPrefix
	if p == "" {
		p = "storekit_lock__channel:"
	}
	return &Coordinator{rdb: cfg.Client, closeClient: cfg.CloseClient, chPrefix: p}, nil
}

func (c *Coordinator) channel(name string) string { return c.chPrefix + name }

func (c *Coordinator) TryAcquire(ctx context.Context, name, holder string, lease time.Duration) (co.Grant, error) {
	res, err := acquireScript.Run(ctx, c.rdb, []string{name}, leaseMillis(lease), holder).Int64Slice()
	if err != nil {
		return co.Grant{}, err
	}
	if len(res) != 2 {
		return co.Grant{}, fmt.Errorf("redis coordinator: unexpected acquire reply %v", res)
	}
	if res[0] == 1 {
		return co.Grant{Acquired: true, HoldCount: res[1]}, nil
	}
	return co.Grant{RetryAfter: time.Duration(res[1]) * time.Millisecond}, nil
}

func (c *Coordinator) Renew(ctx context.Context, name, holder string, lease time.Duration) (bool, error) {
	n, err := renewScript.Run(ctx, c.rdb, []string{name}, leaseMillis(lease), holder).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *Coordinator) Release(ctx context.Context, name, holder string, lease time.Duration) (int64, error) {
	n, err := releaseScript.Run(ctx, c.rdb, []string{name},
		leaseMillis(lease), holder, c.channel(name), releasedMsg).Int64()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, co.ErrNotHeld
	}
	return n, nil
}

func (c *Coordinator) ForceRelease(ctx context.Context, name string) (bool, error) {
	n, err := forceReleaseScript.Run(ctx, c.rdb, []string{name}, c.channel(name), releasedMsg).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *Coordinator) Status(ctx context.Context, name, holder string) (co.Status, error) {
	res, err := statusScript.Run(ctx, c.rdb, []string{name}, holder).Int64Slice()
	if err != nil {
		return co.Status{}, err
	}
	if len(res) != 2 {
		return co.Status{}, fmt.Errorf("redis coordinator: unexpected status reply %v", res)
	}
	return co.Status{Locked: res[0] == 1, HoldCount: res[1]}, nil
}

func (c *Coordinator) Subscribe(ctx context.Context, name string) (co.Subscription, error) {
	ps := c.rdb.Subscribe(ctx, c.channel(name))
	// wait for the subscribe confirmation so no release slips through
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	s := &subscription{ps: ps, ch: make(chan struct{}, 1)}
	go s.forward()
	return s, nil
}

// Close releases the underlying redis client only when this coordinator owns it.
func (c *Coordinator) Close(context.Context) error {
	if c.closeClient {
		if err := c.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

type subscription struct {
	ps *goredis.PubSub
	ch chan struct{}
}

func (s *subscription) forward() {
	for range s.ps.Channel() {
		select {
		case s.ch <- struct{}{}:
		default: // a signal is already pending
		}
	}
}

func (s *subscription) C() <-chan struct{} { return s.ch }
func (s *subscription) Close() error       { return s.ps.Close() }

func leaseMillis(d time.Duration) int64 {
	ms := d.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return ms
}
