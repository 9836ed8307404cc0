package redis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/storekit/provider"
)

var ErrNilClient = errors.New("redis provider: nil client")

// Redis is a provider.Store over any go-redis UniversalClient
// (single node, sentinel failover or cluster).
type Redis struct {
	rdb         goredis.UniversalClient
	closeClient bool
}

var _ pr.Store = (*Redis)(nil)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this provider exclusively owns the client
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Redis{rdb: cfg.Client, closeClient: cfg.CloseClient}, nil
}

// Client exposes the underlying client for commands the Store does not cover.
func (p *Redis) Client() goredis.UniversalClient { return p.rdb }

func (p *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := p.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, translate(err)
	}
	return n > 0, nil
}

func (p *Redis) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := p.rdb.Del(ctx, keys...).Result()
	return n, translate(err)
}

func (p *Redis) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		// EXPIRE with a non-positive TTL deletes the key; mirror that without
		// relying on sub-millisecond rounding in PEXPIRE.
		n, err := p.rdb.Del(ctx, key).Result()
		return n > 0, translate(err)
	}
	ok, err := p.rdb.PExpire(ctx, key, ttl).Result()
	return ok, translate(err)
}

func (p *Redis) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := p.rdb.PTTL(ctx, key).Result()
	if err != nil {
		return 0, translate(err)
	}
	// go-redis passes -1/-2 through unscaled
	switch d {
	case -1:
		return pr.TTLPersistent, nil
	case -2:
		return pr.TTLMissing, nil
	}
	return d, nil
}

func (p *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := p.rdb.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, translate(err) // transport/server error
	}
	return b, true, nil
}

func (p *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0 // negative TTLs mean "no expiry" here, never KEEPTTL
	}
	return translate(p.rdb.Set(ctx, key, value, ttl).Err())
}

func (p *Redis) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	n, err := p.rdb.IncrBy(ctx, key, delta).Result()
	return n, translate(err)
}

func (p *Redis) HSet(ctx context.Context, key string, fields map[string][]byte) error {
	if len(fields) == 0 {
		return nil
	}
	args := make([]any, 0, 2*len(fields))
	for f, v := range fields {
		args = append(args, f, v)
	}
	return translate(p.rdb.HSet(ctx, key, args...).Err())
}

func (p *Redis) HGet(ctx context.Context, key, field string) ([]byte, bool, error) {
	b, err := p.rdb.HGet(ctx, key, field).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, translate(err)
	}
	return b, true, nil
}

func (p *Redis) HGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	m, err := p.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, translate(err)
	}
	out := make(map[string][]byte, len(m))
	for f, v := range m {
		out[f] = []byte(v)
	}
	return out, nil
}

func (p *Redis) HDel(ctx context.Context, key string, fields ...string) (int64, error) {
	if len(fields) == 0 {
		return 0, nil
	}
	n, err := p.rdb.HDel(ctx, key, fields...).Result()
	return n, translate(err)
}

func (p *Redis) LPush(ctx context.Context, key string, values ...[]byte) (int64, error) {
	n, err := p.rdb.LPush(ctx, key, args(values)...).Result()
	return n, translate(err)
}

func (p *Redis) RPush(ctx context.Context, key string, values ...[]byte) (int64, error) {
	n, err := p.rdb.RPush(ctx, key, args(values)...).Result()
	return n, translate(err)
}

func (p *Redis) LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	ss, err := p.rdb.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, translate(err)
	}
	return bytesOf(ss), nil
}

func (p *Redis) LSet(ctx context.Context, key string, index int64, value []byte) error {
	return translate(p.rdb.LSet(ctx, key, index, value).Err())
}

func (p *Redis) LRem(ctx context.Context, key string, count int64, value []byte) (int64, error) {
	n, err := p.rdb.LRem(ctx, key, count, value).Result()
	return n, translate(err)
}

func (p *Redis) SAdd(ctx context.Context, key string, members ...[]byte) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}
	n, err := p.rdb.SAdd(ctx, key, args(members)...).Result()
	return n, translate(err)
}

func (p *Redis) SMembers(ctx context.Context, key string) ([][]byte, error) {
	ss, err := p.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, translate(err)
	}
	return bytesOf(ss), nil
}

func (p *Redis) SIsMember(ctx context.Context, key string, member []byte) (bool, error) {
	ok, err := p.rdb.SIsMember(ctx, key, member).Result()
	return ok, translate(err)
}

func (p *Redis) SRem(ctx context.Context, key string, members ...[]byte) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}
	n, err := p.rdb.SRem(ctx, key, args(members)...).Result()
	return n, translate(err)
}

func (p *Redis) ZAdd(ctx context.Context, key string, member []byte, score float64) (bool, error) {
	n, err := p.rdb.ZAdd(ctx, key, goredis.Z{Score: score, Member: member}).Result()
	if err != nil {
		return false, translate(err)
	}
	return n == 1, nil
}

func (p *Redis) ZScore(ctx context.Context, key string, member []byte) (float64, bool, error) {
	s, err := p.rdb.ZScore(ctx, key, string(member)).Result()
	if err == goredis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, translate(err)
	}
	return s, true, nil
}

func (p *Redis) ZRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	ss, err := p.rdb.ZRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, translate(err)
	}
	return bytesOf(ss), nil
}

func (p *Redis) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]pr.ScoredMember, error) {
	zs, err := p.rdb.ZRangeByScoreWithScores(ctx, key, &goredis.ZRangeBy{
		Min: scoreArg(min),
		Max: scoreArg(max),
	}).Result()
	if err != nil {
		return nil, translate(err)
	}
	out := make([]pr.ScoredMember, 0, len(zs))
	for _, z := range zs {
		var m []byte
		switch v := z.Member.(type) {
		case string:
			m = []byte(v)
		case []byte:
			m = v
		default:
			m = []byte(fmt.Sprint(v))
		}
		out = append(out, pr.ScoredMember{Member: m, Score: z.Score})
	}
	return out, nil
}

// Close releases the underlying redis client only when this provider owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (p *Redis) Close(context.Context) error {
	if p.closeClient {
		if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

func args(vs [][]byte) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

func bytesOf(ss []string) [][]byte {
	out := make([][]byte, len(ss))
	for i, s := range ss {
		out[i] = []byte(s)
	}
	return out
}

func scoreArg(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "+inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// translate maps server replies onto provider sentinels; client and network
// errors pass through unchanged.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var re goredis.Error
	if !errors.As(err, &re) {
		return err
	}
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "WRONGTYPE"):
		return errors.Join(pr.ErrWrongType, err)
	case strings.HasPrefix(msg, "ERR index out of range"), strings.HasPrefix(msg, "ERR no such key"):
		return errors.Join(pr.ErrIndexOutOfRange, err)
	case strings.HasPrefix(msg, "OOM"):
		return errors.Join(pr.ErrRejected, err)
	case strings.HasPrefix(msg, "ERR value is not an integer"), strings.HasPrefix(msg, "ERR increment or decrement would overflow"):
		return errors.Join(pr.ErrNotInteger, err)
	}
	return err
}
