// Package config loads storekit settings from storekit.yaml and STOREKIT_*
// environment variables, and turns them into client options.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/unkn0wn-root/storekit"
	rp "github.com/unkn0wn-root/storekit/provider/ristretto"
)

const (
	BackendRedis = "redis"
	BackendLocal = "local"
)

// Config is the root configuration structure
type Config struct {
	Backend string      `mapstructure:"backend"` // redis, local
	Redis   RedisConfig `mapstructure:"redis"`
	Local   LocalConfig `mapstructure:"local"`
	Cache   CacheConfig `mapstructure:"cache"`
	Lock    LockConfig  `mapstructure:"lock"`
	Log     LogConfig   `mapstructure:"log"`
}

// RedisConfig holds the connection settings for the remote store
type RedisConfig struct {
	Addrs        []string      `mapstructure:"addrs"` // one address => single node, several => cluster
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LocalConfig sizes the in-process ristretto store
type LocalConfig struct {
	NumCounters int64 `mapstructure:"num_counters"`
	MaxCost     int64 `mapstructure:"max_cost"`
	BufferItems int64 `mapstructure:"buffer_items"`
	Metrics     bool  `mapstructure:"metrics"`
}

type CacheConfig struct {
	Namespace string `mapstructure:"namespace"`
}

// LockConfig holds the lock facade settings
type LockConfig struct {
	Namespace     string        `mapstructure:"namespace"`
	DefaultLease  time.Duration `mapstructure:"default_lease"`  // watchdog-renewed lease
	RetryInterval time.Duration `mapstructure:"retry_interval"` // max pause between attempts while waiting
	ChannelPrefix string        `mapstructure:"channel_prefix"`
}

// LogConfig defines logging verbosity and output style
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// Load reads storekit.yaml from dir (or the working directory) and overrides
// it with environment variables, e.g. STOREKIT_REDIS_PASSWORD.
// A missing file is not an error; defaults apply.
func Load(dir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("storekit")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("STOREKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults populates viper with fallback values for every key so that
// environment overrides work without a file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("backend", BackendRedis)

	// Redis
	v.SetDefault("redis.addrs", []string{"localhost:6379"})
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 0) // go-redis default
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")

	// Local
	v.SetDefault("local.num_counters", 1_000_000)
	v.SetDefault("local.max_cost", 64<<20)
	v.SetDefault("local.buffer_items", 64)
	v.SetDefault("local.metrics", false)

	v.SetDefault("cache.namespace", "")

	// Lock
	v.SetDefault("lock.namespace", "lock")
	v.SetDefault("lock.default_lease", "30s")
	v.SetDefault("lock.retry_interval", "100ms")
	v.SetDefault("lock.channel_prefix", "")

	// Logger
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendRedis:
		if len(c.Redis.Addrs) == 0 {
			return errors.New("config: redis.addrs is empty")
		}
	case BackendLocal:
		if c.Local.NumCounters <= 0 || c.Local.MaxCost <= 0 || c.Local.BufferItems <= 0 {
			return errors.New("config: local sizes must be positive")
		}
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if c.Lock.DefaultLease < 0 || c.Lock.RetryInterval < 0 {
		return errors.New("config: lock durations must not be negative")
	}
	return nil
}

// UniversalOptions maps the section onto go-redis options. NewUniversalClient
// picks a cluster client when more than one address is given.
func (r RedisConfig) UniversalOptions() *goredis.UniversalOptions {
	return &goredis.UniversalOptions{
		Addrs:        r.Addrs,
		Username:     r.Username,
		Password:     r.Password,
		DB:           r.DB,
		PoolSize:     r.PoolSize,
		DialTimeout:  r.DialTimeout,
		ReadTimeout:  r.ReadTimeout,
		WriteTimeout: r.WriteTimeout,
	}
}

func (l LocalConfig) RistrettoConfig() rp.Config {
	return rp.Config{
		NumCounters: l.NumCounters,
		MaxCost:     l.MaxCost,
		BufferItems: l.BufferItems,
		Metrics:     l.Metrics,
	}
}

// LockerOptions fills the durations and namespace; the caller supplies the
// coordinator, logger and hooks.
func (l LockConfig) LockerOptions() storekit.LockerOptions {
	return storekit.LockerOptions{
		Namespace:     l.Namespace,
		DefaultLease:  l.DefaultLease,
		RetryInterval: l.RetryInterval,
	}
}
