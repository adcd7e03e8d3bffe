package cache

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// Limits bound every partition. Zero disables a limit.
type Limits struct {
	MaxEntries int
	EntryTTL   time.Duration
}

type RedisConfig struct {
	Client redis.Options
	Prefix string
	Limits
}

type RedisOption func(*RedisConfig)

func WithRedisServer(addr, password string, db int) RedisOption {
	return func(c *RedisConfig) {
		c.Client.Addr = addr
		c.Client.Password = password
		c.Client.DB = db
	}
}

func WithRedisPool(size, minIdle int, timeout time.Duration) RedisOption {
	return func(c *RedisConfig) {
		c.Client.PoolSize = size
		c.Client.MinIdleConns = minIdle
		c.Client.PoolTimeout = timeout
	}
}

func WithRedisTimeouts(dial, read, write time.Duration) RedisOption {
	return func(c *RedisConfig) {
		c.Client.DialTimeout = dial
		c.Client.ReadTimeout = read
		c.Client.WriteTimeout = write
	}
}

// WithRedisPrefix namespaces every key, so several deployments can share
// one Redis.
func WithRedisPrefix(prefix string) RedisOption {
	return func(c *RedisConfig) { c.Prefix = prefix }
}

func WithRedisLimits(maxEntries int, ttl time.Duration) RedisOption {
	return func(c *RedisConfig) { c.Limits = Limits{MaxEntries: maxEntries, EntryTTL: ttl} }
}

type MemoryConfig struct {
	Limits
	CleanupInterval time.Duration
}

type MemoryOption func(*MemoryConfig)

// WithMemoryLimits bounds every partition. Past maxEntries the least
// recently used entry is evicted.
func WithMemoryLimits(maxEntries int, ttl time.Duration) MemoryOption {
	return func(c *MemoryConfig) { c.Limits = Limits{MaxEntries: maxEntries, EntryTTL: ttl} }
}

// WithMemoryCleanup sets how often expired entries are swept. Expired
// entries are never served either way.
func WithMemoryCleanup(interval time.Duration) MemoryOption {
	return func(c *MemoryConfig) { c.CleanupInterval = interval }
}
