package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStorage implements Storage on Redis. Partition names live in a sorted
// set scored by creation time; each partition is a hash of HashKey(key) to
// the JSON encoded Entry.
type RedisStorage struct {
	client     *redis.Client
	prefix     string
	maxEntries int
	ttl        time.Duration
}

// NewRedisStorage creates a Redis backed partition storage.
func NewRedisStorage(opts ...RedisOption) (*RedisStorage, error) {
	cfg := &RedisConfig{
		Client: redis.Options{
			Addr:         "localhost:6379",
			PoolSize:     10,
			PoolTimeout:  30 * time.Second,
			MinIdleConns: 2,
		},
		Prefix: "finpwa",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	client := redis.NewClient(&cfg.Client)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return NewRedisStorageFromClient(client, cfg.Prefix, cfg.MaxEntries, cfg.EntryTTL), nil
}

// NewRedisStorageFromClient wraps an existing client.
func NewRedisStorageFromClient(client *redis.Client, prefix string, maxEntries int, ttl time.Duration) *RedisStorage {
	return &RedisStorage{
		client:     client,
		prefix:     prefix,
		maxEntries: maxEntries,
		ttl:        ttl,
	}
}

// Client returns underlying redis client.
func (s *RedisStorage) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStorage) Close() error {
	return s.client.Close()
}

func (s *RedisStorage) Open(ctx context.Context, name string) (Partition, error) {
	err := s.client.ZAddNX(ctx, s.indexKey(), redis.Z{
		Score:  float64(time.Now().UnixNano()),
		Member: name,
	}).Err()
	if err != nil {
		return nil, fmt.Errorf("open partition %s: %w", name, err)
	}
	return &redisPartition{storage: s, name: name}, nil
}

func (s *RedisStorage) view(name string) Partition {
	return &redisPartition{storage: s, name: name}
}

func (s *RedisStorage) Has(ctx context.Context, name string) (bool, error) {
	err := s.client.ZScore(ctx, s.indexKey(), name).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *RedisStorage) Keys(ctx context.Context) ([]string, error) {
	return s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
}

func (s *RedisStorage) Delete(ctx context.Context, name string) (bool, error) {
	pipe := s.client.TxPipeline()
	removed := pipe.ZRem(ctx, s.indexKey(), name)
	pipe.Unlink(ctx, s.partitionKey(name))
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("delete partition %s: %w", name, err)
	}
	return removed.Val() > 0, nil
}

func (s *RedisStorage) Match(ctx context.Context, key string) (*Entry, error) {
	names, err := s.Keys(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		e, err := s.view(name).Match(ctx, key)
		if err == nil {
			return e, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			return nil, err
		}
	}
	return nil, ErrCacheMiss
}

func (s *RedisStorage) indexKey() string {
	return GenerateKey(s.prefix, "partitions")
}

func (s *RedisStorage) partitionKey(name string) string {
	return GenerateKey(s.prefix, "p:"+name)
}

type redisPartition struct {
	storage *RedisStorage
	name    string
}

func (p *redisPartition) Name() string { return p.name }

func (p *redisPartition) Put(ctx context.Context, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	c := p.storage.client
	key := p.storage.partitionKey(p.name)

	pipe := c.TxPipeline()
	pipe.ZAddNX(ctx, p.storage.indexKey(), redis.Z{Score: float64(time.Now().UnixNano()), Member: p.name})
	pipe.HSet(ctx, key, HashKey(entry.Key), data)
	size := pipe.HLen(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("put %s in %s: %w", entry.Key, p.name, err)
	}

	if limit := p.storage.maxEntries; limit > 0 && size.Val() > int64(limit) {
		return p.evictOldest(ctx, int(size.Val())-limit)
	}
	return nil
}

func (p *redisPartition) Match(ctx context.Context, key string) (*Entry, error) {
	data, err := p.storage.client.HGet(ctx, p.storage.partitionKey(p.name), HashKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode entry: %w", err)
	}
	if ttl := p.storage.ttl; ttl > 0 && time.Since(e.StoredAt) > ttl {
		_, _ = p.Delete(ctx, key)
		return nil, ErrCacheMiss
	}
	return &e, nil
}

func (p *redisPartition) Delete(ctx context.Context, key string) (bool, error) {
	n, err := p.storage.client.HDel(ctx, p.storage.partitionKey(p.name), HashKey(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Keys returns the stored request keys ordered by store time.
func (p *redisPartition) Keys(ctx context.Context) ([]string, error) {
	entries, err := p.entries(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys, nil
}

func (p *redisPartition) entries(ctx context.Context) ([]Entry, error) {
	vals, err := p.storage.client.HVals(ctx, p.storage.partitionKey(p.name)).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(vals))
	for _, v := range vals {
		var e Entry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			continue // Skip invalid JSON
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].StoredAt.Before(entries[j].StoredAt) })
	return entries, nil
}

func (p *redisPartition) evictOldest(ctx context.Context, n int) error {
	entries, err := p.entries(ctx)
	if err != nil {
		return err
	}
	if n > len(entries) {
		n = len(entries)
	}
	fields := make([]string, 0, n)
	for _, e := range entries[:n] {
		fields = append(fields, HashKey(e.Key))
	}
	if len(fields) == 0 {
		return nil
	}
	return p.storage.client.HDel(ctx, p.storage.partitionKey(p.name), fields...).Err()
}
