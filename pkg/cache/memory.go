package cache

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryItem struct {
	entry    *Entry
	seq      uint64
	expireAt time.Time
	access   uint64
}

func (m *memoryItem) isExpired(now time.Time) bool {
	return !m.expireAt.IsZero() && now.After(m.expireAt)
}

// MemoryStorage implements Storage in process memory with per-partition LRU eviction.
type MemoryStorage struct {
	mutex         sync.RWMutex
	partitions    map[string]*memoryPartition
	order         []string
	cfg           MemoryConfig
	cleanupTicker *time.Ticker
	done          chan struct{}
	closeOnce     sync.Once
}

// NewMemoryStorage creates an in-memory partition storage.
func NewMemoryStorage(opts ...MemoryOption) *MemoryStorage {
	cfg := MemoryConfig{
		CleanupInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	ms := &MemoryStorage{
		partitions: make(map[string]*memoryPartition),
		cfg:        cfg,
		done:       make(chan struct{}),
	}

	if cfg.EntryTTL > 0 && cfg.CleanupInterval > 0 {
		ms.cleanupTicker = time.NewTicker(cfg.CleanupInterval)
		go ms.cleanupExpired()
	}
	return ms
}

func (ms *MemoryStorage) Open(_ context.Context, name string) (Partition, error) {
	return ms.open(name), nil
}

func (ms *MemoryStorage) open(name string) *memoryPartition {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	if p, ok := ms.partitions[name]; ok {
		return p
	}
	p := &memoryPartition{
		name:       name,
		items:      make(map[string]*memoryItem),
		maxEntries: ms.cfg.MaxEntries,
		ttl:        ms.cfg.EntryTTL,
	}
	ms.partitions[name] = p
	ms.order = append(ms.order, name)
	return p
}

// view returns the named partition, or nil when it does not exist.
func (ms *MemoryStorage) view(name string) Partition {
	if p := ms.lookup(name); p != nil {
		return p
	}
	return nil
}

func (ms *MemoryStorage) lookup(name string) *memoryPartition {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()
	return ms.partitions[name]
}

func (ms *MemoryStorage) Has(_ context.Context, name string) (bool, error) {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()
	_, ok := ms.partitions[name]
	return ok, nil
}

func (ms *MemoryStorage) Keys(_ context.Context) ([]string, error) {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()
	return append([]string(nil), ms.order...), nil
}

func (ms *MemoryStorage) Delete(_ context.Context, name string) (bool, error) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	if _, ok := ms.partitions[name]; !ok {
		return false, nil
	}
	delete(ms.partitions, name)
	for i, n := range ms.order {
		if n == name {
			ms.order = append(ms.order[:i], ms.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (ms *MemoryStorage) Match(ctx context.Context, key string) (*Entry, error) {
	ms.mutex.RLock()
	parts := make([]*memoryPartition, 0, len(ms.order))
	for _, name := range ms.order {
		parts = append(parts, ms.partitions[name])
	}
	ms.mutex.RUnlock()

	for _, p := range parts {
		if e, err := p.Match(ctx, key); err == nil {
			return e, nil
		}
	}
	return nil, ErrCacheMiss
}

func (ms *MemoryStorage) cleanupExpired() {
	for {
		select {
		case <-ms.cleanupTicker.C:
			ms.mutex.RLock()
			parts := make([]*memoryPartition, 0, len(ms.partitions))
			for _, p := range ms.partitions {
				parts = append(parts, p)
			}
			ms.mutex.RUnlock()

			now := time.Now()
			for _, p := range parts {
				p.removeExpired(now)
			}
		case <-ms.done:
			return
		}
	}
}

// Close stops the cleanup ticker.
func (ms *MemoryStorage) Close() error {
	ms.closeOnce.Do(func() {
		if ms.cleanupTicker != nil {
			ms.cleanupTicker.Stop()
		}
		close(ms.done)
	})
	return nil
}

type memoryPartition struct {
	name       string
	mutex      sync.Mutex
	items      map[string]*memoryItem
	maxEntries int
	ttl        time.Duration
	clock      uint64
}

func (mp *memoryPartition) Name() string { return mp.name }

func (mp *memoryPartition) Put(_ context.Context, entry *Entry) error {
	mp.mutex.Lock()
	defer mp.mutex.Unlock()

	mp.clock++
	item, exists := mp.items[entry.Key]
	if !exists && mp.maxEntries > 0 && len(mp.items) >= mp.maxEntries {
		mp.evictLRU()
	}

	var expireAt time.Time
	if mp.ttl > 0 {
		expireAt = time.Now().Add(mp.ttl)
	}
	seq := mp.clock
	if exists {
		seq = item.seq
	}
	mp.items[entry.Key] = &memoryItem{
		entry:    entry.Clone(),
		seq:      seq,
		expireAt: expireAt,
		access:   mp.clock,
	}
	return nil
}

func (mp *memoryPartition) Match(_ context.Context, key string) (*Entry, error) {
	mp.mutex.Lock()
	defer mp.mutex.Unlock()

	item, exists := mp.items[key]
	if !exists {
		return nil, ErrCacheMiss
	}
	if item.isExpired(time.Now()) {
		delete(mp.items, key)
		return nil, ErrCacheMiss
	}

	mp.clock++
	item.access = mp.clock
	return item.entry.Clone(), nil
}

func (mp *memoryPartition) Delete(_ context.Context, key string) (bool, error) {
	mp.mutex.Lock()
	defer mp.mutex.Unlock()

	_, ok := mp.items[key]
	delete(mp.items, key)
	return ok, nil
}

// Keys returns the stored request keys in insertion order.
func (mp *memoryPartition) Keys(_ context.Context) ([]string, error) {
	mp.mutex.Lock()
	defer mp.mutex.Unlock()

	now := time.Now()
	items := make([]*memoryItem, 0, len(mp.items))
	for _, item := range mp.items {
		if !item.isExpired(now) {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].seq < items[j].seq })

	keys := make([]string, len(items))
	for i, item := range items {
		keys[i] = item.entry.Key
	}
	return keys, nil
}

func (mp *memoryPartition) evictLRU() {
	var oldestKey string
	var oldest uint64
	for key, item := range mp.items {
		if oldestKey == "" || item.access < oldest {
			oldest = item.access
			oldestKey = key
		}
	}
	if oldestKey != "" {
		delete(mp.items, oldestKey)
	}
}

func (mp *memoryPartition) removeExpired(now time.Time) {
	mp.mutex.Lock()
	defer mp.mutex.Unlock()
	for key, item := range mp.items {
		if item.isExpired(now) {
			delete(mp.items, key)
		}
	}
}
