package cache

import (
	"context"
	"errors"
)

// LayeredStorage implements two-level storage (L1: memory, L2: any Storage, usually Redis).
// Writes go through to L2 first; reads fill L1 on an L2 hit.
type LayeredStorage struct {
	l1 *MemoryStorage
	l2 Storage
}

// NewLayeredStorage creates a layered storage over l2.
func NewLayeredStorage(l2 Storage, opts ...MemoryOption) *LayeredStorage {
	return &LayeredStorage{
		l1: NewMemoryStorage(opts...),
		l2: l2,
	}
}

func (ls *LayeredStorage) Open(ctx context.Context, name string) (Partition, error) {
	p2, err := ls.l2.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &layeredPartition{l1: ls.l1.open(name), l2: p2}, nil
}

func (ls *LayeredStorage) Has(ctx context.Context, name string) (bool, error) {
	return ls.l2.Has(ctx, name)
}

func (ls *LayeredStorage) Keys(ctx context.Context) ([]string, error) {
	return ls.l2.Keys(ctx)
}

func (ls *LayeredStorage) Delete(ctx context.Context, name string) (bool, error) {
	_, _ = ls.l1.Delete(ctx, name)
	return ls.l2.Delete(ctx, name)
}

func (ls *LayeredStorage) Match(ctx context.Context, key string) (*Entry, error) {
	names, err := ls.l2.Keys(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if p1 := ls.l1.view(name); p1 != nil {
			if e, err := p1.Match(ctx, key); err == nil {
				return e, nil
			}
		}

		p2, err := ls.view(ctx, name)
		if err != nil {
			return nil, err
		}
		if p2 == nil {
			continue
		}
		e, err := p2.Match(ctx, key)
		if err == nil {
			_ = ls.l1.open(name).Put(ctx, e)
			return e, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			return nil, err
		}
	}
	return nil, ErrCacheMiss
}

// view returns a read handle on an L2 partition that leaves the partition
// index untouched, so a lookup never brings back a pruned partition.
func (ls *LayeredStorage) view(ctx context.Context, name string) (Partition, error) {
	if v, ok := ls.l2.(viewer); ok {
		return v.view(name), nil
	}
	ok, err := ls.l2.Has(ctx, name)
	if err != nil || !ok {
		return nil, err
	}
	return ls.l2.Open(ctx, name)
}

// Close closes both storage layers.
func (ls *LayeredStorage) Close() error {
	_ = ls.l1.Close()
	return ls.l2.Close()
}

type layeredPartition struct {
	l1 *memoryPartition
	l2 Partition
}

func (lp *layeredPartition) Name() string { return lp.l2.Name() }

func (lp *layeredPartition) Put(ctx context.Context, entry *Entry) error {
	if err := lp.l2.Put(ctx, entry); err != nil {
		return err
	}
	_ = lp.l1.Put(ctx, entry)
	return nil
}

func (lp *layeredPartition) Match(ctx context.Context, key string) (*Entry, error) {
	if e, err := lp.l1.Match(ctx, key); err == nil {
		return e, nil
	}

	e, err := lp.l2.Match(ctx, key)
	if err != nil {
		return nil, err
	}

	_ = lp.l1.Put(ctx, e)
	return e, nil
}

func (lp *layeredPartition) Delete(ctx context.Context, key string) (bool, error) {
	_, _ = lp.l1.Delete(ctx, key)
	return lp.l2.Delete(ctx, key)
}

func (lp *layeredPartition) Keys(ctx context.Context) ([]string, error) {
	return lp.l2.Keys(ctx)
}
