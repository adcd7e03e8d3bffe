package cache

import (
	"context"
	"errors"
	"net/http"
	"time"
)

var (
	ErrCacheMiss         = errors.New("cache: key not found")
	ErrPartitionNotFound = errors.New("cache: partition not found")
)

// Entry is a stored request/response pair. Key is the normalized request key
// produced by RequestKey.
type Entry struct {
	Key      string      `json:"key"`
	Method   string      `json:"method"`
	URL      string      `json:"url"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header,omitempty"`
	Body     []byte      `json:"body,omitempty"`
	StoredAt time.Time   `json:"stored_at"`
}

// Clone returns a deep copy so callers never share header maps or body slices.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.Header = e.Header.Clone()
	if e.Body != nil {
		c.Body = append([]byte(nil), e.Body...)
	}
	return &c
}

// Size is the number of body bytes held by the entry.
func (e *Entry) Size() int {
	return len(e.Body)
}

// Partition is a named bucket of request/response pairs.
type Partition interface {
	Name() string
	Put(ctx context.Context, entry *Entry) error
	Match(ctx context.Context, key string) (*Entry, error)
	Delete(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context) ([]string, error)
}

// Storage is the set of partitions. Match searches every partition in
// creation order and returns the first hit.
type Storage interface {
	Open(ctx context.Context, name string) (Partition, error)
	Has(ctx context.Context, name string) (bool, error)
	Keys(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) (bool, error)
	Match(ctx context.Context, key string) (*Entry, error)
	Close() error
}

// viewer hands out a read handle without registering the partition name.
type viewer interface {
	view(name string) Partition
}

// Prune deletes every partition whose name is not in keep and returns the
// deleted names.
func Prune(ctx context.Context, s Storage, keep ...string) ([]string, error) {
	names, err := s.Keys(ctx)
	if err != nil {
		return nil, err
	}

	keepSet := make(map[string]struct{}, len(keep))
	for _, k := range keep {
		keepSet[k] = struct{}{}
	}

	var deleted []string
	for _, name := range names {
		if _, ok := keepSet[name]; ok {
			continue
		}
		ok, err := s.Delete(ctx, name)
		if err != nil {
			return deleted, err
		}
		if ok {
			deleted = append(deleted, name)
		}
	}
	return deleted, nil
}
