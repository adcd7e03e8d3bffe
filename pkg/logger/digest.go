package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Publisher ships a digest batch. *kafka.Producer satisfies it.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type DigestConfig struct {
	Interval   time.Duration // flush period, default 30s
	MaxEntries int           // distinct lines before an early flush, default 100
	MinLevel   string        // lowest level collected, default "error"
	Topic      string
	Service    string
	Publisher  Publisher
}

// DigestEntry is one distinct log line and how often it was seen.
type DigestEntry struct {
	Service   string         `json:"service,omitempty"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	Caller    string         `json:"caller"`
	Count     int            `json:"count"`
	FirstSeen time.Time      `json:"first_seen"`
	LastSeen  time.Time      `json:"last_seen"`
}

// Digest folds repeated log lines into counted entries and publishes them
// in batches, most frequent first.
type Digest struct {
	cfg      DigestConfig
	minLevel zerolog.Level
	now      func() time.Time
	mu       sync.Mutex
	entries  map[uint64]*DigestEntry
	stop     chan struct{}
	done     chan struct{}
	inflight sync.WaitGroup
	once     sync.Once
}

func NewDigest(cfg DigestConfig) *Digest {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 100
	}
	minLevel, err := zerolog.ParseLevel(cfg.MinLevel)
	if err != nil || cfg.MinLevel == "" {
		minLevel = zerolog.ErrorLevel
	}
	d := &Digest{
		cfg:      cfg,
		minLevel: minLevel,
		now:      time.Now,
		entries:  make(map[uint64]*DigestEntry),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go d.loop()
	return d
}

// Add records one occurrence of a line.
func (d *Digest) Add(level, msg string, fields map[string]any, caller string) {
	key := digestKey(level, msg, fields, caller)
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.entries[key]; ok {
		e.Count++
		e.LastSeen = now
		return
	}
	d.entries[key] = &DigestEntry{
		Service:   d.cfg.Service,
		Level:     level,
		Message:   msg,
		Fields:    fields,
		Caller:    caller,
		Count:     1,
		FirstSeen: now,
		LastSeen:  now,
	}
	if len(d.entries) >= d.cfg.MaxEntries {
		d.flushLocked()
	}
}

// digestKey hashes the line identity. encoding/json sorts map keys, so
// field order does not matter.
func digestKey(level, msg string, fields map[string]any, caller string) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00", level, msg, caller)
	if len(fields) > 0 {
		_ = json.NewEncoder(h).Encode(fields)
	}
	return h.Sum64()
}

func (d *Digest) loop() {
	defer close(d.done)
	t := time.NewTicker(d.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			d.Flush()
		case <-d.stop:
			d.Flush()
			return
		}
	}
}

// Flush publishes the current batch, if any.
func (d *Digest) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flushLocked()
}

func (d *Digest) flushLocked() {
	if len(d.entries) == 0 {
		return
	}
	batch := make([]DigestEntry, 0, len(d.entries))
	for _, e := range d.entries {
		batch = append(batch, *e)
	}
	d.entries = make(map[uint64]*DigestEntry)
	slices.SortStableFunc(batch, func(a, b DigestEntry) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return a.FirstSeen.Compare(b.FirstSeen)
	})

	if d.cfg.Publisher == nil {
		return
	}
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := d.cfg.Publisher.PublishMessage(ctx, d.cfg.Topic, batch); err != nil {
			// The logger itself may be what failed; stderr is the fallback.
			fmt.Fprintf(os.Stderr, "publish log digest: %v\n", err)
		}
	}()
}

// Close flushes what is left and waits for in-flight publishes.
func (d *Digest) Close() {
	d.once.Do(func() { close(d.stop) })
	<-d.done
	d.inflight.Wait()
}
