package kafka

import (
	"time"

	applogger "FinPWA/pkg/logger"
)

type ProducerOption func(*ProducerConfig)

type ProducerConfig struct {
	Brokers      []string
	RequiredAcks int // -1 waits for all in-sync replicas
	Compression  string
	MaxAttempts  int
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	BatchSize    int
	BatchBytes   int
	Linger       time.Duration
	Async        bool

	// HashByKey keeps every message with the same key on one partition, so
	// journal records of one request class stay ordered.
	HashByKey bool
}

func WithBrokers(brokers []string) ProducerOption {
	return func(c *ProducerConfig) { c.Brokers = brokers }
}

// WithCompression sets gzip, snappy, lz4 or zstd. Anything else means gzip.
func WithCompression(compression string) ProducerOption {
	return func(c *ProducerConfig) { c.Compression = compression }
}

// WithDelivery sets the acknowledgement level and the writer's attempts per batch.
func WithDelivery(requiredAcks, maxAttempts int) ProducerOption {
	return func(c *ProducerConfig) {
		c.RequiredAcks = requiredAcks
		c.MaxAttempts = maxAttempts
	}
}

// WithBatching bounds a batch by message count and bytes, flushing after linger.
func WithBatching(size, bytes int, linger time.Duration) ProducerOption {
	return func(c *ProducerConfig) {
		c.BatchSize = size
		c.BatchBytes = bytes
		c.Linger = linger
	}
}

func WithTimeouts(write, read time.Duration) ProducerOption {
	return func(c *ProducerConfig) {
		c.WriteTimeout = write
		c.ReadTimeout = read
	}
}

// WithAsync makes writes fire-and-forget. Errors only show in metrics.
func WithAsync(async bool) ProducerOption {
	return func(c *ProducerConfig) { c.Async = async }
}

func WithHashByKey(hash bool) ProducerOption {
	return func(c *ProducerConfig) { c.HashByKey = hash }
}

type ConsumerOption func(*ConsumerConfig)

type ConsumerConfig struct {
	Brokers     []string
	GroupID     string
	StartLatest bool // new groups start at the newest offset instead of the oldest
	Workers     int
	BufferSize  int
	RetryMax    int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
	DLQTopic    string
	MinBytes    int
	MaxBytes    int
	Logger      *applogger.Logger
}

func WithConsumerLogger(l *applogger.Logger) ConsumerOption {
	return func(c *ConsumerConfig) { c.Logger = l }
}

func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) { c.Brokers = brokers }
}

func WithConsumerGroupID(groupID string) ConsumerOption {
	return func(c *ConsumerConfig) { c.GroupID = groupID }
}

// WithConsumerStartLatest skips the backlog for a group without committed
// offsets. Push and sync events are stale once missed.
func WithConsumerStartLatest(latest bool) ConsumerOption {
	return func(c *ConsumerConfig) { c.StartLatest = latest }
}

// WithConsumerWorkers sets the worker pool size and its queue length.
func WithConsumerWorkers(workers, buffer int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if workers > 0 {
			c.Workers = workers
		}
		if buffer > 0 {
			c.BufferSize = buffer
		}
	}
}

// WithConsumerRetry sets how many times a failed message is retried and the
// exponential backoff range between attempts.
func WithConsumerRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.RetryMax = max
		c.BackoffMin = backoffMin
		c.BackoffMax = backoffMax
	}
}

// WithConsumerDLQ forwards messages that exhausted their retries to topic.
func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *ConsumerConfig) { c.DLQTopic = topic }
}

func WithConsumerFetch(minBytes, maxBytes int) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.MinBytes = minBytes
		c.MaxBytes = maxBytes
	}
}
