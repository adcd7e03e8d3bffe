package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
)

// Header names set on every published message.
const (
	HeaderTraceID     = "trace_id"
	HeaderContentType = "content_type"
)

// Header is a Kafka record header.
type Header = kafka.Header

// Message is one record of a batch. Value is sent as is when it is []byte or
// string and JSON-encoded otherwise.
type Message struct {
	Key   []byte
	Value interface{}
}

type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes to any topic through one shared writer.
type Producer struct {
	w    writer
	comp string
	now  func() time.Time
}

func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := &ProducerConfig{
		RequiredAcks: -1,
		Compression:  "snappy",
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
		BatchSize:    100,
		BatchBytes:   1 << 20,
		Linger:       10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka producer: brokers are required")
	}

	var bal kafka.Balancer = &kafka.LeastBytes{}
	if cfg.HashByKey {
		bal = &kafka.Hash{}
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     bal,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  parseCompression(cfg.Compression),
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		BatchSize:    cfg.BatchSize,
		BatchBytes:   int64(cfg.BatchBytes),
		BatchTimeout: cfg.Linger,
		Async:        cfg.Async,
	}
	registerProducerMetrics()
	return &Producer{w: w, comp: cfg.Compression, now: time.Now}, nil
}

// Publish sends one value to topic. A trace id header is added unless one
// of headers already carries it.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}, headers ...Header) error {
	msg, err := p.message(topic, key, value, headers)
	if err != nil {
		return err
	}
	return p.write(ctx, topic, msg)
}

// PublishMessage publishes a keyless JSON payload. It satisfies logger.Publisher.
func (p *Producer) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.Publish(ctx, topic, nil, payload)
}

// PublishBatch sends messages in one write. All of them share a trace id.
func (p *Producer) PublishBatch(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	trace := Header{Key: HeaderTraceID, Value: []byte(uuid.NewString())}
	msgs := make([]kafka.Message, 0, len(messages))
	for _, m := range messages {
		km, err := p.message(topic, m.Key, m.Value, []Header{trace})
		if err != nil {
			return err
		}
		msgs = append(msgs, km)
	}
	return p.write(ctx, topic, msgs...)
}

func (p *Producer) write(ctx context.Context, topic string, msgs ...kafka.Message) error {
	start := p.now()
	err := p.w.WriteMessages(ctx, msgs...)

	var size int
	for _, m := range msgs {
		size += len(m.Value)
	}
	observeProducer(topic, p.comp, size, len(msgs), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("write %s: %w", topic, err)
	}
	return nil
}

func (p *Producer) message(topic string, key []byte, value interface{}, headers []Header) (kafka.Message, error) {
	v, ctype, err := encodeValue(value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s message: %w", topic, err)
	}
	if !hasHeader(headers, HeaderTraceID) {
		headers = append(headers, Header{Key: HeaderTraceID, Value: []byte(uuid.NewString())})
	}
	headers = append(headers, Header{Key: HeaderContentType, Value: []byte(ctype)})
	return kafka.Message{Topic: topic, Key: key, Value: v, Time: p.now(), Headers: headers}, nil
}

func (p *Producer) Close() error {
	if p.w == nil {
		return nil
	}
	return p.w.Close()
}

func hasHeader(hs []Header, key string) bool {
	for _, h := range hs {
		if h.Key == key {
			return true
		}
	}
	return false
}

func encodeValue(value interface{}) ([]byte, string, error) {
	switch v := value.(type) {
	case []byte:
		return v, "application/octet-stream", nil
	case string:
		return []byte(v), "text/plain", nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, "", err
	}
	return b, "application/json", nil
}

func parseCompression(s string) kafka.Compression {
	switch s {
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Gzip
	}
}

var (
	producerMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "finpwa_kafka_producer_messages_total",
		Help: "Messages published to Kafka by topic and result.",
	}, []string{"topic", "compression", "result"})
	producerBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "finpwa_kafka_producer_bytes_total",
		Help: "Uncompressed payload bytes published.",
	}, []string{"topic"})
	producerLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "finpwa_kafka_producer_publish_seconds",
		Help:    "Time spent in one write call.",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic"})

	producerMetricsOnce sync.Once
)

func registerProducerMetrics() {
	producerMetricsOnce.Do(func() {
		prometheus.MustRegister(producerMessages, producerBytes, producerLatency)
	})
}

func observeProducer(topic, comp string, bytes, count int, took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	producerMessages.WithLabelValues(topic, comp, result).Add(float64(count))
	producerBytes.WithLabelValues(topic).Add(float64(bytes))
	producerLatency.WithLabelValues(topic).Observe(took.Seconds())
}
