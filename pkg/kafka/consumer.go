package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	applogger "FinPWA/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
)

// MessageHandler handles the messages of one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads every registered topic within one consumer group and hands
// messages to a worker pool. Messages of one partition are handled one at a
// time, in order. A message is committed once handled, or once forwarded to
// the DLQ after its retries ran out.
type Consumer struct {
	cfg      *ConsumerConfig
	log      *applogger.Logger
	hook     ConsumerHook
	handlers map[string]MessageHandler
	readers  map[string]reader
	dlq      writer

	queue    chan kafka.Message
	stop     chan struct{}
	stopOnce sync.Once
	fetchWg  sync.WaitGroup
	workWg   sync.WaitGroup

	partMu sync.Mutex
	parts  map[string]*sync.Mutex
}

func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:    "finpwa",
		Workers:    1,
		BufferSize: 64,
		RetryMax:   3,
		BackoffMin: 50 * time.Millisecond,
		BackoffMax: 2 * time.Second,
		MinBytes:   1,
		MaxBytes:   10 << 20,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka consumer: brokers are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = applogger.NewNop()
	}

	c := &Consumer{
		cfg:      cfg,
		log:      cfg.Logger,
		hook:     HookChain{},
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]reader),
		queue:    make(chan kafka.Message, cfg.BufferSize),
		stop:     make(chan struct{}),
		parts:    make(map[string]*sync.Mutex),
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.Hash{}}
	}
	registerConsumerMetrics()
	return c, nil
}

// WithConsumerHook installs h around every handler call.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// RegisterHandler routes the messages of handler.Topic() to handler. The
// first handler registered for a topic wins.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("kafka consumer: handler already registered", applogger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// Start opens one reader per registered topic and starts the workers.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return errors.New("kafka consumer: no handlers registered")
	}
	start := kafka.FirstOffset
	if c.cfg.StartLatest {
		start = kafka.LastOffset
	}
	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:     c.cfg.Brokers,
			Topic:       topic,
			GroupID:     c.cfg.GroupID,
			MinBytes:    c.cfg.MinBytes,
			MaxBytes:    c.cfg.MaxBytes,
			StartOffset: start,
		})
	}
	c.run()
	c.log.Info("kafka consumer: started",
		applogger.String("group", c.cfg.GroupID),
		applogger.Int("topics", len(c.readers)),
		applogger.Int("workers", c.cfg.Workers),
	)
	return nil
}

func (c *Consumer) run() {
	for i := 0; i < c.cfg.Workers; i++ {
		c.workWg.Add(1)
		go c.work()
	}
	for topic, r := range c.readers {
		c.fetchWg.Add(1)
		go c.fetch(topic, r)
	}
}

// Stop stops fetching, lets the workers finish what is queued and closes the
// readers. It gives up when ctx expires.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		close(c.stop)
		if err = waitFor(ctx, &c.fetchWg); err == nil {
			close(c.queue)
			err = waitFor(ctx, &c.workWg)
		}
		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.log.Warn("kafka consumer: close reader", applogger.String("topic", topic), applogger.Error(cerr))
			}
		}
		if c.dlq != nil {
			if cerr := c.dlq.Close(); cerr != nil {
				c.log.Warn("kafka consumer: close dlq writer", applogger.Error(cerr))
			}
		}
		if err == nil {
			c.log.Info("kafka consumer: stopped")
		}
	})
	return err
}

func waitFor(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("kafka consumer: stop: %w", ctx.Err())
	case <-done:
		return nil
	}
}

// fetch feeds the queue from one reader. A full queue blocks the reader,
// which is the only backpressure needed.
func (c *Consumer) fetch(topic string, r reader) {
	defer c.fetchWg.Done()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("kafka consumer: fetch failed", applogger.String("topic", topic), applogger.Error(err))
			if !c.sleep(c.cfg.BackoffMax) {
				return
			}
			continue
		}
		select {
		case c.queue <- msg:
			consumerQueueDepth.Set(float64(len(c.queue)))
		case <-c.stop:
			return
		}
	}
}

func (c *Consumer) work() {
	defer c.workWg.Done()
	for msg := range c.queue {
		c.handle(msg)
	}
}

func (c *Consumer) handle(msg kafka.Message) {
	h, ok := c.handlers[msg.Topic]
	if !ok {
		return
	}
	lock := c.partitionLock(msg.Topic, msg.Partition)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	attempts, err := c.process(h, msg)
	result := "ok"
	if err != nil {
		result = "failed"
		c.log.Error("kafka consumer: handle failed",
			applogger.String("topic", msg.Topic),
			applogger.Int("partition", msg.Partition),
			applogger.Int64("offset", msg.Offset),
			applogger.Int("attempts", attempts),
			applogger.Error(err),
		)
		if c.dlq != nil {
			c.deadLetter(msg, attempts, err)
			result = "dead_lettered"
		}
	}
	consumerHandled.WithLabelValues(msg.Topic, result).Inc()
	consumerLatency.WithLabelValues(msg.Topic).Observe(time.Since(start).Seconds())

	// Without a DLQ a failed message stays uncommitted and is redelivered
	// after a rebalance or restart.
	if err == nil || c.dlq != nil {
		c.commit(msg)
	}
}

// process runs the hook and handler with retries. It returns the number of
// attempts made and the last error.
func (c *Consumer) process(h MessageHandler, msg kafka.Message) (int, error) {
	started := time.Now()
	for attempt := 1; ; attempt++ {
		d := &Delivery{Topic: msg.Topic, Message: msg, Value: msg.Value, Attempt: attempt, Started: started}
		ctx, err := c.hook.Before(context.Background(), d)
		if err != nil {
			return attempt, err
		}
		err = h.Handle(ctx, d.Value)
		c.hook.After(ctx, d, err)
		if err == nil {
			return attempt, nil
		}
		c.hook.OnError(ctx, d, err)
		if attempt > c.cfg.RetryMax || !c.sleep(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)) {
			return attempt, err
		}
	}
}

func (c *Consumer) deadLetter(msg kafka.Message, attempts int, cause error) {
	headers := append([]kafka.Header(nil), msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "source_topic", Value: []byte(msg.Topic)},
		kafka.Header{Key: "attempts", Value: []byte(strconv.Itoa(attempts))},
		kafka.Header{Key: "error", Value: []byte(cause.Error())},
	)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Topic:   c.cfg.DLQTopic,
		Key:     msg.Key,
		Value:   msg.Value,
		Time:    time.Now(),
		Headers: headers,
	})
	if err != nil {
		c.log.Error("kafka consumer: dlq write failed", applogger.String("dlq", c.cfg.DLQTopic), applogger.Error(err))
	}
}

func (c *Consumer) commit(msg kafka.Message) {
	r := c.readers[msg.Topic]
	if r == nil {
		return
	}
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = r.CommitMessages(ctx, msg)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.log.Error("kafka consumer: commit failed",
		applogger.String("topic", msg.Topic),
		applogger.Int64("offset", msg.Offset),
		applogger.Error(err),
	)
}

// sleep waits d unless the consumer stops first.
func (c *Consumer) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.stop:
		return false
	}
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	key := topic + "/" + strconv.Itoa(partition)
	c.partMu.Lock()
	defer c.partMu.Unlock()
	m, ok := c.parts[key]
	if !ok {
		m = &sync.Mutex{}
		c.parts[key] = m
	}
	return m
}

// backoffWithJitter doubles min per attempt up to max and subtracts up to
// half of it at random.
func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	d := max
	if attempt < 31 {
		if exp := min << (attempt - 1); exp > 0 && exp < max {
			d = exp
		}
	}
	return d - rand.N(d/2+1)
}

var (
	consumerQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "finpwa_kafka_consumer_queue_depth",
		Help: "Messages fetched and waiting for a worker.",
	})
	consumerHandled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "finpwa_kafka_consumer_messages_total",
		Help: "Messages handled by topic and result.",
	}, []string{"topic", "result"})
	consumerLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "finpwa_kafka_consumer_handle_seconds",
		Help:    "Time to handle one message including retries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic"})

	consumerMetricsOnce sync.Once
)

func registerConsumerMetrics() {
	consumerMetricsOnce.Do(func() {
		prometheus.MustRegister(consumerQueueDepth, consumerHandled, consumerLatency)
	})
}
