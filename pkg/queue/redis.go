package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"FinPWA/pkg/logger"
)

var ErrNotRunning = errors.New("queue: not running")

// RedisQueue is a Redis list backed work queue with delayed retries and a
// dead letter list.
type RedisQueue struct {
	logger    *logger.Logger
	config    Config
	client    *redis.Client
	jobs      map[string]Job
	wg        sync.WaitGroup
	mu        sync.RWMutex
	isRunning bool
	stopCh    chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	keyPrefix string
	now       func() time.Time
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix sets custom key prefix.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		r.keyPrefix = prefix
	}
}

// NewRedisQueue creates a new Redis queue.
func NewRedisQueue(lgr *logger.Logger, config Config, client *redis.Client, opts ...RedisQueueOption) *RedisQueue {
	if lgr == nil {
		lgr = logger.NewNop()
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 5 * time.Second
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	rq := &RedisQueue{
		logger:    lgr,
		config:    config,
		client:    client,
		jobs:      make(map[string]Job),
		stopCh:    make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		keyPrefix: "finpwa:queue",
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(rq)
	}

	return rq
}

// RegisterJob registers a job for its message type.
func (r *RedisQueue) RegisterJob(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.Type()]; exists {
		r.logger.Warn("job already registered", logger.String("type", job.Type()))
		return
	}
	r.jobs[job.Type()] = job
}

// Start pings Redis and launches the workers and the retry promoter.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isRunning {
		return fmt.Errorf("queue already running")
	}

	ctx, cancel := context.WithTimeout(r.ctx, 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	r.isRunning = true

	for i := 0; i < r.config.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.wg.Add(1)
	go r.retryProcessor()

	r.logger.Info("redis queue started",
		logger.Int("workers", r.config.Workers),
		logger.String("addr", r.client.Options().Addr),
		logger.String("prefix", r.keyPrefix))
	return nil
}

// Stop gracefully stops the queue. In-flight messages finish; queued ones stay in Redis.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = false
	close(r.stopCh)
	r.mu.Unlock()

	doneCh := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-ctx.Done():
		r.cancel()
		r.logger.Warn("timeout waiting for queue workers", logger.Error(ctx.Err()))
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-doneCh:
		r.cancel()
		r.logger.Info("redis queue stopped gracefully")
		return nil
	}
}

// Close stops the queue and closes the Redis client.
func (r *RedisQueue) Close(ctx context.Context) error {
	err := r.Stop(ctx)
	return errors.Join(err, r.client.Close())
}

// Enqueue adds a message to the queue.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType, key string, payload interface{}) (bool, error) {
	r.mu.RLock()
	running := r.isRunning
	_, known := r.jobs[msgType]
	r.mu.RUnlock()

	if !running {
		return false, ErrNotRunning
	}
	if !known {
		return false, fmt.Errorf("no job registered for type: %s", msgType)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("marshal payload: %w", err)
	}
	msgData, err := json.Marshal(Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Key:       key,
		Payload:   raw,
		Timestamp: r.now().UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("marshal message: %w", err)
	}

	if key != "" {
		added, err := r.client.SAdd(ctx, r.getPendingKey(), pendingMember(msgType, key)).Result()
		if err != nil {
			return false, fmt.Errorf("sadd: %w", err)
		}
		if added == 0 {
			return false, nil
		}
	}

	if err := r.client.LPush(ctx, r.getQueueKey(), msgData).Err(); err != nil {
		if key != "" {
			r.client.SRem(ctx, r.getPendingKey(), pendingMember(msgType, key))
		}
		return false, fmt.Errorf("lpush: %w", err)
	}
	return true, nil
}

// Stats counts queued, retrying and dead messages.
func (r *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	pipe := r.client.Pipeline()
	queued := pipe.LLen(ctx, r.getQueueKey())
	retrying := pipe.ZCard(ctx, r.getRetryKey())
	dead := pipe.LLen(ctx, r.getDeadLetterKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, err
	}
	return Stats{Queued: queued.Val(), Retrying: retrying.Val(), Dead: dead.Val()}, nil
}

// DeadLetters returns up to limit dead-lettered messages, newest first.
func (r *RedisQueue) DeadLetters(ctx context.Context, limit int64) ([]Message, error) {
	raw, err := r.client.LRange(ctx, r.getDeadLetterKey(), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	msgs := make([]Message, 0, len(raw))
	for _, s := range raw {
		var m Message
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	r.logger.Debug("queue worker started", logger.Int("worker_id", id))

	for {
		select {
		case <-r.stopCh:
			return
		default:
			r.processNextMessage()
		}
	}
}

func (r *RedisQueue) processNextMessage() {
	result, err := r.client.BRPop(r.ctx, time.Second, r.getQueueKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
			return
		}
		r.logger.Error("brpop error", logger.Error(err))
		select {
		case <-time.After(time.Second):
		case <-r.stopCh:
		}
		return
	}
	if len(result) < 2 {
		return
	}

	var msg Message
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		r.logger.Error("unmarshal message", logger.Error(err))
		return
	}
	r.processMessage(msg)
}

func (r *RedisQueue) processMessage(msg Message) {
	r.mu.RLock()
	job, exists := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !exists {
		r.logger.Error("no job found", logger.String("type", msg.Type), logger.String("id", msg.ID))
		r.moveToDeadLetterQueue(msg)
		return
	}

	start := r.now()
	err := job.Handle(r.ctx, msg.Payload)
	if err == nil {
		r.release(msg)
		r.logger.Debug("message processed",
			logger.String("id", msg.ID),
			logger.String("type", msg.Type),
			logger.Duration("elapsed", r.now().Sub(start)))
		return
	}
	if errors.Is(err, context.Canceled) {
		// Shutting down: put it back for the next process.
		r.requeue(msg)
		return
	}
	r.handleProcessingError(msg, err)
}

func (r *RedisQueue) handleProcessingError(msg Message, err error) {
	msg.Attempts++
	msg.LastError = err.Error()

	if IsPermanent(err) || msg.Attempts > r.config.RetryLimit {
		r.logger.Error("message dead-lettered",
			logger.String("id", msg.ID),
			logger.String("type", msg.Type),
			logger.Int("attempts", msg.Attempts),
			logger.Error(err))
		r.moveToDeadLetterQueue(msg)
		return
	}

	retryAt := r.now().Add(r.config.retryDelay(msg.Attempts))
	r.scheduleRetry(msg, retryAt)
	r.logger.Warn("scheduled retry",
		logger.String("id", msg.ID),
		logger.String("type", msg.Type),
		logger.Int("attempt", msg.Attempts),
		logger.String("retry_at", retryAt.Format(time.RFC3339)),
		logger.Error(err))
}

func (r *RedisQueue) scheduleRetry(msg Message, retryAt time.Time) {
	msgData, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal retry", logger.Error(err))
		return
	}
	err = r.client.ZAdd(context.Background(), r.getRetryKey(), redis.Z{
		Score:  float64(retryAt.UnixMilli()),
		Member: msgData,
	}).Err()
	if err != nil {
		r.logger.Error("zadd retry", logger.Error(err))
	}
}

func (r *RedisQueue) requeue(msg Message) {
	msgData, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := r.client.RPush(context.Background(), r.getQueueKey(), msgData).Err(); err != nil {
		r.logger.Error("requeue", logger.Error(err))
	}
}

func (r *RedisQueue) moveToDeadLetterQueue(msg Message) {
	r.release(msg)
	msgData, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal dlq", logger.Error(err))
		return
	}
	if err := r.client.LPush(context.Background(), r.getDeadLetterKey(), msgData).Err(); err != nil {
		r.logger.Error("lpush dlq", logger.Error(err))
	}
}

// release lets a new message with the same key be enqueued.
func (r *RedisQueue) release(msg Message) {
	if msg.Key == "" {
		return
	}
	if err := r.client.SRem(context.Background(), r.getPendingKey(), pendingMember(msg.Type, msg.Key)).Err(); err != nil {
		r.logger.Error("srem pending", logger.Error(err))
	}
}

func (r *RedisQueue) retryProcessor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.processRetryMessages()
		}
	}
}

// processRetryMessages moves due retries back onto the queue. ZRem decides
// which process owns a message when several promote concurrently.
func (r *RedisQueue) processRetryMessages() {
	due, err := r.client.ZRangeByScore(r.ctx, r.getRetryKey(), &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(r.now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.logger.Error("fetch retry messages", logger.Error(err))
		}
		return
	}

	for _, msgData := range due {
		removed, err := r.client.ZRem(r.ctx, r.getRetryKey(), msgData).Result()
		if err != nil || removed == 0 {
			continue
		}
		if err := r.client.LPush(r.ctx, r.getQueueKey(), msgData).Err(); err != nil {
			r.logger.Error("move retry to queue", logger.Error(err))
		}
	}
}

func pendingMember(msgType, key string) string {
	return msgType + ":" + key
}

func (r *RedisQueue) getQueueKey() string {
	return fmt.Sprintf("%s:messages", r.keyPrefix)
}

func (r *RedisQueue) getRetryKey() string {
	return fmt.Sprintf("%s:retry", r.keyPrefix)
}

func (r *RedisQueue) getDeadLetterKey() string {
	return fmt.Sprintf("%s:dlq", r.keyPrefix)
}

func (r *RedisQueue) getPendingKey() string {
	return fmt.Sprintf("%s:pending", r.keyPrefix)
}
