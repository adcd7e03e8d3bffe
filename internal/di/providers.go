package di

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"FinPWA/internal/domain/repository"
	"FinPWA/internal/handler/api"
	mid "FinPWA/internal/middleware"
	internalrepo "FinPWA/internal/repository"
	"FinPWA/internal/service/clients"
	"FinPWA/internal/service/ratelimit"
	"FinPWA/internal/services/cacherouter"
	"FinPWA/internal/usecase"
	"FinPWA/pkg/cache"
	pkgch "FinPWA/pkg/clickhouse"
	"FinPWA/pkg/config"
	xhttp "FinPWA/pkg/http"
	pkgkafka "FinPWA/pkg/kafka"
	"FinPWA/pkg/logger"
	"FinPWA/pkg/metrics"
	"FinPWA/pkg/queue"
	"FinPWA/pkg/server"

	"github.com/redis/go-redis/v9"
)

const serviceName = "finpwa"

// ProvideKafkaProducer creates a Kafka producer. Nil when no brokers are configured.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithDelivery(cfg.Kafka.RequiredAcks, cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	return producer, nil
}

// ProvideLogger creates the application logger. Error lines are aggregated
// and shipped to the logs topic when the collector is enabled.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  cfg.Log.Output,
		Service: serviceName,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Log.Collector.Enabled && producer != nil {
		l.AttachDigest(logger.DigestConfig{
			Interval:   cfg.Log.Collector.Interval,
			MaxEntries: cfg.Log.Collector.CountThreshold,
			MinLevel:   cfg.Log.Collector.MinLevel,
			Topic:      cfg.Kafka.Topics.Logs,
			Service:    serviceName,
			Publisher:  producer,
		})
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

// ProvideCacheStorage creates the partition storage selected by cache.backend.
func ProvideCacheStorage(cfg *config.Config) (cache.Storage, error) {
	memOpts := []cache.MemoryOption{
		cache.WithMemoryLimits(cfg.Cache.MaxEntries, cfg.Cache.EntryTTL),
		cache.WithMemoryCleanup(cfg.Cache.CleanupInterval),
	}
	if cfg.Cache.Backend == "memory" {
		return cache.NewMemoryStorage(memOpts...), nil
	}

	rc := cfg.Cache.Redis
	rs, err := cache.NewRedisStorage(
		cache.WithRedisServer(rc.Addr, rc.Password, rc.DB),
		cache.WithRedisPool(rc.PoolSize, 2, 30*time.Second),
		cache.WithRedisTimeouts(rc.DialTimeout, rc.ReadTimeout, rc.WriteTimeout),
		cache.WithRedisPrefix(rc.Prefix),
		cache.WithRedisLimits(cfg.Cache.MaxEntries, cfg.Cache.EntryTTL),
	)
	if err != nil {
		return nil, fmt.Errorf("cache storage: %w", err)
	}
	if cfg.Cache.Backend == "layered" {
		return cache.NewLayeredStorage(rs, memOpts...), nil
	}
	return rs, nil
}

// ProvideNetwork creates the upstream network the router fetches through.
func ProvideNetwork(cfg *config.Config) (repository.Network, error) {
	origin, err := url.Parse(cfg.Origin)
	if err != nil {
		return nil, fmt.Errorf("origin: %w", err)
	}
	upstream, err := url.Parse(cfg.Upstream.URL)
	if err != nil {
		return nil, fmt.Errorf("upstream: %w", err)
	}
	client := xhttp.NewClient(
		xhttp.WithTimeout(cfg.Upstream.Timeout),
		xhttp.WithMaxBodyBytes(cfg.Upstream.MaxBodyBytes),
	)
	return internalrepo.NewUpstreamNetwork(client, origin, upstream), nil
}

// ProvideClickHouseClient creates a ClickHouse client. Nil when no host is configured.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.ClickHouse.Host == "" {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithAuth(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithPool(10, 5, 5*time.Minute),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	if err := client.Migrate(ctx, "CREATE DATABASE IF NOT EXISTS "+cfg.ClickHouse.Database); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideJournalStorage creates the ClickHouse journal table. Nil without ClickHouse.
func ProvideJournalStorage(chClient *pkgch.Client, cfg *config.Config) (repository.JournalStorage, error) {
	if chClient == nil {
		return nil, nil
	}
	store := internalrepo.NewClickHouseJournal(chClient.DB(), chClient.Database()+"."+cfg.Journal.Table, cfg.Journal.Retention)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("journal storage: %w", err)
	}
	return store, nil
}

// ProvideJournalPublisher creates Kafka journal publisher. Nil without brokers.
func ProvideJournalPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.JournalPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaJournalPublisher(producer, cfg.Kafka.Topics.Journal)
}

// ProvideJournalProcessor creates journal processor use case.
func ProvideJournalProcessor(
	pub repository.JournalPublisher,
	store repository.JournalStorage,
	m *metrics.Recorder,
	cfg *config.Config,
) *usecase.JournalProcessor {
	return usecase.NewJournalProcessor(pub, store, m, cfg.Journal.Backend)
}

// ProvideJournalPipeline buffers fetch records in front of the processor.
// Nil when the journal is disabled.
func ProvideJournalPipeline(
	cfg *config.Config,
	proc *usecase.JournalProcessor,
	m *metrics.Recorder,
	l *logger.Logger,
) *mid.JournalPipeline {
	if !cfg.Journal.Enabled {
		return nil
	}
	return mid.NewJournalPipeline(proc, m,
		mid.WithBatch(cfg.Journal.BatchSize, cfg.Journal.BatchTimeout),
		mid.WithBufferSize(cfg.Journal.BufferSize),
		mid.WithRetry(cfg.Journal.RetryMax, 50*time.Millisecond, 2*time.Second),
		mid.WithPipelineLogger(l.With(logger.String("component", "journal"))),
	)
}

// ProvideHub creates the client hub.
func ProvideHub(l *logger.Logger, m *metrics.Recorder) *clients.Hub {
	return clients.NewHub(
		clients.WithLogger(l.With(logger.String("component", "clients"))),
		clients.WithGauge(m),
	)
}

// RouterConfig maps the router section onto the worker configuration.
func RouterConfig(cfg *config.Config) (cacherouter.Config, error) {
	origin, err := url.Parse(cfg.Origin)
	if err != nil {
		return cacherouter.Config{}, fmt.Errorf("origin: %w", err)
	}
	r := cfg.Router
	n := r.Notification
	return cacherouter.Config{
		Version:            r.Version,
		StaticPartition:    r.StaticPartition,
		DynamicPartition:   r.DynamicPartition,
		Origin:             origin,
		Manifest:           r.Manifest,
		AllowedHosts:       r.AllowedHosts,
		APIMarkers:         r.APIMarkers,
		StaticPrefixes:     r.StaticPrefixes,
		StaticExtensions:   r.StaticExtensions,
		FallbackDocuments:  r.FallbackDocuments,
		NavigationPreload:  r.NavigationPreload,
		InstallConcurrency: r.InstallConcurrency,
		SkipWaiting:        r.AutoActivate,
		SyncTags:           r.SyncTags,
		Notification: cacherouter.NotificationDefaults{
			Title:   n.Title,
			Body:    n.DefaultBody,
			Icon:    n.Icon,
			Badge:   n.Badge,
			OpenURL: n.OpenURL,
			Vibrate: n.Vibrate,
		},
	}, nil
}

// ProvideWorker creates the cache router and hands it client events from the hub.
func ProvideWorker(
	cfg *config.Config,
	storage cache.Storage,
	network repository.Network,
	hub *clients.Hub,
	pipe *mid.JournalPipeline,
	m *metrics.Recorder,
	l *logger.Logger,
) (*cacherouter.Worker, error) {
	rc, err := RouterConfig(cfg)
	if err != nil {
		return nil, err
	}
	opts := []cacherouter.Option{
		cacherouter.WithClients(hub),
		cacherouter.WithMetrics(m),
		cacherouter.WithLogger(l.With(logger.String("component", "cacherouter"))),
	}
	if pipe != nil {
		opts = append(opts, cacherouter.WithJournal(pipe))
	}
	w := cacherouter.New(rc, storage, network, opts...)
	hub.SetHandler(w)
	return w, nil
}

// ProvideSyncQueue creates the background sync retry queue. Nil unless sync.queue is set.
func ProvideSyncQueue(cfg *config.Config, l *logger.Logger, w *cacherouter.Worker) *queue.RedisQueue {
	if !cfg.Sync.Queue {
		return nil
	}
	rc := cfg.Cache.Redis
	client := redis.NewClient(&redis.Options{
		Addr:         rc.Addr,
		Password:     rc.Password,
		DB:           rc.DB,
		DialTimeout:  rc.DialTimeout,
		ReadTimeout:  rc.ReadTimeout,
		WriteTimeout: rc.WriteTimeout,
	})
	sc := cfg.Sync
	q := queue.NewRedisQueue(l.With(logger.String("component", "sync-queue")), queue.Config{
		Workers:       sc.Workers,
		RetryLimit:    sc.RetryLimit,
		RetryDelay:    sc.RetryDelay,
		MaxRetryDelay: sc.MaxRetryDelay,
	}, client, queue.WithKeyPrefix(sc.Prefix))
	q.RegisterJob(usecase.NewSyncJob(w, l))
	return q
}

// ProvideKafkaConsumer creates a Kafka consumer. Nil unless enabled.
func ProvideKafkaConsumer(cfg *config.Config, l *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerLogger(l.With(logger.String("component", "kafka"))),
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerStartLatest(cfg.Kafka.Consumer.StartLatest),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers, cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(pkgkafka.TracingHook(), pkgkafka.LoggingHook(l)))
	return consumer, nil
}

// ProvideConsumerHandlers lists the topics the consumer subscribes to. The
// journal topic is drained into ClickHouse only when storage is available.
func ProvideConsumerHandlers(
	cfg *config.Config,
	w *cacherouter.Worker,
	store repository.JournalStorage,
	m *metrics.Recorder,
	l *logger.Logger,
) []pkgkafka.MessageHandler {
	hs := []pkgkafka.MessageHandler{
		usecase.NewPushHandler(cfg.Kafka.Topics.Push, w, l),
		usecase.NewSyncHandler(cfg.Kafka.Topics.Sync, w, l),
	}
	if store != nil && cfg.Journal.Backend == "kafka" {
		hs = append(hs, usecase.NewJournalSinkHandler(cfg.Kafka.Topics.Journal, store, m))
	}
	return hs
}

// ProvideLimiter creates the shared token bucket limiter.
func ProvideLimiter() *ratelimit.Limiter {
	return ratelimit.New()
}

// ProvideHTTPHandlers lists route handlers in registration order. The
// gateway's catch-all goes last.
func ProvideHTTPHandlers(
	cfg *config.Config,
	l *logger.Logger,
	w *cacherouter.Worker,
	hub *clients.Hub,
	store repository.JournalStorage,
	m *metrics.Recorder,
	limiter *ratelimit.Limiter,
	sq *queue.RedisQueue,
) []xhttp.Handler {
	sw := api.NewServiceWorkerHandler(l, w, hub, store)
	if sq != nil {
		sw.SetSyncQueue(sq)
	}
	calcOpts := []api.CalculatorOption{api.WithCalcMetrics(m)}
	if rl := cfg.Calculator.RateLimit; rl.Enabled {
		calcOpts = append(calcOpts, api.WithRateLimit(limiter, int(rl.Burst), rl.PerSec))
	}
	return []xhttp.Handler{
		hub,
		sw,
		api.NewCalculatorHandler(l, api.NewPresenter(cfg.Calculator.Currency), calcOpts...),
		api.NewGatewayHandler(l, w),
	}
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	w *cacherouter.Worker,
	storage cache.Storage,
	hub *clients.Hub,
	pipe *mid.JournalPipeline,
	producer *pkgkafka.Producer,
	consumer *pkgkafka.Consumer,
	handlers []pkgkafka.MessageHandler,
	chClient *pkgch.Client,
	sq *queue.RedisQueue,
	limiter *ratelimit.Limiter,
	httpHandlers []xhttp.Handler,
) *server.App {
	return server.New(cfg, l, server.Components{
		Worker:       w,
		Storage:      storage,
		Hub:          hub,
		Pipeline:     pipe,
		Producer:     producer,
		Consumer:     consumer,
		Handlers:     handlers,
		ClickHouse:   chClient,
		SyncQueue:    sq,
		Limiter:      limiter,
		HTTPHandlers: httpHandlers,
	})
}
