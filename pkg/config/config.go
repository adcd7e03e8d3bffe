package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. FINPWA_SERVER_PORT.
const EnvPrefix = "FINPWA_"

type Config struct {
	Environment string `yaml:"environment" env:"ENVIRONMENT" default:"development" validate:"required"`
	Origin      string `yaml:"origin" env:"ORIGIN" default:"http://localhost:8080" validate:"required,url"`

	Server struct {
		Port            int           `yaml:"port" env:"PORT" default:"8080" validate:"min=1,max=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" default:"10s"`
		BodyLimit       string        `yaml:"body_limit" env:"BODY_LIMIT" default:"2M"`
		CORSOrigins     []string      `yaml:"cors_origins" env:"CORS_ORIGINS" default:"[\"*\"]"`
	} `yaml:"server" envPrefix:"SERVER_"`

	Log struct {
		Level     string `yaml:"level" env:"LEVEL" default:"info" validate:"oneof=trace debug info warn error fatal panic"`
		Format    string `yaml:"format" env:"FORMAT" default:"console" validate:"oneof=console json"`
		Output    string `yaml:"output" env:"OUTPUT" default:"stdout"`
		Collector struct {
			Enabled        bool          `yaml:"enabled" env:"ENABLED"`
			Interval       time.Duration `yaml:"interval" env:"INTERVAL" default:"30s"`
			CountThreshold int           `yaml:"count_threshold" env:"COUNT_THRESHOLD" default:"100"`
			MinLevel       string        `yaml:"min_level" env:"MIN_LEVEL" default:"error" validate:"oneof=warn error"`
		} `yaml:"collector" envPrefix:"COLLECTOR_"`
	} `yaml:"log" envPrefix:"LOG_"`

	Metrics struct {
		Enabled bool   `yaml:"enabled" env:"ENABLED" default:"true"`
		Path    string `yaml:"path" env:"PATH" default:"/-/metrics"`
	} `yaml:"metrics" envPrefix:"METRICS_"`

	Upstream struct {
		URL          string        `yaml:"url" env:"URL" default:"http://localhost:3000" validate:"required,url"`
		Timeout      time.Duration `yaml:"timeout" env:"TIMEOUT" default:"10s"`
		MaxBodyBytes int64         `yaml:"max_body_bytes" env:"MAX_BODY_BYTES" default:"10485760"`
	} `yaml:"upstream" envPrefix:"UPSTREAM_"`

	Router struct {
		Version            string            `yaml:"version" env:"VERSION" default:"v2" validate:"required"`
		StaticPartition    string            `yaml:"static_partition" env:"STATIC_PARTITION"`
		DynamicPartition   string            `yaml:"dynamic_partition" env:"DYNAMIC_PARTITION"`
		Manifest           []string          `yaml:"manifest" env:"MANIFEST" default:"[\"/\",\"/index.html\",\"/manifest.json\"]"`
		AllowedHosts       []string          `yaml:"allowed_hosts" env:"ALLOWED_HOSTS" default:"[\"fonts.googleapis.com\",\"fonts.gstatic.com\",\"cdn.jsdelivr.net\"]"`
		APIMarkers         []string          `yaml:"api_markers" env:"API_MARKERS" default:"[\"/api/\",\"/data/\",\"market-data\",\"stock-prices\",\"crypto-prices\",\"financial\"]"`
		StaticPrefixes     []string          `yaml:"static_prefixes" env:"STATIC_PREFIXES" default:"[\"/static/\",\"/icons/\",\"/styles/\",\"/js/\"]"`
		StaticExtensions   []string          `yaml:"static_extensions" env:"STATIC_EXTENSIONS" default:"[\".css\",\".js\",\".png\",\".jpg\",\".jpeg\",\".svg\",\".ico\",\".woff\",\".woff2\"]"`
		FallbackDocuments  []string          `yaml:"fallback_documents" env:"FALLBACK_DOCUMENTS" default:"[\"/index.html\",\"/\"]"`
		NavigationPreload  bool              `yaml:"navigation_preload" env:"NAVIGATION_PRELOAD" default:"true"`
		InstallConcurrency int               `yaml:"install_concurrency" env:"INSTALL_CONCURRENCY" default:"4" validate:"min=1"`
		AutoActivate       bool              `yaml:"auto_activate" env:"AUTO_ACTIVATE" default:"true"`
		SyncTags           map[string]string `yaml:"sync_tags" env:"SYNC_TAGS" default:"{\"portfolio-sync\":\"PORTFOLIO_SYNC\",\"price-alerts\":\"PRICE_ALERTS_SYNC\"}"`
		Notification       struct {
			Title       string `yaml:"title" env:"TITLE" default:"Portfolio Tracker"`
			DefaultBody string `yaml:"default_body" env:"DEFAULT_BODY" default:"New financial update available"`
			Icon        string `yaml:"icon" env:"ICON" default:"/logo192.png"`
			Badge       string `yaml:"badge" env:"BADGE" default:"/logo192.png"`
			OpenURL     string `yaml:"open_url" env:"OPEN_URL" default:"/"`
			Vibrate     []int  `yaml:"vibrate" env:"VIBRATE" default:"[100,50,100]"`
		} `yaml:"notification" envPrefix:"NOTIFICATION_"`
	} `yaml:"router" envPrefix:"ROUTER_"`

	Cache struct {
		Backend         string        `yaml:"backend" env:"BACKEND" default:"memory" validate:"oneof=memory redis layered"`
		MaxEntries      int           `yaml:"max_entries" env:"MAX_ENTRIES" default:"1000" validate:"min=0"`
		EntryTTL        time.Duration `yaml:"entry_ttl" env:"ENTRY_TTL"`
		CleanupInterval time.Duration `yaml:"cleanup_interval" env:"CLEANUP_INTERVAL" default:"1m"`
		Redis           struct {
			Addr         string        `yaml:"addr" env:"ADDR" default:"localhost:6379"`
			Password     string        `yaml:"password" env:"PASSWORD"`
			DB           int           `yaml:"db" env:"DB"`
			Prefix       string        `yaml:"prefix" env:"PREFIX" default:"finpwa"`
			PoolSize     int           `yaml:"pool_size" env:"POOL_SIZE" default:"10"`
			DialTimeout  time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT" default:"5s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT" default:"3s"`
			WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" default:"3s"`
		} `yaml:"redis" envPrefix:"REDIS_"`
	} `yaml:"cache" envPrefix:"CACHE_"`

	Journal struct {
		Enabled      bool          `yaml:"enabled" env:"ENABLED"`
		Backend      string        `yaml:"backend" env:"BACKEND" default:"kafka" validate:"oneof=kafka clickhouse"`
		BatchSize    int           `yaml:"batch_size" env:"BATCH_SIZE" default:"100" validate:"min=1"`
		BatchTimeout time.Duration `yaml:"batch_timeout" env:"BATCH_TIMEOUT" default:"1s"`
		BufferSize   int           `yaml:"buffer_size" env:"BUFFER_SIZE" default:"10000" validate:"min=1"`
		RetryMax     int           `yaml:"retry_max" env:"RETRY_MAX" default:"3"`
		Table        string        `yaml:"table" env:"TABLE" default:"fetch_journal"`
		Retention    time.Duration `yaml:"retention" env:"RETENTION" default:"720h"`
	} `yaml:"journal" envPrefix:"JOURNAL_"`

	// Sync moves background syncs onto a Redis-backed retry queue when Queue is set.
	Sync struct {
		Queue         bool          `yaml:"queue" env:"QUEUE"`
		Workers       int           `yaml:"workers" env:"WORKERS" default:"2" validate:"min=1"`
		RetryLimit    int           `yaml:"retry_limit" env:"RETRY_LIMIT" default:"3" validate:"min=0"`
		RetryDelay    time.Duration `yaml:"retry_delay" env:"RETRY_DELAY" default:"5s"`
		MaxRetryDelay time.Duration `yaml:"max_retry_delay" env:"MAX_RETRY_DELAY" default:"5m"`
		Prefix        string        `yaml:"prefix" env:"PREFIX" default:"finpwa:sync"`
	} `yaml:"sync" envPrefix:"SYNC_"`

	Kafka struct {
		Brokers      []string `yaml:"brokers" env:"BROKERS"`
		RequiredAcks int      `yaml:"required_acks" env:"REQUIRED_ACKS" default:"-1"`
		Compression  string   `yaml:"compression" env:"COMPRESSION" default:"snappy"`
		Topics       struct {
			Journal string `yaml:"journal" env:"JOURNAL" default:"finpwa.fetch-journal"`
			Push    string `yaml:"push" env:"PUSH" default:"finpwa.push"`
			Sync    string `yaml:"sync" env:"SYNC" default:"finpwa.sync"`
			Logs    string `yaml:"logs" env:"LOGS" default:"finpwa.logs"`
		} `yaml:"topics" envPrefix:"TOPIC_"`
		Producer struct {
			MaxAttempts  int           `yaml:"max_attempts" env:"MAX_ATTEMPTS" default:"5"`
			Linger       time.Duration `yaml:"linger" env:"LINGER" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" env:"BATCH_BYTES" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" env:"BATCH_SIZE" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT" default:"10s"`
			Async        bool          `yaml:"async" env:"ASYNC"`
		} `yaml:"producer" envPrefix:"PRODUCER_"`
		Consumer struct {
			Enabled bool   `yaml:"enabled" env:"ENABLED"`
			GroupID string `yaml:"group_id" env:"GROUP_ID" default:"finpwa"`

			// StartLatest skips the backlog when the group has no committed offsets.
			StartLatest bool          `yaml:"start_latest" env:"START_LATEST" default:"true"`
			Workers     int           `yaml:"workers" env:"WORKERS" default:"4"`
			BufferSize  int           `yaml:"buffer_size" env:"BUFFER_SIZE" default:"256"`
			RetryMax    int           `yaml:"retry_max" env:"RETRY_MAX" default:"3"`
			BackoffMin  time.Duration `yaml:"backoff_min" env:"BACKOFF_MIN" default:"100ms"`
			BackoffMax  time.Duration `yaml:"backoff_max" env:"BACKOFF_MAX" default:"5s"`
			DLQTopic    string        `yaml:"dlq_topic" env:"DLQ_TOPIC"`
			MinBytes    int           `yaml:"min_bytes" env:"MIN_BYTES" default:"1"`
			MaxBytes    int           `yaml:"max_bytes" env:"MAX_BYTES" default:"10485760"`
		} `yaml:"consumer" envPrefix:"CONSUMER_"`
	} `yaml:"kafka" envPrefix:"KAFKA_"`

	ClickHouse struct {
		Host             string        `yaml:"host" env:"HOST"`
		Port             int           `yaml:"port" env:"PORT" default:"9000"`
		Database         string        `yaml:"database" env:"DATABASE" default:"finpwa"`
		User             string        `yaml:"user" env:"USER" default:"default"`
		Password         string        `yaml:"password" env:"PASSWORD"`
		UseHTTP          bool          `yaml:"use_http" env:"USE_HTTP"`
		AsyncInsert      bool          `yaml:"async_insert" env:"ASYNC_INSERT"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert" env:"WAIT_FOR_ASYNC_INSERT"`
		DialTimeout      time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" env:"MAX_EXECUTION_TIME" default:"60s"`
	} `yaml:"clickhouse" envPrefix:"CLICKHOUSE_"`

	Calculator struct {
		Currency  string `yaml:"currency" env:"CURRENCY" default:"EUR" validate:"len=3"`
		RateLimit struct {
			Enabled bool    `yaml:"enabled" env:"ENABLED" default:"true"`
			Burst   float64 `yaml:"burst" env:"BURST" default:"20"`
			PerSec  float64 `yaml:"per_sec" env:"PER_SEC" default:"5"`
		} `yaml:"rate_limit" envPrefix:"RATE_LIMIT_"`
	} `yaml:"calculator" envPrefix:"CALCULATOR_"`
}

var validate = validator.New()

// Default returns a configuration with every default applied.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}
	c.derive()
	return &c, nil
}

// Load reads and parses a YAML configuration file on top of the defaults.
// An empty path yields the defaults alone.
func Load(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	return c.finish()
}

// LoadWithEnv loads config from YAML and overrides it with FINPWA_* environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return c.finish()
}

// read applies defaults and the YAML file without deriving or validating.
func read(path string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}
	if path == "" {
		return &c, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

// finish runs once, after every override source has been applied.
func (c *Config) finish() (*Config, error) {
	c.derive()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// derive fills values computed from other fields.
func (c *Config) derive() {
	if c.Router.StaticPartition == "" {
		c.Router.StaticPartition = "static-" + c.Router.Version
	}
	if c.Router.DynamicPartition == "" {
		c.Router.DynamicPartition = "dynamic-" + c.Router.Version
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Router.StaticPartition == c.Router.DynamicPartition {
		return fmt.Errorf("router.static_partition and router.dynamic_partition must differ, both are '%s'", c.Router.StaticPartition)
	}
	for _, raw := range []string{c.Origin, c.Upstream.URL} {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("parse url '%s': %w", raw, err)
		}
		if !u.IsAbs() || u.Host == "" {
			return fmt.Errorf("url '%s' must be absolute", raw)
		}
	}
	if c.Journal.Enabled {
		switch c.Journal.Backend {
		case "kafka":
			if len(c.Kafka.Brokers) == 0 {
				return errors.New("journal.backend 'kafka' requires kafka.brokers")
			}
		case "clickhouse":
			if c.ClickHouse.Host == "" {
				return errors.New("journal.backend 'clickhouse' requires clickhouse.host")
			}
		}
	}
	if c.Kafka.Consumer.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.consumer.enabled requires kafka.brokers")
	}
	if c.Cache.Backend != "memory" && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache.backend '%s' requires cache.redis.addr", c.Cache.Backend)
	}
	return nil
}

// ServerAddr returns the listen address.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
