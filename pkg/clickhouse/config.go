package clickhouse

import "time"

// Config describes one ClickHouse endpoint and its pool.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	HTTP     bool

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	DialTimeout     time.Duration
	ReadTimeout     time.Duration

	// Server-side settings sent with every query.
	AsyncInsert  bool
	WaitForAsync bool
	MaxExecTime  time.Duration
}

func defaultConfig() Config {
	return Config{
		Port:            9000,
		Database:        "default",
		User:            "default",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     10 * time.Second,
	}
}

type Option func(*Config)

func WithAddr(host string, port int) Option {
	return func(c *Config) {
		c.Host = host
		if port > 0 {
			c.Port = port
		}
	}
}

func WithDatabase(name string) Option {
	return func(c *Config) { c.Database = name }
}

func WithAuth(user, password string) Option {
	return func(c *Config) {
		c.User = user
		c.Password = password
	}
}

// WithPool bounds the database/sql pool.
func WithPool(maxOpen, maxIdle int, lifetime time.Duration) Option {
	return func(c *Config) {
		c.MaxOpenConns = maxOpen
		c.MaxIdleConns = maxIdle
		c.ConnMaxLifetime = lifetime
	}
}

func WithTimeouts(dial, read time.Duration) Option {
	return func(c *Config) {
		c.DialTimeout = dial
		c.ReadTimeout = read
	}
}

// WithHTTP switches from the native protocol to HTTP.
func WithHTTP(on bool) Option {
	return func(c *Config) { c.HTTP = on }
}

// WithAsyncInsert lets the server buffer journal inserts; wait makes the
// insert return only once the buffer is flushed.
func WithAsyncInsert(on, wait bool) Option {
	return func(c *Config) {
		c.AsyncInsert = on
		c.WaitForAsync = wait
	}
}

func WithMaxExecutionTime(d time.Duration) Option {
	return func(c *Config) { c.MaxExecTime = d }
}
