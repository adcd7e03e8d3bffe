package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"

	ch "github.com/ClickHouse/clickhouse-go/v2"
)

// Client owns the connection pool shared by the journal store.
type Client struct {
	db  *sql.DB
	cfg Config
}

// NewClient opens a pool and pings it within the dial timeout.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Host == "" {
		return nil, errors.New("clickhouse: host is required")
	}

	db := ch.OpenDB(options(cfg))
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping %s: %w", cfg.addr(), err)
	}
	return &Client{db: db, cfg: cfg}, nil
}

func (c Config) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func options(cfg Config) *ch.Options {
	opts := &ch.Options{
		Addr: []string{cfg.addr()},
		Auth: ch.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Protocol:    ch.Native,
		DialTimeout: cfg.DialTimeout,
		ReadTimeout: cfg.ReadTimeout,
		Compression: &ch.Compression{Method: ch.CompressionLZ4},
		Settings:    ch.Settings{},
	}
	if cfg.HTTP {
		opts.Protocol = ch.HTTP
		opts.Compression = &ch.Compression{Method: ch.CompressionGZIP}
	}
	if cfg.MaxExecTime > 0 {
		opts.Settings["max_execution_time"] = int(cfg.MaxExecTime.Seconds())
	}
	if cfg.AsyncInsert {
		opts.Settings["async_insert"] = 1
		if cfg.WaitForAsync {
			opts.Settings["wait_for_async_insert"] = 1
		}
	}
	return opts
}

func (c *Client) DB() *sql.DB { return c.db }

func (c *Client) Database() string { return c.cfg.Database }

func (c *Client) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Migrate runs idempotent DDL statements in order and stops at the first
// failure.
func (c *Client) Migrate(ctx context.Context, stmts ...string) error {
	for i, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}

func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}
