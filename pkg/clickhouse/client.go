package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"net"
	"strconv"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// Client is a database/sql pool backed by the clickhouse-go driver.
type Client struct {
	db *sql.DB
}

// NewClient opens a pool. The connection is established lazily; call
// Health to verify it.
func NewClient(opts ...ClientOption) (*Client, error) {
	cfg := ClientConfig{
		Port:            9000,
		Database:        "default",
		User:            "default",
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     30 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("host is required")
	}

	db := clickhouse.OpenDB(options(cfg))
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return &Client{db: db}, nil
}

func options(cfg ClientConfig) *clickhouse.Options {
	opts := &clickhouse.Options{
		Addr: []string{net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Protocol:    clickhouse.Native,
		DialTimeout: cfg.DialTimeout,
		ReadTimeout: cfg.ReadTimeout,
		Settings:    clickhouse.Settings{},
	}
	if cfg.UseHTTP {
		opts.Protocol = clickhouse.HTTP
	}
	if cfg.MaxExecTime > 0 {
		opts.Settings["max_execution_time"] = int(math.Ceil(cfg.MaxExecTime.Seconds()))
	}
	if cfg.ReadOnly {
		// 2 still lets the session carry settings such as max_execution_time.
		opts.Settings["readonly"] = 2
	}
	return opts
}

func (c *Client) DB() *sql.DB { return c.db }

// Health pings the server.
func (c *Client) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}
