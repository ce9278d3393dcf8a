// Package valkey wraps the valkey-go client with key prefixing and a startup ping.
package valkey

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	valkeylib "github.com/valkey-io/valkey-go"

	"github.com/m3rciful/flowbot/core/logger"
)

// DefaultConnectTimeout bounds the startup ping.
const DefaultConnectTimeout = 5 * time.Second

// Config holds the connection settings. An empty Address disables valkey.
type Config struct {
	Address        string        `yaml:"address" envconfig:"VALKEY_ADDR"`
	Password       string        `yaml:"password" envconfig:"VALKEY_PASSWORD"`
	DB             int           `yaml:"db" envconfig:"VALKEY_DB"`
	KeyPrefix      string        `yaml:"key_prefix" envconfig:"VALKEY_KEY_PREFIX"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" envconfig:"VALKEY_CONNECT_TIMEOUT"`
}

// Enabled reports whether an address is configured.
func (c Config) Enabled() bool { return strings.TrimSpace(c.Address) != "" }

// Client is a prefixed valkey-go client. Create it with NewClient and Close it when done.
type Client struct {
	inner     valkeylib.Client
	keyPrefix string
}

// NewClient connects and pings the server, failing if it does not answer within the timeout.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	opts := valkeylib.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	inner, err := valkeylib.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("valkey: create client: %w", err)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if err := inner.Do(pingCtx, inner.B().Ping().Build()).Error(); err != nil {
		inner.Close()
		logger.Error(ctx, "valkey", "valkey.connect",
			slog.String("status", "fail"),
			slog.String("host", cfg.Address),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("valkey: ping %s (timeout %v): %w", cfg.Address, timeout, err)
	}
	logger.Info(ctx, "valkey", "valkey.connect",
		slog.String("status", "ok"),
		slog.String("host", cfg.Address),
		slog.Int("db", cfg.DB),
		slog.Int64("duration_ms", logger.Took(start).Milliseconds()),
	)

	prefix := cfg.KeyPrefix
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &Client{inner: inner, keyPrefix: prefix}, nil
}

// Inner returns the underlying valkey-go client.
func (c *Client) Inner() valkeylib.Client {
	return c.inner
}

// Close closes the connection.
func (c *Client) Close() {
	if c.inner != nil {
		c.inner.Close()
	}
}

// Key joins parts with ":" under the configured prefix, e.g. Key("lock", "bot|42") -> "flowbot:lock:bot|42".
func (c *Client) Key(parts ...string) string {
	if len(parts) == 0 {
		return strings.TrimSuffix(c.keyPrefix, ":")
	}
	return c.keyPrefix + strings.Join(parts, ":")
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.inner.Do(ctx, c.inner.B().Ping().Build()).Error()
}

// IsNil reports whether err is a Valkey nil reply.
func IsNil(err error) bool {
	return valkeylib.IsValkeyNil(err)
}
