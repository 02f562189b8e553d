// Package redis builds the go-redis client behind the workflow-state cache.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Ahabibm4/chatbot/pkg/config"
)

// The cache sits on the chat hot path, so every operation is bounded well
// below the turn deadline.
const defaultOpTimeout = 2 * time.Second

// Config selects the topology. URL wins when set; otherwise MasterName
// means Sentinel, several Addrs mean Cluster, one Addr is standalone.
type Config struct {
	URL          string
	Addrs        []string
	MasterName   string
	Username     string
	Password     string
	DB           int
	ClientName   string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// LoadConfig reads REDIS_URL, REDIS_ADDRS, REDIS_MASTER_NAME,
// REDIS_USERNAME, REDIS_PASSWORD and REDIS_DB.
func LoadConfig(clientName string) Config {
	return Config{
		URL:        config.GetEnv("REDIS_URL", ""),
		Addrs:      config.GetEnvList("REDIS_ADDRS"),
		MasterName: config.GetEnv("REDIS_MASTER_NAME", ""),
		Username:   config.GetEnv("REDIS_USERNAME", ""),
		Password:   config.GetEnv("REDIS_PASSWORD", ""),
		DB:         config.GetEnvInt("REDIS_DB", 0),
		ClientName: clientName,
	}
}

// Enabled reports whether any Redis endpoint is configured.
func (c Config) Enabled() bool {
	return c.URL != "" || len(c.Addrs) > 0
}

func (c Config) options() (*goredis.UniversalOptions, error) {
	opts := &goredis.UniversalOptions{
		Addrs:        c.Addrs,
		MasterName:   c.MasterName,
		Username:     c.Username,
		Password:     c.Password,
		DB:           c.DB,
		ClientName:   c.ClientName,
		DialTimeout:  orDefault(c.DialTimeout),
		ReadTimeout:  orDefault(c.ReadTimeout),
		WriteTimeout: orDefault(c.WriteTimeout),
	}
	if c.URL == "" {
		if len(c.Addrs) == 0 {
			return nil, fmt.Errorf("at least one redis address is required")
		}
		return opts, nil
	}

	parsed, err := goredis.ParseURL(c.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.Addrs = []string{parsed.Addr}
	opts.MasterName = ""
	opts.DB = parsed.DB
	if parsed.Username != "" {
		opts.Username = parsed.Username
	}
	if parsed.Password != "" {
		opts.Password = parsed.Password
	}
	opts.TLSConfig = parsed.TLSConfig
	return opts, nil
}

func orDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultOpTimeout
	}
	return d
}

// NewUniversalClient connects and pings. A client that cannot reach Redis
// is closed and not returned.
func NewUniversalClient(ctx context.Context, cfg Config) (goredis.UniversalClient, error) {
	opts, err := cfg.options()
	if err != nil {
		return nil, err
	}
	client := goredis.NewUniversalClient(opts)
	if err := Ping(ctx, client); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Ping reports whether the client can reach Redis within the context deadline.
func Ping(ctx context.Context, client goredis.UniversalClient) error {
	if client == nil {
		return fmt.Errorf("redis client not configured")
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}
