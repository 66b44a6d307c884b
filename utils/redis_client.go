package utils

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions carries the connection settings loaded from config.
// Zero pool values fall back to sizes suited for one server process.
type RedisOptions struct {
	URL          string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

func buildRedisOptions(o RedisOptions) *redis.Options {
	opts, err := redis.ParseURL(o.URL)
	if err != nil {
		// plain host:port addrs are accepted too
		opts = &redis.Options{Addr: o.URL}
	}

	if o.Password != "" {
		opts.Password = o.Password
	}
	if o.DB != 0 {
		opts.DB = o.DB
	}

	opts.PoolSize = o.PoolSize
	if opts.PoolSize <= 0 {
		opts.PoolSize = 100
	}
	opts.MinIdleConns = o.MinIdleConns
	if opts.MinIdleConns <= 0 {
		opts.MinIdleConns = 10
	}
	opts.MaxRetries = 3

	return opts
}

// NewRedisClient connects with pooling configured and verifies the
// connection with a ping before handing the client out.
func NewRedisClient(o RedisOptions) (*redis.Client, error) {
	opts := buildRedisOptions(o)
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}

	slog.Info("connected to redis", "addr", opts.Addr, "db", opts.DB)
	return client, nil
}

// RedisHealthCheck performs a health check on Redis connection
func RedisHealthCheck(client *redis.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	return nil
}
