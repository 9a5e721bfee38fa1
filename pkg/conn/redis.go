package conn

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const (
	defaultRedisHost = "localhost"
	defaultRedisPort = 6379
)

// RedisOption defines connection options for Redis.
type RedisOption struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
}

// Redis wraps a Redis client.
type Redis struct {
	opt    RedisOption
	client *redis.Client
}

// NewRedis creates a Redis client and verifies connectivity.
func NewRedis(ctx context.Context, option RedisOption) (*Redis, error) {
	host := option.Host
	if host == "" {
		host = defaultRedisHost
	}
	port := option.Port
	if port == 0 {
		port = defaultRedisPort
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: option.Password,
		DB:       option.DB,
		PoolSize: option.PoolSize,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Redis{opt: option, client: client}, nil
}

// Client returns the underlying redis client.
func (c *Redis) Client() *redis.Client {
	if c == nil {
		return nil
	}
	return c.client
}

// Close closes the underlying client.
func (c *Redis) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
