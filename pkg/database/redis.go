package database

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host        string
	Port        int
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
}

// DefaultRedisConfig returns local development defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Host:        "localhost",
		Port:        6379,
		PoolSize:    10,
		DialTimeout: 5 * time.Second,
	}
}

// Addr returns the host:port address.
func (c RedisConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// NewRedisClient creates a Redis client and verifies it with PING.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.Addr(), err)
	}

	return client, nil
}
