package database

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultPostgresConfig matches the docker-compose database.
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Host:            "localhost",
		Port:            5432,
		User:            "gamelog",
		Password:        "gamelog",
		DBName:          "gamelog",
		SSLMode:         "disable",
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// DSN renders a postgres:// URL with user and password escaped.
func (c *PostgresConfig) DSN() string {
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	return (&url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     c.DBName,
		RawQuery: q.Encode(),
	}).String()
}

const (
	defaultRetryAttempts = 3
	defaultRetryBaseWait = time.Second
	retryJitterFraction  = 0.25
)

// retryBackoff doubles from defaultRetryBaseWait per attempt, then shifts
// the result by up to retryJitterFraction either way.
func retryBackoff(attempt int) time.Duration {
	base := defaultRetryBaseWait << max(attempt, 0)
	spread := retryJitterFraction * (2*rand.Float64() - 1) // #nosec G404 -- jitter only
	return base + time.Duration(float64(base)*spread)
}

// retry calls fn at most defaultRetryAttempts times. Errors rejected by
// retryable are returned at once. logger may be nil.
func retry(ctx context.Context, what string, logger *slog.Logger, retryable func(error) bool, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if attempt+1 >= defaultRetryAttempts || !retryable(err) {
			return err
		}

		wait := retryBackoff(attempt)
		if logger != nil {
			logger.Warn("retrying "+what,
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", wait),
				slog.String("error", err.Error()),
			)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: gave up waiting to retry: %w", what, ctx.Err())
		case <-timer.C:
		}
	}
}

func poolConfig(cfg *PostgresConfig) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pc.MaxConns, pc.MinConns = cfg.MaxConns, cfg.MinConns
	pc.MaxConnLifetime, pc.MaxConnIdleTime = cfg.MaxConnLifetime, cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "gamelog-accounts"
	return pc, nil
}

// NewPostgresPoolWithLogger opens a pool and pings it. Startup failures of
// any kind are retried, since the database often comes up after the service.
func NewPostgresPoolWithLogger(ctx context.Context, cfg *PostgresConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	pc, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	var pool *pgxpool.Pool
	connect := func() error {
		p, err := pgxpool.NewWithConfig(ctx, pc)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	}
	anyError := func(error) bool { return true }

	if err := retry(ctx, "postgres connect", logger, anyError, connect); err != nil {
		return nil, fmt.Errorf("connect to postgres after %d attempts: %w", defaultRetryAttempts, err)
	}
	return pool, nil
}
