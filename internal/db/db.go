package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConfig describes the Postgres pool the service runs on.
type PoolConfig struct {
	Addr           string
	MaxConns       int32
	MaxIdleTime    time.Duration
	ConnectTimeout time.Duration // covers dialing and the first ping; 30s when zero
}

func (c PoolConfig) pgxConfig() (*pgxpool.Config, error) {
	if c.Addr == "" {
		return nil, errors.New("postgres address is required")
	}
	pc, err := pgxpool.ParseConfig(c.Addr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres address: %w", err)
	}
	if c.MaxConns < 0 {
		return nil, fmt.Errorf("max conns must not be negative, got %d", c.MaxConns)
	}
	if c.MaxConns > 0 {
		pc.MaxConns = c.MaxConns
	}
	if c.MaxIdleTime > 0 {
		pc.MaxConnIdleTime = c.MaxIdleTime
	}
	return pc, nil
}

// NewPool opens a pgx pool for cfg and pings it once before returning.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	pc, err := cfg.pgxConfig()
	if err != nil {
		return nil, err
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}
