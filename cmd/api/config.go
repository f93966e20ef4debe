package main

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"filmreview/internal/db"
	"filmreview/internal/ratelimiter"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type config struct {
	Addr        string `env:"ADDR" envDefault:":8080"`
	Env         string `env:"ENV" envDefault:"development"`
	APIURL      string `env:"EXTERNAL_URL" envDefault:"localhost:8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	DB          dbConfig
	Auth        authConfig
	RateLimiter rateLimiterConfig
	Reviews     reviewsConfig
}

type dbConfig struct {
	Driver         string        `env:"DB_DRIVER" envDefault:"postgres"`
	Addr           string        `env:"DB_ADDR"`
	MaxOpenConns   int32         `env:"DB_MAX_OPEN_CONNS" envDefault:"30"`
	MaxIdleTime    time.Duration `env:"DB_MAX_IDLE_TIME" envDefault:"15m"`
	ConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"30s"`
	SQLitePath     string        `env:"SQLITE_PATH" envDefault:"filmreview.sqlite"`
	AutoMigrate    bool          `env:"DB_AUTO_MIGRATE" envDefault:"false"`
}

func (c dbConfig) pool() db.PoolConfig {
	return db.PoolConfig{
		Addr:           c.Addr,
		MaxConns:       c.MaxOpenConns,
		MaxIdleTime:    c.MaxIdleTime,
		ConnectTimeout: c.ConnectTimeout,
	}
}

type authConfig struct {
	Basic basicConfig
	Token tokenConfig
}

type basicConfig struct {
	User string `env:"AUTH_BASIC_USER"`
	Pass string `env:"AUTH_BASIC_PASS"`
}

type tokenConfig struct {
	Secret string        `env:"AUTH_TOKEN_SECRET"`
	Exp    time.Duration `env:"AUTH_TOKEN_EXP" envDefault:"72h"`
	Iss    string        `env:"AUTH_TOKEN_ISS" envDefault:"filmreview"`
}

type rateLimiterConfig struct {
	RequestsPerTimeFrame int           `env:"RATELIMITER_REQUESTS_COUNT" envDefault:"200"`
	TimeFrame            time.Duration `env:"RATELIMITER_TIMEFRAME" envDefault:"5s"`
	Enabled              bool          `env:"RATE_LIMITER_ENABLED" envDefault:"false"`
}

func (c rateLimiterConfig) limiter() ratelimiter.Config {
	return ratelimiter.Config{
		RequestsPerTimeFrame: c.RequestsPerTimeFrame,
		TimeFrame:            c.TimeFrame,
		Enabled:              c.Enabled,
	}
}

type reviewsConfig struct {
	PageSize          int `env:"REVIEWS_PAGE_SIZE" envDefault:"10"`
	AssignWorkers     int `env:"ASSIGN_WORKERS" envDefault:"1"`
	AssignMaxAttempts int `env:"ASSIGN_MAX_ATTEMPTS" envDefault:"3"`
}

// loadConfig reads an optional .env file and then the process environment.
func loadConfig(files ...string) (config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (c config) validate() error {
	switch c.DB.Driver {
	case "postgres":
		if c.DB.Addr == "" {
			return errors.New("DB_ADDR is required when DB_DRIVER=postgres")
		}
	case "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q (want postgres or sqlite)", c.DB.Driver)
	}
	if c.DB.MaxOpenConns < 1 {
		return fmt.Errorf("DB_MAX_OPEN_CONNS must be positive, got %d", c.DB.MaxOpenConns)
	}
	if c.Auth.Token.Secret == "" {
		return errors.New("AUTH_TOKEN_SECRET is required")
	}
	if c.Reviews.PageSize < 1 {
		return fmt.Errorf("REVIEWS_PAGE_SIZE must be positive, got %d", c.Reviews.PageSize)
	}
	return nil
}
