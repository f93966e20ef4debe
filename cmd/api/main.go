package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"os"
	"runtime"

	"filmreview/internal/auth"
	"filmreview/internal/db"
	"filmreview/internal/domain/storage"
	"filmreview/internal/invitations"
	"filmreview/internal/ratelimiter"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a colored console logger at the given level.
func NewLogger(level string) (*zap.SugaredLogger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
		}
		lvl = parsed
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderCfg)
	core := zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), lvl)

	return zap.New(core).Sugar(), nil
}

var version = "0.3.0"

//	@title			Film Review API
//	@description	Review invitations for films: issue, complete, revoke and balance them across reviewers.

//	@BasePath					/v1
//	@securityDefinitions.apikey	ApiKeyAuth
//	@in							header
//	@name						Authorization

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	store, err := openStorage(context.Background(), cfg.DB, logger)
	if err != nil {
		logger.Fatal(err)
	}
	defer store.Close()

	rlCfg := cfg.RateLimiter.limiter()
	rateLimiter := ratelimiter.NewFixedWindowLimiter(
		rlCfg.RequestsPerTimeFrame,
		rlCfg.TimeFrame,
	)

	jwtAuthenticator := auth.NewJWTAuthenticator(
		cfg.Auth.Token.Secret,
		cfg.Auth.Token.Iss,
		cfg.Auth.Token.Iss,
		cfg.Auth.Token.Exp,
	)

	app := newApplication(cfg, store, logger, jwtAuthenticator, rateLimiter)

	//Metrics collected http://localhost:8080/v1/debug/vars
	expvar.NewString("version").Set(version)
	expvar.Publish("database", expvar.Func(func() any {
		return store.Stats()
	}))
	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))

	if cfg.RateLimiter.Enabled {
		app.pruneRateLimiterEvery(cfg.RateLimiter.TimeFrame)
	}

	mux := app.mount()

	logger.Fatal(app.run(mux))
}

// newApplication wires the review services on top of store.
func newApplication(cfg config, store *storage.Container, logger *zap.SugaredLogger, authenticator auth.Authenticator, limiter ratelimiter.Limiter) *application {
	manager := invitations.NewManager(store.Reviews, cfg.Reviews.PageSize, logger)
	assigner := invitations.NewAssigner(store.Reviews, store, manager, invitations.AssignerConfig{
		Workers:     cfg.Reviews.AssignWorkers,
		MaxAttempts: cfg.Reviews.AssignMaxAttempts,
	}, logger)

	return &application{
		config:        cfg,
		store:         store,
		logger:        logger,
		authenticator: authenticator,
		rateLimiter:   limiter,
		invitations:   manager,
		assigner:      assigner,
	}
}

func openStorage(ctx context.Context, cfg dbConfig, logger *zap.SugaredLogger) (*storage.Container, error) {
	switch cfg.Driver {
	case "sqlite":
		sqlDB, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Infow("sqlite database opened", "path", cfg.SQLitePath)
		return storage.NewSQLiteContainer(sqlDB), nil
	default:
		pool, err := db.NewPool(ctx, cfg.pool())
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := db.MigratePostgres(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
			logger.Info("postgres migrations applied")
		}
		logger.Info("database connection pool established")
		return storage.NewContainer(pool), nil
	}
}
