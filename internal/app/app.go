// Package app wires the configured dependencies into a running service.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Harsh-BH/Intelligenter/internal/config"
	"github.com/Harsh-BH/Intelligenter/internal/events"
	"github.com/Harsh-BH/Intelligenter/internal/pool"
	"github.com/Harsh-BH/Intelligenter/internal/provider/virustotal"
	"github.com/Harsh-BH/Intelligenter/internal/provider/whois"
	"github.com/Harsh-BH/Intelligenter/internal/repository"
	"github.com/Harsh-BH/Intelligenter/internal/repository/postgres"
	rediscache "github.com/Harsh-BH/Intelligenter/internal/repository/redis"
	"github.com/Harsh-BH/Intelligenter/internal/retry"
	"github.com/Harsh-BH/Intelligenter/internal/scheduler"
	"github.com/Harsh-BH/Intelligenter/internal/usecase"
)

// NewLogger builds a production zap logger at the given level.
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// App holds the shared infrastructure of the server, the scheduler and intelctl.
type App struct {
	Config       *config.Config
	Logger       *zap.Logger
	DB           *pgxpool.Pool
	Redis        *goredis.Client
	Store        repository.RecordStore
	Cache        repository.Cache
	Events       events.Publisher
	Pool         *pool.WorkerPool
	Orchestrator *usecase.AnalysisOrchestrator
}

// New connects to Postgres and Redis, optionally migrates the schema and
// starts the analysis worker pool. Close releases everything New acquired.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	dbPool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.DB = dbPool
	if err := dbPool.Ping(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("Connected to PostgreSQL")

	if cfg.Database.MigrateOnStart {
		if err := postgres.RunMigrations(ctx, dbPool); err != nil {
			_ = a.Close(ctx)
			return nil, err
		}
		logger.Info("Database schema is up to date")
	}

	redisOpts, err := goredis.ParseURL(cfg.Redis.URL)
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	a.Redis = goredis.NewClient(redisOpts)
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("Connected to Redis")

	a.Events = events.Noop{}
	if cfg.RabbitMQ.URL != "" {
		pub, err := events.NewRabbitMQPublisher(cfg.RabbitMQ.URL, logger)
		if err != nil {
			_ = a.Close(ctx)
			return nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		a.Events = pub
		logger.Info("Connected to RabbitMQ")
	}

	a.Store = postgres.NewPostgresDomainRepository(dbPool)
	a.Cache = rediscache.NewRedisCache(a.Redis)

	a.Pool = pool.NewWorkerPool(cfg.Analysis.PoolSize, cfg.Analysis.QueueSize, logger)
	a.Pool.Start(ctx)

	providerRetry := retry.Policy{MaxRetries: cfg.Providers.MaxRetries, BaseDelay: cfg.Providers.BaseDelay}
	vt := virustotal.NewClient(virustotal.Config{
		APIKey:        cfg.Providers.VirusTotalAPIKey,
		BaseURL:       cfg.Providers.VirusTotalBaseURL,
		Timeout:       cfg.Providers.VirusTotalTimeout,
		RatePerMinute: cfg.Providers.VirusTotalRatePerMinute,
		Retry:         providerRetry,
		Synthetic:     cfg.Providers.MockMode,
	}, nil, logger.Named("virustotal"))
	wh := whois.NewClient(whois.Config{
		Timeout:   cfg.Providers.WhoisTimeout,
		Retry:     providerRetry,
		Synthetic: cfg.Providers.MockMode,
	}, nil, logger.Named("whois"))

	a.Orchestrator = usecase.NewAnalysisOrchestrator(usecase.Deps{
		Store:        a.Store,
		Cache:        a.Cache,
		Reputation:   vt,
		Registration: wh,
		Runner:       a.Pool,
		Events:       a.Events,
		Logger:       logger,
	}, usecase.Options{
		CacheTTL:        cfg.Analysis.CacheTTL,
		StalenessWindow: cfg.Analysis.StalenessWindow,
		AnalysisTimeout: cfg.Analysis.Timeout,
	})

	return a, nil
}

// NewScheduler builds the refresh scheduler on top of the orchestrator.
func (a *App) NewScheduler() *scheduler.RefreshScheduler {
	sc := a.Config.Scheduler
	return scheduler.NewRefreshScheduler(scheduler.Config{
		Cron:            sc.Cron,
		Heartbeat:       sc.Heartbeat,
		RefreshInterval: sc.RefreshInterval,
		PageSize:        sc.PageSize,
		BatchDelay:      sc.BatchDelay,
		Retry:           retry.Policy{MaxRetries: sc.MaxRetries, BaseDelay: sc.RetryBaseDelay},
		AnalysisWait:    sc.AnalysisWait,
		StuckTimeout:    sc.StuckTimeout,
	}, a.Store, a.Orchestrator, a.Logger.Named("scheduler"))
}

// Close drains the worker pool and background re-analyses, then closes
// connections. ctx bounds the drain.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Pool != nil {
		if err := a.Pool.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown worker pool: %w", err))
		}
	}
	if a.Orchestrator != nil {
		if err := a.Orchestrator.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("wait for background analyses: %w", err))
		}
	}
	if a.Events != nil {
		if err := a.Events.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
	return errors.Join(errs...)
}
