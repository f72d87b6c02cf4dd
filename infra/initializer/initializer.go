package initializer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	infra_metrics "github.com/nguyennn/account-svc/infra/metrics"
	accountstore "github.com/nguyennn/account-svc/infra/repository/account"
	"github.com/nguyennn/account-svc/pkg/balance"
	"github.com/nguyennn/account-svc/pkg/config"
	"github.com/nguyennn/account-svc/pkg/consumer"
	"github.com/nguyennn/account-svc/pkg/idempotency"
	repo "github.com/nguyennn/account-svc/pkg/repository/account"
	"github.com/nguyennn/account-svc/pkg/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"gorm.io/gorm"
)

// Deps is the fully wired balance pipeline.
type Deps struct {
	Config     *config.App
	Logger     *slog.Logger
	DB         *gorm.DB
	Accounts   repo.Query
	Repository repo.Repository
	Ledger     *idempotency.Ledger
	Transport  *Transport
	Consumer   *consumer.Consumer
	Dispatcher *consumer.Dispatcher
	Registry   *prometheus.Registry
	// Purge runs the idempotency record purger; nil when not needed.
	Purge func(ctx context.Context) error

	closers []func() error
}

// InitializeDependencies builds every component from cfg. On error whatever
// was already opened is closed again.
func InitializeDependencies(ctx context.Context, cfg *config.App) (deps *Deps, err error) {
	logger := SetupLogger(cfg.Log)
	return buildDependencies(ctx, cfg, logger, nil)
}

// buildDependencies wires the pipeline. A non-nil db skips opening the
// database.
func buildDependencies(ctx context.Context, cfg *config.App, logger *slog.Logger, db *gorm.DB) (deps *Deps, err error) {
	deps = &Deps{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = deps.Close()
			deps = nil
		}
	}()

	if db == nil {
		db, err = NewDBConnection(ctx, cfg.DB, cfg.Env, logger)
		if err != nil {
			logger.Error("Failed to initialize database", "error", err)
			return deps, err
		}
		deps.addCloser(func() error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		})
	}
	deps.DB = db

	store := accountstore.New(db)
	deps.Accounts = store
	deps.Repository = store
	if cfg.Breaker.Enabled {
		deps.Repository = accountstore.WithCircuitBreaker(store, accountstore.BreakerConfig{
			MaxRequests:         cfg.Breaker.MaxRequests,
			Interval:            cfg.Breaker.Interval,
			Timeout:             cfg.Breaker.Timeout,
			ConsecutiveFailures: cfg.Breaker.ConsecutiveFailures,
		}, logger)
	}

	redisClient := deps.sharedRedis(cfg.Redis)

	ls, err := initLedgerStore(ctx, cfg, redisClient, logger)
	if err != nil {
		return deps, err
	}
	deps.addCloser(func() error { ls.close(); return nil })
	deps.Ledger = idempotency.NewLedger(ls.store, logger)
	deps.Purge = ls.purge

	deps.Transport, err = initTransport(ctx, cfg, redisClient, logger)
	if err != nil {
		return deps, err
	}
	deps.addCloser(deps.Transport.Close)

	deps.Registry = prometheus.NewRegistry()
	deps.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	pipelineMetrics := infra_metrics.NewPipeline(deps.Registry)

	retrier := retry.New(retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Delay:       cfg.Retry.Delay,
		Strategy:    retry.Strategy(cfg.Retry.Strategy),
		MaxDelay:    cfg.Retry.MaxDelay,
	}, logger, retry.WithRetryHook(pipelineMetrics.RetryHook()))

	deps.Consumer, err = consumer.New(consumer.Deps{
		Ledger:      deps.Ledger,
		Accounts:    deps.Repository,
		Mutator:     balance.NewMutator(deps.Repository, logger),
		Retrier:     retrier,
		DeadLetters: deps.Transport.DeadLetters,
		Metrics:     pipelineMetrics,
		Logger:      logger,
	}, consumer.WithAttemptTimeout(cfg.Retry.AttemptTimeout))
	if err != nil {
		return deps, err
	}

	deps.Dispatcher = consumer.NewDispatcher(consumer.DispatcherConfig{
		Concurrency: cfg.Consumer.Concurrency,
		QueueSize:   cfg.Consumer.QueueSize,
	}, deps.Consumer.Handle, consumer.AccountKey, pipelineMetrics, logger)

	logger.Info("✅ pipeline initialized",
		"transport", deps.Transport.Kind,
		"idempotency_backend", cfg.Idempotency.Backend,
		"concurrency", cfg.Consumer.Concurrency,
		"breaker", cfg.Breaker.Enabled,
	)
	return deps, nil
}

// sharedRedis dials redis at most once, for whichever components need it.
func (d *Deps) sharedRedis(cfg *config.Redis) redisProvider {
	var (
		once   sync.Once
		client *redis.Client
		err    error
	)
	return func(ctx context.Context) (redis.UniversalClient, error) {
		once.Do(func() {
			client, err = NewRedisClient(ctx, cfg)
			if err == nil {
				d.addCloser(client.Close)
			}
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

func (d *Deps) addCloser(fn func() error) {
	d.closers = append(d.closers, fn)
}

// Close releases everything in reverse order of creation.
func (d *Deps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

// Ready reports whether the pipeline can make progress: the database answers
// and the account store breaker is not open.
func (d *Deps) Ready(ctx context.Context) error {
	if d.DB != nil {
		sqlDB, err := d.DB.DB()
		if err != nil {
			return err
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if b, ok := d.Repository.(interface{ State() gobreaker.State }); ok && b.State() == gobreaker.StateOpen {
		return errors.New("account store circuit breaker is open")
	}
	return nil
}
