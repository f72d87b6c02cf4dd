package initializer

import (
	"context"
	"fmt"
	"log/slog"

	infra_idempotency "github.com/nguyennn/account-svc/infra/repository/idempotency"
	"github.com/nguyennn/account-svc/pkg/config"
	"github.com/nguyennn/account-svc/pkg/idempotency"
)

// ledgerStore is the configured idempotency backend and its background job.
type ledgerStore struct {
	store idempotency.Store
	// purge runs until ctx is done; nil when the backend expires records itself.
	purge func(ctx context.Context) error
	close func()
}

func initLedgerStore(ctx context.Context, cfg *config.App, redisClient redisProvider, logger *slog.Logger) (*ledgerStore, error) {
	ic := cfg.Idempotency
	switch ic.Backend {
	case config.BackendMemory, "":
		logger.Warn("⚠️ idempotency records kept in memory; duplicates are only detected within this process")
		return &ledgerStore{store: idempotency.NewMemoryStore(), close: func() {}}, nil

	case config.BackendRedis:
		client, err := redisClient(ctx)
		if err != nil {
			return nil, err
		}
		logger.Info("Using redis idempotency store", "prefix", ic.KeyPrefix, "ttl", ic.TTL)
		return &ledgerStore{
			store: infra_idempotency.NewRedisStore(client, ic.KeyPrefix, ic.TTL, logger),
			close: func() {},
		}, nil

	case config.BackendPostgres:
		pool, err := infra_idempotency.OpenPool(ctx, cfg.DB.Url)
		if err != nil {
			return nil, fmt.Errorf("idempotency store: %w", err)
		}
		store := infra_idempotency.NewPostgresStore(pool, logger)
		logger.Info("Using postgres idempotency store", "retention", ic.Retention, "purge_interval", ic.PurgeInterval)
		ls := &ledgerStore{store: store, close: pool.Close}
		if ic.Retention > 0 && ic.PurgeInterval > 0 {
			ls.purge = func(ctx context.Context) error {
				return store.RunPurger(ctx, ic.PurgeInterval, ic.Retention)
			}
		}
		return ls, nil
	}
	return nil, fmt.Errorf("unsupported idempotency backend %q", ic.Backend)
}
