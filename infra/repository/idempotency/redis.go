// Package idempotency provides durable stores for the idempotency ledger.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nguyennn/account-svc/pkg/idempotency"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces ledger keys.
const DefaultRedisPrefix = "idempotency:"

// RedisStore keeps records as JSON strings written with SET NX. A positive
// ttl expires records, after which a redelivered event is caught by the
// account store's mutation journal instead.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisStore creates a RedisStore. An empty prefix uses DefaultRedisPrefix;
// ttl <= 0 keeps records forever.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration, logger *slog.Logger) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if ttl < 0 {
		ttl = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl, logger: logger.With("store", "redis-idempotency")}
}

func (r *RedisStore) key(transactionID string) string {
	return r.prefix + transactionID
}

// Get implements idempotency.Store.
func (r *RedisStore) Get(ctx context.Context, transactionID string) (*idempotency.Record, error) {
	val, err := r.client.Get(ctx, r.key(transactionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, idempotency.ErrRecordNotFound
	}
	if err != nil {
		r.logger.Error("Redis ledger get error", "transaction_id", transactionID, "error", err)
		return nil, fmt.Errorf("redis idempotency store: get: %w", err)
	}
	var rec idempotency.Record
	if err := json.Unmarshal(val, &rec); err != nil {
		return nil, fmt.Errorf("redis idempotency store: decode %s: %w", transactionID, err)
	}
	return &rec, nil
}

// PutIfAbsent implements idempotency.Store.
func (r *RedisStore) PutIfAbsent(ctx context.Context, rec idempotency.Record) (idempotency.Record, bool, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return idempotency.Record{}, false, fmt.Errorf("redis idempotency store: encode: %w", err)
	}

	written, err := r.client.SetNX(ctx, r.key(rec.TransactionID), data, r.ttl).Result()
	if err != nil {
		r.logger.Error("Redis ledger set error", "transaction_id", rec.TransactionID, "error", err)
		return idempotency.Record{}, false, fmt.Errorf("redis idempotency store: set: %w", err)
	}
	if written {
		return rec, true, nil
	}

	existing, err := r.Get(ctx, rec.TransactionID)
	if errors.Is(err, idempotency.ErrRecordNotFound) {
		// expired between SETNX and GET
		return r.PutIfAbsent(ctx, rec)
	}
	if err != nil {
		return idempotency.Record{}, false, err
	}
	return *existing, false, nil
}

var _ idempotency.Store = (*RedisStore)(nil)
