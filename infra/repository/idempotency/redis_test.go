package idempotency

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nguyennn/account-svc/pkg/idempotency"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "", ttl, quiet), mr
}

func record(id string, outcome idempotency.Outcome, reason string) idempotency.Record {
	return idempotency.Record{
		TransactionID: id,
		Outcome:       outcome,
		Reason:        reason,
		AppliedAt:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRedisStore_WriteOnce(t *testing.T) {
	t.Parallel()
	store, mr := newRedisStore(t, 0)
	ctx := context.Background()

	_, err := store.Get(ctx, "T1")
	require.ErrorIs(t, err, idempotency.ErrRecordNotFound)

	first := record("T1", idempotency.OutcomeApplied, "")
	stored, written, err := store.PutIfAbsent(ctx, first)
	require.NoError(t, err)
	assert.True(t, written)
	assert.Equal(t, first, stored)
	assert.True(t, mr.Exists("idempotency:T1"))

	stored, written, err = store.PutIfAbsent(ctx, record("T1", idempotency.OutcomeRejected, "INSUFFICIENT_FUNDS"))
	require.NoError(t, err)
	assert.False(t, written)
	assert.Equal(t, first, stored, "the first record wins")

	got, err := store.Get(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, first, *got)
}

func TestRedisStore_TTL(t *testing.T) {
	t.Parallel()
	store, mr := newRedisStore(t, time.Hour)
	ctx := context.Background()

	_, _, err := store.PutIfAbsent(ctx, record("T2", idempotency.OutcomeApplied, ""))
	require.NoError(t, err)
	assert.Equal(t, time.Hour, mr.TTL("idempotency:T2"))

	mr.FastForward(2 * time.Hour)
	_, err = store.Get(ctx, "T2")
	require.ErrorIs(t, err, idempotency.ErrRecordNotFound)
}

func TestRedisStore_CorruptValue(t *testing.T) {
	t.Parallel()
	store, mr := newRedisStore(t, 0)
	require.NoError(t, mr.Set("idempotency:T3", "not json"))

	_, err := store.Get(context.Background(), "T3")
	require.Error(t, err)
	assert.NotErrorIs(t, err, idempotency.ErrRecordNotFound)
}

func TestRedisStore_Unavailable(t *testing.T) {
	t.Parallel()
	store, mr := newRedisStore(t, 0)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, _, err := store.PutIfAbsent(ctx, record("T4", idempotency.OutcomeApplied, ""))
	require.Error(t, err)
}

func TestRedisStore_BacksLedger(t *testing.T) {
	t.Parallel()
	store, _ := newRedisStore(t, 0)
	ledger := idempotency.NewLedger(store, quiet)
	ctx := context.Background()

	res, err := ledger.Reserve(ctx, "T5")
	require.NoError(t, err)
	require.Equal(t, idempotency.StatusNew, res.Status())
	_, err = res.Commit(ctx, idempotency.OutcomeApplied, "")
	require.NoError(t, err)

	again, err := ledger.Reserve(ctx, "T5")
	require.NoError(t, err)
	assert.Equal(t, idempotency.StatusAlreadyApplied, again.Status())
	assert.Equal(t, idempotency.OutcomeApplied, again.Prior().Outcome)
}
