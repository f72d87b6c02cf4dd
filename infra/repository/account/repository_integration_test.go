package account

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	domain "github.com/nguyennn/account-svc/pkg/domain/account"
	repo "github.com/nguyennn/account-svc/pkg/repository/account"
	"github.com/nguyennn/account-svc/pkg/testutils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupPostgresStore(t *testing.T) (Store, *gorm.DB) {
	t.Helper()
	dsn := testutils.StartPostgres(t)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return New(db), db
}

func TestRepository_Postgres(t *testing.T) {
	store, db := setupPostgresStore(t)
	ctx := context.Background()

	acc, err := domain.New().
		WithCustomerID(uuid.New()).
		WithAccountNumber("ACC-IT-1").
		WithBalance(decimal.RequireFromString("100.00")).
		Build()
	require.NoError(t, err)
	require.NoError(t, Seed(ctx, db, acc))

	t.Run("conditional update applies once", func(t *testing.T) {
		applied, err := store.ConditionalUpdateBalance(ctx, repo.Mutation{
			AccountID:       acc.ID,
			TransactionID:   "IT-T1",
			NewBalance:      decimal.RequireFromString("70.00"),
			ExpectedVersion: 0,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), applied.NewVersion)

		got, err := store.Load(ctx, acc.ID)
		require.NoError(t, err)
		assert.True(t, got.Balance.Equal(decimal.RequireFromString("70")), "balance %s", got.Balance)
		assert.Equal(t, int64(1), got.Version)
	})

	t.Run("journal refuses the same transaction and rolls back", func(t *testing.T) {
		_, err := store.ConditionalUpdateBalance(ctx, repo.Mutation{
			AccountID:       acc.ID,
			TransactionID:   "IT-T1",
			NewBalance:      decimal.RequireFromString("40.00"),
			ExpectedVersion: 1,
		})
		require.ErrorIs(t, err, repo.ErrAlreadyApplied)

		got, err := store.Load(ctx, acc.ID)
		require.NoError(t, err)
		assert.True(t, got.Balance.Equal(decimal.RequireFromString("70")))
		assert.Equal(t, int64(1), got.Version)
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		_, err := store.ConditionalUpdateBalance(ctx, repo.Mutation{
			AccountID:       acc.ID,
			TransactionID:   "IT-T2",
			NewBalance:      decimal.RequireFromString("1.00"),
			ExpectedVersion: 0,
		})
		require.ErrorIs(t, err, repo.ErrVersionConflict)
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := store.ConditionalUpdateBalance(ctx, repo.Mutation{
			AccountID:     uuid.New(),
			TransactionID: "IT-T3",
			NewBalance:    decimal.RequireFromString("1.00"),
		})
		require.ErrorIs(t, err, repo.ErrNotFound)

		_, err = store.Get(ctx, uuid.New())
		require.ErrorIs(t, err, repo.ErrNotFound)
	})

	t.Run("lookup by number", func(t *testing.T) {
		got, err := store.GetByNumber(ctx, "ACC-IT-1")
		require.NoError(t, err)
		assert.Equal(t, acc.ID, got.ID)
	})
}

func TestRepository_PostgresConcurrentCredits(t *testing.T) {
	store, db := setupPostgresStore(t)
	ctx := context.Background()

	acc, err := domain.New().WithCustomerID(uuid.New()).WithAccountNumber("ACC-IT-2").Build()
	require.NoError(t, err)
	require.NoError(t, Seed(ctx, db, acc))

	const writers = 10
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				snap, err := store.Load(ctx, acc.ID)
				if err != nil {
					errs <- err
					return
				}
				_, err = store.ConditionalUpdateBalance(ctx, repo.Mutation{
					AccountID:       acc.ID,
					TransactionID:   fmt.Sprintf("IT-C%d", i),
					NewBalance:      snap.Balance.Add(decimal.NewFromInt(1)),
					ExpectedVersion: snap.Version,
				})
				if errors.Is(err, repo.ErrVersionConflict) {
					continue
				}
				if err != nil {
					errs <- err
				}
				return
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := store.Load(ctx, acc.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(writers)), "balance %s", got.Balance)
	assert.Equal(t, int64(writers), got.Version)
}
