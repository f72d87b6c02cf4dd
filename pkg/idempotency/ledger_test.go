package idempotency

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type failingStore struct {
	getErr error
	putErr error
	MemoryStore
}

func (f *failingStore) Get(ctx context.Context, id string) (*Record, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.MemoryStore.Get(ctx, id)
}

func (f *failingStore) PutIfAbsent(ctx context.Context, rec Record) (Record, bool, error) {
	if f.putErr != nil {
		return Record{}, false, f.putErr
	}
	return f.MemoryStore.PutIfAbsent(ctx, rec)
}

func TestLedgerReserve(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("new id then already applied after commit", func(t *testing.T) {
		t.Parallel()
		ledger := NewLedger(NewMemoryStore(), testLogger())

		res, err := ledger.Reserve(ctx, "T1")
		require.NoError(t, err)
		assert.Equal(t, StatusNew, res.Status())
		assert.Nil(t, res.Prior())

		rec, err := res.Commit(ctx, OutcomeApplied, "")
		require.NoError(t, err)
		assert.Equal(t, OutcomeApplied, rec.Outcome)
		assert.False(t, rec.AppliedAt.IsZero())

		again, err := ledger.Reserve(ctx, "T1")
		require.NoError(t, err)
		defer again.Release()
		assert.Equal(t, StatusAlreadyApplied, again.Status())
		require.NotNil(t, again.Prior())
		assert.Equal(t, OutcomeApplied, again.Prior().Outcome)
	})

	t.Run("rejection is recorded with its reason", func(t *testing.T) {
		t.Parallel()
		ledger := NewLedger(NewMemoryStore(), testLogger())

		res, err := ledger.Reserve(ctx, "T2")
		require.NoError(t, err)
		_, err = res.Commit(ctx, OutcomeRejected, "INSUFFICIENT_FUNDS")
		require.NoError(t, err)

		again, err := ledger.Reserve(ctx, "T2")
		require.NoError(t, err)
		assert.Equal(t, StatusAlreadyApplied, again.Status())
		assert.Equal(t, OutcomeRejected, again.Prior().Outcome)
		assert.Equal(t, "INSUFFICIENT_FUNDS", again.Prior().Reason)
	})

	t.Run("release leaves id free", func(t *testing.T) {
		t.Parallel()
		store := NewMemoryStore()
		ledger := NewLedger(store, testLogger())

		res, err := ledger.Reserve(ctx, "T3")
		require.NoError(t, err)
		res.Release()
		res.Release()

		assert.Equal(t, 0, store.Len())
		again, err := ledger.Reserve(ctx, "T3")
		require.NoError(t, err)
		defer again.Release()
		assert.Equal(t, StatusNew, again.Status())
	})

	t.Run("empty key", func(t *testing.T) {
		t.Parallel()
		ledger := NewLedger(NewMemoryStore(), testLogger())
		_, err := ledger.Reserve(ctx, "  ")
		assert.ErrorIs(t, err, ErrEmptyKey)
	})

	t.Run("commit after release fails", func(t *testing.T) {
		t.Parallel()
		ledger := NewLedger(NewMemoryStore(), testLogger())
		res, err := ledger.Reserve(ctx, "T4")
		require.NoError(t, err)
		res.Release()
		_, err = res.Commit(ctx, OutcomeApplied, "")
		assert.ErrorIs(t, err, ErrReservationClosed)
	})

	t.Run("non terminal outcome refused", func(t *testing.T) {
		t.Parallel()
		ledger := NewLedger(NewMemoryStore(), testLogger())
		res, err := ledger.Reserve(ctx, "T5")
		require.NoError(t, err)
		defer res.Release()
		_, err = res.Commit(ctx, Outcome("DEAD_LETTERED"), "")
		assert.ErrorIs(t, err, ErrInvalidOutcome)
	})

	t.Run("first recorded outcome wins", func(t *testing.T) {
		t.Parallel()
		store := NewMemoryStore()
		ledger := NewLedger(store, testLogger())
		_, _, err := store.PutIfAbsent(ctx, Record{TransactionID: "T6", Outcome: OutcomeRejected, Reason: "CURRENCY_MISMATCH"})
		require.NoError(t, err)

		// Reservation obtained before the foreign write landed.
		res := &Reservation{ledger: ledger, transactionID: "T6", status: StatusNew}
		rec, err := res.Commit(ctx, OutcomeApplied, "")
		require.NoError(t, err)
		assert.Equal(t, OutcomeRejected, rec.Outcome)
	})

	t.Run("store lookup failure surfaces", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("connection refused")
		ledger := NewLedger(&failingStore{getErr: boom}, testLogger())
		_, err := ledger.Reserve(ctx, "T7")
		assert.ErrorIs(t, err, boom)
	})

	t.Run("commit failure keeps reservation for retry", func(t *testing.T) {
		t.Parallel()
		store := &failingStore{putErr: errors.New("timeout")}
		ledger := NewLedger(store, testLogger())
		res, err := ledger.Reserve(ctx, "T8")
		require.NoError(t, err)

		_, err = res.Commit(ctx, OutcomeApplied, "")
		require.Error(t, err)

		store.putErr = nil
		rec, err := res.Commit(ctx, OutcomeApplied, "")
		require.NoError(t, err)
		assert.Equal(t, OutcomeApplied, rec.Outcome)
		assert.Equal(t, 0, ledger.locks.size())
	})
}

func TestLedgerConcurrentDuplicates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ledger := NewLedger(NewMemoryStore(), testLogger())

	const n = 32
	var (
		wg      sync.WaitGroup
		applied atomic.Int32
		skipped atomic.Int32
	)
	start := make(chan struct{})
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := ledger.Reserve(ctx, "DUP")
			if !assert.NoError(t, err) {
				return
			}
			defer res.Release()
			if res.Status() == StatusAlreadyApplied {
				skipped.Add(1)
				return
			}
			time.Sleep(time.Millisecond)
			applied.Add(1)
			_, err = res.Commit(ctx, OutcomeApplied, "")
			assert.NoError(t, err)
		}()
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, applied.Load())
	assert.EqualValues(t, n-1, skipped.Load())
	assert.Equal(t, 0, ledger.locks.size())
}

func TestLedgerReserveHonoursContext(t *testing.T) {
	t.Parallel()
	ledger := NewLedger(NewMemoryStore(), testLogger())

	held, err := ledger.Reserve(context.Background(), "BUSY")
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = ledger.Reserve(ctx, "BUSY")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// gatedStore blocks reads until gate is closed or the read's ctx ends.
type gatedStore struct {
	*MemoryStore
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (g *gatedStore) Get(ctx context.Context, id string) (*Record, error) {
	g.once.Do(func() { close(g.entered) })
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-g.gate:
	}
	return g.MemoryStore.Get(ctx, id)
}

func TestLedgerSharedLookupSurvivesCallerCancel(t *testing.T) {
	t.Parallel()
	store := &gatedStore{MemoryStore: NewMemoryStore(), gate: make(chan struct{}), entered: make(chan struct{})}
	ledger := NewLedger(store, testLogger())

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := ledger.Reserve(firstCtx, "SHARED")
		firstErr <- err
	}()
	<-store.entered

	type result struct {
		res *Reservation
		err error
	}
	second := make(chan result, 1)
	go func() {
		res, err := ledger.Reserve(context.Background(), "SHARED")
		second <- result{res, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting on the shared lookup")
	}

	close(store.gate)
	select {
	case r := <-second:
		require.NoError(t, r.err)
		defer r.res.Release()
		assert.Equal(t, StatusNew, r.res.Status())
	case <-time.After(time.Second):
		t.Fatal("second caller never got its reservation")
	}
}
