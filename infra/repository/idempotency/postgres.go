package idempotency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nguyennn/account-svc/pkg/idempotency"
)

const uniqueViolation = "23505"

// DB is the subset of *pgxpool.Pool the Postgres store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// OpenPool creates a pgx pool and checks connectivity.
func OpenPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return pool, nil
}

// PostgresStore keeps records in the idempotency_records table, whose primary
// key on transaction_id makes records write-once.
type PostgresStore struct {
	db     DB
	logger *slog.Logger
}

// NewPostgresStore creates a PostgresStore on db.
func NewPostgresStore(db DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger.With("store", "postgres-idempotency")}
}

// Get implements idempotency.Store.
func (s *PostgresStore) Get(ctx context.Context, transactionID string) (*idempotency.Record, error) {
	var (
		rec     idempotency.Record
		outcome string
	)
	err := s.db.QueryRow(ctx,
		"SELECT transaction_id, outcome, reason, applied_at FROM idempotency_records WHERE transaction_id = $1",
		transactionID).Scan(&rec.TransactionID, &outcome, &rec.Reason, &rec.AppliedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, idempotency.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres idempotency store: get: %w", err)
	}
	rec.Outcome = idempotency.Outcome(outcome)
	rec.AppliedAt = rec.AppliedAt.UTC()
	return &rec, nil
}

// PutIfAbsent implements idempotency.Store.
func (s *PostgresStore) PutIfAbsent(ctx context.Context, rec idempotency.Record) (idempotency.Record, bool, error) {
	_, err := s.db.Exec(ctx,
		"INSERT INTO idempotency_records (transaction_id, outcome, reason, applied_at) VALUES ($1, $2, $3, $4)",
		rec.TransactionID, string(rec.Outcome), rec.Reason, rec.AppliedAt)
	if err == nil {
		return rec, true, nil
	}
	if !isUniqueViolation(err) {
		s.logger.Error("ledger insert failed", "transaction_id", rec.TransactionID, "error", err)
		return idempotency.Record{}, false, fmt.Errorf("postgres idempotency store: insert: %w", err)
	}

	existing, err := s.Get(ctx, rec.TransactionID)
	if err != nil {
		return idempotency.Record{}, false, err
	}
	return *existing, false, nil
}

// Purge deletes records applied more than olderThan ago and returns how many
// were removed.
func (s *PostgresStore) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	tag, err := s.db.Exec(ctx, "DELETE FROM idempotency_records WHERE applied_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres idempotency store: purge: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		s.logger.Info("🧹 purged idempotency records", "count", n, "cutoff", cutoff)
	}
	return tag.RowsAffected(), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

var _ idempotency.Store = (*PostgresStore)(nil)

// RunPurger calls Purge every interval until ctx is done.
func (s *PostgresStore) RunPurger(ctx context.Context, every, retention time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Purge(ctx, retention); err != nil && ctx.Err() == nil {
				s.logger.Warn("⚠️ purge failed", "error", err)
			}
		}
	}
}
