package account

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	domain "github.com/nguyennn/account-svc/pkg/domain/account"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when no account exists for the given key.
	ErrNotFound = domain.ErrAccountNotFound

	// ErrVersionConflict is returned when a conditional update observed a
	// different version than expected.
	ErrVersionConflict = errors.New("account version conflict")

	// ErrAlreadyApplied is returned when the mutation journal already holds the
	// transaction id. The balance was changed by an earlier delivery.
	ErrAlreadyApplied = errors.New("transaction already applied to account")

	// ErrStoreUnavailable marks infrastructure failures reaching the store.
	ErrStoreUnavailable = errors.New("account store unavailable")
)

// Mutation is a compare-and-swap balance update.
type Mutation struct {
	AccountID       uuid.UUID
	TransactionID   string
	NewBalance      decimal.Decimal
	ExpectedVersion int64
}

// Applied describes a successful conditional update.
type Applied struct {
	NewVersion int64
	AppliedAt  time.Time
}

// Repository is the Account Store port consumed by the balance pipeline.
type Repository interface {
	// Load returns the current snapshot or ErrNotFound.
	Load(ctx context.Context, id uuid.UUID) (*domain.Account, error)

	// ConditionalUpdateBalance writes NewBalance and increments the version in
	// one durable operation, only if the stored version equals ExpectedVersion.
	// Returns ErrVersionConflict, ErrNotFound or ErrAlreadyApplied otherwise.
	ConditionalUpdateBalance(ctx context.Context, m Mutation) (Applied, error)

	// Journaled reports whether the mutation journal holds transactionID,
	// meaning its balance change has already been written.
	Journaled(ctx context.Context, transactionID string) (bool, error)
}

// Query is the read-only Account Query API. It never mutates.
type Query interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByNumber(ctx context.Context, accountNumber string) (*domain.Account, error)
}
