package balance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nguyennn/account-svc/pkg/domain/account"
	repo "github.com/nguyennn/account-svc/pkg/repository/account"
	"github.com/shopspring/decimal"
)

// UpdateResult describes an applied adjustment.
type UpdateResult struct {
	TransactionID string          `json:"transactionId"`
	AccountID     uuid.UUID       `json:"accountId"`
	CustomerID    uuid.UUID       `json:"customerId"`
	Currency      string          `json:"currency"`
	OldBalance    decimal.Decimal `json:"oldBalance"`
	NewBalance    decimal.Decimal `json:"newBalance"`
	OldVersion    int64           `json:"oldVersion"`
	NewVersion    int64           `json:"newVersion"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Mutator writes approved adjustments with a compare-and-swap on the
// account version. It is the only writer of balance and version.
type Mutator struct {
	repo   repo.Repository
	logger *slog.Logger
}

// NewMutator creates a Mutator over r.
func NewMutator(r repo.Repository, logger *slog.Logger) *Mutator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mutator{repo: r, logger: logger.With("component", "balance-mutator")}
}

// Apply writes adj on top of snapshot, expecting the stored version to still
// equal snapshot.Version. It returns repo.ErrVersionConflict when another
// writer got there first, repo.ErrNotFound when the account vanished and
// repo.ErrAlreadyApplied when the journal already holds the transaction.
func (m *Mutator) Apply(ctx context.Context, snapshot *account.Account, adj account.Adjustment) (UpdateResult, error) {
	newBalance := adj.ApplyTo(snapshot.Balance)
	if newBalance.IsNegative() {
		return UpdateResult{}, fmt.Errorf("apply %s to account %s: %w", adj.TransactionID, snapshot.ID, account.ErrNegativeBalance)
	}

	applied, err := m.repo.ConditionalUpdateBalance(ctx, repo.Mutation{
		AccountID:       snapshot.ID,
		TransactionID:   adj.TransactionID,
		NewBalance:      newBalance,
		ExpectedVersion: snapshot.Version,
	})
	if err != nil {
		return UpdateResult{}, fmt.Errorf("apply %s to account %s: %w", adj.TransactionID, snapshot.ID, err)
	}

	m.logger.Debug("balance updated",
		"transaction_id", adj.TransactionID,
		"account_id", snapshot.ID,
		"old_balance", snapshot.Balance.String(),
		"new_balance", newBalance.String(),
		"version", applied.NewVersion,
	)

	return UpdateResult{
		TransactionID: adj.TransactionID,
		AccountID:     snapshot.ID,
		CustomerID:    snapshot.CustomerID,
		Currency:      snapshot.Currency,
		OldBalance:    snapshot.Balance,
		NewBalance:    newBalance,
		OldVersion:    snapshot.Version,
		NewVersion:    applied.NewVersion,
		UpdatedAt:     applied.AppliedAt,
	}, nil
}
