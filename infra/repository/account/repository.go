package account

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	infrarepo "github.com/nguyennn/account-svc/infra/repository"
	domain "github.com/nguyennn/account-svc/pkg/domain/account"
	repo "github.com/nguyennn/account-svc/pkg/repository/account"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	uow *infrarepo.UoW
	now func() time.Time
}

// Store is the PostgreSQL account store. It serves both the pipeline's
// Repository port and the read-only Query API.
type Store interface {
	repo.Repository
	repo.Query
}

// New creates a gorm-backed account store using the provided *gorm.DB.
func New(db *gorm.DB) Store {
	return &repository{
		uow: infrarepo.NewUoW(db),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Load implements account.Repository.
func (r *repository) Load(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return r.Get(ctx, id)
}

// Get implements account.Query.
func (r *repository) Get(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	var m Account
	if err := infrarepo.WrapError(func() error {
		return r.uow.DB(ctx).First(&m, "id = ?", id).Error
	}); err != nil {
		return nil, err
	}
	return mapModelToDomain(&m)
}

// GetByNumber implements account.Query.
func (r *repository) GetByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	var m Account
	if err := infrarepo.WrapError(func() error {
		return r.uow.DB(ctx).First(&m, "account_number = ?", accountNumber).Error
	}); err != nil {
		return nil, err
	}
	return mapModelToDomain(&m)
}

// Journaled implements account.Repository.
func (r *repository) Journaled(ctx context.Context, transactionID string) (bool, error) {
	var count int64
	if err := infrarepo.WrapError(func() error {
		return r.uow.DB(ctx).Model(&Mutation{}).Where("transaction_id = ?", transactionID).Count(&count).Error
	}); err != nil {
		return false, fmt.Errorf("journal lookup %s: %w", transactionID, err)
	}
	return count > 0, nil
}

// ConditionalUpdateBalance implements account.Repository.
//
// The balance write is guarded by "version = expected" and the journal insert
// by the transaction id primary key; both land in one transaction or neither
// does.
func (r *repository) ConditionalUpdateBalance(ctx context.Context, mut repo.Mutation) (repo.Applied, error) {
	now := r.now()
	newVersion := mut.ExpectedVersion + 1

	err := r.uow.Do(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&Account{}).
			Where("id = ? AND version = ?", mut.AccountID, mut.ExpectedVersion).
			Updates(map[string]any{
				"balance":    mut.NewBalance,
				"version":    gorm.Expr("version + 1"),
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&Account{}).Where("id = ?", mut.AccountID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return repo.ErrNotFound
			}
			return repo.ErrVersionConflict
		}

		res = tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&Mutation{
			TransactionID: mut.TransactionID,
			AccountID:     mut.AccountID,
			NewBalance:    mut.NewBalance,
			Version:       newVersion,
			AppliedAt:     now,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repo.ErrAlreadyApplied
		}
		return nil
	})
	if err != nil {
		return repo.Applied{}, fmt.Errorf("update balance of %s: %w", mut.AccountID, err)
	}
	return repo.Applied{NewVersion: newVersion, AppliedAt: now}, nil
}

// mapModelToDomain maps a GORM model to the domain aggregate.
func mapModelToDomain(m *Account) (*domain.Account, error) {
	status, err := domain.ParseStatus(m.Status)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", m.ID, err)
	}
	return domain.New().
		WithID(m.ID).
		WithCustomerID(m.CustomerID).
		WithAccountNumber(m.AccountNumber).
		WithType(domain.Type(m.Type)).
		WithBalance(m.Balance).
		WithCurrency(m.Currency).
		WithStatus(status).
		WithVersion(m.Version).
		WithCreatedAt(m.CreatedAt).
		WithUpdatedAt(m.UpdatedAt).
		Build()
}

// mapDomainToModel maps the domain aggregate to its GORM model.
func mapDomainToModel(a *domain.Account) Account {
	return Account{
		ID:            a.ID,
		CustomerID:    a.CustomerID,
		AccountNumber: a.AccountNumber,
		Type:          string(a.Type),
		Balance:       a.Balance,
		Currency:      a.Currency,
		Status:        string(a.Status),
		Version:       a.Version,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

// Seed inserts accounts. Used by the CLI and by tests; the pipeline never
// creates accounts.
func Seed(ctx context.Context, db *gorm.DB, accounts ...*domain.Account) error {
	models := make([]Account, 0, len(accounts))
	for _, a := range accounts {
		models = append(models, mapDomainToModel(a))
	}
	if len(models) == 0 {
		return nil
	}
	return infrarepo.WrapError(func() error {
		return db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&models).Error
	})
}
