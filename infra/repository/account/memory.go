package account

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	domain "github.com/nguyennn/account-svc/pkg/domain/account"
	repo "github.com/nguyennn/account-svc/pkg/repository/account"
)

// MemoryStore is an in-process account store with the same compare-and-swap
// and journal semantics as the PostgreSQL store.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*domain.Account
	journal  map[string]uuid.UUID
	now      func() time.Time
}

// NewMemoryStore creates a MemoryStore holding a copy of accounts.
func NewMemoryStore(accounts ...*domain.Account) *MemoryStore {
	s := &MemoryStore{
		accounts: make(map[uuid.UUID]*domain.Account, len(accounts)),
		journal:  make(map[string]uuid.UUID),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, a := range accounts {
		s.Put(a)
	}
	return s
}

// Put stores a copy of a, replacing any account with the same id.
func (s *MemoryStore) Put(a *domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a.Clone()
}

// Load implements account.Repository.
func (s *MemoryStore) Load(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return s.Get(ctx, id)
}

// Get implements account.Query.
func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return a.Clone(), nil
}

// GetByNumber implements account.Query.
func (s *MemoryStore) GetByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if a.AccountNumber == accountNumber {
			return a.Clone(), nil
		}
	}
	return nil, repo.ErrNotFound
}

// ConditionalUpdateBalance implements account.Repository.
func (s *MemoryStore) ConditionalUpdateBalance(ctx context.Context, m repo.Mutation) (repo.Applied, error) {
	if err := ctx.Err(); err != nil {
		return repo.Applied{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[m.AccountID]
	if !ok {
		return repo.Applied{}, repo.ErrNotFound
	}
	if a.Version != m.ExpectedVersion {
		return repo.Applied{}, repo.ErrVersionConflict
	}
	if _, seen := s.journal[m.TransactionID]; seen {
		return repo.Applied{}, repo.ErrAlreadyApplied
	}

	now := s.now()
	a.Balance = m.NewBalance
	a.Version++
	a.UpdatedAt = now
	s.journal[m.TransactionID] = m.AccountID
	return repo.Applied{NewVersion: a.Version, AppliedAt: now}, nil
}

// Journaled implements account.Repository.
func (s *MemoryStore) Journaled(ctx context.Context, transactionID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.journal[transactionID]
	return ok, nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*repository)(nil)
)
