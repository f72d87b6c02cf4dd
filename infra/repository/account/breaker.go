package account

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	domain "github.com/nguyennn/account-svc/pkg/domain/account"
	repo "github.com/nguyennn/account-svc/pkg/repository/account"
	"github.com/sony/gobreaker"
)

// BreakerConfig configures the circuit breaker around the account store.
type BreakerConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

type breakerRepository struct {
	next    repo.Repository
	breaker *gobreaker.CircuitBreaker
}

// WithCircuitBreaker wraps next so that a store that keeps failing is not
// hammered by retries. While the breaker is open calls fail fast with
// gobreaker.ErrOpenState. Not-found, conflicts and already-applied answers
// mean the store is healthy and do not count as failures.
func WithCircuitBreaker(next repo.Repository, cfg BreakerConfig, logger *slog.Logger) repo.Repository {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	settings := gobreaker.Settings{
		Name:        "account-store",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("⚡ circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, repo.ErrNotFound) ||
				errors.Is(err, repo.ErrVersionConflict) ||
				errors.Is(err, repo.ErrAlreadyApplied) ||
				errors.Is(err, context.Canceled)
		},
	}
	return &breakerRepository{next: next, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (b *breakerRepository) Load(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	v, err := b.breaker.Execute(func() (interface{}, error) {
		return b.next.Load(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Account), nil
}

func (b *breakerRepository) ConditionalUpdateBalance(ctx context.Context, m repo.Mutation) (repo.Applied, error) {
	v, err := b.breaker.Execute(func() (interface{}, error) {
		return b.next.ConditionalUpdateBalance(ctx, m)
	})
	if err != nil {
		return repo.Applied{}, err
	}
	return v.(repo.Applied), nil
}

func (b *breakerRepository) Journaled(ctx context.Context, transactionID string) (bool, error) {
	v, err := b.breaker.Execute(func() (interface{}, error) {
		return b.next.Journaled(ctx, transactionID)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// State reports the breaker state, for readiness checks.
func (b *breakerRepository) State() gobreaker.State {
	return b.breaker.State()
}
