package repository

import (
	"context"
	"errors"
	"fmt"

	repo "github.com/nguyennn/account-svc/pkg/repository/account"
	"gorm.io/gorm"
)

// MapGormError converts GORM and driver errors to repository errors.
// This keeps infrastructure concerns (database errors) within the infrastructure layer.
// Record-not-found becomes repo.ErrNotFound; context errors are passed through
// untouched so callers can tell a timeout from an outage; everything else is
// reported as repo.ErrStoreUnavailable with the cause still in the chain.
func MapGormError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return repo.ErrNotFound
	case errors.Is(err, repo.ErrNotFound),
		errors.Is(err, repo.ErrVersionConflict),
		errors.Is(err, repo.ErrAlreadyApplied),
		errors.Is(err, repo.ErrStoreUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return err
	}
	return fmt.Errorf("%w: %w", repo.ErrStoreUnavailable, err)
}

// WrapError wraps a GORM operation and automatically maps errors.
//
// Usage:
//
//	err := WrapError(func() error {
//	    return r.db.WithContext(ctx).First(&m, "id = ?", id).Error
//	})
func WrapError(op func() error) error {
	return MapGormError(op())
}
