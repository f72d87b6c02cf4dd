package repository

import (
	"context"

	"gorm.io/gorm"
)

// UoW is the transaction boundary for store operations that must commit
// together, such as a balance write and its journal entry.
type UoW struct {
	db *gorm.DB
}

// NewUoW creates a new UoW for the given *gorm.DB.
func NewUoW(db *gorm.DB) *UoW {
	return &UoW{db: db}
}

// DB returns the session outside any transaction.
func (u *UoW) DB(ctx context.Context) *gorm.DB {
	return u.db.WithContext(ctx)
}

// Do runs fn inside a transaction. The transaction is rolled back when fn
// returns an error or panics and committed otherwise. Errors are mapped with
// MapGormError.
func (u *UoW) Do(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return MapGormError(u.db.WithContext(ctx).Transaction(fn))
}
