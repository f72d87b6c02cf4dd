package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	repo "github.com/nguyennn/account-svc/pkg/repository/account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDb, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDb.Close() })
	dialector := postgres.New(postgres.Config{
		Conn:       mockDb,
		DriverName: "postgres",
	})
	db, err := gorm.Open(dialector, &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	return db, mock
}

func TestUoW_DoCommits(t *testing.T) {
	db, mock := newMockDB(t)
	uow := NewUoW(db)

	mock.ExpectBegin()
	mock.ExpectCommit()

	called := false
	err := uow.Do(context.Background(), func(tx *gorm.DB) error {
		called = true
		assert.NotNil(t, tx)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUoW_DoRollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	uow := NewUoW(db)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := uow.Do(context.Background(), func(*gorm.DB) error {
		return repo.ErrVersionConflict
	})
	assert.ErrorIs(t, err, repo.ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUoW_BeginFailureIsUnavailable(t *testing.T) {
	db, mock := newMockDB(t)
	uow := NewUoW(db)

	mock.ExpectBegin().WillReturnError(errors.New("begin error"))

	err := uow.Do(context.Background(), func(*gorm.DB) error { return nil })
	assert.ErrorIs(t, err, repo.ErrStoreUnavailable)
}
