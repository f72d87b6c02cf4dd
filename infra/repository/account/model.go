package account

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account represents an account record in the database.
type Account struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	CustomerID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	AccountNumber string          `gorm:"type:varchar(34);not null;uniqueIndex"`
	Type          string          `gorm:"type:varchar(16);not null"`
	Balance       decimal.Decimal `gorm:"type:numeric(19,4);not null"`
	Currency      string          `gorm:"type:char(3);not null"`
	Status        string          `gorm:"type:varchar(16);not null"`
	Version       int64           `gorm:"not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName specifies the table name for the Account model.
func (Account) TableName() string {
	return "accounts"
}

// Mutation is a journal row written in the same transaction as every balance
// change. Its primary key makes a second application of a transaction id fail.
type Mutation struct {
	TransactionID string          `gorm:"type:varchar(128);primaryKey"`
	AccountID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	NewBalance    decimal.Decimal `gorm:"type:numeric(19,4);not null"`
	Version       int64           `gorm:"not null"`
	AppliedAt     time.Time       `gorm:"not null"`
}

// TableName specifies the table name for the Mutation model.
func (Mutation) TableName() string {
	return "account_mutations"
}
