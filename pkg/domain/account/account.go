package account

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrAccountNotFound is returned when an account cannot be found.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountNotActive is returned when a balance mutation targets an account whose status is not ACTIVE.
	ErrAccountNotActive = errors.New("account not active")

	// ErrInsufficientFunds is returned when a debit exceeds the account balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrCurrencyMismatch is returned when an adjustment's currency differs from the account currency.
	ErrCurrencyMismatch = errors.New("currency mismatch")

	// ErrInvalidCurrencyCode is returned when a currency code is not three uppercase letters.
	ErrInvalidCurrencyCode = errors.New("invalid currency code")

	// ErrNegativeBalance is returned when an account would be built or mutated below zero.
	ErrNegativeBalance = errors.New("balance cannot be negative")

	// ErrInvalidStatus is returned for status values outside the known set.
	ErrInvalidStatus = errors.New("invalid account status")
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Status is the lifecycle state of an account.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusDormant Status = "DORMANT"
	StatusFrozen  Status = "FROZEN"
	StatusClosed  Status = "CLOSED"
)

// ParseStatus converts a stored status string into a Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusActive, StatusDormant, StatusFrozen, StatusClosed:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// PermitsMutation reports whether balance adjustments may be applied.
func (s Status) PermitsMutation() bool { return s == StatusActive }

func (s Status) String() string { return string(s) }

// Type classifies the product an account belongs to.
type Type string

const (
	TypeChecking Type = "CHECKING"
	TypeSavings  Type = "SAVINGS"
	TypeLoan     Type = "LOAN"
	TypeMerchant Type = "MERCHANT"
)

// IsValidCurrencyCode reports whether code is a 3-letter uppercase ISO 4217 style code.
func IsValidCurrencyCode(code string) bool {
	return currencyPattern.MatchString(code)
}

// Account is the aggregate mutated by the balance pipeline.
//
// Invariants:
//   - Currency is fixed at creation.
//   - Balance never goes negative through a debit.
//   - Version increases by exactly one on every successful balance mutation.
type Account struct {
	ID            uuid.UUID
	CustomerID    uuid.UUID
	AccountNumber string
	Type          Type
	Balance       decimal.Decimal
	Currency      string
	Status        Status
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Builder provides a fluent API for constructing Account instances.
// It is used when hydrating from a store and in tests.
type Builder struct {
	id            uuid.UUID
	customerID    uuid.UUID
	accountNumber string
	accountType   Type
	balance       decimal.Decimal
	currency      string
	status        Status
	version       int64
	createdAt     time.Time
	updatedAt     time.Time
}

// New creates a Builder with a fresh ID, an ACTIVE CHECKING account in USD and a zero balance.
func New() *Builder {
	now := time.Now().UTC()
	return &Builder{
		id:          uuid.New(),
		accountType: TypeChecking,
		balance:     decimal.Zero,
		currency:    "USD",
		status:      StatusActive,
		createdAt:   now,
		updatedAt:   now,
	}
}

func (b *Builder) WithID(id uuid.UUID) *Builder {
	b.id = id
	return b
}

func (b *Builder) WithCustomerID(id uuid.UUID) *Builder {
	b.customerID = id
	return b
}

func (b *Builder) WithAccountNumber(n string) *Builder {
	b.accountNumber = n
	return b
}

func (b *Builder) WithType(t Type) *Builder {
	b.accountType = t
	return b
}

// WithBalance sets the balance. Only for hydration and test setup; live
// balance changes go through the mutator.
func (b *Builder) WithBalance(balance decimal.Decimal) *Builder {
	b.balance = balance
	return b
}

func (b *Builder) WithCurrency(code string) *Builder {
	b.currency = code
	return b
}

func (b *Builder) WithStatus(s Status) *Builder {
	b.status = s
	return b
}

func (b *Builder) WithVersion(v int64) *Builder {
	b.version = v
	return b
}

func (b *Builder) WithCreatedAt(t time.Time) *Builder {
	b.createdAt = t
	return b
}

func (b *Builder) WithUpdatedAt(t time.Time) *Builder {
	b.updatedAt = t
	return b
}

// Build validates the invariants and returns the Account.
func (b *Builder) Build() (*Account, error) {
	if !IsValidCurrencyCode(b.currency) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCurrencyCode, b.currency)
	}
	if _, err := ParseStatus(string(b.status)); err != nil {
		return nil, err
	}
	if b.balance.IsNegative() {
		return nil, ErrNegativeBalance
	}
	return &Account{
		ID:            b.id,
		CustomerID:    b.customerID,
		AccountNumber: b.accountNumber,
		Type:          b.accountType,
		Balance:       b.balance,
		Currency:      b.currency,
		Status:        b.status,
		Version:       b.version,
		CreatedAt:     b.createdAt,
		UpdatedAt:     b.updatedAt,
	}, nil
}

// Clone returns a copy that can be handed out without sharing mutable state.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}
