package account

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidAdjustment is returned for zero or negative adjustment amounts and unknown directions.
var ErrInvalidAdjustment = errors.New("invalid adjustment")

// Direction states whether an adjustment adds to or removes from the balance.
type Direction string

const (
	Credit Direction = "CREDIT"
	Debit  Direction = "DEBIT"
)

// ParseDirection parses an upper-case direction name.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case Credit, Debit:
		return d, nil
	}
	return "", fmt.Errorf("%w: unknown direction %q", ErrInvalidAdjustment, s)
}

// Adjustment is a requested balance change. Amount is always a positive
// magnitude; Direction carries the sign.
type Adjustment struct {
	TransactionID string
	Amount        decimal.Decimal
	Direction     Direction
	Currency      string
}

// NewAdjustment validates and builds an Adjustment.
func NewAdjustment(transactionID string, amount decimal.Decimal, dir Direction, currency string) (Adjustment, error) {
	if !amount.IsPositive() {
		return Adjustment{}, fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidAdjustment, amount)
	}
	if _, err := ParseDirection(string(dir)); err != nil {
		return Adjustment{}, err
	}
	if !IsValidCurrencyCode(currency) {
		return Adjustment{}, fmt.Errorf("%w: %q", ErrInvalidCurrencyCode, currency)
	}
	return Adjustment{
		TransactionID: transactionID,
		Amount:        amount,
		Direction:     dir,
		Currency:      currency,
	}, nil
}

// IsDebit reports whether the adjustment decreases the balance.
func (a Adjustment) IsDebit() bool { return a.Direction == Debit }

// Signed returns the amount with the direction applied.
func (a Adjustment) Signed() decimal.Decimal {
	if a.IsDebit() {
		return a.Amount.Neg()
	}
	return a.Amount
}

// ApplyTo returns the balance that results from applying the adjustment.
func (a Adjustment) ApplyTo(balance decimal.Decimal) decimal.Decimal {
	return balance.Add(a.Signed())
}
