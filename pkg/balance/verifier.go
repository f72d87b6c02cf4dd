// Package balance decides whether an adjustment may be applied to an account
// and applies approved adjustments through the account repository.
package balance

import (
	"github.com/google/uuid"
	"github.com/nguyennn/account-svc/pkg/domain/account"
	"github.com/shopspring/decimal"
)

// Reason names why an adjustment was rejected.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonAccountNotActive  Reason = "ACCOUNT_NOT_ACTIVE"
	ReasonInsufficientFunds Reason = "INSUFFICIENT_FUNDS"
	ReasonCurrencyMismatch  Reason = "CURRENCY_MISMATCH"
)

func (r Reason) String() string { return string(r) }

// Err returns the domain error matching r, or nil for ReasonNone.
func (r Reason) Err() error {
	switch r {
	case ReasonAccountNotActive:
		return account.ErrAccountNotActive
	case ReasonInsufficientFunds:
		return account.ErrInsufficientFunds
	case ReasonCurrencyMismatch:
		return account.ErrCurrencyMismatch
	}
	return nil
}

// VerificationResult is the verifier's decision together with the figures it was based on.
type VerificationResult struct {
	Approved         bool            `json:"approved"`
	Reason           Reason          `json:"reason,omitempty"`
	TransactionID    string          `json:"transactionId"`
	AccountID        uuid.UUID       `json:"accountId"`
	CustomerID       uuid.UUID       `json:"customerId"`
	Currency         string          `json:"currency"`
	CurrentBalance   decimal.Decimal `json:"currentBalance"`
	ProjectedBalance decimal.Decimal `json:"projectedBalance"`
	Version          int64           `json:"version"`
}

// Verify decides whether adj may be applied to acc. It has no side effects.
//
// Rules are evaluated in order and the first failing one wins: the account must
// be ACTIVE, a debit must not exceed the balance, and the currencies must match.
func Verify(acc *account.Account, adj account.Adjustment) VerificationResult {
	res := VerificationResult{
		TransactionID:    adj.TransactionID,
		AccountID:        acc.ID,
		CustomerID:       acc.CustomerID,
		Currency:         acc.Currency,
		CurrentBalance:   acc.Balance,
		ProjectedBalance: acc.Balance,
		Version:          acc.Version,
	}

	switch {
	case !acc.Status.PermitsMutation():
		res.Reason = ReasonAccountNotActive
	case adj.IsDebit() && adj.Amount.GreaterThan(acc.Balance):
		res.Reason = ReasonInsufficientFunds
	case adj.Currency != acc.Currency:
		res.Reason = ReasonCurrencyMismatch
	default:
		res.Approved = true
		res.ProjectedBalance = adj.ApplyTo(acc.Balance)
	}
	return res
}
