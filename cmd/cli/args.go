package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	domain "github.com/nguyennn/account-svc/pkg/domain/account"
	"github.com/nguyennn/account-svc/pkg/domain/events"
	"github.com/shopspring/decimal"
)

var errUsage = errors.New("wrong number of arguments")

func parsePublishArgs(args []string) (events.TransactionInitiated, error) {
	if len(args) < 4 || len(args) > 5 {
		return events.TransactionInitiated{}, fmt.Errorf("%w: publish <account_id> <amount> <CREDIT|DEBIT> <currency> [transaction_id]", errUsage)
	}
	accountID, err := uuid.Parse(args[0])
	if err != nil {
		return events.TransactionInitiated{}, fmt.Errorf("invalid account id: %w", err)
	}
	amount, err := decimal.NewFromString(args[1])
	if err != nil {
		return events.TransactionInitiated{}, fmt.Errorf("invalid amount: %w", err)
	}
	dir, err := domain.ParseDirection(strings.ToUpper(args[2]))
	if err != nil {
		return events.TransactionInitiated{}, err
	}
	txID := uuid.NewString()
	if len(args) == 5 {
		txID = args[4]
	}
	now := time.Now().UTC()
	evt := events.TransactionInitiated{
		SchemaVersion: events.CurrentSchemaVersion,
		TransactionID: txID,
		AccountID:     accountID,
		Amount:        amount,
		Direction:     dir,
		CurrencyCode:  strings.ToUpper(args[3]),
		OccurredAt:    &now,
	}
	if _, err := evt.Adjustment(); err != nil {
		return events.TransactionInitiated{}, err
	}
	return evt, nil
}

func parseSeedArgs(args []string) (*domain.Account, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, fmt.Errorf("%w: seed <account_number> <currency> [balance]", errUsage)
	}
	balance := decimal.Zero
	if len(args) == 3 {
		var err error
		if balance, err = decimal.NewFromString(args[2]); err != nil {
			return nil, fmt.Errorf("invalid balance: %w", err)
		}
	}
	return domain.New().
		WithCustomerID(uuid.New()).
		WithAccountNumber(args[0]).
		WithCurrency(strings.ToUpper(args[1])).
		WithBalance(balance).
		Build()
}
