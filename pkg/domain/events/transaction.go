package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/nguyennn/account-svc/pkg/domain/account"
	"github.com/shopspring/decimal"
)

// CurrentSchemaVersion is the TransactionInitiated schema this service understands.
const CurrentSchemaVersion = 1

// ErrMalformedEvent wraps every decode and validation failure. It is never retryable.
var ErrMalformedEvent = errors.New("malformed event")

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func eventValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// TransactionInitiated is the structured inbound event. The wire form keeps
// the amount as a decimal string and states the direction explicitly.
type TransactionInitiated struct {
	SchemaVersion int               `json:"schemaVersion"`
	TransactionID string            `json:"transactionId"`
	AccountID     uuid.UUID         `json:"accountId"`
	Amount        decimal.Decimal   `json:"amount"`
	Direction     account.Direction `json:"direction"`
	CurrencyCode  string            `json:"currencyCode"`
	OccurredAt    *time.Time        `json:"occurredAt,omitempty"`
}

// Type implements Event.
func (e TransactionInitiated) Type() string { return EventTypeTransactionInitiated.String() }

// Adjustment converts the event into the balance adjustment it requests.
func (e TransactionInitiated) Adjustment() (account.Adjustment, error) {
	return account.NewAdjustment(e.TransactionID, e.Amount, e.Direction, e.CurrencyCode)
}

// wireTransactionInitiated mirrors the JSON payload before validation.
type wireTransactionInitiated struct {
	SchemaVersion int        `json:"schemaVersion" validate:"gte=0"`
	TransactionID string     `json:"transactionId" validate:"required,max=128"`
	AccountID     string     `json:"accountId" validate:"required"`
	Amount        string     `json:"amount" validate:"required,numeric"`
	Direction     string     `json:"direction" validate:"required,oneof=CREDIT DEBIT"`
	CurrencyCode  string     `json:"currencyCode" validate:"required,len=3,uppercase,alpha"`
	OccurredAt    *time.Time `json:"occurredAt"`
}

// envelope is the bus framing used by the producers: {"type": ..., "payload": {...}}.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Marshal encodes the event inside the bus envelope.
func (e TransactionInitiated) Marshal() ([]byte, error) {
	w := wireTransactionInitiated{
		SchemaVersion: e.SchemaVersion,
		TransactionID: e.TransactionID,
		AccountID:     e.AccountID.String(),
		Amount:        e.Amount.String(),
		Direction:     string(e.Direction),
		CurrencyCode:  e.CurrencyCode,
		OccurredAt:    e.OccurredAt,
	}
	if w.SchemaVersion == 0 {
		w.SchemaVersion = CurrentSchemaVersion
	}
	payload, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("marshal transaction initiated: %w", err)
	}
	return json.Marshal(envelope{Type: e.Type(), Payload: payload})
}

// DecodeTransactionInitiated parses raw bytes into a validated event. Both the
// enveloped form and a bare payload are accepted. Any failure wraps ErrMalformedEvent.
func DecodeTransactionInitiated(raw []byte) (*TransactionInitiated, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedEvent)
	}

	payload := raw
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.Type != "" || len(env.Payload) > 0 {
		if env.Type != EventTypeTransactionInitiated.String() {
			return nil, fmt.Errorf("%w: unexpected event type %q", ErrMalformedEvent, env.Type)
		}
		payload = env.Payload
	}

	var w wireTransactionInitiated
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	w.TransactionID = strings.TrimSpace(w.TransactionID)
	if err := eventValidator().Struct(w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	if w.SchemaVersion == 0 {
		w.SchemaVersion = CurrentSchemaVersion
	}
	if w.SchemaVersion != CurrentSchemaVersion {
		return nil, fmt.Errorf("%w: unsupported schema version %d", ErrMalformedEvent, w.SchemaVersion)
	}

	accountID, err := uuid.Parse(w.AccountID)
	if err != nil {
		return nil, fmt.Errorf("%w: account id: %v", ErrMalformedEvent, err)
	}
	amount, err := decimal.NewFromString(w.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: amount: %v", ErrMalformedEvent, err)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive, got %s", ErrMalformedEvent, amount)
	}

	return &TransactionInitiated{
		SchemaVersion: w.SchemaVersion,
		TransactionID: w.TransactionID,
		AccountID:     accountID,
		Amount:        amount,
		Direction:     account.Direction(w.Direction),
		CurrencyCode:  w.CurrencyCode,
		OccurredAt:    w.OccurredAt,
	}, nil
}
