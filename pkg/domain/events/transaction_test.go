package events

import (
	"testing"

	"github.com/google/uuid"
	"github.com/nguyennn/account-svc/pkg/domain/account"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTransactionInitiated(t *testing.T) {
	t.Parallel()
	accountID := uuid.New()

	t.Run("enveloped payload round trips", func(t *testing.T) {
		t.Parallel()
		in := TransactionInitiated{
			TransactionID: "T1",
			AccountID:     accountID,
			Amount:        decimal.RequireFromString("200.00"),
			Direction:     account.Debit,
			CurrencyCode:  "USD",
		}
		raw, err := in.Marshal()
		require.NoError(t, err)

		out, err := DecodeTransactionInitiated(raw)
		require.NoError(t, err)
		assert.Equal(t, "T1", out.TransactionID)
		assert.Equal(t, accountID, out.AccountID)
		assert.True(t, out.Amount.Equal(in.Amount))
		assert.Equal(t, account.Debit, out.Direction)
		assert.Equal(t, CurrentSchemaVersion, out.SchemaVersion)
	})

	t.Run("bare payload accepted", func(t *testing.T) {
		t.Parallel()
		raw := []byte(`{"transactionId":"T2","accountId":"` + accountID.String() +
			`","amount":"15.5","direction":"CREDIT","currencyCode":"EUR"}`)
		out, err := DecodeTransactionInitiated(raw)
		require.NoError(t, err)
		adj, err := out.Adjustment()
		require.NoError(t, err)
		assert.False(t, adj.IsDebit())
		assert.Equal(t, "15.5", adj.Amount.String())
	})

	malformed := map[string]string{
		"empty":                 ``,
		"not json":              `12a,100.00`,
		"positional legacy":     accountID.String() + ",100.00",
		"non numeric amount":    `{"transactionId":"T","accountId":"` + accountID.String() + `","amount":"ten","direction":"DEBIT","currencyCode":"USD"}`,
		"negative amount":       `{"transactionId":"T","accountId":"` + accountID.String() + `","amount":"-1","direction":"DEBIT","currencyCode":"USD"}`,
		"zero amount":           `{"transactionId":"T","accountId":"` + accountID.String() + `","amount":"0.00","direction":"DEBIT","currencyCode":"USD"}`,
		"numeric json amount":   `{"transactionId":"T","accountId":"` + accountID.String() + `","amount":10,"direction":"DEBIT","currencyCode":"USD"}`,
		"invalid uuid":          `{"transactionId":"T","accountId":"not-a-uuid","amount":"1","direction":"DEBIT","currencyCode":"USD"}`,
		"missing direction":     `{"transactionId":"T","accountId":"` + accountID.String() + `","amount":"1","currencyCode":"USD"}`,
		"unknown direction":     `{"transactionId":"T","accountId":"` + accountID.String() + `","amount":"1","direction":"REFUND","currencyCode":"USD"}`,
		"lowercase currency":    `{"transactionId":"T","accountId":"` + accountID.String() + `","amount":"1","direction":"DEBIT","currencyCode":"usd"}`,
		"missing transaction":   `{"accountId":"` + accountID.String() + `","amount":"1","direction":"DEBIT","currencyCode":"USD"}`,
		"wrong envelope type":   `{"type":"Payment.Initiated","payload":{}}`,
		"future schema version": `{"schemaVersion":2,"transactionId":"T","accountId":"` + accountID.String() + `","amount":"1","direction":"DEBIT","currencyCode":"USD"}`,
	}
	for name, raw := range malformed {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeTransactionInitiated([]byte(raw))
			assert.ErrorIs(t, err, ErrMalformedEvent)
		})
	}
}
