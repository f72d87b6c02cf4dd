package balance_test

import (
	"testing"

	"github.com/nguyennn/account-svc/pkg/balance"
	"github.com/nguyennn/account-svc/pkg/domain/account"
	"github.com/shopspring/decimal"
)

// FuzzVerify checks the verifier invariants with random balances and amounts.
func FuzzVerify(f *testing.F) {
	f.Add("100.00", "30", "DEBIT", "USD")
	f.Add("0", "0.01", "DEBIT", "USD")
	f.Add("10", "10", "DEBIT", "EUR")
	f.Add("5", "1e12", "CREDIT", "USD")
	f.Fuzz(func(t *testing.T, start, amount, dir, cc string) {
		bal, err := decimal.NewFromString(start)
		if err != nil {
			t.Skip()
		}
		amt, err := decimal.NewFromString(amount)
		if err != nil {
			t.Skip()
		}
		acc, err := account.New().WithBalance(bal).Build()
		if err != nil {
			t.Skip()
		}
		adj, err := account.NewAdjustment("T-fuzz", amt, account.Direction(dir), cc)
		if err != nil {
			t.Skip()
		}

		res := balance.Verify(acc, adj)
		if res.Approved != (res.Reason == balance.ReasonNone) {
			t.Errorf("approved=%v with reason %q", res.Approved, res.Reason)
		}
		// Invariant: an approved adjustment never projects a negative balance
		if res.Approved && res.ProjectedBalance.IsNegative() {
			t.Errorf("projected balance is negative: %s (start=%s, amount=%s, dir=%s)", res.ProjectedBalance, start, amount, dir)
		}
		// Invariant: a rejection leaves the projection at the current balance
		if !res.Approved && !res.ProjectedBalance.Equal(acc.Balance) {
			t.Errorf("rejected adjustment moved the projection: %s", res.ProjectedBalance)
		}
	})
}
