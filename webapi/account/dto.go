package account

import (
	"time"

	domain "github.com/nguyennn/account-svc/pkg/domain/account"
)

// AccountDTO is the read model returned by the account endpoints. Balance is
// a decimal string so no precision is lost in JSON.
type AccountDTO struct {
	ID            string    `json:"id"`
	CustomerID    string    `json:"customerId"`
	AccountNumber string    `json:"accountNumber"`
	Type          string    `json:"type"`
	Balance       string    `json:"balance"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
	Version       int64     `json:"version"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// ToAccountDTO maps the aggregate to its read model.
func ToAccountDTO(a *domain.Account) AccountDTO {
	return AccountDTO{
		ID:            a.ID.String(),
		CustomerID:    a.CustomerID.String(),
		AccountNumber: a.AccountNumber,
		Type:          string(a.Type),
		Balance:       a.Balance.StringFixed(2),
		Currency:      a.Currency,
		Status:        a.Status.String(),
		Version:       a.Version,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}
