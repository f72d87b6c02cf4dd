package account_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	accountstore "github.com/nguyennn/account-svc/infra/repository/account"
	domain "github.com/nguyennn/account-svc/pkg/domain/account"
	accountweb "github.com/nguyennn/account-svc/webapi/account"
	"github.com/nguyennn/account-svc/webapi/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type AccountRoutesTestSuite struct {
	suite.Suite
	app     *fiber.App
	account *domain.Account
}

func (s *AccountRoutesTestSuite) SetupTest() {
	acc, err := domain.New().
		WithCustomerID(uuid.New()).
		WithAccountNumber("ACC-0001").
		WithType(domain.TypeSavings).
		WithBalance(decimal.RequireFromString("1500.5")).
		WithCurrency("EUR").
		WithVersion(4).
		Build()
	s.Require().NoError(err)
	s.account = acc

	s.app = fiber.New()
	accountweb.Routes(s.app, accountstore.NewMemoryStore(acc))
}

func (s *AccountRoutesTestSuite) get(path string) (*http.Response, []byte) {
	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
	s.Require().NoError(err)
	body, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	_ = resp.Body.Close()
	return resp, body
}

func decodeAccount(t *testing.T, body []byte) accountweb.AccountDTO {
	t.Helper()
	var envelope struct {
		Data accountweb.AccountDTO `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &envelope))
	return envelope.Data
}

func (s *AccountRoutesTestSuite) TestGetByID() {
	resp, body := s.get("/v1/accounts/" + s.account.ID.String())
	s.Equal(http.StatusOK, resp.StatusCode)

	dto := decodeAccount(s.T(), body)
	s.Equal(s.account.ID.String(), dto.ID)
	s.Equal("ACC-0001", dto.AccountNumber)
	s.Equal("SAVINGS", dto.Type)
	s.Equal("1500.50", dto.Balance)
	s.Equal("EUR", dto.Currency)
	s.Equal("ACTIVE", dto.Status)
	s.Equal(int64(4), dto.Version)
}

func (s *AccountRoutesTestSuite) TestGetByNumber() {
	resp, body := s.get("/v1/accounts?number=ACC-0001")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(s.account.ID.String(), decodeAccount(s.T(), body).ID)
}

func (s *AccountRoutesTestSuite) TestErrors() {
	cases := []struct {
		name   string
		path   string
		status int
		code   string
	}{
		{"unknown id", "/v1/accounts/" + uuid.NewString(), http.StatusNotFound, "ACCOUNT_NOT_FOUND"},
		{"malformed id", "/v1/accounts/not-a-uuid", http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown number", "/v1/accounts?number=ACC-9999", http.StatusNotFound, "ACCOUNT_NOT_FOUND"},
		{"missing number", "/v1/accounts", http.StatusBadRequest, "INVALID_REQUEST"},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			resp, body := s.get(tc.path)
			s.Equal(tc.status, resp.StatusCode)
			s.Equal("application/problem+json", resp.Header.Get(fiber.HeaderContentType))

			var pd common.ProblemDetails
			s.Require().NoError(json.Unmarshal(body, &pd))
			s.Equal(tc.code, pd.Code)
			s.Equal(tc.status, pd.Status)
		})
	}
}

func TestAccountRoutesTestSuite(t *testing.T) {
	suite.Run(t, new(AccountRoutesTestSuite))
}
