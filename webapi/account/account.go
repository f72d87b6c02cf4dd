// Package account serves read-only account lookups.
package account

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	repo "github.com/nguyennn/account-svc/pkg/repository/account"
	"github.com/nguyennn/account-svc/webapi/common"
)

// Routes registers:
//   - GET /v1/accounts/:id          : account by id
//   - GET /v1/accounts?number=...   : account by account number
func Routes(app *fiber.App, accounts repo.Query) {
	v1 := app.Group("/v1/accounts")
	v1.Get("/", GetByNumber(accounts))
	v1.Get("/:id", GetAccount(accounts))
}

// GetAccount returns the account with the id in the path.
func GetAccount(accounts repo.Query) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid account ID", fmt.Errorf("%w: %w", common.ErrInvalidRequest, err))
		}
		a, err := accounts.Get(c.UserContext(), id)
		if err != nil {
			if common.ErrorToStatusCode(err) >= fiber.StatusInternalServerError {
				slog.Error("Failed to load account", "account_id", id, "error", err)
			}
			return common.ProblemDetailsJSON(c, "Failed to get account", err)
		}
		return c.JSON(common.Response{Status: fiber.StatusOK, Message: "Account fetched", Data: ToAccountDTO(a)})
	}
}

// GetByNumber returns the account with the number given in the query string.
func GetByNumber(accounts repo.Query) fiber.Handler {
	return func(c *fiber.Ctx) error {
		number := c.Query("number")
		if number == "" {
			return common.ProblemDetailsJSON(c, "Missing account number", fmt.Errorf("%w: number query parameter is required", common.ErrInvalidRequest))
		}
		a, err := accounts.GetByNumber(c.UserContext(), number)
		if err != nil {
			if common.ErrorToStatusCode(err) >= fiber.StatusInternalServerError {
				slog.Error("Failed to load account", "account_number", number, "error", err)
			}
			return common.ProblemDetailsJSON(c, "Failed to get account", err)
		}
		return c.JSON(common.Response{Status: fiber.StatusOK, Message: "Account fetched", Data: ToAccountDTO(a)})
	}
}
