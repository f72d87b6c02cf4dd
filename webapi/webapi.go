// Package webapi is the operations HTTP surface of the account service:
// liveness, readiness, Prometheus metrics and read-only account lookups.
package webapi

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/utils"
	accountweb "github.com/nguyennn/account-svc/webapi/account"
	"github.com/nguyennn/account-svc/webapi/common"
	repo "github.com/nguyennn/account-svc/pkg/repository/account"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadinessFunc reports whether the service can make progress.
type ReadinessFunc func(ctx context.Context) error

// Deps are the collaborators of the ops server.
type Deps struct {
	Accounts repo.Query
	Ready    ReadinessFunc
	Gatherer prometheus.Gatherer
	// AccessLog receives one line per request; nil means stdout.
	AccessLog io.Writer

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// SetupApp builds the fiber app.
func SetupApp(deps Deps) *fiber.App {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if deps.AccessLog == nil {
		deps.AccessLog = os.Stdout
	}

	fiberApp := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           deps.ReadTimeout,
		WriteTimeout:          deps.WriteTimeout,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return common.ProblemDetailsJSON(c, utils.StatusMessage(common.ErrorToStatusCode(err)), err)
		},
	})
	fiberApp.Use(recover.New())
	fiberApp.Use(logger.New(logger.Config{Output: deps.AccessLog}))

	fiberApp.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	fiberApp.Get("/readyz", readiness(deps.Ready))
	fiberApp.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))

	if deps.Accounts != nil {
		accountweb.Routes(fiberApp, deps.Accounts)
	}
	return fiberApp
}

func readiness(ready ReadinessFunc) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if ready == nil {
			return c.JSON(fiber.Map{"status": "ready"})
		}
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := ready(ctx); err != nil {
			return common.ProblemDetailsJSON(c, "Service Unavailable", err, fiber.StatusServiceUnavailable)
		}
		return c.JSON(fiber.Map{"status": "ready"})
	}
}
