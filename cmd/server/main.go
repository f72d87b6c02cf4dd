package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/charmbracelet/log"
	"github.com/nguyennn/account-svc/infra/initializer"
	"github.com/nguyennn/account-svc/pkg/config"
	"github.com/nguyennn/account-svc/webapi"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		return fmt.Errorf("failed to load application configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := initializer.InitializeDependencies(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer func() {
		if err := deps.Close(); err != nil {
			deps.Logger.Error("Failed to release resources", "error", err)
		}
	}()

	fiberApp := webapi.SetupApp(webapi.Deps{
		Accounts:     deps.Accounts,
		Ready:        deps.Ready,
		Gatherer:     deps.Registry,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	})

	deps.Logger.Info("Starting account service",
		"env", cfg.Env,
		"address", cfg.Server.Addr(),
		"transport", deps.Transport.Kind,
	)

	return serve(ctx, service{
		source:          deps.Transport.Source,
		dispatcher:      deps.Dispatcher,
		app:             fiberApp,
		addr:            cfg.Server.Addr(),
		purge:           deps.Purge,
		shutdownTimeout: cfg.Consumer.ShutdownTimeout,
		logger:          deps.Logger,
	})
}
