package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/fatih/color"
	"github.com/nguyennn/account-svc/infra/initializer"
	accountstore "github.com/nguyennn/account-svc/infra/repository/account"
	"github.com/nguyennn/account-svc/pkg/config"
)

const usage = `Usage: cli <command> [arguments]
Commands:
  publish <account_id> <amount> <CREDIT|DEBIT> <currency> [transaction_id]
  seed <account_number> <currency> [balance]`

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	errColor  = color.New(color.FgRed, color.Bold)
	infoColor = color.New(color.FgCyan)
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		_, _ = errColor.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) < 1 {
		_, _ = fmt.Fprintln(out, usage)
		return nil
	}

	cfg, err := config.Load(".env")
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := initializer.SetupLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	switch args[0] {
	case "publish":
		evt, err := parsePublishArgs(args[1:])
		if err != nil {
			return err
		}
		payload, err := evt.Marshal()
		if err != nil {
			return err
		}
		pub, err := initializer.NewPublisher(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = pub.Close() }()
		if err := pub.Publish(ctx, evt.AccountID.String(), payload); err != nil {
			return err
		}
		_, _ = okColor.Fprintf(out, "Published %s %s %s to account %s\n", evt.Direction, evt.Amount, evt.CurrencyCode, evt.AccountID)
		_, _ = infoColor.Fprintf(out, "transaction id: %s (transport %s)\n", evt.TransactionID, cfg.Transport.Kind)
		return nil

	case "seed":
		acc, err := parseSeedArgs(args[1:])
		if err != nil {
			return err
		}
		db, err := initializer.NewDBConnection(ctx, cfg.DB, cfg.Env, logger)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer func() { _ = sqlDB.Close() }()
		}
		if err := accountstore.Seed(ctx, db, acc); err != nil {
			return err
		}
		_, _ = okColor.Fprintf(out, "Account %s created\n", acc.ID)
		_, _ = infoColor.Fprintf(out, "number %s, balance %s %s\n", acc.AccountNumber, acc.Balance.StringFixed(2), acc.Currency)
		return nil
	}
	return fmt.Errorf("unknown command %q\n%s", args[0], usage)
}
