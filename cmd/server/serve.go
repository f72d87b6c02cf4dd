package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nguyennn/account-svc/pkg/consumer"
	"github.com/nguyennn/account-svc/pkg/eventbus"
	"golang.org/x/sync/errgroup"
)

var errSourceStopped = errors.New("event source stopped unexpectedly")

type service struct {
	source          eventbus.Source
	dispatcher      *consumer.Dispatcher
	app             *fiber.App
	addr            string
	listener        net.Listener
	purge           func(ctx context.Context) error
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// serve runs the consumer, the ops server and the purger until ctx is done
// or one of them fails, then shuts down in order: stop fetching, drain the
// dispatcher, close the source, stop the HTTP server. The source stays open
// while draining so finished events can still be acknowledged.
func serve(ctx context.Context, s service) error {
	ln := s.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", s.addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	fetching := make(chan struct{})
	g.Go(func() error {
		defer close(fetching)
		err := s.source.Run(gctx, s.dispatcher.Handler())
		if gctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = errSourceStopped
		}
		return fmt.Errorf("consumer: %w", err)
	})

	g.Go(func() error {
		if err := s.app.Listener(ln); err != nil && gctx.Err() == nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if s.purge != nil {
		g.Go(func() error { return s.purge(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("🛑 Shutting down", "pending", s.dispatcher.Pending())

		timeout := s.shutdownTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		select {
		case <-fetching:
		case <-shutdownCtx.Done():
			s.logger.Warn("Event source did not stop fetching before the shutdown timeout")
		}

		var errs []error
		if err := s.dispatcher.Close(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("drain dispatcher: %w", err))
		}
		if err := s.source.Close(); err != nil {
			s.logger.Warn("Failed to close event source", "error", err)
		}
		if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
			s.logger.Debug("HTTP server shutdown", "error", err)
		}
		_ = ln.Close()
		return errors.Join(errs...)
	})

	return g.Wait()
}
