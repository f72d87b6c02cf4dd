// Package consumer turns inbound transaction events into balance changes.
//
// For every delivery the Consumer decodes the event, reserves its transaction
// id in the idempotency ledger, reads and verifies the account, applies the
// adjustment with a compare-and-swap write and records the outcome before the
// delivery is acknowledged. Transient faults and version conflicts rerun the
// whole read-verify-write step under a bounded retry policy; anything that
// cannot be completed is dead-lettered.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nguyennn/account-svc/pkg/balance"
	"github.com/nguyennn/account-svc/pkg/domain/account"
	"github.com/nguyennn/account-svc/pkg/domain/events"
	"github.com/nguyennn/account-svc/pkg/eventbus"
	"github.com/nguyennn/account-svc/pkg/idempotency"
	repo "github.com/nguyennn/account-svc/pkg/repository/account"
	"github.com/nguyennn/account-svc/pkg/retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/nguyennn/account-svc/pkg/consumer"

// ErrMissingDependency is returned by New when a required collaborator is nil.
var ErrMissingDependency = errors.New("consumer: missing dependency")

// Metrics receives pipeline observations.
type Metrics interface {
	ObserveOutcome(o Outcome)
	SetPending(n int)
	SetActiveLanes(n int)
}

type nopMetrics struct{}

func (nopMetrics) ObserveOutcome(Outcome) {}
func (nopMetrics) SetPending(int)         {}
func (nopMetrics) SetActiveLanes(int)     {}

// Deps are the collaborators a Consumer is built from.
type Deps struct {
	Ledger      *idempotency.Ledger
	Accounts    repo.Repository
	Mutator     *balance.Mutator
	Retrier     *retry.Retrier
	DeadLetters eventbus.DeadLetterSink
	Metrics     Metrics
	Logger      *slog.Logger
}

// Consumer runs the per-event pipeline.
type Consumer struct {
	ledger         *idempotency.Ledger
	accounts       repo.Repository
	mutator        *balance.Mutator
	retrier        *retry.Retrier
	deadLetters    eventbus.DeadLetterSink
	metrics        Metrics
	tracer         trace.Tracer
	logger         *slog.Logger
	attemptTimeout time.Duration
	now            func() time.Time
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithAttemptTimeout bounds each call to the account store.
func WithAttemptTimeout(d time.Duration) Option {
	return func(c *Consumer) { c.attemptTimeout = d }
}

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(c *Consumer) { c.tracer = t }
}

// New builds a Consumer from explicit dependencies.
func New(deps Deps, opts ...Option) (*Consumer, error) {
	switch {
	case deps.Ledger == nil:
		return nil, fmt.Errorf("%w: ledger", ErrMissingDependency)
	case deps.Accounts == nil:
		return nil, fmt.Errorf("%w: account repository", ErrMissingDependency)
	case deps.Mutator == nil:
		return nil, fmt.Errorf("%w: mutator", ErrMissingDependency)
	case deps.Retrier == nil:
		return nil, fmt.Errorf("%w: retrier", ErrMissingDependency)
	case deps.DeadLetters == nil:
		return nil, fmt.Errorf("%w: dead-letter sink", ErrMissingDependency)
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	c := &Consumer{
		ledger:         deps.Ledger,
		accounts:       deps.Accounts,
		mutator:        deps.Mutator,
		retrier:        deps.Retrier,
		deadLetters:    deps.DeadLetters,
		metrics:        deps.Metrics,
		tracer:         otel.Tracer(tracerName),
		logger:         deps.Logger.With("component", "consumer"),
		attemptTimeout: 5 * time.Second,
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Handle processes msg to a terminal outcome and acknowledges it. The message
// is left unacknowledged only when no terminal outcome could be recorded.
func (c *Consumer) Handle(ctx context.Context, msg *eventbus.Message) (out Outcome) {
	start := c.now()
	ctx, span := c.tracer.Start(ctx, "consumer.Handle",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.source", msg.Source),
			attribute.String("messaging.message.id", msg.ID),
		),
	)

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("❌ [ERROR] panic while handling event", "message_id", msg.ID, "panic", r)
			out.enter(StatePermanentFailure)
			c.deadLetter(ctx, msg, &out, retry.ReasonInternal, fmt.Errorf("panic: %v", r), c.logger)
		}
		out.Duration = c.now().Sub(start)
		span.SetAttributes(
			attribute.String("pipeline.status", string(out.Status)),
			attribute.String("pipeline.reason", out.Reason),
			attribute.Int("pipeline.attempts", out.Attempts),
		)
		if out.Err != nil {
			span.RecordError(out.Err)
			span.SetStatus(codes.Error, out.Reason)
		}
		span.End()
		c.metrics.ObserveOutcome(out)
	}()

	out = Outcome{MessageID: msg.ID}
	out.enter(StateReceived)
	c.process(ctx, msg, &out)
	return out
}

func (c *Consumer) process(ctx context.Context, msg *eventbus.Message, out *Outcome) {
	logger := c.logger.With("message_id", msg.ID)

	evt, err := events.DecodeTransactionInitiated(msg.Payload)
	if err != nil {
		logger.Warn("⚠️ malformed event", "error", err)
		out.enter(StatePermanentFailure)
		c.deadLetter(ctx, msg, out, retry.ReasonMalformedEvent, err, logger)
		return
	}
	out.TransactionID = evt.TransactionID
	out.AccountID = evt.AccountID
	logger = logger.With("transaction_id", evt.TransactionID, "account_id", evt.AccountID)
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("transaction.id", evt.TransactionID),
		attribute.String("account.id", evt.AccountID.String()),
	)

	adj, err := evt.Adjustment()
	if err != nil {
		out.enter(StatePermanentFailure)
		c.deadLetter(ctx, msg, out, retry.ReasonMalformedEvent, err, logger)
		return
	}
	out.enter(StateDecoded)
	logger.Debug("🟢 [START] processing event", "direction", adj.Direction, "amount", adj.Amount.String())

	var res *idempotency.Reservation
	reserved := c.retrier.Do(ctx, logger, func(ctx context.Context, _ int) error {
		var err error
		res, err = c.ledger.Reserve(ctx, evt.TransactionID)
		return err
	})
	if reserved.Err != nil {
		c.settleFailure(ctx, msg, out, reserved, logger)
		return
	}
	defer res.Release()

	if res.Status() == idempotency.StatusAlreadyApplied {
		out.Status = StatusAlreadyApplied
		out.Prior = res.Prior()
		out.Reason = string(res.Prior().Outcome)
		out.enter(StateDeduped)
		logger.Info("🔁 [SKIP] transaction already processed", "prior_outcome", res.Prior().Outcome)
		c.ack(ctx, msg, out, logger)
		return
	}

	var journaled bool
	attempt := c.retrier.Do(ctx, logger, func(ctx context.Context, n int) error {
		out.Attempts = n
		var err error
		journaled, err = c.verifyAndApply(ctx, evt.AccountID, adj, out)
		if err != nil && c.retrier.Classify(err).Retryable() {
			if errors.Is(err, repo.ErrVersionConflict) {
				out.enter(StateConflict)
			} else {
				out.enter(StateTransientFault)
			}
		}
		return err
	})

	switch {
	case attempt.Err == nil:
		c.settleApplied(ctx, msg, out, res, journaled, logger)
	case attempt.Disposition.Kind == retry.Rejection:
		c.settleRejected(ctx, msg, out, res, attempt.Disposition.Reason, logger)
	default:
		c.settleFailure(ctx, msg, out, attempt, logger)
	}
}

// verifyAndApply is one read-verify-write pass against a fresh snapshot.
func (c *Consumer) verifyAndApply(ctx context.Context, id uuid.UUID, adj account.Adjustment, out *Outcome) (journaled bool, err error) {
	out.enter(StateVerifying)

	// A journaled transaction settles as applied without verifying the
	// balance it already changed.
	if done, err := c.journaled(ctx, adj.TransactionID); err != nil || done {
		return done, err
	}

	snapshot, err := c.load(ctx, id)
	if err != nil {
		return false, err
	}
	v := balance.Verify(snapshot, adj)
	out.Verification = &v
	if !v.Approved {
		return false, fmt.Errorf("verify %s: %w", adj.TransactionID, v.Reason.Err())
	}

	out.enter(StateMutating)
	actx, cancel := c.withAttemptTimeout(ctx)
	defer cancel()
	update, err := c.mutator.Apply(actx, snapshot, adj)
	if errors.Is(err, repo.ErrAlreadyApplied) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	out.Update = &update
	return false, nil
}

func (c *Consumer) load(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	lctx, cancel := c.withAttemptTimeout(ctx)
	defer cancel()
	acc, err := c.accounts.Load(lctx, id)
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", id, err)
	}
	return acc, nil
}

func (c *Consumer) journaled(ctx context.Context, txID string) (bool, error) {
	jctx, cancel := c.withAttemptTimeout(ctx)
	defer cancel()
	done, err := c.accounts.Journaled(jctx, txID)
	if err != nil {
		return false, fmt.Errorf("check journal for %s: %w", txID, err)
	}
	return done, nil
}

func (c *Consumer) withAttemptTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.attemptTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.attemptTimeout)
}

func (c *Consumer) settleApplied(ctx context.Context, msg *eventbus.Message, out *Outcome, res *idempotency.Reservation, journaled bool, logger *slog.Logger) {
	if !c.commit(ctx, out, res, idempotency.OutcomeApplied, "", logger) {
		return
	}
	if journaled {
		// The store had already applied this transaction on an earlier
		// delivery whose ledger commit never landed.
		out.Status = StatusAlreadyApplied
		out.Reason = string(idempotency.OutcomeApplied)
		out.enter(StateDeduped)
		logger.Info("🔁 [SKIP] transaction found in account journal")
	} else {
		out.Status = StatusApplied
		out.enter(StateApplied)
		logger.Info("✅ [SUCCESS] balance adjusted",
			"new_balance", out.Update.NewBalance.String(),
			"version", out.Update.NewVersion,
			"attempts", out.Attempts,
		)
	}
	c.ack(ctx, msg, out, logger)
}

func (c *Consumer) settleRejected(ctx context.Context, msg *eventbus.Message, out *Outcome, res *idempotency.Reservation, reason string, logger *slog.Logger) {
	if !c.commit(ctx, out, res, idempotency.OutcomeRejected, reason, logger) {
		return
	}
	out.Status = StatusRejected
	out.Reason = reason
	out.enter(StateRejected)
	logger.Info("🚫 [REJECTED] adjustment refused", "reason", reason)
	c.ack(ctx, msg, out, logger)
}

func (c *Consumer) settleFailure(ctx context.Context, msg *eventbus.Message, out *Outcome, r retry.Result, logger *slog.Logger) {
	if r.Disposition.Reason == retry.ReasonCanceled {
		out.Status = StatusNotAcknowledged
		out.Reason = retry.ReasonCanceled
		out.Err = r.Err
		logger.Warn("⚠️ processing interrupted, leaving event for redelivery", "error", r.Err)
		return
	}
	out.enter(StatePermanentFailure)
	c.deadLetter(ctx, msg, out, r.Disposition.Reason, r.Err, logger)
}

// commit records the terminal outcome in the ledger. When the ledger stays
// unreachable the message is left for redelivery.
func (c *Consumer) commit(ctx context.Context, out *Outcome, res *idempotency.Reservation, o idempotency.Outcome, reason string, logger *slog.Logger) bool {
	r := c.retrier.Do(ctx, logger, func(ctx context.Context, _ int) error {
		_, err := res.Commit(ctx, o, reason)
		return err
	})
	if r.Err != nil {
		out.Status = StatusNotAcknowledged
		out.Reason = r.Disposition.Reason
		out.Err = r.Err
		logger.Error("❌ [ERROR] failed to record outcome, leaving event for redelivery", "outcome", o, "error", r.Err)
		return false
	}
	return true
}

func (c *Consumer) deadLetter(ctx context.Context, msg *eventbus.Message, out *Outcome, reason string, cause error, logger *slog.Logger) {
	out.Reason = reason
	out.Err = cause

	d := eventbus.DeadLetter{
		Reason:         reason,
		AttemptCount:   out.Attempts,
		TransactionID:  out.TransactionID,
		Source:         msg.Source,
		MessageID:      msg.ID,
		DeadLetteredAt: c.now(),
	}.WithOriginal(msg.Payload)
	if cause != nil {
		d.LastError = cause.Error()
	}
	if out.AccountID != uuid.Nil {
		d.AccountID = out.AccountID.String()
	}

	if err := c.deadLetters.DeadLetter(ctx, d); err != nil {
		out.Status = StatusNotAcknowledged
		out.Err = errors.Join(cause, fmt.Errorf("dead-letter: %w", err))
		logger.Error("❌ [ERROR] dead-letter sink failed, leaving event for redelivery", "reason", reason, "error", err)
		return
	}
	out.Status = StatusDeadLettered
	out.enter(StateDeadLettered)
	logger.Error("📦 [DLQ] event dead-lettered", "reason", reason, "attempts", out.Attempts, "error", cause)
	c.ack(ctx, msg, out, logger)
}

func (c *Consumer) ack(ctx context.Context, msg *eventbus.Message, out *Outcome, logger *slog.Logger) {
	if err := msg.Ack(ctx); err != nil {
		logger.Error("❌ [ERROR] acknowledge failed", "status", out.Status, "error", err)
		return
	}
	out.Acked = true
	out.enter(StateAcked)
}
