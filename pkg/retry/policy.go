package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Strategy selects how the delay between attempts evolves.
type Strategy string

const (
	StrategyFixed       Strategy = "fixed"
	StrategyExponential Strategy = "exponential"
)

// Defaults used when a Policy field is left zero.
const (
	DefaultMaxAttempts = 3
	DefaultDelay       = time.Second
	DefaultMaxDelay    = 30 * time.Second
)

// Policy bounds the retry loop. MaxAttempts counts every attempt, the first
// one included.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	Strategy    Strategy
	MaxDelay    time.Duration
}

// DefaultPolicy is three attempts one second apart.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, Delay: DefaultDelay, Strategy: StrategyFixed, MaxDelay: DefaultMaxDelay}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	if p.Strategy == "" {
		p.Strategy = StrategyFixed
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.MaxDelay < p.Delay {
		p.MaxDelay = p.Delay
	}
	return p
}

// BackOff builds the delay schedule bounded to MaxAttempts-1 retries.
func (p Policy) BackOff() backoff.BackOff {
	p = p.normalized()

	var b backoff.BackOff
	switch p.Strategy {
	case StrategyExponential:
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = p.Delay
		exp.MaxInterval = p.MaxDelay
		exp.MaxElapsedTime = 0
		b = exp
	default:
		b = backoff.NewConstantBackOff(p.Delay)
	}
	return backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
}

// Operation is one attempt. attempt starts at 1.
type Operation func(ctx context.Context, attempt int) error

// Result summarises a Do call.
type Result struct {
	Attempts    int
	Disposition Disposition
	Err         error
}

// Retrier runs operations under a Policy, asking a Classifier after every
// failed attempt whether another one is worth making.
type Retrier struct {
	policy     Policy
	classifier Classifier
	logger     *slog.Logger
	onRetry    func(Disposition)
}

// Option configures a Retrier.
type Option func(*Retrier)

// WithClassifier replaces DefaultClassifier.
func WithClassifier(c Classifier) Option {
	return func(r *Retrier) {
		if c != nil {
			r.classifier = c
		}
	}
}

// WithRetryHook is called before each retry with the disposition of the failed attempt.
func WithRetryHook(fn func(Disposition)) Option {
	return func(r *Retrier) { r.onRetry = fn }
}

// New creates a Retrier.
func New(policy Policy, logger *slog.Logger, opts ...Option) *Retrier {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Retrier{
		policy:     policy.normalized(),
		classifier: DefaultClassifier{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the effective policy.
func (r *Retrier) Policy() Policy { return r.policy }

// Classify exposes the configured classifier.
func (r *Retrier) Classify(err error) Disposition { return r.classifier.Classify(err) }

// Do runs op until it succeeds, fails with a non-transient error, the attempt
// bound is reached, or ctx is done. Exhaustion is reported as a Permanent
// disposition with ReasonRetriesExhausted and an error wrapping both
// ErrRetriesExhausted and the last fault. logger carries the caller's
// correlation fields and is used for the per-retry warning.
func (r *Retrier) Do(ctx context.Context, logger *slog.Logger, op Operation) Result {
	if logger == nil {
		logger = r.logger
	}

	var (
		attempts int
		last     Disposition
	)
	wrapped := func() error {
		attempts++
		err := op(ctx, attempts)
		if err == nil {
			return nil
		}
		last = r.classifier.Classify(err)
		if !last.Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		logger.Warn("🔁 [RETRY] transient fault, retrying",
			"attempt", attempts,
			"max_attempts", r.policy.MaxAttempts,
			"reason", last.Reason,
			"next_delay", next,
			"error", err,
		)
		if r.onRetry != nil {
			r.onRetry(last)
		}
	}

	err := backoff.RetryNotify(wrapped, backoff.WithContext(r.policy.BackOff(), ctx), notify)
	if err == nil {
		return Result{Attempts: attempts}
	}

	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return Result{
			Attempts:    attempts,
			Disposition: Disposition{Kind: Transient, Reason: ReasonCanceled},
			Err:         err,
		}
	}

	if last.Retryable() {
		logger.Error("❌ [ERROR] retries exhausted",
			"attempts", attempts,
			"reason", last.Reason,
			"error", err,
		)
		return Result{
			Attempts:    attempts,
			Disposition: Disposition{Kind: Permanent, Reason: ReasonRetriesExhausted},
			Err:         fmt.Errorf("%w after %d attempts (%s): %w", ErrRetriesExhausted, attempts, last.Reason, err),
		}
	}
	return Result{Attempts: attempts, Disposition: last, Err: err}
}
