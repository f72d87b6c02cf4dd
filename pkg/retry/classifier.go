// Package retry classifies pipeline faults and drives bounded retries.
package retry

import (
	"context"
	"errors"
	"net"

	"github.com/nguyennn/account-svc/pkg/domain/account"
	"github.com/nguyennn/account-svc/pkg/domain/events"
	repo "github.com/nguyennn/account-svc/pkg/repository/account"
	"github.com/sony/gobreaker"
)

// ErrRetriesExhausted wraps the last transient error once the attempt bound is reached.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Kind is how a fault is handled.
type Kind int

const (
	// Transient faults are retried up to the policy bound.
	Transient Kind = iota
	// Permanent faults are dead-lettered without retry.
	Permanent
	// Rejection is a business outcome: recorded, acknowledged, never retried.
	Rejection
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "TRANSIENT"
	case Permanent:
		return "PERMANENT"
	case Rejection:
		return "REJECTION"
	}
	return "UNKNOWN"
}

// Reasons attached to dispositions. Business rejection reasons reuse the
// verifier's names so they read the same in the ledger and the logs.
const (
	ReasonMalformedEvent   = "MALFORMED_EVENT"
	ReasonAccountNotFound  = "ACCOUNT_NOT_FOUND"
	ReasonVersionConflict  = "VERSION_CONFLICT"
	ReasonStoreUnavailable = "STORE_UNAVAILABLE"
	ReasonTimeout          = "TIMEOUT"
	ReasonCircuitOpen      = "CIRCUIT_OPEN"
	ReasonCanceled         = "CANCELED"
	ReasonInternal         = "INTERNAL_ERROR"
	ReasonUnknown          = "UNKNOWN_ERROR"
	ReasonRetriesExhausted = "RETRIES_EXHAUSTED"

	ReasonAccountNotActive  = "ACCOUNT_NOT_ACTIVE"
	ReasonInsufficientFunds = "INSUFFICIENT_FUNDS"
	ReasonCurrencyMismatch  = "CURRENCY_MISMATCH"
)

// Disposition is the classification of one error.
type Disposition struct {
	Kind   Kind
	Reason string
}

// Retryable reports whether the fault should be attempted again.
func (d Disposition) Retryable() bool { return d.Kind == Transient }

// Classifier maps errors surfaced by the pipeline to a Disposition.
type Classifier interface {
	Classify(err error) Disposition
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(err error) Disposition

func (fn ClassifierFunc) Classify(err error) Disposition { return fn(err) }

// DefaultClassifier knows the sentinel errors of the domain, the account
// repository and the circuit breaker. Anything it does not recognise is
// treated as transient so the attempt bound, not the classifier, decides.
type DefaultClassifier struct{}

// Classify implements Classifier.
func (DefaultClassifier) Classify(err error) Disposition {
	switch {
	case err == nil:
		return Disposition{Kind: Transient}

	case errors.Is(err, events.ErrMalformedEvent),
		errors.Is(err, account.ErrInvalidAdjustment),
		errors.Is(err, account.ErrInvalidCurrencyCode):
		return Disposition{Kind: Permanent, Reason: ReasonMalformedEvent}
	case errors.Is(err, repo.ErrNotFound):
		return Disposition{Kind: Permanent, Reason: ReasonAccountNotFound}
	case errors.Is(err, account.ErrNegativeBalance),
		errors.Is(err, account.ErrInvalidStatus):
		return Disposition{Kind: Permanent, Reason: ReasonInternal}

	case errors.Is(err, account.ErrAccountNotActive):
		return Disposition{Kind: Rejection, Reason: ReasonAccountNotActive}
	case errors.Is(err, account.ErrInsufficientFunds):
		return Disposition{Kind: Rejection, Reason: ReasonInsufficientFunds}
	case errors.Is(err, account.ErrCurrencyMismatch):
		return Disposition{Kind: Rejection, Reason: ReasonCurrencyMismatch}

	case errors.Is(err, repo.ErrVersionConflict):
		return Disposition{Kind: Transient, Reason: ReasonVersionConflict}
	case errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests):
		return Disposition{Kind: Transient, Reason: ReasonCircuitOpen}
	case errors.Is(err, context.DeadlineExceeded):
		return Disposition{Kind: Transient, Reason: ReasonTimeout}
	case errors.Is(err, context.Canceled):
		return Disposition{Kind: Transient, Reason: ReasonCanceled}
	case errors.Is(err, repo.ErrStoreUnavailable):
		return Disposition{Kind: Transient, Reason: ReasonStoreUnavailable}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Disposition{Kind: Transient, Reason: ReasonTimeout}
		}
		return Disposition{Kind: Transient, Reason: ReasonStoreUnavailable}
	}
	return Disposition{Kind: Transient, Reason: ReasonUnknown}
}
