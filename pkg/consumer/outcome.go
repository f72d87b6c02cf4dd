package consumer

import (
	"time"

	"github.com/google/uuid"
	"github.com/nguyennn/account-svc/pkg/balance"
	"github.com/nguyennn/account-svc/pkg/idempotency"
)

// State is a step of the per-event state machine.
type State string

const (
	StateReceived         State = "RECEIVED"
	StateDecoded          State = "DECODED"
	StateDeduped          State = "DEDUPED"
	StateVerifying        State = "VERIFYING"
	StateRejected         State = "REJECTED"
	StateMutating         State = "MUTATING"
	StateApplied          State = "APPLIED"
	StateConflict         State = "CONFLICT"
	StateTransientFault   State = "TRANSIENT_FAULT"
	StatePermanentFailure State = "PERMANENT_FAILURE"
	StateDeadLettered     State = "DEAD_LETTERED"
	StateAcked            State = "ACKED"
)

// Status is the final answer for one delivery.
type Status string

const (
	// StatusApplied: the adjustment changed the balance.
	StatusApplied Status = "APPLIED"
	// StatusRejected: a business rule refused the adjustment; recorded and acknowledged.
	StatusRejected Status = "REJECTED"
	// StatusAlreadyApplied: the transaction id was seen before; acknowledged without effect.
	StatusAlreadyApplied Status = "ALREADY_APPLIED"
	// StatusDeadLettered: a permanent failure or exhausted retries; parked and acknowledged.
	StatusDeadLettered Status = "DEAD_LETTERED"
	// StatusNotAcknowledged: no terminal outcome could be recorded; the
	// transport will redeliver.
	StatusNotAcknowledged Status = "NOT_ACKNOWLEDGED"
)

// Outcome is what Handle returns for a delivery.
type Outcome struct {
	Status        Status
	Reason        string
	TransactionID string
	AccountID     uuid.UUID
	MessageID     string
	Attempts      int

	Verification *balance.VerificationResult
	Update       *balance.UpdateResult
	// Prior is the earlier record when Status is StatusAlreadyApplied.
	Prior *idempotency.Record

	States   []State
	Acked    bool
	Err      error
	Duration time.Duration
}

// Terminal reports whether a terminal outcome was reached.
func (o Outcome) Terminal() bool {
	return o.Status != "" && o.Status != StatusNotAcknowledged
}

// Passed reports whether the event went through s.
func (o Outcome) Passed(s State) bool {
	for _, st := range o.States {
		if st == s {
			return true
		}
	}
	return false
}

func (o *Outcome) enter(s State) { o.States = append(o.States, s) }
