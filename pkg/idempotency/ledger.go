// Package idempotency records which transaction ids reached a terminal
// outcome so that redelivered events are acknowledged without replaying their
// effect.
//
// A Ledger hands out a Reservation per transaction id. Only one reservation
// for a given id is held at a time; concurrent duplicates wait for it and then
// observe whatever the holder committed. Records are written only when the
// holder commits a terminal outcome, so a failed attempt that releases its
// reservation leaves the id free for a retry.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

var (
	// ErrRecordNotFound is returned by stores when no record exists for an id.
	ErrRecordNotFound = errors.New("idempotency record not found")

	// ErrEmptyKey is returned when a reservation is requested without a transaction id.
	ErrEmptyKey = errors.New("idempotency key is empty")

	// ErrReservationClosed is returned when committing a released or already committed reservation.
	ErrReservationClosed = errors.New("reservation already closed")

	// ErrInvalidOutcome is returned when committing an outcome that is not terminal.
	ErrInvalidOutcome = errors.New("invalid idempotency outcome")
)

// Outcome is the terminal result recorded for a transaction id.
type Outcome string

const (
	OutcomeApplied  Outcome = "APPLIED"
	OutcomeRejected Outcome = "REJECTED"
)

// Valid reports whether o may be recorded.
func (o Outcome) Valid() bool { return o == OutcomeApplied || o == OutcomeRejected }

// Record is the write-once entry for one transaction id.
type Record struct {
	TransactionID string    `json:"transactionId"`
	Outcome       Outcome   `json:"outcome"`
	Reason        string    `json:"reason,omitempty"`
	AppliedAt     time.Time `json:"appliedAt"`
}

// Store is durable, write-once storage for records.
type Store interface {
	// Get returns the record for id or ErrRecordNotFound.
	Get(ctx context.Context, transactionID string) (*Record, error)

	// PutIfAbsent stores rec unless a record already exists. It returns the
	// record that is stored after the call and whether rec was the one written.
	PutIfAbsent(ctx context.Context, rec Record) (Record, bool, error)
}

// Status is the answer to a reservation request.
type Status int

const (
	// StatusNew means no record exists and the caller holds the reservation.
	StatusNew Status = iota
	// StatusAlreadyApplied means a terminal outcome was recorded earlier.
	StatusAlreadyApplied
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "NEW"
	case StatusAlreadyApplied:
		return "ALREADY_APPLIED"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Ledger serializes reservations per transaction id over a Store.
type Ledger struct {
	store   Store
	locks   *keyedMutex
	lookups singleflight.Group
	now     func() time.Time
	logger  *slog.Logger
}

// NewLedger creates a Ledger backed by store.
func NewLedger(store Store, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:  store,
		locks:  newKeyedMutex(),
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With("component", "idempotency-ledger"),
	}
}

// Reserve checks whether transactionID already has a recorded outcome. When it
// does not, the returned reservation is held until Commit or Release. Callers
// should always defer Release.
func (l *Ledger) Reserve(ctx context.Context, transactionID string) (*Reservation, error) {
	key := strings.TrimSpace(transactionID)
	if key == "" {
		return nil, ErrEmptyKey
	}

	// Concurrent duplicates share one lookup before contending for the lock.
	if rec, err := l.lookup(ctx, key); err != nil {
		return nil, err
	} else if rec != nil {
		return alreadyApplied(key, rec), nil
	}

	unlock, err := l.locks.Lock(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("idempotency reserve %q: %w", key, err)
	}

	// Another holder may have committed while we waited.
	rec, err := l.get(ctx, key)
	if err != nil {
		unlock()
		return nil, err
	}
	if rec != nil {
		unlock()
		return alreadyApplied(key, rec), nil
	}

	return &Reservation{
		ledger:        l,
		transactionID: key,
		status:        StatusNew,
		unlock:        unlock,
	}, nil
}

// lookup shares one store read among concurrent callers. The shared read is
// detached from any single caller's cancellation; each caller stops waiting
// when its own ctx ends.
func (l *Ledger) lookup(ctx context.Context, key string) (*Record, error) {
	shared := context.WithoutCancel(ctx)
	ch := l.lookups.DoChan(key, func() (any, error) {
		return l.get(shared, key)
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("idempotency lookup %q: %w", key, ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		rec, _ := r.Val.(*Record)
		return rec, nil
	}
}

func (l *Ledger) get(ctx context.Context, key string) (*Record, error) {
	rec, err := l.store.Get(ctx, key)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup %q: %w", key, err)
	}
	return rec, nil
}

func alreadyApplied(key string, rec *Record) *Reservation {
	return &Reservation{transactionID: key, status: StatusAlreadyApplied, prior: rec, closed: true}
}

// Reservation is the right to decide the outcome of one transaction id.
type Reservation struct {
	ledger        *Ledger
	transactionID string
	status        Status
	prior         *Record

	mu     sync.Mutex
	closed bool
	unlock func()
}

// TransactionID returns the reserved key.
func (r *Reservation) TransactionID() string { return r.transactionID }

// Status reports whether the caller may proceed.
func (r *Reservation) Status() Status { return r.status }

// Prior returns the recorded outcome when Status is StatusAlreadyApplied.
func (r *Reservation) Prior() *Record { return r.prior }

// Commit records the terminal outcome. It does not release the reservation on
// error so the caller can retry the commit; on success the reservation is
// released. If a record already existed the stored one is returned unchanged.
func (r *Reservation) Commit(ctx context.Context, outcome Outcome, reason string) (Record, error) {
	if !outcome.Valid() {
		return Record{}, fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return Record{}, ErrReservationClosed
	}

	rec := Record{
		TransactionID: r.transactionID,
		Outcome:       outcome,
		Reason:        reason,
		AppliedAt:     r.ledger.now(),
	}
	stored, created, err := r.ledger.store.PutIfAbsent(ctx, rec)
	if err != nil {
		return Record{}, fmt.Errorf("idempotency commit %q: %w", r.transactionID, err)
	}
	if !created {
		r.ledger.logger.Warn("⚠️ record already present on commit; keeping the first outcome",
			"transaction_id", r.transactionID,
			"stored_outcome", stored.Outcome,
			"attempted_outcome", outcome,
		)
	}
	r.closeLocked()
	return stored, nil
}

// Release gives the reservation up without recording anything. Safe to call
// more than once and after Commit.
func (r *Reservation) Release() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
}

func (r *Reservation) closeLocked() {
	if r.closed {
		return
	}
	r.closed = true
	if r.unlock != nil {
		r.unlock()
	}
}
