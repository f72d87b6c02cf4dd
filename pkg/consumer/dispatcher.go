package consumer

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/nguyennn/account-svc/pkg/domain/events"
	"github.com/nguyennn/account-svc/pkg/eventbus"
	"golang.org/x/sync/semaphore"
)

// ErrDispatcherClosed is returned by Submit once shutdown has begun.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// HandleFunc processes one message to completion.
type HandleFunc func(ctx context.Context, msg *eventbus.Message) Outcome

// KeyFunc returns the serialization key of a message. Messages with the same
// key are handled one at a time in submission order. An empty key means the
// message has no ordering constraint.
type KeyFunc func(msg *eventbus.Message) string

// AccountKey keys messages by the account id in their payload. Undecodable
// payloads get no key; they are dead-lettered without touching any account.
func AccountKey(msg *eventbus.Message) string {
	evt, err := events.DecodeTransactionInitiated(msg.Payload)
	if err != nil {
		return ""
	}
	return evt.AccountID.String()
}

// DispatcherConfig bounds the dispatcher.
type DispatcherConfig struct {
	// Concurrency is the number of messages handled at the same time.
	Concurrency int
	// QueueSize is the number of accepted but unfinished messages after which
	// Submit blocks.
	QueueSize int
}

// Dispatcher routes messages into per-key lanes. Each lane is a FIFO drained
// by one goroutine, and a weighted semaphore caps how many lanes run their
// handler at once.
type Dispatcher struct {
	handle  HandleFunc
	key     KeyFunc
	workers *semaphore.Weighted
	slots   *semaphore.Weighted
	metrics Metrics
	logger  *slog.Logger

	// handlers run on runCtx so that a transport shutting down does not cut
	// in-flight events short; it is only cancelled when draining times out.
	runCtx    context.Context
	cancelRun context.CancelFunc

	mu      sync.Mutex
	lanes   map[string]*lane
	closed  bool
	wg      sync.WaitGroup
	pending atomic.Int64
	unkeyed atomic.Uint64
}

type lane struct {
	queue []*eventbus.Message
}

// NewDispatcher creates a Dispatcher. Zero config values default to 8 workers
// and a queue of 16 times the concurrency.
func NewDispatcher(cfg DispatcherConfig, handle HandleFunc, key KeyFunc, metrics Metrics, logger *slog.Logger) *Dispatcher {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 8
	}
	if cfg.QueueSize < cfg.Concurrency {
		cfg.QueueSize = cfg.Concurrency * 16
	}
	if key == nil {
		key = AccountKey
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	runCtx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		handle:    handle,
		key:       key,
		workers:   semaphore.NewWeighted(int64(cfg.Concurrency)),
		slots:     semaphore.NewWeighted(int64(cfg.QueueSize)),
		metrics:   metrics,
		logger:    logger.With("component", "dispatcher"),
		runCtx:    runCtx,
		cancelRun: cancel,
		lanes:     make(map[string]*lane),
	}
}

// Submit queues msg on its lane. It blocks while the queue is full and
// returns ErrDispatcherClosed after Close, or ctx.Err() if ctx ends first.
// A message that was not accepted is not acknowledged.
func (d *Dispatcher) Submit(ctx context.Context, msg *eventbus.Message) error {
	if d.isClosed() {
		return ErrDispatcherClosed
	}
	if err := d.slots.Acquire(ctx, 1); err != nil {
		return err
	}

	key := d.key(msg)
	if key == "" {
		key = "unkeyed-" + strconv.FormatUint(d.unkeyed.Add(1), 10)
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.slots.Release(1)
		return ErrDispatcherClosed
	}
	l, running := d.lanes[key]
	if !running {
		l = &lane{}
		d.lanes[key] = l
		d.wg.Add(1)
	}
	l.queue = append(l.queue, msg)
	lanes := len(d.lanes)
	pending := d.pending.Add(1)
	d.mu.Unlock()

	d.metrics.SetPending(int(pending))
	d.metrics.SetActiveLanes(lanes)
	if !running {
		go d.run(key, l)
	}
	return nil
}

// Handler adapts the dispatcher to an eventbus.Source.
func (d *Dispatcher) Handler() eventbus.Handler {
	return d.Submit
}

func (d *Dispatcher) run(key string, l *lane) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		if len(l.queue) == 0 {
			delete(d.lanes, key)
			lanes := len(d.lanes)
			d.mu.Unlock()
			d.metrics.SetActiveLanes(lanes)
			return
		}
		msg := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		d.mu.Unlock()

		d.dispatch(key, msg)
	}
}

func (d *Dispatcher) dispatch(key string, msg *eventbus.Message) {
	defer func() {
		d.slots.Release(1)
		d.metrics.SetPending(int(d.pending.Add(-1)))
	}()

	if err := d.workers.Acquire(d.runCtx, 1); err != nil {
		d.logger.Warn("⚠️ dropping queued message on forced shutdown; it will be redelivered",
			"lane", key, "message_id", msg.ID)
		return
	}
	defer d.workers.Release(1)

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("❌ [ERROR] handler panicked", "lane", key, "message_id", msg.ID, "panic", r)
		}
	}()
	d.handle(d.runCtx, msg)
}

func (d *Dispatcher) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Close stops accepting messages and waits for every accepted message to
// finish. If ctx ends first, in-flight handlers are cancelled and ctx.Err()
// is returned once they return.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancelRun()
		d.logger.Info("🛑 dispatcher drained")
		return nil
	case <-ctx.Done():
		d.logger.Warn("⚠️ drain timed out, cancelling in-flight events", "pending", d.pending.Load())
		d.cancelRun()
		<-done
		return ctx.Err()
	}
}

// Pending returns the number of accepted messages not yet finished.
func (d *Dispatcher) Pending() int { return int(d.pending.Load()) }
