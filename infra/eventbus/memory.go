package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"github.com/nguyennn/account-svc/pkg/eventbus"
)

type memoryEntry struct {
	seq     uint64
	key     string
	payload []byte
}

// MemoryBus is an in-process transport. It is a Source, a Publisher and a
// DeadLetterSink at once, and keeps unacknowledged deliveries around so they
// can be redelivered the way a broker would after a consumer restart.
type MemoryBus struct {
	mu       sync.Mutex
	queue    []memoryEntry
	inflight map[uint64]memoryEntry
	acked    int
	letters  []eventbus.DeadLetter
	seq      uint64
	closed   bool

	notify chan struct{}
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

// NewWithMemory creates an empty in-memory bus.
func NewWithMemory(logger *slog.Logger) *MemoryBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryBus{
		inflight: make(map[uint64]memoryEntry),
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
		logger:   logger.With("bus", "memory"),
	}
}

// Publish implements eventbus.Publisher.
func (b *MemoryBus) Publish(_ context.Context, key string, payload []byte) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return eventbus.ErrClosed
	}
	b.seq++
	b.queue = append(b.queue, memoryEntry{seq: b.seq, key: key, payload: append([]byte(nil), payload...)})
	b.mu.Unlock()
	b.wake()
	return nil
}

// Run implements eventbus.Source. It returns nil once ctx is done or the bus
// is closed.
func (b *MemoryBus) Run(ctx context.Context, h eventbus.Handler) error {
	for {
		entry, ok := b.next()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-b.done:
				return nil
			case <-b.notify:
				continue
			}
		}

		id := strconv.FormatUint(entry.seq, 10)
		msg := eventbus.NewMessage("memory", id, entry.key, entry.payload, func(context.Context) error {
			b.ack(entry.seq)
			return nil
		})
		if err := h(ctx, msg); err != nil {
			b.requeue(entry)
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			b.logger.Warn("⚠️ handler refused message, stopping", "message_id", id, "error", err)
			return err
		}
	}
}

func (b *MemoryBus) wake() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

func (b *MemoryBus) next() (memoryEntry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return memoryEntry{}, false
	}
	entry := b.queue[0]
	b.queue = b.queue[1:]
	b.inflight[entry.seq] = entry
	return entry, true
}

func (b *MemoryBus) ack(seq uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.inflight[seq]; ok {
		delete(b.inflight, seq)
		b.acked++
	}
}

func (b *MemoryBus) requeue(entry memoryEntry) {
	b.mu.Lock()
	delete(b.inflight, entry.seq)
	b.queue = append([]memoryEntry{entry}, b.queue...)
	b.mu.Unlock()
}

// Redeliver puts every delivered but unacknowledged message back at the head
// of the queue, oldest first, and returns how many were moved.
func (b *MemoryBus) Redeliver() int {
	b.mu.Lock()
	entries := make([]memoryEntry, 0, len(b.inflight))
	for _, e := range b.inflight {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	b.inflight = make(map[uint64]memoryEntry)
	b.queue = append(entries, b.queue...)
	b.mu.Unlock()
	if len(entries) > 0 {
		b.wake()
	}
	return len(entries)
}

// DeadLetter implements eventbus.DeadLetterSink.
func (b *MemoryBus) DeadLetter(_ context.Context, d eventbus.DeadLetter) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return eventbus.ErrClosed
	}
	b.letters = append(b.letters, d)
	b.logger.Warn("📦 [DLQ] event dead-lettered", "reason", d.Reason, "transaction_id", d.TransactionID)
	return nil
}

// DeadLetters returns a copy of everything dead-lettered so far.
func (b *MemoryBus) DeadLetters() []eventbus.DeadLetter {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]eventbus.DeadLetter(nil), b.letters...)
}

// Stats returns the queued, in-flight and acknowledged message counts.
func (b *MemoryBus) Stats() (queued, inflight, acked int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue), len(b.inflight), b.acked
}

// Close stops Run and refuses further publishes.
func (b *MemoryBus) Close() error {
	b.once.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
		close(b.done)
	})
	return nil
}

var (
	_ eventbus.Source         = (*MemoryBus)(nil)
	_ eventbus.Publisher      = (*MemoryBus)(nil)
	_ eventbus.DeadLetterSink = (*MemoryBus)(nil)
)
