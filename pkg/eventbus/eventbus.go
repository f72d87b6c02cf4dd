// Package eventbus defines the transport contracts the balance pipeline runs
// on: inbound messages with explicit acknowledgement, publishers, and the
// dead-letter sink.
package eventbus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClosed is returned by sources and publishers used after Close.
var ErrClosed = errors.New("eventbus closed")

// AckFunc acknowledges a message to the transport it came from.
type AckFunc func(ctx context.Context) error

// Message is one delivery of a raw event. It must be acknowledged exactly once,
// and only after a terminal outcome for it has been recorded.
type Message struct {
	// ID identifies the delivery within its transport (offset, stream entry id, delivery tag).
	ID string
	// Key is the transport partition key, when the producer set one.
	Key        string
	Payload    []byte
	Headers    map[string]string
	Source     string
	ReceivedAt time.Time

	ack     AckFunc
	ackOnce sync.Once
	ackErr  error
	acked   atomic.Bool
}

// NewMessage creates a Message that calls ack when acknowledged. A nil ack is
// a no-op.
func NewMessage(source, id, key string, payload []byte, ack AckFunc) *Message {
	return &Message{
		ID:         id,
		Key:        key,
		Payload:    payload,
		Source:     source,
		ReceivedAt: time.Now().UTC(),
		ack:        ack,
	}
}

// Ack acknowledges the message. Later calls return the first call's result.
func (m *Message) Ack(ctx context.Context) error {
	m.ackOnce.Do(func() {
		if m.ack != nil {
			m.ackErr = m.ack(ctx)
		}
		m.acked.Store(m.ackErr == nil)
	})
	return m.ackErr
}

// Acked reports whether Ack succeeded.
func (m *Message) Acked() bool { return m.acked.Load() }

// Handler processes one message. Implementations own the acknowledgement.
// Returning an error tells the source the message was not accepted (for
// example because the pipeline is shutting down).
type Handler func(ctx context.Context, msg *Message) error

// Source delivers inbound messages to a Handler until ctx is done or Close is called.
type Source interface {
	Run(ctx context.Context, h Handler) error
	Close() error
}

// Publisher writes raw events to a topic, stream or queue.
type Publisher interface {
	Publish(ctx context.Context, key string, payload []byte) error
	Close() error
}
