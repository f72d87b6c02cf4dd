package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nguyennn/account-svc/pkg/domain/events"
	"github.com/nguyennn/account-svc/pkg/eventbus"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAcknowledger struct {
	mu     sync.Mutex
	acked  []uint64
	nacked []uint64
}

func (a *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, _ bool, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked = append(a.nacked, tag)
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error { return a.Nack(tag, false, requeue) }

type fakeChannel struct {
	mu         sync.Mutex
	declared   []string
	prefetch   int
	confirm    bool
	published  []amqp.Publishing
	routing    []string
	deliveries chan amqp.Delivery
	publishErr error
	closed     bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{deliveries: make(chan amqp.Delivery, 8)}
}

func (c *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.declared = append(c.declared, name)
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	c.prefetch = prefetchCount
	return nil
}

func (c *fakeChannel) ConsumeWithContext(context.Context, string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return c.deliveries, nil
}

func (c *fakeChannel) Confirm(bool) error {
	c.confirm = true
	return nil
}

func (c *fakeChannel) PublishWithDeferredConfirmWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return nil, c.publishErr
	}
	c.published = append(c.published, msg)
	c.routing = append(c.routing, key)
	return nil, nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func TestRabbitMQSource(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	src, err := NewRabbitMQSource(ch, RabbitMQConfig{Queue: queueNameFor("Transaction.Initiated")}, quietLogger)
	require.NoError(t, err)
	assert.Equal(t, []string{"transaction.initiated"}, ch.declared)
	assert.Equal(t, 32, ch.prefetch)

	acks := &fakeAcknowledger{}
	ch.deliveries <- amqp.Delivery{Acknowledger: acks, DeliveryTag: 1, Body: []byte("one"), Headers: amqp.Table{"key": "acc-1"}}
	ch.deliveries <- amqp.Delivery{Acknowledger: acks, DeliveryTag: 2, MessageId: "m-2", Body: []byte("two")}

	got := collect(t, src, 2, func(m *eventbus.Message) bool { return m.ID == "1" })
	assert.Equal(t, "acc-1", got[0].Key)
	assert.Equal(t, "rabbitmq:transaction.initiated", got[0].Source)
	assert.Equal(t, "m-2", got[1].ID)
	assert.Equal(t, []uint64{1}, acks.acked)
	assert.Empty(t, acks.nacked)
}

func TestRabbitMQSource_RefusedDeliveryIsRequeued(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	src, err := NewRabbitMQSource(ch, RabbitMQConfig{Queue: "q", Prefetch: 4}, quietLogger)
	require.NoError(t, err)

	acks := &fakeAcknowledger{}
	ch.deliveries <- amqp.Delivery{Acknowledger: acks, DeliveryTag: 7, Body: []byte("x")}

	refused := errors.New("dispatcher closed")
	err = src.Run(context.Background(), func(context.Context, *eventbus.Message) error { return refused })
	require.ErrorIs(t, err, refused)
	assert.Equal(t, []uint64{7}, acks.nacked)
}

func TestRabbitMQSource_Close(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	src, err := NewRabbitMQSource(ch, RabbitMQConfig{Queue: "q"}, quietLogger)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- src.Run(context.Background(), func(context.Context, *eventbus.Message) error { return nil })
	}()
	require.NoError(t, src.Close())
	require.NoError(t, src.Close())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}
	assert.True(t, ch.closed)
}

func TestRabbitMQPublisher(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	pub, err := NewRabbitMQPublisher(ch, dlqQueueNameFor("Transaction.Initiated"))
	require.NoError(t, err)
	assert.True(t, ch.confirm)

	require.NoError(t, pub.Publish(context.Background(), "acc-1", []byte(`{"reason":"X"}`)))
	require.Len(t, ch.published, 1)
	assert.Equal(t, "transaction.initiated.dlq", ch.routing[0])
	assert.Equal(t, amqp.Persistent, ch.published[0].DeliveryMode)
	assert.Equal(t, "acc-1", ch.published[0].Headers["key"])

	ch.publishErr = errors.New("channel closed")
	require.Error(t, pub.Publish(context.Background(), "acc-1", nil))
}

func TestDefaultRabbitMQConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultRabbitMQConfig(events.EventTypeTransactionInitiated)
	assert.Equal(t, "transaction.initiated", cfg.Queue)
	assert.Equal(t, "transaction.initiated.dlq", cfg.DLQueue)
}

func TestNewRabbitMQSource_Validation(t *testing.T) {
	t.Parallel()
	_, err := NewRabbitMQSource(nil, RabbitMQConfig{Queue: "q"}, quietLogger)
	require.Error(t, err)
	_, err = NewRabbitMQSource(newFakeChannel(), RabbitMQConfig{}, quietLogger)
	require.Error(t, err)
	_, err = DialRabbitMQ("")
	require.Error(t, err)
}
