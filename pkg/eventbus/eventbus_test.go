package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageAckOnce(t *testing.T) {
	t.Parallel()
	calls := 0
	msg := NewMessage("test", "1", "", []byte(`{}`), func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, msg.Ack(context.Background()))
	require.NoError(t, msg.Ack(context.Background()))
	assert.Equal(t, 1, calls)
	assert.True(t, msg.Acked())
}

func TestMessageAckFailure(t *testing.T) {
	t.Parallel()
	boom := errors.New("broker gone")
	msg := NewMessage("test", "1", "", nil, func(context.Context) error { return boom })

	assert.ErrorIs(t, msg.Ack(context.Background()), boom)
	assert.False(t, msg.Acked())
}

func TestMessageAckedFromAnotherGoroutine(t *testing.T) {
	t.Parallel()
	msg := NewMessage("test", "1", "", nil, nil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, msg.Ack(context.Background()))
	}()
	go func() {
		defer wg.Done()
		for !msg.Acked() {
			runtime.Gosched()
		}
	}()
	wg.Wait()
	assert.True(t, msg.Acked())
}

func TestDeadLetterOriginal(t *testing.T) {
	t.Parallel()

	tests := map[string][]byte{
		"json":   []byte(`{"transactionId":"T1"}`),
		"text":   []byte("acc-1,100.00"),
		"binary": {0xff, 0xfe, 0x00},
	}
	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			d := DeadLetter{Reason: "MALFORMED_EVENT"}.WithOriginal(payload)
			b, err := d.Marshal()
			require.NoError(t, err)

			var back DeadLetter
			require.NoError(t, json.Unmarshal(b, &back))
			assert.Equal(t, payload, back.Original())
			assert.Equal(t, "MALFORMED_EVENT", back.Reason)
		})
	}
}

type capturePublisher struct {
	key     string
	payload []byte
}

func (c *capturePublisher) Publish(_ context.Context, key string, payload []byte) error {
	c.key, c.payload = key, payload
	return nil
}

func (c *capturePublisher) Close() error { return nil }

func TestPublisherSink(t *testing.T) {
	t.Parallel()
	pub := &capturePublisher{}
	sink := PublisherSink{Publisher: pub}

	err := sink.DeadLetter(context.Background(), DeadLetter{AccountID: "A1", AttemptCount: 3, Reason: "RETRIES_EXHAUSTED"})
	require.NoError(t, err)
	assert.Equal(t, "A1", pub.key)
	assert.Contains(t, string(pub.payload), `"attemptCount":3`)
}
