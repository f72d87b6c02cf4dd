package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/nguyennn/account-svc/pkg/eventbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quietLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func collect(t *testing.T, src eventbus.Source, want int, ack func(*eventbus.Message) bool) []*eventbus.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got []*eventbus.Message
	err := src.Run(ctx, func(ctx context.Context, msg *eventbus.Message) error {
		got = append(got, msg)
		if ack(msg) {
			require.NoError(t, msg.Ack(ctx))
		}
		if len(got) == want {
			cancel()
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, want)
	return got
}

func TestMemoryBus_PublishAndRun(t *testing.T) {
	t.Parallel()
	bus := NewWithMemory(quietLogger)
	ctx := context.Background()

	require.NoError(t, bus.Publish(ctx, "acc-1", []byte("one")))
	require.NoError(t, bus.Publish(ctx, "acc-2", []byte("two")))

	got := collect(t, bus, 2, func(*eventbus.Message) bool { return true })
	assert.Equal(t, "one", string(got[0].Payload))
	assert.Equal(t, "acc-1", got[0].Key)
	assert.Equal(t, "memory", got[0].Source)
	assert.Equal(t, "two", string(got[1].Payload))

	queued, inflight, acked := bus.Stats()
	assert.Equal(t, 0, queued)
	assert.Equal(t, 0, inflight)
	assert.Equal(t, 2, acked)
}

func TestMemoryBus_RedeliversUnacked(t *testing.T) {
	t.Parallel()
	bus := NewWithMemory(quietLogger)
	ctx := context.Background()

	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, bus.Publish(ctx, "k", []byte(p)))
	}

	collect(t, bus, 3, func(m *eventbus.Message) bool { return string(m.Payload) == "b" })
	_, inflight, acked := bus.Stats()
	assert.Equal(t, 2, inflight)
	assert.Equal(t, 1, acked)

	assert.Equal(t, 2, bus.Redeliver())
	again := collect(t, bus, 2, func(*eventbus.Message) bool { return true })
	assert.Equal(t, "a", string(again[0].Payload))
	assert.Equal(t, "c", string(again[1].Payload))

	_, _, acked = bus.Stats()
	assert.Equal(t, 3, acked)
}

func TestMemoryBus_RefusedMessageStaysQueued(t *testing.T) {
	t.Parallel()
	bus := NewWithMemory(quietLogger)
	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, "k", []byte("x")))

	refused := errors.New("dispatcher closed")
	err := bus.Run(ctx, func(context.Context, *eventbus.Message) error { return refused })
	require.ErrorIs(t, err, refused)

	queued, inflight, _ := bus.Stats()
	assert.Equal(t, 1, queued)
	assert.Equal(t, 0, inflight)
}

func TestMemoryBus_Close(t *testing.T) {
	t.Parallel()
	bus := NewWithMemory(quietLogger)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		done <- bus.Run(ctx, func(context.Context, *eventbus.Message) error { return nil })
	}()
	require.NoError(t, bus.Close())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}
	require.ErrorIs(t, bus.Publish(ctx, "k", nil), eventbus.ErrClosed)
	require.ErrorIs(t, bus.DeadLetter(ctx, eventbus.DeadLetter{}), eventbus.ErrClosed)
}

func TestMemoryBus_DeadLetters(t *testing.T) {
	t.Parallel()
	bus := NewWithMemory(quietLogger)

	letter := eventbus.DeadLetter{Reason: "MALFORMED_EVENT", AttemptCount: 0}.WithOriginal([]byte("garbage"))
	require.NoError(t, bus.DeadLetter(context.Background(), letter))

	letters := bus.DeadLetters()
	require.Len(t, letters, 1)
	assert.Equal(t, "garbage", string(letters[0].Original()))
}
