package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nguyennn/account-svc/pkg/domain/events"
	"github.com/nguyennn/account-svc/pkg/eventbus"
	"github.com/redis/go-redis/v9"
)

const (
	redisEventField = "event"
	redisKeyField   = "key"
)

// RedisStreamConfig holds configuration for the Redis Streams transport.
type RedisStreamConfig struct {
	Stream    string
	Group     string
	Consumer  string
	DLQStream string
	// Block is how long one XREADGROUP waits for new entries.
	Block time.Duration
	Count int64
	// MaxLen caps the stream length on publish (approximate trimming); 0 disables it.
	MaxLen int64
}

// DefaultRedisStreamConfig returns the stream, group and DLQ names for eventType.
func DefaultRedisStreamConfig(eventType events.EventType) RedisStreamConfig {
	return RedisStreamConfig{
		Stream:    streamNameFor(eventType),
		Group:     groupNameFor(eventType),
		Consumer:  "account-svc",
		DLQStream: dlqStreamName(eventType),
		Block:     2 * time.Second,
		Count:     16,
	}
}

// RedisStreamSource reads a stream through a consumer group. Entries stay in
// the group's pending list until acknowledged, and entries left pending by a
// previous run of the same consumer are delivered again before new ones.
type RedisStreamSource struct {
	client redis.UniversalClient
	cfg    RedisStreamConfig
	logger *slog.Logger

	done chan struct{}
	once sync.Once
}

// NewRedisStreamSource creates the stream and consumer group if needed.
func NewRedisStreamSource(ctx context.Context, client redis.UniversalClient, cfg RedisStreamConfig, logger *slog.Logger) (*RedisStreamSource, error) {
	if client == nil {
		return nil, fmt.Errorf("redis event bus: client not initialized")
	}
	if cfg.Stream == "" || cfg.Group == "" || cfg.Consumer == "" {
		return nil, fmt.Errorf("redis event bus: stream, group, and consumer are required")
	}
	if cfg.Block <= 0 {
		cfg.Block = 2 * time.Second
	}
	if cfg.Count <= 0 {
		cfg.Count = 16
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := client.XGroupCreateMkStream(ctx, cfg.Stream, cfg.Group, "0").Err(); err != nil &&
		!strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("redis event bus: create group: %w", err)
	}

	return &RedisStreamSource{
		client: client,
		cfg:    cfg,
		logger: logger.With("bus", "redis", "stream", cfg.Stream, "consumer", cfg.Consumer),
		done:   make(chan struct{}),
	}, nil
}

// Run delivers this consumer's pending entries, then new entries, to h until
// ctx is done or the source is closed.
func (s *RedisStreamSource) Run(ctx context.Context, h eventbus.Handler) error {
	// "0" walks this consumer's pending entries list; ">" asks for new entries.
	cursor := "0"
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		default:
		}

		args := &redis.XReadGroupArgs{
			Group:    s.cfg.Group,
			Consumer: s.cfg.Consumer,
			Streams:  []string{s.cfg.Stream, cursor},
			Count:    s.cfg.Count,
			Block:    -1,
		}
		if cursor == ">" {
			args.Block = s.cfg.Block
		}

		res, err := s.client.XReadGroup(ctx, args).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Error("error reading from stream", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-s.done:
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		delivered := 0
		for _, stream := range res {
			for _, entry := range stream.Messages {
				delivered++
				if cursor != ">" {
					cursor = entry.ID
				}
				if err := h(ctx, s.message(entry)); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					s.logger.Warn("⚠️ handler refused message, stopping", "msg_id", entry.ID, "error", err)
					return err
				}
			}
		}
		if delivered == 0 && cursor != ">" {
			cursor = ">"
			s.logger.Debug("pending entries replayed, reading new entries")
		}
	}
}

func (s *RedisStreamSource) message(entry redis.XMessage) *eventbus.Message {
	id := entry.ID
	key, _ := entry.Values[redisKeyField].(string)
	var payload []byte
	if raw, ok := entry.Values[redisEventField].(string); ok {
		payload = []byte(raw)
	}
	return eventbus.NewMessage("redis", id, key, payload, func(ctx context.Context) error {
		if err := s.client.XAck(ctx, s.cfg.Stream, s.cfg.Group, id).Err(); err != nil {
			s.logger.Error("failed to acknowledge message", "error", err, "msg_id", id)
			return fmt.Errorf("redis event bus: ack failed: %w", err)
		}
		return nil
	})
}

// Close ends Run. The client is owned by the caller.
func (s *RedisStreamSource) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// RedisStreamPublisher appends events to a stream.
type RedisStreamPublisher struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

// NewRedisStreamPublisher creates a publisher for stream.
func NewRedisStreamPublisher(client redis.UniversalClient, stream string, maxLen int64) *RedisStreamPublisher {
	return &RedisStreamPublisher{client: client, stream: stream, maxLen: maxLen}
}

// Publish implements eventbus.Publisher.
func (p *RedisStreamPublisher) Publish(ctx context.Context, key string, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{redisEventField: string(payload), redisKeyField: key},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis event bus: emit failed: %w", err)
	}
	return nil
}

// Close is a no-op; the client is owned by the caller.
func (p *RedisStreamPublisher) Close() error { return nil }

// RedisDeadLetterSink appends dead letters to a stream, one field per
// attribute so they can be inspected with XRANGE without decoding.
type RedisDeadLetterSink struct {
	client redis.UniversalClient
	stream string
	logger *slog.Logger
}

// NewRedisDeadLetterSink creates a sink writing to stream.
func NewRedisDeadLetterSink(client redis.UniversalClient, stream string, logger *slog.Logger) *RedisDeadLetterSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisDeadLetterSink{client: client, stream: stream, logger: logger.With("bus", "redis", "stream", stream)}
}

// DeadLetter implements eventbus.DeadLetterSink.
func (s *RedisDeadLetterSink) DeadLetter(ctx context.Context, d eventbus.DeadLetter) error {
	values := map[string]any{
		"reason":         d.Reason,
		"attemptCount":   strconv.Itoa(d.AttemptCount),
		"lastError":      d.LastError,
		"transactionId":  d.TransactionID,
		"accountId":      d.AccountID,
		"source":         d.Source,
		"messageId":      d.MessageID,
		"deadLetteredAt": d.DeadLetteredAt.Format(time.RFC3339Nano),
		redisEventField:  string(d.Original()),
	}
	if _, err := s.client.XAdd(ctx, &redis.XAddArgs{Stream: s.stream, Values: values}).Result(); err != nil {
		s.logger.Error("failed to push to DLQ", "error", err)
		return fmt.Errorf("redis event bus: dlq push failed: %w", err)
	}
	s.logger.Warn("📦 [DLQ] event pushed to DLQ", "reason", d.Reason, "transaction_id", d.TransactionID)
	return nil
}

var (
	_ eventbus.Source         = (*RedisStreamSource)(nil)
	_ eventbus.Publisher      = (*RedisStreamPublisher)(nil)
	_ eventbus.DeadLetterSink = (*RedisDeadLetterSink)(nil)
)
