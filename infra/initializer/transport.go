package initializer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	infra_eventbus "github.com/nguyennn/account-svc/infra/eventbus"
	"github.com/nguyennn/account-svc/pkg/config"
	"github.com/nguyennn/account-svc/pkg/domain/events"
	"github.com/nguyennn/account-svc/pkg/eventbus"
	"github.com/redis/go-redis/v9"
)

// Transport is the inbound source and the dead-letter sink of one transport
// kind, plus whatever must be closed with them.
type Transport struct {
	Kind        string
	Source      eventbus.Source
	DeadLetters eventbus.DeadLetterSink
	closers     []io.Closer
}

// Close closes the source and every owned connection.
func (t *Transport) Close() error {
	errs := []error{t.Source.Close()}
	for i := len(t.closers) - 1; i >= 0; i-- {
		errs = append(errs, t.closers[i].Close())
	}
	return errors.Join(errs...)
}

// redisProvider returns the shared redis client, dialing it on first use.
type redisProvider func(ctx context.Context) (redis.UniversalClient, error)

func kafkaConfig(cfg *config.Kafka) *infra_eventbus.KafkaConfig {
	return &infra_eventbus.KafkaConfig{
		Brokers:       cfg.Brokers,
		GroupID:       cfg.GroupID,
		TopicPrefix:   cfg.TopicPrefix,
		SASLUsername:  cfg.SASLUsername,
		SASLPassword:  cfg.SASLPassword,
		TLSEnabled:    cfg.TLSEnabled,
		TLSCAFile:     cfg.TLSCAFile,
		TLSCertFile:   cfg.TLSCertFile,
		TLSKeyFile:    cfg.TLSKeyFile,
		TLSSkipVerify: cfg.TLSSkipVerify,
	}
}

func redisStreamConfig(cfg *config.RedisStream) infra_eventbus.RedisStreamConfig {
	rs := infra_eventbus.DefaultRedisStreamConfig(events.EventTypeTransactionInitiated)
	if cfg == nil {
		return rs
	}
	if cfg.Consumer != "" {
		rs.Consumer = cfg.Consumer
	}
	if cfg.Block > 0 {
		rs.Block = cfg.Block
	}
	if cfg.Count > 0 {
		rs.Count = cfg.Count
	}
	rs.MaxLen = cfg.MaxLen
	return rs
}

func rabbitMQConfig(cfg *config.RabbitMQ) infra_eventbus.RabbitMQConfig {
	rc := infra_eventbus.DefaultRabbitMQConfig(events.EventTypeTransactionInitiated)
	if cfg == nil {
		return rc
	}
	if cfg.URL != "" {
		rc.URL = cfg.URL
	}
	if cfg.Queue != "" {
		rc.Queue = cfg.Queue
	}
	if cfg.DLQueue != "" {
		rc.DLQueue = cfg.DLQueue
	}
	if cfg.Prefetch > 0 {
		rc.Prefetch = cfg.Prefetch
	}
	return rc
}

func initTransport(ctx context.Context, cfg *config.App, redisClient redisProvider, logger *slog.Logger) (*Transport, error) {
	kind := cfg.Transport.Kind
	logger = logger.With("transport", kind)

	switch kind {
	case config.TransportMemory, "":
		bus := infra_eventbus.NewWithMemory(logger)
		logger.Info("Using in-memory transport")
		return &Transport{Kind: config.TransportMemory, Source: bus, DeadLetters: bus}, nil

	case config.TransportKafka:
		kc := kafkaConfig(cfg.Kafka)
		src, err := infra_eventbus.NewKafkaSource(ctx, kc, events.EventTypeTransactionInitiated, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka source: %w", err)
		}
		dlq, err := infra_eventbus.NewKafkaPublisher(ctx, kc, kc.DLQTopic(events.EventTypeTransactionInitiated), logger)
		if err != nil {
			_ = src.Close()
			return nil, fmt.Errorf("failed to create kafka dead-letter publisher: %w", err)
		}
		logger.Info("Using kafka transport", "brokers", kc.Brokers, "topic", kc.Topic(events.EventTypeTransactionInitiated))
		return &Transport{
			Kind:        kind,
			Source:      src,
			DeadLetters: eventbus.PublisherSink{Publisher: dlq},
			closers:     []io.Closer{dlq},
		}, nil

	case config.TransportRedis:
		client, err := redisClient(ctx)
		if err != nil {
			return nil, err
		}
		rs := redisStreamConfig(cfg.RedisStream)
		src, err := infra_eventbus.NewRedisStreamSource(ctx, client, rs, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis stream source: %w", err)
		}
		logger.Info("Using redis streams transport", "stream", rs.Stream, "group", rs.Group)
		return &Transport{
			Kind:        kind,
			Source:      src,
			DeadLetters: infra_eventbus.NewRedisDeadLetterSink(client, rs.DLQStream, logger),
		}, nil

	case config.TransportRabbitMQ:
		rc := rabbitMQConfig(cfg.RabbitMQ)
		conn, err := infra_eventbus.DialRabbitMQ(rc.URL)
		if err != nil {
			return nil, err
		}
		consumeCh, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("rabbitmq: open consume channel: %w", err)
		}
		src, err := infra_eventbus.NewRabbitMQSource(consumeCh, rc, logger)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		publishCh, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("rabbitmq: open publish channel: %w", err)
		}
		dlq, err := infra_eventbus.NewRabbitMQPublisher(publishCh, rc.DLQueue)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		logger.Info("Using rabbitmq transport", "queue", rc.Queue, "dlq", rc.DLQueue)
		return &Transport{
			Kind:        kind,
			Source:      src,
			DeadLetters: eventbus.PublisherSink{Publisher: dlq},
			closers:     []io.Closer{conn, dlq},
		}, nil
	}
	return nil, fmt.Errorf("unsupported transport %q", kind)
}

// Publisher is an eventbus.Publisher that owns its connection.
type Publisher interface {
	eventbus.Publisher
	io.Closer
}

type closingPublisher struct {
	eventbus.Publisher
	close func() error
}

func (p closingPublisher) Close() error { return p.close() }

// NewPublisher returns a publisher for inbound transaction events on the
// configured transport. The memory transport has no publisher outside the
// process.
func NewPublisher(ctx context.Context, cfg *config.App, logger *slog.Logger) (Publisher, error) {
	switch cfg.Transport.Kind {
	case config.TransportKafka:
		kc := kafkaConfig(cfg.Kafka)
		return infra_eventbus.NewKafkaPublisher(ctx, kc, kc.Topic(events.EventTypeTransactionInitiated), logger)
	case config.TransportRedis:
		client, err := NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		rs := redisStreamConfig(cfg.RedisStream)
		return closingPublisher{
			Publisher: infra_eventbus.NewRedisStreamPublisher(client, rs.Stream, rs.MaxLen),
			close:     client.Close,
		}, nil
	case config.TransportRabbitMQ:
		rc := rabbitMQConfig(cfg.RabbitMQ)
		conn, err := infra_eventbus.DialRabbitMQ(rc.URL)
		if err != nil {
			return nil, err
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("rabbitmq: open channel: %w", err)
		}
		pub, err := infra_eventbus.NewRabbitMQPublisher(ch, rc.Queue)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		return closingPublisher{Publisher: pub, close: conn.Close}, nil
	}
	return nil, fmt.Errorf("transport %q has no external publisher", cfg.Transport.Kind)
}
