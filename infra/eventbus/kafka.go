package eventbus

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/nguyennn/account-svc/pkg/domain/events"
	"github.com/nguyennn/account-svc/pkg/eventbus"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
)

// KafkaConfig holds configuration for the Kafka transport.
type KafkaConfig struct {
	Brokers       string
	GroupID       string
	TopicPrefix   string
	SASLUsername  string
	SASLPassword  string
	TLSEnabled    bool
	TLSCAFile     string
	TLSCertFile   string
	TLSKeyFile    string
	TLSSkipVerify bool
}

// DefaultKafkaConfig returns default configuration for the Kafka transport.
func DefaultKafkaConfig() *KafkaConfig {
	return &KafkaConfig{
		Brokers:     "localhost:9092",
		GroupID:     "account-svc",
		TopicPrefix: defaultTopicPrefix,
	}
}

// Topic returns the inbound topic for eventType.
func (c *KafkaConfig) Topic(eventType events.EventType) string {
	return topicNameFor(c.TopicPrefix, eventType)
}

// DLQTopic returns the dead-letter topic for eventType.
func (c *KafkaConfig) DLQTopic(eventType events.EventType) string {
	return dlqTopicNameFor(c.TopicPrefix, eventType)
}

func (c *KafkaConfig) normalize() (*KafkaConfig, []string, error) {
	if c == nil {
		c = DefaultKafkaConfig()
	}
	out := *c
	brokers := parseBrokers(out.Brokers)
	if len(brokers) == 0 {
		return nil, nil, fmt.Errorf("kafka event bus: brokers are required")
	}
	if out.GroupID == "" {
		out.GroupID = "account-svc"
	}
	if strings.TrimSpace(out.TopicPrefix) == "" {
		out.TopicPrefix = defaultTopicPrefix
	}
	return &out, brokers, nil
}

// KafkaSource consumes one topic as part of a consumer group. Offsets are
// committed per partition only up to the highest offset below which every
// fetched message has been acknowledged, so events finishing out of order on
// different lanes never commit past an unfinished one.
type KafkaSource struct {
	reader *kafka.Reader
	topic  string
	logger *slog.Logger

	mu         sync.Mutex
	partitions map[int]*offsetTracker
}

// NewKafkaSource connects to the brokers and prepares a group reader for the
// eventType topic, creating the topic if it does not exist.
func NewKafkaSource(ctx context.Context, cfg *KafkaConfig, eventType events.EventType, logger *slog.Logger) (*KafkaSource, error) {
	cfg, brokers, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	dialer, _, err := newKafkaDialer(cfg)
	if err != nil {
		return nil, err
	}
	topic := cfg.Topic(eventType)
	if err := ensureTopic(ctx, dialer, brokers[0], topic); err != nil {
		return nil, err
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     cfg.GroupID,
		Topic:       topic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     1 * time.Second,
		Dialer:      dialer,
	})

	logger.Info("🚀 Kafka source initialized",
		"group_id", cfg.GroupID,
		"brokers", brokers,
		"topic", topic,
		"tls_enabled", dialer.TLS != nil,
		"sasl_enabled", dialer.SASLMechanism != nil,
	)

	return &KafkaSource{
		reader:     reader,
		topic:      topic,
		logger:     logger.With("bus", "kafka", "topic", topic),
		partitions: make(map[int]*offsetTracker),
	}, nil
}

// Run fetches messages and hands them to h until ctx is done or the source is
// closed. A message h refuses stops the loop without committing it, so it is
// redelivered to whichever group member owns the partition next.
func (s *KafkaSource) Run(ctx context.Context, h eventbus.Handler) error {
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			s.logger.Error("kafka consume error", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}

		tracker := s.tracker(msg.Partition)
		tracker.fetched(msg.Offset)

		delivery := eventbus.NewMessage("kafka",
			fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset),
			string(msg.Key), msg.Value, s.acker(tracker, msg))
		delivery.Headers = kafkaHeaders(msg.Headers)

		if err := h(ctx, delivery); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("⚠️ handler refused message, stopping", "partition", msg.Partition, "offset", msg.Offset, "error", err)
			return err
		}
	}
}

func (s *KafkaSource) tracker(partition int) *offsetTracker {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.partitions[partition]
	if !ok {
		t = newOffsetTracker()
		s.partitions[partition] = t
	}
	return t
}

func (s *KafkaSource) acker(t *offsetTracker, msg kafka.Message) eventbus.AckFunc {
	return func(ctx context.Context) error {
		t.commitMu.Lock()
		defer t.commitMu.Unlock()

		upTo, ok := t.complete(msg.Offset)
		if !ok {
			return nil
		}
		commit := kafka.Message{Topic: msg.Topic, Partition: msg.Partition, Offset: upTo}
		if err := s.reader.CommitMessages(ctx, commit); err != nil {
			s.logger.Error("kafka commit error", "error", err, "partition", msg.Partition, "offset", upTo)
			return fmt.Errorf("kafka event bus: commit failed: %w", err)
		}
		return nil
	}
}

// Close closes the reader, which also ends Run.
func (s *KafkaSource) Close() error {
	return s.reader.Close()
}

func kafkaHeaders(in []kafka.Header) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for _, h := range in {
		out[h.Key] = string(h.Value)
	}
	return out
}

// offsetTracker keeps the fetched offsets of one partition in fetch order and
// reports how far the contiguous acknowledged prefix reaches.
type offsetTracker struct {
	commitMu sync.Mutex

	mu      sync.Mutex
	pending []int64
	done    map[int64]struct{}
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{done: make(map[int64]struct{})}
}

func (t *offsetTracker) fetched(offset int64) {
	t.mu.Lock()
	t.pending = append(t.pending, offset)
	t.mu.Unlock()
}

// complete marks offset as acknowledged. It returns the new commit point when
// the acknowledged prefix grew.
func (t *offsetTracker) complete(offset int64) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done[offset] = struct{}{}

	var last int64
	advanced := false
	for len(t.pending) > 0 {
		head := t.pending[0]
		if _, ok := t.done[head]; !ok {
			break
		}
		delete(t.done, head)
		t.pending = t.pending[1:]
		last, advanced = head, true
	}
	return last, advanced
}

// KafkaPublisher writes to a single topic, keyed so that one account's events
// stay on one partition.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewKafkaPublisher creates a publisher for topic, creating the topic if it
// does not exist.
func NewKafkaPublisher(ctx context.Context, cfg *KafkaConfig, topic string, logger *slog.Logger) (*KafkaPublisher, error) {
	cfg, brokers, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	dialer, transport, err := newKafkaDialer(cfg)
	if err != nil {
		return nil, err
	}
	if err := ensureTopic(ctx, dialer, brokers[0], topic); err != nil {
		return nil, err
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireAll,
		Balancer:               &kafka.Hash{},
	}
	if transport != nil {
		writer.Transport = transport
	}
	return &KafkaPublisher{writer: writer, logger: logger.With("bus", "kafka", "topic", topic)}, nil
}

// Publish implements eventbus.Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, key string, payload []byte) error {
	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka event bus: publish failed: %w", err)
	}
	p.logger.Debug("event published", "key", key)
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func ensureTopic(ctx context.Context, dialer *kafka.Dialer, broker, topic string) error {
	if topic == "" {
		return fmt.Errorf("kafka event bus: topic is required")
	}
	conn, err := dialer.DialContext(ctx, "tcp", broker)
	if err != nil {
		return fmt.Errorf("kafka event bus: connection failed: %w", err)
	}
	defer func() { _ = conn.Close() }()

	err = conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil && !isTopicAlreadyExists(err) {
		return fmt.Errorf("kafka event bus: create topic failed: %w", err)
	}
	return nil
}

func isTopicAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, kafka.TopicAlreadyExists) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Topic with this name already exists") ||
		strings.Contains(msg, "TOPIC_ALREADY_EXISTS")
}

func newKafkaDialer(config *KafkaConfig) (*kafka.Dialer, *kafka.Transport, error) {
	tlsConfig, err := buildKafkaTLSConfig(config)
	if err != nil {
		return nil, nil, err
	}
	saslMechanism, err := buildKafkaSASLMechanism(config)
	if err != nil {
		return nil, nil, err
	}

	dialer := &kafka.Dialer{
		Timeout:       5 * time.Second,
		DualStack:     true,
		TLS:           tlsConfig,
		SASLMechanism: saslMechanism,
	}

	if tlsConfig == nil && saslMechanism == nil {
		return dialer, nil, nil
	}

	transport := &kafka.Transport{
		TLS:  tlsConfig,
		SASL: saslMechanism,
	}
	return dialer, transport, nil
}

func buildKafkaTLSConfig(config *KafkaConfig) (*tls.Config, error) {
	if !config.TLSEnabled {
		return nil, nil
	}

	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: config.TLSSkipVerify, //nolint:gosec
	}

	caFile := strings.TrimSpace(config.TLSCAFile)
	if caFile != "" {
		caBytes, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("kafka event bus: read tls ca file: %w", err)
		}
		caPool := x509.NewCertPool()
		if !caPool.AppendCertsFromPEM(caBytes) {
			return nil, fmt.Errorf("kafka event bus: invalid tls ca file")
		}
		tlsConfig.RootCAs = caPool
	}

	certFile := strings.TrimSpace(config.TLSCertFile)
	keyFile := strings.TrimSpace(config.TLSKeyFile)
	if certFile != "" || keyFile != "" {
		if certFile == "" || keyFile == "" {
			return nil, fmt.Errorf("kafka event bus: tls cert and key are required")
		}
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("kafka event bus: load tls key pair: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

func buildKafkaSASLMechanism(config *KafkaConfig) (sasl.Mechanism, error) {
	username := strings.TrimSpace(config.SASLUsername)
	password := strings.TrimSpace(config.SASLPassword)
	if username == "" && password == "" {
		return nil, nil
	}
	if username == "" || password == "" {
		return nil, fmt.Errorf("kafka event bus: sasl username and password are required")
	}
	return plain.Mechanism{
		Username: username,
		Password: password,
	}, nil
}

func parseBrokers(brokers string) []string {
	parts := strings.Split(brokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

var (
	_ eventbus.Source    = (*KafkaSource)(nil)
	_ eventbus.Publisher = (*KafkaPublisher)(nil)
)
