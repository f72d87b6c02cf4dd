package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Transport kinds.
const (
	TransportMemory   = "memory"
	TransportKafka    = "kafka"
	TransportRedis    = "redis"
	TransportRabbitMQ = "rabbitmq"
)

// Idempotency backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

func Load(envFilePath ...string) (*App, error) {
	logger := slog.Default()
	logger.Info("Loading environment variables")

	if len(envFilePath) == 0 {
		logger.Debug("No environment file specified, trying default .env")
		if err := godotenv.Load(); err != nil {
			logger.Warn("No .env file found in current directory")
		}
		return loadFromEnv()
	}

	for _, path := range envFilePath {
		logger.Debug("Looking for environment file", "path", path)
		foundPath, err := FindEnvTest(path)
		if err != nil {
			logger.Debug("Environment file not found", "path", path, "error", err)
			continue
		}

		logger.Info("Loading environment from file", "path", foundPath)
		if err := godotenv.Load(foundPath); err != nil {
			logger.Error("Failed to load environment file", "path", foundPath, "error", err)
			continue
		}
		return loadFromEnv()
	}

	logger.Info("No valid environment files found, using default .env")
	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found in current directory")
	}
	return loadFromEnv()
}

func loadFromEnv() (*App, error) {
	var cfg App
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.Default().Info("App config loaded",
		"env", cfg.Env,
		"transport", cfg.Transport.Kind,
		"idempotency_backend", cfg.Idempotency.Backend,
		"db", maskValue(cfg.DB.Url),
		"redis", maskValue(cfg.Redis.URL),
		"kafka_brokers", cfg.Kafka.Brokers,
		"kafka_sasl_password", maskValue(cfg.Kafka.SASLPassword),
		"rabbitmq", maskValue(cfg.RabbitMQ.URL),
		"consumer_concurrency", cfg.Consumer.Concurrency,
		"consumer_queue_size", cfg.Consumer.QueueSize,
		"retry_max_attempts", cfg.Retry.MaxAttempts,
		"retry_delay", cfg.Retry.Delay,
		"retry_strategy", cfg.Retry.Strategy,
	)
	return &cfg, nil
}

func (c *App) normalize() {
	c.Transport.Kind = strings.ToLower(strings.TrimSpace(c.Transport.Kind))
	c.Idempotency.Backend = strings.ToLower(strings.TrimSpace(c.Idempotency.Backend))
	c.Retry.Strategy = strings.ToLower(strings.TrimSpace(c.Retry.Strategy))
}

// Validate reports every invalid setting at once.
func (c *App) Validate() error {
	var errs []error
	switch c.Transport.Kind {
	case TransportMemory, TransportKafka, TransportRedis, TransportRabbitMQ:
	default:
		errs = append(errs, fmt.Errorf("TRANSPORT_KIND %q is not one of memory, kafka, redis, rabbitmq", c.Transport.Kind))
	}
	switch c.Idempotency.Backend {
	case BackendMemory, BackendRedis, BackendPostgres:
	default:
		errs = append(errs, fmt.Errorf("IDEMPOTENCY_BACKEND %q is not one of memory, redis, postgres", c.Idempotency.Backend))
	}
	switch c.Retry.Strategy {
	case "fixed", "exponential":
	default:
		errs = append(errs, fmt.Errorf("RETRY_STRATEGY %q is not one of fixed, exponential", c.Retry.Strategy))
	}
	if c.Consumer.Concurrency < 1 {
		errs = append(errs, errors.New("CONSUMER_CONCURRENCY must be at least 1"))
	}
	if c.Consumer.QueueSize < c.Consumer.Concurrency {
		errs = append(errs, errors.New("CONSUMER_QUEUE_SIZE must be at least CONSUMER_CONCURRENCY"))
	}
	if c.Consumer.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("CONSUMER_SHUTDOWN_TIMEOUT must be positive"))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("RETRY_MAX_ATTEMPTS must be at least 1"))
	}
	if c.Retry.Delay < 0 {
		errs = append(errs, errors.New("RETRY_DELAY must not be negative"))
	}
	if c.Retry.AttemptTimeout <= 0 {
		errs = append(errs, errors.New("RETRY_ATTEMPT_TIMEOUT must be positive"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("SERVER_PORT %d is out of range", c.Server.Port))
	}
	return errors.Join(errs...)
}

// Addr is the listen address of the ops server.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func maskValue(key string) string {
	if len(key) <= 6 {
		return "****"
	}
	return key[:2] + "****" + key[len(key)-4:]
}
