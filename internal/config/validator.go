package config

import (
	"fmt"
	"strings"

	"tierguard/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateBroker(cfg.Broker); err != nil {
		errors = append(errors, err)
	}

	if err := validateDatabase(cfg.Database); err != nil {
		errors = append(errors, err)
	}

	if err := validateModeration(cfg); err != nil {
		errors = append(errors, err)
	}

	if err := validateDocuments(cfg); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

// ValidateCredentials reports a fatal startup error when the platform account
// the moderation service acts as is not fully configured. Dry-run mode still
// needs read access to the feed, so the check only relaxes when the submission
// source is the broker.
func ValidateCredentials(cfg *Config) error {
	if cfg.Moderation.Source == constants.SourceKafka && cfg.Moderation.DryRun {
		return nil
	}

	var missing []string
	if cfg.Platform.ClientID == "" {
		missing = append(missing, "platform.client_id")
	}
	if cfg.Platform.ClientSecret == "" {
		missing = append(missing, "platform.client_secret")
	}
	if cfg.Platform.Username == "" {
		missing = append(missing, "platform.username")
	}
	if cfg.Platform.Password == "" {
		missing = append(missing, "platform.password")
	}

	if len(missing) > 0 {
		return &ValidationError{
			Field:   strings.Join(missing, ","),
			Message: "missing platform credentials",
		}
	}
	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	switch cfg.Type {
	case "":
		return nil
	case constants.SourceKafka:
		return validateKafka(cfg.Kafka)
	default:
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unknown broker type: %s (supported: kafka)", cfg.Type),
		}
	}
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.GroupID == "" {
		return &ValidationError{
			Field:   "broker.kafka.group_id",
			Message: "Kafka consumer group ID is required",
		}
	}

	if cfg.Retry.MaxAttempts < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_attempts",
			Message: "max_attempts must be non-negative",
		}
	}

	if cfg.Retry.MaxInterval > 0 && cfg.Retry.InitialInterval > 0 && cfg.Retry.MaxInterval < cfg.Retry.InitialInterval {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Retry.Multiplier <= 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.multiplier",
			Message: "multiplier must be positive",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if cfg.Postgres.Host != "" || cfg.Postgres.Port > 0 {
		if err := validatePostgres(cfg.Postgres); err != nil {
			return err
		}
	}

	if cfg.Redis.Host != "" || cfg.Redis.Port > 0 {
		if err := validateRedis(cfg.Redis); err != nil {
			return err
		}
	}

	if cfg.MongoDB.URI != "" {
		if err := validateMongoDB(cfg.MongoDB); err != nil {
			return err
		}
	}

	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.postgres.host",
			Message: "PostgreSQL host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.User == "" {
		return &ValidationError{
			Field:   "database.postgres.user",
			Message: "PostgreSQL user is required",
		}
	}

	if cfg.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres.dbname",
			Message: "PostgreSQL database name is required",
		}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s (valid: disable, allow, prefer, require, verify-ca, verify-full)", cfg.SSLMode),
		}
	}

	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.redis.host",
			Message: "Redis host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	return nil
}

func validateMongoDB(cfg MongoDBConfig) error {
	if !strings.HasPrefix(cfg.URI, "mongodb://") && !strings.HasPrefix(cfg.URI, "mongodb+srv://") {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "MongoDB URI must start with mongodb:// or mongodb+srv://",
		}
	}

	if cfg.Database == "" {
		return &ValidationError{
			Field:   "database.mongodb.database",
			Message: "MongoDB database name is required",
		}
	}

	return nil
}

func validateModeration(cfg *Config) error {
	m := cfg.Moderation

	if m.Community == "" {
		return &ValidationError{
			Field:   "moderation.community",
			Message: "community name is required",
		}
	}

	switch m.Source {
	case constants.SourceReddit:
	case constants.SourceKafka:
		if cfg.Broker.Type != constants.SourceKafka || cfg.Broker.Kafka.InputTopic == "" {
			return &ValidationError{
				Field:   "broker.kafka.input_topic",
				Message: "kafka source requires broker.type=kafka and an input topic",
			}
		}
	default:
		return &ValidationError{
			Field:   "moderation.source",
			Message: fmt.Sprintf("unknown source: %s (supported: reddit, kafka)", m.Source),
		}
	}

	switch m.WindowBackend {
	case constants.BackendPostgres:
		if cfg.Database.Postgres.Host == "" {
			return &ValidationError{
				Field:   "database.postgres.host",
				Message: "postgres window backend requires a PostgreSQL connection",
			}
		}
	case constants.BackendRedis:
		if cfg.Database.Redis.Host == "" {
			return &ValidationError{
				Field:   "database.redis.host",
				Message: "redis window backend requires a Redis connection",
			}
		}
	case constants.BackendMemory:
	default:
		return &ValidationError{
			Field:   "moderation.window_backend",
			Message: fmt.Sprintf("unknown window backend: %s (supported: postgres, redis, memory)", m.WindowBackend),
		}
	}

	if m.PollInterval < 0 {
		return &ValidationError{
			Field:   "moderation.poll_interval",
			Message: "poll interval must be non-negative",
		}
	}

	return nil
}

func validateDocuments(cfg *Config) error {
	switch cfg.Documents.Backend {
	case constants.BackendFile:
		if cfg.Documents.Dir == "" {
			return &ValidationError{
				Field:   "documents.dir",
				Message: "document directory is required for the file backend",
			}
		}
	case constants.BackendMongoDB:
		if cfg.Database.MongoDB.URI == "" {
			return &ValidationError{
				Field:   "database.mongodb.uri",
				Message: "mongodb document backend requires a MongoDB connection",
			}
		}
	default:
		return &ValidationError{
			Field:   "documents.backend",
			Message: fmt.Sprintf("unknown document backend: %s (supported: file, mongodb)", cfg.Documents.Backend),
		}
	}
	return nil
}
