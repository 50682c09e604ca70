package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"tierguard/internal/constants"
)

func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout_seconds", 10*time.Second)
	viper.SetDefault("server.write_timeout_seconds", 10*time.Second)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("moderation.community", constants.DefaultCommunity)
	viper.SetDefault("moderation.source", constants.SourceReddit)
	viper.SetDefault("moderation.window_backend", constants.BackendPostgres)
	viper.SetDefault("moderation.rules_document", constants.DocumentRules)
	viper.SetDefault("moderation.tiers_document", constants.DocumentTiers)
	viper.SetDefault("moderation.poll_interval", constants.DefaultPollInterval)
	viper.SetDefault("moderation.skip_existing", true)
	viper.SetDefault("moderation.seen_cache_size", constants.DefaultSeenCacheSize)

	viper.SetDefault("documents.backend", constants.BackendFile)
	viper.SetDefault("documents.dir", ".")
	viper.SetDefault("documents.mongodb_collection", constants.DefaultDocumentsCollection)

	viper.SetDefault("platform.user_agent", constants.DefaultUserAgent)
	viper.SetDefault("platform.base_url", constants.DefaultPlatformBaseURL)
	viper.SetDefault("platform.auth_url", constants.DefaultPlatformAuthURL)
	viper.SetDefault("platform.requests_per_minute", 60)
	viper.SetDefault("platform.timeout", constants.DefaultHTTPTimeout)
	viper.SetDefault("platform.max_retries", 3)

	viper.SetDefault("dashboard.page_size", constants.AuditPageSize)

	viper.SetDefault("broker.kafka.retry.multiplier", 2.0)
}

func bindEnvVariables() {
	viper.BindEnv("broker.type", "BROKER_TYPE")
	viper.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS")
	viper.BindEnv("broker.kafka.group_id", "BROKER_KAFKA_GROUP_ID")
	viper.BindEnv("broker.kafka.input_topic", "BROKER_KAFKA_INPUT_TOPIC")
	viper.BindEnv("broker.kafka.decisions_topic", "BROKER_KAFKA_DECISIONS_TOPIC")
	viper.BindEnv("broker.kafka.dlq_topic", "BROKER_KAFKA_DLQ_TOPIC")

	viper.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST", "DB_HOST")
	viper.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	viper.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER", "DB_USER")
	viper.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD", "DB_PASSWORD")
	viper.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME", "DB_NAME")
	viper.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")

	viper.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	viper.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	viper.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	viper.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	viper.BindEnv("database.mongodb.uri", "DATABASE_MONGODB_URI")
	viper.BindEnv("database.mongodb.database", "DATABASE_MONGODB_DATABASE")

	viper.BindEnv("moderation.community", "MODERATION_COMMUNITY", "SUBREDDIT_NAME")
	viper.BindEnv("moderation.dry_run", "MODERATION_DRY_RUN", "TEST_MODE")

	viper.BindEnv("platform.client_id", "PLATFORM_CLIENT_ID", "REDDIT_CLIENT_ID")
	viper.BindEnv("platform.client_secret", "PLATFORM_CLIENT_SECRET", "REDDIT_CLIENT_SECRET")
	viper.BindEnv("platform.username", "PLATFORM_USERNAME", "REDDIT_USERNAME")
	viper.BindEnv("platform.password", "PLATFORM_PASSWORD", "REDDIT_PASSWORD")
	viper.BindEnv("platform.user_agent", "PLATFORM_USER_AGENT", "REDDIT_USER_AGENT")

	viper.BindEnv("dashboard.auth_token", "DASHBOARD_AUTH_TOKEN")

	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout_seconds", "SERVER_READ_TIMEOUT_SECONDS")
	viper.BindEnv("server.write_timeout_seconds", "SERVER_WRITE_TIMEOUT_SECONDS")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
}

func applyEnvOverrides(cfg *Config) error {
	if brokersEnv := viper.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}

	cfg.Moderation.Community = strings.TrimPrefix(strings.TrimSpace(cfg.Moderation.Community), "r/")

	return nil
}
