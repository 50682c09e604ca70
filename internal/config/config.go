package config

import (
	"time"
)

// Config is the immutable process snapshot built once at startup and passed by
// pointer into every component. Rule and tier documents are not part of it;
// they are re-read per decision.
type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Broker         BrokerConfig
	Logging        LoggingConfig
	Moderation     ModerationConfig
	Documents      DocumentsConfig
	Platform       PlatformConfig
	Dashboard      DashboardConfig
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Tracing        TracingConfig
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig
	Redis         RedisConfig
	MongoDB       MongoDBConfig
	RunMigrations bool `mapstructure:"run_migrations"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type BrokerConfig struct {
	Type  string      `mapstructure:"type"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers        []string    `mapstructure:"brokers"`
	GroupID        string      `mapstructure:"group_id"`
	InputTopic     string      `mapstructure:"input_topic"`
	DecisionsTopic string      `mapstructure:"decisions_topic"`
	DLQTopic       string      `mapstructure:"dlq_topic"`
	Retry          RetryConfig `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ModerationConfig struct {
	Community     string        `mapstructure:"community"`
	DryRun        bool          `mapstructure:"dry_run"`
	Source        string        `mapstructure:"source"`         // "reddit" (default) or "kafka"
	WindowBackend string        `mapstructure:"window_backend"` // "postgres" (default) or "redis"
	RulesDocument string        `mapstructure:"rules_document"`
	TiersDocument string        `mapstructure:"tiers_document"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	SkipExisting  bool          `mapstructure:"skip_existing"`
	SeenCacheSize int           `mapstructure:"seen_cache_size"`
}

type DocumentsConfig struct {
	Backend         string `mapstructure:"backend"` // "file" (default) or "mongodb"
	Dir             string `mapstructure:"dir"`
	MongoCollection string `mapstructure:"mongodb_collection"`
}

type PlatformConfig struct {
	ClientID          string        `mapstructure:"client_id"`
	ClientSecret      string        `mapstructure:"client_secret"`
	Username          string        `mapstructure:"username"`
	Password          string        `mapstructure:"password"`
	UserAgent         string        `mapstructure:"user_agent"`
	BaseURL           string        `mapstructure:"base_url"`
	AuthURL           string        `mapstructure:"auth_url"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
}

type DashboardConfig struct {
	AuthToken string          `mapstructure:"auth_token"`
	PageSize  int             `mapstructure:"page_size"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
