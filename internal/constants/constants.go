package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout     = 10 * time.Second
	DefaultUserAgent       = "script:tierguard:v1.0"
	DefaultPlatformBaseURL = "https://oauth.reddit.com"
	DefaultPlatformAuthURL = "https://www.reddit.com/api/v1/access_token"
)

const (
	DefaultCommunity     = "SydneyTrains"
	DefaultPollInterval  = 5 * time.Second
	DefaultSeenCacheSize = 1024
	DefaultMongoDBName   = "tierguard"
)

const (
	DocumentRules              = "automod"
	DocumentTiers              = "tiers"
	DefaultDocumentsCollection = "config_documents"
	BackupSuffix               = ".bak"
)

const (
	SourceReddit = "reddit"
	SourceKafka  = "kafka"
)

const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendFile     = "file"
	BackendMongoDB  = "mongodb"
	BackendMemory   = "memory"
)

const (
	CacheKeyPrefixWindow = "window:"
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	AuditPageSize      = 50
	RecentActionsLimit = 5
	TopUsersLimit      = 10
	StatsDefaultDays   = 30
)

const (
	MaxBanDays = 999
)

const (
	ModeratorHeader      = "X-Moderator"
	DefaultModerator     = "dashboard"
	DefaultRemovalNote   = "Removed by moderator"
	BanActionType        = "BAN_USER"
	DashboardInitTimeout = 30 * time.Second
)

const (
	ServiceModeration = "moderation-service"
	ServiceDashboard  = "dashboard-service"
)
