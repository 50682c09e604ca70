package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_decisions_total",
			Help: "Total number of submissions decided by the moderation engine (count)",
		},
		[]string{"verdict"},
	)

	DecisionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moderation_decision_duration_ms",
			Help:    "Duration of a single moderation decision in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"verdict"},
	)

	RuleHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_rule_hits_total",
			Help: "Total number of removals per rule (count)",
		},
		[]string{"rule"},
	)

	ConfigFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_config_fallback_total",
			Help: "Total number of times a config document was unusable and defaults applied (count)",
		},
		[]string{"document"},
	)

	CollaboratorErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_collaborator_errors_total",
			Help: "Total number of failed platform, store or audit calls (count)",
		},
		[]string{"operation"},
	)

	PlatformRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_requests_total",
			Help: "Total number of requests sent to the content platform (count)",
		},
		[]string{"method", "status"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	DashboardRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_requests_total",
			Help: "Total number of dashboard API requests (count)",
		},
		[]string{"method", "route", "status"},
	)
)

func RegisterModerationMetrics() {
	prometheus.MustRegister(DecisionsTotal)
	prometheus.MustRegister(DecisionDuration)
	prometheus.MustRegister(RuleHitsTotal)
	prometheus.MustRegister(ConfigFallbackTotal)
	prometheus.MustRegister(CollaboratorErrorsTotal)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(DLQMessagesTotal)
	prometheus.MustRegister(KafkaMessagesReadTotal)
	prometheus.MustRegister(KafkaMessagesWrittenTotal)
	prometheus.MustRegister(KafkaWriteDuration)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterDashboardMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
	prometheus.MustRegister(DashboardRequestsTotal)
}

func RegisterPlatformMetrics() {
	prometheus.MustRegister(PlatformRequestsTotal)
}

func ObserveDecision(verdict string, duration time.Duration) {
	DecisionsTotal.WithLabelValues(verdict).Inc()
	DecisionDuration.WithLabelValues(verdict).Observe(float64(duration.Milliseconds()))
}

func IncRuleHit(rule string) {
	RuleHitsTotal.WithLabelValues(rule).Inc()
}

func IncConfigFallback(document string) {
	ConfigFallbackTotal.WithLabelValues(document).Inc()
}

func IncCollaboratorError(operation string) {
	CollaboratorErrorsTotal.WithLabelValues(operation).Inc()
}

func IncPlatformRequest(method, status string) {
	PlatformRequestsTotal.WithLabelValues(method, status).Inc()
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}
