package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"tierguard/internal/config"
	"tierguard/internal/constants"
	"tierguard/internal/logger"
	"tierguard/pkg/errors"
	"tierguard/pkg/logging"
	"tierguard/pkg/metrics"
	"tierguard/pkg/models"
	"tierguard/pkg/retry"
	"tierguard/pkg/tracing"
)

type KafkaProducer struct {
	writer      *kafka.Writer
	logger      logger.Logger
	serviceName string
}

func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) *KafkaProducer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           constants.KafkaBatchTimeout,
		WriteTimeout:           constants.KafkaWriteTimeout,
		AllowAutoTopicCreation: true,
	}
	return &KafkaProducer{writer: w, logger: log, serviceName: "unknown"}
}

func (p *KafkaProducer) SetServiceName(name string) {
	p.serviceName = name
}

// Publish writes env keyed by its ID. Decision events for the same
// submission therefore land on the same partition.
func (p *KafkaProducer) Publish(ctx context.Context, topic string, env models.Envelope) error {
	if env.Metadata.TraceID == "" {
		env.Metadata.TraceID = logging.GetTraceID(ctx)
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	start := time.Now()
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     []byte(env.ID),
		Value:   body,
		Headers: tracing.InjectTraceContext(ctx, nil),
		Time:    start,
	})
	if err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	metrics.IncKafkaMessagesWritten(p.serviceName, topic)
	metrics.ObserveKafkaWriteDuration(p.serviceName, topic, time.Since(start))
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

type KafkaConsumer struct {
	cfg         config.KafkaConfig
	wg          sync.WaitGroup
	reader      *kafka.Reader
	logger      logger.Logger
	dlqProducer Producer
	serviceName string
}

func NewKafkaConsumer(cfg config.KafkaConfig, log logger.Logger) *KafkaConsumer {
	consumer := &KafkaConsumer{
		cfg:         cfg,
		logger:      log,
		serviceName: "unknown",
	}

	if cfg.DLQTopic != "" {
		consumer.dlqProducer = NewKafkaProducer(cfg, log)
	}

	return consumer
}

func (c *KafkaConsumer) SetServiceName(name string) {
	c.serviceName = name
	if p, ok := c.dlqProducer.(*KafkaProducer); ok {
		p.SetServiceName(name)
	}
}

// Consume reads topic until ctx is cancelled. Messages are handled one at a
// time and committed after the handler succeeds or the message was parked on
// the DLQ, so a poison message never blocks the partition.
func (c *KafkaConsumer) Consume(ctx context.Context, topic string, handler HandlerFunc) error {
	c.logger.Infow("Creating Kafka reader",
		"topic", topic,
		"brokers", c.cfg.Brokers,
		"group_id", c.cfg.GroupID,
		"service_name", c.serviceName,
	)

	c.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:  c.cfg.Brokers,
		GroupID:  c.cfg.GroupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		consumeCtx := logging.WithServiceName(ctx, c.serviceName)
		c.logger.InfowCtx(consumeCtx, "Started consuming", "topic", topic)

		for {
			m, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					c.logger.InfowCtx(consumeCtx, "Stopped consuming",
						"topic", topic,
						"reason", "context canceled",
					)
					return
				}
				c.logger.ErrorwCtx(consumeCtx, "Error fetching kafka message",
					"error", err,
					"topic", topic,
				)
				time.Sleep(time.Second)
				continue
			}
			metrics.IncKafkaMessagesRead(c.serviceName, topic)
			c.handleMessage(consumeCtx, m, handler, topic)
		}
	}()

	<-ctx.Done()
	return ctx.Err()
}

func (c *KafkaConsumer) handleMessage(ctx context.Context, m kafka.Message, handler HandlerFunc, topic string) {
	msgCtx, span := tracing.StartSpanFromKafkaMessage(ctx, "kafka.consume", m.Headers)
	defer span.End()

	var env models.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		c.logger.ErrorwCtx(msgCtx, "Failed to unmarshal message",
			"error", err,
			"topic", topic,
			"offset", m.Offset,
		)
		c.commit(msgCtx, m, topic)
		return
	}

	if env.Metadata.TraceID != "" {
		msgCtx = logging.WithTraceID(msgCtx, env.Metadata.TraceID)
	}

	if err := c.processWithRetry(msgCtx, env, handler, topic); err != nil {
		tracing.RecordError(span, err)
		c.logger.ErrorwCtx(msgCtx, "Failed to process message after retries",
			"error", err,
			"envelope_id", env.ID,
			"topic", topic,
		)
		if c.dlqProducer != nil {
			if dlqErr := c.sendToDLQ(msgCtx, env, err, topic); dlqErr != nil {
				c.logger.ErrorwCtx(msgCtx, "Failed to send message to DLQ",
					"error", dlqErr,
					"topic", topic,
				)
			}
		} else {
			c.logger.WarnwCtx(msgCtx, "No DLQ configured, committing message to avoid blocking",
				"topic", topic,
			)
		}
	}
	c.commit(msgCtx, m, topic)
}

func (c *KafkaConsumer) commit(ctx context.Context, m kafka.Message, topic string) {
	if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		c.logger.ErrorwCtx(ctx, "Failed to commit message",
			"error", err,
			"topic", topic,
		)
	}
}

func (c *KafkaConsumer) processWithRetry(ctx context.Context, env models.Envelope, handler HandlerFunc, topic string) error {
	policy := retry.PolicyFromConfig(c.cfg.Retry)

	return retry.Do(ctx, policy, func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = retry.Permanent(errors.RecoverPanic(r))
				c.logger.ErrorwCtx(ctx, "Panic recovered during message processing",
					"error", err,
					"topic", topic,
				)
			}
		}()
		return handler(ctx, env)
	}, func(attempt int, err error, nextDelay time.Duration) {
		metrics.RetryAttemptsTotal.WithLabelValues(c.serviceName, topic).Inc()
		c.logger.WarnwCtx(ctx, "Retrying message processing",
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"next_delay", nextDelay,
			"error", err,
			"topic", topic,
		)
	})
}

func (c *KafkaConsumer) sendToDLQ(ctx context.Context, env models.Envelope, cause error, sourceTopic string) error {
	env.Metadata.DeadLetter = &models.DeadLetter{
		Reason:      cause.Error(),
		SourceTopic: sourceTopic,
		FailedAt:    time.Now().UTC(),
	}

	if err := c.dlqProducer.Publish(ctx, c.cfg.DLQTopic, env); err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}

	reason := "max_retries_exceeded"
	if retry.IsPermanent(cause) {
		reason = "permanent_error"
	}
	metrics.DLQMessagesTotal.WithLabelValues(c.serviceName, sourceTopic, reason).Inc()
	c.logger.InfowCtx(ctx, "Message sent to DLQ",
		"source_topic", sourceTopic,
		"dlq_topic", c.cfg.DLQTopic,
		"reason", cause.Error(),
	)
	return nil
}

func (c *KafkaConsumer) Close() error {
	var err error
	if c.reader != nil {
		err = c.reader.Close()
	}
	if c.dlqProducer != nil {
		if closeErr := c.dlqProducer.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	c.wg.Wait()
	return err
}
