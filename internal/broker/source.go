package broker

import (
	"context"
	"errors"
	"fmt"

	"tierguard/internal/platform"
	"tierguard/pkg/logging"
	"tierguard/pkg/models"
	"tierguard/pkg/retry"
)

// SubmissionSource feeds submissions published on a topic to the engine.
// Payloads that do not decode are dead-lettered without retries.
type SubmissionSource struct {
	consumer Consumer
	topic    string
}

func NewSubmissionSource(consumer Consumer, topic string) *SubmissionSource {
	return &SubmissionSource{consumer: consumer, topic: topic}
}

func (s *SubmissionSource) Run(ctx context.Context, handle platform.Handler) error {
	err := s.consumer.Consume(ctx, s.topic, func(ctx context.Context, env models.Envelope) error {
		sub, err := decodeSubmission(env)
		if err != nil {
			return retry.Permanent(err)
		}
		ctx = logging.WithSubmissionID(ctx, sub.ID)
		return handle(ctx, sub)
	})
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func decodeSubmission(env models.Envelope) (platform.Submission, error) {
	if err := models.ValidateEnvelope(&env, models.KindSubmission); err != nil {
		return platform.Submission{}, err
	}
	var sub platform.Submission
	if err := env.Decode(&sub); err != nil {
		return platform.Submission{}, fmt.Errorf("failed to decode submission %s: %w", env.ID, err)
	}
	if sub.ID == "" {
		return platform.Submission{}, &models.ValidationError{Field: "payload.id", Message: "submission ID is required"}
	}
	return sub, nil
}

// SubmissionPublisher is the producing side of SubmissionSource, used by
// bridges and tests that feed the intake topic.
type SubmissionPublisher struct {
	producer Producer
	topic    string
	source   string
}

func NewSubmissionPublisher(producer Producer, topic, source string) *SubmissionPublisher {
	return &SubmissionPublisher{producer: producer, topic: topic, source: source}
}

func (p *SubmissionPublisher) Publish(ctx context.Context, sub platform.Submission) error {
	env, err := models.NewEnvelopeBuilder(models.KindSubmission).
		WithID(sub.ID).
		WithSource(p.source).
		WithTraceID(logging.GetTraceID(ctx)).
		WithPayload(sub).
		Build()
	if err != nil {
		return err
	}
	return p.producer.Publish(ctx, p.topic, *env)
}

// DecisionPublisher writes decision events to the decisions topic.
type DecisionPublisher struct {
	producer Producer
	topic    string
	source   string
}

func NewDecisionPublisher(producer Producer, topic, source string) *DecisionPublisher {
	return &DecisionPublisher{producer: producer, topic: topic, source: source}
}

func (p *DecisionPublisher) PublishDecision(ctx context.Context, event models.DecisionEvent) error {
	env, err := models.NewEnvelopeBuilder(models.KindDecision).
		WithSource(p.source).
		WithTimestamp(event.DecidedAt).
		WithTraceID(logging.GetTraceID(ctx)).
		WithPayload(event).
		Build()
	if err != nil {
		return err
	}
	if err := p.producer.Publish(ctx, p.topic, *env); err != nil {
		return fmt.Errorf("failed to publish decision for %s: %w", event.SubmissionID, err)
	}
	return nil
}
