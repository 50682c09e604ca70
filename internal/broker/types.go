package broker

import (
	"context"

	"tierguard/pkg/models"
)

type Producer interface {
	Publish(ctx context.Context, topic string, env models.Envelope) error
	Close() error
	SetServiceName(name string)
}

type Consumer interface {
	Consume(ctx context.Context, topic string, handler HandlerFunc) error
	Close() error
	SetServiceName(name string)
}

type HandlerFunc func(ctx context.Context, env models.Envelope) error
