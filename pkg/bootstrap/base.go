package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"tierguard/internal/broker"
	"tierguard/internal/config"
	"tierguard/internal/logger"
)

// Base holds what every service binary shares: configuration, the root
// logger and whichever broker clients the service asked for.
type Base struct {
	Config   *config.Config
	Logger   logger.Logger
	Producer broker.Producer
	Consumer broker.Consumer
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

func (b *Base) InitProducer(serviceName string) error {
	producer, err := broker.NewProducer(b.Config.Broker, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to create producer: %w", err)
	}
	if serviceName != "" {
		producer.SetServiceName(serviceName)
	}
	b.Producer = producer
	return nil
}

func (b *Base) InitConsumer(serviceName string) error {
	consumer, err := broker.NewConsumer(b.Config.Broker, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}
	if serviceName != "" {
		consumer.SetServiceName(serviceName)
	}
	b.Consumer = consumer
	return nil
}

// InitBroker creates both clients. The consumer dead-letters through its own
// writer, so it does not depend on the producer.
func (b *Base) InitBroker(serviceName string) error {
	if err := b.InitProducer(serviceName); err != nil {
		return err
	}
	if err := b.InitConsumer(serviceName); err != nil {
		b.Producer.Close()
		b.Producer = nil
		return err
	}
	return nil
}

func (b *Base) ShutdownBroker() []error {
	var errs []error

	if b.Consumer != nil {
		if err := b.Consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("consumer close error: %w", err))
		}
	}

	if b.Producer != nil {
		if err := b.Producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("producer close error: %w", err))
		}
	}

	return errs
}

func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.Info("Shutting down application...")

	var errs []error

	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	errs = append(errs, b.ShutdownBroker()...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	b.Logger.Info("Application exited successfully")
	return nil
}
