package moderation

import (
	"context"

	"tierguard/internal/logger"
	"tierguard/internal/platform"
	"tierguard/pkg/errors"
)

type Decider interface {
	Decide(ctx context.Context, sub platform.Submission) (Decision, error)
}

// Processor is the intake loop: one submission at a time, in arrival order.
type Processor struct {
	decider Decider
	log     logger.Logger
}

func NewProcessor(decider Decider, log logger.Logger) *Processor {
	return &Processor{decider: decider, log: log.Named("processor")}
}

// Run blocks until the source stops. Each submission is decided in isolation:
// errors and panics are logged and the loop moves on.
func (p *Processor) Run(ctx context.Context, source platform.Source) error {
	p.log.InfowCtx(ctx, "Processing submissions")
	return source.Run(ctx, p.Handle)
}

// Handle decides one submission. It returns the decision error so sources
// with redelivery can retry; the panic is converted to an error.
func (p *Processor) Handle(ctx context.Context, sub platform.Submission) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.RecoverPanic(r)
			p.log.ErrorwCtx(ctx, "Panic while processing submission",
				"submission_id", sub.ID,
				"error", err,
			)
		}
	}()

	if _, err := p.decider.Decide(ctx, sub); err != nil {
		p.log.ErrorwCtx(ctx, "Error processing submission",
			"submission_id", sub.ID,
			"error", err,
		)
		return err
	}
	return nil
}
