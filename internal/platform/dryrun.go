package platform

import (
	"context"

	"tierguard/internal/logger"
)

// DryRunActions logs what would have happened instead of doing it.
type DryRunActions struct {
	log logger.Logger
}

func NewDryRunActions(log logger.Logger) *DryRunActions {
	return &DryRunActions{log: log.Named("dry-run")}
}

func (d *DryRunActions) Remove(ctx context.Context, submissionID string, spam bool, modNote string) error {
	d.log.InfowCtx(ctx, "Would remove submission",
		"submission_id", submissionID,
		"spam", spam,
		"mod_note", modNote,
	)
	return nil
}

func (d *DryRunActions) Reply(ctx context.Context, submissionID string, text string, sticky bool) error {
	d.log.InfowCtx(ctx, "Would reply to submission",
		"submission_id", submissionID,
		"sticky", sticky,
		"text", text,
	)
	return nil
}
