package noop

import (
	"context"

	"defi-position-manager/internal/logger"
)

// Oracle is a fallback used when no LLM provider is configured. Its
// canned reply always decodes to a do-nothing recommendation.
type Oracle struct{}

func New() *Oracle {
	return &Oracle{}
}

func (o *Oracle) Complete(ctx context.Context, system, user string) (string, error) {
	logger.Debug(ctx, "Noop oracle called - always recommends no action")
	return `{"action":"none","reason":"noop oracle","confidence":0}`, nil
}
