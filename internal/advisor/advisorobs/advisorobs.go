package advisorobs

import (
	"context"
	"time"

	"defi-position-manager/internal/interfaces"
	"defi-position-manager/internal/logger"
	"defi-position-manager/internal/trace"
	"defi-position-manager/internal/types"
)

// observableAdvisor wraps an Advisor with observability (logging & tracing)
type observableAdvisor struct {
	advisor interfaces.Advisor
}

// Compile-time interface check
var _ interfaces.Advisor = (*observableAdvisor)(nil)

// Wrap wraps an advisor with observability middleware
func Wrap(advisor interfaces.Advisor) interfaces.Advisor {
	return &observableAdvisor{
		advisor: advisor,
	}
}

func (oa *observableAdvisor) Recommend(ctx context.Context, input types.DecisionInput) types.Recommendation {
	ctx, span := trace.StartSpan(ctx, "advisor.Recommend")
	defer span.End()

	// Use DebugSkip(1) to report the actual caller, not this middleware wrapper
	logger.DebugSkip(ctx, 1, "Requesting position recommendation",
		"health_factor", input.Position.HealthFactor.String(),
		"pairs", len(input.Prices),
	)

	start := time.Now()
	rec := oa.advisor.Recommend(ctx, input)

	logger.Decision(ctx, string(rec.Action), rec.Confidence, rec.Reason,
		"asset", rec.Asset,
		"amount", rec.Amount.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return rec
}
