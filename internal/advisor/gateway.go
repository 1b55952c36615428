package advisor

import (
	"context"

	"defi-position-manager/internal/interfaces"
	"defi-position-manager/internal/logger"
	"defi-position-manager/internal/trace"
	"defi-position-manager/internal/types"
)

// Gateway turns a decision input into a validated recommendation via an
// external oracle. No oracle or parse failure ever escapes this
// boundary; the caller always receives a well-formed Recommendation.
type Gateway struct {
	oracle interfaces.Oracle
	system string
}

var _ interfaces.Advisor = (*Gateway)(nil)

func NewGateway(oracle interfaces.Oracle, system string) *Gateway {
	if system == "" {
		system = defaultSystemPrompt
	}
	return &Gateway{oracle: oracle, system: system}
}

func (g *Gateway) Recommend(ctx context.Context, input types.DecisionInput) types.Recommendation {
	ctx, span := trace.StartSpan(ctx, "advisor.Recommend")
	defer span.End()

	raw, err := g.oracle.Complete(ctx, g.system, BuildPrompt(input))
	if err != nil {
		logger.ErrorWithErr(ctx, "Oracle call failed", err)
		return types.SafeDefault("oracle error: " + err.Error())
	}

	rec := ParseRecommendation(raw)
	if rec.Action == types.ActionNone && rec.Confidence == 0 {
		logger.Debug(ctx, "Oracle output collapsed to safe default", "reason", rec.Reason)
	}
	return rec
}
