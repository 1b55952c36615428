package interfaces

import (
	"context"

	"defi-position-manager/internal/types"
)

// Advisor turns a decision input into a validated recommendation. It
// never fails: malformed or unreachable oracle output collapses to the
// safe no-op recommendation.
type Advisor interface {
	Recommend(ctx context.Context, input types.DecisionInput) types.Recommendation
}
