package interfaces

import (
	"context"

	"defi-position-manager/internal/types"
)

// Executor maps a validated recommendation to at most one protocol
// operation. The returned transaction hash is empty for no-ops and
// dry runs.
type Executor interface {
	Execute(ctx context.Context, rec types.Recommendation) (string, error)
}
