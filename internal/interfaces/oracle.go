package interfaces

import "context"

// Oracle is the raw completion transport behind the recommendation
// gateway. The returned text is untrusted and may embed a JSON object
// anywhere inside free-form prose.
type Oracle interface {
	Complete(ctx context.Context, system, user string) (string, error)
}
