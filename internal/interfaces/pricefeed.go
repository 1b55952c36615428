package interfaces

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceFeed is the market price client. AllPrices silently omits pairs
// that individually fail; the failures are logged, never propagated.
type PriceFeed interface {
	LatestPrice(ctx context.Context, pair string) (decimal.Decimal, time.Time, error)
	AllPrices(ctx context.Context) map[string]decimal.Decimal
	Pairs() []string
}
