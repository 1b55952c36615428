package signals

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"defi-position-manager/internal/interfaces"
	"defi-position-manager/internal/logger"
	"defi-position-manager/internal/snapshot"
	"defi-position-manager/internal/trace"
	"defi-position-manager/internal/types"
)

// Aggregator composes the two snapshot stores plus live protocol and
// price queries into a single decision input per tick.
type Aggregator struct {
	protocol   interfaces.Protocol
	prices     interfaces.PriceFeed
	market     *snapshot.MarketStore
	position   *snapshot.PositionStore
	thresholds types.Thresholds
	now        func() time.Time
}

func New(protocol interfaces.Protocol, prices interfaces.PriceFeed, market *snapshot.MarketStore, position *snapshot.PositionStore, thresholds types.Thresholds) *Aggregator {
	return &Aggregator{
		protocol:   protocol,
		prices:     prices,
		market:     market,
		position:   position,
		thresholds: thresholds,
		now:        time.Now,
	}
}

// BuildInput fetches account data and all pair prices, records both into
// the stores and derives the per-pair signals. Every external query
// happens before the first record, so a failed fetch leaves both
// histories untouched.
func (a *Aggregator) BuildInput(ctx context.Context) (types.DecisionInput, error) {
	ctx, span := trace.StartSpan(ctx, "signals.BuildInput")
	defer span.End()

	acct, err := a.protocol.AccountData(ctx)
	if err != nil {
		return types.DecisionInput{}, fmt.Errorf("account data: %w", err)
	}
	prices := a.prices.AllPrices(ctx)

	ts := a.now().Unix()
	obs := acct.Observation(ts)
	a.position.Record(obs)
	for pair, price := range prices {
		a.market.Record(pair, ts, price)
	}

	input := types.DecisionInput{
		Timestamp:    ts,
		Prices:       prices,
		PriceChanges: map[string]decimal.Decimal{},
		Volatility:   map[string]decimal.Decimal{},
		Position:     obs,
		Thresholds:   a.thresholds,
	}

	// Pairs without enough history are omitted, not an error.
	for pair := range prices {
		if change, err := a.market.PriceChange(pair); err == nil {
			input.PriceChanges[pair] = change
		} else {
			logger.Debug(ctx, "Price change unavailable", "pair", pair, "error", err)
		}
		if vol, err := a.market.Volatility(pair); err == nil {
			input.Volatility[pair] = vol
		} else {
			logger.Debug(ctx, "Volatility unavailable", "pair", pair, "error", err)
		}
	}

	return input, nil
}
