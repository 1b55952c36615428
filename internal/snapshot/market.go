package snapshot

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"defi-position-manager/internal/types"
)

var (
	// ErrInsufficientData means a derived signal needs more history.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrInvalidSignal means the signal math is degenerate (zero mean,
	// zero previous price). NaN and Inf never escape the store.
	ErrInvalidSignal = errors.New("invalid signal")
	// ErrNoData means the store was queried before any observation.
	ErrNoData = errors.New("no data")
)

// volatilityWindow is the number of most recent observations the
// coefficient of variation is computed over.
const volatilityWindow = 10

var hundred = decimal.NewFromInt(100)

// MarketStore keeps a bounded rolling price history per trading pair and
// derives price-change and volatility signals from it.
type MarketStore struct {
	bound int
	pairs map[string]*History[types.PriceObservation]
}

func NewMarketStore(bound int) *MarketStore {
	return &MarketStore{bound: bound, pairs: map[string]*History[types.PriceObservation]{}}
}

// Record appends a price observation for pair, evicting the oldest one
// beyond the configured bound.
func (s *MarketStore) Record(pair string, ts int64, price decimal.Decimal) {
	h := s.pairs[pair]
	if h == nil {
		h = NewHistory[types.PriceObservation](s.bound)
		s.pairs[pair] = h
	}
	h.Append(types.PriceObservation{Pair: pair, Timestamp: ts, Price: price})
}

// PriceChange returns the percentage change between the two most recent
// observations of pair.
func (s *MarketStore) PriceChange(pair string) (decimal.Decimal, error) {
	h := s.pairs[pair]
	if h == nil || h.Len() < 2 {
		return decimal.Zero, fmt.Errorf("price change %s: %w", pair, ErrInsufficientData)
	}
	last := h.Last(2)
	previous, latest := last[0].Price, last[1].Price
	if previous.IsZero() {
		return decimal.Zero, fmt.Errorf("price change %s: zero previous price: %w", pair, ErrInvalidSignal)
	}
	return latest.Sub(previous).Div(previous).Mul(hundred), nil
}

// Volatility returns the coefficient of variation (population standard
// deviation over mean, as a percentage) across the last ten observations
// of pair.
func (s *MarketStore) Volatility(pair string) (decimal.Decimal, error) {
	h := s.pairs[pair]
	if h == nil || h.Len() < volatilityWindow {
		return decimal.Zero, fmt.Errorf("volatility %s: %w", pair, ErrInsufficientData)
	}

	window := h.Last(volatilityWindow)
	var sum float64
	for _, obs := range window {
		sum += obs.Price.InexactFloat64()
	}
	mean := sum / float64(len(window))
	if mean == 0 {
		return decimal.Zero, fmt.Errorf("volatility %s: zero mean: %w", pair, ErrInvalidSignal)
	}

	var variance float64
	for _, obs := range window {
		d := obs.Price.InexactFloat64() - mean
		variance += d * d
	}
	variance /= float64(len(window))

	cov := math.Sqrt(variance) / mean * 100
	if math.IsNaN(cov) || math.IsInf(cov, 0) {
		return decimal.Zero, fmt.Errorf("volatility %s: degenerate result: %w", pair, ErrInvalidSignal)
	}
	return decimal.NewFromFloat(cov), nil
}

// Pairs returns the pairs with at least one observation, sorted.
func (s *MarketStore) Pairs() []string {
	out := make([]string, 0, len(s.pairs))
	for pair := range s.pairs {
		out = append(out, pair)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of observations held for pair.
func (s *MarketStore) Len(pair string) int {
	if h := s.pairs[pair]; h != nil {
		return h.Len()
	}
	return 0
}

// Snapshot returns a copy of the history for pair.
func (s *MarketStore) Snapshot(pair string) []types.PriceObservation {
	if h := s.pairs[pair]; h != nil {
		return h.Snapshot()
	}
	return nil
}
