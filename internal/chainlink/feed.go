package chainlink

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"defi-position-manager/internal/logger"
	"defi-position-manager/internal/store"
	"defi-position-manager/internal/trace"
	"defi-position-manager/pkg/retry"
)

// ErrUnknownPair is returned when a pair has no configured aggregator.
var ErrUnknownPair = errors.New("price feed not configured")

const aggregatorABI = `[{"inputs":[],"name":"latestRoundData","outputs":[{"internalType":"uint80","name":"roundId","type":"uint80"},{"internalType":"int256","name":"answer","type":"int256"},{"internalType":"uint256","name":"startedAt","type":"uint256"},{"internalType":"uint256","name":"updatedAt","type":"uint256"},{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"}]`

type feed struct {
	contract *bind.BoundContract
	decimals int32
}

// Client reads Chainlink aggregator contracts for the configured pairs.
type Client struct {
	feeds    map[string]feed
	maxAge   time.Duration
	attempts int
}

func New(eth *ethclient.Client, feeds map[string]store.FeedConfig, maxAge time.Duration) (*Client, error) {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABI))
	if err != nil {
		return nil, fmt.Errorf("chainlink: parse aggregator abi: %w", err)
	}

	c := &Client{feeds: map[string]feed{}, maxAge: maxAge, attempts: retry.DefaultAttempts}
	for pair, cfg := range feeds {
		if cfg.Address == "" {
			continue
		}
		if !common.IsHexAddress(cfg.Address) {
			return nil, fmt.Errorf("chainlink: invalid aggregator address for %s: %s", pair, cfg.Address)
		}
		c.feeds[pair] = feed{
			contract: bind.NewBoundContract(common.HexToAddress(cfg.Address), parsed, eth, eth, eth),
			decimals: cfg.Decimals,
		}
	}
	return c, nil
}

// LatestPrice returns the latest price for pair and the timestamp of the
// round it came from. Fails with ErrUnknownPair for unconfigured pairs.
func (c *Client) LatestPrice(ctx context.Context, pair string) (decimal.Decimal, time.Time, error) {
	ctx, span := trace.StartSpan(ctx, "chainlink.LatestPrice")
	defer span.End()

	f, ok := c.feeds[pair]
	if !ok {
		return decimal.Zero, time.Time{}, fmt.Errorf("%s: %w", pair, ErrUnknownPair)
	}

	var out []interface{}
	err := retry.Do(ctx, c.attempts, func() error {
		out = out[:0]
		return f.contract.Call(&bind.CallOpts{Context: ctx}, &out, "latestRoundData")
	})
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("latestRoundData %s: %w", pair, err)
	}
	if len(out) != 5 {
		return decimal.Zero, time.Time{}, fmt.Errorf("latestRoundData %s: unexpected output arity %d", pair, len(out))
	}

	answer := out[1].(*big.Int)
	updatedAt := time.Unix(out[3].(*big.Int).Int64(), 0)

	if c.maxAge > 0 && time.Since(updatedAt) > c.maxAge {
		logger.Warn(ctx, "Stale price feed", "pair", pair, "updated_at", updatedAt, "max_age", c.maxAge)
	}

	return scaleAnswer(answer, f.decimals), updatedAt, nil
}

// AllPrices returns the latest price for every configured pair, omitting
// pairs that individually fail. Failures are logged, never propagated.
func (c *Client) AllPrices(ctx context.Context) map[string]decimal.Decimal {
	ctx, span := trace.StartSpan(ctx, "chainlink.AllPrices")
	defer span.End()

	prices := make(map[string]decimal.Decimal, len(c.feeds))
	for _, pair := range c.Pairs() {
		price, _, err := c.LatestPrice(ctx, pair)
		if err != nil {
			logger.Warn(ctx, "Skipping pair after price fetch failure", "pair", pair, "error", err)
			continue
		}
		prices[pair] = price
	}
	return prices
}

// Pairs returns the configured pairs, sorted.
func (c *Client) Pairs() []string {
	out := make([]string, 0, len(c.feeds))
	for pair := range c.feeds {
		out = append(out, pair)
	}
	sort.Strings(out)
	return out
}

// scaleAnswer converts a raw aggregator answer into a decimal price
// using the feed's decimals (8 for the standard USD feeds).
func scaleAnswer(answer *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(answer, -decimals)
}
