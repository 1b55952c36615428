package executor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"defi-position-manager/internal/interfaces"
	"defi-position-manager/internal/logger"
	"defi-position-manager/internal/trace"
	"defi-position-manager/internal/types"
)

// ErrUnsafeAction is returned when the health-factor guard rejects a
// withdraw or borrow that would push the position below the configured
// minimum.
var ErrUnsafeAction = errors.New("action would leave position unsafe")

// ExecutionError wraps any failure while carrying out a recommendation,
// tagged with the action that failed.
type ExecutionError struct {
	Action types.Action
	Cause  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute %s: %v", e.Action, e.Cause)
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

// Asset describes a token the executor knows how to move: its on-chain
// address, its ERC-20 decimals, and the price pair used to value it when
// projecting health factors.
type Asset struct {
	Address  common.Address
	Decimals int32
	Pair     string
}

// Executor dispatches validated recommendations to the lending protocol,
// running the health-factor guard before any action that lowers health.
type Executor struct {
	protocol  interfaces.Protocol
	prices    interfaces.PriceFeed
	assets    map[string]Asset
	minHealth decimal.Decimal
	dryRun    bool
}

var _ interfaces.Executor = (*Executor)(nil)

func New(protocol interfaces.Protocol, prices interfaces.PriceFeed, assets map[string]Asset, minHealth decimal.Decimal, dryRun bool) *Executor {
	return &Executor{
		protocol:  protocol,
		prices:    prices,
		assets:    assets,
		minHealth: minHealth,
		dryRun:    dryRun,
	}
}

// Execute carries out rec. A none recommendation is a no-op. Guarded
// actions are priced and projected first; anything that would land the
// health factor below the minimum is rejected with ErrUnsafeAction
// before a transaction is built.
func (e *Executor) Execute(ctx context.Context, rec types.Recommendation) (string, error) {
	ctx, span := trace.StartSpan(ctx, "executor.Execute")
	defer span.End()

	if rec.Action == types.ActionNone {
		logger.Debug(ctx, "No action recommended, skipping execution", "reason", rec.Reason)
		return "", nil
	}

	asset, ok := e.assets[rec.Asset]
	if !ok {
		return "", &ExecutionError{Action: rec.Action, Cause: fmt.Errorf("unknown asset %q", rec.Asset)}
	}

	if rec.Action.LowersHealth() {
		if err := e.guard(ctx, rec, asset); err != nil {
			return "", err
		}
	}

	amount := rec.Amount.Shift(asset.Decimals).BigInt()

	if e.dryRun {
		logger.Info(ctx, "Dry run, transaction not submitted",
			"action", string(rec.Action),
			"asset", rec.Asset,
			"amount", rec.Amount.String(),
			"base_units", amount.String(),
		)
		return "", nil
	}

	txID, err := e.dispatch(ctx, rec.Action, asset.Address, amount)
	if err != nil {
		return "", &ExecutionError{Action: rec.Action, Cause: err}
	}

	logger.Execution(ctx, string(rec.Action), rec.Asset, rec.Amount.String(), txID)
	return txID, nil
}

// guard fetches fresh account data and a fresh price, then checks the
// projected health factor the action would leave behind.
func (e *Executor) guard(ctx context.Context, rec types.Recommendation, asset Asset) error {
	data, err := e.protocol.AccountData(ctx)
	if err != nil {
		return &ExecutionError{Action: rec.Action, Cause: fmt.Errorf("account data for guard: %w", err)}
	}

	price, _, err := e.prices.LatestPrice(ctx, asset.Pair)
	if err != nil {
		return &ExecutionError{Action: rec.Action, Cause: fmt.Errorf("price for guard: %w", err)}
	}

	pos := data.Observation(time.Now().Unix())
	value := rec.Amount.Mul(price)

	projected, bounded := projectedHealthFactor(rec.Action, pos, value)
	if bounded && projected.LessThan(e.minHealth) {
		logger.Warn(ctx, "Guard rejected unsafe action",
			"action", string(rec.Action),
			"asset", rec.Asset,
			"amount", rec.Amount.String(),
			"projected_health_factor", projected.StringFixed(4),
			"min_health_factor", e.minHealth.String(),
		)
		return &ExecutionError{Action: rec.Action, Cause: ErrUnsafeAction}
	}

	logger.Debug(ctx, "Guard passed",
		"action", string(rec.Action),
		"projected_health_factor", projected.StringFixed(4),
	)
	return nil
}

// projectedHealthFactor estimates the health factor after applying the
// action, with value already converted to the account-data base
// currency. The second return is false when the projection is unbounded
// (no outstanding debt after the action), which is always safe.
func projectedHealthFactor(action types.Action, pos types.PositionObservation, value decimal.Decimal) (decimal.Decimal, bool) {
	switch action {
	case types.ActionWithdrawCollateral:
		if pos.TotalDebt.IsZero() {
			return decimal.Zero, false
		}
		collateral := pos.TotalCollateral.Sub(value)
		return collateral.Mul(pos.LiquidationThreshold).Div(pos.TotalDebt), true
	case types.ActionBorrowMore:
		debt := pos.TotalDebt.Add(value)
		if debt.IsZero() {
			return decimal.Zero, false
		}
		return pos.TotalCollateral.Mul(pos.LiquidationThreshold).Div(debt), true
	}
	return decimal.Zero, false
}

func (e *Executor) dispatch(ctx context.Context, action types.Action, asset common.Address, amount *big.Int) (string, error) {
	switch action {
	case types.ActionAddCollateral:
		return e.protocol.Deposit(ctx, asset, amount)
	case types.ActionRepayDebt:
		return e.protocol.Repay(ctx, asset, amount, big.NewInt(types.VariableRateMode))
	case types.ActionWithdrawCollateral:
		return e.protocol.Withdraw(ctx, asset, amount)
	case types.ActionBorrowMore:
		return e.protocol.Borrow(ctx, asset, amount, big.NewInt(types.VariableRateMode))
	}
	return "", fmt.Errorf("unsupported action %q", action)
}
