package types

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Protocol conventions for Aave-style account data: amounts carry 18
// decimals, ratios are expressed in basis points.
const (
	BaseCurrencyDecimals = 18
	RatioDecimals        = 4
)

// VariableRateMode is the Aave interest rate mode used for every borrow
// and repay dispatched by the executor.
const VariableRateMode int64 = 2

// PriceObservation is a single price point for a trading pair. Immutable
// once recorded.
type PriceObservation struct {
	Pair      string
	Timestamp int64
	Price     decimal.Decimal
}

// PositionObservation is a normalized snapshot of the lending position.
// Ratios are in the 0..1 range, amounts in protocol base currency units.
type PositionObservation struct {
	Timestamp            int64
	TotalCollateral      decimal.Decimal
	TotalDebt            decimal.Decimal
	AvailableBorrow      decimal.Decimal
	LiquidationThreshold decimal.Decimal
	LoanToValue          decimal.Decimal
	HealthFactor         decimal.Decimal
}

// AccountData is the raw getUserAccountData tuple as returned by the
// lending pool, still in protocol fixed-point convention.
type AccountData struct {
	TotalCollateral      *big.Int
	TotalDebt            *big.Int
	AvailableBorrow      *big.Int
	LiquidationThreshold *big.Int
	LTV                  *big.Int
	HealthFactor         *big.Int
}

// Observation converts raw account data into a normalized
// PositionObservation stamped with ts.
func (a AccountData) Observation(ts int64) PositionObservation {
	return PositionObservation{
		Timestamp:            ts,
		TotalCollateral:      decimal.NewFromBigInt(a.TotalCollateral, -BaseCurrencyDecimals),
		TotalDebt:            decimal.NewFromBigInt(a.TotalDebt, -BaseCurrencyDecimals),
		AvailableBorrow:      decimal.NewFromBigInt(a.AvailableBorrow, -BaseCurrencyDecimals),
		LiquidationThreshold: decimal.NewFromBigInt(a.LiquidationThreshold, -RatioDecimals),
		LoanToValue:          decimal.NewFromBigInt(a.LTV, -RatioDecimals),
		HealthFactor:         decimal.NewFromBigInt(a.HealthFactor, -BaseCurrencyDecimals),
	}
}

// Thresholds are the configured safety parameters handed to the decision
// oracle and enforced by the executor guard.
type Thresholds struct {
	LiquidationBuffer decimal.Decimal
	MinHealthFactor   decimal.Decimal
}

// DecisionInput is the aggregate snapshot assembled fresh for each tick.
// Pairs without enough history are simply absent from PriceChanges and
// Volatility.
type DecisionInput struct {
	Timestamp    int64
	Prices       map[string]decimal.Decimal
	PriceChanges map[string]decimal.Decimal
	Volatility   map[string]decimal.Decimal
	Position     PositionObservation
	Thresholds   Thresholds
}

// Action is one of the five corrective actions the decision oracle may
// recommend.
type Action string

const (
	ActionNone               Action = "none"
	ActionAddCollateral      Action = "add_collateral"
	ActionRepayDebt          Action = "repay_debt"
	ActionWithdrawCollateral Action = "withdraw_collateral"
	ActionBorrowMore         Action = "borrow_more"
)

// Valid reports whether a is one of the enumerated actions.
func (a Action) Valid() bool {
	switch a {
	case ActionNone, ActionAddCollateral, ActionRepayDebt, ActionWithdrawCollateral, ActionBorrowMore:
		return true
	}
	return false
}

// RequiresFunds reports whether the action must carry an asset and amount.
func (a Action) RequiresFunds() bool {
	return a.Valid() && a != ActionNone
}

// LowersHealth reports whether the action can decrease the health factor
// and therefore needs the pre-submission guard.
func (a Action) LowersHealth() bool {
	return a == ActionWithdrawCollateral || a == ActionBorrowMore
}

// Recommendation is a fully validated oracle decision. Asset and Amount
// are only meaningful when Action requires funds.
type Recommendation struct {
	Action     Action
	Asset      string
	Amount     decimal.Decimal
	Reason     string
	Confidence int
}

// SafeDefault is the canonical no-op recommendation used whenever oracle
// output cannot be trusted.
func SafeDefault(reason string) Recommendation {
	return Recommendation{Action: ActionNone, Reason: reason, Confidence: 0}
}
