package protocolobs

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"defi-position-manager/internal/interfaces"
	"defi-position-manager/internal/logger"
	"defi-position-manager/internal/trace"
	"defi-position-manager/internal/types"
)

// observableProtocol wraps a Protocol with observability (logging & tracing)
type observableProtocol struct {
	protocol interfaces.Protocol
}

var _ interfaces.Protocol = (*observableProtocol)(nil)

// Wrap wraps a protocol client with observability middleware
func Wrap(protocol interfaces.Protocol) interfaces.Protocol {
	return &observableProtocol{protocol: protocol}
}

func (op *observableProtocol) AccountData(ctx context.Context) (types.AccountData, error) {
	ctx, span := trace.StartSpan(ctx, "protocol.AccountData")
	defer span.End()

	start := time.Now()
	acct, err := op.protocol.AccountData(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Account data query failed", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return types.AccountData{}, err
	}

	logger.DebugSkip(ctx, 1, "Account data fetched",
		"health_factor", acct.HealthFactor,
		"total_collateral", acct.TotalCollateral,
		"total_debt", acct.TotalDebt,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return acct, nil
}

func (op *observableProtocol) Deposit(ctx context.Context, asset common.Address, amount *big.Int) (string, error) {
	return op.observeTx(ctx, "deposit", asset, amount, func(ctx context.Context) (string, error) {
		return op.protocol.Deposit(ctx, asset, amount)
	})
}

func (op *observableProtocol) Withdraw(ctx context.Context, asset common.Address, amount *big.Int) (string, error) {
	return op.observeTx(ctx, "withdraw", asset, amount, func(ctx context.Context) (string, error) {
		return op.protocol.Withdraw(ctx, asset, amount)
	})
}

func (op *observableProtocol) Borrow(ctx context.Context, asset common.Address, amount *big.Int, rateMode *big.Int) (string, error) {
	return op.observeTx(ctx, "borrow", asset, amount, func(ctx context.Context) (string, error) {
		return op.protocol.Borrow(ctx, asset, amount, rateMode)
	})
}

func (op *observableProtocol) Repay(ctx context.Context, asset common.Address, amount *big.Int, rateMode *big.Int) (string, error) {
	return op.observeTx(ctx, "repay", asset, amount, func(ctx context.Context) (string, error) {
		return op.protocol.Repay(ctx, asset, amount, rateMode)
	})
}

func (op *observableProtocol) observeTx(ctx context.Context, method string, asset common.Address, amount *big.Int, fn func(context.Context) (string, error)) (string, error) {
	ctx, span := trace.StartSpan(ctx, "protocol."+method)
	defer span.End()

	start := time.Now()
	txID, err := fn(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 2, "Transaction submission failed", err,
			"method", method,
			"asset", asset.Hex(),
			"amount", amount,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return "", err
	}

	logger.InfoSkip(ctx, 2, "Transaction submitted",
		"method", method,
		"asset", asset.Hex(),
		"amount", amount,
		"tx_id", txID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return txID, nil
}
