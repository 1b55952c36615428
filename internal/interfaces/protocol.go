package interfaces

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"defi-position-manager/internal/types"
)

// Protocol is the lending-protocol client. Amounts are in the asset's
// base units; state-changing calls return the transaction hash.
type Protocol interface {
	AccountData(ctx context.Context) (types.AccountData, error)
	Deposit(ctx context.Context, asset common.Address, amount *big.Int) (string, error)
	Withdraw(ctx context.Context, asset common.Address, amount *big.Int) (string, error)
	Borrow(ctx context.Context, asset common.Address, amount *big.Int, rateMode *big.Int) (string, error)
	Repay(ctx context.Context, asset common.Address, amount *big.Int, rateMode *big.Int) (string, error)
}
