package aave

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"defi-position-manager/internal/trace"
	"defi-position-manager/internal/types"
	"defi-position-manager/pkg/retry"
)

// txGasLimit is the fixed gas limit used for every pool transaction.
const txGasLimit uint64 = 500000

// Params configures the lending-pool client. PrivateKey may be empty for
// read-only (dry-run) operation; transactions then fail fast.
type Params struct {
	LendingPool string
	Wallet      string
	PrivateKey  string
	ChainID     int64
}

// Client talks to an Aave v2 LendingPool over JSON-RPC.
type Client struct {
	pool     *bind.BoundContract
	wallet   common.Address
	signer   *bind.TransactOpts
	attempts int
}

func New(eth *ethclient.Client, p Params) (*Client, error) {
	if !common.IsHexAddress(p.LendingPool) {
		return nil, fmt.Errorf("aave: invalid lending pool address: %s", p.LendingPool)
	}
	if !common.IsHexAddress(p.Wallet) {
		return nil, fmt.Errorf("aave: invalid wallet address: %s", p.Wallet)
	}

	parsed, err := abi.JSON(strings.NewReader(lendingPoolABI))
	if err != nil {
		return nil, fmt.Errorf("aave: parse lending pool abi: %w", err)
	}

	c := &Client{
		pool:     bind.NewBoundContract(common.HexToAddress(p.LendingPool), parsed, eth, eth, eth),
		wallet:   common.HexToAddress(p.Wallet),
		attempts: retry.DefaultAttempts,
	}

	if p.PrivateKey != "" {
		pk, err := crypto.HexToECDSA(strings.TrimPrefix(p.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("aave: invalid wallet key: %w", err)
		}
		c.signer, err = bind.NewKeyedTransactorWithChainID(pk, big.NewInt(p.ChainID))
		if err != nil {
			return nil, fmt.Errorf("aave: build transactor: %w", err)
		}
	}

	return c, nil
}

// AccountData fetches the raw getUserAccountData tuple for the wallet.
// The view call is retried with backoff.
func (c *Client) AccountData(ctx context.Context) (types.AccountData, error) {
	ctx, span := trace.StartSpan(ctx, "aave.AccountData")
	defer span.End()

	var out []interface{}
	err := retry.Do(ctx, c.attempts, func() error {
		out = out[:0]
		return c.pool.Call(&bind.CallOpts{Context: ctx}, &out, "getUserAccountData", c.wallet)
	})
	if err != nil {
		return types.AccountData{}, fmt.Errorf("getUserAccountData: %w", err)
	}
	if len(out) != 6 {
		return types.AccountData{}, fmt.Errorf("getUserAccountData: unexpected output arity %d", len(out))
	}

	return types.AccountData{
		TotalCollateral:      out[0].(*big.Int),
		TotalDebt:            out[1].(*big.Int),
		AvailableBorrow:      out[2].(*big.Int),
		LiquidationThreshold: out[3].(*big.Int),
		LTV:                  out[4].(*big.Int),
		HealthFactor:         out[5].(*big.Int),
	}, nil
}

// HealthFactor returns the current health factor as a decimal.
func (c *Client) HealthFactor(ctx context.Context) (decimal.Decimal, error) {
	acct, err := c.AccountData(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(acct.HealthFactor, -types.BaseCurrencyDecimals), nil
}

// IsPositionSafe reports whether the health factor is above min.
func (c *Client) IsPositionSafe(ctx context.Context, min decimal.Decimal) (bool, error) {
	hf, err := c.HealthFactor(ctx)
	if err != nil {
		return false, err
	}
	return hf.GreaterThan(min), nil
}

func (c *Client) Deposit(ctx context.Context, asset common.Address, amount *big.Int) (string, error) {
	return c.transact(ctx, "deposit", asset, amount, c.wallet, uint16(0))
}

func (c *Client) Withdraw(ctx context.Context, asset common.Address, amount *big.Int) (string, error) {
	return c.transact(ctx, "withdraw", asset, amount, c.wallet)
}

func (c *Client) Borrow(ctx context.Context, asset common.Address, amount *big.Int, rateMode *big.Int) (string, error) {
	return c.transact(ctx, "borrow", asset, amount, rateMode, uint16(0), c.wallet)
}

func (c *Client) Repay(ctx context.Context, asset common.Address, amount *big.Int, rateMode *big.Int) (string, error) {
	return c.transact(ctx, "repay", asset, amount, rateMode, c.wallet)
}

// transact signs and submits one pool transaction. Never retried: a
// failed submission is surfaced to the caller and a fresh recommendation
// is expected on the next tick.
func (c *Client) transact(ctx context.Context, method string, args ...interface{}) (string, error) {
	ctx, span := trace.StartSpan(ctx, "aave."+method)
	defer span.End()

	if c.signer == nil {
		return "", errors.New("aave: wallet key not configured")
	}

	opts := *c.signer
	opts.Context = ctx
	opts.GasLimit = txGasLimit

	tx, err := c.pool.Transact(&opts, method, args...)
	if err != nil {
		return "", fmt.Errorf("aave %s: %w", method, err)
	}
	return tx.Hash().Hex(), nil
}
