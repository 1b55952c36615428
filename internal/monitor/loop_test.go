package monitor

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"defi-position-manager/internal/executor"
	"defi-position-manager/internal/signals"
	"defi-position-manager/internal/snapshot"
	"defi-position-manager/internal/types"
)

func wei(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

type stubProtocol struct {
	data    types.AccountData
	dataErr error
}

func (s *stubProtocol) AccountData(ctx context.Context) (types.AccountData, error) {
	return s.data, s.dataErr
}

func (s *stubProtocol) Deposit(ctx context.Context, asset common.Address, amount *big.Int) (string, error) {
	return "", nil
}

func (s *stubProtocol) Withdraw(ctx context.Context, asset common.Address, amount *big.Int) (string, error) {
	return "", nil
}

func (s *stubProtocol) Borrow(ctx context.Context, asset common.Address, amount, rateMode *big.Int) (string, error) {
	return "", nil
}

func (s *stubProtocol) Repay(ctx context.Context, asset common.Address, amount, rateMode *big.Int) (string, error) {
	return "", nil
}

type stubPrices struct {
	prices map[string]decimal.Decimal
}

func (s *stubPrices) LatestPrice(ctx context.Context, pair string) (decimal.Decimal, time.Time, error) {
	return s.prices[pair], time.Now(), nil
}

func (s *stubPrices) AllPrices(ctx context.Context) map[string]decimal.Decimal { return s.prices }

func (s *stubPrices) Pairs() []string { return nil }

type stubAdvisor struct {
	rec   types.Recommendation
	calls int
}

func (s *stubAdvisor) Recommend(ctx context.Context, input types.DecisionInput) types.Recommendation {
	s.calls++
	return s.rec
}

type stubExecutor struct {
	txID  string
	err   error
	calls int
}

func (s *stubExecutor) Execute(ctx context.Context, rec types.Recommendation) (string, error) {
	s.calls++
	return s.txID, s.err
}

func healthyAccountData() types.AccountData {
	return types.AccountData{
		TotalCollateral:      wei(10),
		TotalDebt:            wei(4),
		AvailableBorrow:      wei(3),
		LiquidationThreshold: big.NewInt(8000),
		LTV:                  big.NewInt(7500),
		HealthFactor:         wei(2),
	}
}

func testThresholds() types.Thresholds {
	return types.Thresholds{
		LiquidationBuffer: decimal.NewFromFloat(0.05),
		MinHealthFactor:   decimal.NewFromFloat(1.5),
	}
}

func newTestLoop(t *testing.T, protocol *stubProtocol, advisor *stubAdvisor, exec *stubExecutor) *Loop {
	t.Helper()
	t.Setenv("MANAGER_LOG_DIR", t.TempDir())
	prices := &stubPrices{prices: map[string]decimal.Decimal{"ETH/USD": decimal.NewFromInt(2000)}}
	agg := signals.New(protocol, prices, snapshot.NewMarketStore(10), snapshot.NewPositionStore(10), testThresholds())
	return New(agg, advisor, exec, time.Minute)
}

func TestTickNoActionSkipsExecutor(t *testing.T) {
	advisor := &stubAdvisor{rec: types.SafeDefault("position healthy")}
	exec := &stubExecutor{}
	loop := newTestLoop(t, &stubProtocol{data: healthyAccountData()}, advisor, exec)

	if err := loop.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if advisor.calls != 1 {
		t.Errorf("expected one advisor call, got %d", advisor.calls)
	}
	if exec.calls != 0 {
		t.Errorf("expected executor never called for none, got %d", exec.calls)
	}
	if loop.State() != StateSleeping {
		t.Errorf("expected sleeping after tick, got %s", loop.State())
	}
}

func TestTickExecutesRecommendation(t *testing.T) {
	advisor := &stubAdvisor{rec: types.Recommendation{
		Action: types.ActionRepayDebt,
		Asset:  "USDC",
		Amount: decimal.NewFromInt(50),
		Reason: "reduce debt",
	}}
	exec := &stubExecutor{txID: "0xabc"}
	loop := newTestLoop(t, &stubProtocol{data: healthyAccountData()}, advisor, exec)

	if err := loop.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exec.calls != 1 {
		t.Errorf("expected one execution, got %d", exec.calls)
	}
}

func TestTickAggregationFailureIsIsolated(t *testing.T) {
	advisor := &stubAdvisor{rec: types.SafeDefault("unused")}
	exec := &stubExecutor{}
	loop := newTestLoop(t, &stubProtocol{dataErr: errors.New("rpc down")}, advisor, exec)

	if err := loop.Tick(context.Background()); err == nil {
		t.Fatal("expected tick error when aggregation fails")
	}
	if advisor.calls != 0 {
		t.Errorf("expected advisor skipped, got %d calls", advisor.calls)
	}
	if loop.State() != StateSleeping {
		t.Errorf("expected sleeping after failed tick, got %s", loop.State())
	}

	// The next tick proceeds from clean state.
	loop.aggregator = signals.New(&stubProtocol{data: healthyAccountData()},
		&stubPrices{prices: map[string]decimal.Decimal{"ETH/USD": decimal.NewFromInt(2000)}},
		snapshot.NewMarketStore(10), snapshot.NewPositionStore(10), testThresholds())
	if err := loop.Tick(context.Background()); err != nil {
		t.Fatalf("expected recovery on next tick, got %v", err)
	}
}

func TestTickGuardRejectionNotAnError(t *testing.T) {
	advisor := &stubAdvisor{rec: types.Recommendation{
		Action: types.ActionWithdrawCollateral,
		Asset:  "ETH",
		Amount: decimal.NewFromInt(5),
	}}
	exec := &stubExecutor{err: &executor.ExecutionError{
		Action: types.ActionWithdrawCollateral,
		Cause:  executor.ErrUnsafeAction,
	}}
	loop := newTestLoop(t, &stubProtocol{data: healthyAccountData()}, advisor, exec)

	if err := loop.Tick(context.Background()); err != nil {
		t.Fatalf("guard rejection should not surface as tick error, got %v", err)
	}
	if loop.State() != StateSleeping {
		t.Errorf("expected sleeping, got %s", loop.State())
	}
}

func TestTickExecutionFailureSurfaces(t *testing.T) {
	advisor := &stubAdvisor{rec: types.Recommendation{
		Action: types.ActionRepayDebt,
		Asset:  "USDC",
		Amount: decimal.NewFromInt(10),
	}}
	exec := &stubExecutor{err: errors.New("nonce too low")}
	loop := newTestLoop(t, &stubProtocol{data: healthyAccountData()}, advisor, exec)

	if err := loop.Tick(context.Background()); err == nil {
		t.Fatal("expected execution failure to surface")
	}
}

// blockingProtocol stalls until the tick context expires, the way a
// hung RPC node would.
type blockingProtocol struct {
	stubProtocol
}

func (b *blockingProtocol) AccountData(ctx context.Context) (types.AccountData, error) {
	<-ctx.Done()
	return types.AccountData{}, ctx.Err()
}

func TestRunTickBoundedWhenProtocolHangs(t *testing.T) {
	advisor := &stubAdvisor{rec: types.SafeDefault("unused")}
	loop := newTestLoop(t, &stubProtocol{data: healthyAccountData()}, advisor, &stubExecutor{})
	loop.interval = 50 * time.Millisecond
	loop.aggregator = signals.New(&blockingProtocol{},
		&stubPrices{prices: map[string]decimal.Decimal{"ETH/USD": decimal.NewFromInt(2000)}},
		snapshot.NewMarketStore(10), snapshot.NewPositionStore(10), testThresholds())

	done := make(chan struct{})
	go func() {
		loop.runTick(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tick did not time out against a hung protocol client")
	}
	if advisor.calls != 0 {
		t.Errorf("expected advisor skipped on timed-out tick, got %d calls", advisor.calls)
	}
}

func TestTickErrorCarriesAggregatingState(t *testing.T) {
	loop := newTestLoop(t, &stubProtocol{dataErr: errors.New("rpc down")},
		&stubAdvisor{rec: types.SafeDefault("unused")}, &stubExecutor{})

	err := loop.Tick(context.Background())
	if err == nil {
		t.Fatal("expected tick error when aggregation fails")
	}
	var te *tickError
	if !errors.As(err, &te) {
		t.Fatalf("expected tick error to carry its state, got %T", err)
	}
	if te.State != StateAggregating {
		t.Errorf("expected failing state %s, got %s", StateAggregating, te.State)
	}
	if loop.State() != StateSleeping {
		t.Errorf("expected loop parked in sleeping, got %s", loop.State())
	}
}

func TestTickErrorCarriesExecutingState(t *testing.T) {
	advisor := &stubAdvisor{rec: types.Recommendation{
		Action: types.ActionRepayDebt,
		Asset:  "USDC",
		Amount: decimal.NewFromInt(10),
	}}
	exec := &stubExecutor{err: errors.New("nonce too low")}
	loop := newTestLoop(t, &stubProtocol{data: healthyAccountData()}, advisor, exec)

	err := loop.Tick(context.Background())
	if err == nil {
		t.Fatal("expected execution failure to surface")
	}
	var te *tickError
	if !errors.As(err, &te) {
		t.Fatalf("expected tick error to carry its state, got %T", err)
	}
	if te.State != StateExecuting {
		t.Errorf("expected failing state %s, got %s", StateExecuting, te.State)
	}
}

func TestTickWritesDecisionAudit(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MANAGER_LOG_DIR", dir)
	prices := &stubPrices{prices: map[string]decimal.Decimal{"ETH/USD": decimal.NewFromInt(2000)}}
	agg := signals.New(&stubProtocol{data: healthyAccountData()}, prices,
		snapshot.NewMarketStore(10), snapshot.NewPositionStore(10), testThresholds())
	loop := New(agg, &stubAdvisor{rec: types.SafeDefault("healthy")}, &stubExecutor{}, time.Minute)

	if err := loop.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "decisions"))
	if err != nil || len(entries) == 0 {
		t.Fatalf("expected a decisions audit file, err=%v", err)
	}
}

func TestStateTransitions(t *testing.T) {
	cases := []struct {
		from, to State
		ok       bool
	}{
		{StateIdle, StateAggregating, true},
		{StateAggregating, StateDeciding, true},
		{StateAggregating, StateSleeping, true},
		{StateDeciding, StateExecuting, true},
		{StateDeciding, StateSleeping, true},
		{StateExecuting, StateSleeping, true},
		{StateSleeping, StateAggregating, true},
		{StateIdle, StateExecuting, false},
		{StateSleeping, StateExecuting, false},
		{StateExecuting, StateDeciding, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.ok {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.ok)
		}
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	advisor := &stubAdvisor{rec: types.SafeDefault("healthy")}
	loop := newTestLoop(t, &stubProtocol{data: healthyAccountData()}, advisor, &stubExecutor{})
	loop.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop after context cancel")
	}
	if advisor.calls < 2 {
		t.Errorf("expected multiple ticks before cancel, got %d", advisor.calls)
	}
}
