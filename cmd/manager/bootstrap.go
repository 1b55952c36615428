package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"defi-position-manager/internal/aave"
	"defi-position-manager/internal/aave/protocolobs"
	"defi-position-manager/internal/advisor"
	"defi-position-manager/internal/advisor/advisorobs"
	"defi-position-manager/internal/advisor/claude"
	"defi-position-manager/internal/advisor/noop"
	"defi-position-manager/internal/advisor/openai"
	"defi-position-manager/internal/auditlog"
	"defi-position-manager/internal/chainlink"
	"defi-position-manager/internal/executor"
	"defi-position-manager/internal/interfaces"
	"defi-position-manager/internal/logger"
	"defi-position-manager/internal/monitor"
	"defi-position-manager/internal/signals"
	"defi-position-manager/internal/snapshot"
	"defi-position-manager/internal/store"
	"defi-position-manager/internal/trace"
	"defi-position-manager/internal/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// initializeSystem loads environment variables and initializes logger
// and tracer. A tracer failure is reported but not fatal.
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

func loadConfig(ctx context.Context, path string) (*store.Config, error) {
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	return cfg, nil
}

// compressOldLogs compresses old audit files if retention is configured
func compressOldLogs(ctx context.Context) {
	if v := os.Getenv("MANAGER_LOG_RETENTION_DAYS"); v != "" {
		var n int
		fmt.Sscanf(v, "%d", &n)
		if err := auditlog.CompressOlder(n); err != nil {
			logger.Warn(ctx, "Failed to compress old audit logs", "error", err)
		}
	}
}

// initializeProtocol dials the RPC endpoint and builds the lending-pool
// client with observability. LIVE mode requires a signing key.
func initializeProtocol(ctx context.Context, cfg *store.Config) (interfaces.Protocol, *ethclient.Client, error) {
	rpcURL := os.Getenv(cfg.Network.RPCURLEnv)
	if rpcURL == "" {
		return nil, nil, fmt.Errorf("%s not set", cfg.Network.RPCURLEnv)
	}

	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rpc: %w", err)
	}

	wallet := os.Getenv("WALLET_ADDRESS")
	if wallet == "" {
		return nil, nil, errors.New("WALLET_ADDRESS not set")
	}

	privateKey := os.Getenv("WALLET_PRIVATE_KEY")
	if !cfg.DryRun() && privateKey == "" {
		return nil, nil, errors.New("LIVE mode requires WALLET_PRIVATE_KEY")
	}

	client, err := aave.New(eth, aave.Params{
		LendingPool: cfg.Aave.LendingPool,
		Wallet:      wallet,
		PrivateKey:  privateKey,
		ChainID:     cfg.Network.ChainID,
	})
	if err != nil {
		return nil, nil, err
	}

	if cfg.DryRun() {
		logger.Warn(ctx, "Running in DRY_RUN mode - transactions will be simulated")
	}

	if safe, err := client.IsPositionSafe(ctx, cfg.MinHealthFactor()); err != nil {
		logger.Warn(ctx, "Could not check position safety at startup", "error", err.Error())
	} else if !safe {
		logger.Warn(ctx, "Position already below minimum health factor at startup",
			"min_health_factor", cfg.MinHealthFactor().String())
	}

	return protocolobs.Wrap(client), eth, nil
}

// initializeAdvisor picks the configured oracle provider and wraps the
// gateway with observability.
func initializeAdvisor(ctx context.Context, cfg *store.Config) interfaces.Advisor {
	var oracle interfaces.Oracle
	switch cfg.LLM.Provider {
	case "OPENAI":
		oracle = openai.New(cfg)
	case "CLAUDE":
		oracle = claude.New(cfg)
	default:
		oracle = noop.New()
		logger.Warn(ctx, "No LLM provider configured - using noop oracle (never acts)")
	}
	return advisorobs.Wrap(advisor.NewGateway(oracle, cfg.LLM.System))
}

func executorAssets(cfg *store.Config) map[string]executor.Asset {
	assets := make(map[string]executor.Asset, len(cfg.Assets))
	for symbol, a := range cfg.Assets {
		assets[symbol] = executor.Asset{
			Address:  common.HexToAddress(a.Address),
			Decimals: a.Decimals,
			Pair:     a.Pair,
		}
	}
	return assets
}

// buildLoop wires the whole monitor: protocol and price clients, the
// snapshot stores, the signal aggregator, the advisor gateway and the
// guarded executor.
func buildLoop(ctx context.Context, cfg *store.Config) (*monitor.Loop, error) {
	protocol, eth, err := initializeProtocol(ctx, cfg)
	if err != nil {
		return nil, err
	}

	prices, err := chainlink.New(eth, cfg.PriceFeeds, cfg.MaxFeedAge())
	if err != nil {
		return nil, err
	}

	thresholds := types.Thresholds{
		LiquidationBuffer: cfg.LiquidationBuffer(),
		MinHealthFactor:   cfg.MinHealthFactor(),
	}

	market := snapshot.NewMarketStore(cfg.HistoryLimit)
	position := snapshot.NewPositionStore(cfg.HistoryLimit)
	aggregator := signals.New(protocol, prices, market, position, thresholds)

	adv := initializeAdvisor(ctx, cfg)
	exec := executor.New(protocol, prices, executorAssets(cfg), cfg.MinHealthFactor(), cfg.DryRun())

	logStartupPosition(ctx, protocol, cfg)

	return monitor.New(aggregator, adv, exec, cfg.PollInterval()), nil
}

// logStartupPosition logs the current health factor once at startup so a
// restart is observable even before the first tick.
func logStartupPosition(ctx context.Context, protocol interfaces.Protocol, cfg *store.Config) {
	data, err := protocol.AccountData(ctx)
	if err != nil {
		logger.Warn(ctx, "Could not read position at startup", "error", err.Error())
		return
	}
	obs := data.Observation(0)
	logger.Info(ctx, "Current position",
		"total_collateral", obs.TotalCollateral.String(),
		"total_debt", obs.TotalDebt.String(),
		"health_factor", obs.HealthFactor.String(),
		"min_health_factor", cfg.MinHealthFactor().String(),
	)
}
