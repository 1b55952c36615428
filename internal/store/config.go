package store

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// AssetConfig describes a protocol asset the executor may act on. Pair
// names the price feed quoting the asset in the protocol base currency.
type AssetConfig struct {
	Address  string `yaml:"address"`
	Decimals int32  `yaml:"decimals"`
	Pair     string `yaml:"pair"`
}

// FeedConfig describes a Chainlink aggregator for one trading pair.
type FeedConfig struct {
	Address  string `yaml:"address"`
	Decimals int32  `yaml:"decimals"`
}

type Config struct {
	Mode         string `yaml:"mode"`
	PollSeconds  int    `yaml:"poll_seconds"`
	HistoryLimit int    `yaml:"history_limit"`

	Thresholds struct {
		LiquidationBuffer float64 `yaml:"liquidation_buffer"`
		MinHealthFactor   float64 `yaml:"min_health_factor"`
	} `yaml:"thresholds"`

	Network struct {
		RPCURLEnv string `yaml:"rpc_url_env"`
		ChainID   int64  `yaml:"chain_id"`
	} `yaml:"network"`

	Aave struct {
		LendingPool string `yaml:"lending_pool"`
	} `yaml:"aave"`

	PriceFeeds        map[string]FeedConfig  `yaml:"price_feeds"`
	Assets            map[string]AssetConfig `yaml:"assets"`
	MaxFeedAgeSeconds int64                  `yaml:"max_feed_age_seconds"`

	LLM struct {
		Provider    string  `yaml:"provider"`
		Model       string  `yaml:"model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float32 `yaml:"temperature"`
		System      string  `yaml:"system"`
	} `yaml:"llm"`
}

// DryRun reports whether transaction dispatch is suppressed.
func (c *Config) DryRun() bool {
	return c.Mode != "LIVE"
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollSeconds) * time.Second
}

func (c *Config) MaxFeedAge() time.Duration {
	return time.Duration(c.MaxFeedAgeSeconds) * time.Second
}

func (c *Config) MinHealthFactor() decimal.Decimal {
	return decimal.NewFromFloat(c.Thresholds.MinHealthFactor)
}

func (c *Config) LiquidationBuffer() decimal.Decimal {
	return decimal.NewFromFloat(c.Thresholds.LiquidationBuffer)
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if c.PollSeconds <= 0 {
		return fmt.Errorf("poll_seconds must be positive, got %d", c.PollSeconds)
	}
	if c.Thresholds.MinHealthFactor <= 0 {
		return fmt.Errorf("thresholds.min_health_factor must be positive, got %.2f", c.Thresholds.MinHealthFactor)
	}
	if c.Thresholds.LiquidationBuffer < 0 || c.Thresholds.LiquidationBuffer >= 1 {
		return fmt.Errorf("thresholds.liquidation_buffer must be in [0, 1), got %.2f", c.Thresholds.LiquidationBuffer)
	}
	if len(c.PriceFeeds) == 0 {
		return fmt.Errorf("price_feeds cannot be empty")
	}
	for symbol, asset := range c.Assets {
		if asset.Decimals <= 0 {
			return fmt.Errorf("asset %s: decimals must be positive, got %d", symbol, asset.Decimals)
		}
		if _, ok := c.PriceFeeds[asset.Pair]; !ok {
			return fmt.Errorf("asset %s: pair %q has no configured price feed", symbol, asset.Pair)
		}
	}
	switch c.LLM.Provider {
	case "", "OPENAI", "CLAUDE", "NOOP":
	default:
		return fmt.Errorf("llm.provider must be 'OPENAI', 'CLAUDE' or 'NOOP', got '%s'", c.LLM.Provider)
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	if c.Mode == "" {
		c.Mode = "DRY_RUN"
	}
	if c.PollSeconds == 0 {
		c.PollSeconds = 300
	}
	if c.HistoryLimit == 0 {
		c.HistoryLimit = 1000
	}
	if c.Thresholds.LiquidationBuffer == 0 {
		c.Thresholds.LiquidationBuffer = 0.05
	}
	if c.Thresholds.MinHealthFactor == 0 {
		c.Thresholds.MinHealthFactor = 1.5
	}
	if c.Network.RPCURLEnv == "" {
		c.Network.RPCURLEnv = "PROVIDER_URL"
	}
	if c.Network.ChainID == 0 {
		c.Network.ChainID = 1
	}
	if c.MaxFeedAgeSeconds == 0 {
		c.MaxFeedAgeSeconds = 3600
	}
	for pair, feed := range c.PriceFeeds {
		if feed.Decimals == 0 {
			feed.Decimals = 8
			c.PriceFeeds[pair] = feed
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}
