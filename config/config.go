package config

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v2"

	mathutil "github.com/metuDein/aaveflashbot/utils/math"
)

// Config holds every setting the bot reads at startup. It is never mutated
// after LoadConfig returns.
type Config struct {
	// Chain and network settings
	RPCEndpoint string `json:"rpc_endpoint" yaml:"rpc_endpoint"`
	Network     string `json:"network" yaml:"network"`
	ChainID     uint64 `json:"chain_id" yaml:"chain_id"`
	ExplorerURL string `json:"explorer_url" yaml:"explorer_url"`

	// Signer and contracts
	PrivateKey             string `json:"-" yaml:"-"`
	FlashArbitrageContract string `json:"flash_arbitrage_contract" yaml:"flash_arbitrage_contract"`
	AavePool               string `json:"aave_pool" yaml:"aave_pool"`
	ReferralCode           uint16 `json:"referral_code" yaml:"referral_code"`

	Tokens TokenConfig `json:"tokens" yaml:"tokens"`
	Venues VenueConfig `json:"venues" yaml:"venues"`

	Gas     GasConfig     `json:"gas" yaml:"gas"`
	Trading TradingConfig `json:"trading" yaml:"trading"`
	Funding FundingConfig `json:"funding" yaml:"funding"`

	// Cycle scheduling and per-step timeouts
	CycleInterval  time.Duration `json:"cycle_interval" yaml:"cycle_interval"`
	QuoteTimeout   time.Duration `json:"quote_timeout" yaml:"quote_timeout"`
	NetworkTimeout time.Duration `json:"network_timeout" yaml:"network_timeout"`
	ConfirmTimeout time.Duration `json:"confirm_timeout" yaml:"confirm_timeout"`

	RPCRateLimit RateLimitConfig `json:"rpc_rate_limit" yaml:"rpc_rate_limit"`
	Notify       NotifyConfig    `json:"notify" yaml:"notify"`

	// Feature flags
	PrometheusEnabled bool   `json:"prometheus_enabled" yaml:"prometheus_enabled"`
	MetricsAddr       string `json:"metrics_addr" yaml:"metrics_addr"`
	LogFile           string `json:"log_file" yaml:"log_file"`
}

// TokenConfig describes the borrowed base asset and the quote asset it is
// swapped through.
type TokenConfig struct {
	Base          string `json:"base" yaml:"base"`
	BaseSymbol    string `json:"base_symbol" yaml:"base_symbol"`
	BaseDecimals  uint8  `json:"base_decimals" yaml:"base_decimals"`
	Quote         string `json:"quote" yaml:"quote"`
	QuoteSymbol   string `json:"quote_symbol" yaml:"quote_symbol"`
	QuoteDecimals uint8  `json:"quote_decimals" yaml:"quote_decimals"`
}

type VenueConfig struct {
	UniswapRouter   string        `json:"uniswap_router" yaml:"uniswap_router"`
	UniswapQuoter   string        `json:"uniswap_quoter" yaml:"uniswap_quoter"`
	UniswapFeeTier  uint32        `json:"uniswap_fee_tier" yaml:"uniswap_fee_tier"`
	SushiswapRouter string        `json:"sushiswap_router" yaml:"sushiswap_router"`
	SwapDeadline    time.Duration `json:"swap_deadline" yaml:"swap_deadline"`
}

// GasConfig drives the fee monitor.
type GasConfig struct {
	TargetGwei   float64       `json:"target_gwei" yaml:"target_gwei"`
	MaxWait      time.Duration `json:"max_wait" yaml:"max_wait"`
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`
	Window       int           `json:"window" yaml:"window"`
	FallbackGwei float64       `json:"fallback_gwei" yaml:"fallback_gwei"`
	NotifyEvery  int           `json:"notify_every" yaml:"notify_every"`
}

// TradingConfig holds the opportunity thresholds. Amounts are decimal strings
// in whole base-token units.
type TradingConfig struct {
	Notional        string `json:"notional" yaml:"notional"`
	MinProfit       string `json:"min_profit" yaml:"min_profit"`
	MinSpreadBps    uint32 `json:"min_spread_bps" yaml:"min_spread_bps"`
	FlashLoanFeeBps uint32 `json:"flash_loan_fee_bps" yaml:"flash_loan_fee_bps"`
}

// FundingConfig controls the settlement contract top-up.
type FundingConfig struct {
	MinBalance string `json:"min_balance" yaml:"min_balance"`
	TopUp      string `json:"top_up" yaml:"top_up"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64       `json:"requests_per_second" yaml:"requests_per_second"`
	BurstSize         int           `json:"burst_size" yaml:"burst_size"`
	WaitTimeout       time.Duration `json:"wait_timeout" yaml:"wait_timeout"`
}

type NotifyConfig struct {
	TelegramToken  string          `json:"-" yaml:"-"`
	TelegramChatID string          `json:"telegram_chat_id" yaml:"telegram_chat_id"`
	QueueSize      int             `json:"queue_size" yaml:"queue_size"`
	DedupWindow    time.Duration   `json:"dedup_window" yaml:"dedup_window"`
	DedupSize      int             `json:"dedup_size" yaml:"dedup_size"`
	RateLimit      RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
}

// TradeAmounts are the trading and funding thresholds converted to base units.
type TradeAmounts struct {
	Notional   *big.Int
	MinProfit  *big.Int
	MinBalance *big.Int
	TopUp      *big.Int
}

func (c *Config) ValidateConfig() error {
	var errors []string

	if c.RPCEndpoint == "" {
		errors = append(errors, "rpc_endpoint must be specified")
	}
	if c.PrivateKey == "" {
		errors = append(errors, "private key must be specified")
	}

	for name, addr := range map[string]string{
		"flash_arbitrage_contract": c.FlashArbitrageContract,
		"aave_pool":                c.AavePool,
		"tokens.base":              c.Tokens.Base,
		"tokens.quote":             c.Tokens.Quote,
		"venues.uniswap_router":    c.Venues.UniswapRouter,
		"venues.uniswap_quoter":    c.Venues.UniswapQuoter,
		"venues.sushiswap_router":  c.Venues.SushiswapRouter,
	} {
		if !common.IsHexAddress(addr) {
			errors = append(errors, fmt.Sprintf("%s must be a hex address", name))
		}
	}

	// Validate gas monitor settings
	if err := c.Gas.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("gas config error: %v", err))
	}

	// Validate trading thresholds
	if _, err := c.Amounts(); err != nil {
		errors = append(errors, fmt.Sprintf("trading config error: %v", err))
	}
	if c.Trading.FlashLoanFeeBps >= mathutil.BpsDenominator {
		errors = append(errors, "flash_loan_fee_bps must be below 10000")
	}

	if c.CycleInterval <= 0 {
		errors = append(errors, "cycle_interval must be positive")
	}
	if c.QuoteTimeout <= 0 || c.NetworkTimeout <= 0 || c.ConfirmTimeout <= 0 {
		errors = append(errors, "quote, network and confirm timeouts must be positive")
	}

	// Validate Rate Limits
	if err := c.RPCRateLimit.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("RPC rate limit error: %v", err))
	}
	if err := c.Notify.RateLimit.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("notify rate limit error: %v", err))
	}
	if c.Notify.QueueSize <= 0 {
		errors = append(errors, "notify queue_size must be positive")
	}
	if c.Notify.DedupWindow > 0 && c.Notify.DedupSize <= 0 {
		errors = append(errors, "notify dedup_size must be positive when dedup_window is set")
	}

	if c.PrometheusEnabled && c.MetricsAddr == "" {
		errors = append(errors, "metrics_addr must be set when prometheus is enabled")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (g *GasConfig) Validate() error {
	if g.TargetGwei <= 0 {
		return fmt.Errorf("target gwei must be positive")
	}
	if g.MaxWait <= 0 {
		return fmt.Errorf("max wait must be positive")
	}
	if g.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if g.Window <= 0 {
		return fmt.Errorf("window must be positive")
	}
	if g.FallbackGwei <= 0 {
		return fmt.Errorf("fallback gwei must be positive")
	}
	if g.NotifyEvery <= 0 {
		return fmt.Errorf("notify every must be positive")
	}
	return nil
}

func (r *RateLimitConfig) Validate() error {
	if r.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests per second must be positive")
	}
	if r.BurstSize <= 0 {
		return fmt.Errorf("burst size must be positive")
	}
	if r.WaitTimeout <= 0 {
		return fmt.Errorf("wait timeout must be positive")
	}

	return nil
}

// Amounts parses the trading and funding amounts into base units.
func (c *Config) Amounts() (*TradeAmounts, error) {
	dec := c.Tokens.BaseDecimals
	var (
		out TradeAmounts
		err error
	)

	if out.Notional, err = mathutil.ParseUnits(c.Trading.Notional, dec); err != nil {
		return nil, fmt.Errorf("notional: %w", err)
	}
	if out.Notional.Sign() <= 0 {
		return nil, fmt.Errorf("notional must be positive")
	}
	if out.MinProfit, err = mathutil.ParseUnits(c.Trading.MinProfit, dec); err != nil {
		return nil, fmt.Errorf("min_profit: %w", err)
	}
	if out.MinBalance, err = mathutil.ParseUnits(c.Funding.MinBalance, dec); err != nil {
		return nil, fmt.Errorf("funding.min_balance: %w", err)
	}
	if out.TopUp, err = mathutil.ParseUnits(c.Funding.TopUp, dec); err != nil {
		return nil, fmt.Errorf("funding.top_up: %w", err)
	}
	if out.TopUp.Sign() <= 0 {
		return nil, fmt.Errorf("funding.top_up must be positive")
	}

	return &out, nil
}

// TxURL links a transaction hash to the configured block explorer.
func (c *Config) TxURL(hash common.Hash) string {
	if c.ExplorerURL == "" {
		return hash.Hex()
	}
	return strings.TrimRight(c.ExplorerURL, "/") + "/tx/" + hash.Hex()
}

// LoadConfig builds the configuration from defaults, an optional JSON or YAML
// file, a .env file and the process environment, in that order.
func LoadConfig(cfgFile string) (*Config, error) {
	config := DefaultConfig()

	if cfgFile != "" {
		if err := decodeFile(cfgFile, config); err != nil {
			return nil, err
		}
	}

	if err := LoadEnv(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}

	// Validate configuration
	if err := config.ValidateConfig(); err != nil {
		return nil, err
	}

	return config, nil
}

func decodeFile(cfgFile string, config *Config) error {
	file, err := os.Open(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(cfgFile)) {
	case ".yaml", ".yml":
		if err := yaml.NewDecoder(file).Decode(config); err != nil {
			return fmt.Errorf("failed to decode config file: %w", err)
		}
	default:
		if err := json.NewDecoder(file).Decode(config); err != nil {
			return fmt.Errorf("failed to decode config file: %w", err)
		}
	}
	return nil
}

// DefaultConfig targets the Sepolia deployment the bot was built against.
func DefaultConfig() *Config {
	return &Config{
		Network:     "sepolia",
		ChainID:     11155111,
		ExplorerURL: "https://sepolia.etherscan.io",
		AavePool:    "0x6Ae43d3271ff6888e7Fc43Fd7321a503ff738951",
		Tokens: TokenConfig{
			Base:          "0xFF34B3d4Aee8ddCd6F9AFFFB6Fe49bD371b8a357", // DAI
			BaseSymbol:    "DAI",
			BaseDecimals:  18,
			Quote:         "0xC558DBdd856501FCd9aaF1E62eae57A9F0629a3c", // WETH
			QuoteSymbol:   "WETH",
			QuoteDecimals: 18,
		},
		Venues: VenueConfig{
			UniswapRouter:   "0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD",
			UniswapQuoter:   "0xb27308f9F90D607463bb33eA1BeBb41C27CE5AB6",
			UniswapFeeTier:  3000,
			SushiswapRouter: "0x1b02dA8Cb0d097eB8D57A175b88c7D8b47997506",
			SwapDeadline:    5 * time.Minute,
		},
		Gas: GasConfig{
			TargetGwei:   15,
			MaxWait:      2 * time.Minute,
			PollInterval: 15 * time.Second,
			Window:       5,
			FallbackGwei: 30,
			NotifyEvery:  3,
		},
		Trading: TradingConfig{
			Notional:        "10",
			MinProfit:       "0.1",
			MinSpreadBps:    50,
			FlashLoanFeeBps: 9,
		},
		Funding: FundingConfig{
			MinBalance: "1",
			TopUp:      "10",
		},
		CycleInterval:  5 * time.Second,
		QuoteTimeout:   10 * time.Second,
		NetworkTimeout: 30 * time.Second,
		ConfirmTimeout: 3 * time.Minute,
		RPCRateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			BurstSize:         20,
			WaitTimeout:       5 * time.Second,
		},
		Notify: NotifyConfig{
			QueueSize: 128,
			DedupSize: 256,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 1,
				BurstSize:         5,
				WaitTimeout:       10 * time.Second,
			},
		},
	}
}
