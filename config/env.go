package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvRPCURL         = "ETH_RPC_URL"
	EnvInfuraKey      = "INFURA_API_KEY"
	EnvNetwork        = "NETWORK" // mainnet, sepolia, holesky
	EnvPrivateKey     = "PRIVATE_KEY"
	EnvArbContract    = "FLASH_ARBITRAGE_CONTRACT"
	EnvAavePool       = "AAVE_POOL_ADDRESS"
	EnvTelegramToken  = "TELEGRAM_BOT_TOKEN"
	EnvTelegramChatID = "TELEGRAM_CHAT_ID"
	EnvTargetGwei     = "TARGET_GAS_GWEI"
	EnvMaxGasWait     = "MAX_GAS_WAIT"
	EnvGasPoll        = "GAS_POLL_INTERVAL"
	EnvCycleInterval  = "CYCLE_INTERVAL"
	EnvNotional       = "NOTIONAL_AMOUNT"
	EnvMinProfit      = "MIN_PROFIT"
	EnvMetricsAddr    = "METRICS_ADDR"
)

// LoadEnv loads environment variables from .env file
func LoadEnv() error {
	return godotenv.Load()
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func GetRequiredEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("required environment variable %s not set", key)
	}
	return value, nil
}

// GetNetworkEndpoint builds the Infura HTTP endpoint for the named network.
func GetNetworkEndpoint(network, infuraKey string) (string, error) {
	switch network {
	case "mainnet", "sepolia", "holesky":
		return fmt.Sprintf("https://%s.infura.io/v3/%s", network, infuraKey), nil
	default:
		return "", fmt.Errorf("unsupported network: %s", network)
	}
}

func applyEnvOverrides(cfg *Config) error {
	cfg.Network = GetEnvWithDefault(EnvNetwork, cfg.Network)
	setStr(&cfg.RPCEndpoint, EnvRPCURL)
	if cfg.RPCEndpoint == "" {
		if key := os.Getenv(EnvInfuraKey); key != "" {
			endpoint, err := GetNetworkEndpoint(cfg.Network, key)
			if err != nil {
				return err
			}
			cfg.RPCEndpoint = endpoint
		}
	}

	// The signing key is never read from config files.
	key, err := GetRequiredEnv(EnvPrivateKey)
	if err != nil {
		return err
	}
	cfg.PrivateKey = key

	setStr(&cfg.FlashArbitrageContract, EnvArbContract)
	setStr(&cfg.AavePool, EnvAavePool)
	setStr(&cfg.Notify.TelegramToken, EnvTelegramToken)
	setStr(&cfg.Notify.TelegramChatID, EnvTelegramChatID)
	setStr(&cfg.Trading.Notional, EnvNotional)
	setStr(&cfg.Trading.MinProfit, EnvMinProfit)
	if v := os.Getenv(EnvMetricsAddr); v != "" {
		cfg.MetricsAddr = v
		cfg.PrometheusEnabled = true
	}

	if err := setFloat(&cfg.Gas.TargetGwei, EnvTargetGwei); err != nil {
		return err
	}
	for key, dst := range map[string]*time.Duration{
		EnvMaxGasWait:    &cfg.Gas.MaxWait,
		EnvGasPoll:       &cfg.Gas.PollInterval,
		EnvCycleInterval: &cfg.CycleInterval,
	} {
		if err := setDuration(dst, key); err != nil {
			return err
		}
	}
	return nil
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = f
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}
