package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/metuDein/aaveflashbot/config"
	"github.com/metuDein/aaveflashbot/utils"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "aaveflashbot",
	Short: "A CLI bot for flash loan arbitrage between Uniswap and Sushiswap",
	Long: `A CLI bot that waits for acceptable network fees, compares Uniswap V3 and
Sushiswap V2 quotes, and settles profitable spreads with an Aave V3 flash
loan through the deployed arbitrage contract.`,
	SilenceUsage: true,
}

// ExecuteContext runs the root command. Commands stop when ctx is cancelled.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file, JSON or YAML (defaults and environment only when empty)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// setup loads the configuration and initializes the process logger with the
// configured log file.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		utils.InitLogger(utils.LogOptions{Debug: debug})
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := utils.InitLogger(utils.LogOptions{Debug: debug, File: cfg.LogFile})
	return cfg, log, nil
}
