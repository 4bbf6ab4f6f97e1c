package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/metuDein/aaveflashbot/cmd/bot"
	"github.com/metuDein/aaveflashbot/utils"
	"github.com/metuDein/aaveflashbot/utils/metrics"
)

const drainTimeout = 5 * time.Second

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the arbitrage loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer utils.CleanupLogger()

		ctx, stop := context.WithCancel(cmd.Context())
		defer stop()

		notifier, err := newNotifier(cfg, log)
		if err != nil {
			return fmt.Errorf("failed to create notifier: %w", err)
		}
		defer notifier.Close(drainTimeout)

		comps, err := buildComponents(ctx, cfg, notifier, log)
		if err != nil {
			return err
		}
		defer comps.Close()

		scheduler, err := bot.New(comps.coordinator, cfg.CycleInterval, log)
		if err != nil {
			return err
		}

		if cfg.PrometheusEnabled {
			registry := metrics.NewRegistry(log)
			if err := registry.Register(comps.collectors...); err != nil {
				return err
			}
			if err := registry.Register(scheduler.Collectors()...); err != nil {
				return err
			}
			go func() {
				if err := registry.Serve(ctx, cfg.MetricsAddr); err != nil {
					log.Error("Metrics server stopped", zap.Error(err))
				}
			}()
		}

		comps.state.StartedAt = time.Now()
		log.Info("Bot state",
			zap.String("signer", comps.state.Signer.Hex()),
			zap.String("chain_id", comps.client.ChainID().String()),
			zap.Float64("target_gwei", comps.state.TargetGwei),
			zap.String("notional", comps.state.Notional.String()),
			zap.String("min_profit", comps.state.MinProfit.String()),
		)
		notifier.Notify(fmt.Sprintf("🚀 Starting arbitrage bot on %s at %s",
			displayNetwork(cfg.Network), comps.state.StartedAt.Format(time.RFC1123)))

		if err := scheduler.Start(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			log.Info("Shutting down gracefully...")
			scheduler.Stop()
			return nil
		case ferr := <-scheduler.Fatal():
			notifier.Notify(fmt.Sprintf("💥 Fatal error: %v", ferr))
			stop()
			scheduler.Stop()
			if err := notifier.Close(drainTimeout); err != nil {
				log.Warn("Final notification not delivered", zap.Error(err))
			}
			comps.Close()
			utils.CleanupLogger()
			os.Exit(1)
		}
		return nil
	},
}

func displayNetwork(network string) string {
	if network == "" {
		return "custom network"
	}
	return strings.ToUpper(network[:1]) + network[1:]
}

func init() {
	rootCmd.AddCommand(startCmd)
}
