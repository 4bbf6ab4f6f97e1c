package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/metuDein/aaveflashbot/utils"
)

var fundCmd = &cobra.Command{
	Use:   "fund",
	Short: "Top up the arbitrage contract's fee balance if it is below the minimum",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer utils.CleanupLogger()

		notifier, err := newNotifier(cfg, log)
		if err != nil {
			return fmt.Errorf("failed to create notifier: %w", err)
		}
		defer notifier.Close(drainTimeout)

		amounts, err := cfg.Amounts()
		if err != nil {
			return err
		}
		eth, client, err := dialChain(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer eth.Close()

		funder, err := newFunder(cfg, client, notifier, amounts, log)
		if err != nil {
			return err
		}

		sent, err := funder.EnsureFunded(cmd.Context())
		if err != nil {
			return err
		}
		if sent {
			fmt.Fprintln(cmd.OutOrStdout(), "contract funded")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "contract balance sufficient, nothing sent")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fundCmd)
}
