package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/metuDein/aaveflashbot/utils"
	mathutil "github.com/metuDein/aaveflashbot/utils/math"
)

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Quote both venues once and report whether the spread would trade",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer utils.CleanupLogger()

		amounts, err := cfg.Amounts()
		if err != nil {
			return err
		}
		eth, client, err := dialChain(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer eth.Close()

		evaluator, err := newEvaluator(cfg, client, amounts, log)
		if err != nil {
			return err
		}

		quotes, err := evaluator.Quote(cmd.Context(), amounts.Notional)
		if err != nil {
			return err
		}
		venueA, venueB := evaluator.Venues()
		opp := evaluator.Assess(quotes)

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "notional\t%s %s\n", mathutil.FormatUnits(amounts.Notional, cfg.Tokens.BaseDecimals), cfg.Tokens.BaseSymbol)
		fmt.Fprintf(w, "%s\t%s %s\n", venueA.Name(), mathutil.FormatUnits(quotes.OutputA, cfg.Tokens.QuoteDecimals), cfg.Tokens.QuoteSymbol)
		fmt.Fprintf(w, "%s\t%s %s\n", venueB.Name(), mathutil.FormatUnits(quotes.OutputB, cfg.Tokens.QuoteDecimals), cfg.Tokens.QuoteSymbol)
		if opp == nil {
			fmt.Fprintf(w, "result\tno profitable opportunity\n")
		} else {
			fmt.Fprintf(w, "buy\t%s\n", opp.BuyVenue.Name())
			fmt.Fprintf(w, "sell\t%s\n", opp.SellVenue.Name())
			fmt.Fprintf(w, "expected profit\t%s %s\n", mathutil.FormatUnits(opp.Profit, cfg.Tokens.BaseDecimals), cfg.Tokens.BaseSymbol)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(quoteCmd)
}
