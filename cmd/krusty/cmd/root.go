package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "krusty",
	Short: "An unattended equities trading agent",
	Long: `Krusty is an unattended trading agent for Alpaca accounts.

It streams live bars for held symbols, scores each symbol with a weighted
ensemble of strategies, and places orders while keeping a ledger of the
lots it has bought:
  - Moving-average crossover, mean reversion, MACD, RSI and ATR gates
  - Stop-loss, trailing-stop and position-sizing risk controls
  - Rebuy watch after a position is closed
  - Fill journal in SQLite or CSV
  - Prometheus metrics

Credentials are read from APCA_API_KEY_ID and APCA_API_SECRET_KEY.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
