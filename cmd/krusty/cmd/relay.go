package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Zia-Rashid/Krusty-Krab/forward"
	"github.com/Zia-Rashid/Krusty-Krab/pkg/logger"
	"github.com/spf13/cobra"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the local listener for forwarded market data",
	Long: `Serve a websocket endpoint that receives frames mirrored by a running
agent (forward.enabled) and fans each one out to every other connected client.

Example:
  krusty relay --addr localhost:8080`,
	RunE: runRelay,
}

var (
	relayAddr     string
	relayLogLevel string
)

func init() {
	rootCmd.AddCommand(relayCmd)

	relayCmd.Flags().StringVar(&relayAddr, "addr", forward.DefaultRelayAddr, "listen address")
	relayCmd.Flags().StringVar(&relayLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

func runRelay(cmd *cobra.Command, args []string) error {
	log, err := logger.New(relayLogLevel, true)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return forward.NewRelay(log).ListenAndServe(ctx, relayAddr)
}
