package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Zia-Rashid/Krusty-Krab/agent"
	"github.com/Zia-Rashid/Krusty-Krab/config"
	"github.com/Zia-Rashid/Krusty-Krab/feed"
	"github.com/Zia-Rashid/Krusty-Krab/forward"
	"github.com/Zia-Rashid/Krusty-Krab/journal"
	"github.com/Zia-Rashid/Krusty-Krab/ledger"
	"github.com/Zia-Rashid/Krusty-Krab/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the trading agent",
	Long: `Run the agent until interrupted.

Held positions are loaded from the brokerage, live bars are streamed for
every held symbol, and the monitor evaluates each symbol on a fixed
interval. On interrupt the agent shuts down and reports the final account
value.

Without -f the default paper-trading configuration is used.

Example:
  krusty run -f krusty.yaml`,
	RunE: runRun,
}

var runConfigPath string

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "f", "", "path to config file (YAML or JSON)")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		return cfg, cfg.Validate()
	}
	return config.LoadFromFile(path)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	d, err := cfg.Durations()
	if err != nil {
		return err
	}
	keyID, secret, err := cfg.RequireCredentials()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	brk, err := buildBroker(cfg, keyID, secret)
	if err != nil {
		return fmt.Errorf("broker: %w", err)
	}
	ev, err := buildEnsemble(cfg, log)
	if err != nil {
		return fmt.Errorf("strategies: %w", err)
	}

	j, err := journal.Open(cfg.Journal.Type, cfg.Journal.Path)
	if err != nil {
		return fmt.Errorf("create journal: %w", err)
	}
	defer j.Close()

	metrics := agent.NewMetrics(prometheus.DefaultRegisterer)
	serveMetrics(ctx, cfg.MetricsAddr, log)

	queue := feed.NewQueue[feed.Message](cfg.Feed.QueueCapacity)
	opts := agent.Options{
		Config:  agentConfig(cfg, d),
		Risk:    cfg.Risk,
		Broker:  brk,
		Scorer:  ev,
		Ledger:  ledger.New(),
		Journal: j,
		Queue:   queue,
		Metrics: metrics,
		Log:     log,
	}
	if store, ok := j.(ledger.Store); ok {
		opts.LedgerStore = store
	}

	var client *feed.Client
	if keyID != "" && secret != "" {
		conn := feed.NewWSConn(cfg.Feed.URL)
		conn.ReceiveTimeout = d.ReceiveTimeout
		client = feed.NewClient(conn, feed.Config{
			Key:         keyID,
			Secret:      secret,
			MaxAttempts: cfg.Feed.MaxAttempts,
			BaseDelay:   d.BaseDelay,
		}, queue, log)
		opts.Feed = client
	} else {
		log.Warn("no stream credentials, prices will be polled")
	}

	if cfg.Forward.Enabled {
		fwd := forward.New(feed.NewWSConn(cfg.Forward.URL), cfg.Feed.QueueCapacity, d.BaseDelay, log)
		opts.Forwarder = fwd
		if client != nil {
			client.SetMirror(fwd.Publish)
		}
	}

	ag, err := agent.New(opts)
	if err != nil {
		return err
	}
	if client != nil {
		client.OnStateChange(ag.ObserveFeedState)
	}

	log.Info("starting agent",
		zap.String("broker", cfg.Broker.Type),
		zap.String("env", cfg.Broker.Env),
		zap.Strings("strategies", cfg.Strategy.Names()),
		zap.String("journal", cfg.Journal.Type))
	runErr := ag.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("agent stopped with error", zap.Error(runErr))
	}

	report, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if _, err := ag.FinalReport(report); err != nil {
		log.Error("final report", zap.Error(err))
	}
	return runErr
}
