package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Zia-Rashid/Krusty-Krab/agent"
	"github.com/Zia-Rashid/Krusty-Krab/broker"
	"github.com/Zia-Rashid/Krusty-Krab/broker/alpaca"
	"github.com/Zia-Rashid/Krusty-Krab/broker/paper"
	"github.com/Zia-Rashid/Krusty-Krab/config"
	"github.com/Zia-Rashid/Krusty-Krab/ensemble"
	"github.com/Zia-Rashid/Krusty-Krab/risk"
	"github.com/Zia-Rashid/Krusty-Krab/strategies"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// buildBroker returns the Alpaca brokerage, or a paper brokerage that
// reads market data from Alpaca when credentials are available.
func buildBroker(cfg *config.Config, keyID, secret string) (broker.Brokerage, error) {
	switch cfg.Broker.Type {
	case "alpaca":
		base := cfg.Broker.BaseURL
		if base == "" {
			var err error
			if base, err = alpaca.BaseURL(cfg.Broker.Env); err != nil {
				return nil, err
			}
		}
		return alpaca.NewClient(keyID, secret, base, cfg.Broker.DataURL), nil
	case "paper":
		cash := decimal.NewFromFloat(cfg.Broker.PaperCash)
		if keyID == "" || secret == "" {
			return paper.New(cash, nil), nil
		}
		return paper.New(cash, alpaca.NewClient(keyID, secret, cfg.Broker.BaseURL, cfg.Broker.DataURL)), nil
	default:
		return nil, fmt.Errorf("unknown broker type %q", cfg.Broker.Type)
	}
}

// buildEnsemble registers every weighted strategy from the config. The
// volatility gate and sizing veto take their bounds from the config; the
// rest use their registered defaults.
func buildEnsemble(cfg *config.Config, log *zap.Logger) (*ensemble.Evaluator, error) {
	ev := ensemble.New(log)
	for _, name := range cfg.Strategy.Names() {
		var (
			s   strategies.Strategy
			err error
		)
		switch name {
		case "volatility":
			s = strategies.NewVolatilityGate(strategies.VolatilityConfig{
				Low:  cfg.Strategy.VolatilityLow,
				High: cfg.Strategy.VolatilityHigh,
			})
		case "sizing":
			s = risk.SizingStrategy{MaxFraction: cfg.Risk.MaxFraction}
		default:
			s, err = strategies.New(name)
		}
		if err != nil {
			return nil, err
		}
		if err := ev.Register(s, cfg.Strategy.Weights[name]); err != nil {
			return nil, err
		}
	}
	return ev, nil
}

func agentConfig(cfg *config.Config, d config.Durations) agent.Config {
	return agent.Config{
		Symbols:               cfg.Agent.Symbols,
		BuyThreshold:          cfg.Strategy.BuyThreshold,
		SellThreshold:         cfg.Strategy.SellThreshold,
		LookbackDays:          cfg.Strategy.LookbackDays,
		OrderQty:              cfg.Agent.OrderQty,
		MonitorInterval:       d.MonitorInterval,
		PurgeInterval:         d.PurgeInterval,
		HealthInterval:        d.HealthInterval,
		RebuyInterval:         d.RebuyInterval,
		RebuyWindow:           d.RebuyWindow,
		RebuyDip:              cfg.Agent.RebuyDip,
		PriceStaleness:        d.PriceStaleness,
		TradeWhenClosed:       cfg.Agent.TradeWhenClosed,
		SeedLotsFromPositions: cfg.Agent.SeedLotsFromPositions,
	}
}

// serveMetrics exposes the default prometheus registry at /metrics until
// ctx is done.
func serveMetrics(ctx context.Context, addr string, log *zap.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("metrics listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()
}
