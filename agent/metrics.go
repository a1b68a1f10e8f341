package agent

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposed by the agent:
//
//	krusty_orders_total{side}              orders accepted by the brokerage
//	krusty_decisions_total{action}         monitor verdicts (buy|sell|hold|skip)
//	krusty_queue_depth                     ingestion queue length
//	krusty_queue_evictions_total           frames dropped by the full queue
//	krusty_feed_state                      feed state (0 disconnected .. 4 closing)
//	krusty_activity_failures_total{activity}
//	krusty_account_value                   last observed account value
type Metrics struct {
	orders       *prometheus.CounterVec
	decisions    *prometheus.CounterVec
	queueDepth   prometheus.Gauge
	evictions    prometheus.Counter
	feedState    prometheus.Gauge
	failures     *prometheus.CounterVec
	accountValue prometheus.Gauge
}

// NewMetrics builds the agent metrics and registers them with reg. A nil
// reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "krusty_orders_total",
				Help: "Orders placed",
			},
			[]string{"side"},
		),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "krusty_decisions_total",
				Help: "Decisions taken by the monitor",
			},
			[]string{"action"},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "krusty_queue_depth",
				Help: "Messages waiting in the ingestion queue",
			},
		),
		evictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "krusty_queue_evictions_total",
				Help: "Messages evicted from the full ingestion queue",
			},
		),
		feedState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "krusty_feed_state",
				Help: "Market data feed state",
			},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "krusty_activity_failures_total",
				Help: "Activities that failed and stopped the agent",
			},
			[]string{"activity"},
		),
		accountValue: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "krusty_account_value",
				Help: "Last observed account value",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.orders, m.decisions, m.queueDepth, m.evictions)
		reg.MustRegister(m.feedState, m.failures, m.accountValue)
	}
	return m
}
