// Package agent is the trade orchestrator. It runs the ingestion, monitor,
// purge, health, rebuy-watch and forwarding activities as one cooperative
// set and serializes every trade behind a single lock.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Zia-Rashid/Krusty-Krab/broker"
	"github.com/Zia-Rashid/Krusty-Krab/ensemble"
	"github.com/Zia-Rashid/Krusty-Krab/feed"
	"github.com/Zia-Rashid/Krusty-Krab/journal"
	"github.com/Zia-Rashid/Krusty-Krab/ledger"
	"github.com/Zia-Rashid/Krusty-Krab/market"
	"github.com/Zia-Rashid/Krusty-Krab/risk"
	"github.com/Zia-Rashid/Krusty-Krab/strategies"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"
)

var (
	ErrInvalidSignal  = errors.New("invalid trade signal")
	ErrNoPosition     = errors.New("no position")
	ErrAlreadyRunning = errors.New("agent already started")
	ErrStillHeld      = errors.New("position still held")
)

// Defaults applied by New to zero Config fields.
const (
	DefaultMonitorInterval = 60 * time.Second
	DefaultPurgeInterval   = 5 * time.Minute
	DefaultHealthInterval  = 30 * time.Second
	DefaultRebuyInterval   = 60 * time.Second
	DefaultRebuyWindow     = 72 * time.Hour
	DefaultPriceStaleness  = 5 * time.Minute
	DefaultLookbackDays    = 120
	DefaultOrderQty        = 1.0

	// reconnectDelay is the pause before re-running a feed that dropped.
	reconnectDelay = 5 * time.Second
)

type Config struct {
	// Symbols are subscribed in addition to held and ledger symbols.
	Symbols []string

	BuyThreshold  float64
	SellThreshold float64
	LookbackDays  int
	OrderQty      float64

	MonitorInterval time.Duration
	PurgeInterval   time.Duration
	HealthInterval  time.Duration
	RebuyInterval   time.Duration
	RebuyWindow     time.Duration
	RebuyDip        float64
	PriceStaleness  time.Duration

	TradeWhenClosed       bool
	SeedLotsFromPositions bool
}

func (c Config) withDefaults() Config {
	if c.LookbackDays <= 0 {
		c.LookbackDays = DefaultLookbackDays
	}
	if !(c.OrderQty > 0) {
		c.OrderQty = DefaultOrderQty
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = DefaultMonitorInterval
	}
	if c.PurgeInterval <= 0 {
		c.PurgeInterval = DefaultPurgeInterval
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = DefaultHealthInterval
	}
	if c.RebuyInterval <= 0 {
		c.RebuyInterval = DefaultRebuyInterval
	}
	if c.RebuyWindow <= 0 {
		c.RebuyWindow = DefaultRebuyWindow
	}
	if c.PriceStaleness <= 0 {
		c.PriceStaleness = DefaultPriceStaleness
	}
	return c
}

// Feed is the live market-data client the ingestion activity drives.
type Feed interface {
	Run(ctx context.Context, symbols []string) error
	State() feed.State
	Close() error
}

// Scorer produces the ensemble score for a symbol.
type Scorer interface {
	EvaluateDetailed(symbol string, history market.Series, rc strategies.RiskContext) ensemble.Result
}

// Runner is an optional background activity such as the forwarder.
type Runner interface {
	Run(ctx context.Context) error
}

// Options wires the agent. Broker, Scorer and Ledger are required.
type Options struct {
	Config Config
	Risk   risk.Config

	Broker broker.Brokerage
	Scorer Scorer
	Ledger *ledger.Ledger

	// LedgerStore persists the ledger after every mutation. Optional.
	LedgerStore ledger.Store
	Journal     journal.Journal

	// Feed is optional; without one the agent polls prices.
	Feed      Feed
	Queue     *feed.Queue[feed.Message]
	Forwarder Runner

	Metrics *Metrics
	Log     *zap.Logger
}

type Agent struct {
	cfg       Config
	broker    broker.Brokerage
	scorer    Scorer
	lots      *ledger.Ledger
	store     ledger.Store
	journal   journal.Journal
	feed      Feed
	queue     *feed.Queue[feed.Message]
	forwarder Runner
	bars      *market.BarStore
	risk      *risk.Manager
	metrics   *Metrics
	log       *zap.Logger

	// tradeMu serializes order placement together with the ledger
	// mutation that follows it.
	tradeMu sync.Mutex

	posMu     sync.RWMutex
	positions market.Positions

	started     atomic.Bool
	running     atomic.Bool
	polling     atomic.Bool
	lastEvicted atomic.Uint64
	reconnect   chan struct{}

	cancelMu sync.Mutex
	cancel   context.CancelFunc
	stopped  bool

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func New(opts Options) (*Agent, error) {
	if opts.Broker == nil {
		return nil, errors.New("agent: broker is required")
	}
	if opts.Scorer == nil {
		return nil, errors.New("agent: scorer is required")
	}
	if opts.Ledger == nil {
		return nil, errors.New("agent: ledger is required")
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	a := &Agent{
		cfg:       opts.Config.withDefaults(),
		broker:    opts.Broker,
		scorer:    opts.Scorer,
		lots:      opts.Ledger,
		store:     opts.LedgerStore,
		journal:   opts.Journal,
		feed:      opts.Feed,
		queue:     opts.Queue,
		forwarder: opts.Forwarder,
		bars:      market.NewBarStore(),
		metrics:   opts.Metrics,
		log:       log.Named("agent"),
		positions: market.Positions{},
		reconnect: make(chan struct{}, 1),
		now:       time.Now,
		sleep:     feed.Sleep,
	}
	if a.journal == nil {
		a.journal = journal.Discard{}
	}
	if a.queue == nil {
		a.queue = feed.NewQueue[feed.Message](feed.DefaultQueueCapacity)
	}
	if a.metrics == nil {
		a.metrics = NewMetrics(nil)
	}
	a.risk = risk.NewManager(opts.Risk, a.lots, a, a.broker, log)
	if a.feed == nil {
		a.polling.Store(true)
	}
	return a, nil
}

// Risk returns the risk manager bound to the agent's ledger and positions.
func (a *Agent) Risk() *risk.Manager { return a.risk }

// Bars returns the store of live bars fed by ingestion.
func (a *Agent) Bars() *market.BarStore { return a.bars }

// Running reports whether the activity set is running.
func (a *Agent) Running() bool { return a.running.Load() }

// Polling reports whether the agent is in degraded polling mode.
func (a *Agent) Polling() bool { return a.polling.Load() }

func (a *Agent) alive(ctx context.Context) bool {
	return a.running.Load() && ctx.Err() == nil
}

type activity struct {
	name string
	fn   func(ctx context.Context) error
}

func (a *Agent) activities() []activity {
	acts := []activity{
		{"ingestion", a.ingest},
		{"monitor", a.monitor},
		{"purge", a.purgeLoop},
		{"health", a.healthLoop},
		{"rebuy", a.rebuyLoop},
	}
	if a.forwarder != nil {
		acts = append(acts, activity{"forwarder", a.forwarder.Run})
	}
	return acts
}

// Run restores state and runs every activity until ctx is done, Stop is
// called, or an activity fails. A failed activity stops its siblings and
// its error is returned.
func (a *Agent) Run(ctx context.Context) error {
	if !a.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.cancelMu.Lock()
	if a.stopped {
		a.cancelMu.Unlock()
		return nil
	}
	a.cancel = cancel
	a.running.Store(true)
	a.cancelMu.Unlock()
	defer a.running.Store(false)

	if err := a.prepare(ctx); err != nil {
		return err
	}

	var (
		wg       conc.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)
	for _, act := range a.activities() {
		wg.Go(func() {
			if err := a.supervise(ctx, act); err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
				a.Stop()
			}
		})
	}
	a.log.Info("agent running", zap.Int("activities", len(a.activities())), zap.Bool("polling", a.Polling()))
	wg.Wait()

	a.log.Info("agent stopped")
	return firstErr
}

// supervise runs one activity and converts a panic or an error into a
// logged failure.
func (a *Agent) supervise(ctx context.Context, act activity) (err error) {
	var pc panics.Catcher
	pc.Try(func() {
		err = act.fn(ctx)
	})
	if r := pc.Recovered(); r != nil {
		err = fmt.Errorf("panic: %w", r.AsError())
	}
	if err == nil || (ctx.Err() != nil && errors.Is(err, context.Canceled)) {
		return nil
	}

	a.log.Error("activity failed", zap.String("activity", act.name), zap.Error(err))
	a.metrics.failures.WithLabelValues(act.name).Inc()
	return fmt.Errorf("%s: %w", act.name, err)
}

// Stop requests shutdown of every activity. It is idempotent and safe to
// call before Run.
func (a *Agent) Stop() {
	a.cancelMu.Lock()
	a.stopped = true
	a.running.Store(false)
	cancel := a.cancel
	a.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}

	if a.feed != nil {
		if err := a.feed.Close(); err != nil {
			a.log.Warn("feed close", zap.Error(err))
		}
	}
}

// prepare restores the persisted ledger, loads positions and optionally
// seeds lots for held symbols that have none.
func (a *Agent) prepare(ctx context.Context) error {
	if a.store != nil {
		snap, err := a.store.LoadLedger()
		if err != nil {
			return fmt.Errorf("load ledger: %w", err)
		}
		a.lots.Restore(snap)
	}

	if err := a.refreshPositions(ctx); err != nil {
		return fmt.Errorf("initial positions: %w", err)
	}
	positions := a.Positions()

	if a.cfg.SeedLotsFromPositions {
		a.tradeMu.Lock()
		seeded := 0
		for _, sym := range positions.Held() {
			if a.lots.HasLots(sym) || !(positions[sym].Price > 0) {
				continue
			}
			a.lots.Append(sym, ledger.Lot{Price: positions[sym].Price, Qty: positions[sym].Qty})
			seeded++
		}
		if seeded > 0 {
			a.persist()
		}
		a.tradeMu.Unlock()
		a.log.Info("seeded lots from positions", zap.Int("symbols", seeded))
	}

	for _, sym := range a.lots.Symbols() {
		held, booked := positions.Qty(sym), a.lots.Quantity(sym)
		switch {
		case held <= 0:
			a.log.Warn("ledger has lots for a symbol not held", zap.String("symbol", sym))
		case held != booked:
			a.log.Warn("ledger quantity differs from position",
				zap.String("symbol", sym),
				zap.Float64("held", held),
				zap.Float64("ledger", booked))
		}
	}
	a.log.Info("agent ready",
		zap.Strings("held", positions.Held()),
		zap.Strings("ledger", a.lots.Symbols()))
	return nil
}

// Positions returns the cached position snapshot.
func (a *Agent) Positions() market.Positions {
	a.posMu.RLock()
	defer a.posMu.RUnlock()
	return a.positions.Clone()
}

func (a *Agent) refreshPositions(ctx context.Context) error {
	p, err := a.broker.GetPositions(ctx)
	if err != nil {
		return err
	}
	a.posMu.Lock()
	a.positions = p.Clone()
	a.posMu.Unlock()
	return nil
}

// symbols is the subscription set: configured, held, in the ledger or
// being watched for a rebuy.
func (a *Agent) symbols() []string {
	set := make(map[string]struct{})
	for _, s := range a.cfg.Symbols {
		set[s] = struct{}{}
	}
	for _, s := range a.Positions().Held() {
		set[s] = struct{}{}
	}
	for _, s := range a.lots.Symbols() {
		set[s] = struct{}{}
	}
	for _, e := range a.lots.SoldEntries() {
		set[e.Symbol] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
