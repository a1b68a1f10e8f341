package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Zia-Rashid/Krusty-Krab/broker"
	"github.com/Zia-Rashid/Krusty-Krab/broker/paper"
	"github.com/Zia-Rashid/Krusty-Krab/ensemble"
	"github.com/Zia-Rashid/Krusty-Krab/feed"
	"github.com/Zia-Rashid/Krusty-Krab/journal"
	"github.com/Zia-Rashid/Krusty-Krab/ledger"
	"github.com/Zia-Rashid/Krusty-Krab/market"
	"github.com/Zia-Rashid/Krusty-Krab/risk"
	"github.com/Zia-Rashid/Krusty-Krab/strategies"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedScore float64

func (f fixedScore) EvaluateDetailed(symbol string, _ market.Series, _ strategies.RiskContext) ensemble.Result {
	return ensemble.Result{Symbol: symbol, Score: float64(f), WeightUsed: 1}
}

type memJournal struct {
	mu       sync.Mutex
	fills    []journal.Fill
	accounts []journal.AccountSnapshot
}

func (j *memJournal) RecordFill(f journal.Fill) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fills = append(j.fills, f)
	return nil
}

func (j *memJournal) RecordAccount(s journal.AccountSnapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.accounts = append(j.accounts, s)
	return nil
}

func (j *memJournal) Close() error { return nil }

func (j *memJournal) Fills() []journal.Fill {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]journal.Fill(nil), j.fills...)
}

type memStore struct {
	mu    sync.Mutex
	snap  ledger.Snapshot
	saves int
}

func (s *memStore) SaveLedger(snap ledger.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	s.saves++
	return nil
}

func (s *memStore) LoadLedger() (ledger.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap, nil
}

func newPaper(prices map[string]float64) *paper.Broker {
	p := paper.New(decimal.NewFromInt(100000), nil)
	now := time.Now()
	for sym, px := range prices {
		p.AddBar(market.Bar{Symbol: sym, Time: now, Open: px, High: px, Low: px, Close: px})
	}
	return p
}

func heldQty(t *testing.T, p *paper.Broker, sym string) float64 {
	t.Helper()
	positions, err := p.GetPositions(context.Background())
	require.NoError(t, err)
	return positions.Qty(sym)
}

// lotsAt builds one-unit lots at prices.
func lotsAt(prices ...float64) []ledger.Lot {
	out := make([]ledger.Lot, len(prices))
	for i, p := range prices {
		out[i] = ledger.Lot{Price: p, Qty: 1}
	}
	return out
}

type testEnv struct {
	agent   *Agent
	lots    *ledger.Ledger
	journal *memJournal
	store   *memStore
}

func newEnv(t *testing.T, b broker.Brokerage, score Scorer, edit func(*Options)) testEnv {
	t.Helper()
	env := testEnv{
		lots:    ledger.New(),
		journal: &memJournal{},
		store:   &memStore{},
	}
	opts := Options{
		Config: Config{
			BuyThreshold:    0.25,
			SellThreshold:   -0.25,
			MonitorInterval: time.Hour,
			PurgeInterval:   time.Hour,
			HealthInterval:  time.Hour,
			RebuyInterval:   time.Hour,
			RebuyDip:        0.02,
		},
		Risk:        risk.DefaultConfig(),
		Broker:      b,
		Scorer:      score,
		Ledger:      env.lots,
		LedgerStore: env.store,
		Journal:     env.journal,
	}
	if edit != nil {
		edit(&opts)
	}
	a, err := New(opts)
	require.NoError(t, err)
	env.agent = a
	return env
}

func TestNew_RequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(Options{Scorer: fixedScore(0), Ledger: ledger.New()})
	assert.Error(t, err)
	_, err = New(Options{Broker: newPaper(nil), Ledger: ledger.New()})
	assert.Error(t, err)
	_, err = New(Options{Broker: newPaper(nil), Scorer: fixedScore(0)})
	assert.Error(t, err)
}

func TestExecuteTrade_BuyAppendsLot(t *testing.T) {
	t.Parallel()

	env := newEnv(t, newPaper(map[string]float64{"XYZ": 50}), fixedScore(0), nil)
	res, err := env.agent.ExecuteTrade(context.Background(), strategies.Buy, "XYZ")
	require.NoError(t, err)

	assert.Equal(t, broker.Buy, res.Side)
	assert.Equal(t, lotsAt(50), env.lots.Lots("XYZ"))
	assert.Equal(t, 1, env.store.saves)

	fills := env.journal.Fills()
	require.Len(t, fills, 1)
	assert.Equal(t, "buy", fills[0].Side)
	assert.Equal(t, ReasonManual, fills[0].Reason)
	assert.InDelta(t, 50, fills[0].Price, 1e-9)
}

func TestExecuteTrade_SellPopsMostRecentLot(t *testing.T) {
	t.Parallel()

	p := newPaper(map[string]float64{"XYZ": 110})
	p.Seed("XYZ", 2)
	env := newEnv(t, p, fixedScore(0), nil)
	env.lots.Append("XYZ", ledger.Lot{Price: 90, Qty: 1})
	env.lots.Append("XYZ", ledger.Lot{Price: 100, Qty: 1})

	_, err := env.agent.ExecuteTrade(context.Background(), strategies.Sell, "XYZ")
	require.NoError(t, err)

	assert.Equal(t, lotsAt(90), env.lots.Lots("XYZ"))
	_, watching := env.lots.Sold("XYZ")
	assert.False(t, watching)

	fills := env.journal.Fills()
	require.Len(t, fills, 1)
	assert.InDelta(t, 100, fills[0].Lot, 1e-9)
	assert.InDelta(t, 10, fills[0].PnL, 1e-9)

	_, err = env.agent.ExecuteTrade(context.Background(), strategies.Sell, "XYZ")
	require.NoError(t, err)
	assert.False(t, env.lots.HasLots("XYZ"))
	sold, watching := env.lots.Sold("XYZ")
	require.True(t, watching)
	assert.InDelta(t, 110, sold.ExitPrice, 1e-9)
}

func TestExecuteTrade_InvariantFaults(t *testing.T) {
	t.Parallel()

	p := newPaper(map[string]float64{"XYZ": 100, "ABC": 10})
	p.Seed("XYZ", 1)
	env := newEnv(t, p, fixedScore(0), nil)

	_, err := env.agent.ExecuteTrade(context.Background(), strategies.Sell, "XYZ")
	assert.ErrorIs(t, err, ledger.ErrEmptyLedger)

	_, err = env.agent.ExecuteTrade(context.Background(), strategies.Sell, "ABC")
	assert.ErrorIs(t, err, ErrNoPosition)

	_, err = env.agent.ExecuteTrade(context.Background(), strategies.Hold, "XYZ")
	assert.ErrorIs(t, err, ErrInvalidSignal)

	assert.Empty(t, p.Orders(), "no order may be placed on an invariant fault")
	assert.Empty(t, env.journal.Fills())
}

func TestExecuteTrade_OrderErrorLeavesLedger(t *testing.T) {
	t.Parallel()

	// no bar for XYZ, so the paper broker cannot fill
	p := newPaper(nil)
	env := newEnv(t, p, fixedScore(0), nil)

	_, err := env.agent.ExecuteTrade(context.Background(), strategies.Buy, "XYZ")
	require.Error(t, err)
	assert.False(t, env.lots.HasLots("XYZ"))
	assert.Zero(t, env.store.saves)
}

// slowBroker records how many PlaceOrder calls overlap.
type slowBroker struct {
	*paper.Broker
	inflight atomic.Int32
	peak     atomic.Int32
}

func (s *slowBroker) PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	n := s.inflight.Add(1)
	defer s.inflight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return s.Broker.PlaceOrder(ctx, req)
}

func TestExecuteTrade_Serialized(t *testing.T) {
	t.Parallel()

	p := newPaper(map[string]float64{"AAA": 10, "BBB": 20, "CCC": 30})
	p.Seed("AAA", 1)
	p.Seed("BBB", 1)
	sb := &slowBroker{Broker: p}
	env := newEnv(t, sb, fixedScore(0), nil)
	env.lots.Append("AAA", ledger.Lot{Price: 9, Qty: 1})
	env.lots.Append("BBB", ledger.Lot{Price: 19, Qty: 1})

	var wg sync.WaitGroup
	errs := make([]error, 3)
	trades := []struct {
		sig strategies.Signal
		sym string
	}{
		{strategies.Sell, "AAA"},
		{strategies.Sell, "BBB"},
		{strategies.Buy, "CCC"},
	}
	for i, tr := range trades {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = env.agent.ExecuteTrade(context.Background(), tr.sig, tr.sym)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), sb.peak.Load())
	assert.False(t, env.lots.HasLots("AAA"))
	assert.False(t, env.lots.HasLots("BBB"))
	assert.Equal(t, lotsAt(30), env.lots.Lots("CCC"))
	assert.Len(t, env.lots.SoldEntries(), 2)
	assert.Equal(t, 3, env.store.saves)
}

func TestCycle_StopLossExit(t *testing.T) {
	t.Parallel()

	p := newPaper(map[string]float64{"XYZ": 94})
	p.Seed("XYZ", 1)
	env := newEnv(t, p, fixedScore(0), nil)
	env.lots.Append("XYZ", ledger.Lot{Price: 100, Qty: 1})

	env.agent.Cycle(context.Background())

	require.Len(t, p.Orders(), 1)
	assert.Equal(t, broker.Sell, p.Orders()[0].Side)
	assert.False(t, env.lots.HasLots("XYZ"))
	fills := env.journal.Fills()
	require.Len(t, fills, 1)
	assert.Equal(t, ReasonStopLoss, fills[0].Reason)
	assert.InDelta(t, -6, fills[0].PnL, 1e-9)
}

func TestCycle_OutOfBandSkipped(t *testing.T) {
	t.Parallel()

	p := newPaper(map[string]float64{"XYZ": 10})
	p.Seed("XYZ", 5)
	env := newEnv(t, p, fixedScore(1), nil)

	env.agent.Cycle(context.Background())

	assert.Empty(t, p.Orders())
	assert.False(t, env.lots.HasLots("XYZ"))
}

func TestCycle_BuyOnEnsembleScore(t *testing.T) {
	t.Parallel()

	p := newPaper(map[string]float64{"XYZ": 100})
	p.Seed("XYZ", 1)
	// three equal members voting [1, 1, -1]
	ev := ensemble.New(nil)
	for i, sig := range []strategies.Signal{strategies.Buy, strategies.Buy, strategies.Sell} {
		require.NoError(t, ev.Register(strategies.Func{
			ID: string(rune('a' + i)),
			Fn: func(string, market.Series, strategies.RiskContext) (strategies.Score, error) {
				return strategies.FromSignal(sig), nil
			},
		}, 1))
	}
	env := newEnv(t, p, ev, nil)
	env.lots.Append("XYZ", ledger.Lot{Price: 99, Qty: 1})

	env.agent.Cycle(context.Background())

	require.Len(t, p.Orders(), 1)
	assert.Equal(t, broker.Buy, p.Orders()[0].Side)
	assert.Equal(t, lotsAt(99, 100), env.lots.Lots("XYZ"))
}

func TestCycle_TrailingStopFromLiveBars(t *testing.T) {
	t.Parallel()

	now := time.Now()
	today := now.UTC().Truncate(24 * time.Hour)

	p := newPaper(nil)
	// history ends yesterday, so only the live bars know today's open
	p.SetHistory("XYZ", market.Series{
		{Symbol: "XYZ", Time: today.Add(-12 * time.Hour), Open: 94, High: 94, Low: 94, Close: 94},
	})
	p.Seed("XYZ", 1)
	q := feed.NewQueue[feed.Message](10)
	env := newEnv(t, p, fixedScore(0), func(o *Options) {
		o.Queue = q
		o.Feed = &fakeFeed{}
	})
	env.lots.Append("XYZ", ledger.Lot{Price: 90, Qty: 1})

	q.Put(feed.Message{Received: now, Bars: []market.Bar{
		{Symbol: "XYZ", Time: now, Open: 100, High: 100, Low: 94, Close: 94},
	}})
	env.agent.polling.Store(false)

	env.agent.Cycle(context.Background())

	assert.Zero(t, q.Len())
	fills := env.journal.Fills()
	require.Len(t, fills, 1)
	assert.Equal(t, ReasonTrailingStop, fills[0].Reason)
}

func TestCycle_TrailingStopUsesSessionOpenAfterMidSessionStart(t *testing.T) {
	t.Parallel()

	now := time.Now()
	today := now.UTC().Truncate(24 * time.Hour)

	p := newPaper(nil)
	p.SetHistory("XYZ", market.Series{
		{Symbol: "XYZ", Time: today, Open: 100, High: 100, Low: 89, Close: 89},
	})
	p.Seed("XYZ", 1)
	q := feed.NewQueue[feed.Message](10)
	env := newEnv(t, p, fixedScore(0), func(o *Options) {
		o.Queue = q
		o.Feed = &fakeFeed{}
	})
	env.lots.Append("XYZ", ledger.Lot{Price: 90, Qty: 1})

	// the first live bar seen today opens well below the session open
	q.Put(feed.Message{Received: now, Bars: []market.Bar{
		{Symbol: "XYZ", Time: now, Open: 90, High: 90, Low: 89, Close: 89},
	}})
	env.agent.polling.Store(false)

	env.agent.Cycle(context.Background())

	fills := env.journal.Fills()
	require.Len(t, fills, 1, "89 is below 0.95 x the session open of 100")
	assert.Equal(t, ReasonTrailingStop, fills[0].Reason)
	assert.InDelta(t, 89, fills[0].Price, 1e-9)
}

func TestCycle_MarketClosed(t *testing.T) {
	t.Parallel()

	p := newPaper(map[string]float64{"XYZ": 50})
	p.Seed("XYZ", 1)
	p.SetMarketOpen(false)
	env := newEnv(t, p, fixedScore(-1), nil)
	env.lots.Append("XYZ", ledger.Lot{Price: 100, Qty: 1})

	env.agent.Cycle(context.Background())
	assert.Empty(t, p.Orders())

	env.agent.cfg.TradeWhenClosed = true
	env.agent.Cycle(context.Background())
	assert.Len(t, p.Orders(), 1)
}

func TestCheckRebuys(t *testing.T) {
	t.Parallel()

	p := newPaper(map[string]float64{"XYZ": 97, "OLD": 1, "HOT": 120})
	env := newEnv(t, p, fixedScore(0), nil)
	now := time.Now()

	for sym, exit := range map[string]float64{"XYZ": 100, "HOT": 100} {
		env.lots.Append(sym, ledger.Lot{Price: exit, Qty: 1})
		_, _, err := env.lots.Pop(sym, 1, exit, now.Add(-time.Hour))
		require.NoError(t, err)
	}
	env.lots.Append("OLD", ledger.Lot{Price: 5, Qty: 1})
	_, _, err := env.lots.Pop("OLD", 1, 5, now.Add(-100*time.Hour))
	require.NoError(t, err)

	env.agent.CheckRebuys(context.Background())

	assert.Equal(t, lotsAt(97), env.lots.Lots("XYZ"))
	_, watching := env.lots.Sold("XYZ")
	assert.False(t, watching)

	_, watching = env.lots.Sold("OLD")
	assert.False(t, watching, "expired entry is forgotten")
	assert.False(t, env.lots.HasLots("OLD"))

	_, watching = env.lots.Sold("HOT")
	assert.True(t, watching, "price above the dip keeps watching")

	fills := env.journal.Fills()
	require.Len(t, fills, 1)
	assert.Equal(t, ReasonRebuy, fills[0].Reason)
}

func TestCheckRebuys_EnsembleVeto(t *testing.T) {
	t.Parallel()

	p := newPaper(map[string]float64{"XYZ": 90})
	env := newEnv(t, p, fixedScore(-1), nil)
	env.lots.Append("XYZ", ledger.Lot{Price: 100, Qty: 1})
	_, _, err := env.lots.Pop("XYZ", 1, 100, time.Now())
	require.NoError(t, err)

	env.agent.CheckRebuys(context.Background())

	assert.Empty(t, p.Orders())
	_, watching := env.lots.Sold("XYZ")
	assert.True(t, watching)
}

func TestFinalReport(t *testing.T) {
	t.Parallel()

	p := newPaper(map[string]float64{"XYZ": 10})
	env := newEnv(t, p, fixedScore(0), nil)

	snap, err := env.agent.FinalReport(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 100000, snap.Value, 1e-6)
	assert.Equal(t, "final", snap.Note)

	env.journal.mu.Lock()
	defer env.journal.mu.Unlock()
	require.Len(t, env.journal.accounts, 1)
}

func TestPrepare_RestoresAndSeeds(t *testing.T) {
	t.Parallel()

	p := newPaper(map[string]float64{"AAA": 10, "BBB": 20})
	p.Seed("AAA", 1)
	p.Seed("BBB", 1)
	env := newEnv(t, p, fixedScore(0), func(o *Options) {
		o.Config.SeedLotsFromPositions = true
	})
	env.store.snap = ledger.Snapshot{Lots: map[string][]ledger.Lot{"AAA": {{Price: 8, Qty: 1}}}}

	require.NoError(t, env.agent.prepare(context.Background()))

	assert.Equal(t, lotsAt(8), env.lots.Lots("AAA"))
	assert.Equal(t, lotsAt(20), env.lots.Lots("BBB"))
	assert.Equal(t, 1, env.store.saves)
}

func TestExecuteTrade_SellsWholeSeededLot(t *testing.T) {
	t.Parallel()

	p := newPaper(map[string]float64{"XYZ": 100})
	p.Seed("XYZ", 10)
	env := newEnv(t, p, fixedScore(0), func(o *Options) {
		o.Config.SeedLotsFromPositions = true
	})
	require.NoError(t, env.agent.prepare(context.Background()))
	assert.Equal(t, []ledger.Lot{{Price: 100, Qty: 10}}, env.lots.Lots("XYZ"))

	_, err := env.agent.ExecuteTrade(context.Background(), strategies.Sell, "XYZ")
	require.NoError(t, err)

	orders := p.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, 10.0, orders[0].Qty)
	assert.Zero(t, heldQty(t, p, "XYZ"))
	assert.False(t, env.lots.HasLots("XYZ"))
	_, watching := env.lots.Sold("XYZ")
	assert.True(t, watching)

	fills := env.journal.Fills()
	require.Len(t, fills, 1)
	assert.Equal(t, 10.0, fills[0].Qty)
}

func TestExecuteTrade_SellCappedAtHeldFlattensLedger(t *testing.T) {
	t.Parallel()

	p := newPaper(map[string]float64{"XYZ": 110})
	p.Seed("XYZ", 3)
	env := newEnv(t, p, fixedScore(0), nil)
	env.lots.Append("XYZ", ledger.Lot{Price: 100, Qty: 1})
	env.lots.Append("XYZ", ledger.Lot{Price: 105, Qty: 5})

	_, err := env.agent.ExecuteTrade(context.Background(), strategies.Sell, "XYZ")
	require.NoError(t, err)

	require.Len(t, p.Orders(), 1)
	assert.Equal(t, 3.0, p.Orders()[0].Qty)
	assert.False(t, env.lots.HasLots("XYZ"), "a flat position leaves no lots")
	_, watching := env.lots.Sold("XYZ")
	assert.True(t, watching)

	fills := env.journal.Fills()
	require.Len(t, fills, 1)
	assert.InDelta(t, 15, fills[0].PnL, 1e-9)
}

func TestExecuteTrade_LastLotSoldWhileStillHeld(t *testing.T) {
	t.Parallel()

	p := newPaper(map[string]float64{"XYZ": 100})
	p.Seed("XYZ", 10)
	env := newEnv(t, p, fixedScore(0), nil)
	env.lots.Append("XYZ", ledger.Lot{Price: 90, Qty: 1})

	_, err := env.agent.ExecuteTrade(context.Background(), strategies.Sell, "XYZ")
	require.NoError(t, err)

	assert.Equal(t, 9.0, heldQty(t, p, "XYZ"))
	assert.False(t, env.lots.HasLots("XYZ"))
	_, watching := env.lots.Sold("XYZ")
	assert.False(t, watching, "a held symbol is never on the sold-book")
}

// partialBroker fills at most fill units of every order.
type partialBroker struct {
	*paper.Broker
	fill float64
}

func (b partialBroker) PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	req.Qty = min(req.Qty, b.fill)
	return b.Broker.PlaceOrder(ctx, req)
}

func TestExecuteTrade_PartialBuyRecordsFilledQty(t *testing.T) {
	t.Parallel()

	p := newPaper(map[string]float64{"XYZ": 50})
	env := newEnv(t, partialBroker{Broker: p, fill: 2}, fixedScore(0), func(o *Options) {
		o.Config.OrderQty = 5
	})

	_, err := env.agent.ExecuteTrade(context.Background(), strategies.Buy, "XYZ")
	require.NoError(t, err)
	assert.Equal(t, []ledger.Lot{{Price: 50, Qty: 2}}, env.lots.Lots("XYZ"))

	_, err = env.agent.ExecuteTrade(context.Background(), strategies.Sell, "XYZ")
	require.NoError(t, err)
	assert.Zero(t, heldQty(t, p, "XYZ"))
	assert.False(t, env.lots.HasLots("XYZ"))
}

func TestCheckRebuys_SkipsHeldSymbol(t *testing.T) {
	t.Parallel()

	p := newPaper(map[string]float64{"XYZ": 90})
	env := newEnv(t, p, fixedScore(1), nil)
	env.lots.Append("XYZ", ledger.Lot{Price: 100, Qty: 1})
	_, _, err := env.lots.Pop("XYZ", 1, 100, time.Now())
	require.NoError(t, err)
	p.Seed("XYZ", 3)

	env.agent.CheckRebuys(context.Background())

	assert.Empty(t, p.Orders())
	_, watching := env.lots.Sold("XYZ")
	assert.True(t, watching)

	_, err = env.agent.trade(context.Background(), strategies.Buy, "XYZ", ReasonRebuy)
	assert.ErrorIs(t, err, ErrStillHeld)
	assert.Empty(t, p.Orders())
}

type fakeFeed struct {
	mu      sync.Mutex
	calls   int
	results []error
	state   feed.State
	closed  chan struct{}
	once    sync.Once
}

func (f *fakeFeed) done() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed == nil {
		f.closed = make(chan struct{})
	}
	return f.closed
}

func (f *fakeFeed) Run(ctx context.Context, _ []string) error {
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.mu.Unlock()
	if i < len(f.results) {
		return f.results[i]
	}
	select {
	case <-ctx.Done():
	case <-f.done():
	}
	return nil
}

func (f *fakeFeed) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFeed) State() feed.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeFeed) Close() error {
	ch := f.done()
	f.once.Do(func() { close(ch) })
	return nil
}

func TestRun_PollingAndReconnect(t *testing.T) {
	t.Parallel()

	ff := &fakeFeed{results: []error{feed.ErrRetriesExhausted}}
	env := newEnv(t, newPaper(nil), fixedScore(0), func(o *Options) { o.Feed = ff })
	a := env.agent
	assert.False(t, a.Polling())

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()

	require.Eventually(t, a.Polling, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, ff.Calls())

	a.CheckHealth()
	require.Eventually(t, func() bool { return ff.Calls() == 2 }, 2*time.Second, 5*time.Millisecond)

	a.ObserveFeedState(feed.Streaming)
	assert.False(t, a.Polling())

	a.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	assert.False(t, a.Running())
}

type panicker struct{}

func (panicker) Run(context.Context) error { panic("boom") }

type failer struct{}

func (failer) Run(context.Context) error { return errors.New("listener gone") }

func TestRun_ActivityFailureStopsAgent(t *testing.T) {
	t.Parallel()

	for name, r := range map[string]Runner{"panic": panicker{}, "error": failer{}} {
		t.Run(name, func(t *testing.T) {
			env := newEnv(t, newPaper(nil), fixedScore(0), func(o *Options) { o.Forwarder = r })

			done := make(chan error, 1)
			go func() { done <- env.agent.Run(context.Background()) }()

			select {
			case err := <-done:
				require.Error(t, err)
				assert.Contains(t, err.Error(), "forwarder")
			case <-time.After(2 * time.Second):
				t.Fatal("agent kept running after an activity failed")
			}
			assert.False(t, env.agent.Running())
		})
	}
}

func TestRun_ContextCancel(t *testing.T) {
	t.Parallel()

	env := newEnv(t, newPaper(nil), fixedScore(0), nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- env.agent.Run(ctx) }()
	require.Eventually(t, env.agent.Running, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run ignored cancellation")
	}

	assert.ErrorIs(t, env.agent.Run(context.Background()), ErrAlreadyRunning)
}

func TestStopBeforeRun(t *testing.T) {
	t.Parallel()

	env := newEnv(t, newPaper(nil), fixedScore(0), nil)
	env.agent.Stop()
	assert.NoError(t, env.agent.Run(context.Background()))
	assert.False(t, env.agent.Running())
}

func TestCheckHealth_PurgesNearlyFullQueue(t *testing.T) {
	t.Parallel()

	q := feed.NewQueue[feed.Message](4)
	env := newEnv(t, newPaper(nil), fixedScore(0), func(o *Options) { o.Queue = q })
	now := time.Now()
	for i := 0; i < 6; i++ {
		q.Put(feed.Message{Bars: []market.Bar{{Symbol: "XYZ", Time: now.Add(time.Duration(i) * time.Second), Close: float64(i)}}})
	}

	env.agent.CheckHealth()

	assert.Zero(t, q.Len())
	b, ok := env.agent.Bars().Latest("XYZ")
	require.True(t, ok)
	assert.InDelta(t, 5, b.Close, 1e-9)
	assert.Equal(t, uint64(2), env.agent.lastEvicted.Load())
}
