package quorum

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quorumtrade/quorum/core"
	"github.com/quorumtrade/quorum/exchange"
	"github.com/quorumtrade/quorum/indicator"
	"github.com/quorumtrade/quorum/order"
	"github.com/quorumtrade/quorum/risk"
	"github.com/quorumtrade/quorum/storage"
)

var testStart = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

// stubVoter is a scriptable strategy. Three of them form an ensemble with
// full agreement, which isolates the tests from real indicator behavior.
type stubVoter struct {
	mu       sync.Mutex
	name     string
	side     core.SignalSide
	strength float64
}

// newVoters uses names on the trending and transitioning allow-lists, the
// regimes the monotonic test tapes produce, so classification never
// silences the ensemble
func newVoters(side core.SignalSide, strength float64) []*stubVoter {
	return []*stubVoter{
		{name: "macd_cross", side: side, strength: strength},
		{name: "multi_timeframe", side: side, strength: strength},
		{name: "composite_score", side: side, strength: strength},
	}
}

func (s *stubVoter) Name() string      { return s.name }
func (s *stubVoter) WarmupPeriod() int { return indicator.MinHistory }

func (s *stubVoter) Evaluate(_ *core.MarketView) core.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.Signal{Side: s.side, Strength: s.strength, Confidence: 0.9, Reason: "scripted"}
}

func (s *stubVoter) vote(side core.SignalSide, strength float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.side = side
	s.strength = strength
}

// stubFeeder backs the paper wallet's market data side with a settable
// quote: tight spread, five deep levels per book side.
type stubFeeder struct {
	mu        sync.Mutex
	pair      string
	price     float64
	at        time.Time
	tickerErr error
}

func newStubFeeder(pair string) *stubFeeder {
	return &stubFeeder{pair: pair}
}

func (f *stubFeeder) set(price float64, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.price = price
	f.at = at
}

func (f *stubFeeder) failTicker(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickerErr = err
}

func (f *stubFeeder) AssetsInfo(pair string) (core.AssetInfo, error) {
	asset, quote := exchange.SplitAssetQuote(pair)
	return core.AssetInfo{BaseAsset: asset, QuoteAsset: quote}, nil
}

func (f *stubFeeder) Ticker(_ context.Context, pair string) (core.Ticker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.tickerErr != nil {
		return core.Ticker{}, f.tickerErr
	}
	return core.Ticker{
		Pair:      pair,
		Last:      f.price,
		Bid:       f.price * (1 - 0.0001),
		Ask:       f.price * (1 + 0.0001),
		Volume24h: 5_000_000,
		Time:      f.at,
	}, nil
}

func (f *stubFeeder) LastQuote(ctx context.Context, pair string) (float64, error) {
	ticker, err := f.Ticker(ctx, pair)
	return ticker.Last, err
}

func (f *stubFeeder) OrderBook(_ context.Context, pair string, _ int) (core.OrderBook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	book := core.OrderBook{Pair: pair, Time: f.at}
	for i := 1; i <= 5; i++ {
		offset := float64(i) * 0.0001
		book.Bids = append(book.Bids, core.PriceLevel{Price: f.price * (1 - offset), Quantity: 50})
		book.Asks = append(book.Asks, core.PriceLevel{Price: f.price * (1 + offset), Quantity: 50})
	}
	return book, nil
}

func (f *stubFeeder) CandlesByPeriod(context.Context, string, string, time.Time, time.Time) ([]core.Candle, error) {
	return nil, nil
}

func (f *stubFeeder) CandlesByLimit(context.Context, string, string, int) ([]core.Candle, error) {
	return nil, nil
}

func (f *stubFeeder) CandlesSubscription(context.Context, string, string) (chan core.Candle, chan error) {
	candles := make(chan core.Candle)
	errs := make(chan error)
	close(candles)
	close(errs)
	return candles, errs
}

// eventRecorder captures everything the trader publishes
type eventRecorder struct {
	mu     sync.Mutex
	events []core.Event
}

func (r *eventRecorder) record(e core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) tags() []core.TradeTag {
	r.mu.Lock()
	defer r.mu.Unlock()

	var tags []core.TradeTag
	for _, e := range r.events {
		if tag, ok := e.(core.TradeTag); ok {
			tags = append(tags, tag)
		}
	}
	return tags
}

func (r *eventRecorder) opened() []core.PositionOpened {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []core.PositionOpened
	for _, e := range r.events {
		if ev, ok := e.(core.PositionOpened); ok {
			out = append(out, ev)
		}
	}
	return out
}

func (r *eventRecorder) closed() []core.PositionClosed {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []core.PositionClosed
	for _, e := range r.events {
		if ev, ok := e.(core.PositionClosed); ok {
			out = append(out, ev)
		}
	}
	return out
}

func (r *eventRecorder) breakerTrips() []core.BreakerTripped {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []core.BreakerTripped
	for _, e := range r.events {
		if ev, ok := e.(core.BreakerTripped); ok {
			out = append(out, ev)
		}
	}
	return out
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = at
}

// ---------------------
// Fixture
// ---------------------

type traderFixture struct {
	cfg      core.Config
	clk      *testClock
	feeder   *stubFeeder
	wallet   *exchange.PaperWallet
	broker   *order.Controller
	guard    *exchange.BackoffController
	recorder *eventRecorder
	voters   []*stubVoter
	trader   *Trader
}

func newTraderFixture(t *testing.T, voters []*stubVoter, mutate func(*core.Config)) *traderFixture {
	t.Helper()

	cfg := core.DefaultConfig()
	cfg.Exchange.Pair = "BTCUSDT"
	if mutate != nil {
		mutate(&cfg)
	}

	clk := &testClock{now: testStart}
	feeder := newStubFeeder(cfg.Exchange.Pair)
	log := core.NewNopLogger()

	wallet := exchange.NewPaperWallet("USDT", log,
		exchange.WithPaperBalance(10000),
		exchange.WithPaperFee(cfg.Exchange.MakerFee, cfg.Exchange.TakerFee),
		exchange.WithDataFeed(feeder),
		exchange.WithPaperLeverage(cfg.Exchange.Pair, cfg.Exchange.Leverage),
	)

	st, err := storage.NewFromMemory()
	require.NoError(t, err)

	recorder := &eventRecorder{}
	broker := order.NewController(wallet, st, order.NewOrderFeed(), log)
	guard := exchange.NewBackoffController(cfg.Exchange.Name, cfg.Breakers, recorder.record, log)

	strategies := make([]core.Strategy, 0, len(voters))
	for _, v := range voters {
		strategies = append(strategies, v)
	}

	trader := NewTrader(cfg, broker, guard, recorder.record, log, strategies, nil, nil, clk.Now)
	require.NoError(t, trader.Recover(context.Background()))
	trader.Start()

	return &traderFixture{
		cfg:      cfg,
		clk:      clk,
		feeder:   feeder,
		wallet:   wallet,
		broker:   broker,
		guard:    guard,
		recorder: recorder,
		voters:   voters,
		trader:   trader,
	}
}

// drive replays candles the way the bot's candle pump does: the wallet
// sees the price first, then the trader
func (f *traderFixture) drive(candles ...core.Candle) {
	ctx := context.Background()
	for _, candle := range candles {
		f.clk.Set(candle.Time)
		f.feeder.set(candle.Close, candle.Time)
		f.wallet.OnCandle(candle)
		f.trader.OnPartialCandle(ctx, candle)
		if candle.Complete {
			f.trader.OnCandle(ctx, candle)
		}
	}
}

// bullTape builds count ascending five-minute candles, each closing 0.5%
// above its open. The last three carry extra volume so the uptrend
// confirmation sees buyers stepping in.
func bullTape(pair string, start time.Time, price float64, count int) []core.Candle {
	candles := make([]core.Candle, 0, count)
	open := price
	for i := 0; i < count; i++ {
		at := start.Add(time.Duration(i) * 5 * time.Minute)
		cls := open * 1.005
		volume := 1000.0
		if i >= count-3 {
			volume = 1500
		}
		candles = append(candles, core.Candle{
			Pair:      pair,
			Time:      at,
			UpdatedAt: at,
			Open:      open,
			Close:     cls,
			High:      cls * 1.0005,
			Low:       open * 0.9995,
			Volume:    volume,
			Complete:  true,
		})
		open = cls
	}
	return candles
}

// bearTape mirrors bullTape with 0.5% declines
func bearTape(pair string, start time.Time, price float64, count int) []core.Candle {
	candles := make([]core.Candle, 0, count)
	open := price
	for i := 0; i < count; i++ {
		at := start.Add(time.Duration(i) * 5 * time.Minute)
		cls := open * 0.995
		candles = append(candles, core.Candle{
			Pair:      pair,
			Time:      at,
			UpdatedAt: at,
			Open:      open,
			Close:     cls,
			High:      open * 1.0005,
			Low:       cls * 0.9995,
			Volume:    1000,
			Complete:  true,
		})
		open = cls
	}
	return candles
}

// openLongFixture warms the trader on a clean uptrend until it opens a long
func openLongFixture(t *testing.T, mutate func(*core.Config)) (*traderFixture, []core.Candle) {
	t.Helper()

	f := newTraderFixture(t, newVoters(core.SignalLong, 0.9), mutate)
	tape := bullTape("BTCUSDT", testStart, 100, 60)
	f.drive(tape...)
	require.Equal(t, StateInPosition, f.trader.State())
	return f, tape
}

// ---------------------
// Entry path
// ---------------------

func TestTraderOpensLongAfterWarmup(t *testing.T) {
	f := newTraderFixture(t, newVoters(core.SignalLong, 0.9), nil)
	tape := bullTape("BTCUSDT", testStart, 100, 60)

	f.drive(tape[:59]...)
	require.Equal(t, StateStarting, f.trader.State())
	require.Empty(t, f.recorder.opened())

	f.drive(tape[59])
	require.Equal(t, StateInPosition, f.trader.State())

	entry := tape[59].Close
	position := f.trader.Position()
	require.NotNil(t, position)
	require.Equal(t, core.PositionSideLong, position.Side)
	require.InDelta(t, entry, position.EntryPrice, 1e-9)

	// 10% of the 10k balance at 5x, scaled by the 0.25 kelly prior and
	// the 0.75 strength factor for 0.9 against the 0.80 floor:
	// 10000 * 0.1 * 5 * 0.25 * 0.75 = 937.50 quote
	require.InDelta(t, 937.5, position.Amount*position.EntryPrice, 1e-6)

	require.Less(t, position.StopLoss, entry)
	require.Greater(t, position.TakeProfit, entry)
	require.Equal(t, "macd_cross", position.Strategy)
	require.Contains(t, position.Reason, "multi_timeframe")

	opened := f.recorder.opened()
	require.Len(t, opened, 1)
	require.Equal(t, core.SideTypeBuy, opened[0].Order.Side)
	require.Equal(t, core.OrderTypeMarket, opened[0].Order.Type)
	require.Equal(t, core.OrderStatusTypeFilled, opened[0].Order.Status)

	// the trade tag is held back until the position closes
	require.Empty(t, f.recorder.tags())

	snapshots, err := f.wallet.Positions(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	require.InDelta(t, position.Amount, snapshots[0].Amount, 1e-9)
}

func TestTraderRejectsLongAgainstDowntrend(t *testing.T) {
	f := newTraderFixture(t, newVoters(core.SignalLong, 0.82), nil)
	f.drive(bearTape("BTCUSDT", testStart, 100, 60)...)

	require.Equal(t, StateFlat, f.trader.State())
	require.Nil(t, f.trader.Position())
	require.Empty(t, f.recorder.opened())

	// the ensemble cleared its floors, so the refusal must come from the
	// direction gate and leave an audit trail
	tags := f.recorder.tags()
	require.Len(t, tags, 1)
	require.Equal(t, core.TagRejected, tags[0].Action)
	require.Equal(t, "direction", tags[0].RejectionStage)

	require.NotEmpty(t, tags[0].Gates)
	require.Equal(t, "circuit_breaker", tags[0].Gates[0].Gate)
	require.True(t, tags[0].Gates[0].Passed)

	last := tags[0].Gates[len(tags[0].Gates)-1]
	require.Equal(t, "direction", last.Gate)
	require.False(t, last.Passed)
	require.Contains(t, last.Reason, "uptrend not confirmed")
}

func TestTraderBreakerBlocksEntries(t *testing.T) {
	f := newTraderFixture(t, newVoters(core.SignalLong, 0.9), nil)
	tape := bullTape("BTCUSDT", testStart, 100, 60)
	f.drive(tape[:59]...)

	// an earlier trade today lost 5.5% of the 10k daily base, past the
	// 5% limit
	lossAt := tape[58].Time
	f.trader.Metrics().RecordTrade(-550, 9450, lossAt)
	f.trader.Breaker().OnTradeClosed(f.trader.Metrics(), lossAt)
	require.NotEmpty(t, f.recorder.breakerTrips())

	f.drive(tape[59])

	require.Equal(t, StateFlat, f.trader.State())
	require.Nil(t, f.trader.Position())
	require.Empty(t, f.recorder.opened())

	tags := f.recorder.tags()
	require.Len(t, tags, 1)
	require.Equal(t, core.TagRejected, tags[0].Action)
	require.Equal(t, "circuit_breaker", tags[0].RejectionStage)
	require.Equal(t, "circuit_breaker", tags[0].Gates[0].Gate)
	require.False(t, tags[0].Gates[0].Passed)
}

func TestTraderSkipsTickOnStaleTicker(t *testing.T) {
	f := newTraderFixture(t, newVoters(core.SignalLong, 0.9), nil)
	tape := bullTape("BTCUSDT", testStart, 100, 60)
	f.drive(tape[:59]...)

	// the quote lags the candle by a minute, far past the 5s staleness
	// limit, so the tick is skipped entirely
	stale := tape[59]
	f.clk.Set(stale.Time)
	f.feeder.set(stale.Close, stale.Time.Add(-time.Minute))
	f.wallet.OnCandle(stale)
	f.trader.OnCandle(context.Background(), stale)

	require.Equal(t, StateFlat, f.trader.State())
	require.Empty(t, f.recorder.opened())
	require.Empty(t, f.recorder.tags())

	// a fresh quote on the next candle trades normally
	prev := stale
	at := prev.Time.Add(5 * time.Minute)
	next := core.Candle{
		Pair: "BTCUSDT", Time: at, UpdatedAt: at,
		Open: prev.Close, Close: prev.Close * 1.005,
		High: prev.Close * 1.005 * 1.0005, Low: prev.Close * 0.9995,
		Volume: 1500, Complete: true,
	}
	f.drive(next)
	require.Len(t, f.recorder.opened(), 1)
	require.Equal(t, StateInPosition, f.trader.State())
}

func TestTraderDropsLateCandles(t *testing.T) {
	f, tape := openLongFixture(t, nil)

	// a candle older than the newest one must not rewind the dataframe
	// or trigger another evaluation
	f.drive(tape[30])

	require.Equal(t, StateInPosition, f.trader.State())
	require.Len(t, f.recorder.opened(), 1)
}

// ---------------------
// Exit path
// ---------------------

func TestTraderStopLossExit(t *testing.T) {
	f, tape := openLongFixture(t, nil)
	entry := tape[len(tape)-1].Close
	at := tape[len(tape)-1].Time.Add(5 * time.Minute)

	crash := core.Candle{
		Pair: "BTCUSDT", Time: at, UpdatedAt: at,
		Open: entry, Close: entry * 0.95,
		High: entry, Low: entry * 0.9495,
		Volume: 2000, Complete: true,
	}
	f.drive(crash)

	require.Equal(t, StateFlat, f.trader.State())
	require.Nil(t, f.trader.Position())

	closed := f.recorder.closed()
	require.Len(t, closed, 1)
	require.Equal(t, string(risk.ExitStopLoss), closed[0].Reason)
	require.Less(t, closed[0].PnL, 0.0)
	require.Less(t, closed[0].MAE, 0.0)

	tags := f.recorder.tags()
	require.Len(t, tags, 1)
	require.Equal(t, core.TagClosed, tags[0].Action)
	require.InDelta(t, entry*0.95, tags[0].ExitPrice, 1e-9)
	require.Less(t, tags[0].PnL, 0.0)
	require.Equal(t, 5*time.Minute, tags[0].HoldTime)

	snapshots, err := f.wallet.Positions(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Empty(t, snapshots)
	require.Equal(t, 1, f.trader.Metrics().TradeCount())
}

func TestTraderPartialCandleStopsOut(t *testing.T) {
	f, tape := openLongFixture(t, nil)
	entry := tape[len(tape)-1].Close
	at := tape[len(tape)-1].Time.Add(5 * time.Minute)

	// the stop breaches mid-candle; the exit must not wait for the close
	partial := core.Candle{
		Pair: "BTCUSDT", Time: at, UpdatedAt: at.Add(30 * time.Second),
		Open: entry, Close: entry * 0.95,
		High: entry, Low: entry * 0.949,
		Volume: 400, Complete: false,
	}
	f.drive(partial)

	require.Equal(t, StateFlat, f.trader.State())
	closed := f.recorder.closed()
	require.Len(t, closed, 1)
	require.Equal(t, string(risk.ExitStopLoss), closed[0].Reason)

	snapshots, err := f.wallet.Positions(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Empty(t, snapshots)
}

func TestTraderReversalSignalClosesPosition(t *testing.T) {
	f, tape := openLongFixture(t, nil)
	entry := tape[len(tape)-1].Close
	at := tape[len(tape)-1].Time.Add(5 * time.Minute)

	for _, v := range f.voters {
		v.vote(core.SignalCloseLong, 0.9)
	}

	// price holds at entry so only the reversal consensus can close
	doji := core.Candle{
		Pair: "BTCUSDT", Time: at, UpdatedAt: at,
		Open: entry, Close: entry,
		High: entry * 1.0002, Low: entry * 0.9998,
		Volume: 1000, Complete: true,
	}
	f.drive(doji)

	require.Equal(t, StateFlat, f.trader.State())
	closed := f.recorder.closed()
	require.Len(t, closed, 1)
	require.Equal(t, string(risk.ExitManual), closed[0].Reason)

	tags := f.recorder.tags()
	require.Len(t, tags, 1)
	require.Equal(t, core.TagClosed, tags[0].Action)
}

// ---------------------
// Recovery
// ---------------------

func TestTraderRecoverAdoptsExchangePosition(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Exchange.Pair = "BTCUSDT"

	clk := &testClock{now: testStart}
	feeder := newStubFeeder("BTCUSDT")
	log := core.NewNopLogger()
	wallet := exchange.NewPaperWallet("USDT", log,
		exchange.WithPaperBalance(10000),
		exchange.WithPaperFee(cfg.Exchange.MakerFee, cfg.Exchange.TakerFee),
		exchange.WithDataFeed(feeder),
		exchange.WithPaperLeverage("BTCUSDT", cfg.Exchange.Leverage),
	)

	// a previous run left a long on the exchange
	ctx := context.Background()
	seedAt := testStart
	feeder.set(100, seedAt)
	wallet.OnCandle(core.Candle{
		Pair: "BTCUSDT", Time: seedAt, UpdatedAt: seedAt,
		Open: 100, Close: 100, High: 100, Low: 100, Volume: 1000, Complete: true,
	})
	_, err := wallet.CreateOrderMarket(ctx, core.SideTypeBuy, "BTCUSDT", 0.5, false)
	require.NoError(t, err)

	st, err := storage.NewFromMemory()
	require.NoError(t, err)
	recorder := &eventRecorder{}
	broker := order.NewController(wallet, st, order.NewOrderFeed(), log)

	strategies := make([]core.Strategy, 0, 3)
	for _, v := range newVoters(core.SignalLong, 0.9) {
		strategies = append(strategies, v)
	}
	trader := NewTrader(cfg, broker, nil, recorder.record, log, strategies, nil, nil, clk.Now)

	require.NoError(t, trader.Recover(ctx))
	require.Equal(t, StateInPosition, trader.State())

	position := trader.Position()
	require.NotNil(t, position)
	require.Equal(t, core.PositionSideLong, position.Side)
	require.InDelta(t, 0.5, position.Amount, 1e-9)
	require.InDelta(t, 100, position.EntryPrice, 1e-9)

	// unknown entry details are filled conservatively: taker fee, exit
	// plan rebuilt from the live entry (2% stop and 3% target at 5x)
	require.InDelta(t, 100*0.5*cfg.Exchange.TakerFee, position.EntryFee, 1e-9)
	require.InDelta(t, 99.6, position.StopLoss, 1e-9)
	require.InDelta(t, 100.6, position.TakeProfit, 1e-9)
	require.Equal(t, "recovered", position.Strategy)

	trader.Start()
	require.Equal(t, StateInPosition, trader.State())

	// the adopted position runs through the normal exit lifecycle
	redAt := seedAt.Add(5 * time.Minute)
	clk.Set(redAt)
	feeder.set(99.5, redAt)
	red := core.Candle{
		Pair: "BTCUSDT", Time: redAt, UpdatedAt: redAt,
		Open: 100, Close: 99.5, High: 100, Low: 99.4, Volume: 1500, Complete: true,
	}
	wallet.OnCandle(red)
	trader.OnCandle(ctx, red)

	closed := recorder.closed()
	require.Len(t, closed, 1)
	require.Equal(t, string(risk.ExitStopLoss), closed[0].Reason)
	require.Equal(t, StateFlat, trader.State())
	require.Nil(t, trader.Position())
	require.Equal(t, 1, trader.Metrics().TradeCount())

	// no tag for a position this run did not open
	require.Empty(t, recorder.tags())

	snapshots, err := wallet.Positions(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.Empty(t, snapshots)
}

// ---------------------
// Shutdown
// ---------------------

func TestTraderShutdownClosesPosition(t *testing.T) {
	f, _ := openLongFixture(t, nil)

	require.NoError(t, f.trader.Shutdown(context.Background()))
	require.Equal(t, StateStopping, f.trader.State())

	closed := f.recorder.closed()
	require.Len(t, closed, 1)
	require.Equal(t, string(risk.ExitManual), closed[0].Reason)

	tags := f.recorder.tags()
	require.Len(t, tags, 1)
	require.Equal(t, core.TagClosed, tags[0].Action)

	snapshots, err := f.wallet.Positions(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Empty(t, snapshots)

	// a second shutdown is a no-op
	require.NoError(t, f.trader.Shutdown(context.Background()))
	require.Len(t, f.recorder.closed(), 1)
}

func TestTraderShutdownLeavesPositionForRecovery(t *testing.T) {
	f, _ := openLongFixture(t, func(cfg *core.Config) {
		cfg.Risk.CloseOnStop = false
	})

	require.NoError(t, f.trader.Shutdown(context.Background()))
	require.Equal(t, StateStopping, f.trader.State())
	require.Empty(t, f.recorder.closed())

	// the deferred tag flushes as still open so the attempt is not lost
	tags := f.recorder.tags()
	require.Len(t, tags, 1)
	require.Equal(t, core.TagOpened, tags[0].Action)
	require.NotZero(t, tags[0].FillPrice)

	snapshots, err := f.wallet.Positions(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
}

// ---------------------
// Error policy
// ---------------------

func TestTraderHaltsAfterConsecutiveErrors(t *testing.T) {
	f := newTraderFixture(t, newVoters(core.SignalLong, 0.9), func(cfg *core.Config) {
		cfg.Breakers.MaxConsecutiveErrors = 3
	})
	tape := bullTape("BTCUSDT", testStart, 100, 64)
	f.drive(tape[:59]...)

	f.feeder.failTicker(errors.New("exchange 502"))
	f.drive(tape[59:62]...)
	f.feeder.failTicker(nil)

	// the gateway is healthy again but the halt latches: exits would
	// still run, new entries never do
	f.drive(tape[62:]...)
	require.Equal(t, StateFlat, f.trader.State())
	require.Empty(t, f.recorder.opened())

	snapshots, err := f.wallet.Positions(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Empty(t, snapshots)
}

func TestTraderPausesDuringGatewayBackoff(t *testing.T) {
	// sub-threshold voters keep the loop idle so the test sees only the
	// pause/resume transitions
	f := newTraderFixture(t, newVoters(core.SignalLong, 0.5), func(cfg *core.Config) {
		cfg.Breakers.ErrorMinBackoff = 7 * time.Minute
		cfg.Breakers.ErrorMaxBackoff = time.Hour
	})
	tape := bullTape("BTCUSDT", testStart, 100, 62)
	f.drive(tape[:60]...)
	require.Equal(t, StateFlat, f.trader.State())

	f.guard.Observe(f.clk.Now(), errors.New("429 too many requests"))

	f.drive(tape[60])
	require.Equal(t, StatePaused, f.trader.State())

	// the next candle lands beyond the backoff window
	f.drive(tape[61])
	require.Equal(t, StateFlat, f.trader.State())
}
