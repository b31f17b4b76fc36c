package core

import (
	"context"
	"time"
)

// Exchange is the full gateway contract the trading core consumes.
// Adapters establish connectivity at construction and surface loss of
// connectivity as classified errors; venue differences (symbol formats,
// position-mode keywords, reduce-only flags) never leak past the adapter.
type Exchange interface {
	Broker
	Feeder
}

// Feeder provides market data for a trading pair
type Feeder interface {
	AssetsInfo(pair string) (AssetInfo, error)
	Ticker(ctx context.Context, pair string) (Ticker, error)
	LastQuote(ctx context.Context, pair string) (float64, error)
	OrderBook(ctx context.Context, pair string, depth int) (OrderBook, error)
	CandlesByPeriod(ctx context.Context, pair, period string, start, end time.Time) ([]Candle, error)
	CandlesByLimit(ctx context.Context, pair, period string, limit int) ([]Candle, error)
	CandlesSubscription(ctx context.Context, pair, timeframe string) (chan Candle, chan error)
}

// Broker executes account and order operations
type Broker interface {
	Account(ctx context.Context) (Account, error)
	Positions(ctx context.Context, pair string) ([]PositionSnapshot, error)
	Order(ctx context.Context, pair string, id int64) (Order, error)
	CreateOrderMarket(ctx context.Context, side SideType, pair string, size float64, reduceOnly bool) (Order, error)
	CreateOrderLimit(ctx context.Context, side SideType, pair string, size, limit float64, reduceOnly, postOnly bool) (Order, error)
	Cancel(ctx context.Context, order Order) error
	SetLeverage(ctx context.Context, pair string, leverage int) error
	SetMarginMode(ctx context.Context, pair string, mode MarginMode) error
	SetPositionMode(ctx context.Context, mode PositionMode) error
}

// MarketView is the read-only market state handed to strategies: the
// primary-timeframe dataframe with its indicator snapshot, plus an optional
// higher timeframe for confirmation logic
type MarketView struct {
	Primary  *Dataframe
	Snapshot IndicatorSnapshot

	Higher         *Dataframe
	HigherSnapshot *IndicatorSnapshot
}

// HasHigher reports whether a higher-timeframe view is available
func (v *MarketView) HasHigher() bool {
	return v.Higher != nil && v.HigherSnapshot != nil
}

// Strategy is a pure signal generator. Evaluate must not mutate the view
// and must return a Hold signal when history is insufficient.
type Strategy interface {
	// Name identifies the strategy in signals, tags and logs
	Name() string
	// WarmupPeriod is the number of closed candles required before
	// Evaluate produces meaningful output
	WarmupPeriod() int
	// Evaluate derives a signal from the current market view
	Evaluate(view *MarketView) Signal
}

// Features is the fixed feature vector handed to trade-quality scorers
type Features struct {
	SignalStrength float64
	Agreement      float64
	RSI            float64
	ADX            float64
	ATRPct         float64
	PercentB       float64
	VolumeRatio    float64
	PriceChange10  float64
	Volatility10   float64
	RegimeCode     float64
}

// Vector returns the features in their canonical order
func (f Features) Vector() []float64 {
	return []float64{
		f.SignalStrength,
		f.Agreement,
		f.RSI,
		f.ADX,
		f.ATRPct,
		f.PercentB,
		f.VolumeRatio,
		f.PriceChange10,
		f.Volatility10,
		f.RegimeCode,
	}
}

// Scorer grades a prospective trade in [0,1] from the feature vector.
// Implementations may load lazily; calls must respect the context deadline.
type Scorer interface {
	Score(ctx context.Context, features Features) (float64, error)
}

// AdviceRequest is the market context handed to a policy advisor
type AdviceRequest struct {
	Pair string

	// CandleHash and Fingerprint identify the decision context for
	// caching; identical inputs must not trigger a second advisor call
	// within the cache TTL
	CandleHash  string
	Fingerprint string

	Signal   AggregatedSignal
	Regime   string
	Position *Position
	DailyPnL float64
	WinRate  float64
}

// Advice is a bounded parameter-adjustment suggestion. The risk manager
// clamps every field to configured bounds and owns the final numbers; an
// advisor can never force an order.
type Advice struct {
	Approve bool
	Reason  string

	// Optional adjustments; nil means leave the parameter unchanged
	StopLossPct        *float64
	TakeProfitPct      *float64
	PositionMultiplier *float64

	RiskMode  string
	ExpiresAt time.Time
}

// Advisor is an optional policy layer consulted before opening a position
type Advisor interface {
	Advise(ctx context.Context, req AdviceRequest) (Advice, error)
}
