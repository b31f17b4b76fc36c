package core

import "time"

// Event is implemented by every record published on the event feed
type Event interface {
	EventKind() string
}

// Event kinds as reported by EventKind, usable as subscription filters
const (
	EventTradeTag       = "trade_tag"
	EventPositionOpened = "position_opened"
	EventPositionClosed = "position_closed"
	EventBreakerTripped = "breaker_tripped"
	EventBreakerCleared = "breaker_cleared"
	EventGatewayBackoff = "gateway_backoff"
)

// TagAction is the final outcome of a signal attempt
type TagAction string

const (
	// TagRejected marks attempts stopped by a filter gate
	TagRejected TagAction = "rejected"
	// TagOpened marks attempts that opened a position still live at
	// shutdown
	TagOpened TagAction = "opened"
	// TagClosed marks attempts whose resulting position has closed
	TagClosed TagAction = "closed"
)

// GateResult records one filter gate's verdict inside a TradeTag
type GateResult struct {
	Gate   string
	Passed bool
	Reason string
}

// TradeTag is the append-only record of a single signal attempt: the
// aggregate signal, every gate verdict, and the trade outcome when one
// resulted. Exactly one tag is emitted per aggregated signal; for executed
// signals the emission is deferred until the position closes so the tag
// carries the full round trip.
type TradeTag struct {
	Time   time.Time
	Pair   string
	Signal AggregatedSignal
	Gates  []GateResult

	Action         TagAction
	RejectionStage string

	FillPrice float64
	ExitPrice float64
	PnL       float64
	HoldTime  time.Duration
}

func (TradeTag) EventKind() string { return EventTradeTag }

// Rejected reports whether the attempt was stopped by a gate
func (t TradeTag) Rejected() bool { return t.Action == TagRejected }

// PositionOpened is published when an open order fills
type PositionOpened struct {
	Time     time.Time
	Position Position
	Order    Order
}

func (PositionOpened) EventKind() string { return EventPositionOpened }

// PositionClosed is published when a position is fully closed
type PositionClosed struct {
	Time     time.Time
	Position Position
	PnL      float64
	PnLPct   float64
	Reason   string

	// MFE and MAE are the maximum favourable and adverse excursions in
	// quote currency over the position lifetime
	MFE      float64
	MAE      float64
	HoldTime time.Duration
}

func (PositionClosed) EventKind() string { return EventPositionClosed }

// BreakerTripped is published when a circuit breaker halts trading
type BreakerTripped struct {
	Time    time.Time
	Kind    string
	Reason  string
	ResetAt time.Time
}

func (BreakerTripped) EventKind() string { return EventBreakerTripped }

// BreakerCleared is published when a tripped breaker resets
type BreakerCleared struct {
	Time time.Time
	Kind string
}

func (BreakerCleared) EventKind() string { return EventBreakerCleared }

// GatewayBackoff is published when gateway errors pause exchange calls
type GatewayBackoff struct {
	Time     time.Time
	Exchange string
	Kind     ErrorKind
	Until    time.Time
}

func (GatewayBackoff) EventKind() string { return EventGatewayBackoff }
