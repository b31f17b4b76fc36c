package core

import "time"

// SignalSide is the action recommended by a strategy
type SignalSide string

const (
	SignalLong       SignalSide = "LONG"
	SignalShort      SignalSide = "SHORT"
	SignalCloseLong  SignalSide = "CLOSE_LONG"
	SignalCloseShort SignalSide = "CLOSE_SHORT"
	SignalHold       SignalSide = "HOLD"
)

// IsEntry reports whether the side opens a new position
func (s SignalSide) IsEntry() bool {
	return s == SignalLong || s == SignalShort
}

// IsExit reports whether the side closes an existing position
func (s SignalSide) IsExit() bool {
	return s == SignalCloseLong || s == SignalCloseShort
}

// OrderSide maps the signal side to the order side that realizes it
func (s SignalSide) OrderSide() SideType {
	switch s {
	case SignalLong, SignalCloseShort:
		return SideTypeBuy
	default:
		return SideTypeSell
	}
}

// Signal is the pure output of a single strategy evaluation
// Strategies never place orders; they only describe intent
type Signal struct {
	Strategy   string
	Side       SignalSide
	Strength   float64
	Confidence float64
	Reason     string
	Snapshot   IndicatorSnapshot
	Time       time.Time
}

// Hold is a convenience constructor for a no-action signal
func Hold(strategy, reason string) Signal {
	return Signal{Strategy: strategy, Side: SignalHold, Reason: reason}
}

// AggregatedSignal is the ensemble consensus over all strategy signals
type AggregatedSignal struct {
	Side       SignalSide
	Strength   float64
	Confidence float64

	// Agreement is the fraction of active strategies that voted for Side
	Agreement    float64
	Contributors []string
	Snapshot     IndicatorSnapshot
	Time         time.Time
}
