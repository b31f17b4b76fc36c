package core

import "time"

// PositionSide is the direction of an open position
type PositionSide string

const (
	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"
)

// Sign returns +1 for long positions and -1 for short positions
func (p PositionSide) Sign() float64 {
	if p == PositionSideShort {
		return -1
	}
	return 1
}

// Inverse returns the opposite position side
func (p PositionSide) Inverse() PositionSide {
	if p == PositionSideLong {
		return PositionSideShort
	}
	return PositionSideLong
}

// MarginMode selects how margin is allocated for a pair
type MarginMode string

const (
	MarginModeCross    MarginMode = "cross"
	MarginModeIsolated MarginMode = "isolated"
)

// PositionMode selects between one-way and hedge (dual-side) positions
type PositionMode string

const (
	PositionModeOneWay PositionMode = "one_way"
	PositionModeHedge  PositionMode = "hedge"
)

// Position is the single canonical record of an open position. It is owned
// and mutated exclusively by the risk manager; exchange payloads are
// translated into PositionSnapshot at the adapter boundary and never used
// directly as position state.
type Position struct {
	Pair       string
	Side       PositionSide
	Amount     float64
	EntryPrice float64
	EntryTime  time.Time
	EntryFee   float64
	Leverage   int

	StopLoss   float64
	TakeProfit float64

	// Trailing stop state
	TrailingActive bool
	HighestPrice   float64
	LowestPrice    float64

	// Dynamic take-profit state
	DynamicTPActive bool
	RecentPrices    []float64

	// Running extremes of net profit, in quote currency
	MaxProfit float64
	MaxLoss   float64

	Strategy string
	Reason   string
}

// Track updates the favourable/adverse price extremes with a new price
func (p *Position) Track(price float64) {
	if p.HighestPrice == 0 || price > p.HighestPrice {
		p.HighestPrice = price
	}
	if p.LowestPrice == 0 || price < p.LowestPrice {
		p.LowestPrice = price
	}
}

// PushPrice appends a price to the bounded recent-price window
func (p *Position) PushPrice(price float64, window int) {
	p.RecentPrices = append(p.RecentPrices, price)
	if len(p.RecentPrices) > window {
		p.RecentPrices = p.RecentPrices[len(p.RecentPrices)-window:]
	}
}

// MeanRecentPrice returns the average of the recent-price window
func (p Position) MeanRecentPrice() float64 {
	if len(p.RecentPrices) == 0 {
		return 0
	}

	var sum float64
	for _, price := range p.RecentPrices {
		sum += price
	}
	return sum / float64(len(p.RecentPrices))
}

// GrossProfit returns the signed profit at the given price before fees
func (p Position) GrossProfit(price float64) float64 {
	return (price - p.EntryPrice) * p.Amount * p.Side.Sign()
}

// NetProfit returns the profit at the given price after the entry fee and
// an estimated exit fee at the given rate
func (p Position) NetProfit(price, exitFeeRate float64) float64 {
	return p.GrossProfit(price) - p.EntryFee - price*p.Amount*exitFeeRate
}

// ProfitPct returns the profit relative to the position notional
func (p Position) ProfitPct(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return (price - p.EntryPrice) / p.EntryPrice * p.Side.Sign()
}

// Notional returns the position value at the given price in quote currency
func (p Position) Notional(price float64) float64 {
	return p.Amount * price
}

// HoldTime returns how long the position has been open
func (p Position) HoldTime(now time.Time) time.Duration {
	return now.Sub(p.EntryTime)
}

// PositionSnapshot is an exchange-reported position, produced by gateway
// adapters. It is the only shape exchange position payloads take inside
// the core.
type PositionSnapshot struct {
	Pair          string
	Side          PositionSide
	Amount        float64
	EntryPrice    float64
	MarkPrice     float64
	Leverage      int
	UnrealizedPnL float64
	UpdatedAt     time.Time
}
