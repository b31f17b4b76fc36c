package core

import (
	"fmt"
	"strconv"
	"time"
)

// CandleSubscriber receives candles from a data feed
type CandleSubscriber interface {
	OnCandle(Candle)
}

// Candle represents a trading candle with OHLCV data
type Candle struct {
	Pair      string
	Time      time.Time
	UpdatedAt time.Time
	Open      float64
	Close     float64
	Low       float64
	High      float64
	Volume    float64
	Complete  bool

	// Additional columns from CSV inputs
	Metadata map[string]float64
}

// IsEmpty checks if the candle contains no significant data
func (c Candle) IsEmpty() bool { return c.Pair == "" && c.Close == 0 && c.Open == 0 && c.Volume == 0 }

// Bullish reports whether the candle closed above its open
func (c Candle) Bullish() bool { return c.Close > c.Open }

// Bearish reports whether the candle closed below its open
func (c Candle) Bearish() bool { return c.Close < c.Open }

// ToSlice converts a candle to a string slice for serialization
// with the specified decimal precision
func (c Candle) ToSlice(precision int) []string {
	return []string{
		fmt.Sprintf("%d", c.Time.Unix()),
		strconv.FormatFloat(c.Open, 'f', precision, 64),
		strconv.FormatFloat(c.Close, 'f', precision, 64),
		strconv.FormatFloat(c.Low, 'f', precision, 64),
		strconv.FormatFloat(c.High, 'f', precision, 64),
		strconv.FormatFloat(c.Volume, 'f', precision, 64),
	}
}

// Less implements the Item interface for comparison in priority queue
func (c Candle) Less(j Item) bool {
	other := j.(Candle)

	// Primary sort by time
	diff := other.Time.Sub(c.Time)
	if diff != 0 {
		return diff > 0
	}

	// Secondary sort by update time
	diff = other.UpdatedAt.Sub(c.UpdatedAt)
	if diff != 0 {
		return diff > 0
	}

	// Tertiary sort by pair name
	return c.Pair < other.Pair
}
