package core

import "time"

// Ticker is a point-in-time quote for a trading pair
type Ticker struct {
	Pair      string
	Last      float64
	Bid       float64
	Ask       float64
	Volume24h float64
	Time      time.Time
}

// SpreadPct returns the relative bid/ask spread
func (t Ticker) SpreadPct() float64 {
	if t.Bid <= 0 {
		return 0
	}
	return (t.Ask - t.Bid) / t.Bid
}

// Stale reports whether the quote is older than maxAge at the given instant
func (t Ticker) Stale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(t.Time) > maxAge
}

// PriceLevel is a single order book level
type PriceLevel struct {
	Price    float64
	Quantity float64
}

// OrderBook holds a depth snapshot for a trading pair
// Bids are sorted best (highest) first, asks best (lowest) first
type OrderBook struct {
	Pair string
	Bids []PriceLevel
	Asks []PriceLevel
	Time time.Time
}

// DepthQuote sums the quote-currency value of the top 'levels' entries
// on the given side of the book
func (b OrderBook) DepthQuote(side SideType, levels int) float64 {
	book := b.Bids
	if side == SideTypeSell {
		book = b.Asks
	}

	if levels > len(book) {
		levels = len(book)
	}

	var total float64
	for _, level := range book[:levels] {
		total += level.Price * level.Quantity
	}
	return total
}
