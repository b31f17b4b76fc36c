package order

import (
	"time"

	"github.com/quorumtrade/quorum/core"
)

// TradeResult is the realized outcome of a reduce fill
type TradeResult struct {
	Pair          string
	Side          core.PositionSide
	Quantity      float64
	ProfitPercent float64
	ProfitValue   float64
	Duration      time.Duration
	CreatedAt     time.Time
}

// ledgerPosition is one position leg as seen from the fill stream. It
// exists for per-trade accounting; the risk manager owns the canonical
// position lifecycle.
type ledgerPosition struct {
	Side      core.PositionSide
	CreatedAt time.Time
	AvgPrice  float64
	Quantity  float64
}

// legFor resolves which position leg a fill acts on. Entries act on
// their own side; reduce-only fills act on the opposite side.
func legFor(side core.SideType, reduceOnly bool) core.PositionSide {
	if side == core.SideTypeBuy {
		if reduceOnly {
			return core.PositionSideShort
		}
		return core.PositionSideLong
	}
	if reduceOnly {
		return core.PositionSideLong
	}
	return core.PositionSideShort
}

// increase grows the leg at a weighted average entry price
func (p *ledgerPosition) increase(order *core.Order) {
	total := p.AvgPrice*p.Quantity + order.Price*order.Quantity
	p.Quantity += order.Quantity
	if p.Quantity > 0 {
		p.AvgPrice = total / p.Quantity
	}
}

// reduce realizes profit on the closed portion and reports whether the
// leg is now flat. Quantities beyond the leg size are clamped; a venue
// never fills a reduce-only order past the position.
func (p *ledgerPosition) reduce(order *core.Order) (result *TradeResult, finished bool) {
	quantity := order.Quantity
	if quantity > p.Quantity {
		quantity = p.Quantity
	}

	profitValue := (order.Price - p.AvgPrice) * quantity * p.Side.Sign()
	profitPercent := 0.0
	if p.AvgPrice > 0 {
		profitPercent = profitValue / (p.AvgPrice * quantity)
	}

	order.RefPrice = p.AvgPrice
	order.Profit = profitPercent
	order.ProfitValue = profitValue

	p.Quantity -= quantity

	return &TradeResult{
		Pair:          order.Pair,
		Side:          p.Side,
		Quantity:      quantity,
		ProfitPercent: profitPercent,
		ProfitValue:   profitValue,
		Duration:      order.CreatedAt.Sub(p.CreatedAt),
		CreatedAt:     order.CreatedAt,
	}, p.Quantity <= 1e-12
}
