// Package risk owns everything that turns a signal into money at stake:
// position sizing, stop placement, exit evaluation, trade statistics and
// the circuit breakers. All mutation happens on the bot goroutine.
package risk

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// minKellySample is the number of closed trades required before the
// rolling win rate drives the Kelly fraction; below it a neutral quarter
// Kelly applies
const minKellySample = 10

const kellyFloor = 0.1

// Metrics accumulates closed-trade statistics for sizing, adaptive
// thresholds and the circuit breakers. Single-writer, not safe for
// concurrent mutation.
type Metrics struct {
	wins   int
	losses int

	consecutiveWins   int
	consecutiveLosses int

	grossWins   float64
	grossLosses float64

	totalPnL float64
	pnls     []float64

	day             time.Time
	dailyPnL        float64
	startingBalance float64
}

// NewMetrics starts a fresh tracker with the balance the trading day
// opened at
func NewMetrics(startingBalance float64, now time.Time) *Metrics {
	return &Metrics{
		startingBalance: startingBalance,
		day:             dayOf(now),
	}
}

// RecordTrade folds one closed trade into the statistics. Crossing a UTC
// day boundary resets the daily accumulators first.
func (m *Metrics) RecordTrade(pnl float64, balance float64, closedAt time.Time) {
	m.Rollover(closedAt, balance)

	m.totalPnL += pnl
	m.dailyPnL += pnl
	m.pnls = append(m.pnls, pnl)

	if pnl >= 0 {
		m.wins++
		m.grossWins += pnl
		m.consecutiveWins++
		m.consecutiveLosses = 0
		return
	}

	m.losses++
	m.grossLosses += -pnl
	m.consecutiveLosses++
	m.consecutiveWins = 0
}

// Rollover resets the daily accumulators when a new UTC day has started.
// The given balance becomes the new day's starting balance.
func (m *Metrics) Rollover(now time.Time, balance float64) {
	day := dayOf(now)
	if day.Equal(m.day) {
		return
	}
	m.day = day
	m.dailyPnL = 0
	if balance > 0 {
		m.startingBalance = balance
	}
}

// TradeCount returns the number of closed trades recorded
func (m *Metrics) TradeCount() int { return m.wins + m.losses }

// WinRate returns wins over closed trades, zero before the first trade
func (m *Metrics) WinRate() float64 {
	total := m.TradeCount()
	if total == 0 {
		return 0
	}
	return float64(m.wins) / float64(total)
}

// AvgWin returns the mean winning trade in quote currency
func (m *Metrics) AvgWin() float64 {
	if m.wins == 0 {
		return 0
	}
	return m.grossWins / float64(m.wins)
}

// AvgLoss returns the mean losing trade as a positive number
func (m *Metrics) AvgLoss() float64 {
	if m.losses == 0 {
		return 0
	}
	return m.grossLosses / float64(m.losses)
}

// Payoff returns avg win over avg loss
func (m *Metrics) Payoff() float64 {
	avgLoss := m.AvgLoss()
	if avgLoss == 0 {
		return 0
	}
	return m.AvgWin() / avgLoss
}

// ConsecutiveLosses returns the current losing streak length
func (m *Metrics) ConsecutiveLosses() int { return m.consecutiveLosses }

// ConsecutiveWins returns the current winning streak length
func (m *Metrics) ConsecutiveWins() int { return m.consecutiveWins }

// TotalPnL returns the lifetime realised profit
func (m *Metrics) TotalPnL() float64 { return m.totalPnL }

// DailyPnL returns the realised profit since the UTC day boundary
func (m *Metrics) DailyPnL() float64 { return m.dailyPnL }

// DailyReturnPct returns the daily profit relative to the day's starting
// balance
func (m *Metrics) DailyReturnPct() float64 {
	if m.startingBalance <= 0 {
		return 0
	}
	return m.dailyPnL / m.startingBalance
}

// Kelly derives the Kelly fraction from the rolling win rate and payoff
// ratio, clipped to [0.1, cap]. With too small a sample it returns the
// neutral quarter-Kelly prior.
func (m *Metrics) Kelly(cap float64) float64 {
	if cap <= 0 {
		cap = 0.6
	}

	if m.TradeCount() < minKellySample {
		return 0.25
	}

	payoff := m.Payoff()
	if payoff <= 0 {
		return kellyFloor
	}

	w := m.WinRate()
	fraction := w - (1-w)/payoff

	if fraction < kellyFloor {
		return kellyFloor
	}
	if fraction > cap {
		return cap
	}
	return fraction
}

// RealizedVolatility returns the standard deviation of the last n trade
// returns relative to the starting balance
func (m *Metrics) RealizedVolatility(n int) float64 {
	if len(m.pnls) < 2 || m.startingBalance <= 0 {
		return 0
	}

	start := len(m.pnls) - n
	if start < 0 {
		start = 0
	}

	returns := make([]float64, 0, n)
	for _, pnl := range m.pnls[start:] {
		returns = append(returns, pnl/m.startingBalance)
	}
	return stat.StdDev(returns, nil)
}

// PnLs returns a copy of the recorded trade results
func (m *Metrics) PnLs() []float64 {
	out := make([]float64, len(m.pnls))
	copy(out, m.pnls)
	return out
}

func dayOf(t time.Time) time.Time {
	y, mo, d := t.UTC().Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

// NextDayBoundary returns the next UTC midnight after the given instant
func NextDayBoundary(now time.Time) time.Time {
	return dayOf(now).Add(24 * time.Hour)
}
