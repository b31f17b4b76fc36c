package order

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/quorumtrade/quorum/exchange"
	"github.com/quorumtrade/quorum/metric"
)

// TradeSummary collects realized trade statistics for one pair
type TradeSummary struct {
	Pair             string
	WinLong          []float64
	WinLongPercent   []float64
	WinShort         []float64
	WinShortPercent  []float64
	LoseLong         []float64
	LoseLongPercent  []float64
	LoseShort        []float64
	LoseShortPercent []float64
	Volume           float64
}

// Win returns all winning trades (both long and short)
func (s TradeSummary) Win() []float64 {
	return append(s.WinLong, s.WinShort...)
}

// WinPercent returns the percentage gains of all winning trades
func (s TradeSummary) WinPercent() []float64 {
	return append(s.WinLongPercent, s.WinShortPercent...)
}

// Lose returns all losing trades (both long and short)
func (s TradeSummary) Lose() []float64 {
	return append(s.LoseLong, s.LoseShort...)
}

// LosePercent returns the percentage losses of all losing trades
func (s TradeSummary) LosePercent() []float64 {
	return append(s.LoseLongPercent, s.LoseShortPercent...)
}

// Results returns every realized trade profit in quote currency
func (s TradeSummary) Results() []float64 {
	return append(s.Win(), s.Lose()...)
}

// Profit is the total realized profit across all trades
func (s TradeSummary) Profit() float64 {
	return floats.Sum(s.Results())
}

// WinRate is the fraction of trades that closed at or above breakeven
func (s TradeSummary) WinRate() float64 {
	return metric.WinRate(s.Results())
}

// Payoff is the ratio of average win to average loss
func (s TradeSummary) Payoff() float64 {
	return metric.Payoff(s.Results())
}

// ProfitFactor is the ratio of gross profits to gross losses
func (s TradeSummary) ProfitFactor() float64 {
	return metric.ProfitFactor(s.Results())
}

// Expectancy is the mean expected profit per trade
func (s TradeSummary) Expectancy() float64 {
	return metric.Expectancy(s.Results())
}

// SQN is the system quality number, sqrt(n) * mean / stddev
func (s TradeSummary) SQN() float64 {
	results := s.Results()
	if len(results) == 0 {
		return 0
	}

	mean, std := stat.MeanStdDev(results, nil)
	if std == 0 || math.IsNaN(std) {
		return 0
	}

	return math.Sqrt(float64(len(results))) * mean / std
}

// String formats the trade summary as a text table
func (s TradeSummary) String() string {
	tableString := &strings.Builder{}
	table := tablewriter.NewWriter(tableString)

	_, quote := exchange.SplitAssetQuote(s.Pair)

	data := [][]string{
		{"Coin", s.Pair},
		{"Trades", strconv.Itoa(len(s.Results()))},
		{"Win", strconv.Itoa(len(s.Win()))},
		{"Loss", strconv.Itoa(len(s.Lose()))},
		{"% Win", fmt.Sprintf("%.1f", s.WinRate()*100)},
		{"Payoff", fmt.Sprintf("%.2f", s.Payoff())},
		{"Pr.Fact", fmt.Sprintf("%.2f", s.ProfitFactor())},
		{"Expect", fmt.Sprintf("%.4f %s", s.Expectancy(), quote)},
		{"SQN", fmt.Sprintf("%.2f", s.SQN())},
		{"Profit", fmt.Sprintf("%.4f %s", s.Profit(), quote)},
		{"Volume", fmt.Sprintf("%.4f %s", s.Volume, quote)},
	}

	table.AppendBulk(data)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	table.Render()

	return tableString.String()
}

// SaveReturns writes the per-trade return percentages to a file
func (s TradeSummary) SaveReturns(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	for _, value := range s.WinPercent() {
		if _, err = file.WriteString(fmt.Sprintf("%.4f\n", value)); err != nil {
			return err
		}
	}

	for _, value := range s.LosePercent() {
		if _, err = file.WriteString(fmt.Sprintf("%.4f\n", value)); err != nil {
			return err
		}
	}

	return nil
}
