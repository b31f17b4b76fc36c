package order

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testSummary() TradeSummary {
	return TradeSummary{
		Pair:             "BTCUSDT",
		WinLong:          []float64{10, 20},
		WinLongPercent:   []float64{0.1, 0.2},
		LoseShort:        []float64{-5},
		LoseShortPercent: []float64{-0.05},
		Volume:           1000,
	}
}

func TestTradeSummaryStats(t *testing.T) {
	summary := testSummary()

	require.InDelta(t, 25, summary.Profit(), 1e-9)
	require.InDelta(t, 2.0/3.0, summary.WinRate(), 1e-9)
	require.InDelta(t, 3, summary.Payoff(), 1e-9)
	require.InDelta(t, 6, summary.ProfitFactor(), 1e-9)
	require.InDelta(t, 25.0/3.0, summary.Expectancy(), 1e-9)
	require.InDelta(t, 1.147, summary.SQN(), 0.01)
}

func TestTradeSummaryString(t *testing.T) {
	rendered := testSummary().String()

	require.True(t, strings.Contains(rendered, "BTCUSDT"))
	require.True(t, strings.Contains(rendered, "USDT"))
	require.True(t, strings.Contains(rendered, "Trades"))
}

func TestTradeSummarySaveReturns(t *testing.T) {
	file := filepath.Join(t.TempDir(), "returns.txt")

	require.NoError(t, testSummary().SaveReturns(file))

	content, err := os.ReadFile(file)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "0.1000", lines[0])
}
