package quorum

import (
	"bytes"
	"fmt"
	"os"
	"strconv"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/olekukonko/tablewriter"

	"github.com/quorumtrade/quorum/metric"
)

// Summary prints the closed-trade statistics, a return histogram and
// bootstrapped confidence intervals to stdout. The raw numbers stay
// available through bot.Controller().Results.
func (bot *Bot) Summary() {
	var (
		total  float64
		wins   int
		loses  int
		volume float64
		sqn    float64
	)

	buffer := bytes.NewBuffer(nil)
	table := tablewriter.NewWriter(buffer)
	table.SetHeader([]string{"Pair", "Trades", "Win", "Loss", "% Win", "Payoff", "Pr Fact.", "SQN", "Profit", "Volume"})
	table.SetFooterAlignment(tablewriter.ALIGN_RIGHT)
	avgPayoff := 0.0
	avgProfitFactor := 0.0

	returns := make([]float64, 0)
	for _, summary := range bot.orderController.Results {
		trades := len(summary.Win()) + len(summary.Lose())
		if trades == 0 {
			continue
		}

		avgPayoff += summary.Payoff() * float64(trades)
		avgProfitFactor += summary.ProfitFactor() * float64(trades)
		table.Append([]string{
			summary.Pair,
			strconv.Itoa(trades),
			strconv.Itoa(len(summary.Win())),
			strconv.Itoa(len(summary.Lose())),
			fmt.Sprintf("%.1f %%", float64(len(summary.Win()))/float64(trades)*100),
			fmt.Sprintf("%.3f", summary.Payoff()),
			fmt.Sprintf("%.3f", summary.ProfitFactor()),
			fmt.Sprintf("%.1f", summary.SQN()),
			fmt.Sprintf("%.2f", summary.Profit()),
			fmt.Sprintf("%.2f", summary.Volume),
		})
		total += summary.Profit()
		sqn += summary.SQN()
		wins += len(summary.Win())
		loses += len(summary.Lose())
		volume += summary.Volume

		returns = append(returns, summary.WinPercent()...)
		returns = append(returns, summary.LosePercent()...)
	}

	if wins+loses == 0 {
		fmt.Println("no closed trades to summarise")
		return
	}

	table.SetFooter([]string{
		"TOTAL",
		strconv.Itoa(wins + loses),
		strconv.Itoa(wins),
		strconv.Itoa(loses),
		fmt.Sprintf("%.1f %%", float64(wins)/float64(wins+loses)*100),
		fmt.Sprintf("%.3f", avgPayoff/float64(wins+loses)),
		fmt.Sprintf("%.3f", avgProfitFactor/float64(wins+loses)),
		fmt.Sprintf("%.1f", sqn/float64(len(bot.orderController.Results))),
		fmt.Sprintf("%.2f", total),
		fmt.Sprintf("%.2f", volume),
	})
	table.Render()

	fmt.Println(buffer.String())
	fmt.Println("------ RETURN -------")
	returnsPercent := make([]float64, len(returns))
	for i, p := range returns {
		returnsPercent[i] = p * 100
	}
	hist := histogram.Hist(15, returnsPercent)
	if err := histogram.Fprint(os.Stdout, hist, histogram.Linear(10)); err != nil {
		bot.log.Warnf("render histogram fail: %v", err)
	}
	fmt.Println()

	fmt.Println("------ CONFIDENCE INTERVAL (95%) -------")
	for pair, summary := range bot.orderController.Results {
		fmt.Printf("| %s |\n", pair)
		pairReturns := append(summary.WinPercent(), summary.LosePercent()...)
		returnsInterval := metric.Bootstrap(pairReturns, metric.Mean, 10000, 0.95)
		payoffInterval := metric.Bootstrap(pairReturns, metric.Payoff, 10000, 0.95)
		profitFactorInterval := metric.Bootstrap(pairReturns, metric.ProfitFactor, 10000, 0.95)

		fmt.Printf("RETURN:      %.2f%% (%.2f%% ~ %.2f%%)\n",
			returnsInterval.Mean*100, returnsInterval.Lower*100, returnsInterval.Upper*100)
		fmt.Printf("PAYOFF:      %.2f (%.2f ~ %.2f)\n",
			payoffInterval.Mean, payoffInterval.Lower, payoffInterval.Upper)
		fmt.Printf("PROF.FACTOR: %.2f (%.2f ~ %.2f)\n",
			profitFactorInterval.Mean, profitFactorInterval.Lower, profitFactorInterval.Upper)
	}

	fmt.Println()

	if bot.paperWallet != nil {
		bot.paperWallet.Summary()
	}
}

// SaveReturns writes the per-trade returns of every pair to CSV files in
// outputDir
func (bot *Bot) SaveReturns(outputDir string) error {
	for _, summary := range bot.orderController.Results {
		outputFile := fmt.Sprintf("%s/%s.csv", outputDir, summary.Pair)
		if err := summary.SaveReturns(outputFile); err != nil {
			return err
		}
	}
	return nil
}
