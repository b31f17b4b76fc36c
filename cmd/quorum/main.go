package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/quorumtrade/quorum"
	"github.com/quorumtrade/quorum/backtesting"
	"github.com/quorumtrade/quorum/core"
	"github.com/quorumtrade/quorum/exchange/binance"
)

const dateLayout = "2006-01-02"

// Command line flags
var (
	pair       string
	days       int
	startDate  string
	endDate    string
	timeframe  string
	outputFile string
	useTestnet bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "quorum",
		Short:   "Utilities for the quorum trading bot",
		Version: "1.0.0",
	}

	rootCmd.AddCommand(buildDownloadCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildDownloadCmd() *cobra.Command {
	downloadCmd := &cobra.Command{
		Use:   "download",
		Short: "Download historical candles to CSV for backtesting",
		RunE:  runDownload,
	}

	downloadCmd.Flags().StringVarP(&pair, "pair", "p", "", "Trading pair (e.g. BTCUSDT)")
	downloadCmd.Flags().IntVarP(&days, "days", "d", 0, "Number of days to download (default 30 days)")
	downloadCmd.Flags().StringVarP(&startDate, "start", "s", "", "Start date (e.g. 2025-12-01)")
	downloadCmd.Flags().StringVarP(&endDate, "end", "e", "", "End date (e.g. 2025-12-31)")
	downloadCmd.Flags().StringVarP(&timeframe, "timeframe", "t", "", "Timeframe (e.g. 1h)")
	downloadCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file path (e.g. ./btc.csv)")
	downloadCmd.Flags().BoolVarP(&useTestnet, "testnet", "n", false, "Use the futures testnet")

	downloadCmd.MarkFlagRequired("pair")
	downloadCmd.MarkFlagRequired("timeframe")
	downloadCmd.MarkFlagRequired("output")

	return downloadCmd
}

func runDownload(cmd *cobra.Command, args []string) error {
	exc, err := initializeExchange(cmd)
	if err != nil {
		return err
	}

	options, err := buildDownloadOptions()
	if err != nil {
		return err
	}

	return backtesting.NewDownloader(exc, quorum.DefaultLog).Download(
		cmd.Context(),
		pair,
		timeframe,
		outputFile,
		options...,
	)
}

func initializeExchange(cmd *cobra.Command) (core.Feeder, error) {
	var options []binance.FuturesOption
	if useTestnet {
		options = append(options, binance.WithTestnet())
	}

	return binance.NewFutures(cmd.Context(), quorum.DefaultLog, options...)
}

func buildDownloadOptions() ([]backtesting.Option, error) {
	var options []backtesting.Option

	if days > 0 {
		options = append(options, backtesting.WithDays(days))
	}

	if startDate != "" || endDate != "" {
		if startDate == "" || endDate == "" {
			return nil, fmt.Errorf("start and end dates must be provided together")
		}

		start, err := time.Parse(dateLayout, startDate)
		if err != nil {
			return nil, fmt.Errorf("invalid start date format: %w", err)
		}

		end, err := time.Parse(dateLayout, endDate)
		if err != nil {
			return nil, fmt.Errorf("invalid end date format: %w", err)
		}

		options = append(options, backtesting.WithInterval(start, end))
	}

	return options, nil
}
