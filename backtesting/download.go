// Package backtesting holds the tooling around simulated sessions,
// starting with the historical candle downloader that feeds CSV files
// into exchange.NewCSVFeed.
package backtesting

import (
	"context"
	"encoding/csv"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/xhit/go-str2duration/v2"

	"github.com/quorumtrade/quorum/core"
)

const batchSize = 500

var csvHeaders = []string{"time", "open", "close", "low", "high", "volume"}

// Downloader fetches historical candles from an exchange feed and writes
// them to CSV
type Downloader struct {
	exchange core.Feeder
	log      core.Logger
}

// NewDownloader creates a downloader over the given exchange feed
func NewDownloader(exchange core.Feeder, log core.Logger) Downloader {
	return Downloader{
		exchange: exchange,
		log:      log,
	}
}

// Parameters defines the time range for a download
type Parameters struct {
	Start time.Time
	End   time.Time
}

// Option configures download parameters
type Option func(*Parameters)

// WithInterval sets explicit start and end times
func WithInterval(start, end time.Time) Option {
	return func(parameters *Parameters) {
		parameters.Start = start
		parameters.End = end
	}
}

// WithDays sets the download period to the last n days
func WithDays(days int) Option {
	return func(parameters *Parameters) {
		parameters.Start = time.Now().AddDate(0, 0, -days)
		parameters.End = time.Now()
	}
}

// candleCount determines how many candles the range covers
func candleCount(start, end time.Time, timeframe string) (int, time.Duration, error) {
	totalDuration := end.Sub(start)
	interval, err := str2duration.ParseDuration(timeframe)
	if err != nil {
		return 0, 0, err
	}
	return int(totalDuration / interval), interval, nil
}

// Download fetches candle data from the exchange and saves it to a CSV file
func (d Downloader) Download(ctx context.Context, pair, timeframe, outputPath string, options ...Option) error {
	recordFile, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer recordFile.Close()

	parameters := defaultParameters()
	for _, option := range options {
		option(parameters)
	}
	normalizeTimeParameters(parameters)

	count, interval, err := candleCount(parameters.Start, parameters.End, timeframe)
	if err != nil {
		return err
	}
	count++

	d.log.Infof("Downloading %d candles of %s for %s", count, timeframe, pair)

	assetInfo, err := d.exchange.AssetsInfo(pair)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(recordFile)
	progressBar := progressbar.Default(int64(count))

	if err := writer.Write(csvHeaders); err != nil {
		return err
	}

	missingCandles, err := d.downloadCandleBatches(
		ctx,
		pair,
		timeframe,
		parameters.Start,
		parameters.End,
		interval,
		assetInfo.QuotePrecision,
		writer,
		progressBar,
	)
	if err != nil {
		return err
	}

	if err = progressBar.Close(); err != nil {
		d.log.Warnf("Failed to close progress bar: %s", err.Error())
	}

	if missingCandles > 0 {
		d.log.Warnf("%d missing candles", missingCandles)
	}

	writer.Flush()
	d.log.Info("Done!")
	return writer.Error()
}

// defaultParameters covers the last month
func defaultParameters() *Parameters {
	now := time.Now()
	return &Parameters{
		Start: now.AddDate(0, -1, 0),
		End:   now,
	}
}

// normalizeTimeParameters snaps the range to day boundaries and keeps the
// end out of the future
func normalizeTimeParameters(parameters *Parameters) {
	parameters.Start = time.Date(
		parameters.Start.Year(),
		parameters.Start.Month(),
		parameters.Start.Day(),
		0, 0, 0, 0, time.UTC,
	)

	now := time.Now()
	if now.Sub(parameters.End) > 0 {
		parameters.End = time.Date(
			parameters.End.Year(),
			parameters.End.Month(),
			parameters.End.Day(),
			0, 0, 0, 0, time.UTC,
		)
	} else {
		parameters.End = now
	}
}

// downloadCandleBatches pulls candles in exchange-sized batches and streams
// them to the CSV writer
func (d Downloader) downloadCandleBatches(
	ctx context.Context,
	pair string,
	timeframe string,
	start time.Time,
	end time.Time,
	interval time.Duration,
	precision int,
	writer *csv.Writer,
	progressBar *progressbar.ProgressBar,
) (int, error) {
	missingCandles := 0

	for batchStart := start; batchStart.Before(end); batchStart = batchStart.Add(interval * batchSize) {
		batchEnd := batchEndTime(batchStart, interval, end)
		isLastBatch := batchEnd.Equal(end)

		candles, err := d.exchange.CandlesByPeriod(ctx, pair, timeframe, batchStart, batchEnd)
		if err != nil {
			return missingCandles, err
		}

		if err := writeCandles(writer, candles, precision); err != nil {
			return missingCandles, err
		}

		if !isLastBatch && len(candles) < batchSize {
			missingCandles += batchSize - len(candles)
		}

		if err := progressBar.Add(len(candles)); err != nil {
			d.log.Warnf("Failed to update progress bar: %s", err.Error())
		}
	}

	return missingCandles, nil
}

// batchEndTime determines the end time for one batch
func batchEndTime(batchStart time.Time, interval time.Duration, totalEnd time.Time) time.Time {
	potentialEnd := batchStart.Add(interval * batchSize)

	// Stay one second short of the next batch start to avoid overlap
	if potentialEnd.Before(totalEnd) {
		return potentialEnd.Add(-1 * time.Second)
	}

	return totalEnd
}

// writeCandles writes a batch of candles to the CSV writer
func writeCandles(writer *csv.Writer, candles []core.Candle, precision int) error {
	for _, candle := range candles {
		if err := writer.Write(candle.ToSlice(precision)); err != nil {
			return err
		}
	}
	return nil
}
