package exchange

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/quorumtrade/quorum/core"
	"github.com/samber/lo"
	"github.com/xhit/go-str2duration/v2"
)

// ---------------------
// Constants and Errors
// ---------------------

var (
	// ErrInsufficientData is returned when there is not enough data to fulfill a request
	ErrInsufficientData = errors.New("insufficient data")

	// defaultHeaderMap defines the standard CSV column mapping
	defaultHeaderMap = map[string]int{
		"time": 0, "open": 1, "close": 2, "low": 3, "high": 4, "volume": 5,
	}
)

// defaultSyntheticSpread is the relative bid/ask spread used for pairs
// that do not set one. CSV files carry no book data, so tickers and
// order books are synthesized around the current candle close.
const defaultSyntheticSpread = 0.0002

// ---------------------
// Types
// ---------------------

// PairFeed represents data for a specific trading pair
type PairFeed struct {
	Pair      string
	File      string
	Timeframe string

	// SpreadPct is the synthetic relative spread used for Ticker and
	// OrderBook. Zero selects the package default.
	SpreadPct float64
}

// CSVFeed represents a data feed from CSV files
type CSVFeed struct {
	Feeds               map[string]PairFeed
	CandlePairTimeFrame map[string][]core.Candle

	mu      sync.RWMutex
	current map[string]core.Candle
}

// ---------------------
// Constructor
// ---------------------

// NewCSVFeed creates a new CSV feed and resamples data to the target timeframe
func NewCSVFeed(targetTimeframe string, feeds ...PairFeed) (*CSVFeed, error) {
	csvFeed := &CSVFeed{
		Feeds:               make(map[string]PairFeed),
		CandlePairTimeFrame: make(map[string][]core.Candle),
		current:             make(map[string]core.Candle),
	}

	for _, feed := range feeds {
		csvFeed.Feeds[feed.Pair] = feed

		candles, err := readCandlesFromCSV(feed)
		if err != nil {
			return nil, err
		}

		sourceKey := csvFeed.feedTimeframeKey(feed.Pair, feed.Timeframe)
		csvFeed.CandlePairTimeFrame[sourceKey] = candles

		if err := csvFeed.resample(feed.Pair, feed.Timeframe, targetTimeframe); err != nil {
			return nil, err
		}
	}

	return csvFeed, nil
}

// ---------------------
// CSV Processing
// ---------------------

// readCandlesFromCSV reads and processes a CSV file to create candles
func readCandlesFromCSV(feed PairFeed) ([]core.Candle, error) {
	csvFile, err := os.Open(feed.File)
	if err != nil {
		return nil, err
	}
	defer csvFile.Close()

	csvLines, err := csv.NewReader(csvFile).ReadAll()
	if err != nil {
		return nil, err
	}

	if len(csvLines) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrInsufficientData, feed.File)
	}

	headerMap, additionalHeaders, hasCustomHeaders := parseHeaders(csvLines[0])
	if hasCustomHeaders {
		csvLines = csvLines[1:]
	}

	candles := make([]core.Candle, 0, len(csvLines))
	for _, line := range csvLines {
		candle, err := parseCandleFromLine(line, headerMap, additionalHeaders, hasCustomHeaders, feed.Pair)
		if err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}

	return candles, nil
}

// parseHeaders analyzes CSV headers and returns an index map
func parseHeaders(headers []string) (headerMap map[string]int, additional []string, hasCustomHeaders bool) {
	// A numeric first cell means the file has no header row
	if _, err := strconv.Atoi(headers[0]); err == nil {
		return defaultHeaderMap, nil, false
	}

	headerMap = make(map[string]int)
	for index, header := range headers {
		headerMap[header] = index
		if _, exists := defaultHeaderMap[header]; !exists {
			additional = append(additional, header)
		}
	}

	return headerMap, additional, true
}

// parseCandleFromLine parses a CSV line and creates a candle
func parseCandleFromLine(line []string, headerMap map[string]int, additionalHeaders []string, hasCustomHeaders bool, pair string) (core.Candle, error) {
	timestamp, err := strconv.Atoi(line[headerMap["time"]])
	if err != nil {
		return core.Candle{}, err
	}

	candle := core.Candle{
		Time:      time.Unix(int64(timestamp), 0).UTC(),
		UpdatedAt: time.Unix(int64(timestamp), 0).UTC(),
		Pair:      pair,
		Complete:  true,
	}

	if candle.Open, err = strconv.ParseFloat(line[headerMap["open"]], 64); err != nil {
		return core.Candle{}, err
	}

	if candle.Close, err = strconv.ParseFloat(line[headerMap["close"]], 64); err != nil {
		return core.Candle{}, err
	}

	if candle.Low, err = strconv.ParseFloat(line[headerMap["low"]], 64); err != nil {
		return core.Candle{}, err
	}

	if candle.High, err = strconv.ParseFloat(line[headerMap["high"]], 64); err != nil {
		return core.Candle{}, err
	}

	if candle.Volume, err = strconv.ParseFloat(line[headerMap["volume"]], 64); err != nil {
		return core.Candle{}, err
	}

	if hasCustomHeaders {
		candle.Metadata = make(map[string]float64, len(additionalHeaders))
		for _, header := range additionalHeaders {
			value, err := strconv.ParseFloat(line[headerMap[header]], 64)
			if err != nil {
				return core.Candle{}, err
			}
			candle.Metadata[header] = value
		}
	}

	return candle, nil
}

// ---------------------
// Timeframe Handling
// ---------------------

// isFistCandlePeriod checks if a candle is the first in a period
func isFistCandlePeriod(t time.Time, fromTimeframe, targetTimeframe string) (bool, error) {
	fromDuration, err := str2duration.ParseDuration(fromTimeframe)
	if err != nil {
		return false, err
	}

	prev := t.Add(-fromDuration).UTC()
	return isLastCandlePeriod(prev, fromTimeframe, targetTimeframe)
}

// isLastCandlePeriod checks if a candle is the last in a period
func isLastCandlePeriod(t time.Time, fromTimeframe, targetTimeframe string) (bool, error) {
	if fromTimeframe == targetTimeframe {
		return true, nil
	}

	fromDuration, err := str2duration.ParseDuration(fromTimeframe)
	if err != nil {
		return false, err
	}

	next := t.Add(fromDuration).UTC()
	return isTimeOnPeriodBoundary(next, targetTimeframe)
}

// isTimeOnPeriodBoundary checks if a timestamp is on a period boundary
func isTimeOnPeriodBoundary(t time.Time, targetTimeframe string) (bool, error) {
	switch targetTimeframe {
	case "1m":
		return t.Second() == 0, nil
	case "5m":
		return t.Minute()%5 == 0 && t.Second() == 0, nil
	case "10m":
		return t.Minute()%10 == 0 && t.Second() == 0, nil
	case "15m":
		return t.Minute()%15 == 0 && t.Second() == 0, nil
	case "30m":
		return t.Minute()%30 == 0 && t.Second() == 0, nil
	case "1h":
		return t.Minute() == 0 && t.Second() == 0, nil
	case "2h":
		return t.Hour()%2 == 0 && t.Minute() == 0 && t.Second() == 0, nil
	case "4h":
		return t.Hour()%4 == 0 && t.Minute() == 0 && t.Second() == 0, nil
	case "12h":
		return t.Hour()%12 == 0 && t.Minute() == 0 && t.Second() == 0, nil
	case "1d":
		return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0, nil
	case "1w":
		return t.Weekday() == time.Sunday && t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0, nil
	default:
		return false, fmt.Errorf("invalid timeframe: %s", targetTimeframe)
	}
}

// ---------------------
// Resampling
// ---------------------

// resample resamples candles from source timeframe to target timeframe
func (c *CSVFeed) resample(pair, sourceTimeframe, targetTimeframe string) error {
	sourceKey := c.feedTimeframeKey(pair, sourceTimeframe)
	targetKey := c.feedTimeframeKey(pair, targetTimeframe)

	sourceCandles := c.CandlePairTimeFrame[sourceKey]
	if len(sourceCandles) == 0 {
		return nil
	}

	startIdx, err := c.findFirstPeriodCandle(sourceCandles, sourceTimeframe, targetTimeframe)
	if err != nil {
		return err
	}

	targetCandles, err := c.resampleCandles(sourceCandles[startIdx:], sourceTimeframe, targetTimeframe)
	if err != nil {
		return err
	}

	c.CandlePairTimeFrame[targetKey] = targetCandles
	return nil
}

// findFirstPeriodCandle finds the index of the first candle that starts a period
func (c *CSVFeed) findFirstPeriodCandle(candles []core.Candle, sourceTimeframe, targetTimeframe string) (int, error) {
	for i := range candles {
		isFirst, err := isFistCandlePeriod(candles[i].Time, sourceTimeframe, targetTimeframe)
		if err != nil {
			return 0, err
		}
		if isFirst {
			return i, nil
		}
	}
	return 0, nil
}

// resampleCandles resamples candles by grouping them by period
func (c *CSVFeed) resampleCandles(sourceCandles []core.Candle, sourceTimeframe, targetTimeframe string) ([]core.Candle, error) {
	if len(sourceCandles) == 0 {
		return nil, nil
	}

	targetCandles := make([]core.Candle, 0, len(sourceCandles)/4)

	var currentCandle core.Candle
	inPeriod := false

	for _, candle := range sourceCandles {
		isLast, err := isLastCandlePeriod(candle.Time, sourceTimeframe, targetTimeframe)
		if err != nil {
			return nil, err
		}

		if !inPeriod {
			currentCandle = candle
			inPeriod = true
			if isLast {
				currentCandle.Complete = true
				targetCandles = append(targetCandles, currentCandle)
				inPeriod = false
			}
			continue
		}

		currentCandle.High = math.Max(currentCandle.High, candle.High)
		currentCandle.Low = math.Min(currentCandle.Low, candle.Low)
		currentCandle.Close = candle.Close
		currentCandle.Volume += candle.Volume

		if isLast {
			currentCandle.Complete = true
			targetCandles = append(targetCandles, currentCandle)
			inPeriod = false
		}
	}

	return targetCandles, nil
}

// ---------------------
// Utility Methods
// ---------------------

// feedTimeframeKey generates a unique key for each pair and timeframe
func (c *CSVFeed) feedTimeframeKey(pair, timeframe string) string {
	return fmt.Sprintf("%s--%s", pair, timeframe)
}

// Limit limits candles to a specific time duration
func (c *CSVFeed) Limit(duration time.Duration) *CSVFeed {
	for pair, candles := range c.CandlePairTimeFrame {
		if len(candles) == 0 {
			continue
		}

		start := candles[len(candles)-1].Time.Add(-duration)
		c.CandlePairTimeFrame[pair] = lo.Filter(candles, func(candle core.Candle, _ int) bool {
			return candle.Time.After(start)
		})
	}
	return c
}

func (c *CSVFeed) spreadFor(pair string) float64 {
	if feed, ok := c.Feeds[pair]; ok && feed.SpreadPct > 0 {
		return feed.SpreadPct
	}
	return defaultSyntheticSpread
}

func (c *CSVFeed) currentCandle(pair string) (core.Candle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	candle, ok := c.current[pair]
	return candle, ok
}

// ---------------------
// API Methods
// ---------------------

// AssetsInfo returns permissive market limits for backtests
func (c *CSVFeed) AssetsInfo(pair string) (core.AssetInfo, error) {
	asset, quote := SplitAssetQuote(pair)
	return core.AssetInfo{
		BaseAsset:          asset,
		QuoteAsset:         quote,
		MaxPrice:           math.MaxFloat64,
		MaxQuantity:        math.MaxFloat64,
		StepSize:           0.00000001,
		TickSize:           0.00000001,
		QuotePrecision:     8,
		BaseAssetPrecision: 8,
	}, nil
}

// Ticker synthesizes a ticker around the candle the subscription is
// currently replaying
func (c *CSVFeed) Ticker(_ context.Context, pair string) (core.Ticker, error) {
	candle, ok := c.currentCandle(pair)
	if !ok {
		return core.Ticker{}, fmt.Errorf("%w: %s", ErrNoMarketData, pair)
	}

	half := c.spreadFor(pair) / 2
	return core.Ticker{
		Pair:      pair,
		Last:      candle.Close,
		Bid:       candle.Close * (1 - half),
		Ask:       candle.Close * (1 + half),
		Volume24h: candle.Volume,
		Time:      candle.Time,
	}, nil
}

// LastQuote returns the close of the candle currently being replayed
func (c *CSVFeed) LastQuote(_ context.Context, pair string) (float64, error) {
	candle, ok := c.currentCandle(pair)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoMarketData, pair)
	}
	return candle.Close, nil
}

// OrderBook synthesizes a balanced book stepped outward from the
// synthetic ticker
func (c *CSVFeed) OrderBook(ctx context.Context, pair string, depth int) (core.OrderBook, error) {
	ticker, err := c.Ticker(ctx, pair)
	if err != nil {
		return core.OrderBook{}, err
	}
	if depth <= 0 {
		depth = 10
	}

	step := ticker.Last * c.spreadFor(pair)
	size := ticker.Volume24h / float64(depth*2)
	if size <= 0 {
		size = 1
	}

	book := core.OrderBook{
		Pair: pair,
		Bids: make([]core.PriceLevel, 0, depth),
		Asks: make([]core.PriceLevel, 0, depth),
		Time: ticker.Time,
	}
	for i := 0; i < depth; i++ {
		offset := step * float64(i)
		book.Bids = append(book.Bids, core.PriceLevel{Price: ticker.Bid - offset, Quantity: size})
		book.Asks = append(book.Asks, core.PriceLevel{Price: ticker.Ask + offset, Quantity: size})
	}
	return book, nil
}

// CandlesByPeriod returns candles within a specific time period
func (c *CSVFeed) CandlesByPeriod(_ context.Context, pair, timeframe string, start, end time.Time) ([]core.Candle, error) {
	key := c.feedTimeframeKey(pair, timeframe)
	result := make([]core.Candle, 0)

	for _, candle := range c.CandlePairTimeFrame[key] {
		if candle.Time.Before(start) || candle.Time.After(end) {
			continue
		}
		result = append(result, candle)
	}

	return result, nil
}

// CandlesByLimit returns a limited number of candles and removes them from the feed
func (c *CSVFeed) CandlesByLimit(_ context.Context, pair, timeframe string, limit int) ([]core.Candle, error) {
	key := c.feedTimeframeKey(pair, timeframe)

	if len(c.CandlePairTimeFrame[key]) < limit {
		return nil, fmt.Errorf("%w: %s", ErrInsufficientData, pair)
	}

	result := c.CandlePairTimeFrame[key][:limit]
	c.CandlePairTimeFrame[key] = c.CandlePairTimeFrame[key][limit:]

	return result, nil
}

// CandlesSubscription returns a channel that replays the loaded candles.
// The replay cursor also drives the synthetic ticker, so quote lookups
// during a backtest see the candle the consumer is processing.
func (c *CSVFeed) CandlesSubscription(ctx context.Context, pair, timeframe string) (chan core.Candle, chan error) {
	ccandle := make(chan core.Candle)
	cerr := make(chan error)
	key := c.feedTimeframeKey(pair, timeframe)

	go func() {
		defer close(ccandle)
		defer close(cerr)

		for _, candle := range c.CandlePairTimeFrame[key] {
			select {
			case <-ctx.Done():
				return
			case ccandle <- candle:
				c.mu.Lock()
				c.current[pair] = candle
				c.mu.Unlock()
			}
		}
	}()

	return ccandle, cerr
}
