// Package binance adapts the Binance USDT-margined futures API to the
// core gateway contract. Venue quirks stay inside this package: symbol
// precision, hedge-mode position sides, post-only time in force, and
// API error codes mapped onto classified error kinds.
package binance

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/jpillora/backoff"

	"github.com/quorumtrade/quorum/core"
)

// ---------------------
// Constants and Errors
// ---------------------

var (
	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrAssetInfoMissing = errors.New("asset info not found")
)

// Binance API codes that mean "already configured" rather than failure
const (
	codeNoMarginTypeChange   = -4046
	codeNoPositionModeChange = -4059
)

// MetadataFetcher is a function type for fetching additional candle metadata
type MetadataFetcher func(pair string, t time.Time) (string, float64)

// ---------------------
// Error Classification
// ---------------------

// classifyError maps a Binance API failure onto an error kind. Transport
// failures stay retryable; anything the venue answered deterministically
// is not.
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		return core.NewError(core.ErrKindTransientNetwork, op, err)
	}

	switch apiErr.Code {
	case -1003, -1015:
		return core.NewError(core.ErrKindRateLimit, op, err)
	case -1022, -2014, -2015:
		return core.NewError(core.ErrKindAuthFailure, op, err)
	case -2018, -2019:
		return core.NewError(core.ErrKindInsufficientBalance, op, err)
	case -4141:
		return core.NewError(core.ErrKindMarketClosed, op, err)
	case -1001, -1021:
		return core.NewError(core.ErrKindTransientNetwork, op, err)
	default:
		return core.NewError(core.ErrKindOrderRejected, op, err)
	}
}

// isIgnorableCode reports whether an API error carries one of the given
// "no change needed" codes
func isIgnorableCode(err error, codes ...int64) bool {
	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, code := range codes {
		if apiErr.Code == code {
			return true
		}
	}
	return false
}

// ---------------------
// Formatting Functions
// ---------------------

// formatQuantity formats a quantity according to the pair's step size
func formatQuantity(assetsInfo map[string]core.AssetInfo, pair string, value float64) string {
	info, ok := assetsInfo[pair]
	if !ok {
		return strconv.FormatFloat(value, 'f', 8, 64)
	}

	step := info.StepSize
	precision := 0
	for step > 0 && step < 1 {
		step *= 10
		precision++
	}

	return strconv.FormatFloat(value, 'f', precision, 64)
}

// formatPrice formats a price according to the pair's tick size
func formatPrice(assetsInfo map[string]core.AssetInfo, pair string, value float64) string {
	info, ok := assetsInfo[pair]
	if !ok {
		return strconv.FormatFloat(value, 'f', 8, 64)
	}

	tickSize := info.TickSize
	precision := 0
	for tickSize > 0 && tickSize < 1 {
		tickSize *= 10
		precision++
	}

	return strconv.FormatFloat(value, 'f', precision, 64)
}

// ---------------------
// Validation Functions
// ---------------------

// validateOrder checks if an order quantity is valid for a pair
func validateOrder(assetsInfo map[string]core.AssetInfo, pair string, quantity float64) error {
	info, ok := assetsInfo[pair]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAssetInfoMissing, pair)
	}

	if quantity < info.MinQuantity {
		return fmt.Errorf("%w: %f is less than minimum %f", ErrInvalidQuantity, quantity, info.MinQuantity)
	}

	if quantity > info.MaxQuantity {
		return fmt.Errorf("%w: %f is greater than maximum %f", ErrInvalidQuantity, quantity, info.MaxQuantity)
	}

	steps := (quantity - info.MinQuantity) / info.StepSize
	expected := info.MinQuantity + (steps * info.StepSize)

	diff := quantity - expected
	if diff > 0.000000001 || diff < -0.000000001 {
		return fmt.Errorf("%w: %f is not a multiple of step size %f", ErrInvalidQuantity, quantity, info.StepSize)
	}

	return nil
}

// ---------------------
// Utility Functions
// ---------------------

// setupBackoffRetry creates a backoff with sensible defaults
func setupBackoffRetry() *backoff.Backoff {
	return &backoff.Backoff{
		Min: 100 * time.Millisecond,
		Max: 1 * time.Second,
	}
}

// parseFilterFloat safely parses a float value from a filter map
func parseFilterFloat(filter map[string]any, key string) (float64, error) {
	value, ok := filter[key]
	if !ok {
		return 0, fmt.Errorf("key %s not found in filter", key)
	}

	strValue, ok := value.(string)
	if !ok {
		return 0, fmt.Errorf("key %s is not a string", key)
	}

	floatValue, err := strconv.ParseFloat(strValue, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s as float: %w", key, err)
	}

	return floatValue, nil
}

// ---------------------
// Conversion Functions
// ---------------------

// createAssetInfo builds an AssetInfo from futures symbol information,
// pulling lot and price limits out of the symbol filters
func createAssetInfo(info futures.Symbol) core.AssetInfo {
	assetInfo := core.AssetInfo{
		BaseAsset:          info.BaseAsset,
		QuoteAsset:         info.QuoteAsset,
		QuotePrecision:     info.QuotePrecision,
		BaseAssetPrecision: info.BaseAssetPrecision,
	}

	for _, filter := range info.Filters {
		typ, ok := filter["filterType"].(string)
		if !ok {
			continue
		}

		switch futures.SymbolFilterType(typ) {
		case futures.SymbolFilterTypeLotSize:
			if v, err := parseFilterFloat(filter, "minQty"); err == nil {
				assetInfo.MinQuantity = v
			}
			if v, err := parseFilterFloat(filter, "maxQty"); err == nil {
				assetInfo.MaxQuantity = v
			}
			if v, err := parseFilterFloat(filter, "stepSize"); err == nil {
				assetInfo.StepSize = v
			}
		case futures.SymbolFilterTypePrice:
			if v, err := parseFilterFloat(filter, "minPrice"); err == nil {
				assetInfo.MinPrice = v
			}
			if v, err := parseFilterFloat(filter, "maxPrice"); err == nil {
				assetInfo.MaxPrice = v
			}
			if v, err := parseFilterFloat(filter, "tickSize"); err == nil {
				assetInfo.TickSize = v
			}
		}
	}

	return assetInfo
}

// convertOrder converts a Binance futures order to a core.Order
func convertOrder(order *futures.Order) core.Order {
	cost, _ := strconv.ParseFloat(order.CumQuote, 64)
	quantity, _ := strconv.ParseFloat(order.ExecutedQuantity, 64)
	originQuantity, _ := strconv.ParseFloat(order.OrigQuantity, 64)
	price, _ := strconv.ParseFloat(order.Price, 64)

	// Effective fill price when the venue reports executed cost
	if cost > 0 && quantity > 0 {
		price = cost / quantity
	} else {
		quantity = originQuantity
	}

	return core.Order{
		ExchangeID: order.OrderID,
		Pair:       order.Symbol,
		CreatedAt:  time.Unix(0, order.Time*int64(time.Millisecond)),
		UpdatedAt:  time.Unix(0, order.UpdateTime*int64(time.Millisecond)),
		Side:       core.SideType(order.Side),
		Type:       core.OrderType(order.Type),
		Status:     core.OrderStatusType(order.Status),
		Price:      price,
		Quantity:   quantity,
		ReduceOnly: order.ReduceOnly,
	}
}

// convertKlineToCandle converts a Binance futures kline to a core.Candle
func convertKlineToCandle(pair string, k futures.Kline) core.Candle {
	t := time.Unix(0, k.OpenTime*int64(time.Millisecond))
	candle := core.Candle{
		Pair:      pair,
		Time:      t,
		UpdatedAt: t,
		Metadata:  make(map[string]float64),
		Complete:  true,
	}

	candle.Open, _ = strconv.ParseFloat(k.Open, 64)
	candle.Close, _ = strconv.ParseFloat(k.Close, 64)
	candle.High, _ = strconv.ParseFloat(k.High, 64)
	candle.Low, _ = strconv.ParseFloat(k.Low, 64)
	candle.Volume, _ = strconv.ParseFloat(k.Volume, 64)

	return candle
}

// convertWsKlineToCandle converts a websocket kline to a core.Candle
func convertWsKlineToCandle(pair string, k futures.WsKline) core.Candle {
	t := time.Unix(0, k.StartTime*int64(time.Millisecond))
	candle := core.Candle{
		Pair:      pair,
		Time:      t,
		UpdatedAt: t,
		Metadata:  make(map[string]float64),
		Complete:  k.IsFinal,
	}

	candle.Open, _ = strconv.ParseFloat(k.Open, 64)
	candle.Close, _ = strconv.ParseFloat(k.Close, 64)
	candle.High, _ = strconv.ParseFloat(k.High, 64)
	candle.Low, _ = strconv.ParseFloat(k.Low, 64)
	candle.Volume, _ = strconv.ParseFloat(k.Volume, 64)

	return candle
}
