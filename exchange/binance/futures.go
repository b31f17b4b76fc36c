package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"

	"github.com/quorumtrade/quorum/core"
)

// ---------------------
// Types
// ---------------------

// PairOption carries per-pair margin settings applied at startup
type PairOption struct {
	Pair       string
	Leverage   int
	MarginType futures.MarginType
}

// Futures is the Binance USDT-margined futures gateway
type Futures struct {
	client           *futures.Client
	log              core.Logger
	assetsInfo       map[string]core.AssetInfo
	metadataFetchers []MetadataFetcher
	pairOptions      []PairOption
	positionMode     core.PositionMode
}

// FuturesOption configures a Futures client
type FuturesOption func(*Futures)

// ---------------------
// Option Functions
// ---------------------

// WithCredentials sets the API credentials
func WithCredentials(key, secret string) FuturesOption {
	return func(f *Futures) {
		f.client = futures.NewClient(key, secret)
	}
}

// WithTestnet routes all calls to the futures testnet
func WithTestnet() FuturesOption {
	return func(f *Futures) {
		futures.UseTestnet = true
	}
}

// WithLeverage sets leverage and margin type for a trading pair
func WithLeverage(pair string, leverage int, marginType futures.MarginType) FuturesOption {
	return func(f *Futures) {
		f.pairOptions = append(f.pairOptions, PairOption{
			Pair:       strings.ToUpper(pair),
			Leverage:   leverage,
			MarginType: marginType,
		})
	}
}

// WithPositionMode selects one-way or hedge position handling
func WithPositionMode(mode core.PositionMode) FuturesOption {
	return func(f *Futures) {
		f.positionMode = mode
	}
}

// WithMetadataFetcher adds a function for fetching additional candle metadata
func WithMetadataFetcher(fetcher MetadataFetcher) FuturesOption {
	return func(f *Futures) {
		f.metadataFetchers = append(f.metadataFetchers, fetcher)
	}
}

// ---------------------
// Constructor
// ---------------------

// NewFutures creates a Binance futures gateway, validates connectivity
// and applies the configured leverage, margin and position modes
func NewFutures(ctx context.Context, log core.Logger, options ...FuturesOption) (*Futures, error) {
	binance.WebsocketKeepalive = true

	exchange := &Futures{
		client:           futures.NewClient("", ""),
		log:              log,
		assetsInfo:       make(map[string]core.AssetInfo),
		metadataFetchers: make([]MetadataFetcher, 0),
		pairOptions:      make([]PairOption, 0),
		positionMode:     core.PositionModeOneWay,
	}

	for _, option := range options {
		option(exchange)
	}

	if err := exchange.client.NewPingService().Do(ctx); err != nil {
		return nil, classifyError("binance.ping", err)
	}

	if err := exchange.SetPositionMode(ctx, exchange.positionMode); err != nil {
		return nil, err
	}

	if err := exchange.configurePairs(ctx); err != nil {
		return nil, err
	}

	if err := exchange.initializeAssetInfo(ctx); err != nil {
		return nil, err
	}

	log.Infof("Binance futures gateway ready, %d symbols, %s mode",
		len(exchange.assetsInfo), exchange.positionMode)

	return exchange, nil
}

// configurePairs sets leverage and margin type for all configured pairs
func (f *Futures) configurePairs(ctx context.Context) error {
	for _, option := range f.pairOptions {
		if err := f.SetLeverage(ctx, option.Pair, option.Leverage); err != nil {
			return err
		}

		err := f.client.NewChangeMarginTypeService().
			Symbol(option.Pair).
			MarginType(option.MarginType).
			Do(ctx)
		if err != nil && !isIgnorableCode(err, codeNoMarginTypeChange) {
			return classifyError("binance.set_margin_type", err)
		}
	}
	return nil
}

// initializeAssetInfo fetches exchange information and caches symbol limits
func (f *Futures) initializeAssetInfo(ctx context.Context) error {
	exchangeInfo, err := f.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return classifyError("binance.exchange_info", err)
	}

	for _, info := range exchangeInfo.Symbols {
		f.assetsInfo[info.Symbol] = createAssetInfo(info)
	}

	return nil
}

// ---------------------
// Utility Methods
// ---------------------

func (f *Futures) formatQuantity(pair string, value float64) string {
	return formatQuantity(f.assetsInfo, pair, value)
}

func (f *Futures) formatPrice(pair string, value float64) string {
	return formatPrice(f.assetsInfo, pair, value)
}

func (f *Futures) validate(pair string, quantity float64) error {
	return validateOrder(f.assetsInfo, pair, quantity)
}

// orderLeg resolves the hedge-mode position side an order acts on.
// Entries open their own side; reduce-only orders act on the opposite
// side.
func orderLeg(side core.SideType, reduceOnly bool) futures.PositionSideType {
	if side == core.SideTypeBuy {
		if reduceOnly {
			return futures.PositionSideTypeShort
		}
		return futures.PositionSideTypeLong
	}
	if reduceOnly {
		return futures.PositionSideTypeLong
	}
	return futures.PositionSideTypeShort
}

// applyPositionRouting tags an order with either a position side or a
// reduce-only flag. Hedge mode wants the explicit leg and rejects the
// reduce-only parameter; one-way mode is the reverse.
func (f *Futures) applyPositionRouting(service *futures.CreateOrderService, side core.SideType, reduceOnly bool) *futures.CreateOrderService {
	if f.positionMode == core.PositionModeHedge {
		return service.PositionSide(orderLeg(side, reduceOnly))
	}
	if reduceOnly {
		return service.ReduceOnly(true)
	}
	return service
}

// ---------------------
// Market Data Methods
// ---------------------

// AssetsInfo returns the cached trading limits for a pair
func (f *Futures) AssetsInfo(pair string) (core.AssetInfo, error) {
	if val, ok := f.assetsInfo[pair]; ok {
		return val, nil
	}
	return core.AssetInfo{}, fmt.Errorf("%w: %s", ErrAssetInfoMissing, pair)
}

// LastQuote gets the latest price for a pair
func (f *Futures) LastQuote(ctx context.Context, pair string) (float64, error) {
	candles, err := f.CandlesByLimit(ctx, pair, "1m", 1)
	if err != nil || len(candles) < 1 {
		return 0, err
	}
	return candles[0].Close, nil
}

// Ticker combines the best book prices with the 24h statistics
func (f *Futures) Ticker(ctx context.Context, pair string) (core.Ticker, error) {
	books, err := f.client.NewListBookTickersService().Symbol(pair).Do(ctx)
	if err != nil {
		return core.Ticker{}, classifyError("binance.book_ticker", err)
	}
	if len(books) == 0 {
		return core.Ticker{}, core.Errorf(core.ErrKindStaleData, "binance.book_ticker", "no book for %s", pair)
	}

	stats, err := f.client.NewListPriceChangeStatsService().Symbol(pair).Do(ctx)
	if err != nil {
		return core.Ticker{}, classifyError("binance.price_stats", err)
	}
	if len(stats) == 0 {
		return core.Ticker{}, core.Errorf(core.ErrKindStaleData, "binance.price_stats", "no stats for %s", pair)
	}

	bid, _ := strconv.ParseFloat(books[0].BidPrice, 64)
	ask, _ := strconv.ParseFloat(books[0].AskPrice, 64)
	last, _ := strconv.ParseFloat(stats[0].LastPrice, 64)
	volume, _ := strconv.ParseFloat(stats[0].Volume, 64)

	return core.Ticker{
		Pair:      pair,
		Last:      last,
		Bid:       bid,
		Ask:       ask,
		Volume24h: volume,
		Time:      time.Unix(0, stats[0].CloseTime*int64(time.Millisecond)),
	}, nil
}

// OrderBook returns the top of the book to the requested depth
func (f *Futures) OrderBook(ctx context.Context, pair string, depth int) (core.OrderBook, error) {
	if depth <= 0 {
		depth = 20
	}

	resp, err := f.client.NewDepthService().Symbol(pair).Limit(depth).Do(ctx)
	if err != nil {
		return core.OrderBook{}, classifyError("binance.depth", err)
	}

	book := core.OrderBook{
		Pair: pair,
		Bids: make([]core.PriceLevel, 0, len(resp.Bids)),
		Asks: make([]core.PriceLevel, 0, len(resp.Asks)),
		Time: time.Now(),
	}

	for _, level := range resp.Bids {
		price, _ := strconv.ParseFloat(level.Price, 64)
		amount, _ := strconv.ParseFloat(level.Quantity, 64)
		book.Bids = append(book.Bids, core.PriceLevel{Price: price, Quantity: amount})
	}
	for _, level := range resp.Asks {
		price, _ := strconv.ParseFloat(level.Price, 64)
		amount, _ := strconv.ParseFloat(level.Quantity, 64)
		book.Asks = append(book.Asks, core.PriceLevel{Price: price, Quantity: amount})
	}

	return book, nil
}

// ---------------------
// Order Management
// ---------------------

// CreateOrderMarket creates a market order
func (f *Futures) CreateOrderMarket(ctx context.Context, side core.SideType, pair string, size float64, reduceOnly bool) (core.Order, error) {
	if err := f.validate(pair, size); err != nil {
		return core.Order{}, core.NewError(core.ErrKindOrderRejected, "binance.create_market", err)
	}

	service := f.client.NewCreateOrderService().
		Symbol(pair).
		Type(futures.OrderTypeMarket).
		Side(futures.SideType(side)).
		Quantity(f.formatQuantity(pair, size)).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT)
	service = f.applyPositionRouting(service, side, reduceOnly)

	order, err := service.Do(ctx)
	if err != nil {
		return core.Order{}, classifyError("binance.create_market", err)
	}

	cost, _ := strconv.ParseFloat(order.CumQuote, 64)
	executed, _ := strconv.ParseFloat(order.ExecutedQuantity, 64)
	price, _ := strconv.ParseFloat(order.AvgPrice, 64)
	if cost > 0 && executed > 0 {
		price = cost / executed
	}
	if executed == 0 {
		executed = size
	}

	return core.Order{
		ExchangeID: order.OrderID,
		CreatedAt:  time.Unix(0, order.UpdateTime*int64(time.Millisecond)),
		UpdatedAt:  time.Unix(0, order.UpdateTime*int64(time.Millisecond)),
		Pair:       order.Symbol,
		Side:       side,
		Type:       core.OrderTypeMarket,
		Status:     core.OrderStatusType(order.Status),
		Price:      price,
		Quantity:   executed,
		ReduceOnly: reduceOnly,
	}, nil
}

// CreateOrderLimit creates a limit order. Post-only orders use GTX time
// in force, which the venue rejects instead of filling as taker.
func (f *Futures) CreateOrderLimit(ctx context.Context, side core.SideType, pair string, size, limit float64, reduceOnly, postOnly bool) (core.Order, error) {
	if err := f.validate(pair, size); err != nil {
		return core.Order{}, core.NewError(core.ErrKindOrderRejected, "binance.create_limit", err)
	}

	tif := futures.TimeInForceTypeGTC
	if postOnly {
		tif = futures.TimeInForceTypeGTX
	}

	service := f.client.NewCreateOrderService().
		Symbol(pair).
		Type(futures.OrderTypeLimit).
		TimeInForce(tif).
		Side(futures.SideType(side)).
		Quantity(f.formatQuantity(pair, size)).
		Price(f.formatPrice(pair, limit))
	service = f.applyPositionRouting(service, side, reduceOnly)

	order, err := service.Do(ctx)
	if err != nil {
		return core.Order{}, classifyError("binance.create_limit", err)
	}

	price, _ := strconv.ParseFloat(order.Price, 64)
	quantity, _ := strconv.ParseFloat(order.OrigQuantity, 64)

	orderType := core.OrderTypeLimit
	if postOnly {
		orderType = core.OrderTypeLimitMaker
	}

	return core.Order{
		ExchangeID: order.OrderID,
		CreatedAt:  time.Unix(0, order.UpdateTime*int64(time.Millisecond)),
		UpdatedAt:  time.Unix(0, order.UpdateTime*int64(time.Millisecond)),
		Pair:       pair,
		Side:       side,
		Type:       orderType,
		Status:     core.OrderStatusType(order.Status),
		Price:      price,
		Quantity:   quantity,
		ReduceOnly: reduceOnly,
	}, nil
}

// Cancel cancels an order
func (f *Futures) Cancel(ctx context.Context, order core.Order) error {
	_, err := f.client.NewCancelOrderService().
		Symbol(order.Pair).
		OrderID(order.ExchangeID).
		Do(ctx)
	if err != nil {
		return classifyError("binance.cancel", err)
	}
	return nil
}

// Order gets a specific order by ID
func (f *Futures) Order(ctx context.Context, pair string, id int64) (core.Order, error) {
	order, err := f.client.NewGetOrderService().
		Symbol(pair).
		OrderID(id).
		Do(ctx)
	if err != nil {
		return core.Order{}, classifyError("binance.get_order", err)
	}

	return convertOrder(order), nil
}

// ---------------------
// Account Management
// ---------------------

// Account returns the futures wallet balances
func (f *Futures) Account(ctx context.Context) (core.Account, error) {
	acc, err := f.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return core.Account{}, classifyError("binance.account", err)
	}

	balances := make([]core.Balance, 0)
	for _, asset := range acc.Assets {
		wallet, err := strconv.ParseFloat(asset.WalletBalance, 64)
		if err != nil {
			return core.Account{}, core.NewError(core.ErrKindFatal, "binance.account", err)
		}
		available, err := strconv.ParseFloat(asset.AvailableBalance, 64)
		if err != nil {
			return core.Account{}, core.NewError(core.ErrKindFatal, "binance.account", err)
		}

		if wallet == 0 {
			continue
		}

		locked := wallet - available
		if locked < 0 {
			locked = 0
		}

		balances = append(balances, core.Balance{
			Asset: asset.Asset,
			Free:  available,
			Lock:  locked,
		})
	}

	return core.NewAccount(balances)
}

// Positions returns the open position legs for a pair
func (f *Futures) Positions(ctx context.Context, pair string) ([]core.PositionSnapshot, error) {
	risks, err := f.client.NewGetPositionRiskService().Symbol(pair).Do(ctx)
	if err != nil {
		return nil, classifyError("binance.position_risk", err)
	}

	snapshots := make([]core.PositionSnapshot, 0, len(risks))
	for _, risk := range risks {
		amount, _ := strconv.ParseFloat(risk.PositionAmt, 64)
		if amount == 0 {
			continue
		}

		entry, _ := strconv.ParseFloat(risk.EntryPrice, 64)
		mark, _ := strconv.ParseFloat(risk.MarkPrice, 64)
		unrealized, _ := strconv.ParseFloat(risk.UnRealizedProfit, 64)
		leverage, _ := strconv.Atoi(risk.Leverage)

		// One-way positions report side BOTH with a signed amount
		side := core.PositionSideLong
		switch risk.PositionSide {
		case "SHORT":
			side = core.PositionSideShort
		case "LONG":
			side = core.PositionSideLong
		default:
			if amount < 0 {
				side = core.PositionSideShort
			}
		}
		if amount < 0 {
			amount = -amount
		}

		snapshots = append(snapshots, core.PositionSnapshot{
			Pair:          risk.Symbol,
			Side:          side,
			Amount:        amount,
			EntryPrice:    entry,
			MarkPrice:     mark,
			Leverage:      leverage,
			UnrealizedPnL: unrealized,
			UpdatedAt:     time.Now(),
		})
	}

	return snapshots, nil
}

// SetLeverage sets the leverage for a pair
func (f *Futures) SetLeverage(ctx context.Context, pair string, leverage int) error {
	_, err := f.client.NewChangeLeverageService().
		Symbol(pair).
		Leverage(leverage).
		Do(ctx)
	if err != nil {
		return classifyError("binance.set_leverage", err)
	}
	return nil
}

// SetMarginMode sets the margin mode for a pair
func (f *Futures) SetMarginMode(ctx context.Context, pair string, mode core.MarginMode) error {
	marginType := futures.MarginTypeCrossed
	if mode == core.MarginModeIsolated {
		marginType = futures.MarginTypeIsolated
	}

	err := f.client.NewChangeMarginTypeService().
		Symbol(pair).
		MarginType(marginType).
		Do(ctx)
	if err != nil && !isIgnorableCode(err, codeNoMarginTypeChange) {
		return classifyError("binance.set_margin_type", err)
	}
	return nil
}

// SetPositionMode switches the account between one-way and hedge mode
func (f *Futures) SetPositionMode(ctx context.Context, mode core.PositionMode) error {
	err := f.client.NewChangePositionModeService().
		DualSide(mode == core.PositionModeHedge).
		Do(ctx)
	if err != nil && !isIgnorableCode(err, codeNoPositionModeChange) {
		return classifyError("binance.set_position_mode", err)
	}

	f.positionMode = mode
	return nil
}

// ---------------------
// Candle Methods
// ---------------------

// CandlesSubscription subscribes to candle updates for a pair. The
// websocket reconnects with exponential backoff until the context ends.
func (f *Futures) CandlesSubscription(ctx context.Context, pair, period string) (chan core.Candle, chan error) {
	candleChan := make(chan core.Candle)
	errChan := make(chan error)
	retry := setupBackoffRetry()

	go func() {
		for {
			done, _, err := futures.WsKlineServe(pair, period, func(event *futures.WsKlineEvent) {
				retry.Reset()
				candle := convertWsKlineToCandle(pair, event.Kline)

				if candle.Complete {
					for _, fetcher := range f.metadataFetchers {
						key, value := fetcher(pair, candle.Time)
						candle.Metadata[key] = value
					}
				}

				candleChan <- candle

			}, func(err error) {
				errChan <- classifyError("binance.kline_stream", err)
			})

			if err != nil {
				errChan <- classifyError("binance.kline_stream", err)
				close(errChan)
				close(candleChan)
				return
			}

			select {
			case <-ctx.Done():
				close(errChan)
				close(candleChan)
				return
			case <-done:
				f.log.Warnf("kline stream for %s-%s interrupted, reconnecting", pair, period)
				time.Sleep(retry.Duration())
			}
		}
	}()

	return candleChan, errChan
}

// CandlesByLimit gets a number of closed candles for a pair
func (f *Futures) CandlesByLimit(ctx context.Context, pair, period string, limit int) ([]core.Candle, error) {
	data, err := f.client.NewKlinesService().
		Symbol(pair).
		Interval(period).
		Limit(limit + 1). // +1 to account for the incomplete candle
		Do(ctx)
	if err != nil {
		return nil, classifyError("binance.klines", err)
	}

	candles := make([]core.Candle, 0, len(data))
	for i, d := range data {
		// Skip the last candle as it's incomplete
		if i == len(data)-1 {
			break
		}
		candles = append(candles, convertKlineToCandle(pair, *d))
	}

	return candles, nil
}

// CandlesByPeriod gets candles for a pair within a time range
func (f *Futures) CandlesByPeriod(ctx context.Context, pair, period string,
	start, end time.Time) ([]core.Candle, error) {

	data, err := f.client.NewKlinesService().
		Symbol(pair).
		Interval(period).
		StartTime(start.UnixNano() / int64(time.Millisecond)).
		EndTime(end.UnixNano() / int64(time.Millisecond)).
		Do(ctx)
	if err != nil {
		return nil, classifyError("binance.klines", err)
	}

	candles := make([]core.Candle, 0, len(data))
	for _, d := range data {
		candles = append(candles, convertKlineToCandle(pair, *d))
	}

	return candles, nil
}
