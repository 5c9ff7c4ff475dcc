package binance

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"

	"nakula/pkg/auth"
	"nakula/pkg/client"
	"nakula/pkg/core"
	"nakula/pkg/exchange"
)

const exchangeName = "binance"

const defaultInterval = "1m"

// BinanceExchange adapts Binance to the Exchange interface. An instance
// is bound to one market (spot or USD-M futures) because the two live on
// different hosts.
type BinanceExchange struct {
	client     *client.Client
	normalizer *Normalizer
	market     core.MarketType
}

// Config selects the Binance catalog entry and transport behavior.
type Config struct {
	// Sandbox routes all traffic to the testnet hosts.
	Sandbox bool
	// MarketType picks the spot or USD-M futures catalog.
	MarketType core.MarketType
	// Credential enables the signed endpoints. Public market data works
	// without it.
	Credential *core.Credential
	// BaseURL and StreamURL override the catalog when set.
	BaseURL   string
	StreamURL string
	// Request and Stream tune the transport; zero values take defaults.
	Request core.RequestConfig
	Stream  core.StreamConfig
}

// Option is a functional option for configuring the BinanceExchange.
type Option func(*Options)

// Options holds the optional adapter settings.
type Options struct {
	Logger     zerolog.Logger
	RecvWindow time.Duration
}

// WithLogger sets the logger for the adapter and its transport.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithRecvWindow sets the signed-request validity window.
func WithRecvWindow(window time.Duration) Option {
	return func(o *Options) {
		o.RecvWindow = window
	}
}

// New creates a Binance adapter over a dedicated client.
func New(cfg Config, opts ...Option) (*BinanceExchange, error) {
	options := &Options{Logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(options)
	}

	if cfg.Request == (core.RequestConfig{}) {
		cfg.Request = core.DefaultRequestConfig()
	}
	if cfg.Stream == (core.StreamConfig{}) {
		cfg.Stream = core.DefaultStreamConfig()
	}

	clientOpts := []client.Option{
		client.WithBaseURL(baseURL(cfg)),
		client.WithRequestConfig(cfg.Request),
		client.WithStreamConfig(cfg.Stream),
		client.WithStream(marketStream, streamURL(cfg), newFramer()),
		client.WithRateLimit(requestsPerSecond, requestBurst),
		client.WithLogger(options.Logger),
	}

	if cfg.Credential != nil {
		var authOpts []auth.Option
		if options.RecvWindow > 0 {
			authOpts = append(authOpts, auth.WithRecvWindow(options.RecvWindow))
		}
		authenticator, err := auth.NewBinance(cfg.Credential, authOpts...)
		if err != nil {
			return nil, fmt.Errorf("create authenticator: %w", err)
		}
		clientOpts = append(clientOpts, client.WithAuthenticator(authenticator))
	}

	cli, err := client.New(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	return &BinanceExchange{
		client:     cli,
		normalizer: NewNormalizer(),
		market:     cfg.MarketType,
	}, nil
}

// Name returns the exchange identifier "binance".
func (e *BinanceExchange) Name() string {
	return exchangeName
}

// Close releases the underlying client and all its connections.
func (e *BinanceExchange) Close() error {
	return e.client.Close()
}

// GetTicker retrieves the 24hr ticker for the symbol.
func (e *BinanceExchange) GetTicker(ctx context.Context, symbol string, opts ...exchange.Option) (*core.Ticker, error) {
	var raw binanceTicker
	if err := e.call(ctx, tickerRequest(symbol, e.market), &raw); err != nil {
		return nil, err
	}
	ticker := e.normalizer.NormalizeTicker(&raw)
	ticker.Symbol = symbol
	return ticker, nil
}

// GetOrderBook retrieves a depth snapshot for the symbol.
func (e *BinanceExchange) GetOrderBook(ctx context.Context, symbol string, opts ...exchange.Option) (*core.OrderBook, error) {
	options := exchange.ApplyOptions(opts...)
	limit := options.Limit
	if limit <= 0 {
		limit = 100
	}

	var raw binanceOrderBook
	if err := e.call(ctx, orderBookRequest(symbol, limit, e.market), &raw); err != nil {
		return nil, err
	}
	return e.normalizer.NormalizeOrderBook(&raw, symbol)
}

// GetTrades retrieves recent public trades as an iterator.
func (e *BinanceExchange) GetTrades(ctx context.Context, symbol string, opts ...exchange.Option) iter.Seq2[*core.Trade, error] {
	return func(yield func(*core.Trade, error) bool) {
		options := exchange.ApplyOptions(opts...)
		limit := options.Limit
		if limit <= 0 {
			limit = 500
		}

		var raw []binanceTrade
		if err := e.call(ctx, tradesRequest(symbol, limit, e.market), &raw); err != nil {
			yield(nil, err)
			return
		}

		trades := e.normalizer.NormalizeTrades(raw, symbol)
		for i := range trades {
			if !yield(&trades[i], nil) {
				return
			}
		}
	}
}

// GetKlines retrieves candlestick data for the symbol.
func (e *BinanceExchange) GetKlines(ctx context.Context, symbol string, opts ...exchange.Option) ([]core.Kline, error) {
	options := exchange.ApplyOptions(opts...)
	interval := options.Interval
	if interval == "" {
		interval = defaultInterval
	}
	limit := options.Limit
	if limit <= 0 {
		limit = 500
	}

	var raw []binanceKline
	req := klinesRequest(symbol, interval, limit, options.StartTime, options.EndTime, e.market)
	if err := e.call(ctx, req, &raw); err != nil {
		return nil, err
	}
	return e.normalizer.NormalizeKlines(raw, symbol)
}

// GetBalance retrieves account balances. Requires a credential.
func (e *BinanceExchange) GetBalance(ctx context.Context, opts ...exchange.Option) ([]core.Balance, error) {
	if e.market == core.MarketTypeFutures {
		var raw []binanceFuturesBalance
		if err := e.call(ctx, balanceRequest(e.market), &raw); err != nil {
			return nil, err
		}
		return e.normalizer.NormalizeFuturesBalances(raw)
	}

	var raw binanceAccount
	if err := e.call(ctx, balanceRequest(e.market), &raw); err != nil {
		return nil, err
	}
	return e.normalizer.NormalizeBalances(&raw), nil
}

// SubscribeTicker streams 24hr ticker updates for the symbol.
func (e *BinanceExchange) SubscribeTicker(ctx context.Context, symbol string, opts ...exchange.Option) (*exchange.Subscription[core.Ticker], error) {
	stream, err := e.client.Stream(ctx, marketStream, streamName(symbol, "ticker"))
	if err != nil {
		return nil, err
	}
	return exchange.NewSubscription(stream, decodeTicker), nil
}

// SubscribeTrades streams aggregated trades for the symbol.
func (e *BinanceExchange) SubscribeTrades(ctx context.Context, symbol string, opts ...exchange.Option) (*exchange.Subscription[core.Trade], error) {
	stream, err := e.client.Stream(ctx, marketStream, streamName(symbol, "aggTrade"))
	if err != nil {
		return nil, err
	}
	return exchange.NewSubscription(stream, decodeAggTrade), nil
}

// SubscribeOrderBook streams depth updates for the symbol.
func (e *BinanceExchange) SubscribeOrderBook(ctx context.Context, symbol string, opts ...exchange.Option) (*exchange.Subscription[core.OrderBook], error) {
	stream, err := e.client.Stream(ctx, marketStream, streamName(symbol, "depth"))
	if err != nil {
		return nil, err
	}
	return exchange.NewSubscription(stream, decodeDepth), nil
}

// SubscribeKlines streams candlestick updates for the symbol at the
// interval from WithInterval, defaulting to one minute.
func (e *BinanceExchange) SubscribeKlines(ctx context.Context, symbol string, opts ...exchange.Option) (*exchange.Subscription[core.Kline], error) {
	options := exchange.ApplyOptions(opts...)
	interval := options.Interval
	if interval == "" {
		interval = defaultInterval
	}

	stream, err := e.client.Stream(ctx, marketStream, streamName(symbol, "kline_"+interval))
	if err != nil {
		return nil, err
	}
	return exchange.NewSubscription(stream, decodeKline), nil
}

func (e *BinanceExchange) call(ctx context.Context, req *core.Request, out any) error {
	if err := e.client.Call(ctx, req, out); err != nil {
		return mapError(err)
	}
	return nil
}

// mapError refines a transport-level exchange error with the Binance
// error payload, when one is present in the body.
func mapError(err error) error {
	var exErr *core.ExchangeError
	if !errors.As(err, &exErr) {
		return err
	}

	exErr.Exchange = exchangeName

	var apiErr binanceAPIError
	if len(exErr.RawBody) > 0 {
		if uerr := sonic.Unmarshal(exErr.RawBody, &apiErr); uerr == nil && apiErr.Code != 0 {
			exErr.Type = mapErrorCode(apiErr.Code)
			exErr.Code = strconv.Itoa(apiErr.Code)
			exErr.Message = apiErr.Msg
		}
	}

	return exErr
}

// Register creates a Binance adapter and registers it with the
// container under its exchange name.
func Register(container *exchange.Container, cfg Config, opts ...Option) error {
	ex, err := New(cfg, opts...)
	if err != nil {
		return fmt.Errorf("create binance exchange: %w", err)
	}
	container.Register(exchangeName, ex)
	return nil
}
