package bybit

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"

	"nakula/pkg/auth"
	"nakula/pkg/client"
	"nakula/pkg/core"
	"nakula/pkg/exchange"
)

const exchangeName = "bybit"

const defaultInterval = "1m"

// BybitExchange adapts the Bybit V5 API to the Exchange interface. One
// instance serves every market; the category query parameter selects
// the product per call.
type BybitExchange struct {
	client     *client.Client
	normalizer *Normalizer
	market     core.MarketType
	hasPrivate bool
}

// Config selects the Bybit catalog entry and transport behavior.
type Config struct {
	// Sandbox routes all traffic to the testnet hosts.
	Sandbox bool
	// MarketType picks the default category and the public stream
	// product.
	MarketType core.MarketType
	// Credential enables the signed endpoints and the private stream.
	// Public market data works without it.
	Credential *core.Credential
	// BaseURL, StreamURL and PrivateStreamURL override the catalog
	// when set.
	BaseURL          string
	StreamURL        string
	PrivateStreamURL string
	// Request and Stream tune the transport; zero values take defaults.
	Request core.RequestConfig
	Stream  core.StreamConfig
}

// Option is a functional option for configuring the BybitExchange.
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

// New creates a Bybit adapter over a dedicated client.
func New(cfg Config, opts ...Option) (*BybitExchange, error) {
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
		client.WithStream(marketStream, streamURL(cfg), newFramer(nil)),
		client.WithRateLimit(requestsPerSecond, requestBurst),
		client.WithLogger(options.Logger),
	}

	if cfg.Credential != nil {
		var authOpts []auth.Option
		if options.RecvWindow > 0 {
			authOpts = append(authOpts, auth.WithRecvWindow(options.RecvWindow))
		}
		signer, err := auth.NewBybit(cfg.Credential, authOpts...)
		if err != nil {
			return nil, fmt.Errorf("create authenticator: %w", err)
		}
		clientOpts = append(clientOpts,
			client.WithAuthenticator(signer),
			client.WithStream(privateStream, privateStreamURL(cfg), newFramer(signer)),
		)
	}

	cli, err := client.New(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	return &BybitExchange{
		client:     cli,
		normalizer: NewNormalizer(),
		market:     cfg.MarketType,
		hasPrivate: cfg.Credential != nil,
	}, nil
}

// Name returns the exchange identifier "bybit".
func (e *BybitExchange) Name() string {
	return exchangeName
}

// Close releases the underlying client and all its connections.
func (e *BybitExchange) Close() error {
	return e.client.Close()
}

// GetTicker retrieves the 24hr ticker for the symbol.
func (e *BybitExchange) GetTicker(ctx context.Context, symbol string, opts ...exchange.Option) (*core.Ticker, error) {
	options := exchange.ApplyOptions(opts...)

	resp, err := call[bybitTickerResult](ctx, e, tickerRequest(e.category(options), symbol))
	if err != nil {
		return nil, err
	}
	if len(resp.Result.List) == 0 {
		return nil, fmt.Errorf("no ticker data for %s", symbol)
	}

	ticker := e.normalizer.NormalizeTicker(&resp.Result.List[0], resp.Time)
	ticker.Symbol = symbol
	return ticker, nil
}

// GetOrderBook retrieves an orderbook snapshot for the symbol.
func (e *BybitExchange) GetOrderBook(ctx context.Context, symbol string, opts ...exchange.Option) (*core.OrderBook, error) {
	options := exchange.ApplyOptions(opts...)
	limit := options.Limit
	if limit <= 0 {
		limit = 25
	}

	resp, err := call[bybitOrderBook](ctx, e, orderBookRequest(e.category(options), symbol, limit))
	if err != nil {
		return nil, err
	}

	book, err := e.normalizer.NormalizeOrderBook(&resp.Result)
	if err != nil {
		return nil, err
	}
	book.Symbol = symbol
	return book, nil
}

// GetTrades retrieves recent public trades as an iterator, oldest
// first.
func (e *BybitExchange) GetTrades(ctx context.Context, symbol string, opts ...exchange.Option) iter.Seq2[*core.Trade, error] {
	return func(yield func(*core.Trade, error) bool) {
		options := exchange.ApplyOptions(opts...)
		limit := options.Limit
		if limit <= 0 {
			limit = 60
		}

		resp, err := call[bybitTradeResult](ctx, e, tradesRequest(e.category(options), symbol, limit))
		if err != nil {
			yield(nil, err)
			return
		}

		trades := e.normalizer.NormalizeTrades(resp.Result.List)
		for i := range trades {
			if !yield(&trades[i], nil) {
				return
			}
		}
	}
}

// GetKlines retrieves candlestick data for the symbol, oldest first.
func (e *BybitExchange) GetKlines(ctx context.Context, symbol string, opts ...exchange.Option) ([]core.Kline, error) {
	options := exchange.ApplyOptions(opts...)
	interval := options.Interval
	if interval == "" {
		interval = defaultInterval
	}
	limit := options.Limit
	if limit <= 0 {
		limit = 200
	}

	req := klinesRequest(e.category(options), symbol, interval, limit, options.StartTime, options.EndTime)
	resp, err := call[bybitKlineResult](ctx, e, req)
	if err != nil {
		return nil, err
	}
	return e.normalizer.NormalizeKlines(resp.Result.List, symbol)
}

// GetBalance retrieves unified account balances. Requires a credential.
func (e *BybitExchange) GetBalance(ctx context.Context, opts ...exchange.Option) ([]core.Balance, error) {
	resp, err := call[bybitAccount](ctx, e, balanceRequest())
	if err != nil {
		return nil, err
	}
	return e.normalizer.NormalizeBalances(&resp.Result)
}

// SubscribeTicker streams ticker updates for the symbol.
func (e *BybitExchange) SubscribeTicker(ctx context.Context, symbol string, opts ...exchange.Option) (*exchange.Subscription[core.Ticker], error) {
	stream, err := e.client.Stream(ctx, marketStream, tickerTopic(symbol))
	if err != nil {
		return nil, err
	}
	return exchange.NewSubscription(stream, decodeTicker), nil
}

// SubscribeTrades streams public trades for the symbol. Frames may
// carry several trades each.
func (e *BybitExchange) SubscribeTrades(ctx context.Context, symbol string, opts ...exchange.Option) (*exchange.Subscription[core.Trade], error) {
	stream, err := e.client.Stream(ctx, marketStream, tradeTopic(symbol))
	if err != nil {
		return nil, err
	}
	return exchange.NewBatchSubscription(stream, decodeTrades), nil
}

// SubscribeOrderBook streams orderbook updates for the symbol at the
// depth from WithLimit, defaulting to 50 levels.
func (e *BybitExchange) SubscribeOrderBook(ctx context.Context, symbol string, opts ...exchange.Option) (*exchange.Subscription[core.OrderBook], error) {
	options := exchange.ApplyOptions(opts...)
	depth := options.Limit
	if depth <= 0 {
		depth = 50
	}

	stream, err := e.client.Stream(ctx, marketStream, orderBookTopic(symbol, depth))
	if err != nil {
		return nil, err
	}
	return exchange.NewSubscription(stream, decodeOrderBook), nil
}

// SubscribeKlines streams candlestick updates for the symbol at the
// interval from WithInterval, defaulting to one minute.
func (e *BybitExchange) SubscribeKlines(ctx context.Context, symbol string, opts ...exchange.Option) (*exchange.Subscription[core.Kline], error) {
	options := exchange.ApplyOptions(opts...)
	interval := options.Interval
	if interval == "" {
		interval = defaultInterval
	}

	stream, err := e.client.Stream(ctx, marketStream, klineTopic(symbol, interval))
	if err != nil {
		return nil, err
	}
	return exchange.NewBatchSubscription(stream, decodeKlines), nil
}

// SubscribePrivate subscribes to an account topic such as "wallet" or
// "order" on the authenticated stream. The raw stream is returned
// because private payload shapes vary by topic.
func (e *BybitExchange) SubscribePrivate(ctx context.Context, topic string) (*client.Stream, error) {
	if !e.hasPrivate {
		return nil, core.ErrNoCredentials
	}
	return e.client.Stream(ctx, privateStream, topic)
}

// category resolves the V5 category for one call. A non-spot market
// type passed per call overrides the configured default.
func (e *BybitExchange) category(options *exchange.Options) string {
	market := e.market
	if options.MarketType != core.MarketTypeSpot {
		market = options.MarketType
	}
	return categoryFor(market)
}

// bybitResponse is the V5 envelope. Business errors surface through
// retCode even when the HTTP status is 200.
type bybitResponse[T any] struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  T      `json:"result"`
	Time    int64  `json:"time"`
}

func call[T any](ctx context.Context, e *BybitExchange, req *core.Request) (*bybitResponse[T], error) {
	var resp bybitResponse[T]
	if err := e.client.Call(ctx, req, &resp); err != nil {
		return nil, mapError(err)
	}
	if resp.RetCode != 0 {
		return nil, apiError(resp.RetCode, resp.RetMsg)
	}
	return &resp, nil
}

// apiError builds an ExchangeError for a business error reported inside
// a 200 response.
func apiError(code int, msg string) *core.ExchangeError {
	exErr := core.NewExchangeError(exchangeName, mapErrorCode(code), http.StatusOK, msg)
	exErr.Code = strconv.Itoa(code)
	return exErr
}

// mapError refines a transport-level exchange error with the Bybit
// envelope fields, when the body carries them.
func mapError(err error) error {
	var exErr *core.ExchangeError
	if !errors.As(err, &exErr) {
		return err
	}

	exErr.Exchange = exchangeName

	var apiErr bybitAPIError
	if len(exErr.RawBody) > 0 {
		if uerr := sonic.Unmarshal(exErr.RawBody, &apiErr); uerr == nil && apiErr.RetCode != 0 {
			exErr.Type = mapErrorCode(apiErr.RetCode)
			exErr.Code = strconv.Itoa(apiErr.RetCode)
			exErr.Message = apiErr.RetMsg
		}
	}

	return exErr
}

// Register creates a Bybit adapter and registers it with the container
// under its exchange name.
func Register(container *exchange.Container, cfg Config, opts ...Option) error {
	ex, err := New(cfg, opts...)
	if err != nil {
		return fmt.Errorf("create bybit exchange: %w", err)
	}
	container.Register(exchangeName, ex)
	return nil
}
