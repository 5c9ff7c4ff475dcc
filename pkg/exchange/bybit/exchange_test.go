package bybit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nakula/pkg/core"
	"nakula/pkg/exchange"
)

var _ exchange.Exchange = (*BybitExchange)(nil)

func newTestExchange(t *testing.T, handler http.Handler, cfg Config) *BybitExchange {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg.BaseURL = srv.URL
	ex, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ex.Close() })

	return ex
}

func testCredential(t *testing.T) *core.Credential {
	t.Helper()
	cred, err := core.NewCredential("test-key", "test-secret")
	require.NoError(t, err)
	return cred
}

func TestBaseURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"production", Config{}, ProductionURL},
		{"sandbox", Config{Sandbox: true}, SandboxURL},
		{"override", Config{BaseURL: "http://127.0.0.1:9"}, "http://127.0.0.1:9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, baseURL(tt.cfg))
		})
	}
}

func TestStreamURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"spot production", Config{}, "wss://stream.bybit.com/v5/public/spot"},
		{"linear production", Config{MarketType: core.MarketTypeFutures}, "wss://stream.bybit.com/v5/public/linear"},
		{"spot sandbox", Config{Sandbox: true}, "wss://stream-testnet.bybit.com/v5/public/spot"},
		{"override", Config{StreamURL: "ws://127.0.0.1:9"}, "ws://127.0.0.1:9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, streamURL(tt.cfg))
		})
	}
}

func TestPrivateStreamURL(t *testing.T) {
	assert.Equal(t, "wss://stream.bybit.com/v5/private", privateStreamURL(Config{}))
	assert.Equal(t, "wss://stream-testnet.bybit.com/v5/private", privateStreamURL(Config{Sandbox: true}))
	assert.Equal(t, "ws://127.0.0.1:9", privateStreamURL(Config{PrivateStreamURL: "ws://127.0.0.1:9"}))
}

func TestCategoryFor(t *testing.T) {
	assert.Equal(t, "spot", categoryFor(core.MarketTypeSpot))
	assert.Equal(t, "linear", categoryFor(core.MarketTypeFutures))
	assert.Equal(t, "option", categoryFor(core.MarketTypeOptions))
}

func TestGetTicker(t *testing.T) {
	ex := newTestExchange(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v5/market/tickers", r.URL.Path)
		assert.Equal(t, "spot", r.URL.Query().Get("category"))
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{
			"retCode": 0,
			"retMsg": "OK",
			"result": {
				"category": "spot",
				"list": [{
					"symbol": "BTCUSDT",
					"lastPrice": "50000.10",
					"highPrice24h": "51000.00",
					"lowPrice24h": "49000.00",
					"volume24h": "1234.56789",
					"bid1Price": "49999.99",
					"ask1Price": "50000.11"
				}]
			},
			"time": 1700000000000
		}`))
	}), Config{})

	ticker, err := ex.GetTicker(context.Background(), "BTC/USDT")
	require.NoError(t, err)

	assert.Equal(t, "BTC/USDT", ticker.Symbol)
	assert.Equal(t, "50000.10", ticker.Last.String())
	assert.Equal(t, "49999.99", ticker.Bid.String())
	assert.Equal(t, "50000.11", ticker.Ask.String())
	assert.Equal(t, "1234.56789", ticker.Volume.String())
	assert.Equal(t, int64(1700000000000), ticker.Timestamp.UnixMilli())
}

func TestGetTicker_CategoryOverride(t *testing.T) {
	ex := newTestExchange(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "linear", r.URL.Query().Get("category"))
		w.Write([]byte(`{
			"retCode": 0,
			"retMsg": "OK",
			"result": {"category": "linear", "list": [{"symbol": "BTCUSDT", "lastPrice": "50000"}]},
			"time": 1700000000000
		}`))
	}), Config{})

	_, err := ex.GetTicker(context.Background(), "BTC/USDT", exchange.WithMarketType(core.MarketTypeFutures))
	require.NoError(t, err)
}

func TestGetTicker_EmptyList(t *testing.T) {
	ex := newTestExchange(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode": 0, "retMsg": "OK", "result": {"category": "spot", "list": []}, "time": 1}`))
	}), Config{})

	_, err := ex.GetTicker(context.Background(), "NOPE/USDT")
	assert.ErrorContains(t, err, "no ticker data")
}

func TestGetOrderBook(t *testing.T) {
	ex := newTestExchange(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v5/market/orderbook", r.URL.Path)
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		w.Write([]byte(`{
			"retCode": 0,
			"retMsg": "OK",
			"result": {
				"s": "BTCUSDT",
				"b": [["49999.00", "4.0"], ["49998.50", "2.5"]],
				"a": [["50001.00", "1.0"]],
				"ts": 1700000000123,
				"u": 18521288
			},
			"time": 1700000000150
		}`))
	}), Config{})

	book, err := ex.GetOrderBook(context.Background(), "BTC/USDT")
	require.NoError(t, err)

	assert.Equal(t, "BTC/USDT", book.Symbol)
	require.Len(t, book.Bids, 2)
	require.Len(t, book.Asks, 1)
	assert.Equal(t, "49999.00", book.Bids[0].Price.String())
	assert.Equal(t, "4.0", book.Bids[0].Quantity.String())
	assert.Equal(t, "50001.00", book.Asks[0].Price.String())
	assert.Equal(t, int64(1700000000123), book.Timestamp.UnixMilli())
}

func TestGetTrades_ReversesToAscending(t *testing.T) {
	ex := newTestExchange(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v5/market/recent-trade", r.URL.Path)
		assert.Equal(t, "60", r.URL.Query().Get("limit"))
		w.Write([]byte(`{
			"retCode": 0,
			"retMsg": "OK",
			"result": {
				"category": "spot",
				"list": [
					{"execId": "2", "symbol": "ETHUSDT", "price": "3000.50", "size": "0.5", "side": "Sell", "time": "1700000000100"},
					{"execId": "1", "symbol": "ETHUSDT", "price": "3000.00", "size": "1.0", "side": "Buy", "time": "1700000000000"}
				]
			},
			"time": 1700000000200
		}`))
	}), Config{})

	var trades []*core.Trade
	for trade, err := range ex.GetTrades(context.Background(), "ETH/USDT") {
		require.NoError(t, err)
		trades = append(trades, trade)
	}

	require.Len(t, trades, 2)
	assert.Equal(t, "1", trades[0].ID)
	assert.Equal(t, "ETH/USDT", trades[0].Symbol)
	assert.Equal(t, core.SideBuy, trades[0].Side)
	assert.Equal(t, int64(1700000000000), trades[0].Timestamp.UnixMilli())
	assert.Equal(t, "2", trades[1].ID)
	assert.Equal(t, core.SideSell, trades[1].Side)
	assert.Equal(t, "0.5", trades[1].Quantity.String())
}

func TestGetTrades_StopsEarly(t *testing.T) {
	ex := newTestExchange(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"retCode": 0,
			"retMsg": "OK",
			"result": {"category": "spot", "list": [
				{"execId": "2", "symbol": "BTCUSDT", "price": "2.0", "size": "2.0", "side": "Buy", "time": "2"},
				{"execId": "1", "symbol": "BTCUSDT", "price": "1.0", "size": "1.0", "side": "Buy", "time": "1"}
			]},
			"time": 3
		}`))
	}), Config{})

	count := 0
	for _, err := range ex.GetTrades(context.Background(), "BTC/USDT") {
		require.NoError(t, err)
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestGetKlines(t *testing.T) {
	ex := newTestExchange(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v5/market/kline", r.URL.Path)
		assert.Equal(t, "60", r.URL.Query().Get("interval"))
		assert.Equal(t, "200", r.URL.Query().Get("limit"))
		w.Write([]byte(`{
			"retCode": 0,
			"retMsg": "OK",
			"result": {
				"category": "spot",
				"symbol": "BTCUSDT",
				"list": [
					["1700003600000", "105.0", "112.0", "104.0", "108.0", "900.0", "97200.0"],
					["1700000000000", "100.0", "110.0", "95.0", "105.0", "1000.0", "105000.0"]
				]
			},
			"time": 1700007200000
		}`))
	}), Config{})

	klines, err := ex.GetKlines(context.Background(), "BTC/USDT", exchange.WithInterval("1h"))
	require.NoError(t, err)

	require.Len(t, klines, 2)
	assert.Equal(t, "BTC/USDT", klines[0].Symbol)
	assert.Equal(t, int64(1700000000000), klines[0].OpenTime.UnixMilli())
	assert.Equal(t, "100.0", klines[0].Open.String())
	assert.Equal(t, "105.0", klines[0].Close.String())
	assert.Equal(t, "105000.0", klines[0].QuoteVolume.String())
	assert.Equal(t, int64(1700003600000), klines[1].OpenTime.UnixMilli())
}

func TestGetBalance_RequiresCredential(t *testing.T) {
	ex := newTestExchange(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be reached without credentials")
	}), Config{})

	_, err := ex.GetBalance(context.Background())
	assert.ErrorIs(t, err, core.ErrNoCredentials)
}

func TestGetBalance_DerivesFree(t *testing.T) {
	ex := newTestExchange(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v5/account/wallet-balance", r.URL.Path)
		assert.Equal(t, "UNIFIED", r.URL.Query().Get("accountType"))
		assert.Equal(t, "test-key", r.Header.Get("X-BAPI-API-KEY"))
		assert.NotEmpty(t, r.Header.Get("X-BAPI-TIMESTAMP"))
		assert.Len(t, r.Header.Get("X-BAPI-SIGN"), 64)
		w.Write([]byte(`{
			"retCode": 0,
			"retMsg": "OK",
			"result": {
				"list": [{
					"accountType": "UNIFIED",
					"coin": [
						{"coin": "BTC", "walletBalance": "1.50000000", "locked": "0.10000000"},
						{"coin": "USDT", "walletBalance": "1000.00", "locked": "0.00"}
					]
				}]
			},
			"time": 1700000000000
		}`))
	}), Config{Credential: testCredential(t)})

	balances, err := ex.GetBalance(context.Background())
	require.NoError(t, err)

	require.Len(t, balances, 2)
	assert.Equal(t, "BTC", balances[0].Asset)
	assert.Equal(t, "1.40000000", balances[0].Free.String())
	assert.Equal(t, "0.10000000", balances[0].Locked.String())
	assert.Equal(t, "USDT", balances[1].Asset)
	assert.Equal(t, "1000.00", balances[1].Free.String())
}

func TestCall_MapsBusinessError(t *testing.T) {
	ex := newTestExchange(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode": 10001, "retMsg": "params error: symbol invalid", "result": {}, "time": 1700000000000}`))
	}), Config{})

	_, err := ex.GetTicker(context.Background(), "NOPE/USDT")
	require.Error(t, err)

	var exErr *core.ExchangeError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, "bybit", exErr.Exchange)
	assert.Equal(t, core.ErrorTypeBadRequest, exErr.Type)
	assert.Equal(t, "10001", exErr.Code)
	assert.Equal(t, "params error: symbol invalid", exErr.Message)
	assert.Equal(t, http.StatusOK, exErr.StatusCode)
}

func TestCall_MapsTransportError(t *testing.T) {
	ex := newTestExchange(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"retCode": 10006, "retMsg": "Too many visits!"}`))
	}), Config{})

	_, err := ex.GetTicker(context.Background(), "BTC/USDT")
	require.Error(t, err)

	var exErr *core.ExchangeError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, "bybit", exErr.Exchange)
	assert.Equal(t, core.ErrorTypeRateLimit, exErr.Type)
	assert.Equal(t, "10006", exErr.Code)
	assert.Equal(t, http.StatusForbidden, exErr.StatusCode)
}

func TestCall_KeepsStatusClassificationWithoutBody(t *testing.T) {
	ex := newTestExchange(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}), Config{})

	_, err := ex.GetTicker(context.Background(), "BTC/USDT")
	require.Error(t, err)

	var exErr *core.ExchangeError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, "bybit", exErr.Exchange)
	assert.Equal(t, core.ErrorTypeServerError, exErr.Type)
}

func TestSubscribePrivate_RequiresCredential(t *testing.T) {
	ex := newTestExchange(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be reached without credentials")
	}), Config{})

	_, err := ex.SubscribePrivate(context.Background(), "wallet")
	assert.ErrorIs(t, err, core.ErrNoCredentials)
}

func TestMapErrorCode(t *testing.T) {
	tests := []struct {
		code int
		want core.ErrorType
	}{
		{10002, core.ErrorTypeAuthentication},
		{10003, core.ErrorTypeAuthentication},
		{10004, core.ErrorTypeAuthentication},
		{10005, core.ErrorTypeAuthentication},
		{10010, core.ErrorTypeAuthentication},
		{10006, core.ErrorTypeRateLimit},
		{10018, core.ErrorTypeRateLimit},
		{10000, core.ErrorTypeServerError},
		{10016, core.ErrorTypeServerError},
		{10017, core.ErrorTypeNotFound},
		{10001, core.ErrorTypeBadRequest},
		{10029, core.ErrorTypeBadRequest},
		{110001, core.ErrorTypeUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, mapErrorCode(tt.code), "code %d", tt.code)
	}
}

func TestBybitInterval(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1m", "1"},
		{"5m", "5"},
		{"30m", "30"},
		{"1h", "60"},
		{"4h", "240"},
		{"12h", "720"},
		{"1d", "D"},
		{"1w", "W"},
		{"1M", "M"},
		{"D", "D"},
		{"7", "7"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, bybitInterval(tt.in), "interval %s", tt.in)
	}
}

func TestParseSymbol(t *testing.T) {
	assert.Equal(t, "BTC/USDT", parseSymbol("BTCUSDT"))
	assert.Equal(t, "ETH/BTC", parseSymbol("ETHBTC"))
	assert.Equal(t, "WEIRD", parseSymbol("WEIRD"))
	assert.Equal(t, "USDT", parseSymbol("USDT"))
}

func TestFormatSymbol(t *testing.T) {
	assert.Equal(t, "BTCUSDT", formatSymbol("BTC/USDT"))
	assert.Equal(t, "BTCUSDT", formatSymbol("BTCUSDT"))
}

func TestRegister(t *testing.T) {
	container := exchange.NewContainer()

	err := Register(container, Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close() })

	ex, err := container.Get("bybit")
	require.NoError(t, err)
	assert.Equal(t, "bybit", ex.Name())
}
