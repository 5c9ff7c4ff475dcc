package binance

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"nakula/pkg/core"
)

// REST and stream endpoint catalog. Spot and USD-M futures live on
// different hosts, so an adapter instance is bound to one market.
const (
	ProductionURL        = "https://api.binance.com"
	SandboxURL           = "https://testnet.binance.vision"
	FuturesProductionURL = "https://fapi.binance.com"
	FuturesSandboxURL    = "https://testnet.binancefuture.com"

	StreamProductionURL        = "wss://stream.binance.com:9443/ws"
	StreamSandboxURL           = "wss://testnet.binance.vision/ws"
	FuturesStreamProductionURL = "wss://fstream.binance.com/ws"
	FuturesStreamSandboxURL    = "wss://stream.binancefuture.com/ws"
)

// Documented request-rate budget for the default API key tier.
const (
	requestsPerSecond = 20
	requestBurst      = 50
)

func baseURL(cfg Config) string {
	if cfg.BaseURL != "" {
		return cfg.BaseURL
	}
	switch cfg.MarketType {
	case core.MarketTypeFutures:
		if cfg.Sandbox {
			return FuturesSandboxURL
		}
		return FuturesProductionURL
	default:
		if cfg.Sandbox {
			return SandboxURL
		}
		return ProductionURL
	}
}

func streamURL(cfg Config) string {
	if cfg.StreamURL != "" {
		return cfg.StreamURL
	}
	switch cfg.MarketType {
	case core.MarketTypeFutures:
		if cfg.Sandbox {
			return FuturesStreamSandboxURL
		}
		return FuturesStreamProductionURL
	default:
		if cfg.Sandbox {
			return StreamSandboxURL
		}
		return StreamProductionURL
	}
}

func marketPath(market core.MarketType, spot, futures string) string {
	if market == core.MarketTypeFutures {
		return futures
	}
	return spot
}

func tickerRequest(symbol string, market core.MarketType) *core.Request {
	req := core.NewRequest(http.MethodGet, marketPath(market, "/api/v3/ticker/24hr", "/fapi/v1/ticker/24hr"))
	req.SetQuery("symbol", formatSymbol(symbol))
	req.SetWeight(2)
	return req
}

func orderBookRequest(symbol string, limit int, market core.MarketType) *core.Request {
	req := core.NewRequest(http.MethodGet, marketPath(market, "/api/v3/depth", "/fapi/v1/depth"))
	req.SetQuery("symbol", formatSymbol(symbol))
	req.SetQuery("limit", strconv.Itoa(limit))
	req.SetWeight(2 + limit/50)
	return req
}

func tradesRequest(symbol string, limit int, market core.MarketType) *core.Request {
	req := core.NewRequest(http.MethodGet, marketPath(market, "/api/v3/trades", "/fapi/v1/trades"))
	req.SetQuery("symbol", formatSymbol(symbol))
	req.SetQuery("limit", strconv.Itoa(limit))
	req.SetWeight(2)
	return req
}

func klinesRequest(symbol, interval string, limit int, start, end time.Time, market core.MarketType) *core.Request {
	req := core.NewRequest(http.MethodGet, marketPath(market, "/api/v3/klines", "/fapi/v1/klines"))
	req.SetQuery("symbol", formatSymbol(symbol))
	req.SetQuery("interval", interval)
	req.SetQuery("limit", strconv.Itoa(limit))
	if !start.IsZero() {
		req.SetQuery("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	}
	if !end.IsZero() {
		req.SetQuery("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	}
	req.SetWeight(2)
	return req
}

func balanceRequest(market core.MarketType) *core.Request {
	if market == core.MarketTypeFutures {
		req := core.NewRequest(http.MethodGet, "/fapi/v2/balance")
		req.SetRequireAuth(true)
		req.SetWeight(5)
		return req
	}
	req := core.NewRequest(http.MethodGet, "/api/v3/account")
	req.SetRequireAuth(true)
	req.SetWeight(10)
	return req
}

// formatSymbol turns the canonical "BTC/USDT" form into the Binance
// "BTCUSDT" form.
func formatSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "")
}

// parseSymbol recovers the canonical pair from a Binance symbol by
// matching known quote currencies. Unrecognized symbols pass through
// unchanged.
func parseSymbol(binanceSymbol string) string {
	quoteCurrencies := []string{"USDT", "BUSD", "USDC", "BTC", "ETH", "BNB"}

	for _, quote := range quoteCurrencies {
		if base, ok := strings.CutSuffix(binanceSymbol, quote); ok && base != "" {
			return base + "/" + quote
		}
	}

	return binanceSymbol
}

type binanceAPIError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func mapErrorCode(code int) core.ErrorType {
	switch code {
	case -1003, -1015:
		return core.ErrorTypeRateLimit
	case -1002, -1021, -1022, -2014, -2015:
		return core.ErrorTypeAuthentication
	default:
		// -11xx are malformed-request codes (unknown symbol, bad
		// parameter, mandatory parameter missing).
		if code <= -1100 && code >= -1199 {
			return core.ErrorTypeBadRequest
		}
		return core.ErrorTypeUnknown
	}
}
