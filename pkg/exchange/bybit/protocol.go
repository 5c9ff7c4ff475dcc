package bybit

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"nakula/pkg/core"
)

// REST and stream endpoint catalog. A single V5 host serves every
// market; streams split by product under /v5/public, with account
// topics on /v5/private.
const (
	ProductionURL = "https://api.bybit.com"
	SandboxURL    = "https://api-testnet.bybit.com"

	StreamProductionURL = "wss://stream.bybit.com"
	StreamSandboxURL    = "wss://stream-testnet.bybit.com"
)

// Documented request-rate budget shared across V5 market endpoints.
const (
	requestsPerSecond = 20
	requestBurst      = 50
)

func baseURL(cfg Config) string {
	if cfg.BaseURL != "" {
		return cfg.BaseURL
	}
	if cfg.Sandbox {
		return SandboxURL
	}
	return ProductionURL
}

func streamURL(cfg Config) string {
	if cfg.StreamURL != "" {
		return cfg.StreamURL
	}
	return streamHost(cfg) + "/v5/public/" + categoryFor(cfg.MarketType)
}

func privateStreamURL(cfg Config) string {
	if cfg.PrivateStreamURL != "" {
		return cfg.PrivateStreamURL
	}
	return streamHost(cfg) + "/v5/private"
}

func streamHost(cfg Config) string {
	if cfg.Sandbox {
		return StreamSandboxURL
	}
	return StreamProductionURL
}

// categoryFor maps a market type to the V5 category parameter. Futures
// map to the USDT-margined linear product.
func categoryFor(market core.MarketType) string {
	switch market {
	case core.MarketTypeFutures:
		return "linear"
	case core.MarketTypeOptions:
		return "option"
	default:
		return "spot"
	}
}

func tickerRequest(category, symbol string) *core.Request {
	req := core.NewRequest(http.MethodGet, "/v5/market/tickers")
	req.SetQuery("category", category)
	req.SetQuery("symbol", formatSymbol(symbol))
	req.SetWeight(2)
	return req
}

func orderBookRequest(category, symbol string, limit int) *core.Request {
	req := core.NewRequest(http.MethodGet, "/v5/market/orderbook")
	req.SetQuery("category", category)
	req.SetQuery("symbol", formatSymbol(symbol))
	req.SetQuery("limit", strconv.Itoa(limit))
	req.SetWeight(2)
	return req
}

func tradesRequest(category, symbol string, limit int) *core.Request {
	req := core.NewRequest(http.MethodGet, "/v5/market/recent-trade")
	req.SetQuery("category", category)
	req.SetQuery("symbol", formatSymbol(symbol))
	req.SetQuery("limit", strconv.Itoa(limit))
	req.SetWeight(2)
	return req
}

func klinesRequest(category, symbol, interval string, limit int, start, end time.Time) *core.Request {
	req := core.NewRequest(http.MethodGet, "/v5/market/kline")
	req.SetQuery("category", category)
	req.SetQuery("symbol", formatSymbol(symbol))
	req.SetQuery("interval", bybitInterval(interval))
	req.SetQuery("limit", strconv.Itoa(limit))
	if !start.IsZero() {
		req.SetQuery("start", strconv.FormatInt(start.UnixMilli(), 10))
	}
	if !end.IsZero() {
		req.SetQuery("end", strconv.FormatInt(end.UnixMilli(), 10))
	}
	req.SetWeight(2)
	return req
}

func balanceRequest() *core.Request {
	req := core.NewRequest(http.MethodGet, "/v5/account/wallet-balance")
	req.SetQuery("accountType", "UNIFIED")
	req.SetRequireAuth(true)
	req.SetWeight(10)
	return req
}

// bybitInterval translates the canonical interval notation into the V5
// form: minutes and hours as bare minute counts, then D, W and M.
func bybitInterval(interval string) string {
	switch interval {
	case "1m":
		return "1"
	case "3m":
		return "3"
	case "5m":
		return "5"
	case "15m":
		return "15"
	case "30m":
		return "30"
	case "1h":
		return "60"
	case "2h":
		return "120"
	case "4h":
		return "240"
	case "6h":
		return "360"
	case "12h":
		return "720"
	case "1d", "1D":
		return "D"
	case "1w", "1W":
		return "W"
	case "1M":
		return "M"
	default:
		return interval
	}
}

// formatSymbol turns the canonical "BTC/USDT" form into the Bybit
// "BTCUSDT" form.
func formatSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "")
}

// parseSymbol recovers the canonical pair from a Bybit symbol by
// matching known quote currencies. Unrecognized symbols pass through
// unchanged.
func parseSymbol(bybitSymbol string) string {
	quoteCurrencies := []string{"USDT", "USDC", "BTC", "ETH"}

	for _, quote := range quoteCurrencies {
		if base, ok := strings.CutSuffix(bybitSymbol, quote); ok && base != "" {
			return base + "/" + quote
		}
	}

	return bybitSymbol
}

type bybitAPIError struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
}

func mapErrorCode(code int) core.ErrorType {
	switch code {
	case 10002, 10003, 10004, 10005, 10010:
		// Timestamp outside the recv window, invalid key, bad
		// signature, permission denied, IP not whitelisted.
		return core.ErrorTypeAuthentication
	case 10006, 10018:
		return core.ErrorTypeRateLimit
	case 10000, 10016:
		return core.ErrorTypeServerError
	case 10017:
		return core.ErrorTypeNotFound
	default:
		// Remaining 10xxx codes are request-level faults.
		if code >= 10000 && code < 11000 {
			return core.ErrorTypeBadRequest
		}
		return core.ErrorTypeUnknown
	}
}
