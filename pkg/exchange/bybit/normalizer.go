package bybit

import (
	"fmt"
	"strconv"
	"time"

	"github.com/cockroachdb/apd/v3"

	"nakula/pkg/core"
)

// bybitTicker is one entry of the V5 ticker list. The same shape
// arrives on the tickers stream; spot payloads omit the bid and ask
// fields, which then normalize to zero.
type bybitTicker struct {
	Symbol    string      `json:"symbol"`
	LastPrice apd.Decimal `json:"lastPrice"`
	HighPrice apd.Decimal `json:"highPrice24h"`
	LowPrice  apd.Decimal `json:"lowPrice24h"`
	Volume    apd.Decimal `json:"volume24h"`
	BidPrice  apd.Decimal `json:"bid1Price"`
	AskPrice  apd.Decimal `json:"ask1Price"`
}

// bybitTickerResult is the tickers endpoint result envelope.
type bybitTickerResult struct {
	Category string        `json:"category"`
	List     []bybitTicker `json:"list"`
}

// bybitTrade is one entry of the recent-trade list. The execution time
// arrives as a string of milliseconds.
type bybitTrade struct {
	ExecID string      `json:"execId"`
	Symbol string      `json:"symbol"`
	Price  apd.Decimal `json:"price"`
	Size   apd.Decimal `json:"size"`
	Side   string      `json:"side"`
	Time   string      `json:"time"`
}

// bybitTradeResult is the recent-trade endpoint result envelope.
type bybitTradeResult struct {
	Category string       `json:"category"`
	List     []bybitTrade `json:"list"`
}

// bybitOrderBook is the orderbook result. The REST endpoint and the
// orderbook stream share this shape.
type bybitOrderBook struct {
	Symbol string     `json:"s"`
	Bids   [][]string `json:"b"`
	Asks   [][]string `json:"a"`
	Ts     int64      `json:"ts"`
}

// bybitKlineResult is the kline endpoint result. Rows are positional
// string arrays of start time, open, high, low, close, volume and
// turnover, newest first.
type bybitKlineResult struct {
	Category string     `json:"category"`
	Symbol   string     `json:"symbol"`
	List     [][]string `json:"list"`
}

// bybitCoinBalance is a per-coin entry of the wallet-balance payload.
type bybitCoinBalance struct {
	Coin          string      `json:"coin"`
	WalletBalance apd.Decimal `json:"walletBalance"`
	Locked        apd.Decimal `json:"locked"`
}

// bybitWallet is one account entry of the wallet-balance payload.
type bybitWallet struct {
	AccountType string             `json:"accountType"`
	Coins       []bybitCoinBalance `json:"coin"`
}

// bybitAccount is the wallet-balance result envelope.
type bybitAccount struct {
	List []bybitWallet `json:"list"`
}

// Normalizer converts Bybit payloads to canonical core types.
type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// NormalizeTicker converts a raw ticker to a canonical Ticker. The V5
// ticker carries no timestamp of its own, so the envelope time is
// passed in.
func (n *Normalizer) NormalizeTicker(data *bybitTicker, ts int64) *core.Ticker {
	ticker := &core.Ticker{
		Symbol: parseSymbol(data.Symbol),
		Bid:    data.BidPrice,
		Ask:    data.AskPrice,
		Last:   data.LastPrice,
		High:   data.HighPrice,
		Low:    data.LowPrice,
		Volume: data.Volume,
	}
	if ts > 0 {
		ticker.Timestamp = time.UnixMilli(ts)
	} else {
		ticker.Timestamp = time.Now()
	}
	return ticker
}

// NormalizeTrade converts one public trade.
func (n *Normalizer) NormalizeTrade(data *bybitTrade) *core.Trade {
	return &core.Trade{
		ID:        data.ExecID,
		Symbol:    parseSymbol(data.Symbol),
		Side:      parseSide(data.Side),
		Price:     data.Price,
		Quantity:  data.Size,
		Timestamp: parseMillis(data.Time),
	}
}

// NormalizeTrades converts a trade list. V5 returns trades newest
// first; the result is reversed into ascending time order.
func (n *Normalizer) NormalizeTrades(data []bybitTrade) []core.Trade {
	trades := make([]core.Trade, 0, len(data))
	for i := len(data) - 1; i >= 0; i-- {
		trades = append(trades, *n.NormalizeTrade(&data[i]))
	}
	return trades
}

// NormalizeKline converts one positional kline row. V5 rows carry only
// the open time, so CloseTime stays zero.
func (n *Normalizer) NormalizeKline(row []string, symbol string) (*core.Kline, error) {
	if len(row) < 7 {
		return nil, fmt.Errorf("insufficient kline elements: %d", len(row))
	}

	start, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse start time: %w", err)
	}

	kline := &core.Kline{
		Symbol:   symbol,
		OpenTime: time.UnixMilli(start),
	}

	if err := parseDecimal(&kline.Open, row[1]); err != nil {
		return nil, fmt.Errorf("parse open: %w", err)
	}
	if err := parseDecimal(&kline.High, row[2]); err != nil {
		return nil, fmt.Errorf("parse high: %w", err)
	}
	if err := parseDecimal(&kline.Low, row[3]); err != nil {
		return nil, fmt.Errorf("parse low: %w", err)
	}
	if err := parseDecimal(&kline.Close, row[4]); err != nil {
		return nil, fmt.Errorf("parse close: %w", err)
	}
	if err := parseDecimal(&kline.Volume, row[5]); err != nil {
		return nil, fmt.Errorf("parse volume: %w", err)
	}
	if err := parseDecimal(&kline.QuoteVolume, row[6]); err != nil {
		return nil, fmt.Errorf("parse turnover: %w", err)
	}

	return kline, nil
}

// NormalizeKlines converts a kline series, reversing the newest-first
// order into ascending time.
func (n *Normalizer) NormalizeKlines(data [][]string, symbol string) ([]core.Kline, error) {
	klines := make([]core.Kline, 0, len(data))
	for i := len(data) - 1; i >= 0; i-- {
		kline, err := n.NormalizeKline(data[i], symbol)
		if err != nil {
			return nil, fmt.Errorf("normalize kline: %w", err)
		}
		klines = append(klines, *kline)
	}
	return klines, nil
}

// NormalizeOrderBook converts an orderbook payload.
func (n *Normalizer) NormalizeOrderBook(data *bybitOrderBook) (*core.OrderBook, error) {
	orderBook := &core.OrderBook{
		Symbol: parseSymbol(data.Symbol),
	}
	if data.Ts > 0 {
		orderBook.Timestamp = time.UnixMilli(data.Ts)
	} else {
		orderBook.Timestamp = time.Now()
	}

	bids, err := parseBookLevels(data.Bids)
	if err != nil {
		return nil, fmt.Errorf("normalize bids: %w", err)
	}
	orderBook.Bids = bids

	asks, err := parseBookLevels(data.Asks)
	if err != nil {
		return nil, fmt.Errorf("normalize asks: %w", err)
	}
	orderBook.Asks = asks

	return orderBook, nil
}

// NormalizeBalances extracts every coin across all returned accounts.
// The free amount is derived as wallet balance minus locked.
func (n *Normalizer) NormalizeBalances(account *bybitAccount) ([]core.Balance, error) {
	var balances []core.Balance
	for _, wallet := range account.List {
		for i := range wallet.Coins {
			c := &wallet.Coins[i]
			balance := core.Balance{
				Asset:  c.Coin,
				Locked: c.Locked,
			}
			if _, err := apd.BaseContext.Sub(&balance.Free, &c.WalletBalance, &c.Locked); err != nil {
				return nil, fmt.Errorf("calculate free %s: %w", c.Coin, err)
			}
			balances = append(balances, balance)
		}
	}
	return balances, nil
}

// parseBookLevels parses [price, quantity] string pairs. Rows with fewer
// than two elements are skipped.
func parseBookLevels(levels [][]string) ([]core.OrderBookLevel, error) {
	result := make([]core.OrderBookLevel, 0, len(levels))

	for _, level := range levels {
		if len(level) < 2 {
			continue
		}

		var obl core.OrderBookLevel
		if err := parseDecimal(&obl.Price, level[0]); err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		if err := parseDecimal(&obl.Quantity, level[1]); err != nil {
			return nil, fmt.Errorf("parse quantity: %w", err)
		}

		result = append(result, obl)
	}

	return result, nil
}

func parseDecimal(dest *apd.Decimal, s string) error {
	if s == "" {
		*dest = apd.Decimal{}
		return nil
	}

	if _, _, err := apd.BaseContext.SetString(dest, s); err != nil {
		return fmt.Errorf("set decimal from string: %w", err)
	}
	return nil
}

// parseSide maps the V5 side strings to the taker side.
func parseSide(side string) core.Side {
	if side == "Sell" {
		return core.SideSell
	}
	return core.SideBuy
}

// parseMillis parses a millisecond timestamp string, returning the zero
// time when the field is absent or malformed.
func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
