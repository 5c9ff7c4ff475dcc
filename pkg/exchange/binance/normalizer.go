package binance

import (
	"fmt"
	"strconv"
	"time"

	"github.com/cockroachdb/apd/v3"

	"nakula/pkg/core"
)

// binanceTicker is the raw 24hr ticker payload. Futures tickers omit the
// bid and ask fields, which then normalize to zero.
type binanceTicker struct {
	Symbol    string      `json:"symbol"`
	LastPrice apd.Decimal `json:"lastPrice"`
	HighPrice apd.Decimal `json:"highPrice"`
	LowPrice  apd.Decimal `json:"lowPrice"`
	Volume    apd.Decimal `json:"volume"`
	BidPrice  apd.Decimal `json:"bidPrice"`
	AskPrice  apd.Decimal `json:"askPrice"`
	CloseTime int64       `json:"closeTime"`
}

// binanceBalance is a single asset entry of the spot account payload.
type binanceBalance struct {
	Asset  string      `json:"asset"`
	Free   apd.Decimal `json:"free"`
	Locked apd.Decimal `json:"locked"`
}

// binanceAccount is the spot account payload.
type binanceAccount struct {
	Balances []binanceBalance `json:"balances"`
}

// binanceFuturesBalance is an entry of the USD-M futures balance payload.
type binanceFuturesBalance struct {
	Asset            string      `json:"asset"`
	Balance          apd.Decimal `json:"balance"`
	AvailableBalance apd.Decimal `json:"availableBalance"`
}

// binanceTrade is one public trade.
type binanceTrade struct {
	ID           int64       `json:"id"`
	Price        apd.Decimal `json:"price"`
	Qty          apd.Decimal `json:"qty"`
	Time         int64       `json:"time"`
	IsBuyerMaker bool        `json:"isBuyerMaker"`
}

// binanceOrderBook is the depth snapshot payload.
type binanceOrderBook struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// binanceKline is one candlestick row. Binance returns klines as
// positional arrays mixing numbers and strings.
type binanceKline []any

// Normalizer converts Binance payloads to canonical core types.
type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// NormalizeTicker converts a raw ticker to a canonical Ticker.
func (n *Normalizer) NormalizeTicker(data *binanceTicker) *core.Ticker {
	ticker := &core.Ticker{
		Symbol: parseSymbol(data.Symbol),
		Bid:    data.BidPrice,
		Ask:    data.AskPrice,
		Last:   data.LastPrice,
		High:   data.HighPrice,
		Low:    data.LowPrice,
		Volume: data.Volume,
	}
	if data.CloseTime > 0 {
		ticker.Timestamp = time.UnixMilli(data.CloseTime)
	} else {
		ticker.Timestamp = time.Now()
	}
	return ticker
}

// NormalizeBalances extracts every asset from a spot account payload.
func (n *Normalizer) NormalizeBalances(account *binanceAccount) []core.Balance {
	balances := make([]core.Balance, 0, len(account.Balances))
	for _, b := range account.Balances {
		balances = append(balances, core.Balance{
			Asset:  b.Asset,
			Free:   b.Free,
			Locked: b.Locked,
		})
	}
	return balances
}

// NormalizeFuturesBalances converts the futures balance list. The locked
// amount is derived as total minus available.
func (n *Normalizer) NormalizeFuturesBalances(data []binanceFuturesBalance) ([]core.Balance, error) {
	balances := make([]core.Balance, 0, len(data))
	for i := range data {
		b := &data[i]
		balance := core.Balance{
			Asset: b.Asset,
			Free:  b.AvailableBalance,
		}
		if _, err := apd.BaseContext.Sub(&balance.Locked, &b.Balance, &b.AvailableBalance); err != nil {
			return nil, fmt.Errorf("calculate locked %s: %w", b.Asset, err)
		}
		balances = append(balances, balance)
	}
	return balances, nil
}

// NormalizeTrade converts one public trade. The symbol is not part of
// the payload and is left for the caller to fill in.
func (n *Normalizer) NormalizeTrade(data *binanceTrade) *core.Trade {
	trade := &core.Trade{
		ID:       strconv.FormatInt(data.ID, 10),
		Side:     parseSideFromBuyerMaker(data.IsBuyerMaker),
		Price:    data.Price,
		Quantity: data.Qty,
	}
	if data.Time > 0 {
		trade.Timestamp = time.UnixMilli(data.Time)
	}
	return trade
}

// NormalizeTrades converts a trade list, stamping each with symbol.
func (n *Normalizer) NormalizeTrades(data []binanceTrade, symbol string) []core.Trade {
	trades := make([]core.Trade, 0, len(data))
	for i := range data {
		trade := n.NormalizeTrade(&data[i])
		trade.Symbol = symbol
		trades = append(trades, *trade)
	}
	return trades
}

// NormalizeKline converts one positional kline row.
func (n *Normalizer) NormalizeKline(data binanceKline, symbol string) (*core.Kline, error) {
	if len(data) < 7 {
		return nil, fmt.Errorf("insufficient kline elements: %d", len(data))
	}

	kline := &core.Kline{
		Symbol: symbol,
	}

	if openTime, ok := data[0].(float64); ok {
		kline.OpenTime = time.UnixMilli(int64(openTime))
	}

	if err := parseDecimalFromAny(&kline.Open, data[1]); err != nil {
		return nil, fmt.Errorf("parse open: %w", err)
	}
	if err := parseDecimalFromAny(&kline.High, data[2]); err != nil {
		return nil, fmt.Errorf("parse high: %w", err)
	}
	if err := parseDecimalFromAny(&kline.Low, data[3]); err != nil {
		return nil, fmt.Errorf("parse low: %w", err)
	}
	if err := parseDecimalFromAny(&kline.Close, data[4]); err != nil {
		return nil, fmt.Errorf("parse close: %w", err)
	}
	if err := parseDecimalFromAny(&kline.Volume, data[5]); err != nil {
		return nil, fmt.Errorf("parse volume: %w", err)
	}

	if closeTime, ok := data[6].(float64); ok {
		kline.CloseTime = time.UnixMilli(int64(closeTime))
	}

	if len(data) > 7 {
		if err := parseDecimalFromAny(&kline.QuoteVolume, data[7]); err != nil {
			kline.QuoteVolume = apd.Decimal{}
		}
	}

	if len(data) > 8 {
		if numTrades, ok := data[8].(float64); ok {
			kline.NumTrades = int64(numTrades)
		}
	}

	return kline, nil
}

// NormalizeKlines converts a kline series.
func (n *Normalizer) NormalizeKlines(data []binanceKline, symbol string) ([]core.Kline, error) {
	klines := make([]core.Kline, 0, len(data))
	for _, k := range data {
		kline, err := n.NormalizeKline(k, symbol)
		if err != nil {
			return nil, fmt.Errorf("normalize kline: %w", err)
		}
		klines = append(klines, *kline)
	}
	return klines, nil
}

// NormalizeOrderBook converts a depth snapshot.
func (n *Normalizer) NormalizeOrderBook(data *binanceOrderBook, symbol string) (*core.OrderBook, error) {
	orderBook := &core.OrderBook{
		Symbol:    symbol,
		Timestamp: time.Now(),
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

func parseDecimalFromAny(dest *apd.Decimal, val any) error {
	switch v := val.(type) {
	case string:
		return parseDecimal(dest, v)
	case float64:
		_, _, err := apd.BaseContext.SetString(dest, strconv.FormatFloat(v, 'f', -1, 64))
		return err
	default:
		return fmt.Errorf("unsupported type for decimal: %T", val)
	}
}

// parseSideFromBuyerMaker derives the taker side: when the buyer was the
// maker, the taker sold.
func parseSideFromBuyerMaker(isBuyerMaker bool) core.Side {
	if isBuyerMaker {
		return core.SideSell
	}
	return core.SideBuy
}
