package core

import (
	"time"

	"github.com/cockroachdb/apd/v3"
)

// MarketType represents the type of trading market on an exchange.
type MarketType int

// Market type constants define the available trading market categories.
const (
	// MarketTypeSpot indicates spot trading where assets are exchanged immediately.
	MarketTypeSpot MarketType = iota
	// MarketTypeFutures indicates derivatives trading with perpetual or dated contracts.
	MarketTypeFutures
	// MarketTypeOptions indicates options trading.
	MarketTypeOptions
)

// String returns the string representation of the market type ("spot", "futures", or "options").
func (m MarketType) String() string {
	return [...]string{
		"spot",
		"futures",
		"options",
	}[m]
}

// Side represents the direction of a trade (buy or sell). For public
// trade feeds it is the taker side.
type Side int

// Side constants define the direction of a trade.
const (
	// SideBuy indicates the taker bought the base asset.
	SideBuy Side = iota
	// SideSell indicates the taker sold the base asset.
	SideSell
)

// String returns the string representation of the side ("BUY" or "SELL").
func (s Side) String() string {
	return [...]string{"BUY", "SELL"}[s]
}

// MarshalJSON implements json.Marshaler for Side.
func (s Side) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for Side.
// It accepts uppercase, lowercase and capitalized forms.
func (s *Side) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"BUY"`, `"buy"`, `"Buy"`:
		*s = SideBuy
	case `"SELL"`, `"sell"`, `"Sell"`:
		*s = SideSell
	}
	return nil
}

// Ticker represents real-time market data for a trading pair.
// It contains current bid/ask prices, 24-hour high/low, and volume statistics.
type Ticker struct {
	// Symbol is the trading pair identifier (e.g., "BTC/USDT").
	Symbol string `json:"symbol"`
	// Bid is the highest price a buyer is willing to pay.
	Bid apd.Decimal `json:"bid"`
	// Ask is the lowest price a seller is willing to accept.
	Ask apd.Decimal `json:"ask"`
	// Last is the price of the most recent trade.
	Last apd.Decimal `json:"last"`
	// High is the highest price in the last 24 hours.
	High apd.Decimal `json:"high"`
	// Low is the lowest price in the last 24 hours.
	Low apd.Decimal `json:"low"`
	// Volume is the total trading volume in the last 24 hours.
	Volume apd.Decimal `json:"volume"`
	// Timestamp is when this ticker data was generated.
	Timestamp time.Time `json:"timestamp"`
}

// Trade represents a single public trade on an exchange.
type Trade struct {
	// ID is the exchange-assigned trade identifier.
	ID string `json:"id"`
	// Symbol is the trading pair for this trade.
	Symbol string `json:"symbol"`
	// Side is the taker side of the trade.
	Side Side `json:"side"`
	// Price is the execution price.
	Price apd.Decimal `json:"price"`
	// Quantity is the amount executed.
	Quantity apd.Decimal `json:"quantity"`
	// Timestamp is when the trade was executed.
	Timestamp time.Time `json:"timestamp"`
}

// Kline represents a candlestick/OHLCV data point for a time period.
// It contains open, high, low, close prices and volume for the interval.
type Kline struct {
	// Symbol is the trading pair for this kline.
	Symbol string `json:"symbol"`
	// OpenTime is the start of the candlestick period.
	OpenTime time.Time `json:"open_time"`
	// Open is the price at the start of the period.
	Open apd.Decimal `json:"open"`
	// High is the highest price during the period.
	High apd.Decimal `json:"high"`
	// Low is the lowest price during the period.
	Low apd.Decimal `json:"low"`
	// Close is the price at the end of the period.
	Close apd.Decimal `json:"close"`
	// Volume is the total trading volume during the period.
	Volume apd.Decimal `json:"volume"`
	// CloseTime is the end of the candlestick period.
	CloseTime time.Time `json:"close_time"`
	// QuoteVolume is the total value traded in quote currency.
	QuoteVolume apd.Decimal `json:"quote_volume"`
	// NumTrades is the number of trades executed during the period.
	NumTrades int64 `json:"num_trades"`
}

// OrderBookLevel represents a single price level in the order book.
type OrderBookLevel struct {
	// Price is the limit price for this level.
	Price apd.Decimal `json:"price"`
	// Quantity is the total quantity available at this price.
	Quantity apd.Decimal `json:"quantity"`
}

// OrderBook represents the current state of the order book for a trading pair.
// It contains sorted lists of bids (buy orders) and asks (sell orders).
type OrderBook struct {
	// Symbol is the trading pair for this order book.
	Symbol string `json:"symbol"`
	// Bids are buy orders sorted by price descending.
	Bids []OrderBookLevel `json:"bids"`
	// Asks are sell orders sorted by price ascending.
	Asks []OrderBookLevel `json:"asks"`
	// Timestamp is when this snapshot was taken.
	Timestamp time.Time `json:"timestamp"`
}

// Balance represents account balance for a single asset.
type Balance struct {
	// Asset is the currency or token symbol (e.g., "BTC", "USDT").
	Asset string `json:"asset"`
	// Free is the available balance for trading.
	Free apd.Decimal `json:"free"`
	// Locked is the balance locked in open orders.
	Locked apd.Decimal `json:"locked"`
}
