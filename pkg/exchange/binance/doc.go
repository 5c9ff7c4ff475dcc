// Package binance adapts the Binance spot and USD-M futures APIs to the
// canonical market-data types. It covers REST lookups (tickers, order
// books, recent trades, klines, balances) and the public market streams,
// translating Binance wire formats, stream names, and error codes.
//
// Binance API documentation: https://binance-docs.github.io/apidocs/spot/en
package binance
