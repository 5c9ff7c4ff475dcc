package exchange

import (
	"context"
	"iter"

	"nakula/pkg/core"
)

// Exchange is the unified market-data surface implemented by the
// per-venue adapters. REST getters return canonical decimal types;
// Subscribe methods deliver typed updates until the subscription or the
// exchange itself is closed.
type Exchange interface {
	Name() string

	GetTicker(ctx context.Context, symbol string, opts ...Option) (*core.Ticker, error)
	GetOrderBook(ctx context.Context, symbol string, opts ...Option) (*core.OrderBook, error)
	GetTrades(ctx context.Context, symbol string, opts ...Option) iter.Seq2[*core.Trade, error]
	GetKlines(ctx context.Context, symbol string, opts ...Option) ([]core.Kline, error)

	GetBalance(ctx context.Context, opts ...Option) ([]core.Balance, error)

	SubscribeTicker(ctx context.Context, symbol string, opts ...Option) (*Subscription[core.Ticker], error)
	SubscribeTrades(ctx context.Context, symbol string, opts ...Option) (*Subscription[core.Trade], error)
	SubscribeOrderBook(ctx context.Context, symbol string, opts ...Option) (*Subscription[core.OrderBook], error)
	SubscribeKlines(ctx context.Context, symbol string, opts ...Option) (*Subscription[core.Kline], error)

	Close() error
}
