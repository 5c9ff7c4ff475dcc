// Package aggregate combines market data from several exchange
// adapters into cross-venue views: per-venue tickers, best bid/ask,
// merged depth, order-book VWAP and venue-to-venue spreads.
package aggregate

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/rs/zerolog"

	"nakula/pkg/core"
	"nakula/pkg/exchange"
)

// decCtx carries the precision for cross-venue price math. BaseContext
// alone cannot divide; exact quotients may not terminate.
var decCtx = apd.BaseContext.WithPrecision(16)

// Aggregator fans market-data requests out to a set of named exchange
// adapters and reduces the answers. Venue failures never fail a whole
// fan-out; they are reported per venue or skipped by the reducers.
// Safe for concurrent use.
type Aggregator struct {
	mu     sync.RWMutex
	venues map[string]exchange.Exchange
	logger zerolog.Logger
}

// Option customizes an Aggregator.
type Option func(*Aggregator)

// WithLogger attaches a logger for per-venue failure reporting.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// New creates an aggregator with no venues registered.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		venues: make(map[string]exchange.Exchange),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// FromContainer creates an aggregator over every adapter currently
// registered in the container. Later container changes are not
// tracked.
func FromContainer(c *exchange.Container, opts ...Option) *Aggregator {
	a := New(opts...)
	for _, name := range c.Names() {
		ex, err := c.Get(name)
		if err != nil {
			continue
		}
		a.Add(name, ex)
	}
	return a
}

// Add registers an adapter under the given venue name, replacing any
// previous registration with that name.
func (a *Aggregator) Add(name string, ex exchange.Exchange) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.venues[name] = ex
}

// Remove unregisters a venue. The adapter is not closed.
func (a *Aggregator) Remove(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.venues, name)
}

// Venues returns the registered venue names in sorted order.
func (a *Aggregator) Venues() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	names := make([]string, 0, len(a.venues))
	for name := range a.venues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (a *Aggregator) snapshot() map[string]exchange.Exchange {
	a.mu.RLock()
	defer a.mu.RUnlock()

	venues := make(map[string]exchange.Exchange, len(a.venues))
	maps.Copy(venues, a.venues)
	return venues
}

type venueResult[T any] struct {
	venue string
	value T
	err   error
}

// fanOut runs fetch against every venue concurrently and collects all
// results. Per-venue errors land in the result, never abort the rest.
func fanOut[T any](ctx context.Context, venues map[string]exchange.Exchange, fetch func(context.Context, exchange.Exchange) (T, error)) []venueResult[T] {
	results := make(chan venueResult[T], len(venues))
	var wg sync.WaitGroup

	for name, ex := range venues {
		wg.Add(1)
		go func() {
			defer wg.Done()

			select {
			case <-ctx.Done():
				results <- venueResult[T]{venue: name, err: ctx.Err()}
				return
			default:
			}

			v, err := fetch(ctx, ex)
			results <- venueResult[T]{venue: name, value: v, err: err}
		}()
	}

	wg.Wait()
	close(results)

	out := make([]venueResult[T], 0, len(venues))
	for r := range results {
		out = append(out, r)
	}
	return out
}

// TickerResult is one venue's answer to a ticker fan-out.
type TickerResult struct {
	// Venue names the adapter that produced this result.
	Venue string `json:"venue"`
	// Ticker holds the market data; nil when Err is set.
	Ticker *core.Ticker `json:"ticker,omitempty"`
	// Err is the venue's failure, if any.
	Err error `json:"-"`
}

// Tickers fetches the symbol's ticker from every venue concurrently.
// Results come back sorted by venue name, failures included.
func (a *Aggregator) Tickers(ctx context.Context, symbol string) []TickerResult {
	fetched := fanOut(ctx, a.snapshot(), func(ctx context.Context, ex exchange.Exchange) (*core.Ticker, error) {
		return ex.GetTicker(ctx, symbol)
	})

	results := make([]TickerResult, 0, len(fetched))
	for _, r := range fetched {
		if r.err != nil {
			a.logger.Debug().Err(r.err).Str("venue", r.venue).Str("symbol", symbol).Msg("ticker fan-out failure")
			results = append(results, TickerResult{Venue: r.venue, Err: fmt.Errorf("get ticker: %w", r.err)})
			continue
		}
		results = append(results, TickerResult{Venue: r.venue, Ticker: r.value})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Venue < results[j].Venue })
	return results
}

// BestQuote is the tightest view of a symbol across venues: the
// highest bid and the lowest ask anywhere, with the spread between
// them.
type BestQuote struct {
	Symbol string `json:"symbol"`
	// Bid is the highest bid found on any venue.
	Bid apd.Decimal `json:"bid"`
	// Ask is the lowest ask found on any venue.
	Ask apd.Decimal `json:"ask"`
	// BidVenue and AskVenue name the venues quoting Bid and Ask.
	BidVenue string `json:"bid_venue"`
	AskVenue string `json:"ask_venue"`
	// Spread is Ask minus Bid; negative when the venues cross.
	Spread apd.Decimal `json:"spread"`
	// SpreadPercent is the spread as a percentage of Bid.
	SpreadPercent apd.Decimal `json:"spread_percent"`
	// Timestamp is the most recent update among the contributing
	// tickers.
	Timestamp time.Time `json:"timestamp"`
}

// BestQuote finds the highest bid and lowest ask for a symbol across
// all venues. Venues that fail are skipped; at least one must answer.
func (a *Aggregator) BestQuote(ctx context.Context, symbol string) (*BestQuote, error) {
	var (
		quote BestQuote
		found bool
	)
	quote.Symbol = symbol

	for _, r := range a.Tickers(ctx, symbol) {
		if r.Err != nil || r.Ticker == nil {
			continue
		}

		ticker := r.Ticker
		if !found {
			quote.Bid = ticker.Bid
			quote.Ask = ticker.Ask
			quote.BidVenue = r.Venue
			quote.AskVenue = r.Venue
			quote.Timestamp = ticker.Timestamp
			found = true
			continue
		}

		if ticker.Bid.Cmp(&quote.Bid) > 0 {
			quote.Bid = ticker.Bid
			quote.BidVenue = r.Venue
		}
		if ticker.Ask.Cmp(&quote.Ask) < 0 {
			quote.Ask = ticker.Ask
			quote.AskVenue = r.Venue
		}
		if ticker.Timestamp.After(quote.Timestamp) {
			quote.Timestamp = ticker.Timestamp
		}
	}

	if !found {
		return nil, fmt.Errorf("no ticker data for %s", symbol)
	}

	if _, err := decCtx.Sub(&quote.Spread, &quote.Ask, &quote.Bid); err != nil {
		return nil, fmt.Errorf("calculate spread: %w", err)
	}
	pct, err := percentOf(&quote.Spread, &quote.Bid)
	if err != nil {
		return nil, fmt.Errorf("calculate spread percent: %w", err)
	}
	quote.SpreadPercent = pct

	return &quote, nil
}

// VWAP is a volume-weighted average price computed over order-book
// depth pooled from every venue.
type VWAP struct {
	Symbol string `json:"symbol"`
	// Price is the volume-weighted average over all pooled levels.
	Price apd.Decimal `json:"price"`
	// Volume is the total quantity behind the average.
	Volume apd.Decimal `json:"volume"`
	// Levels is the count of order-book levels pooled.
	Levels int `json:"levels"`
	// Venues lists the venues that contributed depth, sorted.
	Venues []string `json:"venues"`
}

// VWAP pools up to depth levels per side from every venue's order book
// and returns the volume-weighted average price. A depth of zero takes
// each venue's default depth.
func (a *Aggregator) VWAP(ctx context.Context, symbol string, depth int) (*VWAP, error) {
	books := a.books(ctx, symbol, depth)

	var totalValue, totalVolume apd.Decimal
	levels := 0
	venues := make([]string, 0, len(books))

	for _, r := range books {
		if r.err != nil || r.value == nil {
			continue
		}
		venues = append(venues, r.venue)

		for _, side := range [2][]core.OrderBookLevel{r.value.Bids, r.value.Asks} {
			for _, level := range side {
				var value apd.Decimal
				if _, err := decCtx.Mul(&value, &level.Price, &level.Quantity); err != nil {
					return nil, fmt.Errorf("accumulate depth: %w", err)
				}
				if _, err := decCtx.Add(&totalValue, &totalValue, &value); err != nil {
					return nil, fmt.Errorf("accumulate depth: %w", err)
				}
				if _, err := decCtx.Add(&totalVolume, &totalVolume, &level.Quantity); err != nil {
					return nil, fmt.Errorf("accumulate depth: %w", err)
				}
				levels++
			}
		}
	}

	if totalVolume.IsZero() {
		return nil, fmt.Errorf("no order book data for %s", symbol)
	}

	result := &VWAP{Symbol: symbol, Volume: totalVolume, Levels: levels, Venues: venues}
	if _, err := decCtx.Quo(&result.Price, &totalValue, &totalVolume); err != nil {
		return nil, fmt.Errorf("calculate vwap: %w", err)
	}
	sort.Strings(result.Venues)
	return result, nil
}

// MergedBook is a depth view pooled across venues. Levels quoting the
// same price are combined by summing their quantities.
type MergedBook struct {
	Symbol string `json:"symbol"`
	// Bids are merged bid levels sorted by price descending.
	Bids []core.OrderBookLevel `json:"bids"`
	// Asks are merged ask levels sorted by price ascending.
	Asks []core.OrderBookLevel `json:"asks"`
	// Venues lists the venues that contributed depth, sorted.
	Venues []string `json:"venues"`
	// Timestamp is the most recent book update among the venues.
	Timestamp time.Time `json:"timestamp"`
}

// MergedBook pools order-book depth from every venue into one book,
// combining levels at equal prices and keeping at most depth levels
// per side. A depth of zero keeps everything.
func (a *Aggregator) MergedBook(ctx context.Context, symbol string, depth int) (*MergedBook, error) {
	books := a.books(ctx, symbol, depth)

	merged := &MergedBook{Symbol: symbol}
	bidIndex := make(map[string]int)
	askIndex := make(map[string]int)

	for _, r := range books {
		if r.err != nil || r.value == nil {
			continue
		}
		merged.Venues = append(merged.Venues, r.venue)
		if r.value.Timestamp.After(merged.Timestamp) {
			merged.Timestamp = r.value.Timestamp
		}

		if err := mergeLevels(&merged.Bids, bidIndex, r.value.Bids); err != nil {
			return nil, err
		}
		if err := mergeLevels(&merged.Asks, askIndex, r.value.Asks); err != nil {
			return nil, err
		}
	}

	if len(merged.Bids) == 0 && len(merged.Asks) == 0 {
		return nil, fmt.Errorf("no order book data for %s", symbol)
	}

	sort.Slice(merged.Bids, func(i, j int) bool {
		return merged.Bids[i].Price.Cmp(&merged.Bids[j].Price) > 0
	})
	sort.Slice(merged.Asks, func(i, j int) bool {
		return merged.Asks[i].Price.Cmp(&merged.Asks[j].Price) < 0
	})

	if depth > 0 {
		if len(merged.Bids) > depth {
			merged.Bids = merged.Bids[:depth]
		}
		if len(merged.Asks) > depth {
			merged.Asks = merged.Asks[:depth]
		}
	}

	sort.Strings(merged.Venues)
	return merged, nil
}

func (a *Aggregator) books(ctx context.Context, symbol string, depth int) []venueResult[*core.OrderBook] {
	opts := make([]exchange.Option, 0, 1)
	if depth > 0 {
		opts = append(opts, exchange.WithLimit(depth))
	}
	return fanOut(ctx, a.snapshot(), func(ctx context.Context, ex exchange.Exchange) (*core.OrderBook, error) {
		return ex.GetOrderBook(ctx, symbol, opts...)
	})
}

// mergeLevels folds side into levels, summing quantities at equal
// prices. index maps a price's canonical string to its slot in levels.
func mergeLevels(levels *[]core.OrderBookLevel, index map[string]int, side []core.OrderBookLevel) error {
	for _, level := range side {
		key := level.Price.String()
		if i, ok := index[key]; ok {
			entry := &(*levels)[i]
			if _, err := decCtx.Add(&entry.Quantity, &entry.Quantity, &level.Quantity); err != nil {
				return fmt.Errorf("merge depth at %s: %w", key, err)
			}
			continue
		}

		index[key] = len(*levels)
		var entry core.OrderBookLevel
		entry.Price.Set(&level.Price)
		entry.Quantity.Set(&level.Quantity)
		*levels = append(*levels, entry)
	}
	return nil
}

// VenueQuote is one venue's bid and ask for a symbol.
type VenueQuote struct {
	Venue string      `json:"venue"`
	Bid   apd.Decimal `json:"bid"`
	Ask   apd.Decimal `json:"ask"`
}

// Comparison lays venue quotes side by side.
type Comparison struct {
	Symbol string `json:"symbol"`
	// Quotes holds one entry per answering venue, sorted by venue.
	Quotes []VenueQuote `json:"quotes"`
	// MaxSpread is the widest single-venue bid/ask spread seen.
	MaxSpread apd.Decimal `json:"max_spread"`
}

// Compare fetches quotes for a symbol from every venue and reports
// them side by side. Venues that fail are skipped; at least one must
// answer.
func (a *Aggregator) Compare(ctx context.Context, symbol string) (*Comparison, error) {
	cmp := &Comparison{Symbol: symbol}

	for _, r := range a.Tickers(ctx, symbol) {
		if r.Err != nil || r.Ticker == nil {
			continue
		}
		cmp.Quotes = append(cmp.Quotes, VenueQuote{Venue: r.Venue, Bid: r.Ticker.Bid, Ask: r.Ticker.Ask})

		var spread apd.Decimal
		if _, err := decCtx.Sub(&spread, &r.Ticker.Ask, &r.Ticker.Bid); err != nil {
			return nil, fmt.Errorf("calculate spread: %w", err)
		}
		if spread.Cmp(&cmp.MaxSpread) > 0 {
			cmp.MaxSpread = spread
		}
	}

	if len(cmp.Quotes) == 0 {
		return nil, fmt.Errorf("no ticker data for %s", symbol)
	}
	return cmp, nil
}

// Spread is a venue pair whose quotes diverge: buying at BuyVenue's
// ask and selling at SellVenue's bid differ by Gap, Percent of the buy
// price.
type Spread struct {
	Symbol string `json:"symbol"`
	// BuyVenue quotes the ask side of the pair, SellVenue the bid side.
	BuyVenue  string `json:"buy_venue"`
	SellVenue string `json:"sell_venue"`
	// BuyPrice is the ask at BuyVenue; SellPrice the bid at SellVenue.
	BuyPrice  apd.Decimal `json:"buy_price"`
	SellPrice apd.Decimal `json:"sell_price"`
	// Gap is SellPrice minus BuyPrice.
	Gap apd.Decimal `json:"gap"`
	// Percent is the gap as a percentage of BuyPrice.
	Percent apd.Decimal `json:"percent"`
}

// Spreads screens every ordered venue pair for quotes diverging by at
// least minPercent of the buy price, widest first. It needs tickers
// from at least two venues.
func (a *Aggregator) Spreads(ctx context.Context, symbol string, minPercent apd.Decimal) ([]Spread, error) {
	var quotes []TickerResult
	for _, r := range a.Tickers(ctx, symbol) {
		if r.Err == nil && r.Ticker != nil {
			quotes = append(quotes, r)
		}
	}
	if len(quotes) < 2 {
		return nil, fmt.Errorf("need tickers from at least two venues, have %d", len(quotes))
	}

	var spreads []Spread
	for i, buy := range quotes {
		for j, sell := range quotes {
			if i == j || buy.Ticker.Ask.IsZero() {
				continue
			}

			var gap apd.Decimal
			if _, err := decCtx.Sub(&gap, &sell.Ticker.Bid, &buy.Ticker.Ask); err != nil {
				return nil, fmt.Errorf("calculate gap: %w", err)
			}
			pct, err := percentOf(&gap, &buy.Ticker.Ask)
			if err != nil {
				return nil, fmt.Errorf("calculate gap percent: %w", err)
			}
			if pct.Cmp(&minPercent) < 0 {
				continue
			}

			spreads = append(spreads, Spread{
				Symbol:    symbol,
				BuyVenue:  buy.Venue,
				SellVenue: sell.Venue,
				BuyPrice:  buy.Ticker.Ask,
				SellPrice: sell.Ticker.Bid,
				Gap:       gap,
				Percent:   pct,
			})
		}
	}

	sort.Slice(spreads, func(i, j int) bool {
		return spreads[i].Percent.Cmp(&spreads[j].Percent) > 0
	})
	return spreads, nil
}

// percentOf returns part as a percentage of whole, zero when whole is
// zero.
func percentOf(part, whole *apd.Decimal) (apd.Decimal, error) {
	var pct apd.Decimal
	if whole.IsZero() {
		return pct, nil
	}

	var hundred apd.Decimal
	hundred.SetInt64(100)
	if _, err := decCtx.Mul(&pct, part, &hundred); err != nil {
		return pct, err
	}
	if _, err := decCtx.Quo(&pct, &pct, whole); err != nil {
		return pct, err
	}
	return pct, nil
}
