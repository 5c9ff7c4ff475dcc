package bybit

import (
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/apd/v3"

	"nakula/pkg/auth"
	"nakula/pkg/core"
)

// Endpoint names the adapter registers its streams under.
const (
	marketStream  = "market"
	privateStream = "private"
)

// norm backs the stream decoders; Normalizer carries no state.
var norm Normalizer

// framer speaks the Bybit V5 stream dialect: op-based commands, an
// app-level ping, topic-tagged content frames. A framer created with a
// signer authenticates the connection before any subscription goes out.
type framer struct {
	signer *auth.Bybit
}

func newFramer(signer *auth.Bybit) *framer {
	return &framer{signer: signer}
}

type wsCommand struct {
	Op   string `json:"op"`
	Args []any  `json:"args,omitempty"`
}

// OpenFrames emits the auth command on private connections. Public
// connections need no handshake.
func (f *framer) OpenFrames() [][]byte {
	if f.signer == nil {
		return nil
	}
	key, expires, signature := f.signer.StreamAuth()
	frame, err := sonic.Marshal(wsCommand{Op: "auth", Args: []any{key, expires, signature}})
	if err != nil {
		return nil
	}
	return [][]byte{frame}
}

func (f *framer) SubscribeFrame(topic string) ([]byte, error) {
	return sonic.Marshal(wsCommand{Op: "subscribe", Args: []any{topic}})
}

func (f *framer) UnsubscribeFrame(topic string) ([]byte, error) {
	return sonic.Marshal(wsCommand{Op: "unsubscribe", Args: []any{topic}})
}

// PingFrame returns the V5 app-level heartbeat.
func (f *framer) PingFrame() []byte {
	return []byte(`{"op":"ping"}`)
}

// Classify tags inbound payloads. Content frames carry a topic, command
// feedback a success flag. Pongs arrive as an op on derivatives streams
// and as a ret_msg on spot streams.
func (f *framer) Classify(payload []byte) core.Inbound {
	var probe struct {
		Topic   string `json:"topic"`
		Op      string `json:"op"`
		Success *bool  `json:"success"`
		RetMsg  string `json:"ret_msg"`
	}
	if err := sonic.Unmarshal(payload, &probe); err != nil {
		return core.Inbound{Kind: core.KindData, Payload: payload}
	}

	if probe.Topic != "" {
		return core.Inbound{Topic: probe.Topic, Kind: core.KindData, Payload: payload}
	}
	if probe.Op == "pong" || probe.RetMsg == "pong" {
		return core.Inbound{Kind: core.KindPong, Payload: payload}
	}
	if probe.Success != nil {
		if !*probe.Success {
			return core.Inbound{Kind: core.KindError, Payload: payload}
		}
		return core.Inbound{Kind: core.KindAck, Payload: payload}
	}

	return core.Inbound{Kind: core.KindData, Payload: payload}
}

func tickerTopic(symbol string) string {
	return "tickers." + formatSymbol(symbol)
}

func tradeTopic(symbol string) string {
	return "publicTrade." + formatSymbol(symbol)
}

func orderBookTopic(symbol string, depth int) string {
	return "orderbook." + strconv.Itoa(depth) + "." + formatSymbol(symbol)
}

func klineTopic(symbol, interval string) string {
	return "kline." + bybitInterval(interval) + "." + formatSymbol(symbol)
}

// symbolFromTopic recovers the canonical symbol from the last segment
// of a topic such as "kline.5.BTCUSDT".
func symbolFromTopic(topic string) string {
	if i := strings.LastIndexByte(topic, '.'); i >= 0 {
		return parseSymbol(topic[i+1:])
	}
	return parseSymbol(topic)
}

func decodeTicker(msg core.Message) (core.Ticker, bool) {
	var env struct {
		Ts   int64       `json:"ts"`
		Data bybitTicker `json:"data"`
	}
	if err := sonic.Unmarshal(msg.Payload, &env); err != nil {
		return core.Ticker{}, false
	}
	if env.Data.Symbol == "" {
		return core.Ticker{}, false
	}
	return *norm.NormalizeTicker(&env.Data, env.Ts), true
}

// wsTrade is one entry of a publicTrade frame. Frames batch several
// trades in chronological order.
type wsTrade struct {
	TradeID   string      `json:"i"`
	Symbol    string      `json:"s"`
	Side      string      `json:"S"`
	Price     apd.Decimal `json:"p"`
	Size      apd.Decimal `json:"v"`
	TradeTime int64       `json:"T"`
}

func decodeTrades(msg core.Message) []core.Trade {
	var env struct {
		Data []wsTrade `json:"data"`
	}
	if err := sonic.Unmarshal(msg.Payload, &env); err != nil {
		return nil
	}
	trades := make([]core.Trade, 0, len(env.Data))
	for _, t := range env.Data {
		trades = append(trades, core.Trade{
			ID:        t.TradeID,
			Symbol:    parseSymbol(t.Symbol),
			Side:      parseSide(t.Side),
			Price:     t.Price,
			Quantity:  t.Size,
			Timestamp: time.UnixMilli(t.TradeTime),
		})
	}
	return trades
}

// decodeOrderBook forwards both snapshot and delta frames as books;
// delta frames carry only the changed levels.
func decodeOrderBook(msg core.Message) (core.OrderBook, bool) {
	var env struct {
		Ts   int64          `json:"ts"`
		Data bybitOrderBook `json:"data"`
	}
	if err := sonic.Unmarshal(msg.Payload, &env); err != nil {
		return core.OrderBook{}, false
	}
	if env.Data.Ts == 0 {
		env.Data.Ts = env.Ts
	}

	book, err := norm.NormalizeOrderBook(&env.Data)
	if err != nil {
		return core.OrderBook{}, false
	}
	return *book, true
}

// wsKline is one entry of a kline frame. The symbol lives only in the
// topic.
type wsKline struct {
	Start    int64       `json:"start"`
	End      int64       `json:"end"`
	Interval string      `json:"interval"`
	Open     apd.Decimal `json:"open"`
	Close    apd.Decimal `json:"close"`
	High     apd.Decimal `json:"high"`
	Low      apd.Decimal `json:"low"`
	Volume   apd.Decimal `json:"volume"`
	Turnover apd.Decimal `json:"turnover"`
}

func decodeKlines(msg core.Message) []core.Kline {
	var env struct {
		Data []wsKline `json:"data"`
	}
	if err := sonic.Unmarshal(msg.Payload, &env); err != nil {
		return nil
	}
	symbol := symbolFromTopic(msg.Topic)
	klines := make([]core.Kline, 0, len(env.Data))
	for _, k := range env.Data {
		klines = append(klines, core.Kline{
			Symbol:      symbol,
			OpenTime:    time.UnixMilli(k.Start),
			CloseTime:   time.UnixMilli(k.End),
			Open:        k.Open,
			High:        k.High,
			Low:         k.Low,
			Close:       k.Close,
			Volume:      k.Volume,
			QuoteVolume: k.Turnover,
		})
	}
	return klines
}
