package binance

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/apd/v3"

	"nakula/pkg/core"
)

// marketStream is the endpoint name the public market framer is
// registered under.
const marketStream = "market"

// framer speaks the Binance stream dialect: SUBSCRIBE/UNSUBSCRIBE
// commands with a request id, raw event payloads inbound.
type framer struct {
	nextID atomic.Int64
}

func newFramer() *framer {
	return &framer{}
}

type wsCommand struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

func (f *framer) OpenFrames() [][]byte {
	return nil
}

func (f *framer) SubscribeFrame(topic string) ([]byte, error) {
	return sonic.Marshal(wsCommand{Method: "SUBSCRIBE", Params: []string{topic}, ID: f.nextID.Add(1)})
}

func (f *framer) UnsubscribeFrame(topic string) ([]byte, error) {
	return sonic.Marshal(wsCommand{Method: "UNSUBSCRIBE", Params: []string{topic}, ID: f.nextID.Add(1)})
}

// PingFrame returns nil; Binance keep-alive runs at the protocol level.
func (f *framer) PingFrame() []byte {
	return nil
}

// Classify tags inbound payloads. Command responses carry an id field,
// errors a code; everything else is an event payload whose stream name
// is reconstructed from the event type and symbol.
func (f *framer) Classify(payload []byte) core.Inbound {
	var probe struct {
		Event  string `json:"e"`
		Symbol string `json:"s"`
		Kline  struct {
			Interval string `json:"i"`
		} `json:"k"`
		ID   *int64 `json:"id"`
		Code int    `json:"code"`
	}
	if err := sonic.Unmarshal(payload, &probe); err != nil {
		return core.Inbound{Kind: core.KindData, Payload: payload}
	}

	if probe.Code != 0 {
		return core.Inbound{Kind: core.KindError, Payload: payload}
	}
	if probe.ID != nil {
		return core.Inbound{Kind: core.KindAck, Payload: payload}
	}

	return core.Inbound{
		Topic:   eventTopic(probe.Event, probe.Symbol, probe.Kline.Interval),
		Kind:    core.KindData,
		Payload: payload,
	}
}

// eventTopic reconstructs the stream name a payload was published on, so
// it can be matched against subscribed topics. Unknown events map to an
// empty topic and are dropped.
func eventTopic(event, symbol, interval string) string {
	if event == "" || symbol == "" {
		return ""
	}
	prefix := strings.ToLower(symbol)
	switch event {
	case "24hrTicker":
		return prefix + "@ticker"
	case "24hrMiniTicker":
		return prefix + "@miniTicker"
	case "trade":
		return prefix + "@trade"
	case "aggTrade":
		return prefix + "@aggTrade"
	case "depthUpdate":
		return prefix + "@depth"
	case "kline":
		return prefix + "@kline_" + interval
	default:
		return ""
	}
}

// streamName builds the topic for one symbol and stream suffix, e.g.
// "btcusdt@ticker".
func streamName(symbol, stream string) string {
	return strings.ToLower(formatSymbol(symbol)) + "@" + stream
}

type wsTickerMessage struct {
	EventTime int64       `json:"E"`
	Symbol    string      `json:"s"`
	LastPrice apd.Decimal `json:"c"`
	HighPrice apd.Decimal `json:"h"`
	LowPrice  apd.Decimal `json:"l"`
	Volume    apd.Decimal `json:"v"`
	BidPrice  apd.Decimal `json:"b"`
	AskPrice  apd.Decimal `json:"a"`
}

func decodeTicker(msg core.Message) (core.Ticker, bool) {
	var raw wsTickerMessage
	if err := sonic.Unmarshal(msg.Payload, &raw); err != nil {
		return core.Ticker{}, false
	}
	return core.Ticker{
		Symbol:    parseSymbol(raw.Symbol),
		Bid:       raw.BidPrice,
		Ask:       raw.AskPrice,
		Last:      raw.LastPrice,
		High:      raw.HighPrice,
		Low:       raw.LowPrice,
		Volume:    raw.Volume,
		Timestamp: time.UnixMilli(raw.EventTime),
	}, true
}

type wsAggTradeMessage struct {
	Symbol       string      `json:"s"`
	AggTradeID   int64       `json:"a"`
	Price        apd.Decimal `json:"p"`
	Quantity     apd.Decimal `json:"q"`
	TradeTime    int64       `json:"T"`
	IsBuyerMaker bool        `json:"m"`
}

func decodeAggTrade(msg core.Message) (core.Trade, bool) {
	var raw wsAggTradeMessage
	if err := sonic.Unmarshal(msg.Payload, &raw); err != nil {
		return core.Trade{}, false
	}
	return core.Trade{
		ID:        strconv.FormatInt(raw.AggTradeID, 10),
		Symbol:    parseSymbol(raw.Symbol),
		Side:      parseSideFromBuyerMaker(raw.IsBuyerMaker),
		Price:     raw.Price,
		Quantity:  raw.Quantity,
		Timestamp: time.UnixMilli(raw.TradeTime),
	}, true
}

type wsDepthMessage struct {
	EventTime int64      `json:"E"`
	Symbol    string     `json:"s"`
	Bids      [][]string `json:"b"`
	Asks      [][]string `json:"a"`
}

func decodeDepth(msg core.Message) (core.OrderBook, bool) {
	var raw wsDepthMessage
	if err := sonic.Unmarshal(msg.Payload, &raw); err != nil {
		return core.OrderBook{}, false
	}

	bids, err := parseBookLevels(raw.Bids)
	if err != nil {
		return core.OrderBook{}, false
	}
	asks, err := parseBookLevels(raw.Asks)
	if err != nil {
		return core.OrderBook{}, false
	}

	return core.OrderBook{
		Symbol:    parseSymbol(raw.Symbol),
		Bids:      bids,
		Asks:      asks,
		Timestamp: time.UnixMilli(raw.EventTime),
	}, true
}

type wsKlineMessage struct {
	Symbol string `json:"s"`
	Kline  struct {
		StartTime   int64       `json:"t"`
		EndTime     int64       `json:"T"`
		Interval    string      `json:"i"`
		Open        apd.Decimal `json:"o"`
		Close       apd.Decimal `json:"c"`
		High        apd.Decimal `json:"h"`
		Low         apd.Decimal `json:"l"`
		Volume      apd.Decimal `json:"v"`
		QuoteVolume apd.Decimal `json:"q"`
		NumTrades   int64       `json:"n"`
	} `json:"k"`
}

func decodeKline(msg core.Message) (core.Kline, bool) {
	var raw wsKlineMessage
	if err := sonic.Unmarshal(msg.Payload, &raw); err != nil {
		return core.Kline{}, false
	}
	return core.Kline{
		Symbol:      parseSymbol(raw.Symbol),
		OpenTime:    time.UnixMilli(raw.Kline.StartTime),
		CloseTime:   time.UnixMilli(raw.Kline.EndTime),
		Open:        raw.Kline.Open,
		High:        raw.Kline.High,
		Low:         raw.Kline.Low,
		Close:       raw.Kline.Close,
		Volume:      raw.Kline.Volume,
		QuoteVolume: raw.Kline.QuoteVolume,
		NumTrades:   raw.Kline.NumTrades,
	}, true
}
