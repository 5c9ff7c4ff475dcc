package bybit

import (
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nakula/pkg/auth"
	"nakula/pkg/core"
)

func TestFramer_SubscribeFrame(t *testing.T) {
	f := newFramer(nil)

	frame, err := f.SubscribeFrame("tickers.BTCUSDT")
	require.NoError(t, err)

	var cmd wsCommand
	require.NoError(t, sonic.Unmarshal(frame, &cmd))
	assert.Equal(t, "subscribe", cmd.Op)
	assert.Equal(t, []any{"tickers.BTCUSDT"}, cmd.Args)
}

func TestFramer_UnsubscribeFrame(t *testing.T) {
	f := newFramer(nil)

	frame, err := f.UnsubscribeFrame("publicTrade.ETHUSDT")
	require.NoError(t, err)

	var cmd wsCommand
	require.NoError(t, sonic.Unmarshal(frame, &cmd))
	assert.Equal(t, "unsubscribe", cmd.Op)
	assert.Equal(t, []any{"publicTrade.ETHUSDT"}, cmd.Args)
}

func TestFramer_PingFrame(t *testing.T) {
	f := newFramer(nil)
	assert.JSONEq(t, `{"op":"ping"}`, string(f.PingFrame()))
}

func TestFramer_OpenFrames_PublicNeedsNoAuth(t *testing.T) {
	f := newFramer(nil)
	assert.Nil(t, f.OpenFrames())
}

func TestFramer_OpenFrames_EmitsAuthCommand(t *testing.T) {
	cred, err := core.NewCredential("test-key", "test-secret")
	require.NoError(t, err)

	clock := core.FixedClock{Instant: time.UnixMilli(1700000000000)}
	signer, err := auth.NewBybit(cred, auth.WithClock(clock))
	require.NoError(t, err)

	frames := newFramer(signer).OpenFrames()
	require.Len(t, frames, 1)

	var cmd wsCommand
	require.NoError(t, sonic.Unmarshal(frames[0], &cmd))
	assert.Equal(t, "auth", cmd.Op)
	require.Len(t, cmd.Args, 3)
	assert.Equal(t, "test-key", cmd.Args[0])
	assert.Equal(t, float64(1700000001000), cmd.Args[1])
	assert.Len(t, cmd.Args[2], 64)
}

func TestFramer_Classify(t *testing.T) {
	f := newFramer(nil)

	tests := []struct {
		name      string
		payload   string
		wantTopic string
		wantKind  core.Kind
	}{
		{
			name:      "content frame carries topic",
			payload:   `{"topic":"tickers.BTCUSDT","type":"snapshot","ts":1700000000000,"data":{}}`,
			wantTopic: "tickers.BTCUSDT",
			wantKind:  core.KindData,
		},
		{
			name:     "spot pong",
			payload:  `{"success":true,"ret_msg":"pong","conn_id":"abc","op":"ping"}`,
			wantKind: core.KindPong,
		},
		{
			name:     "derivatives pong",
			payload:  `{"op":"pong","args":["1700000000000"],"conn_id":"abc"}`,
			wantKind: core.KindPong,
		},
		{
			name:     "subscribe ack",
			payload:  `{"success":true,"ret_msg":"","op":"subscribe","conn_id":"abc"}`,
			wantKind: core.KindAck,
		},
		{
			name:     "auth ack",
			payload:  `{"success":true,"ret_msg":"","op":"auth","conn_id":"abc"}`,
			wantKind: core.KindAck,
		},
		{
			name:     "subscribe failure",
			payload:  `{"success":false,"ret_msg":"error:handler not found","op":"subscribe"}`,
			wantKind: core.KindError,
		},
		{
			name:     "garbage drops",
			payload:  `not json`,
			wantKind: core.KindData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := f.Classify([]byte(tt.payload))
			assert.Equal(t, tt.wantTopic, in.Topic)
			assert.Equal(t, tt.wantKind, in.Kind)
			assert.Equal(t, []byte(tt.payload), in.Payload)
		})
	}
}

func TestTopicBuilders(t *testing.T) {
	assert.Equal(t, "tickers.BTCUSDT", tickerTopic("BTC/USDT"))
	assert.Equal(t, "publicTrade.BTCUSDT", tradeTopic("BTC/USDT"))
	assert.Equal(t, "orderbook.50.BTCUSDT", orderBookTopic("BTC/USDT", 50))
	assert.Equal(t, "kline.5.BTCUSDT", klineTopic("BTC/USDT", "5m"))
	assert.Equal(t, "kline.D.ETHUSDT", klineTopic("ETH/USDT", "1d"))
}

func TestSymbolFromTopic(t *testing.T) {
	assert.Equal(t, "BTC/USDT", symbolFromTopic("kline.5.BTCUSDT"))
	assert.Equal(t, "ETH/USDT", symbolFromTopic("publicTrade.ETHUSDT"))
	assert.Equal(t, "BTC/USDT", symbolFromTopic("BTCUSDT"))
}

func TestDecodeTicker(t *testing.T) {
	msg := core.Message{
		Topic: "tickers.BTCUSDT",
		Payload: []byte(`{
			"topic": "tickers.BTCUSDT", "type": "snapshot", "ts": 1700000000000,
			"data": {
				"symbol": "BTCUSDT",
				"lastPrice": "50000.10", "highPrice24h": "51000.00",
				"lowPrice24h": "49000.00", "volume24h": "1234.5",
				"bid1Price": "49999.99", "ask1Price": "50000.11"
			}
		}`),
	}

	ticker, ok := decodeTicker(msg)
	require.True(t, ok)
	assert.Equal(t, "BTC/USDT", ticker.Symbol)
	assert.Equal(t, "50000.10", ticker.Last.String())
	assert.Equal(t, "49999.99", ticker.Bid.String())
	assert.Equal(t, int64(1700000000000), ticker.Timestamp.UnixMilli())

	_, ok = decodeTicker(core.Message{Payload: []byte(`{`)})
	assert.False(t, ok)

	_, ok = decodeTicker(core.Message{Payload: []byte(`{"ts":1,"data":{}}`)})
	assert.False(t, ok, "frame without a symbol should drop")
}

func TestDecodeTrades(t *testing.T) {
	msg := core.Message{
		Topic: "publicTrade.BTCUSDT",
		Payload: []byte(`{
			"topic": "publicTrade.BTCUSDT", "type": "snapshot", "ts": 1700000000200,
			"data": [
				{"i": "t-1", "s": "BTCUSDT", "S": "Buy", "p": "50000.00", "v": "0.10", "T": 1700000000100},
				{"i": "t-2", "s": "BTCUSDT", "S": "Sell", "p": "50000.50", "v": "0.25", "T": 1700000000150}
			]
		}`),
	}

	trades := decodeTrades(msg)
	require.Len(t, trades, 2)
	assert.Equal(t, "t-1", trades[0].ID)
	assert.Equal(t, "BTC/USDT", trades[0].Symbol)
	assert.Equal(t, core.SideBuy, trades[0].Side)
	assert.Equal(t, "50000.00", trades[0].Price.String())
	assert.Equal(t, int64(1700000000100), trades[0].Timestamp.UnixMilli())
	assert.Equal(t, core.SideSell, trades[1].Side)
	assert.Equal(t, "0.25", trades[1].Quantity.String())

	assert.Nil(t, decodeTrades(core.Message{Payload: []byte(`{`)}))
}

func TestDecodeOrderBook(t *testing.T) {
	msg := core.Message{
		Topic: "orderbook.50.BTCUSDT",
		Payload: []byte(`{
			"topic": "orderbook.50.BTCUSDT", "type": "delta", "ts": 1700000000123,
			"data": {
				"s": "BTCUSDT",
				"b": [["49999.00", "2.0"]],
				"a": [["50001.00", "1.0"], ["50002.00", "3.0"]],
				"u": 18521288, "seq": 7961638724
			}
		}`),
	}

	book, ok := decodeOrderBook(msg)
	require.True(t, ok)
	assert.Equal(t, "BTC/USDT", book.Symbol)
	require.Len(t, book.Bids, 1)
	require.Len(t, book.Asks, 2)
	assert.Equal(t, "49999.00", book.Bids[0].Price.String())
	assert.Equal(t, "3.0", book.Asks[1].Quantity.String())
	assert.Equal(t, int64(1700000000123), book.Timestamp.UnixMilli())
}

func TestDecodeKlines(t *testing.T) {
	msg := core.Message{
		Topic: "kline.5.BTCUSDT",
		Payload: []byte(`{
			"topic": "kline.5.BTCUSDT", "type": "snapshot", "ts": 1700000300000,
			"data": [{
				"start": 1700000000000, "end": 1700000299999, "interval": "5",
				"open": "100.0", "close": "105.0", "high": "110.0", "low": "95.0",
				"volume": "1000.0", "turnover": "105000.0", "confirm": false,
				"timestamp": 1700000299000
			}]
		}`),
	}

	klines := decodeKlines(msg)
	require.Len(t, klines, 1)
	assert.Equal(t, "BTC/USDT", klines[0].Symbol)
	assert.Equal(t, "100.0", klines[0].Open.String())
	assert.Equal(t, "105.0", klines[0].Close.String())
	assert.Equal(t, "105000.0", klines[0].QuoteVolume.String())
	assert.Equal(t, int64(1700000000000), klines[0].OpenTime.UnixMilli())
	assert.Equal(t, int64(1700000299999), klines[0].CloseTime.UnixMilli())

	assert.Nil(t, decodeKlines(core.Message{Payload: []byte(`{`)}))
}
