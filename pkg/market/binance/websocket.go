package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// StreamClient manages lightweight streaming from Binance public websockets.
type StreamClient struct {
	StreamURL string
	dialer    *websocket.Dialer
}

// NewStreamClient builds a websocket client; testnet toggles the host.
func NewStreamClient(testnet bool) *StreamClient {
	host := "stream.binance.com:9443"
	if testnet {
		host = "testnet.binance.vision"
	}
	return &StreamClient{
		StreamURL: (&url.URL{Scheme: "wss", Host: host, Path: "/ws"}).String(),
		dialer:    websocket.DefaultDialer,
	}
}

// SubscribeKlines listens to a kline stream and pushes parsed klines into a
// channel. It returns the channel and a stop function.
func (c *StreamClient) SubscribeKlines(ctx context.Context, symbol, interval string) (<-chan Kline, func(), error) {
	// Binance requires lowercase symbols for websocket streams.
	stream := fmt.Sprintf("%s@kline_%s", strings.ToLower(symbol), interval)
	out := make(chan Kline, 100)
	stop, err := subscribeConn(ctx, c, stream, out, parseKlineMessage)
	if err != nil {
		return nil, nil, err
	}
	return out, stop, nil
}

// SubscribeTrades subscribes to the trade stream and emits parsed trades.
func (c *StreamClient) SubscribeTrades(ctx context.Context, symbol string) (<-chan Trade, func(), error) {
	stream := fmt.Sprintf("%s@trade", strings.ToLower(symbol))
	out := make(chan Trade, 100)
	stop, err := subscribeConn(ctx, c, stream, out, parseTradeMessage)
	if err != nil {
		return nil, nil, err
	}
	return out, stop, nil
}

// subscribeLoop pumps parsed messages until the context is canceled or the
// connection drops. The loop owns the output channel and closes it on exit.
func subscribeLoop[T any](ctx context.Context, conn *websocket.Conn, out chan T, stop func(), parse func([]byte) (T, error)) {
	defer close(out)
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			// Closed by caller or context; exit quietly.
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				strings.Contains(err.Error(), "use of closed network connection") {
				return
			}
			log.Printf("binance ws read error: %v", err)
			return
		}

		parsed, err := parse(msg)
		if err != nil {
			log.Printf("binance ws parse error: %v", err)
			continue
		}
		out <- parsed
	}
}

// subscribeConn dials one stream and starts the read loop.
func subscribeConn[T any](ctx context.Context, c *StreamClient, stream string, out chan T, parse func([]byte) (T, error)) (func(), error) {
	u := fmt.Sprintf("%s/%s", c.StreamURL, stream)
	conn, _, err := c.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("dial binance ws %s: %w", stream, err)
	}

	var once sync.Once
	stop := func() {
		once.Do(func() {
			// Ignore errors; connection may already be closed. Closing the
			// connection unblocks the read loop, which closes the channel.
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
		})
	}

	go subscribeLoop(ctx, conn, out, stop, parse)
	return stop, nil
}

// parseKlineMessage decodes only the fields we need.
func parseKlineMessage(msg []byte) (Kline, error) {
	var raw struct {
		Data struct {
			StartTime int64  `json:"t"`
			CloseTime int64  `json:"T"`
			Symbol    string `json:"s"`
			Interval  string `json:"i"`
			Open      any    `json:"o"`
			Close     any    `json:"c"`
			High      any    `json:"h"`
			Low       any    `json:"l"`
			Volume    any    `json:"v"`
			Final     bool   `json:"x"`
		} `json:"k"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return Kline{}, err
	}
	return Kline{
		Symbol:    raw.Data.Symbol,
		Interval:  raw.Data.Interval,
		OpenTime:  raw.Data.StartTime,
		CloseTime: raw.Data.CloseTime,
		Open:      toFloat(raw.Data.Open),
		Close:     toFloat(raw.Data.Close),
		High:      toFloat(raw.Data.High),
		Low:       toFloat(raw.Data.Low),
		Volume:    toFloat(raw.Data.Volume),
		Closed:    raw.Data.Final,
	}, nil
}

func parseTradeMessage(msg []byte) (Trade, error) {
	var raw struct {
		Symbol    string `json:"s"`
		Price     any    `json:"p"`
		Qty       any    `json:"q"`
		TradeTime any    `json:"T"`
		BuyerIsMM bool   `json:"m"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return Trade{}, err
	}
	return Trade{
		Symbol:       raw.Symbol,
		Price:        toFloat(raw.Price),
		Qty:          toFloat(raw.Qty),
		Time:         toInt64(raw.TradeTime),
		IsBuyerMaker: raw.BuyerIsMM,
	}, nil
}
