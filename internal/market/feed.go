package market

import (
	"context"
	"fmt"
	"log"
	"time"

	"strategy-core/internal/events"
	binance "strategy-core/pkg/market/binance"
)

// LiveFeed bridges Binance market data onto the event bus. Only final
// (closed) klines are published as bars; in-progress candle updates are
// dropped so downstream consumers see each bar exactly once.
type LiveFeed struct {
	Bus      *events.Bus
	Stream   *binance.StreamClient
	REST     *binance.Client
	Symbols  []string
	Interval string
}

// Start subscribes every configured symbol. Streams stop when the context is
// canceled.
func (f *LiveFeed) Start(ctx context.Context) error {
	if f.Interval == "" {
		f.Interval = "1m"
	}
	for _, sym := range f.Symbols {
		klines, stopK, err := f.Stream.SubscribeKlines(ctx, sym, f.Interval)
		if err != nil {
			return fmt.Errorf("subscribe klines %s: %w", sym, err)
		}
		trades, stopT, err := f.Stream.SubscribeTrades(ctx, sym)
		if err != nil {
			stopK()
			return fmt.Errorf("subscribe trades %s: %w", sym, err)
		}

		go f.pumpKlines(ctx, sym, klines, stopK)
		go f.pumpTrades(ctx, sym, trades, stopT)
	}
	return nil
}

func (f *LiveFeed) pumpKlines(ctx context.Context, symbol string, in <-chan binance.Kline, stop func()) {
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return
		case k, ok := <-in:
			if !ok {
				log.Printf("kline stream closed for %s", symbol)
				return
			}
			if !k.Closed {
				continue
			}
			f.Bus.Publish(events.EventBar, BarFromKline(k))
		}
	}
}

func (f *LiveFeed) pumpTrades(ctx context.Context, symbol string, in <-chan binance.Trade, stop func()) {
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-in:
			if !ok {
				log.Printf("trade stream closed for %s", symbol)
				return
			}
			f.Bus.Publish(events.EventTick, Tick{
				Symbol: t.Symbol,
				Price:  t.Price,
				Qty:    t.Qty,
				Time:   time.UnixMilli(t.Time),
			})
		}
	}
}

// History fetches recent closed bars over REST, oldest first. Used to warm up
// indicator state before live processing begins.
func (f *LiveFeed) History(ctx context.Context, symbol string, limit int) ([]Bar, error) {
	klines, err := f.REST.GetKlines(ctx, symbol, f.Interval, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch klines %s: %w", symbol, err)
	}
	bars := make([]Bar, 0, len(klines))
	for _, k := range klines {
		bars = append(bars, BarFromKline(k))
	}
	return bars, nil
}

// BarFromKline converts an exchange kline into the internal bar type.
func BarFromKline(k binance.Kline) Bar {
	return Bar{
		Symbol: k.Symbol,
		Time:   time.UnixMilli(k.CloseTime),
		Open:   k.Open,
		High:   k.High,
		Low:    k.Low,
		Close:  k.Close,
		Volume: k.Volume,
	}
}
