package market

import (
	"context"
	"log"
	"math/rand"
	"time"

	"strategy-core/internal/events"
)

// MockFeed generates synthetic bars for local development and replay-style
// testing. Prices follow a simple random walk.
type MockFeed struct {
	Bus        *events.Bus
	Symbols    []string
	StartPrice float64
	Step       float64
	Interval   time.Duration

	prices map[string]float64
}

// Start begins publishing bars until the context is canceled.
func (m *MockFeed) Start(ctx context.Context) {
	if m.Bus == nil {
		log.Println("mock feed: bus not set")
		return
	}
	if len(m.Symbols) == 0 {
		m.Symbols = []string{"BTCUSDT"}
	}
	if m.StartPrice == 0 {
		m.StartPrice = 100.0
	}
	if m.Step == 0 {
		m.Step = 0.5
	}
	if m.Interval == 0 {
		m.Interval = time.Second
	}
	m.prices = make(map[string]float64, len(m.Symbols))
	for _, sym := range m.Symbols {
		m.prices[sym] = m.StartPrice
	}

	go func() {
		t := time.NewTicker(m.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				for _, sym := range m.Symbols {
					m.Bus.Publish(events.EventBar, m.nextBar(sym, now))
				}
			}
		}
	}()
}

func (m *MockFeed) nextBar(symbol string, now time.Time) Bar {
	open := m.prices[symbol]
	close := open + (rand.Float64()*2-1)*m.Step
	if close <= 0 {
		close = open
	}
	m.prices[symbol] = close

	high, low := open, close
	if close > open {
		high = close
		low = open
	}
	return Bar{
		Symbol: symbol,
		Time:   now,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  close,
		Volume: 1 + rand.Float64()*10,
	}
}
