package market

import "time"

// Bar is a single OHLCV candlestick delivered by a market data feed.
type Bar struct {
	Symbol string
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Quote is a best bid/ask update.
type Quote struct {
	Symbol string
	Bid    float64
	Ask    float64
	Time   time.Time
}

// Mid returns the bid/ask midpoint, or whichever side is present.
func (q Quote) Mid() float64 {
	if q.Bid > 0 && q.Ask > 0 {
		return (q.Bid + q.Ask) / 2
	}
	if q.Bid > 0 {
		return q.Bid
	}
	return q.Ask
}

// Tick is a single executed trade on the venue.
type Tick struct {
	Symbol string
	Price  float64
	Qty    float64
	Time   time.Time
}
