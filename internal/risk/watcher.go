package risk

import "fmt"

// Level holds the exit prices guarding one open trade.
type Level struct {
	Symbol     string
	Entry      float64
	StopLoss   float64 // 0 disables
	TakeProfit float64 // 0 disables
	Trailing   bool
	TrailPct   float64 // fractional offset from the high-water mark

	highWater float64
}

// Decision reports a triggered exit level.
type Decision struct {
	Symbol string
	Price  float64
	Reason string
}

// Watcher tracks stop-loss/take-profit levels for the open trades of one
// strategy instance. The instance processes events one at a time, so the
// watcher carries no lock.
type Watcher struct {
	levels map[string]*Level
}

// NewWatcher builds an empty watcher.
func NewWatcher() *Watcher {
	return &Watcher{levels: make(map[string]*Level)}
}

// Track starts guarding a symbol; any previous level for it is replaced.
func (w *Watcher) Track(l Level) {
	l.highWater = l.Entry
	w.levels[l.Symbol] = &l
}

// Drop stops guarding a symbol.
func (w *Watcher) Drop(symbol string) {
	delete(w.levels, symbol)
}

// Clear drops every tracked level.
func (w *Watcher) Clear() {
	w.levels = make(map[string]*Level)
}

// Check evaluates the latest price against the symbol's levels. A trailing
// stop ratchets up with the high-water mark before the stop is tested.
// Returns nil when nothing triggered.
func (w *Watcher) Check(symbol string, price float64) *Decision {
	l, ok := w.levels[symbol]
	if !ok || price <= 0 {
		return nil
	}

	if l.Trailing && price > l.highWater {
		l.highWater = price
		if l.TrailPct > 0 {
			l.StopLoss = l.highWater * (1 - l.TrailPct)
		}
	}

	if l.StopLoss > 0 && price <= l.StopLoss {
		delete(w.levels, symbol)
		return &Decision{
			Symbol: symbol,
			Price:  price,
			Reason: fmt.Sprintf("stop loss hit at %.4f (level %.4f)", price, l.StopLoss),
		}
	}
	if l.TakeProfit > 0 && price >= l.TakeProfit {
		delete(w.levels, symbol)
		return &Decision{
			Symbol: symbol,
			Price:  price,
			Reason: fmt.Sprintf("take profit hit at %.4f (level %.4f)", price, l.TakeProfit),
		}
	}
	return nil
}
