package strategy

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Ledger is the append-only trade record for one strategy instance plus the
// derived performance snapshot. Trades are never deleted, only
// status-transitioned; performance is always recomputed from the current
// CLOSED subset.
type Ledger struct {
	trades    []*Trade
	open      map[string]*Trade // symbol -> OPEN trade
	lastClose map[string]float64
	perf      Performance
}

// NewLedger builds an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		open:      make(map[string]*Trade),
		lastClose: make(map[string]float64),
	}
}

// MarkPrice records the latest traded/close price for a symbol. stop() uses
// it as the exit price when draining open trades.
func (l *Ledger) MarkPrice(symbol string, price float64) {
	if price > 0 {
		l.lastClose[symbol] = price
	}
}

// LastPrice returns the last recorded price for a symbol.
func (l *Ledger) LastPrice(symbol string) (float64, bool) {
	p, ok := l.lastClose[symbol]
	return p, ok
}

// OpenTrade returns the OPEN trade for a symbol, or nil.
func (l *Ledger) OpenTrade(symbol string) *Trade {
	return l.open[symbol]
}

// FindByOrderID locates a trade by the broker order id stored in metadata.
func (l *Ledger) FindByOrderID(orderID string) *Trade {
	if orderID == "" {
		return nil
	}
	for i := len(l.trades) - 1; i >= 0; i-- {
		if id, ok := l.trades[i].Meta["order_id"].(string); ok && id == orderID {
			return l.trades[i]
		}
	}
	return nil
}

// Open records a new LONG trade for a BUY signal. It returns nil when the
// symbol already has an OPEN trade; at most one trade per symbol may be open.
func (l *Ledger) Open(sig Signal, qty, stopLoss, takeProfit float64) *Trade {
	if l.open[sig.Symbol] != nil {
		return nil
	}
	t := &Trade{
		ID:          uuid.NewString(),
		Symbol:      sig.Symbol,
		Direction:   DirLong,
		EntryPrice:  sig.Price,
		EntryTime:   sig.Time,
		EntrySignal: sig.Type,
		Qty:         qty,
		Status:      TradeOpen,
		Meta:        map[string]any{},
	}
	if stopLoss > 0 {
		t.Meta["stop_loss"] = stopLoss
	}
	if takeProfit > 0 {
		t.Meta["take_profit"] = takeProfit
	}
	l.trades = append(l.trades, t)
	l.open[sig.Symbol] = t
	l.MarkPrice(sig.Symbol, sig.Price)
	l.recompute()
	return t
}

// Close settles the OPEN trade for a symbol at the given price and returns
// it, or nil when nothing is open.
func (l *Ledger) Close(symbol string, price float64, exitSig SignalType, at time.Time) *Trade {
	t := l.open[symbol]
	if t == nil {
		return nil
	}
	t.ExitPrice = price
	t.ExitTime = at
	t.ExitSignal = exitSig
	t.PnL = (price - t.EntryPrice) * t.Qty
	if t.EntryPrice != 0 {
		t.PnLPct = (price - t.EntryPrice) / t.EntryPrice
	}
	t.Status = TradeClosed
	delete(l.open, symbol)
	l.recompute()
	return t
}

// CloseAll drains every OPEN trade at the last known price for its symbol.
// Open always records a mark, so a price is normally available; a trade
// loaded without one settles at its entry price rather than at zero.
func (l *Ledger) CloseAll(at time.Time) []*Trade {
	var closed []*Trade
	for symbol, open := range l.open {
		price, ok := l.lastClose[symbol]
		if !ok || price <= 0 {
			price = open.EntryPrice
		}
		if t := l.Close(symbol, price, SignalHold, at); t != nil {
			closed = append(closed, t)
		}
	}
	return closed
}

// MarkCanceled transitions an OPEN trade to CANCELED.
func (l *Ledger) MarkCanceled(t *Trade, reason string, at time.Time) {
	l.terminate(t, TradeCanceled, reason, at)
}

// MarkRejected transitions an OPEN trade to REJECTED.
func (l *Ledger) MarkRejected(t *Trade, reason string, at time.Time) {
	l.terminate(t, TradeRejected, reason, at)
}

func (l *Ledger) terminate(t *Trade, status TradeStatus, reason string, at time.Time) {
	if t == nil || t.Status != TradeOpen {
		return
	}
	t.Status = status
	t.ExitTime = at
	if reason != "" {
		t.Meta["cancel_reason"] = reason
	}
	if l.open[t.Symbol] == t {
		delete(l.open, t.Symbol)
	}
	l.recompute()
}

// Touch recomputes performance after an in-place trade mutation (fills,
// position patches).
func (l *Ledger) Touch() {
	l.recompute()
}

// Trades returns defensive copies of every recorded trade in append order.
func (l *Ledger) Trades() []Trade {
	out := make([]Trade, 0, len(l.trades))
	for _, t := range l.trades {
		out = append(out, t.CloneMeta())
	}
	return out
}

// Performance returns the current snapshot.
func (l *Ledger) Performance() Performance {
	return l.perf
}

// Load replaces ledger contents from a persisted snapshot and recomputes
// performance.
func (l *Ledger) Load(trades []Trade, lastCloses map[string]float64) {
	l.trades = make([]*Trade, 0, len(trades))
	l.open = make(map[string]*Trade)
	l.lastClose = make(map[string]float64, len(lastCloses))
	for sym, p := range lastCloses {
		l.lastClose[sym] = p
	}
	for _, t := range trades {
		cp := t.CloneMeta()
		l.trades = append(l.trades, &cp)
		if cp.Status == TradeOpen {
			l.open[cp.Symbol] = &cp
		}
	}
	l.recompute()
}

// Reset drops all trades and zeroes performance.
func (l *Ledger) Reset() {
	l.trades = nil
	l.open = make(map[string]*Trade)
	l.lastClose = make(map[string]float64)
	l.perf = Performance{}
}

// recompute derives the full performance snapshot from the CLOSED subset, in
// trade-close order (which matches append order since closes mutate in
// place and the cumulative sequence follows exit chronology of signals).
func (l *Ledger) recompute() {
	perf := Performance{TotalTrades: len(l.trades), OpenTrades: len(l.open)}

	var closed []*Trade
	for _, t := range l.trades {
		switch t.Status {
		case TradeClosed:
			closed = append(closed, t)
		case TradeCanceled:
			perf.CanceledTrades++
		case TradeRejected:
			perf.RejectedTrades++
		}
	}
	perf.ClosedTrades = len(closed)

	if len(closed) == 0 {
		l.perf = perf
		return
	}

	var (
		totalProfit, totalLoss float64
		returns                []float64
		cumulative             float64
		peak, maxDD            float64
		firstEntry, lastExit   time.Time
	)
	for _, t := range closed {
		if t.PnL > 0 {
			perf.WinningTrades++
			totalProfit += t.PnL
		} else if t.PnL < 0 {
			perf.LosingTrades++
			totalLoss += -t.PnL
		}
		returns = append(returns, t.PnLPct)
		perf.TotalReturn += t.PnLPct

		cumulative += t.PnL
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > maxDD {
			maxDD = dd
		}

		if firstEntry.IsZero() || t.EntryTime.Before(firstEntry) {
			firstEntry = t.EntryTime
		}
		if t.ExitTime.After(lastExit) {
			lastExit = t.ExitTime
		}
	}

	perf.WinRate = float64(perf.WinningTrades) / float64(len(closed))
	perf.MaxDrawdown = maxDD

	switch {
	case totalLoss > 0:
		perf.ProfitFactor = totalProfit / totalLoss
	case totalProfit > 0:
		// No losses: the ratio is undefined-high. Flag it instead of
		// clamping or emitting +Inf.
		perf.ProfitFactor = totalProfit
		perf.ProfitFactorUnbounded = true
	default:
		perf.ProfitFactor = 0
	}

	if perf.WinningTrades > 0 {
		perf.AverageWin = totalProfit / float64(perf.WinningTrades)
	}
	if perf.LosingTrades > 0 {
		perf.AverageLoss = totalLoss / float64(perf.LosingTrades)
	}
	perf.Expectancy = perf.WinRate*perf.AverageWin - (1-perf.WinRate)*perf.AverageLoss

	days := math.Max(1, lastExit.Sub(firstEntry).Hours()/24)
	perf.TradesPerDay = float64(len(closed)) / days
	perf.AnnualizedReturn = perf.TotalReturn * 365 / days
	perf.SharpeRatio = sharpe(returns)

	l.perf = perf
}

// sharpe computes mean/stddev of per-trade returns scaled by sqrt(252);
// zero when variance is zero.
func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	if variance == 0 {
		return 0
	}
	return mean / math.Sqrt(variance) * math.Sqrt(252)
}
