package strategy

import (
	"math"
	"testing"
	"time"
)

func buySignal(symbol string, price float64, at time.Time) Signal {
	return Signal{Type: SignalBuy, Symbol: symbol, Price: price, Time: at}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestLedgerPerformanceExample(t *testing.T) {
	// Three round trips on qty 1: +100, +50, -60.
	l := NewLedger()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	rounds := []struct {
		entry, exit float64
	}{
		{100, 200},
		{100, 150},
		{100, 40},
	}
	for i, r := range rounds {
		at := base.Add(time.Duration(i) * 24 * time.Hour)
		if tr := l.Open(buySignal("BTCUSDT", r.entry, at), 1, 0, 0); tr == nil {
			t.Fatalf("round %d: Open returned nil", i)
		}
		if tr := l.Close("BTCUSDT", r.exit, SignalSell, at.Add(time.Hour)); tr == nil {
			t.Fatalf("round %d: Close returned nil", i)
		}
	}

	perf := l.Performance()
	if perf.ClosedTrades != 3 || perf.WinningTrades != 2 || perf.LosingTrades != 1 {
		t.Fatalf("counts = %d closed / %d win / %d loss", perf.ClosedTrades, perf.WinningTrades, perf.LosingTrades)
	}
	if !almostEqual(perf.WinRate, 2.0/3.0) {
		t.Errorf("WinRate = %v, want 2/3", perf.WinRate)
	}
	if !almostEqual(perf.ProfitFactor, 2.5) || perf.ProfitFactorUnbounded {
		t.Errorf("ProfitFactor = %v (unbounded=%v), want 2.5 bounded", perf.ProfitFactor, perf.ProfitFactorUnbounded)
	}
	if !almostEqual(perf.AverageWin, 75) {
		t.Errorf("AverageWin = %v, want 75", perf.AverageWin)
	}
	if !almostEqual(perf.AverageLoss, 60) {
		t.Errorf("AverageLoss = %v, want 60", perf.AverageLoss)
	}
	if !almostEqual(perf.Expectancy, 30) {
		t.Errorf("Expectancy = %v, want 30", perf.Expectancy)
	}

	// Per-trade returns are +1.0, +0.5, -0.6; first entry to last exit
	// spans 49h (entries a day apart, exits an hour after entry).
	days := 49.0 / 24.0
	if !almostEqual(perf.TotalReturn, 0.9) {
		t.Errorf("TotalReturn = %v, want 0.9", perf.TotalReturn)
	}
	if !almostEqual(perf.TradesPerDay, 3/days) {
		t.Errorf("TradesPerDay = %v, want %v", perf.TradesPerDay, 3/days)
	}
	if !almostEqual(perf.AnnualizedReturn, 0.9*365/days) {
		t.Errorf("AnnualizedReturn = %v, want %v", perf.AnnualizedReturn, 0.9*365/days)
	}
	// mean 0.3, sample variance ((0.7)^2+(0.2)^2+(0.9)^2)/2 = 0.67.
	wantSharpe := 0.3 / math.Sqrt(0.67) * math.Sqrt(252)
	if !almostEqual(perf.SharpeRatio, wantSharpe) {
		t.Errorf("SharpeRatio = %v, want %v", perf.SharpeRatio, wantSharpe)
	}
}

func TestLedgerSharpeZeroWithoutVariance(t *testing.T) {
	tests := []struct {
		name   string
		rounds int
	}{
		{"single trade", 1},
		{"identical returns", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLedger()
			base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			for i := 0; i < tt.rounds; i++ {
				at := base.Add(time.Duration(i) * time.Hour)
				l.Open(buySignal("BTCUSDT", 100, at), 1, 0, 0)
				l.Close("BTCUSDT", 150, SignalSell, at.Add(time.Minute))
			}

			if got := l.Performance().SharpeRatio; got != 0 {
				t.Errorf("SharpeRatio = %v, want 0 with zero variance", got)
			}
		})
	}
}

func TestLedgerProfitFactorUnbounded(t *testing.T) {
	l := NewLedger()
	at := time.Now()
	l.Open(buySignal("BTCUSDT", 100, at), 1, 0, 0)
	l.Close("BTCUSDT", 150, SignalSell, at.Add(time.Hour))

	perf := l.Performance()
	if !perf.ProfitFactorUnbounded {
		t.Fatal("ProfitFactorUnbounded not set with zero losses")
	}
	if math.IsInf(perf.ProfitFactor, 0) {
		t.Fatal("ProfitFactor must never be infinite")
	}
	if !almostEqual(perf.ProfitFactor, 50) {
		t.Errorf("ProfitFactor = %v, want raw total profit 50", perf.ProfitFactor)
	}
}

func TestLedgerMaxDrawdown(t *testing.T) {
	// Cumulative PnL path: +100, +40, -20, +30. Peak 100, trough -20.
	l := NewLedger()
	base := time.Now()
	pnls := []float64{100, -60, -60, 50}
	for i, pnl := range pnls {
		at := base.Add(time.Duration(i) * time.Hour)
		l.Open(buySignal("BTCUSDT", 100, at), 1, 0, 0)
		l.Close("BTCUSDT", 100+pnl, SignalSell, at.Add(time.Minute))
	}

	if got := l.Performance().MaxDrawdown; !almostEqual(got, 120) {
		t.Errorf("MaxDrawdown = %v, want 120 (peak 100 to trough -20)", got)
	}
}

func TestLedgerOneOpenTradePerSymbol(t *testing.T) {
	l := NewLedger()
	at := time.Now()

	first := l.Open(buySignal("BTCUSDT", 100, at), 1, 0, 0)
	if first == nil {
		t.Fatal("first Open returned nil")
	}
	if second := l.Open(buySignal("BTCUSDT", 110, at), 1, 0, 0); second != nil {
		t.Fatal("second Open succeeded while a trade was already open")
	}
	// A different symbol is unaffected.
	if other := l.Open(buySignal("ETHUSDT", 10, at), 1, 0, 0); other == nil {
		t.Fatal("Open for a second symbol returned nil")
	}
}

func TestLedgerCloseAllAtLastPrice(t *testing.T) {
	l := NewLedger()
	at := time.Now()
	l.Open(buySignal("BTCUSDT", 100, at), 2, 0, 0)
	l.MarkPrice("BTCUSDT", 130)

	closed := l.CloseAll(at.Add(time.Hour))
	if len(closed) != 1 {
		t.Fatalf("CloseAll closed %d trades, want 1", len(closed))
	}
	tr := closed[0]
	if tr.ExitPrice != 130 {
		t.Errorf("ExitPrice = %v, want last marked price 130", tr.ExitPrice)
	}
	if !almostEqual(tr.PnL, 60) {
		t.Errorf("PnL = %v, want (130-100)*2 = 60", tr.PnL)
	}
	if l.OpenTrade("BTCUSDT") != nil {
		t.Error("trade still open after CloseAll")
	}
}

func TestLedgerCloseAllWithoutMarkUsesEntryPrice(t *testing.T) {
	// A restored open trade may have no recorded mark; settling at zero
	// would fabricate a total loss.
	l := NewLedger()
	at := time.Now()
	l.Load([]Trade{{
		ID:         "t-1",
		Symbol:     "BTCUSDT",
		Direction:  DirLong,
		EntryPrice: 100,
		EntryTime:  at,
		Qty:        2,
		Status:     TradeOpen,
		Meta:       map[string]any{},
	}}, nil)

	closed := l.CloseAll(at.Add(time.Hour))
	if len(closed) != 1 {
		t.Fatalf("CloseAll closed %d trades, want 1", len(closed))
	}
	if closed[0].ExitPrice != 100 {
		t.Errorf("ExitPrice = %v, want entry price 100", closed[0].ExitPrice)
	}
	if closed[0].PnL != 0 {
		t.Errorf("PnL = %v, want 0 for an entry-price settle", closed[0].PnL)
	}
}

func TestLedgerCanceledAndRejectedExcludedFromPerformance(t *testing.T) {
	l := NewLedger()
	at := time.Now()

	t1 := l.Open(buySignal("BTCUSDT", 100, at), 1, 0, 0)
	l.MarkCanceled(t1, "venue closed", at)

	t2 := l.Open(buySignal("BTCUSDT", 100, at), 1, 0, 0)
	l.MarkRejected(t2, "insufficient margin", at)

	perf := l.Performance()
	if perf.TotalTrades != 2 || perf.CanceledTrades != 1 || perf.RejectedTrades != 1 {
		t.Fatalf("counts = %+v", perf)
	}
	if perf.ClosedTrades != 0 || perf.WinRate != 0 {
		t.Errorf("terminal non-CLOSED trades leaked into stats: %+v", perf)
	}
	if l.OpenTrade("BTCUSDT") != nil {
		t.Error("symbol still marked open after terminal transition")
	}
}

func TestLedgerTradesAreDefensiveCopies(t *testing.T) {
	l := NewLedger()
	at := time.Now()
	l.Open(buySignal("BTCUSDT", 100, at), 1, 95, 110)

	out := l.Trades()
	out[0].Meta["stop_loss"] = 0.0

	if got := l.OpenTrade("BTCUSDT").Meta["stop_loss"]; got != 95.0 {
		t.Errorf("mutating returned trade leaked into ledger: stop_loss = %v", got)
	}
}

func TestLedgerLoadRestoresOpenTrades(t *testing.T) {
	l := NewLedger()
	at := time.Now()
	l.Open(buySignal("BTCUSDT", 100, at), 1, 0, 0)
	l.MarkPrice("BTCUSDT", 120)

	restored := NewLedger()
	restored.Load(l.Trades(), map[string]float64{"BTCUSDT": 120})

	if restored.OpenTrade("BTCUSDT") == nil {
		t.Fatal("open trade not restored")
	}
	if p, ok := restored.LastPrice("BTCUSDT"); !ok || p != 120 {
		t.Errorf("LastPrice = %v/%v, want 120", p, ok)
	}
}
