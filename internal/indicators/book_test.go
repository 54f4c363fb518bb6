package indicators

import (
	"math"
	"testing"
	"time"

	"strategy-core/internal/market"
)

func barAt(symbol string, close float64, i int) market.Bar {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return market.Bar{Symbol: symbol, Time: base.Add(time.Duration(i) * time.Minute), Close: close}
}

func TestSMA(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		period int
		want   float64
	}{
		{"basic", []float64{1, 2, 3, 4}, 2, 3.5},
		{"full window", []float64{2, 4, 6}, 3, 4},
		{"not enough values", []float64{1, 2}, 3, 0},
		{"zero period", []float64{1, 2, 3}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SMA(tt.values, tt.period); got != tt.want {
				t.Errorf("SMA(%v, %d) = %v, want %v", tt.values, tt.period, got, tt.want)
			}
		})
	}
}

func TestRSI(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		period int
		want   float64
	}{
		{"all gains", []float64{1, 2, 3, 4, 5}, 4, 100},
		{"not enough values", []float64{1, 2}, 4, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RSI(tt.values, tt.period); got != tt.want {
				t.Errorf("RSI(%v, %d) = %v, want %v", tt.values, tt.period, got, tt.want)
			}
		})
	}

	// Equal gains and losses sit at the midpoint.
	got := RSI([]float64{10, 11, 10, 11, 10}, 4)
	if math.Abs(got-50) > 1e-9 {
		t.Errorf("RSI balanced = %v, want 50", got)
	}
}

func TestBookWindowDefaultsToTwiceSlowPeriod(t *testing.T) {
	b := NewBook(Options{FastPeriod: 2, SlowPeriod: 3})

	var st *SymbolState
	for i := 0; i < 20; i++ {
		st = b.Update(barAt("BTCUSDT", float64(100+i), i))
	}

	if len(st.Bars) != 6 {
		t.Errorf("retained %d bars, want 2x slow period = 6", len(st.Bars))
	}
	// The window keeps the most recent bars.
	if st.Bars[len(st.Bars)-1].Close != 119 {
		t.Errorf("last close = %v, want 119", st.Bars[len(st.Bars)-1].Close)
	}
	if st.Bars[0].Close != 114 {
		t.Errorf("oldest retained close = %v, want 114", st.Bars[0].Close)
	}
}

func TestBookMASeriesCapped(t *testing.T) {
	b := NewBook(Options{FastPeriod: 2, SlowPeriod: 3})

	var st *SymbolState
	for i := 0; i < 50; i++ {
		st = b.Update(barAt("BTCUSDT", float64(i), i))
	}

	if len(st.FastMA) != maSeriesCap {
		t.Errorf("FastMA length = %d, want %d", len(st.FastMA), maSeriesCap)
	}
	if len(st.SlowMA) != maSeriesCap {
		t.Errorf("SlowMA length = %d, want %d", len(st.SlowMA), maSeriesCap)
	}
}

func TestBookMAValues(t *testing.T) {
	b := NewBook(Options{FastPeriod: 2, SlowPeriod: 3})

	b.Update(barAt("BTCUSDT", 10, 0))
	b.Update(barAt("BTCUSDT", 20, 1))
	st := b.Update(barAt("BTCUSDT", 30, 2))

	if got := st.FastMA[len(st.FastMA)-1]; got != 25 {
		t.Errorf("fast MA = %v, want (20+30)/2 = 25", got)
	}
	if got := st.SlowMA[len(st.SlowMA)-1]; got != 20 {
		t.Errorf("slow MA = %v, want (10+20+30)/3 = 20", got)
	}
}

func TestBookTracksSymbolsIndependently(t *testing.T) {
	b := NewBook(Options{FastPeriod: 2, SlowPeriod: 3})
	b.Update(barAt("BTCUSDT", 100, 0))
	b.Update(barAt("ETHUSDT", 10, 0))

	if len(b.Symbols()) != 2 {
		t.Fatalf("Symbols() = %v", b.Symbols())
	}
	if b.State("BTCUSDT").LastClose() != 100 || b.State("ETHUSDT").LastClose() != 10 {
		t.Error("per-symbol state mixed up")
	}
	if b.State("SOLUSDT") != nil {
		t.Error("State for unseen symbol should be nil")
	}
}

func TestBookReconfigureShrinksWindow(t *testing.T) {
	b := NewBook(Options{FastPeriod: 5, SlowPeriod: 10})
	for i := 0; i < 20; i++ {
		b.Update(barAt("BTCUSDT", float64(i), i))
	}

	b.Reconfigure(Options{FastPeriod: 2, SlowPeriod: 3})
	st := b.Update(barAt("BTCUSDT", 99, 20))

	if len(st.Bars) != 6 {
		t.Errorf("window after reconfigure = %d bars, want 6", len(st.Bars))
	}
}

func TestBookReset(t *testing.T) {
	b := NewBook(Options{FastPeriod: 2, SlowPeriod: 3})
	b.Update(barAt("BTCUSDT", 100, 0))

	b.Reset()
	if len(b.Symbols()) != 0 {
		t.Errorf("Symbols() after Reset = %v", b.Symbols())
	}
}
