package indicators

import "strategy-core/internal/market"

// maSeriesCap bounds the retained fast/slow moving-average history per symbol.
const maSeriesCap = 10

// Options configures the indicator state kept per symbol.
type Options struct {
	FastPeriod int
	SlowPeriod int
	// Window caps the retained bar history. Zero means 2x the slow period.
	Window int
}

func (o Options) window() int {
	if o.Window > 0 {
		return o.Window
	}
	return 2 * o.SlowPeriod
}

// SymbolState is the rolling indicator record for one symbol: the capped bar
// window plus the derived fast/slow moving-average series. Keeping all of it
// in one record keeps the paired invariants (bounded length, fast/slow in
// lockstep) in one place.
type SymbolState struct {
	Bars   []market.Bar
	FastMA []float64
	SlowMA []float64
}

// LastBar returns the most recent bar, or false when no bar has been seen.
func (s *SymbolState) LastBar() (market.Bar, bool) {
	if len(s.Bars) == 0 {
		return market.Bar{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

// LastClose returns the most recent close price, or 0 when empty.
func (s *SymbolState) LastClose() float64 {
	if b, ok := s.LastBar(); ok {
		return b.Close
	}
	return 0
}

// Closes returns the close prices of the retained bar window, oldest first.
func (s *SymbolState) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Book maintains indicator state for every symbol a strategy instance tracks.
// It is owned by a single instance and relies on the instance's one-event-at-
// a-time processing model, so it carries no lock.
type Book struct {
	opts   Options
	states map[string]*SymbolState
}

// NewBook builds an empty book with the given indicator options.
func NewBook(opts Options) *Book {
	return &Book{
		opts:   opts,
		states: make(map[string]*SymbolState),
	}
}

// Options returns the current indicator configuration.
func (b *Book) Options() Options {
	return b.opts
}

// Reconfigure swaps indicator options in place; existing bar windows are
// re-trimmed to the new cap on the next update.
func (b *Book) Reconfigure(opts Options) {
	b.opts = opts
}

// State returns the record for a symbol, or nil if none exists yet.
func (b *Book) State(symbol string) *SymbolState {
	return b.states[symbol]
}

// Symbols lists every symbol with at least one processed bar.
func (b *Book) Symbols() []string {
	out := make([]string, 0, len(b.states))
	for sym := range b.states {
		out = append(out, sym)
	}
	return out
}

// Update appends a bar to the symbol's window, trims history, and recomputes
// the fast/slow moving averages when enough bars exist. Returns the updated
// record.
func (b *Book) Update(bar market.Bar) *SymbolState {
	st, ok := b.states[bar.Symbol]
	if !ok {
		st = &SymbolState{}
		b.states[bar.Symbol] = st
	}

	st.Bars = append(st.Bars, bar)
	if limit := b.opts.window(); limit > 0 && len(st.Bars) > limit {
		st.Bars = st.Bars[len(st.Bars)-limit:]
	}

	if b.opts.FastPeriod > 0 && b.opts.SlowPeriod > 0 {
		closes := st.Closes()
		if len(closes) >= b.opts.FastPeriod {
			st.FastMA = appendCapped(st.FastMA, SMA(closes, b.opts.FastPeriod), maSeriesCap)
		}
		if len(closes) >= b.opts.SlowPeriod {
			st.SlowMA = appendCapped(st.SlowMA, SMA(closes, b.opts.SlowPeriod), maSeriesCap)
		}
	}

	return st
}

// Reset drops all per-symbol state.
func (b *Book) Reset() {
	b.states = make(map[string]*SymbolState)
}

func appendCapped(series []float64, v float64, limit int) []float64 {
	series = append(series, v)
	if len(series) > limit {
		series = series[len(series)-limit:]
	}
	return series
}
