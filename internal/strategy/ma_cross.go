package strategy

import (
	"fmt"
	"math"

	"strategy-core/internal/indicators"
)

// MACross is a simple moving average crossover strategy: BUY when the fast
// MA crosses above the slow MA (golden cross), SELL when it crosses below
// (death cross). Signal confidence scales with the separation between the
// two averages, capped at 0.9.
type MACross struct {
	BaseStrategy
}

// NewMACross builds the crossover strategy.
func NewMACross() *MACross {
	return &MACross{}
}

func (s *MACross) Kind() string { return "ma_cross" }

func (s *MACross) DefaultParams() *Params {
	p := NewParams()
	p.Define(Parameter{Name: "fastPeriod", Value: 10, Type: ParamInt, Min: floatPtr(1), Required: true,
		Description: "fast moving average period"})
	p.Define(Parameter{Name: "slowPeriod", Value: 30, Type: ParamInt, Min: floatPtr(2), Required: true,
		Description: "slow moving average period"})
	p.Define(Parameter{Name: "symbols", Value: []string{}, Type: ParamStrings, Required: true,
		Description: "symbols to trade"})
	p.Define(Parameter{Name: "orderSize", Value: 1.0, Type: ParamFloat, Min: floatPtr(0),
		Description: "quantity per entry"})
	p.Define(Parameter{Name: "stopLossPct", Value: 0.02, Type: ParamFloat, Min: floatPtr(0), Max: floatPtr(1),
		Description: "stop loss distance as a fraction of entry"})
	p.Define(Parameter{Name: "takeProfitPct", Value: 0.04, Type: ParamFloat, Min: floatPtr(0), Max: floatPtr(1),
		Description: "take profit distance as a fraction of entry"})
	p.Define(Parameter{Name: "trailingStop", Value: false, Type: ParamBool,
		Description: "ratchet the stop with the high-water mark"})
	return p
}

func (s *MACross) Indicators(p *Params) indicators.Options {
	return indicators.Options{
		FastPeriod: p.Int("fastPeriod"),
		SlowPeriod: p.Int("slowPeriod"),
	}
}

func (s *MACross) Validate(p *Params) []string {
	var problems []string
	if p.Int("fastPeriod") >= p.Int("slowPeriod") {
		problems = append(problems, "fast period must be smaller than slow period")
	}
	if len(p.Strings("symbols")) == 0 {
		problems = append(problems, "at least one symbol is required")
	}
	return problems
}

func (s *MACross) Evaluate(symbol string, st *indicators.SymbolState, p *Params) *Signal {
	// A crossover needs the previous and current value of both averages.
	if len(st.FastMA) < 2 || len(st.SlowMA) < 2 {
		return nil
	}
	prevFast, curFast := st.FastMA[len(st.FastMA)-2], st.FastMA[len(st.FastMA)-1]
	prevSlow, curSlow := st.SlowMA[len(st.SlowMA)-2], st.SlowMA[len(st.SlowMA)-1]
	if curSlow == 0 {
		return nil
	}

	bar, ok := st.LastBar()
	if !ok {
		return nil
	}

	base := Signal{
		Symbol: symbol,
		Time:   bar.Time,
		Price:  bar.Close,
		Indicators: map[string]float64{
			"fast_ma": curFast,
			"slow_ma": curSlow,
		},
	}

	// Golden cross: fast moves from at-or-below to above the slow.
	if prevFast <= prevSlow && curFast > curSlow {
		base.Type = SignalBuy
		base.Confidence = math.Min(0.9, (curFast-curSlow)/curSlow)
		base.Note = fmt.Sprintf("golden cross: fast %.4f > slow %.4f", curFast, curSlow)
		return &base
	}

	// Death cross: fast moves from at-or-above to below the slow.
	if prevFast >= prevSlow && curFast < curSlow {
		base.Type = SignalSell
		base.Confidence = math.Min(0.9, (curSlow-curFast)/curSlow)
		base.Note = fmt.Sprintf("death cross: fast %.4f < slow %.4f", curFast, curSlow)
		return &base
	}

	return nil
}
