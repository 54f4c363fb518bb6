package strategy

import (
	"fmt"
	"math"

	"strategy-core/internal/indicators"
)

// RSIReversion is an RSI overbought/oversold mean-reversion strategy: BUY
// when RSI drops below the oversold threshold, SELL when it rises above the
// overbought threshold.
type RSIReversion struct {
	BaseStrategy
}

// NewRSIReversion builds the RSI strategy.
func NewRSIReversion() *RSIReversion {
	return &RSIReversion{}
}

func (s *RSIReversion) Kind() string { return "rsi" }

func (s *RSIReversion) DefaultParams() *Params {
	p := NewParams()
	p.Define(Parameter{Name: "period", Value: 14, Type: ParamInt, Min: floatPtr(2), Required: true,
		Description: "RSI lookback period"})
	p.Define(Parameter{Name: "oversold", Value: 30.0, Type: ParamFloat, Min: floatPtr(0), Max: floatPtr(100),
		Description: "BUY threshold"})
	p.Define(Parameter{Name: "overbought", Value: 70.0, Type: ParamFloat, Min: floatPtr(0), Max: floatPtr(100),
		Description: "SELL threshold"})
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

func (s *RSIReversion) Indicators(p *Params) indicators.Options {
	// No MA series needed; keep twice the RSI lookback of bar history.
	period := p.Int("period")
	return indicators.Options{Window: 2 * (period + 1)}
}

func (s *RSIReversion) Validate(p *Params) []string {
	var problems []string
	if p.Float("oversold") >= p.Float("overbought") {
		problems = append(problems, "oversold threshold must be below overbought threshold")
	}
	if len(p.Strings("symbols")) == 0 {
		problems = append(problems, "at least one symbol is required")
	}
	return problems
}

func (s *RSIReversion) Evaluate(symbol string, st *indicators.SymbolState, p *Params) *Signal {
	period := p.Int("period")
	closes := st.Closes()
	if len(closes) < period+1 {
		return nil
	}
	rsi := indicators.RSI(closes, period)

	bar, ok := st.LastBar()
	if !ok {
		return nil
	}

	base := Signal{
		Symbol:     symbol,
		Time:       bar.Time,
		Price:      bar.Close,
		Indicators: map[string]float64{"rsi": rsi},
	}

	oversold := p.Float("oversold")
	overbought := p.Float("overbought")

	switch {
	case rsi < oversold && oversold > 0:
		base.Type = SignalBuy
		base.Confidence = math.Min(0.9, (oversold-rsi)/oversold)
		base.Note = fmt.Sprintf("RSI %.1f below oversold %.1f", rsi, oversold)
		return &base
	case rsi > overbought && overbought < 100:
		base.Type = SignalSell
		base.Confidence = math.Min(0.9, (rsi-overbought)/(100-overbought))
		base.Note = fmt.Sprintf("RSI %.1f above overbought %.1f", rsi, overbought)
		return &base
	}
	return nil
}
