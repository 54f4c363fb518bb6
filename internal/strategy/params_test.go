package strategy

import (
	"reflect"
	"testing"
)

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name     string
		setup    func() *Params
		problems int
	}{
		{
			name: "all valid",
			setup: func() *Params {
				p := NewParams()
				p.Define(Parameter{Name: "period", Value: 14, Type: ParamInt, Min: floatPtr(2), Required: true})
				return p
			},
			problems: 0,
		},
		{
			name: "required missing",
			setup: func() *Params {
				p := NewParams()
				p.Define(Parameter{Name: "symbols", Type: ParamStrings, Required: true})
				return p
			},
			problems: 1,
		},
		{
			name: "below minimum",
			setup: func() *Params {
				p := NewParams()
				p.Define(Parameter{Name: "period", Value: 1, Type: ParamInt, Min: floatPtr(2)})
				return p
			},
			problems: 1,
		},
		{
			name: "above maximum",
			setup: func() *Params {
				p := NewParams()
				p.Define(Parameter{Name: "pct", Value: 1.5, Type: ParamFloat, Min: floatPtr(0), Max: floatPtr(1)})
				return p
			},
			problems: 1,
		},
		{
			name: "two violations reported separately",
			setup: func() *Params {
				p := NewParams()
				p.Define(Parameter{Name: "a", Value: -1, Type: ParamInt, Min: floatPtr(0)})
				p.Define(Parameter{Name: "b", Type: ParamString, Required: true})
				return p
			},
			problems: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.setup().Validate()
			if len(got) != tt.problems {
				t.Fatalf("Validate() = %v, want %d problems", got, tt.problems)
			}
		})
	}
}

func TestParamsCoercion(t *testing.T) {
	p := NewParams()
	p.Define(Parameter{Name: "period", Value: float64(14), Type: ParamInt})
	p.Define(Parameter{Name: "size", Value: 2, Type: ParamFloat})
	p.Define(Parameter{Name: "symbols", Value: []any{"BTCUSDT", "ETHUSDT"}, Type: ParamStrings})

	if got := p.Int("period"); got != 14 {
		t.Errorf("Int(period) = %d, want 14 (float64 from JSON should coerce)", got)
	}
	if got := p.Float("size"); got != 2.0 {
		t.Errorf("Float(size) = %v, want 2.0", got)
	}
	if got := p.Strings("symbols"); !reflect.DeepEqual(got, []string{"BTCUSDT", "ETHUSDT"}) {
		t.Errorf("Strings(symbols) = %v", got)
	}
}

func TestParamsMerge(t *testing.T) {
	p := NewParams()
	p.Define(Parameter{Name: "fastPeriod", Value: 10, Type: ParamInt})
	p.Define(Parameter{Name: "slowPeriod", Value: 30, Type: ParamInt})

	changed := p.Merge(map[string]any{
		"slowPeriod": 40,
		"fastPeriod": 10, // unchanged
		"newParam":   "x",
	})
	want := []string{"newParam", "slowPeriod"}
	if !reflect.DeepEqual(changed, want) {
		t.Fatalf("Merge changed = %v, want %v", changed, want)
	}
	if p.Int("slowPeriod") != 40 {
		t.Errorf("slowPeriod = %d after merge, want 40", p.Int("slowPeriod"))
	}
	if p.String("newParam") != "x" {
		t.Errorf("newParam not registered by merge")
	}
}

func TestParamsCloneIsIndependent(t *testing.T) {
	p := NewParams()
	p.Define(Parameter{Name: "period", Value: 14, Type: ParamInt})

	cp := p.Clone()
	cp.Set("period", 99)

	if p.Int("period") != 14 {
		t.Errorf("mutating clone changed original: %d", p.Int("period"))
	}
	if cp.Int("period") != 99 {
		t.Errorf("clone value = %d, want 99", cp.Int("period"))
	}
}

func TestParamsExportSorted(t *testing.T) {
	p := NewParams()
	p.Define(Parameter{Name: "zeta", Value: 1, Type: ParamInt})
	p.Define(Parameter{Name: "alpha", Value: 2, Type: ParamInt})

	out := p.Export()
	if len(out) != 2 || out[0].Name != "alpha" || out[1].Name != "zeta" {
		t.Fatalf("Export() not sorted by name: %+v", out)
	}
}
