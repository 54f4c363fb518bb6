package strategy

import (
	"fmt"
	"sort"
)

// ParamType tags the expected value type of a parameter.
type ParamType string

const (
	ParamInt     ParamType = "int"
	ParamFloat   ParamType = "float"
	ParamString  ParamType = "string"
	ParamBool    ParamType = "bool"
	ParamStrings ParamType = "strings"
)

// Parameter is a single typed, optionally bounded configuration value.
type Parameter struct {
	Name        string    `json:"name" yaml:"name"`
	Value       any       `json:"value" yaml:"value"`
	Type        ParamType `json:"type" yaml:"type"`
	Min         *float64  `json:"min,omitempty" yaml:"min,omitempty"`
	Max         *float64  `json:"max,omitempty" yaml:"max,omitempty"`
	Required    bool      `json:"required" yaml:"required"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
}

// Params is a name-keyed parameter set owned by one strategy instance.
type Params struct {
	values map[string]*Parameter
}

// NewParams builds an empty parameter set.
func NewParams() *Params {
	return &Params{values: make(map[string]*Parameter)}
}

// Define registers a parameter, replacing any previous definition of the
// same name.
func (p *Params) Define(param Parameter) {
	cp := param
	p.values[param.Name] = &cp
}

// Get returns the raw value for a name.
func (p *Params) Get(name string) (any, bool) {
	param, ok := p.values[name]
	if !ok || param.Value == nil {
		return nil, false
	}
	return param.Value, true
}

// Int returns an integer parameter, coercing float values that arrive from
// JSON or YAML decoding.
func (p *Params) Int(name string) int {
	v, ok := p.Get(name)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

// Float returns a float parameter, coercing integer values.
func (p *Params) Float(name string) float64 {
	v, ok := p.Get(name)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

// String returns a string parameter.
func (p *Params) String(name string) string {
	if v, ok := p.Get(name); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Bool returns a boolean parameter.
func (p *Params) Bool(name string) bool {
	if v, ok := p.Get(name); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

// Strings returns a string-slice parameter, accepting []any from decoders.
func (p *Params) Strings(name string) []string {
	v, ok := p.Get(name)
	if !ok {
		return nil
	}
	switch list := v.(type) {
	case []string:
		out := make([]string, len(list))
		copy(out, list)
		return out
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Set assigns a value to an existing parameter, or registers an untyped
// optional parameter when the name is unknown.
func (p *Params) Set(name string, value any) {
	if param, ok := p.values[name]; ok {
		param.Value = value
		return
	}
	p.values[name] = &Parameter{Name: name, Value: value, Type: inferType(value)}
}

// Merge applies the supplied values by name and returns the names whose
// values changed.
func (p *Params) Merge(values map[string]any) []string {
	var changed []string
	for name, v := range values {
		if param, ok := p.values[name]; ok {
			if fmt.Sprint(param.Value) == fmt.Sprint(v) {
				continue
			}
		}
		p.Set(name, v)
		changed = append(changed, name)
	}
	sort.Strings(changed)
	return changed
}

// Validate checks that every required parameter has a value and that numeric
// values respect their bounds. It returns one problem string per violation.
func (p *Params) Validate() []string {
	var problems []string
	for _, name := range p.names() {
		param := p.values[name]
		if param.Required && param.Value == nil {
			problems = append(problems, fmt.Sprintf("parameter %q is required", name))
			continue
		}
		if param.Value == nil {
			continue
		}
		if param.Min == nil && param.Max == nil {
			continue
		}
		switch param.Type {
		case ParamInt, ParamFloat:
			v := p.Float(name)
			if param.Min != nil && v < *param.Min {
				problems = append(problems, fmt.Sprintf("parameter %q below minimum %v", name, *param.Min))
			}
			if param.Max != nil && v > *param.Max {
				problems = append(problems, fmt.Sprintf("parameter %q above maximum %v", name, *param.Max))
			}
		}
	}
	return problems
}

// Export returns a copy of every parameter, sorted by name for deterministic
// serialization.
func (p *Params) Export() []Parameter {
	out := make([]Parameter, 0, len(p.values))
	for _, name := range p.names() {
		out = append(out, *p.values[name])
	}
	return out
}

// Clone returns a deep copy of the set.
func (p *Params) Clone() *Params {
	out := NewParams()
	for _, param := range p.values {
		out.Define(*param)
	}
	return out
}

// Len reports the number of defined parameters.
func (p *Params) Len() int {
	return len(p.values)
}

func (p *Params) names() []string {
	names := make([]string, 0, len(p.values))
	for name := range p.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func inferType(v any) ParamType {
	switch v.(type) {
	case int, int64:
		return ParamInt
	case float64:
		return ParamFloat
	case bool:
		return ParamBool
	case string:
		return ParamString
	case []string, []any:
		return ParamStrings
	}
	return ParamString
}

func floatPtr(v float64) *float64 {
	return &v
}
