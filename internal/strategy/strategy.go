package strategy

import (
	"context"

	"strategy-core/internal/indicators"
)

// Strategy supplies the strategy-specific half of an Instance: parameter
// definitions, validation, indicator configuration, signal logic, and
// lifecycle hooks. The Instance owns all shared mechanics (state machine,
// ledger, de-duplication, error taxonomy).
type Strategy interface {
	// Kind is the registry key, e.g. "ma_cross".
	Kind() string
	// DefaultParams returns the full parameter definition set with default
	// values. The instance clones it at construction.
	DefaultParams() *Params
	// Indicators derives the indicator configuration from the current
	// parameters.
	Indicators(p *Params) indicators.Options
	// Validate contributes strategy-specific checks on top of the generic
	// required/bounds validation. Returns one problem string per violation.
	Validate(p *Params) []string
	// Evaluate inspects the updated indicator record for a symbol and
	// returns a candidate signal, or nil. De-duplication against the last
	// emitted type happens in the instance.
	Evaluate(symbol string, st *indicators.SymbolState, p *Params) *Signal

	// Lifecycle hooks. A non-nil error aborts the transition and moves the
	// instance to ERROR.
	OnInit(ctx context.Context, inst *Instance) error
	OnStart(ctx context.Context, inst *Instance) error
	OnPause(inst *Instance) error
	OnStop(ctx context.Context, inst *Instance) error
	OnReset(inst *Instance) error
	// OnParamsChanged lets a strategy react to UpdateParameters, e.g. to
	// start tracking a new symbol list.
	OnParamsChanged(inst *Instance, changed []string) error
}

// BaseStrategy provides no-op hooks so concrete strategies only implement
// what they need.
type BaseStrategy struct{}

func (BaseStrategy) Validate(*Params) []string { return nil }

func (BaseStrategy) OnInit(context.Context, *Instance) error  { return nil }
func (BaseStrategy) OnStart(context.Context, *Instance) error { return nil }
func (BaseStrategy) OnPause(*Instance) error                  { return nil }
func (BaseStrategy) OnStop(context.Context, *Instance) error  { return nil }
func (BaseStrategy) OnReset(*Instance) error                  { return nil }
func (BaseStrategy) OnParamsChanged(*Instance, []string) error {
	return nil
}
