package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"strategy-core/internal/events"
	"strategy-core/internal/indicators"
	"strategy-core/internal/market"
	"strategy-core/internal/risk"
)

// Config is the durable identity + parameter document for an instance, used
// by ExportConfig/ImportConfig and the YAML/DB definition store.
type Config struct {
	ID          string      `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Version     string      `json:"version,omitempty" yaml:"version,omitempty"`
	Author      string      `json:"author,omitempty" yaml:"author,omitempty"`
	Timeframes  []string    `json:"timeframes,omitempty" yaml:"timeframes,omitempty"`
	Parameters  []Parameter `json:"parameters" yaml:"parameters"`
}

// Status is the read-only snapshot served to persistence/UI consumers.
type Status struct {
	ID          string
	Name        string
	Description string
	Version     string
	Author      string
	State       State
	LastUpdate  time.Time
	LastError   string
	Timeframes  []string
	Symbols     []string
	Performance Performance
	Parameters  []Parameter
	OpenTrades  int
	TotalTrades int
}

// SignalEvent is published on the bus when an instance emits a signal.
type SignalEvent struct {
	InstanceID string
	Signal     Signal
}

// TradeEvent is published when the ledger opens or closes a trade.
type TradeEvent struct {
	InstanceID string
	Trade      Trade
}

// StateChange is published on every lifecycle transition.
type StateChange struct {
	InstanceID string
	From       State
	To         State
	Reason     string
}

// Instance is the lifecycle state machine shared by every strategy kind. It
// owns the parameter set, indicator book, trade ledger, signal
// de-duplication markers, and the stop/take-profit watcher; the injected
// Strategy supplies indicator configuration and signal logic.
//
// An instance processes events one at a time: the feed serializes delivery,
// so the hot path holds no lock. Batch lifecycle operations are guarded
// against concurrent entry and fail rather than race.
type Instance struct {
	id          string
	name        string
	description string
	version     string
	author      string
	timeframes  []string

	strat  Strategy
	params *Params
	bus    *events.Bus

	state       State
	initialized bool
	lastErr     error
	lastUpdate  time.Time

	book       *indicators.Book
	ledger     *Ledger
	watcher    *risk.Watcher
	lastSignal map[string]SignalType

	// opMu makes batch operations non-reentrant: a second concurrent call
	// fails fast instead of interleaving.
	opMu sync.Mutex
}

// New builds an uninitialized instance around a concrete strategy. The bus
// is optional; without one, emissions are local only.
func New(id string, strat Strategy, bus *events.Bus) *Instance {
	if id == "" {
		id = uuid.NewString()
	}
	return &Instance{
		id:         id,
		name:       strat.Kind(),
		strat:      strat,
		params:     strat.DefaultParams().Clone(),
		bus:        bus,
		state:      StateInitialized,
		ledger:     NewLedger(),
		watcher:    risk.NewWatcher(),
		lastSignal: make(map[string]SignalType),
	}
}

// ID returns the instance identifier.
func (in *Instance) ID() string { return in.id }

// Name returns the display name.
func (in *Instance) Name() string { return in.name }

// State returns the current lifecycle state.
func (in *Instance) State() State { return in.state }

// Params exposes the live parameter set to strategy hooks. External readers
// should use Status or ExportConfig instead.
func (in *Instance) Params() *Params { return in.params }

// Symbols returns the configured symbol list.
func (in *Instance) Symbols() []string { return in.params.Strings("symbols") }

// Lifecycle -----------------------------------------------------------------

// Initialize validates and applies the configuration, then runs the
// strategy's init hook. Initializing twice is a lifecycle error that leaves
// the already-initialized instance untouched; any later failure moves the
// instance to ERROR and is returned to the caller.
func (in *Instance) Initialize(ctx context.Context, cfg Config) error {
	if !in.opMu.TryLock() {
		return &LifecycleError{Op: "initialize", State: in.state, Reason: "operation already in progress"}
	}
	defer in.opMu.Unlock()

	if in.initialized {
		return &LifecycleError{Op: "initialize", State: in.state, Reason: "already initialized"}
	}

	in.applyIdentity(cfg)
	for _, p := range cfg.Parameters {
		if p.Value != nil {
			in.params.Set(p.Name, p.Value)
		}
	}

	if err := in.validate(); err != nil {
		in.setError("initialize", err)
		return err
	}

	in.book = indicators.NewBook(in.strat.Indicators(in.params))

	if err := in.strat.OnInit(ctx, in); err != nil {
		perr := &ProcessingError{Op: "initialize", Err: err}
		in.setError("initialize", perr)
		return perr
	}

	in.initialized = true
	in.lastUpdate = time.Now()
	return nil
}

// Start moves the instance to RUNNING. Idempotent when already running.
func (in *Instance) Start(ctx context.Context) error {
	if !in.opMu.TryLock() {
		return &LifecycleError{Op: "start", State: in.state, Reason: "operation already in progress"}
	}
	defer in.opMu.Unlock()

	if in.state == StateRunning {
		return nil
	}
	if !in.initialized {
		return &LifecycleError{Op: "start", State: in.state, Reason: "not initialized"}
	}
	if err := in.strat.OnStart(ctx, in); err != nil {
		perr := &ProcessingError{Op: "start", Err: err}
		in.setError("start", perr)
		return perr
	}
	in.transition(StateRunning, "start")
	return nil
}

// Pause suspends event processing. A no-op unless currently RUNNING.
func (in *Instance) Pause() error {
	if !in.opMu.TryLock() {
		return &LifecycleError{Op: "pause", State: in.state, Reason: "operation already in progress"}
	}
	defer in.opMu.Unlock()

	if in.state != StateRunning {
		return nil
	}
	if err := in.strat.OnPause(in); err != nil {
		perr := &ProcessingError{Op: "pause", Err: err}
		in.setError("pause", perr)
		return perr
	}
	in.transition(StatePaused, "pause")
	return nil
}

// Stop halts the instance and drains every OPEN trade at the last known
// price for its symbol. Idempotent when already stopped.
func (in *Instance) Stop(ctx context.Context) error {
	if !in.opMu.TryLock() {
		return &LifecycleError{Op: "stop", State: in.state, Reason: "operation already in progress"}
	}
	defer in.opMu.Unlock()

	if in.state == StateStopped {
		return nil
	}

	for _, t := range in.ledger.CloseAll(time.Now()) {
		t.Meta["exit_reason"] = "strategy stopped"
		in.publishTrade(events.EventTradeClosed, *t)
	}
	in.watcher.Clear()

	if err := in.strat.OnStop(ctx, in); err != nil {
		perr := &ProcessingError{Op: "stop", Err: err}
		in.setError("stop", perr)
		return perr
	}
	in.transition(StateStopped, "stop")
	return nil
}

// Reset clears the trade ledger, performance, indicator state, and signal
// markers, returning the instance to INITIALIZED. It is the only way out of
// ERROR.
func (in *Instance) Reset() error {
	if !in.opMu.TryLock() {
		return &LifecycleError{Op: "reset", State: in.state, Reason: "operation already in progress"}
	}
	defer in.opMu.Unlock()

	in.ledger.Reset()
	in.watcher.Clear()
	if in.book != nil {
		in.book.Reset()
	}
	for sym := range in.lastSignal {
		in.lastSignal[sym] = SignalHold
	}
	in.lastErr = nil

	if err := in.strat.OnReset(in); err != nil {
		perr := &ProcessingError{Op: "reset", Err: err}
		in.setError("reset", perr)
		return perr
	}
	in.transition(StateInitialized, "reset")
	return nil
}

// Validate runs the generic and strategy-specific parameter checks without
// touching state.
func (in *Instance) Validate() error {
	return in.validate()
}

func (in *Instance) validate() error {
	problems := in.params.Validate()
	problems = append(problems, in.strat.Validate(in.params)...)
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Batch operations ----------------------------------------------------------

// OnData replays one bar or a batch of bars through the full processing
// path. Unlike the streaming callbacks, failures here propagate to the
// caller and move the instance to ERROR.
func (in *Instance) OnData(payload any) error {
	if !in.opMu.TryLock() {
		return &LifecycleError{Op: "onData", State: in.state, Reason: "operation already in progress"}
	}
	defer in.opMu.Unlock()

	if in.state != StateRunning {
		return &LifecycleError{Op: "onData", State: in.state, Reason: "not running"}
	}

	var bars []market.Bar
	switch v := payload.(type) {
	case market.Bar:
		bars = []market.Bar{v}
	case []market.Bar:
		bars = v
	default:
		perr := &ProcessingError{Op: "onData", Err: fmt.Errorf("unsupported payload %T", payload)}
		in.setError("onData", perr)
		return perr
	}

	for _, bar := range bars {
		if err := in.runSafe("onData", func() { in.processBar(bar) }); err != nil {
			perr := &ProcessingError{Op: "onData", Err: err}
			in.setError("onData", perr)
			return perr
		}
	}
	return nil
}

// GenerateSignals re-evaluates every tracked symbol against its current
// indicator state and processes any qualifying emissions. Returns the
// signals actually emitted.
func (in *Instance) GenerateSignals() ([]Signal, error) {
	if !in.opMu.TryLock() {
		return nil, &LifecycleError{Op: "generateSignals", State: in.state, Reason: "operation already in progress"}
	}
	defer in.opMu.Unlock()

	if in.state != StateRunning {
		return nil, &LifecycleError{Op: "generateSignals", State: in.state, Reason: "not running"}
	}

	var emitted []Signal
	for _, sym := range in.book.Symbols() {
		st := in.book.State(sym)
		if st == nil {
			continue
		}
		err := in.runSafe("generateSignals", func() {
			if sig := in.evaluateAndEmit(sym, st); sig != nil {
				emitted = append(emitted, *sig)
			}
		})
		if err != nil {
			perr := &ProcessingError{Op: "generateSignals", Err: err}
			in.setError("generateSignals", perr)
			return nil, perr
		}
	}
	return emitted, nil
}

// UpdateParameters merges the supplied values by name, re-validates, and
// notifies the strategy. Validation or hook failures move the instance to
// ERROR.
func (in *Instance) UpdateParameters(values map[string]any) error {
	if !in.opMu.TryLock() {
		return &LifecycleError{Op: "updateParameters", State: in.state, Reason: "operation already in progress"}
	}
	defer in.opMu.Unlock()

	trial := in.params.Clone()
	changed := trial.Merge(values)
	if len(changed) == 0 {
		return nil
	}

	problems := trial.Validate()
	problems = append(problems, in.strat.Validate(trial)...)
	if len(problems) > 0 {
		verr := &ValidationError{Problems: problems}
		in.setError("updateParameters", verr)
		return verr
	}

	in.params = trial
	if in.book != nil {
		in.book.Reconfigure(in.strat.Indicators(in.params))
	}

	if err := in.strat.OnParamsChanged(in, changed); err != nil {
		perr := &ProcessingError{Op: "updateParameters", Err: err}
		in.setError("updateParameters", perr)
		return perr
	}
	return nil
}

// Streaming callbacks --------------------------------------------------------
//
// These are best-effort by design: a failure inside one is logged and
// swallowed so a single malformed tick cannot halt a running strategy. They
// never change lifecycle state.

// OnBar processes a closed bar. Ignored unless RUNNING.
func (in *Instance) OnBar(bar market.Bar) {
	if in.state != StateRunning {
		return
	}
	if err := in.runSafe("onBar", func() { in.processBar(bar) }); err != nil {
		log.Printf("strategy %s: onBar %s: %v (ignored)", in.id, bar.Symbol, err)
	}
}

// OnQuote processes a best bid/ask update: refreshes the mark price and
// checks exit levels. Ignored unless RUNNING.
func (in *Instance) OnQuote(symbol string, q market.Quote) {
	if in.state != StateRunning {
		return
	}
	if err := in.runSafe("onQuote", func() { in.checkExit(symbol, q.Mid(), q.Time) }); err != nil {
		log.Printf("strategy %s: onQuote %s: %v (ignored)", in.id, symbol, err)
	}
}

// OnTrade processes a venue trade print the same way as a quote. Ignored
// unless RUNNING.
func (in *Instance) OnTrade(symbol string, t market.Tick) {
	if in.state != StateRunning {
		return
	}
	if err := in.runSafe("onTrade", func() { in.checkExit(symbol, t.Price, t.Time) }); err != nil {
		log.Printf("strategy %s: onTrade %s: %v (ignored)", in.id, symbol, err)
	}
}

// OnMarketData dispatches a generic feed payload by kind: "bar", "quote" or
// "trade".
func (in *Instance) OnMarketData(symbol, kind string, data any) {
	switch kind {
	case "bar":
		if bar, ok := data.(market.Bar); ok {
			in.OnBar(bar)
		}
	case "quote":
		if q, ok := data.(market.Quote); ok {
			in.OnQuote(symbol, q)
		}
	case "trade":
		if t, ok := data.(market.Tick); ok {
			in.OnTrade(symbol, t)
		}
	default:
		log.Printf("strategy %s: unknown market data kind %q (ignored)", in.id, kind)
	}
}

// OnOrderUpdate patches the matching trade with fill or terminal-status
// details from the execution service. Ignored unless RUNNING.
func (in *Instance) OnOrderUpdate(orderID string, status OrderStatus, upd OrderUpdate) {
	if in.state != StateRunning {
		return
	}
	err := in.runSafe("onOrderUpdate", func() {
		t := in.ledger.FindByOrderID(orderID)
		if t == nil && upd.Symbol != "" {
			t = in.ledger.OpenTrade(upd.Symbol)
		}
		if t == nil {
			return
		}
		if orderID != "" {
			t.Meta["order_id"] = orderID
		}

		at := upd.Time
		if at.IsZero() {
			at = time.Now()
		}

		switch status {
		case OrderFilled:
			if t.Status == TradeOpen {
				if upd.FillPrice > 0 && upd.FillPrice != t.EntryPrice {
					t.EntryPrice = upd.FillPrice
					// Exit levels were derived from the signal price;
					// move them with the actual fill.
					in.rearmExits(t)
				}
				if upd.FillQty > 0 {
					t.Qty = upd.FillQty
				}
				t.Meta["fill_time"] = at
				in.ledger.Touch()
			}
		case OrderCanceled:
			in.ledger.MarkCanceled(t, upd.Reason, at)
			in.watcher.Drop(t.Symbol)
		case OrderRejected:
			in.ledger.MarkRejected(t, upd.Reason, at)
			in.watcher.Drop(t.Symbol)
		}
		in.lastUpdate = at
	})
	if err != nil {
		log.Printf("strategy %s: onOrderUpdate %s: %v (ignored)", in.id, orderID, err)
	}
}

// OnPositionUpdate patches live market price and unrealized P&L into the
// OPEN trade's metadata for the symbol. Ignored unless RUNNING.
func (in *Instance) OnPositionUpdate(symbol string, pos PositionUpdate) {
	if in.state != StateRunning {
		return
	}
	err := in.runSafe("onPositionUpdate", func() {
		t := in.ledger.OpenTrade(symbol)
		if t == nil {
			return
		}
		t.Meta["mark_price"] = pos.MarkPrice
		t.Meta["unrealized_pnl"] = pos.UnrealizedPnL
		in.ledger.MarkPrice(symbol, pos.MarkPrice)
		in.lastUpdate = time.Now()
	})
	if err != nil {
		log.Printf("strategy %s: onPositionUpdate %s: %v (ignored)", in.id, symbol, err)
	}
}

// Core processing -------------------------------------------------------------

func (in *Instance) processBar(bar market.Bar) {
	st := in.book.Update(bar)
	in.ledger.MarkPrice(bar.Symbol, bar.Close)
	in.lastUpdate = bar.Time
	if in.lastUpdate.IsZero() {
		in.lastUpdate = time.Now()
	}

	in.checkExitLocked(bar.Symbol, bar.Close, bar.Time)
	in.evaluateAndEmit(bar.Symbol, st)
}

// checkExit refreshes the mark price and closes the open trade when a
// stop-loss/take-profit level triggers.
func (in *Instance) checkExit(symbol string, price float64, at time.Time) {
	if price <= 0 {
		return
	}
	in.ledger.MarkPrice(symbol, price)
	in.checkExitLocked(symbol, price, at)
}

func (in *Instance) checkExitLocked(symbol string, price float64, at time.Time) {
	dec := in.watcher.Check(symbol, price)
	if dec == nil {
		return
	}
	if at.IsZero() {
		at = time.Now()
	}
	if t := in.ledger.Close(symbol, dec.Price, SignalSell, at); t != nil {
		t.Meta["exit_reason"] = dec.Reason
		in.publishTrade(events.EventTradeClosed, *t)
	}
}

// evaluateAndEmit runs the strategy's signal logic for one symbol, applies
// de-duplication, and routes a qualifying signal into the ledger. Returns
// the emitted signal, or nil.
func (in *Instance) evaluateAndEmit(symbol string, st *indicators.SymbolState) *Signal {
	cand := in.strat.Evaluate(symbol, st, in.params)
	if cand == nil {
		return nil
	}
	last, seen := in.lastSignal[symbol]
	if !seen {
		last = SignalHold
	}
	if cand.Type == last {
		return nil // suppress repeats until the condition flips
	}
	in.lastSignal[symbol] = cand.Type

	if in.bus != nil {
		in.bus.Publish(events.EventSignal, SignalEvent{InstanceID: in.id, Signal: *cand})
	}
	in.applySignal(*cand)
	return cand
}

func (in *Instance) applySignal(sig Signal) {
	switch sig.Type {
	case SignalBuy:
		qty := in.params.Float("orderSize")
		if qty <= 0 {
			qty = 1
		}
		t := in.ledger.Open(sig, qty, 0, 0)
		if t == nil {
			return // one OPEN trade per symbol; ignore the extra BUY
		}
		in.rearmExits(t)
		in.publishTrade(events.EventTradeOpened, *t)

	case SignalSell:
		at := sig.Time
		if at.IsZero() {
			at = time.Now()
		}
		if t := in.ledger.Close(sig.Symbol, sig.Price, SignalSell, at); t != nil {
			in.watcher.Drop(sig.Symbol)
			in.publishTrade(events.EventTradeClosed, *t)
		}
	}
}

// rearmExits derives stop-loss/take-profit levels from the trade's current
// entry price and points the watcher at them. Called on open and again when
// a fill lands away from the signal price.
func (in *Instance) rearmExits(t *Trade) {
	var stopLoss, takeProfit float64
	if pct := in.params.Float("stopLossPct"); pct > 0 {
		stopLoss = t.EntryPrice * (1 - pct)
	}
	if pct := in.params.Float("takeProfitPct"); pct > 0 {
		takeProfit = t.EntryPrice * (1 + pct)
	}
	if stopLoss <= 0 && takeProfit <= 0 {
		return
	}
	if stopLoss > 0 {
		t.Meta["stop_loss"] = stopLoss
	}
	if takeProfit > 0 {
		t.Meta["take_profit"] = takeProfit
	}
	in.watcher.Track(risk.Level{
		Symbol:     t.Symbol,
		Entry:      t.EntryPrice,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		Trailing:   in.params.Bool("trailingStop"),
		TrailPct:   in.params.Float("stopLossPct"),
	})
}

// Accessors -------------------------------------------------------------------

// Performance returns the current derived statistics snapshot.
func (in *Instance) Performance() Performance {
	return in.ledger.Performance()
}

// TradeHistory returns defensive copies of every recorded trade.
func (in *Instance) TradeHistory() []Trade {
	return in.ledger.Trades()
}

// Status returns the externally visible snapshot of the instance.
func (in *Instance) Status() Status {
	perf := in.ledger.Performance()
	s := Status{
		ID:          in.id,
		Name:        in.name,
		Description: in.description,
		Version:     in.version,
		Author:      in.author,
		State:       in.state,
		LastUpdate:  in.lastUpdate,
		Timeframes:  append([]string(nil), in.timeframes...),
		Symbols:     in.Symbols(),
		Performance: perf,
		Parameters:  in.params.Export(),
		OpenTrades:  perf.OpenTrades,
		TotalTrades: perf.TotalTrades,
	}
	if in.lastErr != nil {
		s.LastError = in.lastErr.Error()
	}
	return s
}

// ExportConfig serializes identity and the full parameter list for durable
// storage by an external store.
func (in *Instance) ExportConfig() Config {
	return Config{
		ID:          in.id,
		Name:        in.name,
		Description: in.description,
		Version:     in.version,
		Author:      in.author,
		Timeframes:  append([]string(nil), in.timeframes...),
		Parameters:  in.params.Export(),
	}
}

// ImportConfig merges a previously exported configuration back: identity
// fields overwrite when non-empty, parameter values merge by name.
func (in *Instance) ImportConfig(cfg Config) error {
	in.applyIdentity(cfg)
	for _, p := range cfg.Parameters {
		if p.Value != nil {
			in.params.Set(p.Name, p.Value)
		}
	}
	return nil
}

func (in *Instance) applyIdentity(cfg Config) {
	if cfg.Name != "" {
		in.name = cfg.Name
	}
	if cfg.Description != "" {
		in.description = cfg.Description
	}
	if cfg.Version != "" {
		in.version = cfg.Version
	}
	if cfg.Author != "" {
		in.author = cfg.Author
	}
	if len(cfg.Timeframes) > 0 {
		in.timeframes = append([]string(nil), cfg.Timeframes...)
	}
}

// Runtime snapshot ------------------------------------------------------------

type runtimeSnapshot struct {
	State       State                 `json:"state"`
	LastSignals map[string]SignalType `json:"last_signals"`
	LastCloses  map[string]float64    `json:"last_closes"`
	Trades      []Trade               `json:"trades"`
	Params      map[string]any        `json:"params"`
}

// Snapshot serializes the runtime state (ledger, markers, parameter values)
// for persistence across restarts.
func (in *Instance) Snapshot() (json.RawMessage, error) {
	snap := runtimeSnapshot{
		State:       in.state,
		LastSignals: in.lastSignal,
		LastCloses:  make(map[string]float64),
		Trades:      in.ledger.Trades(),
		Params:      make(map[string]any),
	}
	for _, sym := range in.Symbols() {
		if p, ok := in.ledger.LastPrice(sym); ok {
			snap.LastCloses[sym] = p
		}
	}
	for _, p := range in.params.Export() {
		snap.Params[p.Name] = p.Value
	}
	return json.Marshal(snap)
}

// Restore rebuilds runtime state from a Snapshot payload. Lifecycle state is
// not restored; the caller decides whether to Start.
func (in *Instance) Restore(data json.RawMessage) error {
	var snap runtimeSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	if snap.Params != nil {
		in.params.Merge(snap.Params)
	}
	in.lastSignal = make(map[string]SignalType, len(snap.LastSignals))
	for sym, sig := range snap.LastSignals {
		in.lastSignal[sym] = sig
	}
	in.ledger.Load(snap.Trades, snap.LastCloses)

	// Re-arm exit levels for trades that were open at snapshot time.
	for _, sym := range in.Symbols() {
		t := in.ledger.OpenTrade(sym)
		if t == nil {
			continue
		}
		level := risk.Level{Symbol: sym, Entry: t.EntryPrice}
		if sl, ok := t.Meta["stop_loss"].(float64); ok {
			level.StopLoss = sl
		}
		if tp, ok := t.Meta["take_profit"].(float64); ok {
			level.TakeProfit = tp
		}
		if level.StopLoss > 0 || level.TakeProfit > 0 {
			in.watcher.Track(level)
		}
	}
	return nil
}

// Internals -------------------------------------------------------------------

func (in *Instance) transition(to State, reason string) {
	from := in.state
	in.state = to
	if in.bus != nil && from != to {
		in.bus.Publish(events.EventStateChange, StateChange{InstanceID: in.id, From: from, To: to, Reason: reason})
	}
}

func (in *Instance) setError(op string, err error) {
	in.lastErr = err
	from := in.state
	in.state = StateError
	log.Printf("strategy %s: %s failed: %v", in.id, op, err)
	if in.bus != nil && from != StateError {
		in.bus.Publish(events.EventStateChange, StateChange{InstanceID: in.id, From: from, To: StateError, Reason: err.Error()})
	}
}

func (in *Instance) publishTrade(e events.Event, t Trade) {
	if in.bus != nil {
		in.bus.Publish(e, TradeEvent{InstanceID: in.id, Trade: t.CloneMeta()})
	}
}

// runSafe converts a panic inside fn into an error so streaming callbacks
// can isolate it and batch operations can wrap it.
func (in *Instance) runSafe(op string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", op, r)
		}
	}()
	fn()
	return nil
}
