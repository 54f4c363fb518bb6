// Package engine wires strategy instances to market data, execution reports,
// and persistence. It owns the single event loop that delivers bus traffic to
// instances, so instance internals stay lock-free.
package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"strategy-core/internal/events"
	"strategy-core/internal/market"
	"strategy-core/internal/order"
	"strategy-core/internal/strategy"
	"strategy-core/pkg/db"
)

// HistorySource supplies recent closed bars for indicator warm-up.
type HistorySource interface {
	History(ctx context.Context, symbol string, limit int) ([]market.Bar, error)
}

// Options tunes engine startup behavior.
type Options struct {
	WarmupBars int           // bars fetched per symbol before going live; 0 skips warm-up
	History    HistorySource // nil skips warm-up
}

// Service hosts every configured strategy instance and routes events between
// them and the rest of the system.
type Service struct {
	bus  *events.Bus
	db   *db.Database
	opts Options

	mu        sync.RWMutex
	instances map[string]*strategy.Instance
	bySymbol  map[string][]*strategy.Instance
}

func NewService(bus *events.Bus, database *db.Database, opts Options) *Service {
	return &Service{
		bus:       bus,
		db:        database,
		opts:      opts,
		instances: make(map[string]*strategy.Instance),
		bySymbol:  make(map[string][]*strategy.Instance),
	}
}

// LoadDefinitions reads strategy definitions from a YAML file, syncs them to
// the database, and builds an initialized instance for every active entry.
// Previously saved runtime snapshots are restored before start.
func (s *Service) LoadDefinitions(ctx context.Context, path string) error {
	defs, err := strategy.LoadDefinitions(path)
	if err != nil {
		return fmt.Errorf("load definitions: %w", err)
	}
	if s.db != nil {
		if err := strategy.SyncDefinitions(ctx, s.db, defs); err != nil {
			return fmt.Errorf("sync definitions: %w", err)
		}
	}

	for _, def := range defs {
		if !def.IsActive {
			continue
		}
		if err := s.addInstance(ctx, def); err != nil {
			return err
		}
	}
	return nil
}

// LoadFromDatabase rebuilds instances from persisted definitions, used when
// no definitions file is configured.
func (s *Service) LoadFromDatabase(ctx context.Context) error {
	if s.db == nil {
		return errors.New("no database configured")
	}
	rows, err := s.db.ListActiveInstances(ctx)
	if err != nil {
		return fmt.Errorf("list instances: %w", err)
	}
	for _, row := range rows {
		def, err := strategy.DefinitionFromRow(row)
		if err != nil {
			return err
		}
		if err := s.addInstance(ctx, def); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) addInstance(ctx context.Context, def strategy.Definition) error {
	inst, cfg, err := strategy.Build(def, s.bus)
	if err != nil {
		return fmt.Errorf("build %s: %w", def.ID, err)
	}
	if err := inst.Initialize(ctx, cfg); err != nil {
		return fmt.Errorf("initialize %s: %w", def.ID, err)
	}

	if s.db != nil {
		if stateJSON, err := s.db.GetInstanceState(ctx, inst.ID()); err == nil {
			if err := inst.Restore(json.RawMessage(stateJSON)); err != nil {
				log.Printf("engine: restore %s: %v (starting fresh)", inst.ID(), err)
			} else {
				log.Printf("engine: restored snapshot for %s", inst.ID())
			}
		} else if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("load state %s: %w", inst.ID(), err)
		}
	}

	s.mu.Lock()
	s.instances[inst.ID()] = inst
	for _, sym := range inst.Symbols() {
		s.bySymbol[sym] = append(s.bySymbol[sym], inst)
	}
	s.mu.Unlock()

	log.Printf("engine: loaded strategy %s (%s) symbols=%v", inst.ID(), def.Type, inst.Symbols())
	return nil
}

// Warmup replays recent history through every instance so indicators have
// enough bars before the live stream begins. Instances must be RUNNING:
// batch replay goes through the same guarded path as live data.
func (s *Service) Warmup(ctx context.Context) error {
	if s.opts.History == nil || s.opts.WarmupBars <= 0 {
		return nil
	}

	s.mu.RLock()
	symbols := make([]string, 0, len(s.bySymbol))
	for sym := range s.bySymbol {
		symbols = append(symbols, sym)
	}
	s.mu.RUnlock()

	for _, sym := range symbols {
		bars, err := s.opts.History.History(ctx, sym, s.opts.WarmupBars)
		if err != nil {
			return fmt.Errorf("warmup %s: %w", sym, err)
		}
		s.mu.RLock()
		insts := s.bySymbol[sym]
		s.mu.RUnlock()
		for _, inst := range insts {
			if err := inst.OnData(bars); err != nil {
				return fmt.Errorf("warmup %s into %s: %w", sym, inst.ID(), err)
			}
		}
		log.Printf("engine: warmed up %s with %d bars", sym, len(bars))
	}
	return nil
}

// StartAll starts every loaded instance.
func (s *Service) StartAll(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, inst := range s.instances {
		if err := inst.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", id, err)
		}
	}
	return nil
}

// Run is the event loop: it delivers bars, ticks, execution reports, and
// position changes to instances, and persists ledger trades as they open and
// close. Run blocks until the context is canceled.
func (s *Service) Run(ctx context.Context) {
	bars, cancelBars := s.bus.Subscribe(events.EventBar, 200)
	ticks, cancelTicks := s.bus.Subscribe(events.EventTick, 200)
	quotes, cancelQuotes := s.bus.Subscribe(events.EventQuote, 200)
	orderUpds, cancelOrders := s.bus.Subscribe(events.EventOrderUpdate, 100)
	posChanges, cancelPos := s.bus.Subscribe(events.EventPositionChange, 100)
	opened, cancelOpened := s.bus.Subscribe(events.EventTradeOpened, 100)
	closed, cancelClosed := s.bus.Subscribe(events.EventTradeClosed, 100)
	defer cancelBars()
	defer cancelTicks()
	defer cancelQuotes()
	defer cancelOrders()
	defer cancelPos()
	defer cancelOpened()
	defer cancelClosed()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-bars:
			if bar, ok := msg.(market.Bar); ok {
				s.eachForSymbol(bar.Symbol, func(inst *strategy.Instance) { inst.OnBar(bar) })
			}
		case msg := <-ticks:
			if tick, ok := msg.(market.Tick); ok {
				s.eachForSymbol(tick.Symbol, func(inst *strategy.Instance) { inst.OnTrade(tick.Symbol, tick) })
			}
		case msg := <-quotes:
			if q, ok := msg.(market.Quote); ok {
				s.eachForSymbol(q.Symbol, func(inst *strategy.Instance) { inst.OnQuote(q.Symbol, q) })
			}
		case msg := <-orderUpds:
			if upd, ok := msg.(order.Update); ok {
				s.routeOrderUpdate(upd)
			}
		case msg := <-posChanges:
			if pos, ok := msg.(db.Position); ok {
				s.routePosition(pos)
			}
		case msg := <-opened:
			if ev, ok := msg.(strategy.TradeEvent); ok {
				s.persistTrade(ctx, ev)
			}
		case msg := <-closed:
			if ev, ok := msg.(strategy.TradeEvent); ok {
				s.persistTrade(ctx, ev)
			}
		}
	}
}

func (s *Service) eachForSymbol(symbol string, fn func(*strategy.Instance)) {
	s.mu.RLock()
	insts := s.bySymbol[symbol]
	s.mu.RUnlock()
	for _, inst := range insts {
		fn(inst)
	}
}

func (s *Service) routeOrderUpdate(upd order.Update) {
	s.mu.RLock()
	inst, ok := s.instances[upd.InstanceID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	inst.OnOrderUpdate(upd.OrderID, upd.Status, strategy.OrderUpdate{
		Symbol:    upd.Symbol,
		FillPrice: upd.FillPrice,
		FillQty:   upd.FillQty,
		Reason:    upd.Reason,
		Time:      upd.Time,
	})
}

func (s *Service) routePosition(pos db.Position) {
	s.eachForSymbol(pos.Symbol, func(inst *strategy.Instance) {
		inst.OnPositionUpdate(pos.Symbol, strategy.PositionUpdate{
			Symbol:        pos.Symbol,
			Qty:           pos.Qty,
			MarkPrice:     pos.MarkPrice,
			UnrealizedPnL: pos.UnrealizedPnL,
			Time:          pos.UpdatedAt,
		})
	})
}

// persistTrade mirrors a ledger trade into the database. Failures are logged;
// the in-memory ledger stays authoritative.
func (s *Service) persistTrade(ctx context.Context, ev strategy.TradeEvent) {
	if s.db == nil {
		return
	}
	t := ev.Trade
	metaJSON := ""
	if len(t.Meta) > 0 {
		if b, err := json.Marshal(t.Meta); err == nil {
			metaJSON = string(b)
		}
	}
	row := db.Trade{
		ID:          t.ID,
		InstanceID:  ev.InstanceID,
		Symbol:      t.Symbol,
		Direction:   string(t.Direction),
		EntryPrice:  t.EntryPrice,
		EntryTime:   t.EntryTime,
		EntrySignal: string(t.EntrySignal),
		Qty:         t.Qty,
		Status:      string(t.Status),
		ExitPrice:   t.ExitPrice,
		ExitTime:    t.ExitTime,
		ExitSignal:  string(t.ExitSignal),
		PnL:         t.PnL,
		PnLPct:      t.PnLPct,
		Meta:        metaJSON,
	}
	if err := s.db.UpsertTrade(ctx, row); err != nil {
		log.Printf("engine: persist trade %s: %v", t.ID, err)
	}
}

// Instance returns a loaded instance by ID.
func (s *Service) Instance(id string) (*strategy.Instance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[id]
	return inst, ok
}

// Instances returns every loaded instance.
func (s *Service) Instances() []*strategy.Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*strategy.Instance, 0, len(s.instances))
	for _, inst := range s.instances {
		out = append(out, inst)
	}
	return out
}

// Statuses returns a status snapshot for every instance.
func (s *Service) Statuses() []strategy.Status {
	insts := s.Instances()
	out := make([]strategy.Status, 0, len(insts))
	for _, inst := range insts {
		out = append(out, inst.Status())
	}
	return out
}

// Shutdown stops every instance and persists final snapshots, configs, and
// any trades closed during stop.
func (s *Service) Shutdown(ctx context.Context) {
	s.mu.RLock()
	insts := make([]*strategy.Instance, 0, len(s.instances))
	for _, inst := range s.instances {
		insts = append(insts, inst)
	}
	s.mu.RUnlock()

	for _, inst := range insts {
		if err := inst.Stop(ctx); err != nil {
			log.Printf("engine: stop %s: %v", inst.ID(), err)
		}
		for _, t := range inst.TradeHistory() {
			s.persistTrade(ctx, strategy.TradeEvent{InstanceID: inst.ID(), Trade: t})
		}
		s.saveSnapshot(ctx, inst)
	}
}

func (s *Service) saveSnapshot(ctx context.Context, inst *strategy.Instance) {
	if s.db == nil {
		return
	}
	snap, err := inst.Snapshot()
	if err != nil {
		log.Printf("engine: snapshot %s: %v", inst.ID(), err)
		return
	}
	if err := s.db.SaveInstanceState(ctx, inst.ID(), string(snap)); err != nil {
		log.Printf("engine: save state %s: %v", inst.ID(), err)
	}

	cfg := inst.ExportConfig()
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		log.Printf("engine: marshal config %s: %v", inst.ID(), err)
		return
	}
	if err := s.db.SaveInstanceConfig(ctx, inst.ID(), string(cfgJSON)); err != nil {
		log.Printf("engine: save config %s: %v", inst.ID(), err)
	}
}

// SnapshotAll persists runtime snapshots for every instance. Useful on a
// periodic timer so a crash loses little state.
func (s *Service) SnapshotAll(ctx context.Context) {
	for _, inst := range s.Instances() {
		s.saveSnapshot(ctx, inst)
	}
}

// SnapshotLoop saves snapshots at the given interval until the context is
// canceled.
func (s *Service) SnapshotLoop(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.SnapshotAll(ctx)
		}
	}
}
