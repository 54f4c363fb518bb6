package state

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"strategy-core/internal/events"
	"strategy-core/internal/market"
	"strategy-core/internal/order"
	"strategy-core/pkg/db"
)

// Manager keeps an in-memory net position per symbol, built from simulated
// fills and marked against incoming bars. Snapshots are persisted so a
// restart can resume the view, and every change is published on the bus.
type Manager struct {
	mu        sync.RWMutex
	positions map[string]db.Position
	db        *db.Database
	bus       *events.Bus
}

func NewManager(database *db.Database, bus *events.Bus) *Manager {
	return &Manager{
		db:        database,
		bus:       bus,
		positions: make(map[string]db.Position),
	}
}

// Load seeds the in-memory view from the database on startup.
func (m *Manager) Load(ctx context.Context) error {
	if m.db == nil {
		return nil
	}
	pos, err := m.db.ListPositions(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range pos {
		m.positions[p.Symbol] = p
	}
	return nil
}

// Run consumes execution reports and bars until the context is canceled.
func (m *Manager) Run(ctx context.Context) {
	fills, cancelFills := m.bus.Subscribe(events.EventOrderUpdate, 100)
	bars, cancelBars := m.bus.Subscribe(events.EventBar, 100)
	defer cancelFills()
	defer cancelBars()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-fills:
			if !ok {
				return
			}
			upd, ok := msg.(order.Update)
			if !ok || upd.FillQty == 0 {
				continue
			}
			if _, err := m.RecordFill(ctx, upd.Symbol, upd.Side, upd.FillQty, upd.FillPrice); err != nil {
				log.Printf("position manager: record fill %s: %v", upd.Symbol, err)
			}
		case msg, ok := <-bars:
			if !ok {
				return
			}
			bar, ok := msg.(market.Bar)
			if !ok {
				continue
			}
			m.Mark(ctx, bar.Symbol, bar.Close)
		}
	}
}

// Position returns the latest view for a symbol.
func (m *Manager) Position(symbol string) db.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.positions[symbol]
}

// Positions returns a snapshot of every tracked symbol.
func (m *Manager) Positions() []db.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]db.Position, 0, len(m.positions))
	for _, p := range m.positions {
		res = append(res, p)
	}
	return res
}

// RecordFill folds a fill into the net position and persists the result.
// Buys raise the quantity and re-average the entry; sells reduce it.
func (m *Manager) RecordFill(ctx context.Context, symbol, side string, qty, price float64) (db.Position, error) {
	m.mu.Lock()
	p := m.positions[symbol]
	p.Symbol = symbol

	switch strings.ToUpper(side) {
	case "BUY":
		newQty := p.Qty + qty
		if newQty != 0 {
			p.AvgPrice = (p.AvgPrice*p.Qty + price*qty) / newQty
		}
		p.Qty = newQty
	case "SELL":
		p.Qty -= qty
		if p.Qty <= 0 {
			p.Qty = 0
			p.AvgPrice = 0
		}
	}
	p.MarkPrice = price
	p.UnrealizedPnL = (p.MarkPrice - p.AvgPrice) * p.Qty
	p.UpdatedAt = time.Now()
	m.positions[symbol] = p
	m.mu.Unlock()

	if m.db != nil {
		if err := m.db.UpsertPosition(ctx, p); err != nil {
			return p, err
		}
	}
	m.publish(p)
	return p, nil
}

// Mark updates the mark price and unrealized P&L for a symbol. Symbols with
// no position are ignored.
func (m *Manager) Mark(ctx context.Context, symbol string, price float64) {
	m.mu.Lock()
	p, ok := m.positions[symbol]
	if !ok || p.Qty == 0 {
		m.mu.Unlock()
		return
	}
	p.MarkPrice = price
	p.UnrealizedPnL = (price - p.AvgPrice) * p.Qty
	p.UpdatedAt = time.Now()
	m.positions[symbol] = p
	m.mu.Unlock()

	if m.db != nil {
		if err := m.db.UpsertPosition(ctx, p); err != nil {
			log.Printf("position manager: persist %s: %v", symbol, err)
		}
	}
	m.publish(p)
}

func (m *Manager) publish(p db.Position) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.EventPositionChange, p)
}
