package db

import "time"

// StrategyInstance is a configured strategy row.
type StrategyInstance struct {
	ID           string
	Name         string
	StrategyType string
	Description  string
	Version      string
	Author       string
	Timeframes   string // comma-separated
	Parameters   string // JSON
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Trade is a ledger trade persisted for durability and reporting.
type Trade struct {
	ID          string
	InstanceID  string
	Symbol      string
	Direction   string
	EntryPrice  float64
	EntryTime   time.Time
	EntrySignal string
	Qty         float64
	Status      string
	ExitPrice   float64
	ExitTime    time.Time
	ExitSignal  string
	PnL         float64
	PnLPct      float64
	Meta        string // JSON
}

// Order is a submitted order intent.
type Order struct {
	ID         string
	InstanceID string
	Symbol     string
	Side       string
	Price      float64
	Qty        float64
	Status     string
	CreatedAt  time.Time
}

// Position is the net position snapshot per symbol.
type Position struct {
	Symbol        string
	Qty           float64
	AvgPrice      float64
	MarkPrice     float64
	UnrealizedPnL float64
	UpdatedAt     time.Time
}
