package strategy

import "time"

// State is the lifecycle state of a strategy instance.
type State string

const (
	StateInitialized State = "INITIALIZED"
	StateRunning     State = "RUNNING"
	StatePaused      State = "PAUSED"
	StateStopped     State = "STOPPED"
	StateError       State = "ERROR"
)

// SignalType is a directional recommendation.
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
	SignalHold SignalType = "HOLD"
)

// Signal is a decision emitted by a strategy for one symbol. Signals are
// immutable once produced.
type Signal struct {
	Type       SignalType
	Symbol     string
	Time       time.Time
	Confidence float64 // 0..1
	Price      float64 // close price at emission
	Note       string
	// Indicators carries the indicator values backing the decision.
	Indicators map[string]float64
}

// Direction of an open position.
type Direction string

const (
	DirLong  Direction = "LONG"
	DirShort Direction = "SHORT"
)

// TradeStatus tracks the trade lifecycle; every non-OPEN status is terminal.
type TradeStatus string

const (
	TradeOpen     TradeStatus = "OPEN"
	TradeClosed   TradeStatus = "CLOSED"
	TradeCanceled TradeStatus = "CANCELED"
	TradeRejected TradeStatus = "REJECTED"
)

// Trade is a recorded position lifecycle from entry to exit.
type Trade struct {
	ID          string
	Symbol      string
	Direction   Direction
	EntryPrice  float64
	EntryTime   time.Time
	EntrySignal SignalType
	Qty         float64
	Status      TradeStatus
	ExitPrice   float64
	ExitTime    time.Time
	ExitSignal  SignalType
	PnL         float64 // realized, set on CLOSED
	PnLPct      float64 // realized fraction, set on CLOSED
	// Meta holds free-form fields: stop_loss, take_profit, order_id,
	// cancel_reason, mark_price, unrealized_pnl.
	Meta map[string]any
}

// CloneMeta returns a shallow copy of the trade with its own metadata map,
// safe to hand to external readers.
func (t Trade) CloneMeta() Trade {
	cp := t
	cp.Meta = make(map[string]any, len(t.Meta))
	for k, v := range t.Meta {
		cp.Meta[k] = v
	}
	return cp
}

// Performance is a snapshot of derived statistics over CLOSED trades. It is
// recomputed wholesale on every ledger change, never patched incrementally.
type Performance struct {
	TotalReturn      float64
	AnnualizedReturn float64
	SharpeRatio      float64
	MaxDrawdown      float64
	WinRate          float64
	// ProfitFactor is totalProfit/totalLoss. When there are profits but no
	// losses the ratio is undefined-high: ProfitFactorUnbounded is set and
	// ProfitFactor carries the raw total profit. It is never clamped and
	// never uses floating-point infinity.
	ProfitFactor          float64
	ProfitFactorUnbounded bool
	AverageWin            float64
	AverageLoss           float64
	Expectancy            float64
	TradesPerDay          float64

	TotalTrades    int
	OpenTrades     int
	ClosedTrades   int
	WinningTrades  int
	LosingTrades   int
	CanceledTrades int
	RejectedTrades int
}

// OrderStatus values delivered by the execution service.
type OrderStatus string

const (
	OrderFilled   OrderStatus = "FILLED"
	OrderCanceled OrderStatus = "CANCELED"
	OrderRejected OrderStatus = "REJECTED"
)

// OrderUpdate carries fill or terminal-status details from the execution
// service.
type OrderUpdate struct {
	Symbol    string
	FillPrice float64
	FillQty   float64
	Reason    string
	Time      time.Time
}

// PositionUpdate carries a live position snapshot from the position service.
type PositionUpdate struct {
	Symbol        string
	Qty           float64
	MarkPrice     float64
	UnrealizedPnL float64
	Time          time.Time
}
