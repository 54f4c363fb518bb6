package events

// Event enumerates high-level topics inside the strategy core.
type Event string

const (
	EventBar            Event = "market.bar"
	EventQuote          Event = "market.quote"
	EventTick           Event = "market.tick"
	EventSignal         Event = "strategy.signal"
	EventStateChange    Event = "strategy.state_change"
	EventTradeOpened    Event = "ledger.trade_opened"
	EventTradeClosed    Event = "ledger.trade_closed"
	EventOrderSubmitted Event = "order.submitted"
	EventOrderUpdate    Event = "order.update"
	EventPositionChange Event = "position.change"
)
