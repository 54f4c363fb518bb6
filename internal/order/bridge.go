package order

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"strategy-core/internal/events"
	"strategy-core/internal/strategy"
	"strategy-core/pkg/db"
)

// Update is the execution report published for every submitted order.
type Update struct {
	OrderID    string
	InstanceID string
	Symbol     string
	Side       string
	Status     strategy.OrderStatus
	FillPrice  float64
	FillQty    float64
	Reason     string
	Time       time.Time
}

// Config tunes the paper execution model.
type Config struct {
	RatePerSec  float64 // max orders per second; 0 disables throttling
	Burst       int
	SlippageBps float64 // uniform slippage applied against the taker
}

// Bridge turns strategy signals into simulated orders. Every actionable
// signal becomes an order row, a synthetic fill, and an execution report on
// the bus. There is no exchange behind it; fills happen at signal price plus
// slippage.
type Bridge struct {
	bus *events.Bus
	db  *db.Database
	cfg Config

	limiter *rate.Limiter
	rng     *rand.Rand
}

func NewBridge(bus *events.Bus, database *db.Database, cfg Config) *Bridge {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst)
	}
	return &Bridge{
		bus:     bus,
		db:      database,
		cfg:     cfg,
		limiter: limiter,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run consumes signals until the context is canceled.
func (b *Bridge) Run(ctx context.Context) {
	ch, cancel := b.bus.Subscribe(events.EventSignal, 100)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			ev, ok := msg.(strategy.SignalEvent)
			if !ok {
				continue
			}
			if ev.Signal.Type != strategy.SignalBuy && ev.Signal.Type != strategy.SignalSell {
				continue
			}
			if err := b.execute(ctx, ev); err != nil {
				log.Printf("order bridge: execute %s %s: %v", ev.Signal.Type, ev.Signal.Symbol, err)
			}
		}
	}
}

// execute submits one simulated order and reports the outcome.
func (b *Bridge) execute(ctx context.Context, ev strategy.SignalEvent) error {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	now := time.Now()
	o := db.Order{
		ID:         uuid.NewString(),
		InstanceID: ev.InstanceID,
		Symbol:     ev.Signal.Symbol,
		Side:       string(ev.Signal.Type),
		Price:      ev.Signal.Price,
		Qty:        1,
		Status:     "NEW",
		CreatedAt:  now,
	}

	if b.db != nil {
		if err := b.db.CreateOrder(ctx, o); err != nil {
			return err
		}
	}
	b.bus.Publish(events.EventOrderSubmitted, o)

	upd := Update{
		OrderID:    o.ID,
		InstanceID: o.InstanceID,
		Symbol:     o.Symbol,
		Side:       o.Side,
		Time:       time.Now(),
	}

	if o.Price <= 0 {
		upd.Status = strategy.OrderRejected
		upd.Reason = "no reference price"
	} else {
		upd.Status = strategy.OrderFilled
		upd.FillPrice = b.fillPrice(o.Side, o.Price)
		upd.FillQty = o.Qty
	}

	if b.db != nil {
		if err := b.db.UpdateOrderStatus(ctx, o.ID, string(upd.Status)); err != nil {
			log.Printf("order bridge: update status %s: %v", o.ID, err)
		}
	}
	b.bus.Publish(events.EventOrderUpdate, upd)
	return nil
}

// fillPrice applies uniform slippage against the taker.
func (b *Bridge) fillPrice(side string, price float64) float64 {
	if b.cfg.SlippageBps <= 0 {
		return price
	}
	noise := b.rng.Float64() * b.cfg.SlippageBps / 10000.0
	if side == string(strategy.SignalBuy) {
		return price * (1 + noise)
	}
	return price * (1 - noise)
}
