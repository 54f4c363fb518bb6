package order

import (
	"context"
	"testing"
	"time"

	"strategy-core/internal/events"
	"strategy-core/internal/strategy"
	"strategy-core/pkg/db"
)

func testBridge(t *testing.T, cfg Config) (*Bridge, *events.Bus, *db.Database) {
	t.Helper()
	d, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := db.ApplyMigrations(d); err != nil {
		t.Fatalf("ApplyMigrations: %v", err)
	}
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	return NewBridge(bus, d, cfg), bus, d
}

func waitFor[T any](t *testing.T, ch <-chan any) T {
	t.Helper()
	select {
	case msg := <-ch:
		v, ok := msg.(T)
		if !ok {
			t.Fatalf("unexpected payload %T", msg)
		}
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	var zero T
	return zero
}

func TestBridgeFillsBuySignal(t *testing.T) {
	bridge, bus, d := testBridge(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	submitted, unsubSub := bus.Subscribe(events.EventOrderSubmitted, 10)
	defer unsubSub()
	updates, unsubUpd := bus.Subscribe(events.EventOrderUpdate, 10)
	defer unsubUpd()

	go bridge.Run(ctx)
	// Give Run a moment to subscribe before publishing.
	time.Sleep(50 * time.Millisecond)

	bus.Publish(events.EventSignal, strategy.SignalEvent{
		InstanceID: "ma-1",
		Signal:     strategy.Signal{Type: strategy.SignalBuy, Symbol: "BTCUSDT", Price: 100},
	})

	o := waitFor[db.Order](t, submitted)
	if o.Symbol != "BTCUSDT" || o.Side != "BUY" || o.InstanceID != "ma-1" {
		t.Errorf("order = %+v", o)
	}

	upd := waitFor[Update](t, updates)
	if upd.Status != strategy.OrderFilled {
		t.Fatalf("status = %s, want FILLED", upd.Status)
	}
	if upd.FillPrice != 100 || upd.FillQty != 1 {
		t.Errorf("fill = %v @ %v", upd.FillQty, upd.FillPrice)
	}

	// The order row reflects the terminal status.
	var status string
	if err := d.DB.QueryRow(`SELECT status FROM orders WHERE id = ?`, o.ID).Scan(&status); err != nil {
		t.Fatalf("query order: %v", err)
	}
	if status != "FILLED" {
		t.Errorf("persisted status = %s", status)
	}
}

func TestBridgeRejectsWithoutReferencePrice(t *testing.T) {
	bridge, bus, _ := testBridge(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, unsub := bus.Subscribe(events.EventOrderUpdate, 10)
	defer unsub()

	go bridge.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	bus.Publish(events.EventSignal, strategy.SignalEvent{
		InstanceID: "ma-1",
		Signal:     strategy.Signal{Type: strategy.SignalSell, Symbol: "BTCUSDT", Price: 0},
	})

	upd := waitFor[Update](t, updates)
	if upd.Status != strategy.OrderRejected {
		t.Fatalf("status = %s, want REJECTED", upd.Status)
	}
	if upd.Reason == "" {
		t.Error("rejection carries no reason")
	}
}

func TestBridgeIgnoresHoldSignals(t *testing.T) {
	bridge, bus, _ := testBridge(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	submitted, unsub := bus.Subscribe(events.EventOrderSubmitted, 10)
	defer unsub()

	go bridge.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	bus.Publish(events.EventSignal, strategy.SignalEvent{
		InstanceID: "ma-1",
		Signal:     strategy.Signal{Type: strategy.SignalHold, Symbol: "BTCUSDT", Price: 100},
	})
	time.Sleep(100 * time.Millisecond)

	select {
	case msg := <-submitted:
		t.Fatalf("HOLD produced an order: %+v", msg)
	default:
	}
}

func TestBridgeSlippageDirection(t *testing.T) {
	b := NewBridge(nil, nil, Config{SlippageBps: 100}) // up to 1%

	for i := 0; i < 50; i++ {
		buy := b.fillPrice("BUY", 100)
		if buy < 100 || buy > 101 {
			t.Fatalf("BUY fill = %v, want within [100, 101]", buy)
		}
		sell := b.fillPrice("SELL", 100)
		if sell > 100 || sell < 99 {
			t.Fatalf("SELL fill = %v, want within [99, 100]", sell)
		}
	}
}
