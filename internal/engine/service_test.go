package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"strategy-core/internal/events"
	"strategy-core/internal/market"
	"strategy-core/internal/strategy"
	"strategy-core/pkg/db"
)

const testDefinitions = `
strategies:
  - id: ma-test
    name: "MA Cross Test"
    type: ma_cross
    is_active: true
    parameters:
      fastPeriod: 2
      slowPeriod: 3
      symbols: ["BTCUSDT"]
  - id: off-test
    name: "Disabled"
    type: rsi
    is_active: false
    parameters:
      symbols: ["ETHUSDT"]
`

func testService(t *testing.T, opts Options) (*Service, *events.Bus, *db.Database) {
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
	return NewService(bus, d, opts), bus, d
}

func writeTestDefinitions(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strategies.yaml")
	if err := os.WriteFile(path, []byte(testDefinitions), 0o644); err != nil {
		t.Fatalf("write definitions: %v", err)
	}
	return path
}

// crossoverBars produces a sequence ending in a golden cross for fast=2/slow=3.
func crossoverBars(symbol string) []market.Bar {
	closes := []float64{10, 9, 8, 8, 12}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		bars[i] = market.Bar{Symbol: symbol, Time: base.Add(time.Duration(i) * time.Minute), Open: c, High: c, Low: c, Close: c, Volume: 1}
	}
	return bars
}

type fakeHistory struct {
	bars map[string][]market.Bar
}

func (f *fakeHistory) History(_ context.Context, symbol string, _ int) ([]market.Bar, error) {
	return f.bars[symbol], nil
}

func TestLoadDefinitionsBuildsActiveInstances(t *testing.T) {
	svc, _, d := testService(t, Options{})
	ctx := context.Background()

	if err := svc.LoadDefinitions(ctx, writeTestDefinitions(t)); err != nil {
		t.Fatalf("LoadDefinitions: %v", err)
	}

	if _, ok := svc.Instance("ma-test"); !ok {
		t.Fatal("active instance not loaded")
	}
	if _, ok := svc.Instance("off-test"); ok {
		t.Fatal("inactive instance loaded")
	}

	// Definitions were synced, so a restart can rebuild from the database.
	rows, err := d.ListActiveInstances(ctx)
	if err != nil {
		t.Fatalf("ListActiveInstances: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "ma-test" {
		t.Errorf("synced rows = %+v", rows)
	}
}

func TestWarmupReplaysHistory(t *testing.T) {
	history := &fakeHistory{bars: map[string][]market.Bar{"BTCUSDT": crossoverBars("BTCUSDT")}}
	svc, _, _ := testService(t, Options{WarmupBars: 10, History: history})
	ctx := context.Background()

	if err := svc.LoadDefinitions(ctx, writeTestDefinitions(t)); err != nil {
		t.Fatalf("LoadDefinitions: %v", err)
	}
	if err := svc.StartAll(ctx); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	if err := svc.Warmup(ctx); err != nil {
		t.Fatalf("Warmup: %v", err)
	}

	// The warm-up bars include a golden cross, so a trade opened.
	inst, _ := svc.Instance("ma-test")
	if perf := inst.Performance(); perf.OpenTrades != 1 {
		t.Errorf("performance after warmup = %+v, want one open trade", perf)
	}
}

func TestRunRoutesBarsAndPersistsTrades(t *testing.T) {
	svc, bus, d := testService(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.LoadDefinitions(ctx, writeTestDefinitions(t)); err != nil {
		t.Fatalf("LoadDefinitions: %v", err)
	}
	if err := svc.StartAll(ctx); err != nil {
		t.Fatalf("StartAll: %v", err)
	}

	go svc.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	for _, b := range crossoverBars("BTCUSDT") {
		bus.Publish(events.EventBar, b)
	}

	inst, _ := svc.Instance("ma-test")
	deadline := time.Now().Add(2 * time.Second)
	for inst.Performance().OpenTrades == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no trade opened from routed bars")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// The opened trade is mirrored into the database by the event loop.
	deadline = time.Now().Add(2 * time.Second)
	for {
		trades, err := d.ListTrades(ctx, "ma-test", 10)
		if err != nil {
			t.Fatalf("ListTrades: %v", err)
		}
		if len(trades) == 1 {
			if trades[0].Status != string(strategy.TradeOpen) {
				t.Errorf("persisted status = %s", trades[0].Status)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("trade not persisted")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestShutdownClosesTradesAndSavesSnapshots(t *testing.T) {
	history := &fakeHistory{bars: map[string][]market.Bar{"BTCUSDT": crossoverBars("BTCUSDT")}}
	svc, _, d := testService(t, Options{WarmupBars: 10, History: history})
	ctx := context.Background()

	if err := svc.LoadDefinitions(ctx, writeTestDefinitions(t)); err != nil {
		t.Fatalf("LoadDefinitions: %v", err)
	}
	if err := svc.StartAll(ctx); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	if err := svc.Warmup(ctx); err != nil {
		t.Fatalf("Warmup: %v", err)
	}

	svc.Shutdown(ctx)

	inst, _ := svc.Instance("ma-test")
	if inst.State() != strategy.StateStopped {
		t.Errorf("state = %s, want STOPPED", inst.State())
	}

	trades, err := d.ListTrades(ctx, "ma-test", 10)
	if err != nil {
		t.Fatalf("ListTrades: %v", err)
	}
	if len(trades) != 1 || trades[0].Status != string(strategy.TradeClosed) {
		t.Errorf("persisted trades = %+v, want one CLOSED", trades)
	}

	if _, err := d.GetInstanceState(ctx, "ma-test"); err != nil {
		t.Errorf("snapshot not saved: %v", err)
	}
	if _, err := d.GetInstanceConfig(ctx, "ma-test"); err != nil {
		t.Errorf("config not saved: %v", err)
	}
}

func TestRestoreFromSavedSnapshot(t *testing.T) {
	history := &fakeHistory{bars: map[string][]market.Bar{"BTCUSDT": crossoverBars("BTCUSDT")}}
	path := writeTestDefinitions(t)

	d, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := db.ApplyMigrations(d); err != nil {
		t.Fatalf("ApplyMigrations: %v", err)
	}
	ctx := context.Background()

	first := NewService(events.NewBus(), d, Options{WarmupBars: 10, History: history})
	if err := first.LoadDefinitions(ctx, path); err != nil {
		t.Fatalf("LoadDefinitions: %v", err)
	}
	if err := first.StartAll(ctx); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	if err := first.Warmup(ctx); err != nil {
		t.Fatalf("Warmup: %v", err)
	}
	first.SnapshotAll(ctx)

	// A new service over the same database picks the snapshot up on load.
	second := NewService(events.NewBus(), d, Options{})
	if err := second.LoadDefinitions(ctx, path); err != nil {
		t.Fatalf("second LoadDefinitions: %v", err)
	}
	inst, _ := second.Instance("ma-test")
	if perf := inst.Performance(); perf.OpenTrades != 1 {
		t.Errorf("restored performance = %+v, want the open trade back", perf)
	}
}
