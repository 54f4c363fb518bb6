package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"strategy-core/internal/engine"
	"strategy-core/internal/events"
	"strategy-core/internal/market"
	"strategy-core/internal/order"
	"strategy-core/internal/state"
	"strategy-core/pkg/config"
	"strategy-core/pkg/db"
	marketbinance "strategy-core/pkg/market/binance"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	log.Printf("starting strategy core (db=%s, symbols=%v, mock=%v)", cfg.DBPath, cfg.Symbols, cfg.UseMockFeed)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()
	defer bus.Close()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("failed to apply migrations: %v", err)
	}

	// Position view seeded from DB
	stateMgr := state.NewManager(database, bus)
	if err := stateMgr.Load(ctx); err != nil {
		log.Fatalf("failed to load positions: %v", err)
	}
	go stateMgr.Run(ctx)

	// Market data
	var history engine.HistorySource
	if cfg.UseMockFeed {
		mock := market.MockFeed{
			Bus:        bus,
			Symbols:    cfg.Symbols,
			StartPrice: cfg.MockStartPrice,
			Step:       cfg.MockStep,
			Interval:   cfg.MockInterval,
		}
		mock.Start(ctx)
		log.Println("mock feed started")
	} else {
		feed := &market.LiveFeed{
			Bus:      bus,
			Stream:   marketbinance.NewStreamClient(cfg.BinanceTestnet),
			REST:     marketbinance.NewClient(cfg.BinanceTestnet),
			Symbols:  cfg.Symbols,
			Interval: cfg.Interval,
		}
		if err := feed.Start(ctx); err != nil {
			log.Fatalf("failed to start binance feed: %v", err)
		}
		history = feed
		log.Println("binance feed started")
	}

	// Strategy engine
	svc := engine.NewService(bus, database, engine.Options{
		WarmupBars: cfg.WarmupBars,
		History:    history,
	})
	if err := svc.LoadDefinitions(ctx, cfg.StrategiesPath); err != nil {
		log.Printf("definitions file unavailable (%v), falling back to database", err)
		if err := svc.LoadFromDatabase(ctx); err != nil {
			log.Fatalf("failed to load strategies: %v", err)
		}
	}
	if err := svc.StartAll(ctx); err != nil {
		log.Fatalf("failed to start strategies: %v", err)
	}
	if err := svc.Warmup(ctx); err != nil {
		log.Fatalf("failed to warm up indicators: %v", err)
	}
	go svc.Run(ctx)
	go svc.SnapshotLoop(ctx, cfg.SnapshotEvery)

	// Paper execution
	if cfg.ExecutionEnabled {
		bridge := order.NewBridge(bus, database, order.Config{
			RatePerSec:  cfg.OrderRatePerSec,
			Burst:       cfg.OrderBurst,
			SlippageBps: cfg.SlippageBps,
		})
		go bridge.Run(ctx)
		log.Println("paper execution enabled")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("shutting down")

	// Stop instances and persist final state before the context dies.
	svc.Shutdown(context.Background())
	cancel()
}
