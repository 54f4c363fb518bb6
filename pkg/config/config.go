package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the strategy core.
type Config struct {
	// Database
	DBPath string

	// Strategy definitions
	StrategiesPath string

	// Market data
	UseMockFeed    bool
	BinanceTestnet bool
	Symbols        []string
	Interval       string
	WarmupBars     int

	// Mock feed tuning
	MockStartPrice float64
	MockStep       float64
	MockInterval   time.Duration

	// Execution
	ExecutionEnabled bool
	OrderRatePerSec  float64
	OrderBurst       int
	SlippageBps      float64

	// Persistence
	SnapshotEvery time.Duration
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		DBPath:           getEnv("DB_PATH", "./data/strategy.db"),
		StrategiesPath:   getEnv("STRATEGIES_PATH", "./strategies.yaml"),
		UseMockFeed:      getEnv("USE_MOCK_FEED", "true") == "true",
		BinanceTestnet:   getEnv("BINANCE_TESTNET", "false") == "true",
		Symbols:          splitAndTrim(getEnv("SYMBOLS", "BTCUSDT,ETHUSDT")),
		Interval:         getEnv("INTERVAL", "1m"),
		WarmupBars:       getEnvInt("WARMUP_BARS", 100),
		MockStartPrice:   getEnvFloat("MOCK_START_PRICE", 100.0),
		MockStep:         getEnvFloat("MOCK_STEP", 0.5),
		MockInterval:     getEnvDuration("MOCK_INTERVAL", time.Second),
		ExecutionEnabled: getEnv("EXECUTION_ENABLED", "true") == "true",
		OrderRatePerSec:  getEnvFloat("ORDER_RATE_PER_SEC", 5),
		OrderBurst:       getEnvInt("ORDER_BURST", 10),
		SlippageBps:      getEnvFloat("SLIPPAGE_BPS", 2),
		SnapshotEvery:    getEnvDuration("SNAPSHOT_EVERY", time.Minute),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
