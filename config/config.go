package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment
// variables, shared across cmd/mdengine, cmd/algoengine, cmd/backtest and
// cmd/statusserver.
type Config struct {
	// Exchange network selector: "public", "test" or "custom".
	ExchangeNetwork string
	HorizonURL      string
	NetworkPassword string
	TradingAccount  string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string
	AdminAddr     string
	StatusWSAddr  string

	// Fetcher
	PollInterval time.Duration
	FetchLimit   int

	// Trader
	WorkerPoolSize int
	ReapInterval   time.Duration

	// Deployment defaults
	DefaultNumCycles int

	// Backtest Runner
	BacktestPollInterval time.Duration
	BacktestPageSize     int

	// Alerting (all optional; the process log is the fallback backend)
	TelegramBotToken string
	TelegramChatID   string
	AlertWebhookURL  string
}

// Load reads configuration from environment variables. Every value has a
// default; nothing here is a secret the process cannot run without.
func Load() *Config {
	return &Config{
		ExchangeNetwork: getEnv("EXCHANGE_NETWORK", "test"),
		HorizonURL:      getEnv("HORIZON_URL", ""),
		NetworkPassword: getEnv("NETWORK_PASSWORD", ""),
		TradingAccount:  getEnv("TRADING_ACCOUNT", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/trading.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		AdminAddr:     getEnv("ADMIN_ADDR", ":8080"),
		StatusWSAddr:  getEnv("STATUS_WS_ADDR", ":8081"),

		PollInterval: getEnvDuration("POLL_INTERVAL", 10*time.Second),
		FetchLimit:   getEnvInt("FETCH_LIMIT", 200),

		WorkerPoolSize: getEnvInt("TRADER_POOL_SIZE", 8),
		ReapInterval:   getEnvDuration("TRADER_REAP_INTERVAL", 5*time.Second),

		DefaultNumCycles: getEnvInt("DEFAULT_NUM_CYCLES", 1),

		BacktestPollInterval: getEnvDuration("BACKTEST_POLL_INTERVAL", 5*time.Second),
		BacktestPageSize:     getEnvInt("BACKTEST_PAGE_SIZE", 100),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		AlertWebhookURL:  getEnv("ALERT_WEBHOOK_URL", ""),
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid duration for %s=%q, using default %s", key, v, fallback)
		return fallback
	}
	return d
}
