package config

import (
	"log"
	"os"
	"strconv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// HTTP surfaces
	ListenAddr  string
	MetricsAddr string

	// Market data
	Symbol      string
	Interval    string
	CandleLimit int

	// Persistence
	DataDir    string
	SQLitePath string

	// Redis mirror (optional; empty addr disables it)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Notification channels (optional)
	TelegramBotToken string
	TelegramChatID   string
	WebhookURL       string

	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
// Everything is optional; the zero config runs a local paper trader against
// public Binance data with JSON files under ./data.
func Load() *Config {
	return &Config{
		ListenAddr:  getEnv("LISTEN_ADDR", ":5000"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		Symbol:      getEnv("SYMBOL", "BTCUSDT"),
		Interval:    getEnv("INTERVAL", "5m"),
		CandleLimit: getEnvInt("CANDLE_LIMIT", 350),

		DataDir:    getEnv("DATA_DIR", "data"),
		SQLitePath: getEnv("SQLITE_PATH", "data/trades.db"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
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
	if err != nil || n <= 0 {
		log.Printf("[config] ignoring invalid %s=%q", key, v)
		return fallback
	}
	return n
}
