package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                  string
	DatabaseURL           string
	MigrateOnStart        bool
	AlertThresholdMinutes int
	AlertInterval         time.Duration
	AlertSendTimeout      time.Duration
	NotifierKind          string
	PushWebhookURL        string
	PushWebhookToken      string
	RedisAddr             string
	RedisPassword         string
	RateLimitPerMinute    int
	RateLimitBurst        int
	CustomerRatePerMinute int
	CustomerRateBurst     int
}

func Load() Config {
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:                  port,
		DatabaseURL:           os.Getenv("DB_DSN"),
		MigrateOnStart:        readBool("MIGRATE_ON_START", true),
		AlertThresholdMinutes: readInt("ALERT_THRESHOLD_MINUTES", 5),
		AlertInterval:         readDurationSeconds("ALERT_INTERVAL_SECONDS", 60),
		AlertSendTimeout:      readDurationSeconds("ALERT_SEND_TIMEOUT_SECONDS", 5),
		NotifierKind:          os.Getenv("NOTIFIER_KIND"),
		PushWebhookURL:        os.Getenv("PUSH_WEBHOOK_URL"),
		PushWebhookToken:      os.Getenv("PUSH_WEBHOOK_TOKEN"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RateLimitPerMinute:    readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:        readInt("RATE_LIMIT_BURST", 30),
		CustomerRatePerMinute: readInt("CUSTOMER_RATE_LIMIT_PER_MIN", 60),
		CustomerRateBurst:     readInt("CUSTOMER_RATE_LIMIT_BURST", 20),
	}
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}
