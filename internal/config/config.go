package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port    string
	GinMode string

	// Account / session
	AccountID  string
	ViewerRole string
	AuthToken  string

	// Backend endpoints
	StreamURL   string
	BackfillURL string
	MarkReadURL string
	SocketURL   string

	// Cross-consumer sync
	NatsURL string

	// Local persisted state
	StorePath string

	// Feeds (reminder sources, room auto-join filters)
	FeedsConfigPath string
	Feeds           *FeedsConfig

	// Sound
	SoundEnabled     bool
	SoundMinInterval time.Duration

	// Reminder scan schedule
	ReminderCronSpec string

	// Server
	ServerShutdownTimeoutSeconds int

	// Logging
	LogLevel  string
	LogFormat string
}

func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Port:    getEnvOrDefault("PORT", "8580"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),

		AccountID:  getEnvOrDefault("PULSE_ACCOUNT_ID", ""),
		ViewerRole: getEnvOrDefault("PULSE_VIEWER_ROLE", "advisor"),
		AuthToken:  getEnvOrDefault("PULSE_AUTH_TOKEN", ""),

		StreamURL:   getEnvOrDefault("PULSE_STREAM_URL", ""),
		BackfillURL: getEnvOrDefault("PULSE_BACKFILL_URL", ""),
		MarkReadURL: getEnvOrDefault("PULSE_MARK_READ_URL", ""),
		SocketURL:   getEnvOrDefault("PULSE_SOCKET_URL", ""),

		NatsURL: getEnvOrDefault("NATS_URL", ""),

		StorePath: getEnvOrDefault("PULSE_STORE_PATH", "pulse.db"),

		FeedsConfigPath: getEnvOrDefault("PULSE_FEEDS_CONFIG", ""),

		SoundEnabled:     getEnvOrDefault("PULSE_SOUND_ENABLED", "true") == "true",
		SoundMinInterval: time.Duration(getEnvAsInt("PULSE_SOUND_MIN_INTERVAL_MS", 450)) * time.Millisecond,

		ReminderCronSpec: getEnvOrDefault("PULSE_REMINDER_CRON", "0 8 * * *"),

		ServerShutdownTimeoutSeconds: getEnvAsInt("SERVER_SHUTDOWN_TIMEOUT_SECONDS", 30),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", ""),
	}

	if cfg.StreamURL == "" {
		log.Println("Warning: PULSE_STREAM_URL is empty; stream ingress will stay idle.")
	}
	if cfg.SocketURL == "" {
		log.Println("Warning: PULSE_SOCKET_URL is empty; socket ingress will stay idle.")
	}
	if cfg.NatsURL == "" {
		log.Println("Warning: NATS_URL is empty; unread convergence falls back to local loopback.")
	}

	if cfg.FeedsConfigPath != "" {
		feeds, err := LoadFeedsConfig(cfg.FeedsConfigPath)
		if err != nil {
			return nil, err
		}
		cfg.Feeds = feeds
	} else {
		cfg.Feeds = &FeedsConfig{}
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as int, using default %d: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}
