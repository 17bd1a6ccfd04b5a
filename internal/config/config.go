package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Kafka struct {
		Brokers          []string
		InboundTopic     string
		DownloadJobTopic string
		DownloadTopic    string
		GroupID          string
	}
	DB struct {
		DSN string
	}
	API struct {
		Port     string
		BasePath string
	}
	Logging struct {
		Dir   string
		Level string
	}
	Telegram struct {
		BotToken  string
		RateLimit int
	}
	Intel struct {
		URL string
	}
	Documents struct {
		Dir string
	}
	Notification struct {
		QueueSize  int
		MaxWorkers int
	}
	Pipeline struct {
		MaxRetries           int
		RetryDelay           time.Duration
		StuckTimeout         time.Duration
		RecoveryLookback     time.Duration
		MonitorInterval      time.Duration
		IsolatedTimeout      time.Duration
		IsolatedHeavyTimeout time.Duration
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the current process environment only.
func FromEnv() (Config, error) {
	var cfg Config

	// Kafka settings
	for _, b := range strings.Split(os.Getenv("KAFKA_BROKER"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.Kafka.Brokers = append(cfg.Kafka.Brokers, b)
		}
	}
	cfg.Kafka.InboundTopic = os.Getenv("KAFKA_INBOUND_TOPIC")
	cfg.Kafka.DownloadJobTopic = os.Getenv("KAFKA_DOWNLOAD_JOB_TOPIC")
	cfg.Kafka.DownloadTopic = os.Getenv("KAFKA_DOWNLOAD_EVENT_TOPIC")
	cfg.Kafka.GroupID = os.Getenv("KAFKA_GROUP_ID")

	// Database DSN
	cfg.DB.DSN = os.Getenv("DB_DSN")

	// API settings
	cfg.API.Port = os.Getenv("API_PORT")
	cfg.API.BasePath = os.Getenv("API_BASE_PATH")

	cfg.Logging.Dir = os.Getenv("LOG_DIR")
	cfg.Logging.Level = os.Getenv("LOG_LEVEL")

	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.Intel.URL = os.Getenv("INTEL_URL")
	cfg.Documents.Dir = os.Getenv("DOCUMENT_DIR")

	ints := []struct {
		key string
		dst *int
	}{
		{"QUEUE_SIZE", &cfg.Notification.QueueSize},
		{"MAX_WORKERS", &cfg.Notification.MaxWorkers},
		{"TELEGRAM_RATE_LIMIT", &cfg.Telegram.RateLimit},
		{"PIPELINE_MAX_RETRIES", &cfg.Pipeline.MaxRetries},
	}
	for _, f := range ints {
		raw := os.Getenv(f.key)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", f.key, err)
		}
		*f.dst = v
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"PIPELINE_RETRY_DELAY", &cfg.Pipeline.RetryDelay},
		{"PIPELINE_STUCK_TIMEOUT", &cfg.Pipeline.StuckTimeout},
		{"PIPELINE_RECOVERY_LOOKBACK", &cfg.Pipeline.RecoveryLookback},
		{"PIPELINE_MONITOR_INTERVAL", &cfg.Pipeline.MonitorInterval},
		{"PIPELINE_ISOLATED_TIMEOUT", &cfg.Pipeline.IsolatedTimeout},
		{"PIPELINE_ISOLATED_HEAVY_TIMEOUT", &cfg.Pipeline.IsolatedHeavyTimeout},
	}
	for _, f := range durations {
		raw := os.Getenv(f.key)
		if raw == "" {
			continue
		}
		v, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", f.key, err)
		}
		*f.dst = v
	}

	// Validate required settings
	missing := []string{}
	if len(cfg.Kafka.Brokers) == 0 {
		missing = append(missing, "KAFKA_BROKER")
	}
	if cfg.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Kafka.InboundTopic == "" {
		cfg.Kafka.InboundTopic = "court_messages"
	}
	if cfg.Kafka.DownloadJobTopic == "" {
		cfg.Kafka.DownloadJobTopic = "download_jobs"
	}
	if cfg.Kafka.DownloadTopic == "" {
		cfg.Kafka.DownloadTopic = "download_events"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "court-intake"
	}
	if cfg.API.Port == "" {
		cfg.API.Port = ":9191"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api/v0"
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Telegram.RateLimit == 0 {
		cfg.Telegram.RateLimit = 20
	}
	if cfg.Documents.Dir == "" {
		cfg.Documents.Dir = "documents"
	}
	if cfg.Notification.QueueSize == 0 {
		cfg.Notification.QueueSize = 500
	}
	if cfg.Notification.MaxWorkers == 0 {
		cfg.Notification.MaxWorkers = 10
	}
	if cfg.Pipeline.MaxRetries == 0 {
		cfg.Pipeline.MaxRetries = 3
	}
	if cfg.Pipeline.RetryDelay == 0 {
		cfg.Pipeline.RetryDelay = 60 * time.Second
	}
	if cfg.Pipeline.StuckTimeout == 0 {
		cfg.Pipeline.StuckTimeout = 30 * time.Minute
	}
	if cfg.Pipeline.RecoveryLookback == 0 {
		cfg.Pipeline.RecoveryLookback = 24 * time.Hour
	}
	if cfg.Pipeline.MonitorInterval == 0 {
		cfg.Pipeline.MonitorInterval = 5 * time.Minute
	}
	if cfg.Pipeline.IsolatedTimeout == 0 {
		cfg.Pipeline.IsolatedTimeout = 10 * time.Second
	}
	if cfg.Pipeline.IsolatedHeavyTimeout == 0 {
		cfg.Pipeline.IsolatedHeavyTimeout = 60 * time.Second
	}
}
