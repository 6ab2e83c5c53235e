package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the advisor assistant service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	DatabaseURL string

	OpenAIAPIKey   string
	ChatModel      string
	EmbeddingModel string
	EmbeddingDim   int
	ModelTimeout   time.Duration
	ModelMode      string

	DefaultTimezone string

	RecentWindow  int
	KnowledgeTopK int
	SummaryAfter  int
	SummaryKeep   int
	SummaryMaxLen int

	DefaultMeetingDuration time.Duration
	SlotScanDays           int
	SlotStep               time.Duration
	WorkDayStartHour       int
	WorkDayEndHour         int

	WorkerInterval time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "penny"),
		AllowAnyOrigin:   false,
		DatabaseURL:      trimSpace("DATABASE_URL"),
		OpenAIAPIKey:     trimSpace("OPENAI_API_KEY"),
		ChatModel:        envOrDefault("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		EmbeddingModel:   envOrDefault("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDim:     1536,
		ModelTimeout:     60 * time.Second,
		ModelMode:        envOrDefault("MODEL_MODE", "auto"),
		DefaultTimezone:  envOrDefault("DEFAULT_TIMEZONE", "Asia/Colombo"),

		RecentWindow:  16,
		KnowledgeTopK: 5,
		SummaryAfter:  40,
		SummaryKeep:   20,
		SummaryMaxLen: 6000,

		DefaultMeetingDuration: 45 * time.Minute,
		SlotScanDays:           3,
		SlotStep:               15 * time.Minute,
		WorkDayStartHour:       9,
		WorkDayEndHour:         17,

		ShutdownTimeout: 15 * time.Second,
		WorkerInterval:  2 * time.Minute,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ModelTimeout, err = durationFromEnv("MODEL_TIMEOUT", cfg.ModelTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.WorkerInterval, err = durationFromEnv("WORKER_INTERVAL", cfg.WorkerInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.DefaultMeetingDuration, err = durationFromEnv("DEFAULT_MEETING_DURATION", cfg.DefaultMeetingDuration)
	if err != nil {
		return Config{}, err
	}
	cfg.SlotStep, err = durationFromEnv("SLOT_STEP", cfg.SlotStep)
	if err != nil {
		return Config{}, err
	}
	cfg.EmbeddingDim, err = intFromEnv("OPENAI_EMBEDDING_DIM", cfg.EmbeddingDim)
	if err != nil {
		return Config{}, err
	}
	cfg.RecentWindow, err = intFromEnv("CHAT_RECENT_WINDOW", cfg.RecentWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.KnowledgeTopK, err = intFromEnv("KNOWLEDGE_TOP_K", cfg.KnowledgeTopK)
	if err != nil {
		return Config{}, err
	}
	cfg.SummaryAfter, err = intFromEnv("SUMMARY_AFTER_TURNS", cfg.SummaryAfter)
	if err != nil {
		return Config{}, err
	}
	cfg.SummaryKeep, err = intFromEnv("SUMMARY_KEEP_TURNS", cfg.SummaryKeep)
	if err != nil {
		return Config{}, err
	}
	cfg.SummaryMaxLen, err = intFromEnv("SUMMARY_MAX_LEN", cfg.SummaryMaxLen)
	if err != nil {
		return Config{}, err
	}
	cfg.SlotScanDays, err = intFromEnv("SLOT_SCAN_DAYS", cfg.SlotScanDays)
	if err != nil {
		return Config{}, err
	}
	cfg.WorkDayStartHour, err = intFromEnv("WORK_DAY_START_HOUR", cfg.WorkDayStartHour)
	if err != nil {
		return Config{}, err
	}
	cfg.WorkDayEndHour, err = intFromEnv("WORK_DAY_END_HOUR", cfg.WorkDayEndHour)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.EmbeddingDim <= 0 {
		return Config{}, fmt.Errorf("OPENAI_EMBEDDING_DIM must be positive")
	}
	if cfg.RecentWindow <= 0 {
		return Config{}, fmt.Errorf("CHAT_RECENT_WINDOW must be positive")
	}
	if cfg.SummaryKeep >= cfg.SummaryAfter {
		return Config{}, fmt.Errorf("SUMMARY_KEEP_TURNS must be below SUMMARY_AFTER_TURNS")
	}
	if cfg.WorkDayStartHour < 0 || cfg.WorkDayEndHour > 24 || cfg.WorkDayStartHour >= cfg.WorkDayEndHour {
		return Config{}, fmt.Errorf("work day hours out of range")
	}
	if cfg.SlotScanDays <= 0 {
		return Config{}, fmt.Errorf("SLOT_SCAN_DAYS must be positive")
	}
	if cfg.WorkerInterval < 10*time.Second {
		return Config{}, fmt.Errorf("WORKER_INTERVAL must be at least 10s")
	}
	if _, err := time.LoadLocation(cfg.DefaultTimezone); err != nil {
		return Config{}, fmt.Errorf("DEFAULT_TIMEZONE invalid: %w", err)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
