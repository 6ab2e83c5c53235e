package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.DefaultTimezone != "Asia/Colombo" {
		t.Fatalf("DefaultTimezone = %q, want %q", cfg.DefaultTimezone, "Asia/Colombo")
	}
	if cfg.RecentWindow != 16 {
		t.Fatalf("RecentWindow = %d, want 16", cfg.RecentWindow)
	}
	if cfg.SummaryAfter != 40 || cfg.SummaryKeep != 20 || cfg.SummaryMaxLen != 6000 {
		t.Fatalf("summary windows = %d/%d/%d, want 40/20/6000",
			cfg.SummaryAfter, cfg.SummaryKeep, cfg.SummaryMaxLen)
	}
	if cfg.DefaultMeetingDuration != 45*time.Minute {
		t.Fatalf("DefaultMeetingDuration = %v, want 45m", cfg.DefaultMeetingDuration)
	}
	if cfg.SlotScanDays != 3 || cfg.WorkDayStartHour != 9 || cfg.WorkDayEndHour != 17 {
		t.Fatalf("slot scan = %d days %d-%d, want 3 days 9-17",
			cfg.SlotScanDays, cfg.WorkDayStartHour, cfg.WorkDayEndHour)
	}
	if cfg.WorkerInterval != 2*time.Minute {
		t.Fatalf("WorkerInterval = %v, want 2m", cfg.WorkerInterval)
	}
}

func TestLoadOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9191")
	t.Setenv("DEFAULT_MEETING_DURATION", "30m")
	t.Setenv("KNOWLEDGE_TOP_K", "8")
	t.Setenv("APP_ALLOW_ANY_ORIGIN", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9191" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":9191")
	}
	if cfg.DefaultMeetingDuration != 30*time.Minute {
		t.Fatalf("DefaultMeetingDuration = %v, want 30m", cfg.DefaultMeetingDuration)
	}
	if cfg.KnowledgeTopK != 8 {
		t.Fatalf("KnowledgeTopK = %d, want 8", cfg.KnowledgeTopK)
	}
	if !cfg.AllowAnyOrigin {
		t.Fatalf("AllowAnyOrigin = false, want true")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"keep above after", "SUMMARY_KEEP_TURNS", "50"},
		{"inverted work hours", "WORK_DAY_START_HOUR", "20"},
		{"zero scan days", "SLOT_SCAN_DAYS", "0"},
		{"worker interval too short", "WORKER_INTERVAL", "1s"},
		{"bad timezone", "DEFAULT_TIMEZONE", "Mars/Olympus"},
		{"non-numeric dim", "OPENAI_EMBEDDING_DIM", "lots"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%s error = nil, want error", tc.key, tc.value)
			}
		})
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"DATABASE_URL",
		"OPENAI_API_KEY",
		"OPENAI_CHAT_MODEL",
		"OPENAI_EMBEDDING_MODEL",
		"OPENAI_EMBEDDING_DIM",
		"MODEL_TIMEOUT",
		"MODEL_MODE",
		"DEFAULT_TIMEZONE",
		"CHAT_RECENT_WINDOW",
		"KNOWLEDGE_TOP_K",
		"SUMMARY_AFTER_TURNS",
		"SUMMARY_KEEP_TURNS",
		"SUMMARY_MAX_LEN",
		"DEFAULT_MEETING_DURATION",
		"SLOT_SCAN_DAYS",
		"SLOT_STEP",
		"WORK_DAY_START_HOUR",
		"WORK_DAY_END_HOUR",
		"WORKER_INTERVAL",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
