package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.Thresholds.ResponseTimeMs != 30_000 {
		t.Fatalf("expected default response-time threshold 30000, got %v", cfg.Thresholds.ResponseTimeMs)
	}
	if cfg.Thresholds.ErrorRatePct != 30 {
		t.Fatalf("expected default error-rate threshold 30, got %v", cfg.Thresholds.ErrorRatePct)
	}
	if cfg.Thresholds.MinSamplesErrorRate != 10 {
		t.Fatalf("expected error-rate sample gate 10, got %d", cfg.Thresholds.MinSamplesErrorRate)
	}
	if cfg.Thresholds.LowSuccessRatePct != 70 {
		t.Fatalf("expected default success-rate floor 70, got %v", cfg.Thresholds.LowSuccessRatePct)
	}
	if cfg.Thresholds.MinSamplesRemediation != 5 {
		t.Fatalf("expected remediation sample gate 5, got %d", cfg.Thresholds.MinSamplesRemediation)
	}
	if cfg.SummaryRetryAttempts != 4 {
		t.Fatalf("expected 4 summary retry attempts, got %d", cfg.SummaryRetryAttempts)
	}
	if cfg.RetentionDays != 30 {
		t.Fatalf("expected default retention 30 days, got %d", cfg.RetentionDays)
	}
	if cfg.ResponseWindowSize != 100 {
		t.Fatalf("expected response window 100, got %d", cfg.ResponseWindowSize)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KEIRYO_OPTIMIZE_INTERVAL", "90s")
	t.Setenv("KEIRYO_ERROR_RATE_PCT", "45.5")
	t.Setenv("KEIRYO_MIN_SAMPLES_COST_SPIKE", "8")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.OptimizeInterval != 90*time.Second {
		t.Fatalf("expected 90s optimize interval, got %v", cfg.OptimizeInterval)
	}
	if cfg.Thresholds.ErrorRatePct != 45.5 {
		t.Fatalf("expected error-rate threshold 45.5, got %v", cfg.Thresholds.ErrorRatePct)
	}
	if cfg.Thresholds.MinSamplesCostSpike != 8 {
		t.Fatalf("expected cost-spike sample gate 8, got %d", cfg.Thresholds.MinSamplesCostSpike)
	}
}

func TestLoadInvalidValueFallsBack(t *testing.T) {
	t.Setenv("KEIRYO_PORT", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected fallback port 8080, got %d", cfg.Port)
	}
}

func TestValidateRejectsBadIntervals(t *testing.T) {
	t.Setenv("KEIRYO_ROLLUP_INTERVAL", "-1h")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for negative rollup interval, got nil")
	}

	t.Setenv("KEIRYO_ROLLUP_INTERVAL", "1h")
	t.Setenv("KEIRYO_RECENT_METRICS_SIZE", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero recent-metrics size, got nil")
	}
}
