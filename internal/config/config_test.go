package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	for _, key := range []string{
		"SERVER_PORT", "PORT", "ORDER_EXPIRY_HOURS", "LICENSE_FEE_PERCENT",
		"RESALE_COMMISSION_PERCENT", "MATCH_TOLERANCE_PERCENT",
		"ORDER_EXPIRY_SWEEP_SCHEDULE", "RECORD_RATE_LIMIT_PER_MINUTE",
	} {
		unsetEnvWithCleanup(t, key)
	}

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default ServerPort 8080, got %q", cfg.ServerPort)
	}
	if cfg.OrderExpiryHours != 72 {
		t.Fatalf("expected default OrderExpiryHours 72, got %d", cfg.OrderExpiryHours)
	}
	if cfg.LicenseFeePercent != 5 {
		t.Fatalf("expected default LicenseFeePercent 5, got %d", cfg.LicenseFeePercent)
	}
	if cfg.ResaleCommissionPercent != 1 {
		t.Fatalf("expected default ResaleCommissionPercent 1, got %d", cfg.ResaleCommissionPercent)
	}
	if cfg.MatchTolerancePercent != 1 {
		t.Fatalf("expected default MatchTolerancePercent 1, got %d", cfg.MatchTolerancePercent)
	}
	if cfg.OrderExpirySweepSchedule != "*/10 * * * *" {
		t.Fatalf("expected default sweep schedule */10, got %q", cfg.OrderExpirySweepSchedule)
	}
	if cfg.RecordRateLimitPerMinute != 60 {
		t.Fatalf("expected default RecordRateLimitPerMinute 60, got %d", cfg.RecordRateLimitPerMinute)
	}
}

func TestLoadConfig_PortOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "8080")
	setEnvWithCleanup(t, "PORT", "9090")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Fatalf("expected PORT to win, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_CoercesInvalidNumbers(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "ORDER_EXPIRY_HOURS", "-4")
	setEnvWithCleanup(t, "LICENSE_FEE_PERCENT", "-5")
	setEnvWithCleanup(t, "MATCH_TOLERANCE_PERCENT", "-1")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.OrderExpiryHours != 72 {
		t.Fatalf("expected non-positive expiry coerced to 72, got %d", cfg.OrderExpiryHours)
	}
	if cfg.LicenseFeePercent != 0 {
		t.Fatalf("expected negative license fee coerced to 0, got %d", cfg.LicenseFeePercent)
	}
	if cfg.MatchTolerancePercent != 0 {
		t.Fatalf("expected negative tolerance coerced to 0, got %d", cfg.MatchTolerancePercent)
	}
}

func TestLoadConfig_TrimsInternalAPIKey(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "INTERNAL_API_KEY", "  operator-key  ")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.InternalAPIKey != "operator-key" {
		t.Fatalf("expected trimmed key, got %q", cfg.InternalAPIKey)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
