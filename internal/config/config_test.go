package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_DefaultsSettlementWindowToHourly(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "SETTLEMENT_WINDOW")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.SettlementWindow != WindowHourly {
		t.Fatalf("expected default settlement window to be hourly, got %q", cfg.SettlementWindow)
	}
}

func TestLoadConfig_RejectsUnrecognisedSettlementWindow(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SETTLEMENT_WINDOW", "fortnightly")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.SettlementWindow != WindowHourly {
		t.Fatalf("expected unrecognised settlement window to fall back to hourly, got %q", cfg.SettlementWindow)
	}
}

func TestLoadConfig_CoercesNonPositiveIdempotencyTTL(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "IDEMPOTENCY_TTL_SECONDS", "-5")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.IdempotencyTTLSeconds != 86400 {
		t.Fatalf("expected negative idempotency ttl to be coerced to default, got %d", cfg.IdempotencyTTLSeconds)
	}
}

func TestLoadConfig_ReadsPostingRetrySettings(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "POSTING_RETRY_MAX_ATTEMPTS", "5")
	setEnvWithCleanup(t, "POSTING_RETRY_BACKOFF_MILLIS", "50")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.PostingRetryMaxAttempts != 5 {
		t.Fatalf("expected PostingRetryMaxAttempts=5, got %d", cfg.PostingRetryMaxAttempts)
	}
	if cfg.PostingRetryBackoffMillis != 50 {
		t.Fatalf("expected PostingRetryBackoffMillis=50, got %d", cfg.PostingRetryBackoffMillis)
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
