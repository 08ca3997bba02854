package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearEnv unsets key for the test and restores it afterwards.
func clearEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("unset env: %v", err)
	}
}

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	return path
}

func TestLoadReadsEnvFile(t *testing.T) {
	clearEnv(t, "SMABOT_SYMBOL")
	clearEnv(t, "SMABOT_POLL_INTERVAL")
	clearEnv(t, "APCA_API_KEY_ID")
	path := writeEnvFile(t, "SMABOT_SYMBOL=EURUSD\nSMABOT_POLL_INTERVAL=3s\nAPCA_API_KEY_ID=abc123\n")

	cfg, err := Load([]string{"--env-file", path})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Symbol != "EURUSD" {
		t.Fatalf("expected symbol from env file, got %q", cfg.Symbol)
	}
	if cfg.PollInterval != 3*time.Second {
		t.Fatalf("expected poll interval from env file, got %s", cfg.PollInterval)
	}
	if cfg.Alpaca.APIKey != "abc123" {
		t.Fatalf("expected alpaca key from env file, got %q", cfg.Alpaca.APIKey)
	}
}

func TestLoadEnvironmentBeatsEnvFile(t *testing.T) {
	path := writeEnvFile(t, "SMABOT_SMA_PERIOD=30\n")
	t.Setenv("SMABOT_SMA_PERIOD", "15")

	cfg, err := Load([]string{"--env-file", path})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.SMAPeriod != 15 {
		t.Fatalf("expected environment to win, got %d", cfg.SMAPeriod)
	}
	if got := os.Getenv("SMABOT_SMA_PERIOD"); got != "15" {
		t.Fatalf("env file overrode environment: %q", got)
	}
}

func TestLoadFlagBeatsEnvFile(t *testing.T) {
	clearEnv(t, "SMABOT_SYMBOL")
	path := writeEnvFile(t, "SMABOT_SYMBOL=EURUSD\n")

	cfg, err := Load([]string{"--env-file", path, "--symbol", "USDJPY"})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Symbol != "USDJPY" {
		t.Fatalf("expected flag to win, got %q", cfg.Symbol)
	}
}

func TestLoadMissingEnvFile(t *testing.T) {
	if _, err := Load([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}); err == nil {
		t.Fatalf("expected error for explicit missing env file")
	}
	if _, err := Load(nil); err != nil {
		t.Fatalf("default env file is optional, got %v", err)
	}
}
