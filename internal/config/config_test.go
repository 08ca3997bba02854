package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Broker:       BrokerPaper,
		Symbol:       "GBPUSD",
		Volume:       0.2,
		Timeframe:    time.Minute,
		SMAPeriod:    10,
		Deviation:    20,
		Point:        0.00001,
		MaxDistSL:    0.0006,
		TrailAmount:  0.0003,
		DefaultSL:    0.0003,
		PollInterval: time.Second,
		ReportFormat: "text",
		HistorySize:  100,
		Paper:        PaperConfig{Feed: FeedSynthetic},
	}
}

func TestValidateConfigRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown broker", func(c *Config) { c.Broker = "mt5" }},
		{"empty symbol", func(c *Config) { c.Symbol = "" }},
		{"zero volume", func(c *Config) { c.Volume = 0 }},
		{"sma period of one", func(c *Config) { c.SMAPeriod = 1 }},
		{"negative deviation", func(c *Config) { c.Deviation = -1 }},
		{"zero trail amount", func(c *Config) { c.TrailAmount = 0 }},
		{"zero default sl", func(c *Config) { c.DefaultSL = 0 }},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }},
		{"max volume below volume", func(c *Config) { c.MaxVolume = 0.1 }},
		{"bad report format", func(c *Config) { c.ReportFormat = "xml" }},
		{"alpaca without credentials", func(c *Config) { c.Broker = BrokerAlpaca }},
		{"paper alpaca feed without credentials", func(c *Config) { c.Paper.Feed = FeedAlpaca }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			assert.Error(t, validate(cfg))
		})
	}
}

func TestValidateConfigAcceptsValidConfig(t *testing.T) {
	require.NoError(t, validate(validConfig()))

	cfg := validConfig()
	cfg.Broker = BrokerAlpaca
	cfg.Alpaca = AlpacaConfig{APIKey: "key", APISecret: "secret"}
	require.NoError(t, validate(cfg))
}

func TestLoadDefaultsMatchStrategyConstants(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, BrokerPaper, cfg.Broker)
	assert.Equal(t, "GBPUSD", cfg.Symbol)
	assert.Equal(t, 0.2, cfg.Volume)
	assert.Equal(t, time.Minute, cfg.Timeframe)
	assert.Equal(t, 10, cfg.SMAPeriod)
	assert.Equal(t, 20, cfg.Deviation)
	assert.Equal(t, 0.0006, cfg.MaxDistSL)
	assert.Equal(t, 0.0003, cfg.TrailAmount)
	assert.Equal(t, 0.0003, cfg.DefaultSL)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 100, cfg.Magic)
	assert.Equal(t, FeedSynthetic, cfg.Paper.Feed)
}

func TestLoadConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "smabot.yaml")
	configContents := `
symbol: EURUSD
sma_period: 20
volume: 0.5
poll_interval: 5s
alpaca:
  api_key: config-key
  api_secret: config-secret
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContents), 0o600))

	t.Setenv("SMABOT_SMA_PERIOD", "15")
	t.Setenv("APCA_API_KEY_ID", "env-key")

	cfg, err := Load([]string{
		"--config", configPath,
		"--volume", "0.3",
	})
	require.NoError(t, err)

	assert.Equal(t, "EURUSD", cfg.Symbol, "file overrides default")
	assert.Equal(t, 15, cfg.SMAPeriod, "env overrides file")
	assert.Equal(t, 0.3, cfg.Volume, "flag overrides file")
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, "env-key", cfg.Alpaca.APIKey)
	assert.Equal(t, "config-secret", cfg.Alpaca.APISecret)
}

func TestLoadRejectsMissingConfigFile(t *testing.T) {
	_, err := Load([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

func TestLoadRejectsUnknownFlag(t *testing.T) {
	_, err := Load([]string{"--no-such-flag"})
	assert.Error(t, err)
}
