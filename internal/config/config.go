package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Broker string

const (
	BrokerPaper  Broker = "paper"
	BrokerAlpaca Broker = "alpaca"
)

const (
	FeedSynthetic = "synthetic"
	FeedAlpaca    = "alpaca"
)

// Config is the full process configuration. The defaults trade 0.2 lots of
// GBPUSD on a 10 bar SMA of one minute bars.
type Config struct {
	Broker       Broker        `mapstructure:"broker"`
	Symbol       string        `mapstructure:"symbol"`
	Volume       float64       `mapstructure:"volume"`
	Timeframe    time.Duration `mapstructure:"timeframe"`
	SMAPeriod    int           `mapstructure:"sma_period"`
	Deviation    int           `mapstructure:"deviation"`
	Point        float64       `mapstructure:"point"`
	MaxDistSL    float64       `mapstructure:"max_dist_sl"`
	TrailAmount  float64       `mapstructure:"trail_amount"`
	DefaultSL    float64       `mapstructure:"default_sl"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxCycles    int           `mapstructure:"max_cycles"`
	Magic        int           `mapstructure:"magic"`
	Comment      string        `mapstructure:"comment"`
	KillSwitch   bool          `mapstructure:"kill_switch"`
	MaxVolume    float64       `mapstructure:"max_volume"`
	MaxSpread    float64       `mapstructure:"max_spread"`
	ReportFormat string        `mapstructure:"report_format"`
	HistorySize  int           `mapstructure:"history_size"`
	MetricsAddr  string        `mapstructure:"metrics_addr"`
	Log          LogConfig     `mapstructure:"log"`
	Alpaca       AlpacaConfig  `mapstructure:"alpaca"`
	Paper        PaperConfig   `mapstructure:"paper"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type AlpacaConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	APISecret   string        `mapstructure:"api_secret"`
	BaseURL     string        `mapstructure:"base_url"`
	DataBaseURL string        `mapstructure:"data_base_url"`
	Feed        string        `mapstructure:"feed"`
	BarLookback time.Duration `mapstructure:"bar_lookback"`
}

// PaperConfig drives the in-memory terminal. Feed selects where its quotes
// come from: a synthetic wave or Alpaca market data.
type PaperConfig struct {
	Feed      string  `mapstructure:"feed"`
	BasePrice float64 `mapstructure:"base_price"`
	Amplitude float64 `mapstructure:"amplitude"`
	Spread    float64 `mapstructure:"spread"`
	WaveBars  int     `mapstructure:"wave_bars"`
}

func (c AlpacaConfig) HasCredentials() bool {
	return c.APIKey != "" && c.APISecret != ""
}

var defaults = map[string]any{
	"broker":               string(BrokerPaper),
	"symbol":               "GBPUSD",
	"volume":               0.2,
	"timeframe":            time.Minute,
	"sma_period":           10,
	"deviation":            20,
	"point":                0.00001,
	"max_dist_sl":          0.0006,
	"trail_amount":         0.0003,
	"default_sl":           0.0003,
	"poll_interval":        time.Second,
	"max_cycles":           0,
	"magic":                100,
	"comment":              "sma crossover",
	"kill_switch":          false,
	"max_volume":           0.0,
	"max_spread":           0.0,
	"report_format":        "text",
	"history_size":         100,
	"metrics_addr":         "",
	"log.level":            "info",
	"log.format":           "text",
	"log.file":             "",
	"log.max_size_mb":      50,
	"log.max_backups":      3,
	"log.max_age_days":     7,
	"log.compress":         false,
	"alpaca.api_key":       "",
	"alpaca.api_secret":    "",
	"alpaca.base_url":      "https://paper-api.alpaca.markets",
	"alpaca.data_base_url": "",
	"alpaca.feed":          "iex",
	"alpaca.bar_lookback":  24 * time.Hour,
	"paper.feed":           FeedSynthetic,
	"paper.base_price":     1.25,
	"paper.amplitude":      0.002,
	"paper.spread":         0.00012,
	"paper.wave_bars":      30,
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"broker":        "broker",
	"symbol":        "symbol",
	"volume":        "volume",
	"timeframe":     "timeframe",
	"sma-period":    "sma_period",
	"deviation":     "deviation",
	"max-dist-sl":   "max_dist_sl",
	"trail-amount":  "trail_amount",
	"default-sl":    "default_sl",
	"poll-interval": "poll_interval",
	"max-cycles":    "max_cycles",
	"kill-switch":   "kill_switch",
	"report-format": "report_format",
	"metrics-addr":  "metrics_addr",
	"log-level":     "log.level",
	"log-file":      "log.file",
	"paper-feed":    "paper.feed",
}

// Load resolves configuration with the precedence flags > environment >
// config file > defaults. Values from the dotenv file (./.env unless
// --env-file says otherwise) count as environment but never replace
// variables already set.
func Load(args []string) (Config, error) {
	var cfg Config

	fs := pflag.NewFlagSet("smabot", pflag.ContinueOnError)
	configPath := fs.String("config", "", "path to YAML config file (default ./smabot.yaml if present)")
	envFile := fs.String("env-file", ".env", "dotenv file loaded without overriding the environment")
	fs.String("broker", string(BrokerPaper), "broker: paper or alpaca")
	fs.String("symbol", "GBPUSD", "trading symbol")
	fs.Float64("volume", 0.2, "fixed volume of every new order")
	fs.Duration("timeframe", time.Minute, "bar timeframe")
	fs.Int("sma-period", 10, "SMA window length in bars")
	fs.Int("deviation", 20, "max slippage in points")
	fs.Float64("max-dist-sl", 0.0006, "distance from stop-loss before it trails")
	fs.Float64("trail-amount", 0.0003, "trail step from current price")
	fs.Float64("default-sl", 0.0003, "stop-loss distance for positions without one")
	fs.Duration("poll-interval", time.Second, "sleep between cycles")
	fs.Int("max-cycles", 0, "stop after this many cycles (0 runs until killed)")
	fs.Bool("kill-switch", false, "if true, never open new positions")
	fs.String("report-format", "text", "cycle report format: text or json")
	fs.String("metrics-addr", "", "listen address for /metrics and /status (empty disables)")
	fs.String("log-level", "info", "log level")
	fs.String("log-file", "", "rotating log file path")
	fs.String("paper-feed", FeedSynthetic, "paper quotes: synthetic or alpaca")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if err := loadDotEnvIfPresent(*envFile, fs.Changed("env-file")); err != nil {
		return cfg, err
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for flagName, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(flagName)); err != nil {
			return cfg, fmt.Errorf("bind flag %s: %w", flagName, err)
		}
	}

	v.SetEnvPrefix("SMABOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("alpaca.api_key", "SMABOT_ALPACA_API_KEY", "APCA_API_KEY_ID"); err != nil {
		return cfg, err
	}
	if err := v.BindEnv("alpaca.api_secret", "SMABOT_ALPACA_API_SECRET", "APCA_API_SECRET_KEY"); err != nil {
		return cfg, err
	}

	if *configPath != "" {
		v.SetConfigFile(*configPath)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("read config %s: %w", *configPath, err)
		}
	} else {
		v.SetConfigName("smabot")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return cfg, fmt.Errorf("read config: %w", err)
			}
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadDotEnvIfPresent never overrides variables that are already set. A
// missing file is only an error when it was asked for explicitly.
func loadDotEnvIfPresent(path string, required bool) error {
	if _, err := os.Stat(path); err != nil {
		if required {
			return fmt.Errorf("env file %s: %w", path, err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func validate(cfg Config) error {
	if cfg.Broker != BrokerPaper && cfg.Broker != BrokerAlpaca {
		return fmt.Errorf("invalid broker: %s", cfg.Broker)
	}
	if cfg.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if cfg.Volume <= 0 {
		return fmt.Errorf("volume must be > 0")
	}
	if cfg.Timeframe <= 0 {
		return fmt.Errorf("timeframe must be > 0")
	}
	if cfg.SMAPeriod <= 1 {
		return fmt.Errorf("sma-period must be > 1")
	}
	if cfg.Deviation < 0 {
		return fmt.Errorf("deviation must be >= 0")
	}
	if cfg.Point <= 0 {
		return fmt.Errorf("point must be > 0")
	}
	if cfg.MaxDistSL < 0 {
		return fmt.Errorf("max-dist-sl must be >= 0")
	}
	if cfg.TrailAmount <= 0 {
		return fmt.Errorf("trail-amount must be > 0")
	}
	if cfg.DefaultSL <= 0 {
		return fmt.Errorf("default-sl must be > 0")
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("poll-interval must be > 0")
	}
	if cfg.MaxCycles < 0 {
		return fmt.Errorf("max-cycles must be >= 0")
	}
	if cfg.MaxVolume < 0 || (cfg.MaxVolume > 0 && cfg.MaxVolume < cfg.Volume) {
		return fmt.Errorf("max-volume must be 0 or >= volume")
	}
	if cfg.MaxSpread < 0 {
		return fmt.Errorf("max-spread must be >= 0")
	}
	if cfg.ReportFormat != "text" && cfg.ReportFormat != "json" {
		return fmt.Errorf("invalid report format: %s", cfg.ReportFormat)
	}
	if cfg.HistorySize <= 0 {
		return fmt.Errorf("history-size must be > 0")
	}
	if cfg.Paper.Feed != FeedSynthetic && cfg.Paper.Feed != FeedAlpaca {
		return fmt.Errorf("invalid paper feed: %s", cfg.Paper.Feed)
	}
	needsAlpaca := cfg.Broker == BrokerAlpaca || cfg.Paper.Feed == FeedAlpaca
	if needsAlpaca && !cfg.Alpaca.HasCredentials() {
		return fmt.Errorf("APCA_API_KEY_ID and APCA_API_SECRET_KEY are required for alpaca")
	}
	return nil
}
