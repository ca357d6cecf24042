package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Quotes   QuotesConfig   `mapstructure:"quotes"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Venue    VenueConfig    `mapstructure:"venue"`
	Signals  SignalsConfig  `mapstructure:"signals"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// FeedConfig points the websocket ingest adapter at the upstream quote stream.
type FeedConfig struct {
	URL            string        `mapstructure:"url"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	TopicPrefix    string        `mapstructure:"topic_prefix"` // e.g. "quote" -> "quote.EURUSD"
}

type QuotesConfig struct {
	Watch         []string                  `mapstructure:"watch"` // subscribed for the life of the process
	GracePeriod   time.Duration             `mapstructure:"grace_period"`
	SweepInterval time.Duration             `mapstructure:"sweep_interval"`
	StaleAfter    time.Duration             `mapstructure:"stale_after"`
	StalePolicy   string                    `mapstructure:"stale_policy"`    // "allow", "warn" or "refuse"
	FirstTickWait time.Duration             `mapstructure:"first_tick_wait"` // how long an order waits on a symbol it just subscribed
	Fallbacks     map[string]FallbackConfig `mapstructure:"fallbacks"`
}

// FallbackConfig is a synthetic quote served until the first live tick arrives.
type FallbackConfig struct {
	Bid string `mapstructure:"bid"`
	Ask string `mapstructure:"ask"`
}

type LedgerConfig struct {
	Backend         string `mapstructure:"backend"` // "memory" or "postgres"
	MaxRetries      int    `mapstructure:"max_retries"`
	EnforceHoldings bool   `mapstructure:"enforce_holdings"`
}

type VenueConfig struct {
	Kind    string        `mapstructure:"kind"` // "paper" or "rest"
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SignalsConfig drives the indicator refresher. It is disabled when BaseURL is empty.
type SignalsConfig struct {
	BaseURL         string               `mapstructure:"base_url"`
	Timeout         time.Duration        `mapstructure:"timeout"`
	RefreshInterval time.Duration        `mapstructure:"refresh_interval"`
	Targets         []SignalTargetConfig `mapstructure:"targets"`
}

type SignalTargetConfig struct {
	Symbol   string `mapstructure:"symbol"`
	Interval string `mapstructure:"interval"` // "1m" ... "1M"
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Options defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

// Load loads application configuration using Viper.
// It reads from config.yaml and overrides with environment variables.
func Load() *Config {
	var dir string
	ex, _ := os.Executable()
	if strings.Contains(ex, "go-build") {
		pwd, _ := os.Getwd()
		dir = filepath.Join(pwd, "../../config")
	} else {
		dir = filepath.Join(filepath.Dir(ex), "../config")
	}

	cfg, err := LoadFrom(dir)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// LoadFrom reads config.yaml from dir, applies environment overrides
// (e.g. QUOTES_STALE_AFTER) and fills in defaults for unset keys.
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	setDefaults(v)

	// Support environment variables with dot notation (e.g., LEDGER_BACKEND)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("feed.reconnect_delay", 3*time.Second)
	v.SetDefault("feed.topic_prefix", "quote")
	v.SetDefault("quotes.grace_period", 30*time.Second)
	v.SetDefault("quotes.sweep_interval", 5*time.Second)
	v.SetDefault("quotes.stale_after", 10*time.Second)
	v.SetDefault("quotes.stale_policy", "warn")
	v.SetDefault("quotes.first_tick_wait", 2*time.Second)
	v.SetDefault("ledger.backend", "memory")
	v.SetDefault("ledger.max_retries", 3)
	v.SetDefault("venue.kind", "paper")
	v.SetDefault("venue.timeout", 5*time.Second)
	v.SetDefault("signals.timeout", 10*time.Second)
	v.SetDefault("signals.refresh_interval", time.Minute)
	v.SetDefault("redis.ttl", 24*time.Hour)
	v.SetDefault("metrics.addr", ":9102")
}
