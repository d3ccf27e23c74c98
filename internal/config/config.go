// Package config loads process bootstrap configuration: connection
// strings, endpoints and scheduler settings. Runtime trading behavior
// lives in the versioned AutomationConfig document, not here.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard library duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the process bootstrap configuration. Values come from the
// optional YAML file, then environment variables override field by field.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`

	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"`
	RedisAddr     string `yaml:"redis_addr"`
	UseMemory     bool   `yaml:"use_memory"`

	MarketDataURL    string `yaml:"market_data_url"`
	MarketDataAPIKey string `yaml:"market_data_api_key"`
	QuoteStreamURL   string `yaml:"quote_stream_url"`

	BrokerURL          string `yaml:"broker_url"`
	BrokerClientID     string `yaml:"broker_client_id"`
	BrokerClientSecret string `yaml:"broker_client_secret"`

	WebhookURL string `yaml:"webhook_url"`

	TickInterval   Duration `yaml:"tick_interval"`
	CandleInterval string   `yaml:"candle_interval"`
	Workers        int      `yaml:"workers"`
}

// Default returns the configuration used when nothing is specified.
func Default() Config {
	return Config{
		ListenAddr:     ":8080",
		UseMemory:      true,
		TickInterval:   Duration(5 * time.Minute),
		CandleInterval: "1d",
		Workers:        4,
	}
}

// Load builds the config: defaults, then the YAML file at path (skipped
// when path is empty), then environment variables. A .env file in the
// working directory is loaded first without overriding the environment.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&c.ListenAddr, "LISTEN_ADDR")
	setString(&c.PostgresDSN, "POSTGRES_DSN")
	setString(&c.ClickhouseDSN, "CLICKHOUSE_DSN")
	setString(&c.RedisAddr, "REDIS_ADDR")
	setString(&c.MarketDataURL, "MARKET_DATA_URL")
	setString(&c.MarketDataAPIKey, "MARKET_DATA_API_KEY")
	setString(&c.QuoteStreamURL, "QUOTE_STREAM_URL")
	setString(&c.BrokerURL, "BROKER_URL")
	setString(&c.BrokerClientID, "BROKER_CLIENT_ID")
	setString(&c.BrokerClientSecret, "BROKER_CLIENT_SECRET")
	setString(&c.WebhookURL, "WEBHOOK_URL")
	setString(&c.CandleInterval, "CANDLE_INTERVAL")

	if v := os.Getenv("USE_MEMORY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid USE_MEMORY %q: %w", v, err)
		}
		c.UseMemory = b
	}
	if v := os.Getenv("TICK_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid TICK_INTERVAL %q: %w", v, err)
		}
		c.TickInterval = Duration(d)
	}
	if v := os.Getenv("WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid WORKERS %q: %w", v, err)
		}
		c.Workers = n
	}
	return nil
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if !c.UseMemory && c.PostgresDSN == "" {
		return fmt.Errorf("postgres_dsn is required unless use_memory is set")
	}
	if c.TickInterval.Std() < time.Second {
		return fmt.Errorf("tick_interval %s too small", c.TickInterval.Std())
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1")
	}
	if c.CandleInterval == "" {
		return fmt.Errorf("candle_interval is required")
	}
	return nil
}
