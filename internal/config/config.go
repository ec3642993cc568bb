package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all ratewatch configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Storage   StorageConfig   `mapstructure:"storage"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// AppConfig defines application identity settings.
type AppConfig struct {
	Name string `mapstructure:"name"`
}

// StorageConfig defines alert database settings.
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// NATSConfig defines the connection to the NATS server backing the
// notification center.
type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	Bucket         string        `mapstructure:"bucket"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	GrantOnRequest bool          `mapstructure:"grant_on_request"`
}

// ProvidersConfig defines the upstream rate and price sources.
type ProvidersConfig struct {
	Frankfurter   HTTPSourceConfig `mapstructure:"frankfurter"`
	CoinGecko     HTTPSourceConfig `mapstructure:"coingecko"`
	CoinCap       CoinCapConfig    `mapstructure:"coincap"`
	CryptoBackend string           `mapstructure:"crypto_backend"`
}

// HTTPSourceConfig defines a plain HTTP source.
type HTTPSourceConfig struct {
	BaseURL string  `mapstructure:"base_url"`
	RPS     float64 `mapstructure:"rps"`
}

// CoinCapConfig defines the CoinCap source, which optionally takes an API key.
type CoinCapConfig struct {
	BaseURL string  `mapstructure:"base_url"`
	APIKey  string  `mapstructure:"api_key"`
	RPS     float64 `mapstructure:"rps"`
}

// SchedulerConfig defines the background refresh job.
type SchedulerConfig struct {
	JobID    string        `mapstructure:"job_id"`
	Interval time.Duration `mapstructure:"interval"`
	Budget   time.Duration `mapstructure:"budget"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from file and environment variables.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Defaults
	v.SetDefault("app.name", "ratewatch")
	v.SetDefault("storage.path", "ratewatch.db")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.bucket", "ratewatch-notifications")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.connect_timeout", "5s")
	v.SetDefault("nats.grant_on_request", true)
	v.SetDefault("providers.frankfurter.base_url", "https://api.frankfurter.dev/v1")
	v.SetDefault("providers.frankfurter.rps", 1.0)
	v.SetDefault("providers.coingecko.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("providers.coingecko.rps", 0.25)
	v.SetDefault("providers.coincap.base_url", "https://api.coincap.io/v2")
	v.SetDefault("providers.coincap.rps", 0.5)
	v.SetDefault("providers.crypto_backend", "coingecko")
	v.SetDefault("scheduler.job_id", "ratewatch-refresh")
	v.SetDefault("scheduler.interval", "15m")
	v.SetDefault("scheduler.budget", "25s")
	v.SetDefault("logging.level", "info")

	// Environment variables
	v.SetEnvPrefix("RATEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the loaded configuration for values the daemon cannot
// start with.
func (c *Config) Validate() error {
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path must not be empty")
	}
	if c.NATS.URL == "" {
		return fmt.Errorf("nats.url must not be empty")
	}
	if c.NATS.Bucket == "" {
		return fmt.Errorf("nats.bucket must not be empty")
	}
	if c.Providers.Frankfurter.RPS <= 0 || c.Providers.CoinGecko.RPS <= 0 || c.Providers.CoinCap.RPS <= 0 {
		return fmt.Errorf("provider rps values must be positive")
	}
	switch c.Providers.CryptoBackend {
	case "coingecko", "coincap":
	default:
		return fmt.Errorf("unknown crypto backend %q", c.Providers.CryptoBackend)
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive")
	}
	if c.Scheduler.Budget <= 0 {
		return fmt.Errorf("scheduler.budget must be positive")
	}
	return nil
}
