package config

// Runtime configuration
// Sources, lowest to highest priority:
// 1. defaults
// 2. config.yaml (or --config)
// 3. .env file and the process environment
// 4. command line flags

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	ModeWebhook = "webhook"
	ModePolling = "polling"

	DriverPostgres = "postgres"
	DriverBuntDB   = "buntdb"
)

type Config struct {
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	CoinGecko CoinGeckoConfig `mapstructure:"coingecko"`
	Defaults  DefaultsConfig  `mapstructure:"defaults"`
	Log       LogConfig       `mapstructure:"log"`
}

type TelegramConfig struct {
	Token         string  `mapstructure:"token"`
	AdminID       string  `mapstructure:"admin_id"`
	Username      string  `mapstructure:"username"`
	Mode          string  `mapstructure:"mode"`
	WebhookURL    string  `mapstructure:"webhook_url"`
	WebhookSecret string  `mapstructure:"webhook_secret"`
	SendRate      float64 `mapstructure:"send_rate"` // messages per second
}

// AdminUserID returns the numeric admin id, 0 when unset.
func (t TelegramConfig) AdminUserID() int64 {
	id, _ := strconv.ParseInt(strings.TrimSpace(t.AdminID), 10, 64)
	return id
}

type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Driver         string        `mapstructure:"driver"`
	URL            string        `mapstructure:"url"`
	Path           string        `mapstructure:"path"`
	MaxOpenConns   int           `mapstructure:"max_open_conns"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	AutoMigrate    bool          `mapstructure:"auto_migrate"`
}

type SchedulerConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Tick           time.Duration `mapstructure:"tick"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Concurrency    int           `mapstructure:"concurrency"`
	RunOnStart     bool          `mapstructure:"run_on_start"`
}

type CoinGeckoConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RateLimit  float64       `mapstructure:"rate_limit"` // requests per second
	MaxRetries int           `mapstructure:"max_retries"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
}

// DefaultsConfig is applied to subscriptions created by /start.
type DefaultsConfig struct {
	Coin            string `mapstructure:"coin"`
	IntervalMinutes int    `mapstructure:"interval_minutes"`
}

type LogConfig struct {
	Dir   string `mapstructure:"dir"`
	Level string `mapstructure:"level"`
}

// LoadConfig reads configuration. flags may be nil; configFile may be empty.
func LoadConfig(configFile string, flags *pflag.FlagSet) (*Config, error) {
	// .env only fills variables that are not already set
	_ = godotenv.Load(".env")

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config.yaml: %w", err)
			}
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setupEnvAliases(v)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	normalize(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setupEnvAliases binds the variable names used by existing deployments.
func setupEnvAliases(v *viper.Viper) {
	v.BindEnv("telegram.token", "TELEGRAM_BOT_TOKEN", "TELEGRAM_TOKEN")
	v.BindEnv("telegram.admin_id", "TELEGRAM_ADMIN_ID")
	v.BindEnv("telegram.username", "BOT_USERNAME")
	v.BindEnv("telegram.mode", "TELEGRAM_MODE")
	v.BindEnv("telegram.webhook_url", "TELEGRAM_WEBHOOK_URL")
	v.BindEnv("telegram.webhook_secret", "TELEGRAM_WEBHOOK_SECRET")

	v.BindEnv("http.addr", "HTTP_ADDR", "PORT")

	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("database.path", "BUNTDB_PATH")

	v.BindEnv("coingecko.api_key", "COINGECKO_API_KEY")
	v.BindEnv("coingecko.base_url", "COINGECKO_BASE_URL")

	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("log.dir", "LOG_DIR")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.admin_id", "")
	v.SetDefault("telegram.username", "CryptoPriceAutoBot")
	v.SetDefault("telegram.mode", ModeWebhook)
	v.SetDefault("telegram.webhook_url", "")
	v.SetDefault("telegram.webhook_secret", "")
	v.SetDefault("telegram.send_rate", 25.0)

	v.SetDefault("http.addr", ":5000")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 2*time.Minute) // trigger runs a full pass synchronously

	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.url", "")
	v.SetDefault("database.path", "data/subscriptions.db")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_time", 30*time.Second)
	v.SetDefault("database.connect_timeout", 10*time.Second)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.tick", 60*time.Second)
	v.SetDefault("scheduler.request_timeout", 10*time.Second)
	v.SetDefault("scheduler.concurrency", 1)
	v.SetDefault("scheduler.run_on_start", false)

	v.SetDefault("coingecko.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("coingecko.api_key", "")
	v.SetDefault("coingecko.timeout", 10*time.Second)
	v.SetDefault("coingecko.rate_limit", 0.5) // public API allows roughly 30 calls per minute
	v.SetDefault("coingecko.max_retries", 3)
	v.SetDefault("coingecko.cache_ttl", 30*time.Second)

	v.SetDefault("defaults.coin", "BTC")
	v.SetDefault("defaults.interval_minutes", 1)

	v.SetDefault("log.dir", "logs")
	v.SetDefault("log.level", "info")
}

func normalize(cfg *Config) {
	cfg.Telegram.Mode = strings.ToLower(strings.TrimSpace(cfg.Telegram.Mode))
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	cfg.Defaults.Coin = strings.ToUpper(strings.TrimSpace(cfg.Defaults.Coin))
	cfg.Telegram.Username = strings.TrimPrefix(cfg.Telegram.Username, "@")

	// PORT=8080 style values
	if cfg.HTTP.Addr != "" && !strings.Contains(cfg.HTTP.Addr, ":") {
		cfg.HTTP.Addr = ":" + cfg.HTTP.Addr
	}
	if cfg.Scheduler.Concurrency < 1 {
		cfg.Scheduler.Concurrency = 1
	}
}

func validateConfig(cfg *Config) error {
	switch cfg.Telegram.Mode {
	case ModeWebhook:
	case ModePolling:
		if cfg.Telegram.Token == "" {
			return fmt.Errorf("telegram.mode=polling requires telegram.token")
		}
	default:
		return fmt.Errorf("telegram.mode must be %q or %q, got %q", ModeWebhook, ModePolling, cfg.Telegram.Mode)
	}

	if cfg.Telegram.AdminID != "" && cfg.Telegram.AdminUserID() == 0 {
		return fmt.Errorf("telegram.admin_id must be a numeric Telegram user id, got %q", cfg.Telegram.AdminID)
	}

	switch cfg.Database.Driver {
	case DriverPostgres:
		if cfg.Database.URL == "" {
			return fmt.Errorf("database.url (DATABASE_URL) is required for the postgres driver")
		}
	case DriverBuntDB:
		if cfg.Database.Path == "" {
			return fmt.Errorf("database.path is required for the buntdb driver")
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverPostgres, DriverBuntDB, cfg.Database.Driver)
	}

	if cfg.Scheduler.Tick <= 0 {
		return fmt.Errorf("scheduler.tick must be positive")
	}
	if cfg.Defaults.IntervalMinutes <= 0 {
		return fmt.Errorf("defaults.interval_minutes must be positive")
	}
	if cfg.Defaults.Coin == "" {
		return fmt.Errorf("defaults.coin is required")
	}
	if cfg.CoinGecko.BaseURL == "" {
		return fmt.Errorf("coingecko.base_url is required")
	}
	return nil
}
