package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/prices")

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	require.Equal(t, ModeWebhook, cfg.Telegram.Mode)
	require.Equal(t, DriverPostgres, cfg.Database.Driver)
	require.Equal(t, ":5000", cfg.HTTP.Addr)
	require.Equal(t, 60*time.Second, cfg.Scheduler.Tick)
	require.Equal(t, 1, cfg.Scheduler.Concurrency)
	require.Equal(t, "BTC", cfg.Defaults.Coin)
	require.Equal(t, 1, cfg.Defaults.IntervalMinutes)
	require.Equal(t, 20, cfg.Database.MaxOpenConns)
	require.Equal(t, 30*time.Second, cfg.CoinGecko.CacheTTL)
}

func TestLoadConfig_EnvAliases(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "BuntDB")
	t.Setenv("BUNTDB_PATH", "/tmp/subs.db")
	t.Setenv("PORT", "8080")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("BOT_USERNAME", "@MyPriceBot")
	t.Setenv("SCHEDULER_TICK", "15s")

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	require.Equal(t, DriverBuntDB, cfg.Database.Driver)
	require.Equal(t, "/tmp/subs.db", cfg.Database.Path)
	require.Equal(t, ":8080", cfg.HTTP.Addr)
	require.Equal(t, "123:abc", cfg.Telegram.Token)
	require.Equal(t, "MyPriceBot", cfg.Telegram.Username)
	require.Equal(t, 15*time.Second, cfg.Scheduler.Tick)
}

func TestLoadConfig_FileThenEnvThenFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: buntdb
  path: from-file.db
defaults:
  coin: eth
  interval_minutes: 15
log:
  level: debug
`), 0644))

	t.Setenv("LOG_LEVEL", "warn")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("database.path", "", "")
	require.NoError(t, flags.Parse([]string{"--database.path=from-flag.db"}))

	cfg, err := LoadConfig(path, flags)
	require.NoError(t, err)

	require.Equal(t, "ETH", cfg.Defaults.Coin)
	require.Equal(t, 15, cfg.Defaults.IntervalMinutes)
	require.Equal(t, "warn", cfg.Log.Level)
	require.Equal(t, "from-flag.db", cfg.Database.Path)
}

func TestLoadConfig_Validation(t *testing.T) {
	t.Run("postgres without url", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		_, err := LoadConfig("", nil)
		require.ErrorContains(t, err, "database.url")
	})

	t.Run("polling without token", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/prices")
		t.Setenv("TELEGRAM_MODE", "polling")
		_, err := LoadConfig("", nil)
		require.ErrorContains(t, err, "telegram.token")
	})

	t.Run("unknown driver", func(t *testing.T) {
		t.Setenv("DATABASE_DRIVER", "mysql")
		_, err := LoadConfig("", nil)
		require.ErrorContains(t, err, "database.driver")
	})

	t.Run("missing explicit file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), nil)
		require.Error(t, err)
	})
}

func TestTelegramConfig_AdminUserID(t *testing.T) {
	require.Equal(t, int64(123456), TelegramConfig{AdminID: " 123456 "}.AdminUserID())
	require.Zero(t, TelegramConfig{}.AdminUserID())

	t.Setenv("DATABASE_DRIVER", "buntdb")
	t.Setenv("TELEGRAM_ADMIN_ID", "alice")
	_, err := LoadConfig("", nil)
	require.ErrorContains(t, err, "telegram.admin_id")
}
