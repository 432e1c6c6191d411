package commands

// Root command for Cobra CLI
// Registers serve, trigger, migrate and webhook

import (
	"fmt"

	"price-bot/internal/infra/config"
	logging "price-bot/internal/infra/log"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "price-bot",
	Short: "Crypto price bot - periodic coin price updates for Telegram chats and channels",
	Long: `price-bot posts CoinGecko price updates to Telegram chats on a per-user interval.
Users subscribe with /start and tune coin, interval and target channel with /setup.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file (default ./config.yaml)")
	// flag names are config keys so viper can bind them directly
	pf.String("log.level", "", "log level: debug, info, warn, error")
	pf.String("log.dir", "", "directory for app.log")
	pf.String("database.driver", "", "storage driver: postgres or buntdb")
	pf.String("database.url", "", "PostgreSQL connection string")
	pf.String("database.path", "", "BuntDB file path")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(triggerCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(webhookCmd)
}

// loadConfig reads configuration for cmd and starts file logging.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(configFile, cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := logging.Init(cfg.Log.Dir, cfg.Log.Level); err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}
	return cfg, nil
}
