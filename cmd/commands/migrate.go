package commands

// Applies or rolls back the embedded PostgreSQL migrations

import (
	"errors"
	"fmt"

	"price-bot/internal/infra/config"
	logging "price-bot/internal/infra/log"
	"price-bot/internal/storage"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateSteps int

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply (up, default) or roll back (down) database migrations",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down"},
	RunE:      runMigrate,
}

func init() {
	migrateCmd.Flags().IntVar(&migrateSteps, "steps", 0, "number of migrations to apply or roll back (0 = all)")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Database.Driver != config.DriverPostgres {
		return fmt.Errorf("migrations apply to the %s driver only, configured driver is %s",
			config.DriverPostgres, cfg.Database.Driver)
	}

	direction := "up"
	if len(args) == 1 {
		direction = args[0]
	}

	m, err := storage.NewMigrate(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer m.Close()

	switch {
	case migrateSteps > 0 && direction == "down":
		err = m.Steps(-migrateSteps)
	case migrateSteps > 0:
		err = m.Steps(migrateSteps)
	case direction == "down":
		err = m.Down()
	default:
		err = m.Up()
	}

	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Fprintln(cmd.OutOrStdout(), "no change")
		return nil
	}
	if err != nil {
		logging.LogError("Migration failed", zap.String("direction", direction), zap.Error(err))
		return fmt.Errorf("migrate %s: %w", direction, err)
	}

	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return verr
	}
	logging.LogSuccess("Migrations applied", zap.String("direction", direction), zap.Uint("version", version))
	fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
	return nil
}
