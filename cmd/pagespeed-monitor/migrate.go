package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dreschagin/pagespeed-monitor/internal/infrastructure/persistence/postgres"
	"github.com/dreschagin/pagespeed-monitor/internal/infrastructure/persistence/sqlite"
	"github.com/dreschagin/pagespeed-monitor/pkg/config"
)

func newMigrateCommand() *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			direction := postgres.DirectionUp
			if down {
				direction = postgres.DirectionDown
			}
			return runMigrate(cmd.Context(), direction)
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll every migration back instead of applying")
	return cmd
}

func runMigrate(ctx context.Context, direction postgres.Direction) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}

	switch cfg.Database.Driver {
	case config.StoreDriverPostgres:
		db, err := openPostgres(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := postgres.Migrate(db, direction); err != nil {
			log.Error("Migration failed", err, "direction", string(direction))
			return err
		}
		log.Info("Migrations applied", "direction", string(direction))
		return nil

	case config.StoreDriverSQLite:
		// SQLite создает схему при открытии
		store, err := sqlite.New(ctx, cfg.Database.SQLitePath)
		if err != nil {
			return err
		}
		log.Info("SQLite schema is up to date", "path", cfg.Database.SQLitePath)
		return store.Close()

	default:
		return fmt.Errorf("migrations are not managed for STORE_DRIVER=%s", cfg.Database.Driver)
	}
}
