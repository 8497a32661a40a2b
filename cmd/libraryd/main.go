package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bookstore/services/library/internal/config"
	"github.com/bookstore/services/library/internal/db"
	"github.com/bookstore/services/library/pkg/logger"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "libraryd",
		Short:         "Library service: catalog, members and book loans",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newCreateAdminCommand(),
	)
	return root
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			log := logger.NewLogger(cfg.ServiceName, cfg.LogLevel)
			defer log.Sync()

			database, err := openDatabase(cfg, log)
			if err != nil {
				return err
			}
			defer database.Close()

			log.Info("Migrations complete")
			return nil
		},
	}
}

// openDatabase connects and migrates.
func openDatabase(cfg *config.Config, log *zap.Logger) (*db.DB, error) {
	log.Info("Connecting to database...")
	database, err := db.Connect(cfg.PGDSN, log)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	log.Info("Running database migrations...")
	if err := db.RunMigrations(database); err != nil {
		database.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return database, nil
}
