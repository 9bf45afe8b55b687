package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/chrissnell/thermoffset/internal/dataset"
	"github.com/chrissnell/thermoffset/internal/log"
	"github.com/chrissnell/thermoffset/internal/types"
	"github.com/chrissnell/thermoffset/pkg/migrate"
)

func NewDBCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "db",
		Short:   "Manage the dataset schema",
		GroupID: gDataset,
		Long: `Manage the schema of the dataset database.

The schema is brought up to date automatically whenever the dataset is
opened. These commands inspect it or move it to a specific version.`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(func(m *migrate.Migrator) error {
					if err := m.MigrateUp(); err != nil {
						return fmt.Errorf("migration command failed: %w", err)
					}
					cmd.Println("Migration completed successfully")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "to [version]",
			Short: "Migrate up or down to a specific version",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				target, err := strconv.Atoi(args[0])
				if err != nil || target < 0 {
					return fmt.Errorf("%w: invalid target version %q", types.ErrConfig, args[0])
				}
				return withMigrator(func(m *migrate.Migrator) error {
					if err := m.MigrateTo(target); err != nil {
						return fmt.Errorf("migration command failed: %w", err)
					}
					cmd.Println("Migration completed successfully")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the schema version and pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(func(m *migrate.Migrator) error {
					return showStatus(cmd, m)
				})
			},
		},
	)

	return cmd
}

// withMigrator connects to the configured dataset without migrating it and
// runs fn with a migrator over the embedded schema
func withMigrator(fn func(*migrate.Migrator) error) error {
	provider, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer provider.Close()

	db, err := dataset.Connect(cfg.Dataset.Driver, cfg.Dataset.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(dataset.NewMigrator(db, cfg.Dataset.Driver, log.Named("migrate")))
}

func showStatus(cmd *cobra.Command, migrator *migrate.Migrator) error {
	currentVersion, err := migrator.GetCurrentVersion()
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	pending, err := migrator.GetPendingMigrations()
	if err != nil {
		return fmt.Errorf("failed to get pending migrations: %w", err)
	}

	cmd.Printf("Current version: %d\n", currentVersion)
	cmd.Printf("Pending migrations: %d\n", len(pending))

	if len(pending) > 0 {
		cmd.Println("\nPending migrations:")
		for _, migration := range pending {
			cmd.Printf("  %d: %s\n", migration.Version, migration.Name)
		}
	}

	return nil
}
