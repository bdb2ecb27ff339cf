package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/booking-engine/internal/config"
	"github.com/jwalitptl/booking-engine/internal/repository/postgres"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(
		migrateAction("up", "Apply all pending migrations", func(ctx context.Context, m *postgres.Migrator) error {
			return m.Up(ctx)
		}),
		migrateAction("down", "Roll back the latest migration", func(ctx context.Context, m *postgres.Migrator) error {
			return m.Down(ctx)
		}),
		migrateAction("status", "Print the current schema version", func(ctx context.Context, m *postgres.Migrator) error {
			version, err := m.Version(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("schema version: %d\n", version)
			return nil
		}),
	)
	return cmd
}

func migrateAction(use, short string, run func(ctx context.Context, m *postgres.Migrator) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			db, err := postgres.NewDB(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			m, err := postgres.NewMigrator(db.DB)
			if err != nil {
				return err
			}
			return run(ctx, m)
		},
	}
}
