package main

import (
	"fmt"
	"log/slog"

	"github.com/Veraticus/trial-balance-export/internal/config"
	"github.com/Veraticus/trial-balance-export/internal/storage"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

Uses Postgres when database.url (or DATABASE_URL) is set, otherwise the
local SQLite file at database.path.`,
		Args: cobra.NoArgs,
		RunE: runMigrate,
	}

	cmd.Flags().Bool("status", false, "Show current migration status without applying changes")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	status, _ := cmd.Flags().GetBool("status")

	cfg, err := config.LoadStorageConfig()
	if err != nil {
		return err
	}

	store, err := storage.Open(ctx, *cfg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	current, err := store.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if status {
		_, err = fmt.Fprintf(out, "backend: %s\ncurrent version: %d\nlatest version: %d\n",
			cfg.Backend(), current, storage.ExpectedSchemaVersion)
		return err
	}

	slog.Info("Running database migrations", "backend", cfg.Backend(), "from", current)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	_, err = fmt.Fprintf(out, "database at schema version %d\n", storage.ExpectedSchemaVersion)
	return err
}
