package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ledgermatch/ledgermatch/internal/cli"
	"github.com/ledgermatch/ledgermatch/internal/config"
	"github.com/ledgermatch/ledgermatch/internal/storage"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE:  runMigrate,
	}

	cmd.Flags().Bool("status", false, "print the current schema version without migrating")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	statusOnly, _ := cmd.Flags().GetBool("status")

	dbPath := viper.GetString("db.path")
	if dbPath == "" {
		dbPath = "$HOME/.local/share/ledgermatch/ledgermatch.db"
	}
	store, err := storage.NewSQLiteStorage(config.ExpandPath(dbPath))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	if statusOnly {
		version, verErr := store.SchemaVersion(ctx)
		if verErr != nil {
			return verErr
		}
		fmt.Printf("schema version %d (latest %d)\n", version, storage.ExpectedSchemaVersion)
		return nil
	}

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	fmt.Println(cli.SuccessStyle.Render("✓ database is up to date"))
	return nil
}
