package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ledgermatch/ledgermatch/internal/cli"
	"github.com/ledgermatch/ledgermatch/internal/ingest"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [file...]",
		Short: "Import bank transactions from CSV feeds",
		Long: `Import corporate-card transactions from CSV feed exports.

The header row names the columns; date, description, and amount are
required. Re-importing a file is safe: duplicates are skipped by
content hash.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImport,
	}

	cmd.Flags().String("source", "", "card/account name recorded on rows without a source column")
	_ = viper.BindPFlag("import.source", cmd.Flags().Lookup("source"))

	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	source := viper.GetString("import.source")
	if source == "" {
		source = "corporate-card"
	}
	importer := ingest.NewCSVImporter(store, source)

	for _, path := range args {
		file, openErr := os.Open(path)
		if openErr != nil {
			return fmt.Errorf("failed to open %s: %w", path, openErr)
		}

		result, impErr := importer.Import(ctx, file)
		_ = file.Close()
		if impErr != nil {
			return fmt.Errorf("import of %s failed: %w", path, impErr)
		}

		fmt.Println(cli.SuccessStyle.Render(fmt.Sprintf(
			"✓ %s: %d imported, %d duplicates skipped", path, result.Created, result.Skipped)))
		for _, failure := range result.Failures {
			fmt.Println(cli.WarningStyle.Render(fmt.Sprintf(
				"  line %d skipped: %v", failure.Line, failure.Err)))
		}
	}

	return nil
}
