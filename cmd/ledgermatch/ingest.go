package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ledgermatch/ledgermatch/internal/cli"
	"github.com/ledgermatch/ledgermatch/internal/ingest"
)

func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [report.json...]",
		Short: "Ingest expense report exports",
		Long: `Ingest expense report exports from the external expense system.

Ingest is idempotent on the external submission id: re-loading an
amended report only adds the new line items.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runIngest,
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	importer := ingest.NewReportImporter(store)

	for _, path := range args {
		file, openErr := os.Open(path)
		if openErr != nil {
			return fmt.Errorf("failed to open %s: %w", path, openErr)
		}

		result, impErr := importer.Import(ctx, file)
		_ = file.Close()
		if impErr != nil {
			return fmt.Errorf("ingest of %s failed: %w", path, impErr)
		}

		fmt.Println(cli.SuccessStyle.Render(fmt.Sprintf(
			"✓ report %s: %d submissions ingested, %d already known",
			result.ReportID, result.Created, result.Skipped)))
		for _, failure := range result.Failures {
			fmt.Println(cli.WarningStyle.Render(fmt.Sprintf(
				"  submission %d skipped: %v", failure.Line, failure.Err)))
		}
	}

	return nil
}
