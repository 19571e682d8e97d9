package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ledgermatch/ledgermatch/internal/cli"
	"github.com/ledgermatch/ledgermatch/internal/orphan"
)

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Resolve aged unmatched bank transactions",
		Long: `Find bank transactions older than the grace period that no submission
claimed. Transactions a vendor rule can fully categorize post directly;
the rest queue for review.`,
		RunE: runSweep,
	}

	cmd.Flags().Bool("dry-run", false, "record postings in memory instead of calling the ledger")

	return cmd
}

func runSweep(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	poster, err := initPoster(ctx, dryRun)
	if err != nil {
		return fmt.Errorf("failed to initialize ledger client: %w", err)
	}

	sweeper := orphan.FromConfig(store, poster, viper.GetViper())
	summary, err := sweeper.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	fmt.Println(cli.TitleStyle.Render("Orphan sweep complete"))
	fmt.Printf("  examined: %d\n", summary.Examined)
	fmt.Println(cli.SuccessStyle.Render(fmt.Sprintf("  posted: %d", summary.Posted)))
	fmt.Println(cli.WarningStyle.Render(fmt.Sprintf("  queued for review: %d", summary.Queued)))
	if summary.Errors > 0 {
		fmt.Println(cli.ErrorStyle.Render(fmt.Sprintf("  errors: %d", summary.Errors)))
	}

	return nil
}
