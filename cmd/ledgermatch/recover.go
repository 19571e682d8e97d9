package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ledgermatch/ledgermatch/internal/cli"
	"github.com/ledgermatch/ledgermatch/internal/recovery"
)

func recoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Recover submissions stranded by a crashed run",
		Long: `Find submissions stuck in the processing state and either requeue
them for matching or, after repeated failures, flag them for review.`,
		RunE: runRecover,
	}

	cmd.Flags().Duration("stuck-after", time.Hour, "how long a submission may sit in processing")

	return cmd
}

func runRecover(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	stuckAfter, _ := cmd.Flags().GetDuration("stuck-after")

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	summary, err := recovery.New(store, stuckAfter).Run(ctx)
	if err != nil {
		return fmt.Errorf("recovery failed: %w", err)
	}

	if summary.Requeued == 0 && summary.Flagged == 0 {
		fmt.Println(cli.SuccessStyle.Render("✓ no stranded submissions"))
		return nil
	}
	fmt.Println(cli.SuccessStyle.Render(fmt.Sprintf("  requeued: %d", summary.Requeued)))
	fmt.Println(cli.WarningStyle.Render(fmt.Sprintf("  flagged for review: %d", summary.Flagged)))
	return nil
}
