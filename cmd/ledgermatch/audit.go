package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ledgermatch/ledgermatch/internal/cli"
	"github.com/ledgermatch/ledgermatch/internal/ledger"
)

func auditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Reconcile ledger postings against local state",
		Long: `Compare every posting this system created in the ledger with the
local record it belongs to, in both directions. Surfaces the crash
window between a ledger post and the local mark.`,
		RunE: runAudit,
	}
}

func runAudit(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	poster, err := initPoster(ctx, false)
	if err != nil {
		return fmt.Errorf("failed to initialize ledger client: %w", err)
	}

	report, err := ledger.NewAuditor(store, poster).Run(ctx)
	if err != nil {
		return fmt.Errorf("audit failed: %w", err)
	}

	if report.Clean() {
		fmt.Println(cli.SuccessStyle.Render("✓ ledger and local state agree"))
		return nil
	}

	if len(report.PostedNotMarked) > 0 {
		fmt.Println(cli.ErrorStyle.Render(fmt.Sprintf(
			"Posted to ledger but not marked locally (%d):", len(report.PostedNotMarked))))
		for _, f := range report.PostedNotMarked {
			fmt.Printf("  %s (%s): %s\n", f.IdempotencyKey, f.LocalID, f.Detail)
		}
	}
	if len(report.MarkedNotPosted) > 0 {
		fmt.Println(cli.ErrorStyle.Render(fmt.Sprintf(
			"Marked locally but missing from ledger (%d):", len(report.MarkedNotPosted))))
		for _, f := range report.MarkedNotPosted {
			fmt.Printf("  %s (%s): %s\n", f.IdempotencyKey, f.LocalID, f.Detail)
		}
	}

	return fmt.Errorf("audit found %d discrepancies",
		len(report.PostedNotMarked)+len(report.MarkedNotPosted))
}
