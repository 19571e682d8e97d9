package main

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ledgermatch/ledgermatch/internal/cli"
	"github.com/ledgermatch/ledgermatch/internal/model"
)

func matchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match pending submissions against bank transactions",
		Long: `Run every pending submission through candidate search, jurisdiction
attribution, and confidence scoring. Confident matches post to the
ledger; everything else lands in the review queue.`,
		RunE: runMatch,
	}

	cmd.Flags().Bool("dry-run", false, "record postings in memory instead of calling the ledger")

	return cmd
}

func runMatch(cmd *cobra.Command, _ []string) error {
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

	engine := initMatcher(store, poster)

	pending, err := store.GetSubmissionsByStatus(ctx, model.SubmissionPending)
	if err != nil {
		return fmt.Errorf("failed to list pending submissions: %w", err)
	}
	if len(pending) == 0 {
		fmt.Println(cli.SubtleStyle.Render("Nothing to match."))
		return nil
	}

	bar := progressbar.NewOptions(len(pending),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Matching submissions..."),
	)

	var autoPosted, flagged, errCount int
	for i := range pending {
		result, procErr := engine.ProcessSubmission(ctx, pending[i].ID)
		_ = bar.Add(1)
		switch {
		case procErr != nil:
			errCount++
		case result.AutoApproved:
			autoPosted++
		default:
			flagged++
		}
	}
	fmt.Fprintln(os.Stderr)

	fmt.Println(cli.TitleStyle.Render("Match run complete"))
	fmt.Println(cli.SuccessStyle.Render(fmt.Sprintf("  auto-posted: %d", autoPosted)))
	fmt.Println(cli.WarningStyle.Render(fmt.Sprintf("  sent to review: %d", flagged)))
	if errCount > 0 {
		fmt.Println(cli.ErrorStyle.Render(fmt.Sprintf("  errors (will retry): %d", errCount)))
	}
	if dryRun {
		fmt.Println(cli.SubtleStyle.Render("  dry run: no ledger postings were made"))
	}

	return nil
}
