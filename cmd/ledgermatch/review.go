package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ledgermatch/ledgermatch/internal/cli"
	"github.com/ledgermatch/ledgermatch/internal/common"
	"github.com/ledgermatch/ledgermatch/internal/learning"
	"github.com/ledgermatch/ledgermatch/internal/matcher"
	"github.com/ledgermatch/ledgermatch/internal/model"
	"github.com/ledgermatch/ledgermatch/internal/review"
)

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "List and adjudicate review queue items",
	}

	cmd.AddCommand(reviewListCmd())
	cmd.AddCommand(reviewActCmd())

	return cmd
}

func reviewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the review queue in adjudication order",
		RunE:  runReviewList,
	}

	cmd.Flags().String("type", "all", "only show one item type (all, processing_error, flagged, orphan, low_confidence, reimbursement)")

	return cmd
}

func runReviewList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	rawFilter, _ := cmd.Flags().GetString("type")
	filter, err := review.ParseItemFilter(rawFilter)
	if err != nil {
		return err
	}

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	policy := matcher.PolicyFromConfig(viper.GetViper())
	queue := review.NewQueue(store, policy.AmountTolerance, policy.DateToleranceDays)

	items, err := queue.Items(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to load review queue: %w", err)
	}
	if len(items) == 0 {
		fmt.Println(cli.SuccessStyle.Render("Review queue is empty."))
		return nil
	}

	fmt.Println(cli.TitleStyle.Render(fmt.Sprintf("Review queue (%d items)", len(items))))
	for _, item := range items {
		header := fmt.Sprintf("[%s] %s  %s  %s",
			item.Type,
			item.Date.Format("2006-01-02"),
			cli.AmountStyle.Render("$"+item.Amount.StringFixed(2)),
			item.Description)
		if item.Priority == review.Priority(model.ItemProcessingError) {
			fmt.Println(cli.PriorityStyle.Render(header))
		} else {
			fmt.Println(cli.BoldStyle.Render(header))
		}
		fmt.Println(cli.SubtleStyle.Render(fmt.Sprintf(
			"    id=%s  category=%s  jurisdiction=%s  confidence=%d",
			item.SourceID, item.Category, item.Jurisdiction, item.Confidence)))
		fmt.Println(cli.SubtleStyle.Render("    " + item.Reason))
		if len(item.Alternates) > 0 {
			fmt.Println(cli.SubtleStyle.Render(fmt.Sprintf("    alternates: %v", item.Alternates)))
		}
		fmt.Println(cli.SubtleStyle.Render(fmt.Sprintf("    actions: %v", item.Actions)))
	}

	return nil
}

func reviewActCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "act <item-type> <action> <id>",
		Short: "Apply an adjudication action to a review item",
		Long: `Apply one action to one review item. Actions are idempotent: applying
a decision the item already reached reports a no-op instead of failing
or posting twice.`,
		Args: cobra.ExactArgs(3),
		RunE: runReviewAct,
	}

	cmd.Flags().String("category", "", "corrected category")
	cmd.Flags().String("jurisdiction", "", "corrected jurisdiction code")
	cmd.Flags().String("txn", "", "corrected bank transaction id")
	cmd.Flags().String("amount", "", "corrected amount")
	cmd.Flags().String("date", "", "corrected date (YYYY-MM-DD)")
	cmd.Flags().String("method", "", "reimbursement method (reimburse action)")
	cmd.Flags().Bool("create-rule", false, "also create a vendor rule from this correction")
	cmd.Flags().Bool("dry-run", false, "record postings in memory instead of calling the ledger")

	return cmd
}

func runReviewAct(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	itemType := model.ReviewItemType(args[0])
	action := model.ReviewAction(args[1])
	sourceID := args[2]

	overrides, err := overridesFromFlags(cmd)
	if err != nil {
		return err
	}

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	poster, err := initPoster(ctx, dryRun)
	if err != nil {
		return fmt.Errorf("failed to initialize ledger client: %w", err)
	}

	adjudicator := review.NewAdjudicator(store, poster, learning.NewLogger(store))
	result, err := adjudicator.Apply(ctx, itemType, action, sourceID, overrides)
	if err != nil {
		if errors.Is(err, review.ErrInvalidAction) {
			return common.NewUserError(
				fmt.Sprintf("cannot apply %q to %s %s", action, itemType, sourceID), err)
		}
		return err
	}

	switch {
	case result.NoOp:
		fmt.Println(cli.SubtleStyle.Render("No change: " + result.Message))
	case result.Success:
		fmt.Println(cli.SuccessStyle.Render("✓ " + result.Message))
	}

	return nil
}

func overridesFromFlags(cmd *cobra.Command) (model.ActionOverrides, error) {
	var overrides model.ActionOverrides

	overrides.Category, _ = cmd.Flags().GetString("category")
	overrides.Jurisdiction, _ = cmd.Flags().GetString("jurisdiction")
	overrides.BankTxnID, _ = cmd.Flags().GetString("txn")
	overrides.ReimburseMethod, _ = cmd.Flags().GetString("method")
	overrides.CreateVendorRule, _ = cmd.Flags().GetBool("create-rule")

	if raw, _ := cmd.Flags().GetString("amount"); raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return overrides, fmt.Errorf("invalid amount %q: %w", raw, err)
		}
		overrides.Amount = &amount
	}
	if raw, _ := cmd.Flags().GetString("date"); raw != "" {
		date, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return overrides, fmt.Errorf("invalid date %q: %w", raw, err)
		}
		overrides.Date = &date
	}

	return overrides, nil
}
