package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ledgermatch/ledgermatch/internal/cli"
	"github.com/ledgermatch/ledgermatch/internal/model"
)

func vendorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vendors",
		Short: "Manage vendor rules",
	}

	cmd.AddCommand(vendorsListCmd())
	cmd.AddCommand(vendorsAddCmd())
	cmd.AddCommand(vendorsDeleteCmd())

	return cmd
}

func vendorsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all vendor rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer func() { _ = store.Close() }()

			rules, err := store.GetAllVendorRules(ctx)
			if err != nil {
				return fmt.Errorf("failed to list vendor rules: %w", err)
			}
			if len(rules) == 0 {
				fmt.Println(cli.SubtleStyle.Render("No vendor rules defined."))
				return nil
			}

			fmt.Println(cli.TitleStyle.Render(fmt.Sprintf("Vendor rules (%d)", len(rules))))
			for _, rule := range rules {
				jurisdiction := rule.DefaultJurisdiction
				if jurisdiction == "" {
					jurisdiction = "any"
				}
				fmt.Printf("  %-30s → %s / %s  (%s, confidence %d, used %d)\n",
					rule.Pattern, rule.DefaultCategory, jurisdiction,
					rule.Source, rule.Confidence, rule.UseCount)
			}
			return nil
		},
	}
}

func vendorsAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <pattern> <category>",
		Short: "Add or update a vendor rule",
		Long: `Add a vendor rule. The pattern is matched as a lower-cased substring
of the vendor text; patterns are unique and re-adding one updates it.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer func() { _ = store.Close() }()

			jurisdiction, _ := cmd.Flags().GetString("jurisdiction")
			confidence, _ := cmd.Flags().GetInt("confidence")

			rule := &model.VendorRule{
				Pattern:             args[0],
				DefaultCategory:     args[1],
				DefaultJurisdiction: jurisdiction,
				Source:              model.RuleSourceManual,
				Confidence:          confidence,
			}
			if err := store.SaveVendorRule(ctx, rule); err != nil {
				return fmt.Errorf("failed to save vendor rule: %w", err)
			}

			fmt.Println(cli.SuccessStyle.Render(fmt.Sprintf("✓ rule saved for %q", rule.Pattern)))
			return nil
		},
	}

	cmd.Flags().String("jurisdiction", "", "default jurisdiction code (empty means any)")
	cmd.Flags().Int("confidence", 70, "rule confidence 0-100")

	return cmd
}

func vendorsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <pattern>",
		Short: "Delete a vendor rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer func() { _ = store.Close() }()

			if err := store.DeleteVendorRule(ctx, args[0]); err != nil {
				return fmt.Errorf("failed to delete vendor rule: %w", err)
			}
			fmt.Println(cli.SuccessStyle.Render(fmt.Sprintf("✓ rule %q deleted", args[0])))
			return nil
		},
	}
}
