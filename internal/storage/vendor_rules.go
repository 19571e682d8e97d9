package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ledgermatch/ledgermatch/internal/common"
	"github.com/ledgermatch/ledgermatch/internal/model"
)

const vendorRuleColumns = `pattern, default_category, default_jurisdiction,
	source, confidence, use_count, last_matched, created_at, updated_at`

// FindVendorRule returns the first rule whose pattern is contained in the
// lower-cased vendor text. Rules are scanned in insertion order; the
// first containment match wins regardless of pattern length.
func (s *SQLiteStorage) FindVendorRule(ctx context.Context, vendorText string) (*model.VendorRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if strings.TrimSpace(vendorText) == "" {
		return nil, common.ErrNotFound
	}

	rules, err := s.GetAllVendorRules(ctx)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(vendorText)
	for i := range rules {
		if strings.Contains(needle, rules[i].Pattern) {
			return &rules[i], nil
		}
	}
	return nil, common.ErrNotFound
}

// SaveVendorRule upserts a rule keyed by pattern. The pattern is
// lower-cased before storage so lookups never need case folding twice.
func (s *SQLiteStorage) SaveVendorRule(ctx context.Context, rule *model.VendorRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateVendorRule(rule); err != nil {
		return err
	}

	if rule.Source == "" {
		rule.Source = model.RuleSourceManual
	}
	rule.Pattern = strings.ToLower(strings.TrimSpace(rule.Pattern))

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vendor_rules (pattern, default_category, default_jurisdiction, source, confidence)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(pattern) DO UPDATE SET
			default_category = excluded.default_category,
			default_jurisdiction = excluded.default_jurisdiction,
			source = excluded.source,
			confidence = excluded.confidence,
			updated_at = CURRENT_TIMESTAMP
	`, rule.Pattern, rule.DefaultCategory, rule.DefaultJurisdiction, string(rule.Source), rule.Confidence)
	if err != nil {
		return fmt.Errorf("failed to save vendor rule: %w", err)
	}
	return nil
}

// GetAllVendorRules returns every rule in insertion order.
func (s *SQLiteStorage) GetAllVendorRules(ctx context.Context) ([]model.VendorRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+vendorRuleColumns+` FROM vendor_rules ORDER BY created_at ASC, pattern ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query vendor rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.VendorRule
	for rows.Next() {
		rule, scanErr := scanVendorRule(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan vendor rule: %w", scanErr)
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// DeleteVendorRule removes a rule by pattern.
func (s *SQLiteStorage) DeleteVendorRule(ctx context.Context, pattern string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(pattern, "pattern"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM vendor_rules WHERE pattern = ?`, strings.ToLower(pattern))
	if err != nil {
		return fmt.Errorf("failed to delete vendor rule: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// TouchVendorRule bumps the usage counter when a rule decides an outcome.
func (s *SQLiteStorage) TouchVendorRule(ctx context.Context, pattern string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(pattern, "pattern"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE vendor_rules
		SET use_count = use_count + 1, last_matched = ?, updated_at = CURRENT_TIMESTAMP
		WHERE pattern = ?
	`, time.Now().UTC(), strings.ToLower(pattern))
	if err != nil {
		return fmt.Errorf("failed to touch vendor rule: %w", err)
	}
	return nil
}

func scanVendorRule(row rowScanner) (*model.VendorRule, error) {
	var rule model.VendorRule
	var source string
	var lastMatched sql.NullTime

	err := row.Scan(
		&rule.Pattern,
		&rule.DefaultCategory,
		&rule.DefaultJurisdiction,
		&source,
		&rule.Confidence,
		&rule.UseCount,
		&lastMatched,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.Source = model.VendorRuleSource(source)
	if lastMatched.Valid {
		t := lastMatched.Time
		rule.LastMatched = &t
	}
	return &rule, nil
}
