package matcher

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ledgermatch/ledgermatch/internal/common"
	"github.com/ledgermatch/ledgermatch/internal/model"
)

// jurisdictionDecision is the waterfall's output for one submission.
type jurisdictionDecision struct {
	Jurisdiction string // empty means unresolved
	Source       model.JurisdictionSource
	RulePattern  string // set when a vendor rule decided, for usage accounting
	RuleCategory string // the rule's default category, used as a fallback
}

// resolveJurisdiction runs the attribution waterfall in strict priority
// order: the submitter's explicit tag, then the venue calendar, then a
// vendor rule, then unresolved. Earlier tiers always win even when a
// later tier would also have an answer.
func (m *Matcher) resolveJurisdiction(ctx context.Context, sub *model.Submission, txn *model.BankTransaction) (jurisdictionDecision, error) {
	// Tier a: explicit tag on the submission.
	if code := model.NormalizeJurisdiction(sub.JurisdictionTag, m.policy.HomeJurisdiction); code != "" {
		return jurisdictionDecision{Jurisdiction: code, Source: model.SourceExplicitTag}, nil
	}

	// Tier b: venue calendar for the expense date.
	if m.events != nil {
		event, err := m.events.EventForDate(ctx, sub.Date, sub.JurisdictionTag)
		if err != nil {
			// The calendar is advisory; fall through rather than blocking
			// the match on an unreachable secondary system.
			slog.Warn("Venue calendar lookup failed, continuing waterfall",
				"submission", sub.ID, "error", err)
		} else if event != nil && event.Jurisdiction != "" {
			return jurisdictionDecision{
				Jurisdiction: event.Jurisdiction,
				Source:       model.SourceVenueEvent,
			}, nil
		}
	}

	// Tier c: learned vendor rule. Prefer the bank description's vendor,
	// falling back to the submission's claimed vendor.
	vendorText := sub.Vendor
	if txn != nil && txn.Vendor != "" {
		vendorText = txn.Vendor
	}
	if vendorText != "" {
		rule, err := m.store.FindVendorRule(ctx, vendorText)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return jurisdictionDecision{}, err
		}
		if rule != nil {
			dec := jurisdictionDecision{
				RulePattern:  rule.Pattern,
				RuleCategory: rule.DefaultCategory,
			}
			if rule.DefaultJurisdiction != "" {
				dec.Jurisdiction = rule.DefaultJurisdiction
				dec.Source = model.SourceVendorRule
				return dec, nil
			}
			// A jurisdiction-less rule still contributes its category.
			dec.Source = model.SourceUnknown
			return dec, nil
		}
	}

	// Tier d: unresolved; a human decides.
	return jurisdictionDecision{Source: model.SourceUnknown}, nil
}
