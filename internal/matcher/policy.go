// Package matcher pairs expense submissions with imported bank
// transactions and decides auto-post versus human review.
package matcher

import (
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// ScorePolicy holds the tunable weights of the confidence score. A match
// starts at 100 and each deviation subtracts its penalty; the result is
// clamped to [0, 100].
type ScorePolicy struct {
	AmountTolerance        decimal.Decimal // candidate window half-width
	DateToleranceDays      int             // candidate window half-width in days
	AmountMismatchPenalty  int             // amounts differ within tolerance
	DateDistancePenalty    int             // per day between submission and transaction
	VenuePenalty           int             // jurisdiction came from the venue calendar
	VendorRulePenalty      int             // jurisdiction came from a vendor rule
	MissingCategoryPenalty int             // submission has no category and no rule supplied one
	AutoApproveThreshold   int             // score at or above this auto-posts
	HomeJurisdiction       string          // resolution of the "Other" tag
}

// DefaultPolicy returns the weights used when no configuration overrides them.
func DefaultPolicy() ScorePolicy {
	return ScorePolicy{
		AmountTolerance:        decimal.NewFromInt(1),
		DateToleranceDays:      3,
		AmountMismatchPenalty:  15,
		DateDistancePenalty:    5,
		VenuePenalty:           5,
		VendorRulePenalty:      10,
		MissingCategoryPenalty: 10,
		AutoApproveThreshold:   95,
		HomeJurisdiction:       "NC",
	}
}

// PolicyFromConfig reads the matcher.* configuration keys, falling back
// to the defaults for any key not set.
func PolicyFromConfig(v *viper.Viper) ScorePolicy {
	p := DefaultPolicy()

	if v.IsSet("matcher.amount_tolerance") {
		p.AmountTolerance = decimal.NewFromFloat(v.GetFloat64("matcher.amount_tolerance"))
	}
	if v.IsSet("matcher.date_tolerance_days") {
		p.DateToleranceDays = v.GetInt("matcher.date_tolerance_days")
	}
	if v.IsSet("matcher.amount_mismatch_penalty") {
		p.AmountMismatchPenalty = v.GetInt("matcher.amount_mismatch_penalty")
	}
	if v.IsSet("matcher.date_distance_penalty") {
		p.DateDistancePenalty = v.GetInt("matcher.date_distance_penalty")
	}
	if v.IsSet("matcher.venue_penalty") {
		p.VenuePenalty = v.GetInt("matcher.venue_penalty")
	}
	if v.IsSet("matcher.vendor_rule_penalty") {
		p.VendorRulePenalty = v.GetInt("matcher.vendor_rule_penalty")
	}
	if v.IsSet("matcher.missing_category_penalty") {
		p.MissingCategoryPenalty = v.GetInt("matcher.missing_category_penalty")
	}
	if v.IsSet("matcher.auto_approve_threshold") {
		p.AutoApproveThreshold = v.GetInt("matcher.auto_approve_threshold")
	}
	if v.IsSet("matcher.home_jurisdiction") {
		p.HomeJurisdiction = v.GetString("matcher.home_jurisdiction")
	}

	return p
}
