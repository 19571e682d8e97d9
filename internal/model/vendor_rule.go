package model

import "time"

// VendorRuleSource indicates how a vendor rule was created.
type VendorRuleSource string

const (
	// RuleSourceManual indicates the rule was created via CLI or review action.
	RuleSourceManual VendorRuleSource = "MANUAL"
	// RuleSourceLearned indicates the rule was derived from a human correction.
	RuleSourceLearned VendorRuleSource = "LEARNED"
)

// VendorRule is a learned default category and jurisdiction keyed by a
// lower-cased vendor-name pattern. Lookup is substring containment,
// first match wins; patterns are unique and updates are upserts.
type VendorRule struct {
	LastMatched         *time.Time
	Pattern             string // lower-cased substring token
	DefaultCategory     string
	DefaultJurisdiction string // empty means "any": the rule cannot resolve a jurisdiction
	Source              VendorRuleSource
	Confidence          int // 0-100 weight applied when this rule decides jurisdiction
	UseCount            int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
