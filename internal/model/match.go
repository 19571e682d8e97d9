package model

import "time"

// MatchType records how a bank transaction was paired with a submission.
type MatchType string

// Match type constants, from strongest to weakest.
const (
	MatchExact      MatchType = "exact"
	MatchAmountDate MatchType = "amount_date"
	MatchAmountOnly MatchType = "amount_only"
	MatchHuman      MatchType = "human_approved"
	MatchNone       MatchType = ""
)

// JurisdictionSource identifies which tier of the attribution waterfall
// produced the jurisdiction decision.
type JurisdictionSource string

// Waterfall tiers in strict priority order, plus the human override.
const (
	SourceExplicitTag JurisdictionSource = "explicit_tag"
	SourceVenueEvent  JurisdictionSource = "venue_event"
	SourceVendorRule  JurisdictionSource = "vendor_rule"
	SourceUnknown     JurisdictionSource = "unknown"
	SourceHuman       JurisdictionSource = "human"
)

// MatchResult is the matcher's output for a single submission. It is
// persisted as fields on the Submission rather than as its own row, but
// flows through the code as one value.
type MatchResult struct {
	DecidedAt          time.Time
	BankTxnID          string // empty when no candidate was found
	MatchType          MatchType
	Jurisdiction       string
	JurisdictionSource JurisdictionSource
	Category           string
	Confidence         int // 0-100
	AutoApproved       bool
}
