package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReviewItemType tags the underlying source of a review queue entry.
type ReviewItemType string

// Review item types. Each maps to a different source table and carries
// its own set of allowed actions.
const (
	ItemProcessingError ReviewItemType = "processing_error"
	ItemFlagged         ReviewItemType = "flagged"
	ItemOrphan          ReviewItemType = "orphan"
	ItemLowConfidence   ReviewItemType = "low_confidence"
	ItemReimbursement   ReviewItemType = "reimbursement"
)

// ReviewAction is a human decision applied to a review item.
type ReviewAction string

// Review actions.
const (
	ActionApprove           ReviewAction = "approve"
	ActionCorrectAndApprove ReviewAction = "correct_and_approve"
	ActionReject            ReviewAction = "reject"
	ActionReimburse         ReviewAction = "reimburse"
	ActionExclude           ReviewAction = "exclude"
	ActionRetry             ReviewAction = "retry"
	ActionResolve           ReviewAction = "resolve"
	ActionIgnore            ReviewAction = "ignore"
	ActionResubmit          ReviewAction = "resubmit"
	ActionCreateVendorRule  ReviewAction = "create_vendor_rule"
)

// ReviewItem is a normalized read view over the heterogeneous records that
// need human attention. Items are materialized on query and never stored;
// SourceID points back at the owning row.
type ReviewItem struct {
	Date         time.Time
	CreatedAt    time.Time
	Type         ReviewItemType
	SourceID     string // submission id, transaction id, or processing-error id
	Vendor       string
	Description  string
	Category     string // predicted, pre-filled for the reviewer
	Jurisdiction string
	Reason       string
	Actions      []ReviewAction
	Alternates   []string // alternate candidate transaction ids, flagged items only
	Amount       decimal.Decimal
	Priority     int // lower sorts first
	Confidence   int
}

// ActionOverrides carries the human-supplied values for corrective actions.
type ActionOverrides struct {
	Category         string
	Jurisdiction     string
	BankTxnID        string
	Amount           *decimal.Decimal
	Date             *time.Time
	ReimburseMethod  string
	CreateVendorRule bool
}

// ActionResult is the structured outcome returned to the action caller.
type ActionResult struct {
	Message  string
	PostedID string
	Success  bool
	NoOp     bool // the item was already in the requested terminal state
}
