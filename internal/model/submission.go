// Package model defines the core domain types shared across the application.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SubmissionStatus indicates how far an expense submission has progressed.
type SubmissionStatus string

// Submission status constants.
const (
	SubmissionPending        SubmissionStatus = "pending"
	SubmissionProcessing     SubmissionStatus = "processing"
	SubmissionMatchedHigh    SubmissionStatus = "matched_high_confidence"
	SubmissionFlagged        SubmissionStatus = "flagged"
	SubmissionPosted         SubmissionStatus = "posted"
	SubmissionRejected       SubmissionStatus = "rejected"
	SubmissionCorrected      SubmissionStatus = "corrected"
)

// Posted reports whether the submission reached the ledger, with or
// without human corrections.
func (s SubmissionStatus) Posted() bool {
	return s == SubmissionPosted || s == SubmissionCorrected
}

// FlagKind distinguishes why a submission landed in the review queue.
type FlagKind string

// Flag kind constants.
const (
	FlagLowConfidence FlagKind = "low_confidence"
	FlagReimbursement FlagKind = "reimbursement"
	FlagAnomaly       FlagKind = "anomaly"
)

// Submission is one claimed expense line item from the external
// expense-report system. Immutable once ingested except for the status,
// match-result, and correction fields written during processing.
type Submission struct {
	Date              time.Time
	ProcessedAt       *time.Time
	ID                string
	ExternalID        string // expense id in the external system, dedupe key
	ReportID          string
	Vendor            string
	Category          string
	Submitter         string
	PaidThrough       string // card/account the submitter claims paid
	JurisdictionTag   string // free-text tag from the external system
	ReceiptRef        string
	Status            SubmissionStatus
	FlagKind          FlagKind
	FlagReason        string
	LastError         string
	Amount            decimal.Decimal
	OriginalAmount    *decimal.Decimal // preserved when receipt validation corrects Amount
	ReceiptAmount     *decimal.Decimal // amount extracted from the receipt, if any
	ReceiptConfidence int              // extraction confidence 0-100
	Attempts          int

	// Match result, also the pre-filled suggestion while flagged.
	BankTxnID          string
	MatchConfidence    int
	MatchType          MatchType
	Jurisdiction       string
	JurisdictionSource JurisdictionSource
	PostedID           string
	ReimburseMethod    string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AuthoritativeAmount returns the amount matching should use. The receipt
// correction step rewrites Amount in place, so this is Amount; the original
// survives in OriginalAmount for audit.
func (s *Submission) AuthoritativeAmount() decimal.Decimal {
	return s.Amount
}
