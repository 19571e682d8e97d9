package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CorrectionRecord is one append-only audit entry capturing what the
// system predicted versus what a human finally approved. It feeds the
// vendor-rule learning loop and is never read back by the matcher.
type CorrectionRecord struct {
	CreatedAt             time.Time
	ID                    string
	SubmissionID          string
	Vendor                string
	PredictedCategory     string
	FinalCategory         string
	PredictedJurisdiction string
	FinalJurisdiction     string
	PredictedTxnID        string
	FinalTxnID            string
	Source                string // "human" or "receipt"
	PredictedConfidence   int
	Amount                decimal.Decimal
}

// Corrected reports whether the human changed anything versus the prediction.
func (c *CorrectionRecord) Corrected() bool {
	return c.PredictedCategory != c.FinalCategory ||
		c.PredictedJurisdiction != c.FinalJurisdiction ||
		c.PredictedTxnID != c.FinalTxnID
}

// ProcessingErrorState is the triage state of a recorded failure.
type ProcessingErrorState string

// Processing error states.
const (
	ErrorNew           ProcessingErrorState = "new"
	ErrorInvestigating ProcessingErrorState = "investigating"
	ErrorResolved      ProcessingErrorState = "resolved"
	ErrorIgnored       ProcessingErrorState = "ignored"
)

// ProcessingError records a transient external failure (ledger timeout,
// auth expiry) so it can be retried instead of silently dropped.
type ProcessingError struct {
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ID           string
	SubmissionID string
	TxnID        string
	Stage        string // "ledger_post", "mark_matched", ...
	Message      string
	State        ProcessingErrorState
	RetryCount   int
}
