// Package service defines the interfaces wired between application components.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgermatch/ledgermatch/internal/model"
)

// CandidateWindow bounds the bank-transaction search for one submission.
type CandidateWindow struct {
	Amount            decimal.Decimal
	Date              time.Time
	AmountTolerance   decimal.Decimal
	DateToleranceDays int
}

// Storage defines the persistence contract for the reconciliation core.
type Storage interface {
	// Bank transaction operations.
	SaveBankTransactions(ctx context.Context, txns []model.BankTransaction) (int, error)
	GetBankTransaction(ctx context.Context, id string) (*model.BankTransaction, error)
	GetBankTransactionsByStatus(ctx context.Context, status model.BankTransactionStatus) ([]model.BankTransaction, error)
	FindCandidateTransactions(ctx context.Context, window CandidateWindow) ([]model.BankTransaction, error)
	GetOrphanCandidates(ctx context.Context, olderThan time.Time, limit int) ([]model.BankTransaction, error)

	// Status transitions. All are compare-and-set on the current status and
	// return ErrStatusConflict when another path won the race.
	ClaimBankTransaction(ctx context.Context, txnID, submissionID, matchedBy string) error
	ReleaseBankTransaction(ctx context.Context, txnID string) error
	ResolveOrphan(ctx context.Context, txnID, category, jurisdiction, method, postedID string) error
	QueueOrphanForReview(ctx context.Context, txnID, suggestedCategory, suggestedJurisdiction string) error
	ExcludeBankTransaction(ctx context.Context, txnID string) error
	SetBankTransactionPostedID(ctx context.Context, txnID, postedID string) error

	// Submission operations.
	SaveSubmission(ctx context.Context, sub *model.Submission) (bool, error)
	GetSubmission(ctx context.Context, id string) (*model.Submission, error)
	GetSubmissionByExternalID(ctx context.Context, externalID string) (*model.Submission, error)
	GetSubmissionsByStatus(ctx context.Context, status model.SubmissionStatus) ([]model.Submission, error)
	BeginSubmissionProcessing(ctx context.Context, id string) error
	ReturnSubmissionToPending(ctx context.Context, id, lastError string) error
	ApplyAmountCorrection(ctx context.Context, id string, corrected decimal.Decimal) error
	RecordMatchResult(ctx context.Context, id string, result model.MatchResult) error
	FlagSubmission(ctx context.Context, id string, kind model.FlagKind, reason string, result model.MatchResult) error
	MarkSubmissionPosted(ctx context.Context, id, postedID, reimburseMethod string) error
	MarkSubmissionCorrected(ctx context.Context, id string) error
	RejectSubmission(ctx context.Context, id string) error
	ResubmitSubmission(ctx context.Context, id string, overrides model.ActionOverrides) error
	GetStuckSubmissions(ctx context.Context, stuckSince time.Time) ([]model.Submission, error)

	// Vendor rule operations.
	FindVendorRule(ctx context.Context, vendorText string) (*model.VendorRule, error)
	SaveVendorRule(ctx context.Context, rule *model.VendorRule) error
	GetAllVendorRules(ctx context.Context) ([]model.VendorRule, error)
	DeleteVendorRule(ctx context.Context, pattern string) error
	TouchVendorRule(ctx context.Context, pattern string) error

	// Correction log (append-only).
	AppendCorrection(ctx context.Context, rec *model.CorrectionRecord) error
	GetCorrections(ctx context.Context, limit int) ([]model.CorrectionRecord, error)

	// Processing errors.
	RecordProcessingError(ctx context.Context, perr *model.ProcessingError) error
	GetProcessingError(ctx context.Context, id string) (*model.ProcessingError, error)
	GetProcessingErrorsByState(ctx context.Context, states ...model.ProcessingErrorState) ([]model.ProcessingError, error)
	UpdateProcessingErrorState(ctx context.Context, id string, state model.ProcessingErrorState) error
	IncrementProcessingErrorRetry(ctx context.Context, id string) error

	// Database management.
	Migrate(ctx context.Context) error
	Close() error
}

// PostKind selects the ledger document type.
type PostKind string

// Ledger post kinds: purchase for card spend, bill for reimbursements.
const (
	PostPurchase PostKind = "purchase"
	PostBill     PostKind = "bill"
)

// PostRequest describes one ledger posting.
type PostRequest struct {
	Date           time.Time
	Kind           PostKind
	IdempotencyKey string
	Vendor         string
	Category       string
	Jurisdiction   string
	Memo           string
	Method         string // reimbursement method, bill kind only
	Amount         decimal.Decimal
}

// PostedEntry is one ledger posting as reported back by the ledger.
type PostedEntry struct {
	IdempotencyKey string
	PostedID       string
}

// LedgerPoster posts adjudicated expenses to the accounting ledger.
// Post must be safely retryable: the ledger deduplicates on the
// idempotency key and returns the original posted id on replay.
type LedgerPoster interface {
	Post(ctx context.Context, req PostRequest) (string, error)
	PostedEntries(ctx context.Context) ([]PostedEntry, error)
}

// VenueEvent is a scheduled event with a venue jurisdiction, from the
// secondary event-tracking system.
type VenueEvent struct {
	ID           string
	Name         string
	Jurisdiction string
}

// VenueEvents looks up the recorded venue jurisdiction for an expense
// date; tier (b) of the jurisdiction waterfall. A nil event with a nil
// error means no event covered the date.
type VenueEvents interface {
	EventForDate(ctx context.Context, date time.Time, jurisdictionHint string) (*VenueEvent, error)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
