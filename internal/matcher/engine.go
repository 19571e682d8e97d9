package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgermatch/ledgermatch/internal/common"
	"github.com/ledgermatch/ledgermatch/internal/model"
	"github.com/ledgermatch/ledgermatch/internal/service"
)

// AmountCorrector validates a submission's claimed amount against its
// receipt before matching. Apply returns true when the amount changed.
type AmountCorrector interface {
	Apply(ctx context.Context, sub *model.Submission) (bool, error)
}

// Matcher runs the reconciliation pass for pending submissions.
type Matcher struct {
	store     service.Storage
	poster    service.LedgerPoster
	events    service.VenueEvents
	corrector AmountCorrector
	policy    ScorePolicy
	retry     service.RetryOptions
}

// New creates a Matcher. events and corrector may be nil; the
// corresponding steps are skipped.
func New(store service.Storage, poster service.LedgerPoster, events service.VenueEvents, corrector AmountCorrector, policy ScorePolicy) *Matcher {
	return &Matcher{
		store:     store,
		poster:    poster,
		events:    events,
		corrector: corrector,
		policy:    policy,
		retry: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
		},
	}
}

// Summary reports what one processing pass did.
type Summary struct {
	Processed  int
	AutoPosted int
	Flagged    int
	Errors     int
}

// ProcessPending runs every pending submission through the matcher,
// oldest first. Individual failures are recorded and do not stop the pass.
func (m *Matcher) ProcessPending(ctx context.Context) (Summary, error) {
	var summary Summary

	pending, err := m.store.GetSubmissionsByStatus(ctx, model.SubmissionPending)
	if err != nil {
		return summary, fmt.Errorf("failed to list pending submissions: %w", err)
	}

	for i := range pending {
		outcome, procErr := m.ProcessSubmission(ctx, pending[i].ID)
		summary.Processed++
		switch {
		case procErr != nil:
			summary.Errors++
			slog.Error("Submission processing failed",
				"submission", pending[i].ID, "error", procErr)
		case outcome.AutoApproved:
			summary.AutoPosted++
		default:
			summary.Flagged++
		}
	}

	return summary, nil
}

// ProcessSubmission runs one submission through candidate search,
// jurisdiction attribution, scoring, and the posting decision. Transient
// ledger failures return the submission to pending and record a
// processing error; the returned error is non-nil in that case.
func (m *Matcher) ProcessSubmission(ctx context.Context, id string) (model.MatchResult, error) {
	var result model.MatchResult

	if err := m.store.BeginSubmissionProcessing(ctx, id); err != nil {
		if errors.Is(err, common.ErrStatusConflict) {
			// Another run claimed it first; nothing to do.
			return result, nil
		}
		return result, err
	}

	sub, err := m.store.GetSubmission(ctx, id)
	if err != nil {
		return result, err
	}

	if m.corrector != nil {
		corrected, corrErr := m.corrector.Apply(ctx, sub)
		if corrErr != nil {
			return result, m.failTransient(ctx, sub, "receipt_validation", corrErr)
		}
		if corrected {
			slog.Info("Amount corrected from receipt",
				"submission", sub.ID,
				"claimed", sub.OriginalAmount,
				"corrected", sub.Amount)
		}
	}

	candidates, err := m.store.FindCandidateTransactions(ctx, service.CandidateWindow{
		Amount:            sub.AuthoritativeAmount(),
		Date:              sub.Date,
		AmountTolerance:   m.policy.AmountTolerance,
		DateToleranceDays: m.policy.DateToleranceDays,
	})
	if err != nil {
		return result, m.failTransient(ctx, sub, "candidate_search", err)
	}

	if len(candidates) == 0 {
		// No card transaction means the employee likely paid out of
		// pocket; route to review as a reimbursement case. The ledger is
		// never called here.
		result = model.MatchResult{
			Jurisdiction:       model.NormalizeJurisdiction(sub.JurisdictionTag, m.policy.HomeJurisdiction),
			JurisdictionSource: model.SourceUnknown,
			DecidedAt:          time.Now().UTC(),
		}
		reason := "no bank transaction found in the matching window"
		if flagErr := m.store.FlagSubmission(ctx, sub.ID, model.FlagReimbursement, reason, result); flagErr != nil {
			return result, flagErr
		}
		return result, nil
	}

	best := rankCandidates(sub, candidates)[0]

	decision, err := m.resolveJurisdiction(ctx, sub, &best.Txn)
	if err != nil {
		return result, m.failTransient(ctx, sub, "jurisdiction", err)
	}

	category := sub.Category
	if category == "" {
		category = decision.RuleCategory
	}

	confidence := m.score(sub, best, decision, category)

	result = model.MatchResult{
		BankTxnID:          best.Txn.ID,
		MatchType:          best.Type,
		Jurisdiction:       decision.Jurisdiction,
		JurisdictionSource: decision.Source,
		Category:           category,
		Confidence:         confidence,
		DecidedAt:          time.Now().UTC(),
	}

	// An unresolved jurisdiction always goes to a human, no matter how
	// strong the match itself is.
	if confidence < m.policy.AutoApproveThreshold || decision.Jurisdiction == "" {
		reason := fmt.Sprintf("confidence %d below threshold %d", confidence, m.policy.AutoApproveThreshold)
		if decision.Jurisdiction == "" {
			reason = "jurisdiction could not be attributed automatically"
		}
		if flagErr := m.store.FlagSubmission(ctx, sub.ID, model.FlagLowConfidence, reason, result); flagErr != nil {
			return result, flagErr
		}
		return result, nil
	}

	result.AutoApproved = true
	if err := m.autoPost(ctx, sub, best.Txn, result, decision); err != nil {
		result.AutoApproved = false
		return result, err
	}
	return result, nil
}

// autoPost executes the binding decision: ledger first, then the local
// claim. The idempotency key makes a crash between the two recoverable
// by the audit job without double-posting.
func (m *Matcher) autoPost(ctx context.Context, sub *model.Submission, txn model.BankTransaction, result model.MatchResult, decision jurisdictionDecision) error {
	req := service.PostRequest{
		Date:           txn.Date,
		Kind:           service.PostPurchase,
		IdempotencyKey: sub.ID + ":purchase",
		Vendor:         txn.Vendor,
		Category:       result.Category,
		Jurisdiction:   result.Jurisdiction,
		Memo:           fmt.Sprintf("%s (%s)", sub.Vendor, sub.ExternalID),
		Amount:         txn.Amount,
	}

	var postedID string
	err := common.WithRetry(ctx, func() error {
		var postErr error
		postedID, postErr = m.poster.Post(ctx, req)
		return postErr
	}, m.retry)
	if err != nil {
		return m.failTransient(ctx, sub, "ledger_post", err)
	}

	if err := m.store.ClaimBankTransaction(ctx, txn.ID, sub.ID, "matcher"); err != nil {
		if errors.Is(err, common.ErrStatusConflict) {
			// The transaction was claimed between ranking and posting.
			// The ledger entry stands (idempotent); a human untangles it.
			perr := &model.ProcessingError{
				SubmissionID: sub.ID,
				TxnID:        txn.ID,
				Stage:        "mark_matched",
				Message:      "bank transaction claimed by another path after ledger post",
			}
			if recErr := m.store.RecordProcessingError(ctx, perr); recErr != nil {
				return recErr
			}
			reason := "posted to ledger but the bank transaction was already claimed"
			return m.store.FlagSubmission(ctx, sub.ID, model.FlagAnomaly, reason, result)
		}
		return err
	}

	if err := m.store.RecordMatchResult(ctx, sub.ID, result); err != nil {
		return err
	}
	if err := m.store.MarkSubmissionPosted(ctx, sub.ID, postedID, ""); err != nil {
		return err
	}
	if err := m.store.SetBankTransactionPostedID(ctx, txn.ID, postedID); err != nil {
		return err
	}

	if decision.RulePattern != "" && decision.Source == model.SourceVendorRule {
		if err := m.store.TouchVendorRule(ctx, decision.RulePattern); err != nil {
			slog.Warn("Failed to update vendor rule usage",
				"pattern", decision.RulePattern, "error", err)
		}
	}

	slog.Info("Submission auto-posted",
		"submission", sub.ID,
		"txn", txn.ID,
		"confidence", result.Confidence,
		"jurisdiction", result.Jurisdiction,
		"posted_id", postedID)
	return nil
}

// failTransient records the failure and releases the processing claim so
// the next run retries, then returns the original error.
func (m *Matcher) failTransient(ctx context.Context, sub *model.Submission, stage string, cause error) error {
	perr := &model.ProcessingError{
		SubmissionID: sub.ID,
		Stage:        stage,
		Message:      cause.Error(),
	}
	if err := m.store.RecordProcessingError(ctx, perr); err != nil {
		slog.Error("Failed to record processing error",
			"submission", sub.ID, "stage", stage, "error", err)
	}
	if err := m.store.ReturnSubmissionToPending(ctx, sub.ID, cause.Error()); err != nil {
		slog.Error("Failed to return submission to pending",
			"submission", sub.ID, "error", err)
	}
	return fmt.Errorf("%s: %w", stage, cause)
}

// rankedCandidate is one candidate with its derived match strength.
type rankedCandidate struct {
	Txn          model.BankTransaction
	Type         model.MatchType
	DateDistance int
}

// rankCandidates orders candidates best first: exact amount beats a
// tolerance match, then smaller date distance, then the more recent
// transaction. len(candidates) must be > 0.
func rankCandidates(sub *model.Submission, candidates []model.BankTransaction) []rankedCandidate {
	amount := sub.AuthoritativeAmount()
	ranked := make([]rankedCandidate, len(candidates))
	for i, txn := range candidates {
		ranked[i] = rankedCandidate{
			Txn:          txn,
			Type:         classifyMatch(amount, sub.Date, txn),
			DateDistance: dateDistanceDays(sub.Date, txn.Date),
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		iExact := ranked[i].Txn.Amount.Equal(amount)
		jExact := ranked[j].Txn.Amount.Equal(amount)
		if iExact != jExact {
			return iExact
		}
		if ranked[i].DateDistance != ranked[j].DateDistance {
			return ranked[i].DateDistance < ranked[j].DateDistance
		}
		return ranked[i].Txn.Date.After(ranked[j].Txn.Date)
	})

	return ranked
}

func classifyMatch(amount decimal.Decimal, date time.Time, txn model.BankTransaction) model.MatchType {
	if txn.Amount.Equal(amount) {
		if sameDay(date, txn.Date) {
			return model.MatchExact
		}
		return model.MatchAmountDate
	}
	return model.MatchAmountOnly
}

// score computes the 0-100 confidence for the best candidate.
func (m *Matcher) score(sub *model.Submission, cand rankedCandidate, decision jurisdictionDecision, category string) int {
	score := 100

	if !cand.Txn.Amount.Equal(sub.AuthoritativeAmount()) {
		score -= m.policy.AmountMismatchPenalty
	}
	score -= cand.DateDistance * m.policy.DateDistancePenalty

	switch decision.Source {
	case model.SourceVenueEvent:
		score -= m.policy.VenuePenalty
	case model.SourceVendorRule:
		score -= m.policy.VendorRulePenalty
	}

	if category == "" {
		score -= m.policy.MissingCategoryPenalty
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// dateDistanceDays is the calendar-day distance between two timestamps.
// Bank feeds carry a posting time of day; the distance must not shrink
// because of it.
func dateDistanceDays(a, b time.Time) int {
	d := midnightUTC(a).Sub(midnightUTC(b))
	if d < 0 {
		d = -d
	}
	return int(d.Hours() / 24)
}

func midnightUTC(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
