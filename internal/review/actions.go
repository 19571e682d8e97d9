package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ledgermatch/ledgermatch/internal/common"
	"github.com/ledgermatch/ledgermatch/internal/learning"
	"github.com/ledgermatch/ledgermatch/internal/model"
	"github.com/ledgermatch/ledgermatch/internal/service"
)

// ErrInvalidAction reports an action that does not apply to the item.
var ErrInvalidAction = errors.New("action not valid for this review item")

// Adjudicator applies human decisions to review items. Every action is
// idempotent: re-applying a decision the item already reached is a no-op
// success, and ledger postings reuse the item's idempotency key so a
// double-click never posts twice.
type Adjudicator struct {
	store   service.Storage
	poster  service.LedgerPoster
	learner *learning.Logger
	retry   service.RetryOptions
}

// NewAdjudicator creates an Adjudicator.
func NewAdjudicator(store service.Storage, poster service.LedgerPoster, learner *learning.Logger) *Adjudicator {
	return &Adjudicator{
		store:   store,
		poster:  poster,
		learner: learner,
		retry: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
		},
	}
}

// Apply dispatches one action against one review item.
func (a *Adjudicator) Apply(ctx context.Context, itemType model.ReviewItemType, action model.ReviewAction, sourceID string, overrides model.ActionOverrides) (model.ActionResult, error) {
	switch itemType {
	case model.ItemFlagged, model.ItemLowConfidence, model.ItemReimbursement:
		return a.applySubmission(ctx, action, sourceID, overrides)
	case model.ItemOrphan:
		return a.applyOrphan(ctx, action, sourceID, overrides)
	case model.ItemProcessingError:
		return a.applyProcessingError(ctx, action, sourceID)
	default:
		return model.ActionResult{}, fmt.Errorf("%w: unknown item type %q", ErrInvalidAction, itemType)
	}
}

func (a *Adjudicator) applySubmission(ctx context.Context, action model.ReviewAction, id string, overrides model.ActionOverrides) (model.ActionResult, error) {
	sub, err := a.store.GetSubmission(ctx, id)
	if err != nil {
		return model.ActionResult{}, err
	}

	switch action {
	case model.ActionApprove:
		return a.approveSubmission(ctx, sub)
	case model.ActionCorrectAndApprove:
		return a.correctAndApprove(ctx, sub, overrides)
	case model.ActionReject:
		return a.rejectSubmission(ctx, sub)
	case model.ActionReimburse:
		return a.reimburseSubmission(ctx, sub, overrides)
	case model.ActionResubmit:
		return a.resubmitSubmission(ctx, sub, overrides)
	case model.ActionCreateVendorRule:
		return a.createRule(ctx, sub.Vendor, sub.Category, overrides)
	default:
		return model.ActionResult{}, fmt.Errorf("%w: %q on submission", ErrInvalidAction, action)
	}
}

// approveSubmission accepts the matcher's suggestion as-is.
func (a *Adjudicator) approveSubmission(ctx context.Context, sub *model.Submission) (model.ActionResult, error) {
	if sub.Status.Posted() {
		return model.ActionResult{Success: true, NoOp: true, PostedID: sub.PostedID,
			Message: "already posted"}, nil
	}
	if sub.Status != model.SubmissionFlagged {
		return model.ActionResult{}, fmt.Errorf("%w: approve requires a flagged submission, got %s", ErrInvalidAction, sub.Status)
	}
	if sub.BankTxnID == "" {
		return model.ActionResult{}, fmt.Errorf("%w: no suggested transaction; use correct_and_approve", ErrInvalidAction)
	}
	if sub.Jurisdiction == "" {
		return model.ActionResult{}, fmt.Errorf("%w: jurisdiction unresolved; use correct_and_approve", ErrInvalidAction)
	}

	final := model.MatchResult{
		BankTxnID:          sub.BankTxnID,
		MatchType:          sub.MatchType,
		Jurisdiction:       sub.Jurisdiction,
		JurisdictionSource: sub.JurisdictionSource,
		Category:           sub.Category,
		Confidence:         sub.MatchConfidence,
		DecidedAt:          time.Now().UTC(),
	}
	result, err := a.postAndFinalize(ctx, sub, final, "")
	if err != nil {
		return result, err
	}
	a.learner.LogAdjudication(ctx, sub, final, "human")
	return result, nil
}

// correctAndApprove applies the reviewer's corrections and posts. The
// submission lands in corrected rather than posted so the audit trail
// distinguishes human-corrected postings from approved suggestions.
func (a *Adjudicator) correctAndApprove(ctx context.Context, sub *model.Submission, overrides model.ActionOverrides) (model.ActionResult, error) {
	if sub.Status.Posted() {
		return model.ActionResult{Success: true, NoOp: true, PostedID: sub.PostedID,
			Message: "already posted"}, nil
	}
	if sub.Status != model.SubmissionFlagged {
		return model.ActionResult{}, fmt.Errorf("%w: correct_and_approve requires a flagged submission, got %s", ErrInvalidAction, sub.Status)
	}

	txnID := sub.BankTxnID
	if overrides.BankTxnID != "" {
		txnID = overrides.BankTxnID
	}
	if txnID == "" {
		return model.ActionResult{}, fmt.Errorf("%w: a bank transaction is required", ErrInvalidAction)
	}
	category := sub.Category
	if overrides.Category != "" {
		category = overrides.Category
	}
	jurisdiction := sub.Jurisdiction
	if overrides.Jurisdiction != "" {
		jurisdiction = overrides.Jurisdiction
	}
	if jurisdiction == "" {
		return model.ActionResult{}, fmt.Errorf("%w: a jurisdiction is required", ErrInvalidAction)
	}

	final := model.MatchResult{
		BankTxnID:          txnID,
		MatchType:          model.MatchHuman,
		Jurisdiction:       jurisdiction,
		JurisdictionSource: model.SourceHuman,
		Category:           category,
		Confidence:         100,
		DecidedAt:          time.Now().UTC(),
	}

	result, err := a.postAndFinalize(ctx, sub, final, "")
	if err != nil {
		return result, err
	}
	if err := a.store.MarkSubmissionCorrected(ctx, sub.ID); err != nil {
		return result, err
	}

	rec := a.learner.LogAdjudication(ctx, sub, final, "human")
	a.learner.Reinforce(ctx, rec)
	if overrides.CreateVendorRule {
		if ruleErr := a.learner.CreateRule(ctx, sub.Vendor, category, jurisdiction); ruleErr != nil {
			return result, ruleErr
		}
	}
	return result, nil
}

// postAndFinalize runs the binding sequence for a submission: ledger
// post, transaction claim, local mark. Shared by the approve paths.
func (a *Adjudicator) postAndFinalize(ctx context.Context, sub *model.Submission, final model.MatchResult, reimburseMethod string) (model.ActionResult, error) {
	txn, err := a.store.GetBankTransaction(ctx, final.BankTxnID)
	if err != nil {
		return model.ActionResult{}, err
	}

	req := service.PostRequest{
		Date:           txn.Date,
		Kind:           service.PostPurchase,
		IdempotencyKey: sub.ID + ":purchase",
		Vendor:         txn.Vendor,
		Category:       final.Category,
		Jurisdiction:   final.Jurisdiction,
		Memo:           fmt.Sprintf("%s (%s)", sub.Vendor, sub.ExternalID),
		Amount:         txn.Amount,
	}

	var postedID string
	err = common.WithRetry(ctx, func() error {
		var postErr error
		postedID, postErr = a.poster.Post(ctx, req)
		return postErr
	}, a.retry)
	if err != nil {
		return model.ActionResult{}, fmt.Errorf("ledger post failed: %w", err)
	}

	if err := a.store.ClaimBankTransaction(ctx, txn.ID, sub.ID, "human"); err != nil {
		if !errors.Is(err, common.ErrStatusConflict) {
			return model.ActionResult{}, err
		}
		// Tolerate a replayed claim by the same submission.
		claimed, getErr := a.store.GetBankTransaction(ctx, txn.ID)
		if getErr != nil {
			return model.ActionResult{}, getErr
		}
		if claimed.MatchedSubmission != sub.ID {
			return model.ActionResult{}, fmt.Errorf("transaction %s already claimed by submission %s", txn.ID, claimed.MatchedSubmission)
		}
	}

	if err := a.store.MarkSubmissionPosted(ctx, sub.ID, postedID, reimburseMethod); err != nil {
		return model.ActionResult{}, err
	}
	if err := a.store.SetBankTransactionPostedID(ctx, txn.ID, postedID); err != nil {
		return model.ActionResult{}, err
	}

	return model.ActionResult{
		Success:  true,
		PostedID: postedID,
		Message:  fmt.Sprintf("posted as %s", postedID),
	}, nil
}

func (a *Adjudicator) rejectSubmission(ctx context.Context, sub *model.Submission) (model.ActionResult, error) {
	if sub.Status == model.SubmissionRejected {
		return model.ActionResult{Success: true, NoOp: true, Message: "already rejected"}, nil
	}
	if sub.Status != model.SubmissionFlagged {
		return model.ActionResult{}, fmt.Errorf("%w: reject requires a flagged submission, got %s", ErrInvalidAction, sub.Status)
	}
	if err := a.store.RejectSubmission(ctx, sub.ID); err != nil {
		return model.ActionResult{}, err
	}
	a.learner.LogAdjudication(ctx, sub, model.MatchResult{DecidedAt: time.Now().UTC()}, "human")
	return model.ActionResult{Success: true, Message: "rejected"}, nil
}

// reimburseSubmission posts a bill: the employee paid out of pocket, so
// no bank transaction is claimed.
func (a *Adjudicator) reimburseSubmission(ctx context.Context, sub *model.Submission, overrides model.ActionOverrides) (model.ActionResult, error) {
	if sub.Status.Posted() {
		return model.ActionResult{Success: true, NoOp: true, PostedID: sub.PostedID,
			Message: "already posted"}, nil
	}
	if sub.Status != model.SubmissionFlagged {
		return model.ActionResult{}, fmt.Errorf("%w: reimburse requires a flagged submission, got %s", ErrInvalidAction, sub.Status)
	}

	method := overrides.ReimburseMethod
	if method == "" {
		return model.ActionResult{}, fmt.Errorf("%w: a reimbursement method is required", ErrInvalidAction)
	}
	category := sub.Category
	if overrides.Category != "" {
		category = overrides.Category
	}
	jurisdiction := sub.Jurisdiction
	if overrides.Jurisdiction != "" {
		jurisdiction = overrides.Jurisdiction
	}

	req := service.PostRequest{
		Date:           sub.Date,
		Kind:           service.PostBill,
		IdempotencyKey: sub.ID + ":bill",
		Vendor:         sub.Vendor,
		Category:       category,
		Jurisdiction:   jurisdiction,
		Memo:           fmt.Sprintf("Reimbursement for %s (%s)", sub.Submitter, sub.ExternalID),
		Method:         method,
		Amount:         sub.Amount,
	}

	var postedID string
	err := common.WithRetry(ctx, func() error {
		var postErr error
		postedID, postErr = a.poster.Post(ctx, req)
		return postErr
	}, a.retry)
	if err != nil {
		return model.ActionResult{}, fmt.Errorf("ledger post failed: %w", err)
	}

	if err := a.store.MarkSubmissionPosted(ctx, sub.ID, postedID, method); err != nil {
		return model.ActionResult{}, err
	}

	return model.ActionResult{
		Success:  true,
		PostedID: postedID,
		Message:  fmt.Sprintf("reimbursement posted as %s", postedID),
	}, nil
}

func (a *Adjudicator) resubmitSubmission(ctx context.Context, sub *model.Submission, overrides model.ActionOverrides) (model.ActionResult, error) {
	if sub.Status == model.SubmissionPending {
		return model.ActionResult{Success: true, NoOp: true, Message: "already pending"}, nil
	}

	// A claim this submission still holds, left by a run that failed
	// between claiming and marking, goes back to the pool so the rerun
	// can match it again.
	if sub.BankTxnID != "" {
		txn, err := a.store.GetBankTransaction(ctx, sub.BankTxnID)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return model.ActionResult{}, err
		}
		if err == nil && txn.Status == model.TxnMatched && txn.MatchedSubmission == sub.ID {
			if relErr := a.store.ReleaseBankTransaction(ctx, txn.ID); relErr != nil {
				return model.ActionResult{}, relErr
			}
		}
	}

	if err := a.store.ResubmitSubmission(ctx, sub.ID, overrides); err != nil {
		return model.ActionResult{}, err
	}
	return model.ActionResult{Success: true, Message: "returned to the matching pool"}, nil
}

func (a *Adjudicator) createRule(ctx context.Context, vendor, fallbackCategory string, overrides model.ActionOverrides) (model.ActionResult, error) {
	category := overrides.Category
	if category == "" {
		category = fallbackCategory
	}
	if vendor == "" || category == "" {
		return model.ActionResult{}, fmt.Errorf("%w: a vendor and category are required for a rule", ErrInvalidAction)
	}
	if err := a.learner.CreateRule(ctx, vendor, category, overrides.Jurisdiction); err != nil {
		return model.ActionResult{}, err
	}
	return model.ActionResult{Success: true, Message: fmt.Sprintf("rule created for %q", vendor)}, nil
}

func (a *Adjudicator) applyOrphan(ctx context.Context, action model.ReviewAction, txnID string, overrides model.ActionOverrides) (model.ActionResult, error) {
	txn, err := a.store.GetBankTransaction(ctx, txnID)
	if err != nil {
		return model.ActionResult{}, err
	}

	switch action {
	case model.ActionResolve:
		return a.resolveOrphan(ctx, txn, overrides)
	case model.ActionExclude:
		if txn.Status == model.TxnExcluded {
			return model.ActionResult{Success: true, NoOp: true, Message: "already excluded"}, nil
		}
		if err := a.store.ExcludeBankTransaction(ctx, txn.ID); err != nil {
			return model.ActionResult{}, err
		}
		return model.ActionResult{Success: true, Message: "excluded as non-business"}, nil
	case model.ActionCreateVendorRule:
		return a.createRule(ctx, txn.Vendor, txn.Category, overrides)
	default:
		return model.ActionResult{}, fmt.Errorf("%w: %q on orphan transaction", ErrInvalidAction, action)
	}
}

// resolveOrphan posts an orphan with the reviewer's category and
// jurisdiction, reusing the sweep's idempotency key so a sweep that
// already posted this transaction is not duplicated.
func (a *Adjudicator) resolveOrphan(ctx context.Context, txn *model.BankTransaction, overrides model.ActionOverrides) (model.ActionResult, error) {
	if txn.Status == model.TxnOrphanProcessed {
		return model.ActionResult{Success: true, NoOp: true, PostedID: txn.PostedID,
			Message: "already resolved"}, nil
	}
	if txn.Status != model.TxnPendingReview && txn.Status != model.TxnUnmatched {
		return model.ActionResult{}, fmt.Errorf("%w: resolve requires an unresolved orphan, got %s", ErrInvalidAction, txn.Status)
	}

	category := overrides.Category
	if category == "" {
		category = txn.Category
	}
	jurisdiction := overrides.Jurisdiction
	if jurisdiction == "" {
		jurisdiction = txn.Jurisdiction
	}
	if category == "" || jurisdiction == "" {
		return model.ActionResult{}, fmt.Errorf("%w: a category and jurisdiction are required", ErrInvalidAction)
	}

	req := service.PostRequest{
		Date:           txn.Date,
		Kind:           service.PostPurchase,
		IdempotencyKey: "orphan:" + txn.ID,
		Vendor:         txn.Vendor,
		Category:       category,
		Jurisdiction:   jurisdiction,
		Memo:           fmt.Sprintf("Unreported card spend: %s", txn.Description),
		Amount:         txn.Amount,
	}

	var postedID string
	err := common.WithRetry(ctx, func() error {
		var postErr error
		postedID, postErr = a.poster.Post(ctx, req)
		return postErr
	}, a.retry)
	if err != nil {
		return model.ActionResult{}, fmt.Errorf("ledger post failed: %w", err)
	}

	if err := a.store.ResolveOrphan(ctx, txn.ID, category, jurisdiction, "human", postedID); err != nil {
		return model.ActionResult{}, err
	}

	return model.ActionResult{
		Success:  true,
		PostedID: postedID,
		Message:  fmt.Sprintf("posted as %s", postedID),
	}, nil
}

func (a *Adjudicator) applyProcessingError(ctx context.Context, action model.ReviewAction, id string) (model.ActionResult, error) {
	perr, err := a.store.GetProcessingError(ctx, id)
	if err != nil {
		return model.ActionResult{}, err
	}

	switch action {
	case model.ActionRetry:
		if perr.State == model.ErrorResolved || perr.State == model.ErrorIgnored {
			return model.ActionResult{Success: true, NoOp: true, Message: "already closed"}, nil
		}
		if err := a.store.IncrementProcessingErrorRetry(ctx, perr.ID); err != nil {
			return model.ActionResult{}, err
		}
		// A submission stuck in processing from the failed run goes back
		// to the pool so the next match pass retries it.
		if perr.SubmissionID != "" {
			sub, getErr := a.store.GetSubmission(ctx, perr.SubmissionID)
			if getErr == nil && sub.Status == model.SubmissionProcessing {
				if retErr := a.store.ReturnSubmissionToPending(ctx, sub.ID, "manual retry"); retErr != nil {
					return model.ActionResult{}, retErr
				}
			}
		}
		if err := a.store.UpdateProcessingErrorState(ctx, perr.ID, model.ErrorInvestigating); err != nil {
			return model.ActionResult{}, err
		}
		return model.ActionResult{Success: true, Message: "queued for retry"}, nil
	case model.ActionResolve:
		if perr.State == model.ErrorResolved {
			return model.ActionResult{Success: true, NoOp: true, Message: "already resolved"}, nil
		}
		if err := a.store.UpdateProcessingErrorState(ctx, perr.ID, model.ErrorResolved); err != nil {
			return model.ActionResult{}, err
		}
		return model.ActionResult{Success: true, Message: "resolved"}, nil
	case model.ActionIgnore:
		if perr.State == model.ErrorIgnored {
			return model.ActionResult{Success: true, NoOp: true, Message: "already ignored"}, nil
		}
		if err := a.store.UpdateProcessingErrorState(ctx, perr.ID, model.ErrorIgnored); err != nil {
			return model.ActionResult{}, err
		}
		return model.ActionResult{Success: true, Message: "ignored"}, nil
	default:
		return model.ActionResult{}, fmt.Errorf("%w: %q on processing error", ErrInvalidAction, action)
	}
}
