package review

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ledgermatch/ledgermatch/internal/model"
	"github.com/ledgermatch/ledgermatch/internal/service"
)

// Queue materializes review items on demand from the records that need
// human attention. Nothing here is stored; the owning rows are the
// source of truth and acting on an item mutates them directly.
type Queue struct {
	store             service.Storage
	amountTolerance   decimal.Decimal
	dateToleranceDays int
}

// NewQueue builds a Queue. The tolerance pair mirrors the matcher's
// candidate window and is used to surface alternate candidates.
func NewQueue(store service.Storage, amountTolerance decimal.Decimal, dateToleranceDays int) *Queue {
	return &Queue{
		store:             store,
		amountTolerance:   amountTolerance,
		dateToleranceDays: dateToleranceDays,
	}
}

// ParseItemFilter converts a list-filter value into an item type.
// "all" and the empty string select every item type.
func ParseItemFilter(s string) (model.ReviewItemType, error) {
	switch model.ReviewItemType(s) {
	case "", "all":
		return "", nil
	case model.ItemProcessingError, model.ItemFlagged, model.ItemOrphan,
		model.ItemLowConfidence, model.ItemReimbursement:
		return model.ReviewItemType(s), nil
	default:
		return "", fmt.Errorf("unknown review item type %q", s)
	}
}

// Items returns the review queue in adjudication order. A non-empty
// filter restricts the result to that item type; the zero value returns
// everything.
func (q *Queue) Items(ctx context.Context, filter model.ReviewItemType) ([]model.ReviewItem, error) {
	var items []model.ReviewItem

	if filter == "" || filter == model.ItemProcessingError {
		perrs, err := q.store.GetProcessingErrorsByState(ctx, model.ErrorNew, model.ErrorInvestigating)
		if err != nil {
			return nil, fmt.Errorf("failed to load processing errors: %w", err)
		}
		for i := range perrs {
			items = append(items, errorItem(&perrs[i]))
		}
	}

	if filter == "" || filter == model.ItemFlagged ||
		filter == model.ItemLowConfidence || filter == model.ItemReimbursement {
		flagged, err := q.store.GetSubmissionsByStatus(ctx, model.SubmissionFlagged)
		if err != nil {
			return nil, fmt.Errorf("failed to load flagged submissions: %w", err)
		}
		for i := range flagged {
			// The flag kind decides the item type, so filtering happens
			// per row, before the alternates lookup.
			if filter != "" && submissionItemType(flagged[i].FlagKind) != filter {
				continue
			}
			item, itemErr := q.submissionItem(ctx, &flagged[i])
			if itemErr != nil {
				return nil, itemErr
			}
			items = append(items, item)
		}
	}

	if filter == "" || filter == model.ItemOrphan {
		orphans, err := q.store.GetBankTransactionsByStatus(ctx, model.TxnPendingReview)
		if err != nil {
			return nil, fmt.Errorf("failed to load pending-review transactions: %w", err)
		}
		for i := range orphans {
			items = append(items, orphanItem(&orphans[i]))
		}
	}

	SortItems(items)
	return items, nil
}

func errorItem(perr *model.ProcessingError) model.ReviewItem {
	sourceDesc := perr.SubmissionID
	if sourceDesc == "" {
		sourceDesc = perr.TxnID
	}
	return model.ReviewItem{
		Type:        model.ItemProcessingError,
		SourceID:    perr.ID,
		Date:        perr.CreatedAt,
		CreatedAt:   perr.CreatedAt,
		Description: fmt.Sprintf("%s failed for %s", perr.Stage, sourceDesc),
		Reason:      perr.Message,
		Actions: []model.ReviewAction{
			model.ActionRetry,
			model.ActionResolve,
			model.ActionIgnore,
		},
		Priority: Priority(model.ItemProcessingError),
	}
}

// submissionItemType maps a flag kind to the review item type it
// surfaces as.
func submissionItemType(kind model.FlagKind) model.ReviewItemType {
	switch kind {
	case model.FlagReimbursement:
		return model.ItemReimbursement
	case model.FlagAnomaly:
		return model.ItemFlagged
	default:
		return model.ItemLowConfidence
	}
}

func (q *Queue) submissionItem(ctx context.Context, sub *model.Submission) (model.ReviewItem, error) {
	itemType := submissionItemType(sub.FlagKind)

	var actions []model.ReviewAction
	switch itemType {
	case model.ItemReimbursement:
		actions = []model.ReviewAction{
			model.ActionReimburse,
			model.ActionCorrectAndApprove,
			model.ActionReject,
			model.ActionResubmit,
		}
	case model.ItemFlagged:
		actions = []model.ReviewAction{
			model.ActionCorrectAndApprove,
			model.ActionReject,
			model.ActionResubmit,
		}
	default:
		actions = []model.ReviewAction{
			model.ActionApprove,
			model.ActionCorrectAndApprove,
			model.ActionReject,
			model.ActionResubmit,
			model.ActionCreateVendorRule,
		}
	}

	item := model.ReviewItem{
		Type:         itemType,
		SourceID:     sub.ID,
		Date:         sub.Date,
		CreatedAt:    sub.CreatedAt,
		Vendor:       sub.Vendor,
		Description:  fmt.Sprintf("%s by %s", sub.Vendor, sub.Submitter),
		Category:     sub.Category,
		Jurisdiction: model.DisplayJurisdiction(sub.Jurisdiction),
		Reason:       sub.FlagReason,
		Actions:      actions,
		Amount:       sub.Amount,
		Confidence:   sub.MatchConfidence,
		Priority:     Priority(itemType),
	}

	// Surface the other candidates so the reviewer can redirect the
	// match without hunting through the ledger by hand.
	if itemType == model.ItemLowConfidence && sub.BankTxnID != "" {
		candidates, err := q.store.FindCandidateTransactions(ctx, service.CandidateWindow{
			Amount:            sub.Amount,
			Date:              sub.Date,
			AmountTolerance:   q.amountTolerance,
			DateToleranceDays: q.dateToleranceDays,
		})
		if err != nil {
			return item, fmt.Errorf("failed to load alternates: %w", err)
		}
		for _, cand := range candidates {
			if cand.ID != sub.BankTxnID {
				item.Alternates = append(item.Alternates, cand.ID)
			}
		}
	}

	return item, nil
}

func orphanItem(txn *model.BankTransaction) model.ReviewItem {
	return model.ReviewItem{
		Type:         model.ItemOrphan,
		SourceID:     txn.ID,
		Date:         txn.Date,
		CreatedAt:    txn.CreatedAt,
		Vendor:       txn.Vendor,
		Description:  txn.Description,
		Category:     txn.Category,
		Jurisdiction: model.DisplayJurisdiction(txn.Jurisdiction),
		Reason:       "card spend with no matching expense submission",
		Actions: []model.ReviewAction{
			model.ActionResolve,
			model.ActionExclude,
			model.ActionCreateVendorRule,
		},
		Amount:   txn.Amount,
		Priority: Priority(model.ItemOrphan),
	}
}
