package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledgermatch/ledgermatch/internal/model"
	"github.com/ledgermatch/ledgermatch/internal/service"
)

// Finding is one discrepancy between the ledger and the local state.
type Finding struct {
	IdempotencyKey string
	LocalID        string
	Detail         string
}

// AuditReport summarizes the two failure directions the posting
// discipline leaves open: a crash after the ledger call but before the
// local mark, and a local mark whose ledger entry is missing.
type AuditReport struct {
	PostedNotMarked []Finding
	MarkedNotPosted []Finding
}

// Clean reports whether the audit found no discrepancies.
func (r *AuditReport) Clean() bool {
	return len(r.PostedNotMarked) == 0 && len(r.MarkedNotPosted) == 0
}

// Auditor reconciles the ledger's entries against local record state.
type Auditor struct {
	store  service.Storage
	poster service.LedgerPoster
}

// NewAuditor creates an Auditor.
func NewAuditor(store service.Storage, poster service.LedgerPoster) *Auditor {
	return &Auditor{store: store, poster: poster}
}

// Run compares every ledger entry this system created with the local
// record it should correspond to, in both directions.
func (a *Auditor) Run(ctx context.Context) (*AuditReport, error) {
	entries, err := a.poster.PostedEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}

	byKey := make(map[string]string, len(entries))
	for _, e := range entries {
		byKey[e.IdempotencyKey] = e.PostedID
	}

	report := &AuditReport{}

	// Direction 1: the ledger has an entry the local state never
	// acknowledged. The crash window between Post and the local mark.
	for key, postedID := range byKey {
		finding, ok, checkErr := a.checkEntry(ctx, key, postedID)
		if checkErr != nil {
			return nil, checkErr
		}
		if !ok {
			report.PostedNotMarked = append(report.PostedNotMarked, finding)
		}
	}

	// Direction 2: a local record claims a posting the ledger does not have.
	posted, err := a.store.GetSubmissionsByStatus(ctx, model.SubmissionPosted)
	if err != nil {
		return nil, fmt.Errorf("failed to list posted submissions: %w", err)
	}
	corrected, err := a.store.GetSubmissionsByStatus(ctx, model.SubmissionCorrected)
	if err != nil {
		return nil, fmt.Errorf("failed to list corrected submissions: %w", err)
	}
	posted = append(posted, corrected...)
	for i := range posted {
		sub := &posted[i]
		key := sub.ID + ":purchase"
		if sub.ReimburseMethod != "" {
			key = sub.ID + ":bill"
		}
		if _, ok := byKey[key]; !ok {
			report.MarkedNotPosted = append(report.MarkedNotPosted, Finding{
				IdempotencyKey: key,
				LocalID:        sub.ID,
				Detail:         fmt.Sprintf("submission marked posted as %s but no ledger entry exists", sub.PostedID),
			})
		}
	}

	resolved, err := a.store.GetBankTransactionsByStatus(ctx, model.TxnOrphanProcessed)
	if err != nil {
		return nil, fmt.Errorf("failed to list resolved orphans: %w", err)
	}
	for i := range resolved {
		txn := &resolved[i]
		if txn.PostedID == "" {
			continue
		}
		key := "orphan:" + txn.ID
		if _, ok := byKey[key]; !ok {
			report.MarkedNotPosted = append(report.MarkedNotPosted, Finding{
				IdempotencyKey: key,
				LocalID:        txn.ID,
				Detail:         fmt.Sprintf("orphan marked posted as %s but no ledger entry exists", txn.PostedID),
			})
		}
	}

	return report, nil
}

// checkEntry verifies one ledger entry against its local record. Returns
// ok=false with a finding when the local side never recorded the posting.
func (a *Auditor) checkEntry(ctx context.Context, key, postedID string) (Finding, bool, error) {
	finding := Finding{IdempotencyKey: key}

	switch {
	case strings.HasPrefix(key, "orphan:"):
		txnID := strings.TrimPrefix(key, "orphan:")
		finding.LocalID = txnID
		txn, err := a.store.GetBankTransaction(ctx, txnID)
		if err != nil {
			finding.Detail = fmt.Sprintf("ledger entry %s references unknown transaction", postedID)
			return finding, false, nil
		}
		if txn.Status != model.TxnOrphanProcessed || txn.PostedID == "" {
			finding.Detail = fmt.Sprintf("ledger entry %s exists but transaction is %s", postedID, txn.Status)
			return finding, false, nil
		}
		return finding, true, nil

	case strings.HasSuffix(key, ":purchase") || strings.HasSuffix(key, ":bill"):
		subID := strings.TrimSuffix(strings.TrimSuffix(key, ":purchase"), ":bill")
		finding.LocalID = subID
		sub, err := a.store.GetSubmission(ctx, subID)
		if err != nil {
			finding.Detail = fmt.Sprintf("ledger entry %s references unknown submission", postedID)
			return finding, false, nil
		}
		if !sub.Status.Posted() || sub.PostedID == "" {
			finding.Detail = fmt.Sprintf("ledger entry %s exists but submission is %s", postedID, sub.Status)
			return finding, false, nil
		}
		return finding, true, nil

	default:
		finding.Detail = "unrecognized idempotency key"
		return finding, false, nil
	}
}
