// Package orphan handles bank transactions no submission ever claimed:
// spend on the corporate card with no matching expense report.
package orphan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/viper"

	"github.com/ledgermatch/ledgermatch/internal/common"
	"github.com/ledgermatch/ledgermatch/internal/model"
	"github.com/ledgermatch/ledgermatch/internal/service"
)

// Sweeper periodically resolves aged unmatched transactions. A
// transaction is an orphan once its age exceeds the grace period; vendor
// rules resolve what they can and the rest goes to review.
type Sweeper struct {
	store     service.Storage
	poster    service.LedgerPoster
	graceDays int
	maxPerRun int
	retry     service.RetryOptions
}

// NewSweeper builds a Sweeper with explicit tuning.
func NewSweeper(store service.Storage, poster service.LedgerPoster, graceDays, maxPerRun int) *Sweeper {
	return &Sweeper{
		store:     store,
		poster:    poster,
		graceDays: graceDays,
		maxPerRun: maxPerRun,
		retry: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
		},
	}
}

// FromConfig builds a Sweeper from the orphan.* configuration keys.
func FromConfig(store service.Storage, poster service.LedgerPoster, v *viper.Viper) *Sweeper {
	graceDays := 5
	if v.IsSet("orphan.grace_days") {
		graceDays = v.GetInt("orphan.grace_days")
	}
	maxPerRun := 20
	if v.IsSet("orphan.max_per_run") {
		maxPerRun = v.GetInt("orphan.max_per_run")
	}
	return NewSweeper(store, poster, graceDays, maxPerRun)
}

// Summary reports what one sweep did.
type Summary struct {
	Examined int
	Posted   int
	Queued   int
	Errors   int
}

// Sweep resolves up to maxPerRun orphans, oldest first. The sweep runs
// single-threaded; the per-transaction CAS makes a concurrent manual
// resolution lose gracefully rather than double-process.
func (s *Sweeper) Sweep(ctx context.Context) (Summary, error) {
	var summary Summary

	cutoff := time.Now().UTC().AddDate(0, 0, -s.graceDays)
	orphans, err := s.store.GetOrphanCandidates(ctx, cutoff, s.maxPerRun)
	if err != nil {
		return summary, fmt.Errorf("failed to list orphan candidates: %w", err)
	}

	for i := range orphans {
		summary.Examined++
		posted, sweepErr := s.sweepOne(ctx, &orphans[i])
		switch {
		case sweepErr != nil:
			summary.Errors++
			slog.Error("Orphan sweep failed for transaction",
				"txn", orphans[i].ID, "error", sweepErr)
		case posted:
			summary.Posted++
		default:
			summary.Queued++
		}
	}

	return summary, nil
}

// sweepOne resolves a single orphan. Returns true when it was posted to
// the ledger, false when it was queued for review.
func (s *Sweeper) sweepOne(ctx context.Context, txn *model.BankTransaction) (bool, error) {
	vendor := txn.Vendor
	if vendor == "" {
		vendor = model.ExtractVendor(txn.Description)
	}

	rule, err := s.store.FindVendorRule(ctx, vendor)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return false, err
	}

	// Only a rule that decides both category and jurisdiction can
	// resolve an orphan without a human.
	if rule == nil || rule.DefaultJurisdiction == "" {
		suggestedCategory := ""
		if rule != nil {
			suggestedCategory = rule.DefaultCategory
		}
		if qErr := s.store.QueueOrphanForReview(ctx, txn.ID, suggestedCategory, ""); qErr != nil {
			if errors.Is(qErr, common.ErrStatusConflict) {
				// Resolved out from under us; not an error.
				return false, nil
			}
			return false, qErr
		}
		return false, nil
	}

	req := service.PostRequest{
		Date:           txn.Date,
		Kind:           service.PostPurchase,
		IdempotencyKey: "orphan:" + txn.ID,
		Vendor:         vendor,
		Category:       rule.DefaultCategory,
		Jurisdiction:   rule.DefaultJurisdiction,
		Memo:           fmt.Sprintf("Unreported card spend: %s", txn.Description),
		Amount:         txn.Amount,
	}

	var postedID string
	err = common.WithRetry(ctx, func() error {
		var postErr error
		postedID, postErr = s.poster.Post(ctx, req)
		return postErr
	}, s.retry)
	if err != nil {
		perr := &model.ProcessingError{
			TxnID:   txn.ID,
			Stage:   "ledger_post",
			Message: err.Error(),
		}
		if recErr := s.store.RecordProcessingError(ctx, perr); recErr != nil {
			slog.Error("Failed to record processing error", "txn", txn.ID, "error", recErr)
		}
		return false, err
	}

	if err := s.store.ResolveOrphan(ctx, txn.ID, rule.DefaultCategory, rule.DefaultJurisdiction, "vendor_rule", postedID); err != nil {
		if errors.Is(err, common.ErrStatusConflict) {
			// A human resolved it after we posted. The idempotency key
			// protects the ledger; record the conflict for audit.
			perr := &model.ProcessingError{
				TxnID:   txn.ID,
				Stage:   "mark_matched",
				Message: "orphan resolved elsewhere after ledger post",
			}
			if recErr := s.store.RecordProcessingError(ctx, perr); recErr != nil {
				return false, recErr
			}
			return true, nil
		}
		return false, err
	}

	if err := s.store.TouchVendorRule(ctx, rule.Pattern); err != nil {
		slog.Warn("Failed to update vendor rule usage", "pattern", rule.Pattern, "error", err)
	}

	slog.Info("Orphan auto-posted",
		"txn", txn.ID,
		"vendor", vendor,
		"category", rule.DefaultCategory,
		"jurisdiction", rule.DefaultJurisdiction,
		"posted_id", postedID)
	return true, nil
}
