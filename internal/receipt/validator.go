// Package receipt validates claimed submission amounts against the
// amount extracted from the attached receipt.
package receipt

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/ledgermatch/ledgermatch/internal/model"
	"github.com/ledgermatch/ledgermatch/internal/service"
)

// Validator corrects a submission's amount when the receipt disagrees
// with the submitter's claim. The receipt wins when extraction
// confidence is high enough and the discrepancy is material; the claimed
// amount survives in OriginalAmount for audit.
type Validator struct {
	store          service.Storage
	minConfidence  int
	minDiscrepancy decimal.Decimal
}

// NewValidator builds a Validator with explicit thresholds.
func NewValidator(store service.Storage, minConfidence int, minDiscrepancy decimal.Decimal) *Validator {
	return &Validator{
		store:          store,
		minConfidence:  minConfidence,
		minDiscrepancy: minDiscrepancy,
	}
}

// FromConfig builds a Validator from the receipt.* configuration keys.
func FromConfig(store service.Storage, v *viper.Viper) *Validator {
	minConfidence := 70
	if v.IsSet("receipt.min_confidence") {
		minConfidence = v.GetInt("receipt.min_confidence")
	}
	minDiscrepancy := decimal.NewFromFloat(0.01)
	if v.IsSet("receipt.min_discrepancy") {
		minDiscrepancy = decimal.NewFromFloat(v.GetFloat64("receipt.min_discrepancy"))
	}
	return NewValidator(store, minConfidence, minDiscrepancy)
}

// Apply rewrites sub.Amount from the receipt when warranted, persisting
// the correction. Returns true when the amount changed. The passed
// submission is updated in place so matching continues with the
// corrected amount.
func (r *Validator) Apply(ctx context.Context, sub *model.Submission) (bool, error) {
	if sub.ReceiptAmount == nil {
		return false, nil
	}
	if sub.ReceiptConfidence < r.minConfidence {
		return false, nil
	}

	discrepancy := sub.Amount.Sub(*sub.ReceiptAmount).Abs()
	if discrepancy.LessThanOrEqual(r.minDiscrepancy) {
		return false, nil
	}

	if err := r.store.ApplyAmountCorrection(ctx, sub.ID, *sub.ReceiptAmount); err != nil {
		return false, err
	}

	original := sub.Amount
	if sub.OriginalAmount == nil {
		sub.OriginalAmount = &original
	}
	sub.Amount = *sub.ReceiptAmount

	slog.Info("Receipt amount correction applied",
		"submission", sub.ID,
		"claimed", original.StringFixed(2),
		"receipt", sub.ReceiptAmount.StringFixed(2),
		"confidence", sub.ReceiptConfidence)

	return true, nil
}
