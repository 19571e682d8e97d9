// Package learning records human corrections and folds them back into
// the vendor rule table so the matcher improves over time.
package learning

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ledgermatch/ledgermatch/internal/model"
	"github.com/ledgermatch/ledgermatch/internal/service"
)

// learnedRuleConfidence is the starting weight of a rule derived from a
// single human correction, below the manual-rule default.
const learnedRuleConfidence = 60

// Logger appends correction records and derives vendor rules from them.
type Logger struct {
	store service.Storage
}

// NewLogger creates a correction Logger.
func NewLogger(store service.Storage) *Logger {
	return &Logger{store: store}
}

// LogAdjudication appends one correction record comparing what the
// matcher predicted with what the human finally approved. Logging is
// fire-and-forget: a failure is reported but never blocks the
// adjudication that triggered it.
func (l *Logger) LogAdjudication(ctx context.Context, sub *model.Submission, final model.MatchResult, source string) *model.CorrectionRecord {
	rec := &model.CorrectionRecord{
		ID:                    uuid.New().String(),
		SubmissionID:          sub.ID,
		Vendor:                sub.Vendor,
		PredictedCategory:     sub.Category,
		FinalCategory:         final.Category,
		PredictedJurisdiction: sub.Jurisdiction,
		FinalJurisdiction:     final.Jurisdiction,
		PredictedTxnID:        sub.BankTxnID,
		FinalTxnID:            final.BankTxnID,
		PredictedConfidence:   sub.MatchConfidence,
		Amount:                sub.Amount,
		Source:                source,
		CreatedAt:             time.Now().UTC(),
	}

	if err := l.store.AppendCorrection(ctx, rec); err != nil {
		slog.Error("Failed to append correction record",
			"submission", sub.ID, "error", err)
	}
	return rec
}

// Reinforce upserts a learned vendor rule from a correction. Only
// corrections that actually changed something and carry a usable vendor
// teach anything; manual rules are never downgraded to learned ones.
func (l *Logger) Reinforce(ctx context.Context, rec *model.CorrectionRecord) {
	if !rec.Corrected() || rec.Vendor == "" || rec.FinalCategory == "" {
		return
	}

	pattern := strings.ToLower(strings.TrimSpace(rec.Vendor))
	if pattern == "" {
		return
	}

	existing, err := l.store.FindVendorRule(ctx, pattern)
	if err == nil && existing != nil && existing.Source == model.RuleSourceManual {
		return
	}

	rule := &model.VendorRule{
		Pattern:             pattern,
		DefaultCategory:     rec.FinalCategory,
		DefaultJurisdiction: rec.FinalJurisdiction,
		Source:              model.RuleSourceLearned,
		Confidence:          learnedRuleConfidence,
	}
	if err := l.store.SaveVendorRule(ctx, rule); err != nil {
		slog.Error("Failed to save learned vendor rule",
			"pattern", pattern, "error", err)
		return
	}

	slog.Info("Learned vendor rule from correction",
		"pattern", pattern,
		"category", rule.DefaultCategory,
		"jurisdiction", rule.DefaultJurisdiction)
}

// CreateRule upserts a manual vendor rule from an explicit reviewer action.
func (l *Logger) CreateRule(ctx context.Context, vendor, category, jurisdiction string) error {
	rule := &model.VendorRule{
		Pattern:             strings.ToLower(strings.TrimSpace(vendor)),
		DefaultCategory:     category,
		DefaultJurisdiction: jurisdiction,
		Source:              model.RuleSourceManual,
		Confidence:          70,
	}
	return l.store.SaveVendorRule(ctx, rule)
}
