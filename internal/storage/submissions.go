package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgermatch/ledgermatch/internal/common"
	"github.com/ledgermatch/ledgermatch/internal/model"
)

const submissionColumns = `id, external_id, report_id, date, amount_cents,
	original_amount_cents, receipt_amount_cents, receipt_confidence, vendor,
	category, submitter, paid_through, jurisdiction_tag, receipt_ref,
	status, flag_kind, flag_reason, last_error, attempts, bank_txn_id,
	match_confidence, match_type, jurisdiction, jurisdiction_source,
	posted_id, reimburse_method, processed_at, created_at, updated_at`

// SaveSubmission inserts a submission, deduplicating on the external
// expense id. Returns false when the submission was already known.
func (s *SQLiteStorage) SaveSubmission(ctx context.Context, sub *model.Submission) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateSubmission(sub); err != nil {
		return false, err
	}

	if sub.Status == "" {
		sub.Status = model.SubmissionPending
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO submissions (
			id, external_id, report_id, date, amount_cents,
			receipt_amount_cents, receipt_confidence, vendor, category,
			submitter, paid_through, jurisdiction_tag, receipt_ref, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sub.ID,
		sub.ExternalID,
		sub.ReportID,
		sub.Date,
		model.Cents(sub.Amount),
		nullCents(sub.ReceiptAmount),
		sub.ReceiptConfidence,
		sub.Vendor,
		sub.Category,
		sub.Submitter,
		sub.PaidThrough,
		sub.JurisdictionTag,
		sub.ReceiptRef,
		string(sub.Status),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert submission: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetSubmission retrieves a submission by internal id.
func (s *SQLiteStorage) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getSubmissionWhere(ctx, "id = ?", id)
}

// GetSubmissionByExternalID retrieves a submission by the external
// expense system's id.
func (s *SQLiteStorage) GetSubmissionByExternalID(ctx context.Context, externalID string) (*model.Submission, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(externalID, "externalID"); err != nil {
		return nil, err
	}
	return s.getSubmissionWhere(ctx, "external_id = ?", externalID)
}

func (s *SQLiteStorage) getSubmissionWhere(ctx context.Context, where string, arg any) (*model.Submission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE `+where, arg)

	sub, err := scanSubmission(row)
	if err == sql.ErrNoRows {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return sub, nil
}

// GetSubmissionsByStatus retrieves all submissions in the given status,
// oldest first so processing order is stable.
func (s *SQLiteStorage) GetSubmissionsByStatus(ctx context.Context, status model.SubmissionStatus) ([]model.Submission, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE status = ? ORDER BY date ASC, id ASC`,
		string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectSubmissions(rows)
}

// BeginSubmissionProcessing claims a pending submission for matching.
// CAS on status = pending so concurrent match runs never double-process.
func (s *SQLiteStorage) BeginSubmissionProcessing(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE submissions
		SET status = 'processing', attempts = attempts + 1, updated_at = ?
		WHERE id = ? AND status = 'pending'
	`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to begin processing: %w", err)
	}
	return casOutcome(res, id)
}

// ReturnSubmissionToPending releases a processing claim after a
// transient failure so the next run can retry.
func (s *SQLiteStorage) ReturnSubmissionToPending(ctx context.Context, id, lastError string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE submissions
		SET status = 'pending', last_error = ?, updated_at = ?
		WHERE id = ? AND status = 'processing'
	`, lastError, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to return submission to pending: %w", err)
	}
	return casOutcome(res, id)
}

// ApplyAmountCorrection rewrites the submission amount from the receipt,
// preserving the submitter's claimed amount for audit. First correction
// wins the original_amount slot; reprocessing does not overwrite it.
func (s *SQLiteStorage) ApplyAmountCorrection(ctx context.Context, id string, corrected decimal.Decimal) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE submissions
		SET original_amount_cents = COALESCE(original_amount_cents, amount_cents),
		    amount_cents = ?, updated_at = ?
		WHERE id = ?
	`, model.Cents(corrected), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to apply amount correction: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// RecordMatchResult writes the matcher's decision onto a processing
// submission and advances it to matched_high_confidence.
func (s *SQLiteStorage) RecordMatchResult(ctx context.Context, id string, result model.MatchResult) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE submissions
		SET status = 'matched_high_confidence',
		    bank_txn_id = ?, match_confidence = ?, match_type = ?,
		    jurisdiction = ?, jurisdiction_source = ?,
		    category = CASE WHEN ? != '' THEN ? ELSE category END,
		    processed_at = ?, updated_at = ?
		WHERE id = ? AND status = 'processing'
	`,
		result.BankTxnID, result.Confidence, string(result.MatchType),
		result.Jurisdiction, string(result.JurisdictionSource),
		result.Category, result.Category,
		time.Now().UTC(), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to record match result: %w", err)
	}
	return casOutcome(res, id)
}

// FlagSubmission routes a submission to the review queue with the best
// available suggestion pre-filled for the reviewer.
func (s *SQLiteStorage) FlagSubmission(ctx context.Context, id string, kind model.FlagKind, reason string, result model.MatchResult) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE submissions
		SET status = 'flagged', flag_kind = ?, flag_reason = ?,
		    bank_txn_id = ?, match_confidence = ?, match_type = ?,
		    jurisdiction = ?, jurisdiction_source = ?,
		    processed_at = ?, updated_at = ?
		WHERE id = ? AND status IN ('pending', 'processing')
	`,
		string(kind), reason,
		result.BankTxnID, result.Confidence, string(result.MatchType),
		result.Jurisdiction, string(result.JurisdictionSource),
		time.Now().UTC(), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to flag submission: %w", err)
	}
	return casOutcome(res, id)
}

// MarkSubmissionPosted finalizes a submission after the ledger accepted
// the posting. Valid from matched_high_confidence (auto path) and
// flagged (adjudicated path).
func (s *SQLiteStorage) MarkSubmissionPosted(ctx context.Context, id, postedID, reimburseMethod string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE submissions
		SET status = 'posted', posted_id = ?, reimburse_method = ?, updated_at = ?
		WHERE id = ? AND status IN ('matched_high_confidence', 'flagged')
	`, postedID, reimburseMethod, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark submission posted: %w", err)
	}
	return casOutcome(res, id)
}

// MarkSubmissionCorrected advances a posted submission to corrected,
// recording that the posting carried human corrections rather than the
// matcher's suggestion. Both are terminal posted states.
func (s *SQLiteStorage) MarkSubmissionCorrected(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE submissions
		SET status = 'corrected', updated_at = ?
		WHERE id = ? AND status = 'posted'
	`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark submission corrected: %w", err)
	}
	return casOutcome(res, id)
}

// RejectSubmission terminally rejects a flagged submission.
func (s *SQLiteStorage) RejectSubmission(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE submissions
		SET status = 'rejected', updated_at = ?
		WHERE id = ? AND status = 'flagged'
	`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to reject submission: %w", err)
	}
	return casOutcome(res, id)
}

// ResubmitSubmission applies human corrections and returns the
// submission to the pending pool for a fresh matching pass. Prior match
// fields are cleared so the rerun starts clean.
func (s *SQLiteStorage) ResubmitSubmission(ctx context.Context, id string, overrides model.ActionOverrides) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	sub, err := s.GetSubmission(ctx, id)
	if err != nil {
		return err
	}

	amountCents := model.Cents(sub.Amount)
	if overrides.Amount != nil {
		amountCents = model.Cents(*overrides.Amount)
	}
	date := sub.Date
	if overrides.Date != nil {
		date = *overrides.Date
	}
	category := sub.Category
	if overrides.Category != "" {
		category = overrides.Category
	}
	jurisdictionTag := sub.JurisdictionTag
	if overrides.Jurisdiction != "" {
		jurisdictionTag = overrides.Jurisdiction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE submissions
		SET status = 'pending', flag_kind = '', flag_reason = '', last_error = '',
		    attempts = 0, bank_txn_id = '', match_confidence = 0, match_type = '',
		    jurisdiction = '', jurisdiction_source = '',
		    amount_cents = ?, date = ?, category = ?, jurisdiction_tag = ?,
		    updated_at = ?
		WHERE id = ? AND status IN ('flagged', 'rejected')
	`, amountCents, date, category, jurisdictionTag, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to resubmit submission: %w", err)
	}
	return casOutcome(res, id)
}

// GetStuckSubmissions returns submissions left in processing since
// before the cutoff, typically after a crash mid-run.
func (s *SQLiteStorage) GetStuckSubmissions(ctx context.Context, stuckSince time.Time) ([]model.Submission, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+submissionColumns+`
		FROM submissions
		WHERE status = 'processing' AND updated_at < ?
		ORDER BY updated_at ASC
	`, stuckSince)
	if err != nil {
		return nil, fmt.Errorf("failed to query stuck submissions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectSubmissions(rows)
}

func nullCents(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return model.Cents(*d)
}

func scanSubmission(row rowScanner) (*model.Submission, error) {
	var sub model.Submission
	var amountCents int64
	var originalCents, receiptCents sql.NullInt64
	var reportID, vendor, category, submitter, paidThrough sql.NullString
	var jurisdictionTag, receiptRef sql.NullString
	var status, flagKind, matchType, jurisdictionSource string
	var processedAt sql.NullTime

	err := row.Scan(
		&sub.ID,
		&sub.ExternalID,
		&reportID,
		&sub.Date,
		&amountCents,
		&originalCents,
		&receiptCents,
		&sub.ReceiptConfidence,
		&vendor,
		&category,
		&submitter,
		&paidThrough,
		&jurisdictionTag,
		&receiptRef,
		&status,
		&flagKind,
		&sub.FlagReason,
		&sub.LastError,
		&sub.Attempts,
		&sub.BankTxnID,
		&sub.MatchConfidence,
		&matchType,
		&sub.Jurisdiction,
		&jurisdictionSource,
		&sub.PostedID,
		&sub.ReimburseMethod,
		&processedAt,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	sub.Amount = model.FromCents(amountCents)
	if originalCents.Valid {
		d := model.FromCents(originalCents.Int64)
		sub.OriginalAmount = &d
	}
	if receiptCents.Valid {
		d := model.FromCents(receiptCents.Int64)
		sub.ReceiptAmount = &d
	}
	sub.ReportID = reportID.String
	sub.Vendor = vendor.String
	sub.Category = category.String
	sub.Submitter = submitter.String
	sub.PaidThrough = paidThrough.String
	sub.JurisdictionTag = jurisdictionTag.String
	sub.ReceiptRef = receiptRef.String
	sub.Status = model.SubmissionStatus(status)
	sub.FlagKind = model.FlagKind(flagKind)
	sub.MatchType = model.MatchType(matchType)
	sub.JurisdictionSource = model.JurisdictionSource(jurisdictionSource)
	if processedAt.Valid {
		t := processedAt.Time
		sub.ProcessedAt = &t
	}

	return &sub, nil
}

func collectSubmissions(rows *sql.Rows) ([]model.Submission, error) {
	var subs []model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}
