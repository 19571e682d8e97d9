package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ledgermatch/ledgermatch/internal/common"
	"github.com/ledgermatch/ledgermatch/internal/model"
)

// AppendCorrection writes one correction-log entry. The log is
// append-only; entries are never updated or deleted.
func (s *SQLiteStorage) AppendCorrection(ctx context.Context, rec *model.CorrectionRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("%w: record", ErrNilParameter)
	}
	if err := validateString(rec.SubmissionID, "submissionID"); err != nil {
		return err
	}

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Source == "" {
		rec.Source = "human"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO corrections (
			id, submission_id, vendor,
			predicted_category, final_category,
			predicted_jurisdiction, final_jurisdiction,
			predicted_txn_id, final_txn_id,
			predicted_confidence, amount_cents, source
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID, rec.SubmissionID, rec.Vendor,
		rec.PredictedCategory, rec.FinalCategory,
		rec.PredictedJurisdiction, rec.FinalJurisdiction,
		rec.PredictedTxnID, rec.FinalTxnID,
		rec.PredictedConfidence, model.Cents(rec.Amount), rec.Source,
	)
	if err != nil {
		return fmt.Errorf("failed to append correction: %w", err)
	}
	return nil
}

// GetCorrections returns the most recent correction entries, newest first.
func (s *SQLiteStorage) GetCorrections(ctx context.Context, limit int) ([]model.CorrectionRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, submission_id, vendor,
		       predicted_category, final_category,
		       predicted_jurisdiction, final_jurisdiction,
		       predicted_txn_id, final_txn_id,
		       predicted_confidence, amount_cents, source, created_at
		FROM corrections
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query corrections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var recs []model.CorrectionRecord
	for rows.Next() {
		var rec model.CorrectionRecord
		var amountCents int64
		if scanErr := rows.Scan(
			&rec.ID, &rec.SubmissionID, &rec.Vendor,
			&rec.PredictedCategory, &rec.FinalCategory,
			&rec.PredictedJurisdiction, &rec.FinalJurisdiction,
			&rec.PredictedTxnID, &rec.FinalTxnID,
			&rec.PredictedConfidence, &amountCents, &rec.Source, &rec.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan correction: %w", scanErr)
		}
		rec.Amount = model.FromCents(amountCents)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// RecordProcessingError records an external failure for later triage.
func (s *SQLiteStorage) RecordProcessingError(ctx context.Context, perr *model.ProcessingError) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if perr == nil {
		return fmt.Errorf("%w: processing error", ErrNilParameter)
	}
	if err := validateString(perr.Stage, "stage"); err != nil {
		return err
	}
	if err := validateString(perr.Message, "message"); err != nil {
		return err
	}

	if perr.ID == "" {
		perr.ID = uuid.New().String()
	}
	if perr.State == "" {
		perr.State = model.ErrorNew
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processing_errors (id, submission_id, txn_id, stage, message, state, retry_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, perr.ID, perr.SubmissionID, perr.TxnID, perr.Stage, perr.Message, string(perr.State), perr.RetryCount)
	if err != nil {
		return fmt.Errorf("failed to record processing error: %w", err)
	}
	return nil
}

// GetProcessingError retrieves a processing error by id.
func (s *SQLiteStorage) GetProcessingError(ctx context.Context, id string) (*model.ProcessingError, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, submission_id, txn_id, stage, message, state, retry_count, created_at, updated_at
		FROM processing_errors WHERE id = ?
	`, id)

	perr, err := scanProcessingError(row)
	if err == sql.ErrNoRows {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get processing error: %w", err)
	}
	return perr, nil
}

// GetProcessingErrorsByState returns errors in any of the given states,
// oldest first.
func (s *SQLiteStorage) GetProcessingErrorsByState(ctx context.Context, states ...model.ProcessingErrorState) ([]model.ProcessingError, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if len(states) == 0 {
		states = []model.ProcessingErrorState{model.ErrorNew}
	}

	placeholders := make([]string, len(states))
	args := make([]any, len(states))
	for i, st := range states {
		placeholders[i] = "?"
		args[i] = string(st)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, submission_id, txn_id, stage, message, state, retry_count, created_at, updated_at
		FROM processing_errors
		WHERE state IN (`+strings.Join(placeholders, ", ")+`)
		ORDER BY created_at ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query processing errors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var perrs []model.ProcessingError
	for rows.Next() {
		perr, scanErr := scanProcessingError(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan processing error: %w", scanErr)
		}
		perrs = append(perrs, *perr)
	}
	return perrs, rows.Err()
}

// UpdateProcessingErrorState moves an error through its triage lifecycle.
func (s *SQLiteStorage) UpdateProcessingErrorState(ctx context.Context, id string, state model.ProcessingErrorState) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE processing_errors SET state = ?, updated_at = ? WHERE id = ?
	`, string(state), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update processing error: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// IncrementProcessingErrorRetry bumps the retry counter after a retry attempt.
func (s *SQLiteStorage) IncrementProcessingErrorRetry(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE processing_errors SET retry_count = retry_count + 1, updated_at = ? WHERE id = ?
	`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to increment retry count: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func scanProcessingError(row rowScanner) (*model.ProcessingError, error) {
	var perr model.ProcessingError
	var state string

	err := row.Scan(
		&perr.ID,
		&perr.SubmissionID,
		&perr.TxnID,
		&perr.Stage,
		&perr.Message,
		&state,
		&perr.RetryCount,
		&perr.CreatedAt,
		&perr.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	perr.State = model.ProcessingErrorState(state)
	return &perr, nil
}
