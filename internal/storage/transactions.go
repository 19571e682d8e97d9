package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ledgermatch/ledgermatch/internal/common"
	"github.com/ledgermatch/ledgermatch/internal/model"
	"github.com/ledgermatch/ledgermatch/internal/service"
)

const bankTxnColumns = `id, hash, date, description, vendor, source, amount_cents,
	status, matched_submission, matched_by, matched_at, category, jurisdiction,
	resolution_method, resolved_at, posted_id, import_batch_id, created_at`

// SaveBankTransactions appends transactions idempotently: rows whose
// content hash already exists are skipped, not errors. Returns the number
// of newly inserted rows.
func (s *SQLiteStorage) SaveBankTransactions(ctx context.Context, txns []model.BankTransaction) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	for i := range txns {
		if err := validateBankTransaction(&txns[i]); err != nil {
			return 0, fmt.Errorf("transaction at index %d: %w", i, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO bank_transactions (
			id, hash, date, description, vendor, source, amount_cents,
			status, import_batch_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	inserted := 0
	for _, txn := range txns {
		if txn.Hash == "" {
			txn.Hash = txn.GenerateHash()
		}
		if txn.Status == "" {
			txn.Status = model.TxnUnmatched
		}
		if txn.Vendor == "" {
			txn.Vendor = model.ExtractVendor(txn.Description)
		}

		res, execErr := stmt.ExecContext(ctx,
			txn.ID,
			txn.Hash,
			txn.Date,
			txn.Description,
			txn.Vendor,
			txn.Source,
			model.Cents(txn.Amount),
			string(txn.Status),
			txn.ImportBatchID,
		)
		if execErr != nil {
			return 0, fmt.Errorf("failed to insert transaction %s: %w", txn.ID, execErr)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return inserted, nil
}

// GetBankTransaction retrieves a single bank transaction by id.
func (s *SQLiteStorage) GetBankTransaction(ctx context.Context, id string) (*model.BankTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+bankTxnColumns+` FROM bank_transactions WHERE id = ?`, id)

	txn, err := scanBankTransaction(row)
	if err == sql.ErrNoRows {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

// GetBankTransactionsByStatus retrieves all transactions in the given status.
func (s *SQLiteStorage) GetBankTransactionsByStatus(ctx context.Context, status model.BankTransactionStatus) ([]model.BankTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+bankTxnColumns+` FROM bank_transactions WHERE status = ? ORDER BY date ASC`,
		string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectBankTransactions(rows)
}

// FindCandidateTransactions returns unmatched transactions inside the
// amount and date tolerance window, newest first. Ranking beyond the
// window is the matcher's job.
func (s *SQLiteStorage) FindCandidateTransactions(ctx context.Context, window service.CandidateWindow) ([]model.BankTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	centerCents := model.Cents(window.Amount)
	tolCents := model.Cents(window.AmountTolerance)
	startDate := window.Date.AddDate(0, 0, -window.DateToleranceDays)
	endDate := window.Date.AddDate(0, 0, window.DateToleranceDays)

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+bankTxnColumns+`
		FROM bank_transactions
		WHERE status = 'unmatched'
		  AND amount_cents BETWEEN ? AND ?
		  AND date BETWEEN ? AND ?
		ORDER BY date DESC
	`, centerCents-tolCents, centerCents+tolCents, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectBankTransactions(rows)
}

// GetOrphanCandidates returns unmatched transactions older than the
// cutoff, oldest first, limited per sweep run.
func (s *SQLiteStorage) GetOrphanCandidates(ctx context.Context, olderThan time.Time, limit int) ([]model.BankTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+bankTxnColumns+`
		FROM bank_transactions
		WHERE status = 'unmatched' AND date < ?
		ORDER BY date ASC
		LIMIT ?
	`, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query orphan candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectBankTransactions(rows)
}

// ClaimBankTransaction links a transaction to a submission. The claim is
// compare-and-set on status = unmatched so two paths can never match the
// same transaction to different submissions.
func (s *SQLiteStorage) ClaimBankTransaction(ctx context.Context, txnID, submissionID, matchedBy string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(txnID, "txnID"); err != nil {
		return err
	}
	if err := validateString(submissionID, "submissionID"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE bank_transactions
		SET status = 'matched', matched_submission = ?, matched_by = ?, matched_at = ?
		WHERE id = ? AND status = 'unmatched'
	`, submissionID, matchedBy, time.Now().UTC(), txnID)
	if err != nil {
		return fmt.Errorf("failed to claim transaction: %w", err)
	}
	return casOutcome(res, txnID)
}

// ReleaseBankTransaction returns a matched transaction to the unmatched
// pool, used when a human revises a prior match.
func (s *SQLiteStorage) ReleaseBankTransaction(ctx context.Context, txnID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(txnID, "txnID"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE bank_transactions
		SET status = 'unmatched', matched_submission = NULL, matched_by = NULL, matched_at = NULL
		WHERE id = ? AND status = 'matched'
	`, txnID)
	if err != nil {
		return fmt.Errorf("failed to release transaction: %w", err)
	}
	return casOutcome(res, txnID)
}

// ResolveOrphan finalizes an orphan transaction: category and
// jurisdiction assigned, posted to the ledger, no submission involved.
func (s *SQLiteStorage) ResolveOrphan(ctx context.Context, txnID, category, jurisdiction, method, postedID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(txnID, "txnID"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE bank_transactions
		SET status = 'orphan_processed', category = ?, jurisdiction = ?,
		    resolution_method = ?, posted_id = ?, resolved_at = ?
		WHERE id = ? AND status IN ('unmatched', 'pending_review')
	`, category, jurisdiction, method, postedID, time.Now().UTC(), txnID)
	if err != nil {
		return fmt.Errorf("failed to resolve orphan: %w", err)
	}
	return casOutcome(res, txnID)
}

// QueueOrphanForReview parks an orphan for human adjudication with
// whatever the sweep could suggest. Re-running the sweep skips it.
func (s *SQLiteStorage) QueueOrphanForReview(ctx context.Context, txnID, suggestedCategory, suggestedJurisdiction string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(txnID, "txnID"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE bank_transactions
		SET status = 'pending_review', category = ?, jurisdiction = ?
		WHERE id = ? AND status = 'unmatched'
	`, suggestedCategory, suggestedJurisdiction, txnID)
	if err != nil {
		return fmt.Errorf("failed to queue orphan: %w", err)
	}
	return casOutcome(res, txnID)
}

// ExcludeBankTransaction marks a transaction as non-business activity.
// Terminal; never posted.
func (s *SQLiteStorage) ExcludeBankTransaction(ctx context.Context, txnID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(txnID, "txnID"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE bank_transactions
		SET status = 'excluded', resolved_at = ?
		WHERE id = ? AND status IN ('unmatched', 'pending_review')
	`, time.Now().UTC(), txnID)
	if err != nil {
		return fmt.Errorf("failed to exclude transaction: %w", err)
	}
	return casOutcome(res, txnID)
}

// SetBankTransactionPostedID records the ledger id on a transaction.
func (s *SQLiteStorage) SetBankTransactionPostedID(ctx context.Context, txnID, postedID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(txnID, "txnID"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE bank_transactions SET posted_id = ? WHERE id = ?
	`, postedID, txnID)
	if err != nil {
		return fmt.Errorf("failed to set posted id: %w", err)
	}
	return nil
}

// casOutcome converts an UPDATE result into the CAS contract: zero rows
// affected means the record was not in the expected status.
func casOutcome(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", common.ErrStatusConflict, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBankTransaction(row rowScanner) (*model.BankTransaction, error) {
	var txn model.BankTransaction
	var amountCents int64
	var status string
	var vendor, matchedSubmission, matchedBy, category, jurisdiction sql.NullString
	var resolutionMethod, postedID, importBatchID sql.NullString
	var matchedAt, resolvedAt sql.NullTime

	err := row.Scan(
		&txn.ID,
		&txn.Hash,
		&txn.Date,
		&txn.Description,
		&vendor,
		&txn.Source,
		&amountCents,
		&status,
		&matchedSubmission,
		&matchedBy,
		&matchedAt,
		&category,
		&jurisdiction,
		&resolutionMethod,
		&resolvedAt,
		&postedID,
		&importBatchID,
		&txn.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	txn.Amount = model.FromCents(amountCents)
	txn.Status = model.BankTransactionStatus(status)
	txn.Vendor = vendor.String
	txn.MatchedSubmission = matchedSubmission.String
	txn.MatchedBy = matchedBy.String
	txn.Category = category.String
	txn.Jurisdiction = jurisdiction.String
	txn.ResolutionMethod = resolutionMethod.String
	txn.PostedID = postedID.String
	txn.ImportBatchID = importBatchID.String
	if matchedAt.Valid {
		t := matchedAt.Time
		txn.MatchedAt = &t
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		txn.ResolvedAt = &t
	}

	return &txn, nil
}

func collectBankTransactions(rows *sql.Rows) ([]model.BankTransaction, error) {
	var txns []model.BankTransaction
	for rows.Next() {
		txn, err := scanBankTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, *txn)
	}
	return txns, rows.Err()
}
