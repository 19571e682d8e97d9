package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version the application expects.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema: bank transactions, submissions, vendor rules",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS bank_transactions (
					id TEXT PRIMARY KEY,
					hash TEXT UNIQUE NOT NULL,
					date DATETIME NOT NULL,
					description TEXT NOT NULL,
					vendor TEXT,
					source TEXT NOT NULL,
					amount_cents INTEGER NOT NULL,
					status TEXT NOT NULL DEFAULT 'unmatched',
					matched_submission TEXT,
					matched_by TEXT,
					matched_at DATETIME,
					category TEXT,
					jurisdiction TEXT,
					resolution_method TEXT,
					resolved_at DATETIME,
					posted_id TEXT,
					import_batch_id TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_bank_transactions_status ON bank_transactions(status)`,
				`CREATE INDEX idx_bank_transactions_date ON bank_transactions(date)`,
				`CREATE INDEX idx_bank_transactions_amount ON bank_transactions(amount_cents)`,

				`CREATE TABLE IF NOT EXISTS submissions (
					id TEXT PRIMARY KEY,
					external_id TEXT UNIQUE NOT NULL,
					report_id TEXT,
					date DATETIME NOT NULL,
					amount_cents INTEGER NOT NULL,
					original_amount_cents INTEGER,
					receipt_amount_cents INTEGER,
					receipt_confidence INTEGER NOT NULL DEFAULT 0,
					vendor TEXT,
					category TEXT,
					submitter TEXT,
					paid_through TEXT,
					jurisdiction_tag TEXT,
					receipt_ref TEXT,
					status TEXT NOT NULL DEFAULT 'pending',
					flag_kind TEXT NOT NULL DEFAULT '',
					flag_reason TEXT NOT NULL DEFAULT '',
					last_error TEXT NOT NULL DEFAULT '',
					attempts INTEGER NOT NULL DEFAULT 0,
					bank_txn_id TEXT NOT NULL DEFAULT '',
					match_confidence INTEGER NOT NULL DEFAULT 0,
					match_type TEXT NOT NULL DEFAULT '',
					jurisdiction TEXT NOT NULL DEFAULT '',
					jurisdiction_source TEXT NOT NULL DEFAULT '',
					posted_id TEXT NOT NULL DEFAULT '',
					reimburse_method TEXT NOT NULL DEFAULT '',
					processed_at DATETIME,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_submissions_status ON submissions(status)`,
				`CREATE INDEX idx_submissions_report ON submissions(report_id)`,

				`CREATE TABLE IF NOT EXISTS vendor_rules (
					pattern TEXT PRIMARY KEY,
					default_category TEXT NOT NULL,
					default_jurisdiction TEXT NOT NULL DEFAULT '',
					source TEXT NOT NULL DEFAULT 'MANUAL',
					confidence INTEGER NOT NULL DEFAULT 70,
					use_count INTEGER NOT NULL DEFAULT 0,
					last_matched DATETIME,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Correction log and processing errors",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS corrections (
					id TEXT PRIMARY KEY,
					submission_id TEXT NOT NULL,
					vendor TEXT NOT NULL DEFAULT '',
					predicted_category TEXT NOT NULL DEFAULT '',
					final_category TEXT NOT NULL DEFAULT '',
					predicted_jurisdiction TEXT NOT NULL DEFAULT '',
					final_jurisdiction TEXT NOT NULL DEFAULT '',
					predicted_txn_id TEXT NOT NULL DEFAULT '',
					final_txn_id TEXT NOT NULL DEFAULT '',
					predicted_confidence INTEGER NOT NULL DEFAULT 0,
					amount_cents INTEGER NOT NULL DEFAULT 0,
					source TEXT NOT NULL DEFAULT 'human',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_corrections_submission ON corrections(submission_id)`,

				`CREATE TABLE IF NOT EXISTS processing_errors (
					id TEXT PRIMARY KEY,
					submission_id TEXT NOT NULL DEFAULT '',
					txn_id TEXT NOT NULL DEFAULT '',
					stage TEXT NOT NULL,
					message TEXT NOT NULL,
					state TEXT NOT NULL DEFAULT 'new',
					retry_count INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_processing_errors_state ON processing_errors(state)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Index matched submissions for the posted/marked audit",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE INDEX IF NOT EXISTS idx_bank_transactions_matched_submission ON bank_transactions(matched_submission)`,
				`CREATE INDEX IF NOT EXISTS idx_submissions_posted ON submissions(posted_id)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
}

// Migrate brings the database schema up to the latest version.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		slog.Info("Applying migration",
			"version", migration.Version,
			"description", migration.Description)

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration transaction: %w", err)
		}

		if err := migration.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}

		// PRAGMA does not support placeholders.
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to set schema version: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version of the database.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}
