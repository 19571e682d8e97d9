// Package testutil provides shared helpers for tests: in-memory
// databases and domain fixture builders.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgermatch/ledgermatch/internal/model"
	"github.com/ledgermatch/ledgermatch/internal/service"
	"github.com/ledgermatch/ledgermatch/internal/storage"
)

// SetupTestDB creates a migrated in-memory SQLite store with cleanup
// registered on the test.
func SetupTestDB(t *testing.T) service.Storage {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

// Txn builds a bank transaction fixture with sensible defaults.
func Txn(amount string, date time.Time, description string) model.BankTransaction {
	txn := model.BankTransaction{
		ID:          uuid.New().String(),
		Date:        date,
		Description: description,
		Vendor:      model.ExtractVendor(description),
		Source:      "test-card",
		Amount:      decimal.RequireFromString(amount),
		Status:      model.TxnUnmatched,
	}
	txn.Hash = txn.GenerateHash()
	return txn
}

// Sub builds a pending submission fixture with sensible defaults.
func Sub(amount string, date time.Time, vendor string) *model.Submission {
	id := uuid.New().String()
	return &model.Submission{
		ID:         id,
		ExternalID: "ext-" + id,
		ReportID:   "report-1",
		Date:       date,
		Amount:     decimal.RequireFromString(amount),
		Vendor:     vendor,
		Category:   "Meals",
		Submitter:  "test.user",
		Status:     model.SubmissionPending,
	}
}

// SeedTxn saves one transaction and returns it.
func SeedTxn(t *testing.T, store service.Storage, txn model.BankTransaction) model.BankTransaction {
	t.Helper()
	if _, err := store.SaveBankTransactions(context.Background(), []model.BankTransaction{txn}); err != nil {
		t.Fatalf("failed to seed transaction: %v", err)
	}
	return txn
}

// SeedSub saves one submission and returns it.
func SeedSub(t *testing.T, store service.Storage, sub *model.Submission) *model.Submission {
	t.Helper()
	if _, err := store.SaveSubmission(context.Background(), sub); err != nil {
		t.Fatalf("failed to seed submission: %v", err)
	}
	return sub
}
