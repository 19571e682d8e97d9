package storage_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgermatch/ledgermatch/internal/common"
	"github.com/ledgermatch/ledgermatch/internal/model"
	"github.com/ledgermatch/ledgermatch/internal/service"
	"github.com/ledgermatch/ledgermatch/internal/testutil"
)

func TestSaveBankTransactions_Idempotent(t *testing.T) {
	store := testutil.SetupTestDB(t)
	ctx := context.Background()

	txn := testutil.Txn("54.30", time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), "PURCHASE WALMART #1234")

	created, err := store.SaveBankTransactions(ctx, []model.BankTransaction{txn})
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	// Same content, different id: the hash dedupes it.
	dup := testutil.Txn("54.30", time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), "PURCHASE WALMART #1234")
	created, err = store.SaveBankTransactions(ctx, []model.BankTransaction{dup})
	require.NoError(t, err)
	assert.Equal(t, 0, created)

	unmatched, err := store.GetBankTransactionsByStatus(ctx, model.TxnUnmatched)
	require.NoError(t, err)
	assert.Len(t, unmatched, 1)
}

func TestFindCandidateTransactions_Window(t *testing.T) {
	store := testutil.SetupTestDB(t)
	ctx := context.Background()

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	inside := testutil.SeedTxn(t, store, testutil.Txn("54.30", day, "PURCHASE WALMART #1"))
	nearAmount := testutil.SeedTxn(t, store, testutil.Txn("54.90", day.AddDate(0, 0, 2), "PURCHASE WALMART #2"))
	farAmount := testutil.Txn("60.00", day, "PURCHASE WALMART #3")
	farDate := testutil.Txn("54.30", day.AddDate(0, 0, 10), "PURCHASE WALMART #4")
	testutil.SeedTxn(t, store, farAmount)
	testutil.SeedTxn(t, store, farDate)

	candidates, err := store.FindCandidateTransactions(ctx, service.CandidateWindow{
		Amount:            decimal.RequireFromString("54.30"),
		Date:              day,
		AmountTolerance:   decimal.NewFromInt(1),
		DateToleranceDays: 3,
	})
	require.NoError(t, err)

	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}
	assert.ElementsMatch(t, []string{inside.ID, nearAmount.ID}, ids)
}

func TestClaimBankTransaction_CAS(t *testing.T) {
	store := testutil.SetupTestDB(t)
	ctx := context.Background()

	txn := testutil.SeedTxn(t, store, testutil.Txn("20.00", time.Now().UTC(), "POS CAFE"))

	require.NoError(t, store.ClaimBankTransaction(ctx, txn.ID, "sub-1", "matcher"))

	// A second claim loses the race.
	err := store.ClaimBankTransaction(ctx, txn.ID, "sub-2", "matcher")
	require.ErrorIs(t, err, common.ErrStatusConflict)

	got, err := store.GetBankTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TxnMatched, got.Status)
	assert.Equal(t, "sub-1", got.MatchedSubmission)
	assert.Equal(t, "matcher", got.MatchedBy)

	// Release returns it to the pool; the next claim succeeds.
	require.NoError(t, store.ReleaseBankTransaction(ctx, txn.ID))
	require.NoError(t, store.ClaimBankTransaction(ctx, txn.ID, "sub-2", "human"))
}

func TestClaimBankTransaction_ConcurrentClaimsSingleWinner(t *testing.T) {
	store := testutil.SetupTestDB(t)
	ctx := context.Background()

	txn := testutil.SeedTxn(t, store, testutil.Txn("20.00", time.Now().UTC(), "POS CAFE"))

	const claimants = 8
	errs := make([]error, claimants)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = store.ClaimBankTransaction(ctx, txn.ID, fmt.Sprintf("sub-%d", i), "matcher")
		}(i)
	}
	close(start)
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		assert.ErrorIs(t, err, common.ErrStatusConflict)
	}
	assert.Equal(t, 1, winners)

	got, err := store.GetBankTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TxnMatched, got.Status)
	assert.NotEmpty(t, got.MatchedSubmission)
}

func TestSaveSubmission_DedupesOnExternalID(t *testing.T) {
	store := testutil.SetupTestDB(t)
	ctx := context.Background()

	sub := testutil.Sub("33.00", time.Now().UTC(), "Cafe")
	sub.ExternalID = "ext-fixed"

	created, err := store.SaveSubmission(ctx, sub)
	require.NoError(t, err)
	assert.True(t, created)

	again := testutil.Sub("33.00", time.Now().UTC(), "Cafe")
	again.ExternalID = "ext-fixed"
	created, err = store.SaveSubmission(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestSubmissionLifecycle(t *testing.T) {
	store := testutil.SetupTestDB(t)
	ctx := context.Background()

	sub := testutil.SeedSub(t, store, testutil.Sub("33.00", time.Now().UTC(), "Cafe"))

	require.NoError(t, store.BeginSubmissionProcessing(ctx, sub.ID))

	// Double-claim loses.
	err := store.BeginSubmissionProcessing(ctx, sub.ID)
	require.ErrorIs(t, err, common.ErrStatusConflict)

	result := model.MatchResult{
		BankTxnID:          "txn-1",
		MatchType:          model.MatchExact,
		Jurisdiction:       "CA",
		JurisdictionSource: model.SourceExplicitTag,
		Category:           "Meals",
		Confidence:         100,
	}
	require.NoError(t, store.RecordMatchResult(ctx, sub.ID, result))
	require.NoError(t, store.MarkSubmissionPosted(ctx, sub.ID, "posted-1", ""))

	got, err := store.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionPosted, got.Status)
	assert.Equal(t, "posted-1", got.PostedID)
	assert.Equal(t, "txn-1", got.BankTxnID)
	assert.Equal(t, 100, got.MatchConfidence)
	assert.Equal(t, 1, got.Attempts)

	// Posting twice is a status conflict, not a silent overwrite.
	err = store.MarkSubmissionPosted(ctx, sub.ID, "posted-2", "")
	require.ErrorIs(t, err, common.ErrStatusConflict)

	// A posted submission can be promoted to corrected exactly once.
	require.NoError(t, store.MarkSubmissionCorrected(ctx, sub.ID))
	got, err = store.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionCorrected, got.Status)
	assert.True(t, got.Status.Posted())
	err = store.MarkSubmissionCorrected(ctx, sub.ID)
	require.ErrorIs(t, err, common.ErrStatusConflict)
}

func TestApplyAmountCorrection_PreservesOriginalOnce(t *testing.T) {
	store := testutil.SetupTestDB(t)
	ctx := context.Background()

	sub := testutil.SeedSub(t, store, testutil.Sub("40.00", time.Now().UTC(), "Cafe"))

	require.NoError(t, store.ApplyAmountCorrection(ctx, sub.ID, decimal.RequireFromString("45.00")))
	require.NoError(t, store.ApplyAmountCorrection(ctx, sub.ID, decimal.RequireFromString("46.00")))

	got, err := store.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("46.00")))
	require.NotNil(t, got.OriginalAmount)
	// The submitter's claim survives the second correction.
	assert.True(t, got.OriginalAmount.Equal(decimal.RequireFromString("40.00")))
}

func TestFindVendorRule_FirstMatchWins(t *testing.T) {
	store := testutil.SetupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.SaveVendorRule(ctx, &model.VendorRule{
		Pattern: "walmart", DefaultCategory: "Supplies", Confidence: 70,
	}))
	require.NoError(t, store.SaveVendorRule(ctx, &model.VendorRule{
		Pattern: "walmart supercenter", DefaultCategory: "Groceries", Confidence: 70,
	}))

	rule, err := store.FindVendorRule(ctx, "WALMART SUPERCENTER #1234")
	require.NoError(t, err)
	// Insertion order decides, not specificity.
	assert.Equal(t, "walmart", rule.Pattern)
	assert.Equal(t, "Supplies", rule.DefaultCategory)

	_, err = store.FindVendorRule(ctx, "DELTA AIR")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestGetOrphanCandidates(t *testing.T) {
	store := testutil.SetupTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC()
	old := testutil.SeedTxn(t, store, testutil.Txn("10.00", now.AddDate(0, 0, -10), "POS OLD CAFE"))
	testutil.SeedTxn(t, store, testutil.Txn("11.00", now, "POS FRESH CAFE"))

	orphans, err := store.GetOrphanCandidates(ctx, now.AddDate(0, 0, -5), 20)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, old.ID, orphans[0].ID)

	// Queueing for review removes it from subsequent sweeps.
	require.NoError(t, store.QueueOrphanForReview(ctx, old.ID, "Meals", ""))
	orphans, err = store.GetOrphanCandidates(ctx, now.AddDate(0, 0, -5), 20)
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

func TestProcessingErrors(t *testing.T) {
	store := testutil.SetupTestDB(t)
	ctx := context.Background()

	perr := &model.ProcessingError{
		SubmissionID: "sub-1",
		Stage:        "ledger_post",
		Message:      "ledger unavailable: status 503",
	}
	require.NoError(t, store.RecordProcessingError(ctx, perr))
	require.NotEmpty(t, perr.ID)

	open, err := store.GetProcessingErrorsByState(ctx, model.ErrorNew)
	require.NoError(t, err)
	require.Len(t, open, 1)

	require.NoError(t, store.UpdateProcessingErrorState(ctx, perr.ID, model.ErrorResolved))
	open, err = store.GetProcessingErrorsByState(ctx, model.ErrorNew, model.ErrorInvestigating)
	require.NoError(t, err)
	assert.Empty(t, open)
}
