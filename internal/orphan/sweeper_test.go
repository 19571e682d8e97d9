package orphan_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgermatch/ledgermatch/internal/ledger"
	"github.com/ledgermatch/ledgermatch/internal/model"
	"github.com/ledgermatch/ledgermatch/internal/orphan"
	"github.com/ledgermatch/ledgermatch/internal/testutil"
)

func TestSweep_RuleWithJurisdictionPosts(t *testing.T) {
	store := testutil.SetupTestDB(t)
	poster := ledger.NewRecorder()
	ctx := context.Background()

	require.NoError(t, store.SaveVendorRule(ctx, &model.VendorRule{
		Pattern:             "walmart",
		DefaultCategory:     "Supplies",
		DefaultJurisdiction: "NC",
		Confidence:          70,
	}))

	old := time.Now().UTC().AddDate(0, 0, -10)
	txn := testutil.SeedTxn(t, store, testutil.Txn("31.42", old, "PURCHASE WALMART #1234"))

	summary, err := orphan.NewSweeper(store, poster, 5, 20).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Examined)
	assert.Equal(t, 1, summary.Posted)
	assert.Equal(t, 0, summary.Queued)

	require.Len(t, poster.Requests, 1)
	assert.Equal(t, "orphan:"+txn.ID, poster.Requests[0].IdempotencyKey)

	got, err := store.GetBankTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TxnOrphanProcessed, got.Status)
	assert.Equal(t, "Supplies", got.Category)
	assert.Equal(t, "NC", got.Jurisdiction)
	assert.Equal(t, "vendor_rule", got.ResolutionMethod)
	assert.NotEmpty(t, got.PostedID)
}

func TestSweep_RuleWithoutJurisdictionQueues(t *testing.T) {
	store := testutil.SetupTestDB(t)
	poster := ledger.NewRecorder()
	ctx := context.Background()

	// The rule knows the category but not where the spend happened.
	require.NoError(t, store.SaveVendorRule(ctx, &model.VendorRule{
		Pattern:         "walmart",
		DefaultCategory: "Supplies",
		Confidence:      70,
	}))

	old := time.Now().UTC().AddDate(0, 0, -10)
	txn := testutil.SeedTxn(t, store, testutil.Txn("31.42", old, "PURCHASE WALMART #1234"))

	summary, err := orphan.NewSweeper(store, poster, 5, 20).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Queued)
	assert.Equal(t, 0, poster.PostCount())

	got, err := store.GetBankTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TxnPendingReview, got.Status)
	assert.Equal(t, "Supplies", got.Category) // suggestion carried to review
}

func TestSweep_RespectsGracePeriodAndLimit(t *testing.T) {
	store := testutil.SetupTestDB(t)
	poster := ledger.NewRecorder()
	ctx := context.Background()

	now := time.Now().UTC()
	testutil.SeedTxn(t, store, testutil.Txn("10.00", now.AddDate(0, 0, -10), "POS AGED ONE"))
	testutil.SeedTxn(t, store, testutil.Txn("11.00", now.AddDate(0, 0, -9), "POS AGED TWO"))
	testutil.SeedTxn(t, store, testutil.Txn("12.00", now, "POS FRESH"))

	summary, err := orphan.NewSweeper(store, poster, 5, 1).Sweep(ctx)
	require.NoError(t, err)
	// Limit caps the run; the fresh transaction is inside the grace period.
	assert.Equal(t, 1, summary.Examined)

	summary, err = orphan.NewSweeper(store, poster, 5, 20).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Examined)
}

func TestSweep_Rerun_SkipsQueuedOrphans(t *testing.T) {
	store := testutil.SetupTestDB(t)
	poster := ledger.NewRecorder()
	ctx := context.Background()

	old := time.Now().UTC().AddDate(0, 0, -10)
	testutil.SeedTxn(t, store, testutil.Txn("31.42", old, "PURCHASE MYSTERY SHOP"))

	sweeper := orphan.NewSweeper(store, poster, 5, 20)

	summary, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Queued)

	summary, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Examined)
}
