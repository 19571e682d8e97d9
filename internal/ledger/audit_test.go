package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgermatch/ledgermatch/internal/ledger"
	"github.com/ledgermatch/ledgermatch/internal/model"
	"github.com/ledgermatch/ledgermatch/internal/service"
	"github.com/ledgermatch/ledgermatch/internal/testutil"
)

func TestAudit_CleanWhenStatesAgree(t *testing.T) {
	store := testutil.SetupTestDB(t)
	poster := ledger.NewRecorder()
	ctx := context.Background()

	sub := testutil.SeedSub(t, store, testutil.Sub("54.30", time.Now().UTC(), "Cafe"))
	require.NoError(t, store.BeginSubmissionProcessing(ctx, sub.ID))

	postedID, err := poster.Post(ctx, service.PostRequest{
		Kind:           service.PostPurchase,
		IdempotencyKey: sub.ID + ":purchase",
		Amount:         sub.Amount,
	})
	require.NoError(t, err)
	require.NoError(t, store.RecordMatchResult(ctx, sub.ID, model.MatchResult{
		BankTxnID: "txn-1", Jurisdiction: "NC", Confidence: 100,
	}))
	require.NoError(t, store.MarkSubmissionPosted(ctx, sub.ID, postedID, ""))

	report, err := ledger.NewAuditor(store, poster).Run(ctx)
	require.NoError(t, err)
	assert.True(t, report.Clean())
}

func TestAudit_DetectsPostedButNotMarked(t *testing.T) {
	store := testutil.SetupTestDB(t)
	poster := ledger.NewRecorder()
	ctx := context.Background()

	// The crash window: ledger post succeeded, local mark never happened.
	sub := testutil.SeedSub(t, store, testutil.Sub("54.30", time.Now().UTC(), "Cafe"))
	_, err := poster.Post(ctx, service.PostRequest{
		Kind:           service.PostPurchase,
		IdempotencyKey: sub.ID + ":purchase",
		Amount:         sub.Amount,
	})
	require.NoError(t, err)

	report, err := ledger.NewAuditor(store, poster).Run(ctx)
	require.NoError(t, err)
	assert.False(t, report.Clean())
	require.Len(t, report.PostedNotMarked, 1)
	assert.Equal(t, sub.ID, report.PostedNotMarked[0].LocalID)
}

func TestAudit_DetectsMarkedButNotPosted(t *testing.T) {
	store := testutil.SetupTestDB(t)
	poster := ledger.NewRecorder()
	ctx := context.Background()

	sub := testutil.SeedSub(t, store, testutil.Sub("54.30", time.Now().UTC(), "Cafe"))
	require.NoError(t, store.BeginSubmissionProcessing(ctx, sub.ID))
	require.NoError(t, store.RecordMatchResult(ctx, sub.ID, model.MatchResult{
		BankTxnID: "txn-1", Jurisdiction: "NC", Confidence: 100,
	}))
	// Marked posted with an id the ledger never issued.
	require.NoError(t, store.MarkSubmissionPosted(ctx, sub.ID, "phantom-1", ""))

	report, err := ledger.NewAuditor(store, poster).Run(ctx)
	require.NoError(t, err)
	require.Len(t, report.MarkedNotPosted, 1)
	assert.Equal(t, sub.ID, report.MarkedNotPosted[0].LocalID)
}

func TestRecorder_IdempotencyReplay(t *testing.T) {
	poster := ledger.NewRecorder()
	ctx := context.Background()

	first, err := poster.Post(ctx, service.PostRequest{IdempotencyKey: "k-1"})
	require.NoError(t, err)
	second, err := poster.Post(ctx, service.PostRequest{IdempotencyKey: "k-1"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, poster.PostCount())
	assert.Len(t, poster.Requests, 2)
}
