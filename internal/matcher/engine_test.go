package matcher_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgermatch/ledgermatch/internal/common"
	"github.com/ledgermatch/ledgermatch/internal/events"
	"github.com/ledgermatch/ledgermatch/internal/ledger"
	"github.com/ledgermatch/ledgermatch/internal/matcher"
	"github.com/ledgermatch/ledgermatch/internal/model"
	"github.com/ledgermatch/ledgermatch/internal/receipt"
	"github.com/ledgermatch/ledgermatch/internal/service"
	"github.com/ledgermatch/ledgermatch/internal/testutil"
)

// assertLedgerDown returns a non-retryable ledger failure so tests do
// not sit through retry backoff.
func assertLedgerDown() error {
	return &common.RetryableError{Err: common.ErrLedgerUnavailable, Retryable: false}
}

func newEngine(t *testing.T, store service.Storage, poster service.LedgerPoster, calendar service.VenueEvents) *matcher.Matcher {
	t.Helper()
	validator := receipt.NewValidator(store, 70, decimal.NewFromFloat(0.01))
	return matcher.New(store, poster, calendar, validator, matcher.DefaultPolicy())
}

func TestProcessSubmission_ExactMatchAutoPosts(t *testing.T) {
	store := testutil.SetupTestDB(t)
	poster := ledger.NewRecorder()
	ctx := context.Background()

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	txn := testutil.SeedTxn(t, store, testutil.Txn("54.30", day, "PURCHASE MARRIOTT AUSTIN"))
	sub := testutil.Sub("54.30", day, "Marriott Austin")
	sub.JurisdictionTag = "Texas - TX"
	testutil.SeedSub(t, store, sub)

	result, err := newEngine(t, store, poster, nil).ProcessSubmission(ctx, sub.ID)
	require.NoError(t, err)

	assert.True(t, result.AutoApproved)
	assert.Equal(t, 100, result.Confidence)
	assert.Equal(t, model.MatchExact, result.MatchType)
	assert.Equal(t, "TX", result.Jurisdiction)
	assert.Equal(t, model.SourceExplicitTag, result.JurisdictionSource)
	assert.Equal(t, 1, poster.PostCount())
	require.Len(t, poster.Requests, 1)
	assert.Equal(t, sub.ID+":purchase", poster.Requests[0].IdempotencyKey)
	assert.Equal(t, service.PostPurchase, poster.Requests[0].Kind)

	gotSub, err := store.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionPosted, gotSub.Status)
	assert.NotEmpty(t, gotSub.PostedID)

	gotTxn, err := store.GetBankTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TxnMatched, gotTxn.Status)
	assert.Equal(t, sub.ID, gotTxn.MatchedSubmission)
	assert.Equal(t, gotSub.PostedID, gotTxn.PostedID)
}

func TestProcessSubmission_DateDistanceUsesCalendarDays(t *testing.T) {
	store := testutil.SetupTestDB(t)
	poster := ledger.NewRecorder()
	ctx := context.Background()

	// The feed kept a posting time: 23:00 the evening before the
	// submission date. That is one calendar day away, not zero.
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	testutil.SeedTxn(t, store, testutil.Txn("54.30", day.Add(-1*time.Hour), "PURCHASE MARRIOTT AUSTIN"))
	sub := testutil.Sub("54.30", day, "Marriott Austin")
	sub.JurisdictionTag = "TX"
	testutil.SeedSub(t, store, sub)

	result, err := newEngine(t, store, poster, nil).ProcessSubmission(ctx, sub.ID)
	require.NoError(t, err)

	assert.Equal(t, model.MatchAmountDate, result.MatchType)
	// One day of distance costs one day's penalty: 100 - 5.
	assert.Equal(t, 95, result.Confidence)
	assert.True(t, result.AutoApproved)
}

func TestProcessSubmission_NoCandidateRoutesToReimbursement(t *testing.T) {
	store := testutil.SetupTestDB(t)
	poster := ledger.NewRecorder()
	ctx := context.Background()

	sub := testutil.SeedSub(t, store, testutil.Sub("75.00", time.Now().UTC(), "Taxi"))

	result, err := newEngine(t, store, poster, nil).ProcessSubmission(ctx, sub.ID)
	require.NoError(t, err)

	assert.False(t, result.AutoApproved)
	// Reimbursement flags must never touch the ledger.
	assert.Equal(t, 0, poster.PostCount())
	assert.Empty(t, poster.Requests)

	gotSub, err := store.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionFlagged, gotSub.Status)
	assert.Equal(t, model.FlagReimbursement, gotSub.FlagKind)
}

func TestProcessSubmission_AmountMismatchFlagsLowConfidence(t *testing.T) {
	store := testutil.SetupTestDB(t)
	poster := ledger.NewRecorder()
	ctx := context.Background()

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	txn := testutil.SeedTxn(t, store, testutil.Txn("55.10", day, "POS RESTAURANT ROW"))
	sub := testutil.Sub("54.30", day, "Restaurant Row")
	sub.JurisdictionTag = "CA"
	testutil.SeedSub(t, store, sub)

	result, err := newEngine(t, store, poster, nil).ProcessSubmission(ctx, sub.ID)
	require.NoError(t, err)

	assert.False(t, result.AutoApproved)
	assert.Equal(t, model.MatchAmountOnly, result.MatchType)
	assert.Equal(t, 85, result.Confidence) // 100 - amount mismatch penalty
	assert.Equal(t, 0, poster.PostCount())

	gotSub, err := store.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionFlagged, gotSub.Status)
	assert.Equal(t, model.FlagLowConfidence, gotSub.FlagKind)
	assert.Equal(t, txn.ID, gotSub.BankTxnID)

	// The transaction stays available until a human decides.
	gotTxn, err := store.GetBankTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TxnUnmatched, gotTxn.Status)
}

func TestProcessSubmission_ExplicitTagBeatsVendorRule(t *testing.T) {
	store := testutil.SetupTestDB(t)
	poster := ledger.NewRecorder()
	ctx := context.Background()

	require.NoError(t, store.SaveVendorRule(ctx, &model.VendorRule{
		Pattern: "marriott", DefaultCategory: "Lodging", DefaultJurisdiction: "FL", Confidence: 70,
	}))

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	testutil.SeedTxn(t, store, testutil.Txn("200.00", day, "PURCHASE MARRIOTT AUSTIN"))
	sub := testutil.Sub("200.00", day, "Marriott Austin")
	sub.JurisdictionTag = "Texas - TX"
	testutil.SeedSub(t, store, sub)

	result, err := newEngine(t, store, poster, nil).ProcessSubmission(ctx, sub.ID)
	require.NoError(t, err)

	assert.Equal(t, "TX", result.Jurisdiction)
	assert.Equal(t, model.SourceExplicitTag, result.JurisdictionSource)
}

func TestProcessSubmission_VenueEventBeatsVendorRule(t *testing.T) {
	store := testutil.SetupTestDB(t)
	poster := ledger.NewRecorder()
	ctx := context.Background()

	require.NoError(t, store.SaveVendorRule(ctx, &model.VendorRule{
		Pattern: "marriott", DefaultCategory: "Lodging", DefaultJurisdiction: "FL", Confidence: 70,
	}))

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	calendar := events.NewStatic()
	calendar.Add(day, service.VenueEvent{ID: "ev-1", Name: "Spring show", Jurisdiction: "CO"})

	testutil.SeedTxn(t, store, testutil.Txn("200.00", day, "PURCHASE MARRIOTT DENVER"))
	sub := testutil.SeedSub(t, store, testutil.Sub("200.00", day, "Marriott Denver"))

	result, err := newEngine(t, store, poster, calendar).ProcessSubmission(ctx, sub.ID)
	require.NoError(t, err)

	assert.Equal(t, "CO", result.Jurisdiction)
	assert.Equal(t, model.SourceVenueEvent, result.JurisdictionSource)
	// Venue attribution costs its penalty: 100 - 5.
	assert.Equal(t, 95, result.Confidence)
	assert.True(t, result.AutoApproved)
}

func TestProcessSubmission_UnknownJurisdictionForcesReview(t *testing.T) {
	store := testutil.SetupTestDB(t)
	poster := ledger.NewRecorder()
	ctx := context.Background()

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	testutil.SeedTxn(t, store, testutil.Txn("54.30", day, "PURCHASE MYSTERY SHOP"))
	sub := testutil.SeedSub(t, store, testutil.Sub("54.30", day, "Mystery Shop"))

	result, err := newEngine(t, store, poster, nil).ProcessSubmission(ctx, sub.ID)
	require.NoError(t, err)

	// A perfect amount/date match still goes to a human without a jurisdiction.
	assert.False(t, result.AutoApproved)
	assert.Empty(t, result.Jurisdiction)
	assert.Equal(t, 0, poster.PostCount())

	gotSub, err := store.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionFlagged, gotSub.Status)
}

func TestProcessSubmission_ReceiptCorrectionEnablesExactMatch(t *testing.T) {
	store := testutil.SetupTestDB(t)
	poster := ledger.NewRecorder()
	ctx := context.Background()

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	testutil.SeedTxn(t, store, testutil.Txn("45.00", day, "POS BISTRO NINE"))

	receiptAmount := decimal.RequireFromString("45.00")
	sub := testutil.Sub("40.00", day, "Bistro Nine")
	sub.JurisdictionTag = "CA"
	sub.ReceiptAmount = &receiptAmount
	sub.ReceiptConfidence = 90
	testutil.SeedSub(t, store, sub)

	result, err := newEngine(t, store, poster, nil).ProcessSubmission(ctx, sub.ID)
	require.NoError(t, err)

	assert.True(t, result.AutoApproved)
	assert.Equal(t, 100, result.Confidence)
	assert.Equal(t, model.MatchExact, result.MatchType)

	gotSub, err := store.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.True(t, gotSub.Amount.Equal(receiptAmount))
	require.NotNil(t, gotSub.OriginalAmount)
	assert.True(t, gotSub.OriginalAmount.Equal(decimal.RequireFromString("40.00")))
}

func TestProcessSubmission_LedgerFailureReturnsToPending(t *testing.T) {
	store := testutil.SetupTestDB(t)
	poster := ledger.NewRecorder()
	poster.FailWith = assertLedgerDown()
	ctx := context.Background()

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	testutil.SeedTxn(t, store, testutil.Txn("54.30", day, "PURCHASE MARRIOTT AUSTIN"))
	sub := testutil.Sub("54.30", day, "Marriott Austin")
	sub.JurisdictionTag = "TX"
	testutil.SeedSub(t, store, sub)

	_, err := newEngine(t, store, poster, nil).ProcessSubmission(ctx, sub.ID)
	require.Error(t, err)

	gotSub, getErr := store.GetSubmission(ctx, sub.ID)
	require.NoError(t, getErr)
	assert.Equal(t, model.SubmissionPending, gotSub.Status)
	assert.NotEmpty(t, gotSub.LastError)

	open, listErr := store.GetProcessingErrorsByState(ctx, model.ErrorNew)
	require.NoError(t, listErr)
	require.Len(t, open, 1)
	assert.Equal(t, "ledger_post", open[0].Stage)
}
