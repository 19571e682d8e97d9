package recovery_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgermatch/ledgermatch/internal/model"
	"github.com/ledgermatch/ledgermatch/internal/recovery"
	"github.com/ledgermatch/ledgermatch/internal/testutil"
)

func TestRecovery(t *testing.T) {
	store := testutil.SetupTestDB(t)
	ctx := context.Background()

	// First failure: requeued for another attempt.
	fresh := testutil.SeedSub(t, store, testutil.Sub("10.00", time.Now().UTC(), "Cafe One"))
	require.NoError(t, store.BeginSubmissionProcessing(ctx, fresh.ID))

	// Repeated failures: handed to a human.
	worn := testutil.SeedSub(t, store, testutil.Sub("20.00", time.Now().UTC(), "Cafe Two"))
	for i := 0; i < 3; i++ {
		require.NoError(t, store.BeginSubmissionProcessing(ctx, worn.ID))
		if i < 2 {
			require.NoError(t, store.ReturnSubmissionToPending(ctx, worn.ID, "ledger unavailable"))
		}
	}

	// Zero threshold makes everything currently processing count as stuck.
	summary, err := recovery.New(store, time.Nanosecond).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Requeued)
	assert.Equal(t, 1, summary.Flagged)

	gotFresh, err := store.GetSubmission(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionPending, gotFresh.Status)

	gotWorn, err := store.GetSubmission(ctx, worn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionFlagged, gotWorn.Status)
	assert.Equal(t, model.FlagAnomaly, gotWorn.FlagKind)
	assert.Contains(t, gotWorn.FlagReason, "3 processing attempts")
}
