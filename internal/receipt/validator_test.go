package receipt_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgermatch/ledgermatch/internal/receipt"
	"github.com/ledgermatch/ledgermatch/internal/testutil"
)

func TestValidator_Apply(t *testing.T) {
	tests := []struct {
		name          string
		claimed       string
		receiptAmount string
		confidence    int
		wantCorrected bool
	}{
		{
			name:          "confident material discrepancy corrects",
			claimed:       "40.00",
			receiptAmount: "45.00",
			confidence:    90,
			wantCorrected: true,
		},
		{
			name:          "low confidence leaves the claim alone",
			claimed:       "40.00",
			receiptAmount: "45.00",
			confidence:    40,
			wantCorrected: false,
		},
		{
			name:          "sub-cent discrepancy is ignored",
			claimed:       "40.00",
			receiptAmount: "40.01",
			confidence:    90,
			wantCorrected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.SetupTestDB(t)
			ctx := context.Background()

			receiptAmount := decimal.RequireFromString(tt.receiptAmount)
			sub := testutil.Sub(tt.claimed, time.Now().UTC(), "Bistro Nine")
			sub.ReceiptAmount = &receiptAmount
			sub.ReceiptConfidence = tt.confidence
			testutil.SeedSub(t, store, sub)

			validator := receipt.NewValidator(store, 70, decimal.NewFromFloat(0.01))
			corrected, err := validator.Apply(ctx, sub)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCorrected, corrected)

			got, err := store.GetSubmission(ctx, sub.ID)
			require.NoError(t, err)
			if tt.wantCorrected {
				assert.True(t, got.Amount.Equal(receiptAmount))
				require.NotNil(t, got.OriginalAmount)
				assert.True(t, got.OriginalAmount.Equal(decimal.RequireFromString(tt.claimed)))
				// The in-memory submission is updated for the caller too.
				assert.True(t, sub.Amount.Equal(receiptAmount))
			} else {
				assert.True(t, got.Amount.Equal(decimal.RequireFromString(tt.claimed)))
				assert.Nil(t, got.OriginalAmount)
			}
		})
	}
}

func TestValidator_NoReceipt(t *testing.T) {
	store := testutil.SetupTestDB(t)
	sub := testutil.SeedSub(t, store, testutil.Sub("40.00", time.Now().UTC(), "Bistro Nine"))

	validator := receipt.NewValidator(store, 70, decimal.NewFromFloat(0.01))
	corrected, err := validator.Apply(context.Background(), sub)
	require.NoError(t, err)
	assert.False(t, corrected)
}
