package ingest_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgermatch/ledgermatch/internal/ingest"
	"github.com/ledgermatch/ledgermatch/internal/model"
	"github.com/ledgermatch/ledgermatch/internal/testutil"
)

const sampleFeed = `Date,Description,Amount
2026-03-14,PURCHASE WALMART #1234,-54.30
2026-03-15,POS DELTA AIR 006123,-412.88
not-a-date,POS BROKEN ROW,-1.00
2026-03-16,CHECKCARD MARRIOTT AUSTIN,-220.00
`

func TestCSVImport(t *testing.T) {
	store := testutil.SetupTestDB(t)
	ctx := context.Background()

	importer := ingest.NewCSVImporter(store, "amex-corp")

	result, err := importer.Import(ctx, strings.NewReader(sampleFeed))
	require.NoError(t, err)
	assert.Equal(t, 4, result.Total)
	assert.Equal(t, 3, result.Created)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, 4, result.Failures[0].Line) // header is line 1

	txns, err := store.GetBankTransactionsByStatus(ctx, model.TxnUnmatched)
	require.NoError(t, err)
	require.Len(t, txns, 3)
	assert.Equal(t, "WALMART", txns[0].Vendor)
	assert.Equal(t, "amex-corp", txns[0].Source)
	assert.True(t, txns[0].Amount.IsPositive(), "debits are stored positive")
	assert.Equal(t, result.BatchID, txns[0].ImportBatchID)
}

func TestCSVImport_Idempotent(t *testing.T) {
	store := testutil.SetupTestDB(t)
	ctx := context.Background()

	importer := ingest.NewCSVImporter(store, "amex-corp")

	first, err := importer.Import(ctx, strings.NewReader(sampleFeed))
	require.NoError(t, err)
	assert.Equal(t, 3, first.Created)

	second, err := importer.Import(ctx, strings.NewReader(sampleFeed))
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 3, second.Skipped)
}

func TestCSVImport_MissingColumn(t *testing.T) {
	store := testutil.SetupTestDB(t)

	importer := ingest.NewCSVImporter(store, "amex-corp")
	_, err := importer.Import(context.Background(), strings.NewReader("Date,Amount\n2026-01-01,5.00\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "description")
}
