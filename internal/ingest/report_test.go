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

const sampleReport = `{
  "report_id": "RPT-2026-03",
  "submissions": [
    {
      "id": "EXP-1001",
      "date": "2026-03-14",
      "amount": 54.30,
      "vendor": "Restaurant Row",
      "category": "Meals",
      "submitter": "ana.lopez",
      "paid_through": "amex-corp",
      "jurisdiction_tag": "California - CA",
      "receipt": {"ref": "rcpt-1", "amount": 54.30, "confidence": 92}
    },
    {
      "id": "EXP-1002",
      "date": "2026-03-15",
      "amount": 412.88,
      "vendor": "Delta Air",
      "category": "Airfare",
      "submitter": "ana.lopez",
      "paid_through": "amex-corp",
      "jurisdiction_tag": "Other"
    }
  ]
}`

func TestReportImport(t *testing.T) {
	store := testutil.SetupTestDB(t)
	ctx := context.Background()

	importer := ingest.NewReportImporter(store)

	result, err := importer.Import(ctx, strings.NewReader(sampleReport))
	require.NoError(t, err)
	assert.Equal(t, "RPT-2026-03", result.ReportID)
	assert.Equal(t, 2, result.Created)

	sub, err := store.GetSubmissionByExternalID(ctx, "EXP-1001")
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionPending, sub.Status)
	assert.Equal(t, "RPT-2026-03", sub.ReportID)
	assert.Equal(t, "California - CA", sub.JurisdictionTag)
	require.NotNil(t, sub.ReceiptAmount)
	assert.Equal(t, 92, sub.ReceiptConfidence)
}

func TestReportImport_IdempotentOnExternalID(t *testing.T) {
	store := testutil.SetupTestDB(t)
	ctx := context.Background()

	importer := ingest.NewReportImporter(store)

	_, err := importer.Import(ctx, strings.NewReader(sampleReport))
	require.NoError(t, err)

	// The amended report carries the same line items; nothing duplicates.
	second, err := importer.Import(ctx, strings.NewReader(sampleReport))
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 2, second.Skipped)

	pending, err := store.GetSubmissionsByStatus(ctx, model.SubmissionPending)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}
