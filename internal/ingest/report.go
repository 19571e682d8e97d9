package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgermatch/ledgermatch/internal/common"
	"github.com/ledgermatch/ledgermatch/internal/model"
	"github.com/ledgermatch/ledgermatch/internal/service"
)

// reportDocument mirrors the expense system's JSON export.
type reportDocument struct {
	ReportID    string             `json:"report_id"`
	Submissions []reportSubmission `json:"submissions"`
}

type reportSubmission struct {
	ExternalID      string          `json:"id"`
	Date            string          `json:"date"`
	Amount          decimal.Decimal `json:"amount"`
	Vendor          string          `json:"vendor"`
	Category        string          `json:"category"`
	Submitter       string          `json:"submitter"`
	PaidThrough     string          `json:"paid_through"`
	JurisdictionTag string          `json:"jurisdiction_tag"`
	Receipt         *reportReceipt  `json:"receipt,omitempty"`
}

type reportReceipt struct {
	Ref        string           `json:"ref"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Confidence int              `json:"confidence"`
}

// ReportResult reports what one expense-report ingest did.
type ReportResult struct {
	ReportID string
	Total    int
	Created  int
	Skipped  int // submissions already ingested from a prior run
	Failures []RecordError
}

// ReportImporter loads expense report exports. Ingest is idempotent on
// the external submission id, so re-loading an amended report only adds
// the new line items.
type ReportImporter struct {
	store service.Storage
}

// NewReportImporter creates a ReportImporter.
func NewReportImporter(store service.Storage) *ReportImporter {
	return &ReportImporter{store: store}
}

// Import reads one report document and saves its submissions as pending.
func (r *ReportImporter) Import(ctx context.Context, reader io.Reader) (*ReportResult, error) {
	var doc reportDocument
	if err := json.NewDecoder(reader).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode expense report: %w", err)
	}
	if doc.ReportID == "" {
		return nil, fmt.Errorf("%w: report_id", common.ErrMissingField)
	}

	result := &ReportResult{ReportID: doc.ReportID, Total: len(doc.Submissions)}

	for i, rs := range doc.Submissions {
		sub, err := r.convert(doc.ReportID, rs)
		if err != nil {
			result.Failures = append(result.Failures, RecordError{Line: i, Err: err})
			continue
		}

		created, err := r.store.SaveSubmission(ctx, sub)
		if err != nil {
			return nil, fmt.Errorf("failed to save submission %s: %w", rs.ExternalID, err)
		}
		if created {
			result.Created++
		} else {
			result.Skipped++
		}
	}

	slog.Info("Expense report ingested",
		"report", doc.ReportID,
		"total", result.Total,
		"created", result.Created,
		"skipped", result.Skipped,
		"failures", len(result.Failures))
	return result, nil
}

func (r *ReportImporter) convert(reportID string, rs reportSubmission) (*model.Submission, error) {
	if rs.ExternalID == "" {
		return nil, fmt.Errorf("%w: submission id", common.ErrMissingField)
	}
	date, err := parseDate(rs.Date)
	if err != nil {
		return nil, err
	}

	sub := &model.Submission{
		ID:              uuid.New().String(),
		ExternalID:      rs.ExternalID,
		ReportID:        reportID,
		Date:            date,
		Amount:          rs.Amount,
		Vendor:          rs.Vendor,
		Category:        rs.Category,
		Submitter:       rs.Submitter,
		PaidThrough:     rs.PaidThrough,
		JurisdictionTag: rs.JurisdictionTag,
		Status:          model.SubmissionPending,
	}
	if rs.Receipt != nil {
		sub.ReceiptRef = rs.Receipt.Ref
		sub.ReceiptAmount = rs.Receipt.Amount
		sub.ReceiptConfidence = rs.Receipt.Confidence
	}
	return sub, nil
}
