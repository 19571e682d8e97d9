// Package ingest loads bank transaction feeds and expense report exports
// into the store. All importers are idempotent: re-running an import
// skips records already present.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgermatch/ledgermatch/internal/common"
	"github.com/ledgermatch/ledgermatch/internal/model"
	"github.com/ledgermatch/ledgermatch/internal/service"
)

// csvDateFormats are tried in order when parsing the date column.
var csvDateFormats = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"2006-01-02T15:04:05Z07:00",
}

// ImportResult reports what one import run did.
type ImportResult struct {
	BatchID  string
	Total    int
	Created  int
	Skipped  int // duplicates of already-imported records
	Failures []RecordError
}

// RecordError is one record that could not be parsed. Bad records never
// abort the import; the rest of the file still loads.
type RecordError struct {
	Line int
	Err  error
}

// CSVImporter reads a bank transaction feed in CSV form. The header row
// names the columns; date, description, and amount are required and
// source falls back to the importer's default.
type CSVImporter struct {
	store         service.Storage
	defaultSource string
}

// NewCSVImporter creates a CSVImporter.
func NewCSVImporter(store service.Storage, defaultSource string) *CSVImporter {
	return &CSVImporter{store: store, defaultSource: defaultSource}
}

// Import reads the feed and appends its transactions.
func (c *CSVImporter) Import(ctx context.Context, reader io.Reader) (*ImportResult, error) {
	r := csv.NewReader(reader)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"date", "description", "amount"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: CSV column %q", common.ErrMissingField, required)
		}
	}

	result := &ImportResult{BatchID: uuid.New().String()}
	var txns []model.BankTransaction

	for line := 2; ; line++ {
		record, readErr := r.Read()
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			result.Failures = append(result.Failures, RecordError{Line: line, Err: readErr})
			continue
		}

		result.Total++
		txn, parseErr := c.parseRecord(record, cols, result.BatchID)
		if parseErr != nil {
			result.Failures = append(result.Failures, RecordError{Line: line, Err: parseErr})
			continue
		}
		txns = append(txns, *txn)
	}

	created, err := c.store.SaveBankTransactions(ctx, txns)
	if err != nil {
		return nil, fmt.Errorf("failed to save transactions: %w", err)
	}
	result.Created = created
	result.Skipped = len(txns) - created

	slog.Info("CSV import complete",
		"batch", result.BatchID,
		"total", result.Total,
		"created", result.Created,
		"skipped", result.Skipped,
		"failures", len(result.Failures))
	return result, nil
}

func (c *CSVImporter) parseRecord(record []string, cols map[string]int, batchID string) (*model.BankTransaction, error) {
	get := func(name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	date, err := parseDate(get("date"))
	if err != nil {
		return nil, err
	}

	amountStr := strings.ReplaceAll(strings.TrimPrefix(get("amount"), "$"), ",", "")
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", get("amount"), err)
	}
	// Card feeds report debits as negative; the store keeps spend positive.
	amount = amount.Abs()

	description := get("description")
	if description == "" {
		return nil, fmt.Errorf("%w: description", common.ErrMissingField)
	}

	source := get("source")
	if source == "" {
		source = c.defaultSource
	}

	txn := &model.BankTransaction{
		ID:            uuid.New().String(),
		Date:          date,
		Description:   description,
		Vendor:        model.ExtractVendor(description),
		Source:        source,
		Amount:        amount,
		Status:        model.TxnUnmatched,
		ImportBatchID: batchID,
	}
	txn.Hash = txn.GenerateHash()
	return txn, nil
}

func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: date", common.ErrMissingField)
	}
	for _, format := range csvDateFormats {
		if t, err := time.Parse(format, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format %q", value)
}
