package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgermatch/ledgermatch/internal/model"
	"github.com/ledgermatch/ledgermatch/internal/service"
)

// OFXImporter reads OFX/QFX card statements, the format most corporate
// card portals export.
type OFXImporter struct {
	store service.Storage
}

// NewOFXImporter creates an OFXImporter.
func NewOFXImporter(store service.Storage) *OFXImporter {
	return &OFXImporter{store: store}
}

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	openTagRegex  = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// preprocessOFX fixes the formatting quirks real card portals emit:
// leading whitespace, mixed-case severity values, and SGML tags missing
// their closing bracket.
func preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)
	content = openTagRegex.ReplaceAllString(content, "$1>")
	return content
}

// Import parses the statement and appends its transactions.
func (o *OFXImporter) Import(ctx context.Context, reader io.Reader) (*ImportResult, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocessOFX(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}

	result := &ImportResult{BatchID: uuid.New().String()}
	var txns []model.BankTransaction

	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok && stmt.BankTranList != nil {
			account := string(stmt.BankAcctFrom.AcctID)
			for _, ofxTx := range stmt.BankTranList.Transactions {
				txns = append(txns, o.convert(ofxTx, account, result.BatchID))
			}
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok && stmt.BankTranList != nil {
			account := string(stmt.CCAcctFrom.AcctID)
			for _, ofxTx := range stmt.BankTranList.Transactions {
				txns = append(txns, o.convert(ofxTx, account, result.BatchID))
			}
		}
	}

	result.Total = len(txns)
	created, err := o.store.SaveBankTransactions(ctx, txns)
	if err != nil {
		return nil, fmt.Errorf("failed to save transactions: %w", err)
	}
	result.Created = created
	result.Skipped = len(txns) - created

	slog.Info("OFX import complete",
		"batch", result.BatchID,
		"total", result.Total,
		"created", result.Created,
		"skipped", result.Skipped)
	return result, nil
}

func (o *OFXImporter) convert(ofxTx ofxgo.Transaction, account, batchID string) model.BankTransaction {
	description := string(ofxTx.Name)
	if ofxTx.Payee != nil && ofxTx.Payee.Name != "" {
		description = string(ofxTx.Payee.Name)
	}
	if description == "" {
		description = string(ofxTx.Memo)
	}

	// OFX reports debits as negative; the store keeps spend positive.
	amount := decimal.NewFromBigRat(&ofxTx.TrnAmt.Rat, 2).Abs()

	id := string(ofxTx.FiTID)
	if id == "" {
		id = uuid.New().String()
	}

	txn := model.BankTransaction{
		ID:            id,
		Date:          ofxTx.DtPosted.Time.UTC(),
		Description:   description,
		Vendor:        model.ExtractVendor(description),
		Source:        account,
		Amount:        amount,
		Status:        model.TxnUnmatched,
		ImportBatchID: batchID,
	}
	txn.Hash = txn.GenerateHash()
	return txn
}
