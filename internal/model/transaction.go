package model

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BankTransactionStatus tracks where a bank transaction sits in its lifecycle.
type BankTransactionStatus string

// Bank transaction status constants. A transaction is never deleted;
// "excluded" is the terminal status for non-business activity.
const (
	TxnUnmatched       BankTransactionStatus = "unmatched"
	TxnMatched         BankTransactionStatus = "matched"
	TxnExcluded        BankTransactionStatus = "excluded"
	TxnOrphanProcessed BankTransactionStatus = "orphan_processed"
	TxnPendingReview   BankTransactionStatus = "pending_review"
)

// BankTransaction is an imported corporate-card transaction. It is the
// source of truth for money actually spent; once imported, only its
// status, match link, and orphan-resolution fields ever change.
type BankTransaction struct {
	Date              time.Time
	MatchedAt         *time.Time
	ResolvedAt        *time.Time
	ID                string
	Hash              string
	Description       string
	Vendor            string // best-effort, extracted from the description
	Source            string // which card/account the feed came from
	Status            BankTransactionStatus
	MatchedSubmission string // submission id this transaction was claimed by
	MatchedBy         string // "matcher", "sweep", or "human"
	Category          string // set during orphan resolution
	Jurisdiction      string // set during orphan resolution
	ResolutionMethod  string
	PostedID          string // ledger id once posted
	ImportBatchID     string
	Amount            decimal.Decimal
	CreatedAt         time.Time
}

// GenerateHash creates a content hash used for duplicate detection on import.
func (t *BankTransaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%s:%s:%s",
		t.Date.Format("2006-01-02"),
		t.Amount.StringFixed(2),
		t.Description,
		t.Source)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

var vendorNoisePrefixes = []string{
	"PURCHASE ", "POS ", "DEBIT ", "ACH ", "CHECKCARD ",
}

// ExtractVendor derives a vendor token from a raw bank description.
// Card feeds prepend transaction-type noise and append store numbers;
// the result is the leading words with that noise stripped.
func ExtractVendor(description string) string {
	desc := strings.TrimSpace(description)
	if desc == "" {
		return "Unknown Vendor"
	}

	upper := strings.ToUpper(desc)
	for _, prefix := range vendorNoisePrefixes {
		if strings.HasPrefix(upper, prefix) {
			desc = desc[len(prefix):]
			break
		}
	}

	words := strings.Fields(desc)
	if len(words) > 3 {
		words = words[:3]
	}
	vendor := strings.Join(words, " ")
	vendor = strings.Trim(vendor, "*#0123456789")
	vendor = strings.TrimSpace(vendor)

	if vendor == "" {
		return "Unknown Vendor"
	}
	return vendor
}
