package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestExtractVendor(t *testing.T) {
	tests := []struct {
		name        string
		description string
		want        string
	}{
		{
			name:        "strips purchase prefix",
			description: "PURCHASE WALMART SUPERCENTER #1234",
			want:        "WALMART SUPERCENTER",
		},
		{
			name:        "strips pos prefix",
			description: "POS DELTA AIR 0061234567890",
			want:        "DELTA AIR",
		},
		{
			name:        "strips checkcard prefix",
			description: "CHECKCARD MARRIOTT AUSTIN TX 8832",
			want:        "MARRIOTT AUSTIN TX",
		},
		{
			name:        "keeps first three words",
			description: "SOME VERY LONG MERCHANT NAME HERE",
			want:        "SOME VERY LONG",
		},
		{
			name:        "trims trailing store numbers",
			description: "STARBUCKS #5521",
			want:        "STARBUCKS",
		},
		{
			name:        "empty description",
			description: "",
			want:        "Unknown Vendor",
		},
		{
			name:        "only noise",
			description: "POS #123456",
			want:        "Unknown Vendor",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractVendor(tt.description); got != tt.want {
				t.Errorf("ExtractVendor(%q) = %q, want %q", tt.description, got, tt.want)
			}
		})
	}
}

func TestBankTransaction_GenerateHash(t *testing.T) {
	base := BankTransaction{
		Date:        time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		Description: "PURCHASE WALMART #1234",
		Source:      "card-a",
		Amount:      decimal.NewFromFloat(54.30),
	}

	same := base
	if base.GenerateHash() != same.GenerateHash() {
		t.Error("identical transactions should hash identically")
	}

	differentAmount := base
	differentAmount.Amount = decimal.NewFromFloat(54.31)
	if base.GenerateHash() == differentAmount.GenerateHash() {
		t.Error("different amounts should hash differently")
	}

	differentSource := base
	differentSource.Source = "card-b"
	if base.GenerateHash() == differentSource.GenerateHash() {
		t.Error("different sources should hash differently")
	}

	// Intraday time must not affect the hash: feeds disagree on it.
	differentTime := base
	differentTime.Date = time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)
	if base.GenerateHash() != differentTime.GenerateHash() {
		t.Error("time of day should not affect the hash")
	}
}

func TestCentsRoundTrip(t *testing.T) {
	for _, s := range []string{"0.00", "0.01", "54.30", "1999.99", "55.1"} {
		d := decimal.RequireFromString(s)
		if got := FromCents(Cents(d)); !got.Equal(d) {
			t.Errorf("FromCents(Cents(%s)) = %s", s, got)
		}
	}
}
