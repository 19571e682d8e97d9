package model

import "testing"

func TestNormalizeJurisdiction(t *testing.T) {
	tests := []struct {
		name string
		tag  string
		want string
	}{
		{name: "state name with code", tag: "California - CA", want: "CA"},
		{name: "bare code", tag: "tx", want: "TX"},
		{name: "state name only", tag: "New Jersey", want: "NJ"},
		{name: "other resolves to home", tag: "Other", want: "NC"},
		{name: "dash suffix code", tag: "Somewhere Else - WA", want: "WA"},
		{name: "empty tag", tag: "", want: ""},
		{name: "unusable text", tag: "team offsite", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeJurisdiction(tt.tag, "NC"); got != tt.want {
				t.Errorf("NormalizeJurisdiction(%q) = %q, want %q", tt.tag, got, tt.want)
			}
		})
	}
}

func TestDisplayJurisdiction(t *testing.T) {
	if got := DisplayJurisdiction(""); got != JurisdictionUnknown {
		t.Errorf("DisplayJurisdiction(\"\") = %q", got)
	}
	if got := DisplayJurisdiction("CA"); got != "CA" {
		t.Errorf("DisplayJurisdiction(\"CA\") = %q", got)
	}
}
