package model

import "strings"

// JurisdictionUnknown is the display form of an unresolved jurisdiction.
// It is stored as the empty string; an empty jurisdiction forces review
// regardless of match confidence.
const JurisdictionUnknown = "Unknown"

// jurisdictionPatterns maps two-letter codes to the tag fragments the
// external system is known to emit. "OTHER" is the admin/home-office tag.
var jurisdictionPatterns = map[string][]string{
	"CA": {"CALIFORNIA", " CA ", " CA,", "- CA"},
	"TX": {"TEXAS", " TX ", " TX,", "- TX"},
	"CO": {"COLORADO", " CO ", " CO,", "- CO"},
	"WA": {"WASHINGTON", " WA ", " WA,", "- WA"},
	"NJ": {"NEW JERSEY", " NJ ", " NJ,", "- NJ"},
	"FL": {"FLORIDA", " FL ", " FL,", "- FL"},
	"MT": {"MONTANA", " MT ", " MT,", "- MT"},
	"NC": {"NORTH CAROLINA", " NC ", " NC,", "- NC"},
}

// NormalizeJurisdiction extracts a two-letter jurisdiction code from a
// free-text tag like "California - CA". homeDefault is returned for the
// "Other" tag; an empty result means the tag carried no usable code.
func NormalizeJurisdiction(tag, homeDefault string) string {
	if tag == "" {
		return ""
	}

	upper := strings.ToUpper(strings.TrimSpace(tag))

	if upper == "OTHER" {
		return homeDefault
	}

	if len(upper) == 2 && isAlpha(upper) {
		return upper
	}

	for code, patterns := range jurisdictionPatterns {
		for _, pattern := range patterns {
			if strings.Contains(upper, pattern) {
				return code
			}
		}
	}

	// "State Name - XX" format
	if idx := strings.LastIndex(tag, " - "); idx >= 0 {
		code := strings.ToUpper(strings.TrimSpace(tag[idx+3:]))
		if len(code) == 2 && isAlpha(code) {
			return code
		}
	}

	return ""
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return len(s) > 0
}

// DisplayJurisdiction renders the stored jurisdiction for humans.
func DisplayJurisdiction(code string) string {
	if code == "" {
		return JurisdictionUnknown
	}
	return code
}
