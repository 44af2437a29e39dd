package geo

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// Skip reasons recorded before any remote call.
const (
	ReasonType          = "non_geographic_type"
	ReasonDuplicate     = "duplicate"
	ReasonTooShort      = "too_short"
	ReasonNumeric       = "numeric"
	ReasonStoplist      = "stoplist"
	ReasonNumericPrefix = "numeric_prefix"
	ReasonAddress       = "address_fragment"
	ReasonCancelled     = "cancelled"
)

// house numbers with a letter suffix or a range, followed by a word: "221b baker", "12-14 elm"
var addressFragment = regexp.MustCompile(`^\d+[a-z]?(-\d+[a-z]?)?\s+\p{L}`)

// normalizeKey trims, collapses inner whitespace and case-folds.
// Casers carry state, so callers pass their own.
func normalizeKey(c cases.Caser, text string) string {
	return c.String(strings.Join(strings.Fields(text), " "))
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// exclusion returns the reason a normalized key must not be looked up, or "".
func exclusion(key string, stoplist map[string]struct{}) string {
	if utf8.RuneCountInString(key) < 3 {
		return ReasonTooShort
	}
	if isDigits(strings.NewReplacer(" ", "", "-", "").Replace(key)) {
		return ReasonNumeric
	}
	if _, ok := stoplist[key]; ok {
		return ReasonStoplist
	}
	if first, _, _ := strings.Cut(key, " "); isDigits(first) {
		return ReasonNumericPrefix
	}
	if addressFragment.MatchString(key) {
		return ReasonAddress
	}
	return ""
}
