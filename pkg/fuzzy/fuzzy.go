package fuzzy

import (
	"strings"
	"unicode"
)

// legalSuffixes are trailing entity designators ignored when comparing company names.
var legalSuffixes = map[string]struct{}{
	"inc":          {},
	"llc":          {},
	"ltd":          {},
	"corp":         {},
	"co":           {},
	"company":      {},
	"technologies": {},
	"tech":         {},
}

// CompanyMatch reports whether two free-text company names refer to the same
// organization: case-insensitive equality, either containing the other, or
// equality once legal-entity suffixes are stripped from both.
//
// Containment is loose on purpose and short names such as "Co" match widely.
func CompanyMatch(a, b string) bool {
	na := normalizeString(a)
	nb := normalizeString(b)
	if na == "" || nb == "" {
		return false
	}

	if na == nb {
		return true
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}

	sa := StripLegalSuffixes(a)
	sb := StripLegalSuffixes(b)
	return sa != "" && sa == sb
}

// StripLegalSuffixes lower-cases name, drops punctuation and removes trailing
// legal-entity words ("Acme Tech, Inc." becomes "acme").
func StripLegalSuffixes(name string) string {
	words := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for len(words) > 0 {
		if _, ok := legalSuffixes[words[len(words)-1]]; !ok {
			break
		}
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

// normalizeString converts to lowercase and collapses whitespace
func normalizeString(s string) string {
	s = strings.ToLower(s)
	s = strings.Join(strings.Fields(s), " ")
	return s
}
