// Package textprep normalizes short company descriptions before embedding.
package textprep

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	legalSuffixes = regexp.MustCompile(`\b(inc\.?|llc|ltd\.?|limited|corp\.?|corporation)\b`)
	whitespace    = regexp.MustCompile(`\s+`)
)

// Normalize cleans a raw description: NFKD-fold to ASCII, lowercase,
// strip legal-entity suffixes, drop non-semantic punctuation, collapse
// whitespace, trim. Pure and idempotent: Normalize(Normalize(x)) == Normalize(x).
// Returns "" when nothing usable remains; callers treat that as
// "no description", not an error.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	text = asciiFold(text)
	text = strings.ToLower(text)
	text = legalSuffixes.ReplaceAllString(text, "")
	text = stripPunct(text)
	text = whitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// asciiFold decomposes to NFKD and drops anything outside ASCII, so
// accented characters reduce to their base letter and symbols without an
// ASCII form disappear.
func asciiFold(s string) string {
	decomposed := norm.NFKD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if r < 128 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// stripPunct replaces punctuation with spaces, keeping characters that
// carry meaning inside product names (& / - and digits stay as words).
func stripPunct(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r):
			b.WriteRune(r)
		case r == '&' || r == '/' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return b.String()
}
