// Package fuzzy implements edit-distance based string similarity scores in [0,100]
// and bounded top-k extraction over a list of choices.
//
// Scores follow the widely used weighted ratio: a normalised Levenshtein
// (insert/delete) ratio, a best-partial-window variant that rewards substrings
// of longer strings, and token sort/set variants that ignore word order.
package fuzzy

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Process normalises s for scoring: case-folds, strips diacritics, replaces
// every rune that is not a letter, digit or underscore with a space, and trims.
func Process(s string) string {
	if s == "" {
		return ""
	}

	// Casers and transformers are stateful; build per call.
	folded := cases.Fold().String(s)
	stripped, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), folded,
	)
	if err != nil {
		stripped = folded
	}

	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.TrimSpace(b.String())
}

// IsBlank reports whether s is empty or whitespace only after case folding.
func IsBlank(s string) bool {
	return strings.TrimSpace(cases.Fold().String(s)) == ""
}
