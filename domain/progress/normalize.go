// Package progress folds finished sessions into learner profiles and derives
// the dashboard views. Everything here is pure: callers load and persist.
package progress

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var leadingArticles = []string{"le ", "la ", "les ", "l'", "l’", "un ", "une ", "des "}

const trimmedPunctuation = ".,;:!?«»\"“”()[]…"

// CleanTerm composes accents (NFC), trims punctuation and collapses inner
// whitespace. Casing is kept.
func CleanTerm(s string) string {
	s = norm.NFC.String(s)
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, trimmedPunctuation+" ")
}

// NormalizeTerm is the vocabulary matching key: a lower-cased CleanTerm with
// a leading French article removed. Accents are significant ("ou" vs "où").
func NormalizeTerm(s string) string {
	s = strings.ToLower(CleanTerm(s))
	for _, a := range leadingArticles {
		if strings.HasPrefix(s, a) && len(s) > len(a) {
			s = strings.TrimSpace(s[len(a):])
			break
		}
	}
	return s
}

// FoldTerm is the matching key for free-text labels such as weaknesses and
// grammar concepts: lower-cased with diacritics removed.
func FoldTerm(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(CleanTerm(s)))
	if err != nil {
		return strings.ToLower(CleanTerm(s))
	}
	return folded
}

// tokens splits text into lower-cased word tokens; apostrophes separate
// elided articles ("l'eau" -> "l", "eau").
func tokens(s string) []string {
	s = strings.ToLower(norm.NFC.String(s))
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
}

// containsPhrase reports whether every token of phrase appears contiguously in text
func containsPhrase(text, phrase string) bool {
	p := tokens(phrase)
	if len(p) == 0 {
		return false
	}
	return strings.Contains(" "+strings.Join(tokens(text), " ")+" ", " "+strings.Join(p, " ")+" ")
}
