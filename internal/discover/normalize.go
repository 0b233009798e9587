package discover

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// corpSuffixes are legal-entity suffixes stripped before building domain
// guesses or comparing names.
var corpSuffixes = []string{
	"incorporated", "inc", "llc", "llp", "ltd", "limited",
	"corporation", "corp", "company", "co", "pllc", "pc",
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeName lowercases a business name, folds accented characters to
// ASCII, strips legal suffixes and punctuation. "Café Müller, LLC" becomes
// "cafe muller".
func normalizeName(name string) string {
	folded, _, err := transform.String(stripMarks, name)
	if err != nil {
		folded = name
	}
	lower := strings.ToLower(folded)

	var b strings.Builder
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	words := strings.Fields(b.String())
	for len(words) > 1 && isCorpSuffix(words[len(words)-1]) {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

// domainToken collapses a normalized name into a bare domain label:
// "acme plumbing" → "acmeplumbing".
func domainToken(name string) string {
	return strings.ReplaceAll(normalizeName(name), " ", "")
}

func isCorpSuffix(w string) bool {
	for _, s := range corpSuffixes {
		if w == s {
			return true
		}
	}
	return false
}

// nameTokensMatch reports whether the significant tokens of the business name
// appear in the candidate text. Used to score search results.
func nameTokensMatch(businessName, text string) float64 {
	tokens := strings.Fields(normalizeName(businessName))
	if len(tokens) == 0 {
		return 0
	}
	haystack := normalizeName(text)
	matched := 0
	for _, tok := range tokens {
		if strings.Contains(haystack, tok) {
			matched++
		}
	}
	return float64(matched) / float64(len(tokens))
}
