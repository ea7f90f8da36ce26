package util

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	reQuotes     = regexp.MustCompile(`["'` + "`" + `«»]`)
	reNonAllowed = regexp.MustCompile(`[^\p{L}\p{N}&\-/\s.]`)
	reSpaces     = regexp.MustCompile(`\s+`)
)

// generic words that open many designations and never name a manufacturer
var designationStopwords = map[string]struct{}{
	"LE": {}, "LA": {}, "LES": {}, "DE": {}, "DU": {}, "DES": {},
	"MEMBRANE": {}, "ROULEAU": {}, "PANNEAU": {}, "ISOLANT": {}, "BANDE": {},
	"ECRAN": {}, "ÉCRAN": {}, "COLLE": {}, "PRIMAIRE": {}, "KIT": {}, "LOT": {},
}

func NormalizeSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

// NormalizeName folds a customer or brand name into a comparison key:
// upper case, quotes and punctuation removed, spaces collapsed.
func NormalizeName(input string) string {
	s := strings.ToUpper(input)
	s = reQuotes.ReplaceAllString(s, " ")
	s = reNonAllowed.ReplaceAllString(s, " ")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// BrandToken extracts a best-effort brand from a product designation: the
// first token that carries at least two letters and is not a generic word.
func BrandToken(designation string) string {
	for _, token := range Tokenize(designation) {
		if _, stop := designationStopwords[token]; stop {
			continue
		}
		if countLetters(token) >= 2 {
			return token
		}
	}
	return ""
}

func Tokenize(input string) []string {
	norm := NormalizeName(input)
	if norm == "" {
		return nil
	}
	parts := strings.Split(norm, " ")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, ".-/")
		if len([]rune(p)) >= 2 {
			out = append(out, p)
		}
	}
	return out
}

// ContainsFold reports whether needle occurs in haystack ignoring case.
func ContainsFold(haystack, needle string) bool {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func countLetters(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}

func StringPtr(v string) *string { return &v }
