package relevance

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fold lowercases s, repairs invalid UTF-8, strips diacritics and collapses whitespace.
func fold(s string) string {
	s = strings.ToValidUTF8(s, " ")
	// Transformers keep state, so each call builds its own chain.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if out, _, err := transform.String(t, s); err == nil {
		s = out
	}
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

var stopWords = map[string]struct{}{
	// pt
	"a": {}, "o": {}, "as": {}, "os": {}, "de": {}, "da": {}, "do": {}, "das": {}, "dos": {},
	"e": {}, "em": {}, "no": {}, "na": {}, "nos": {}, "nas": {}, "um": {}, "uma": {},
	"para": {}, "por": {}, "com": {}, "que": {}, "se": {}, "ao": {}, "aos": {}, "pelo": {}, "pela": {},
	// en
	"the": {}, "an": {}, "of": {}, "in": {}, "on": {}, "and": {}, "to": {}, "for": {}, "at": {}, "by": {}, "is": {},
}

// Signature returns the sorted set of significant title tokens.
func Signature(title string) []string {
	words := strings.FieldsFunc(fold(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, stop := stopWords[w]; stop {
			continue
		}
		set[w] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for w := range set {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// Jaccard returns |a∩b| / |a∪b| for two sorted token sets. Empty sets never match.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			inter++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
