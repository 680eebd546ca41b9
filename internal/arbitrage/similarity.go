package arbitrage

import (
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{
	"yes": {}, "no": {}, "true": {}, "false": {}, "will": {}, "be": {},
	"is": {}, "are": {}, "the": {}, "a": {}, "an": {},
}

// tokens lower-cases q, splits it on anything that is not a letter or digit
// and drops stop words.
func tokens(q string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, stop := stopWords[f]; stop {
			continue
		}
		set[f] = struct{}{}
	}
	return set
}

// Similarity is the token-set Jaccard similarity of two market questions.
// Questions that reduce to no tokens score 0.
func Similarity(a, b string) float64 {
	ta, tb := tokens(a), tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	inter := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}
