package search

import (
	"strings"
	"unicode/utf8"

	"github.com/hbollon/go-edlib"

	"github.com/poiesic/placefinder/query"
)

// splitWords splits text at the separators that are also word
// boundaries in queries.
func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == ',' || r == ':' || r == '-'
	})
}

// wordDistance returns how badly qword is matched by the best of words,
// measured in characters of qword.
func wordDistance(qword string, words map[string]bool) float64 {
	length := float64(utf8.RuneCountInString(qword))
	if words[qword] {
		return 0
	}
	var best float32
	for w := range words {
		sim, err := edlib.StringsSimilarity(qword, w, edlib.Levenshtein)
		if err == nil && sim > best {
			best = sim
		}
	}
	if best < 0.5 {
		return length
	}
	return (1 - float64(best)) * length
}

// rerankByQuery raises the accuracy of results whose display name does
// not contain the words of the query. normalize must be the function
// that produced the query text.
func rerankByQuery(phrases []query.Phrase, results []*Result, normalize func(string) string) {
	var qwords []string
	totalLen := 0
	for _, p := range phrases {
		for _, w := range splitWords(p.Text) {
			qwords = append(qwords, w)
			totalLen += utf8.RuneCountInString(w)
		}
	}
	if len(qwords) == 0 {
		return
	}

	for _, r := range results {
		// negative importance orders by distance, word matching is secondary
		if r.DisplayName == "" || r.Importance < 0 {
			continue
		}
		words := make(map[string]bool)
		for _, w := range splitWords(normalize(r.DisplayName + " " + r.CountryCode)) {
			words[w] = true
		}
		if len(words) == 0 {
			continue
		}

		var distance float64
		for _, qw := range qwords {
			distance += wordDistance(qw, words)
		}
		// country names are not rematched during analysis
		if r.RankAddress == 4 {
			distance *= 2
		}
		r.Accuracy += distance * 0.4 / float64(totalLen)
	}
}
