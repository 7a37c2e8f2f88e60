package analysis

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/poiesic/placefinder/config"
	"github.com/poiesic/placefinder/normalize"
	"github.com/poiesic/placefinder/query"
)

// preprocessor transforms the list of phrases before the graph is built.
type preprocessor func([]query.Phrase) []query.Phrase

func buildPreprocessors(steps []config.PreprocessingStep, norm *normalize.Normalizer) ([]preprocessor, error) {
	out := make([]preprocessor, 0, len(steps))
	for _, step := range steps {
		switch step.Step {
		case "normalize":
			out = append(out, normalizePhrases(norm))
		case "regex-replace":
			p, err := regexReplace(step.Replacements)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		default:
			return nil, fmt.Errorf("%w: unknown step %q", ErrInvalidPreprocessingStep, step.Step)
		}
	}
	return out, nil
}

// normalizePhrases applies the query normalization and drops phrases that
// become empty.
func normalizePhrases(norm *normalize.Normalizer) preprocessor {
	return func(phrases []query.Phrase) []query.Phrase {
		out := phrases[:0]
		for _, p := range phrases {
			p.Text = norm.SearchNormalize(p.Text)
			if p.Text != "" {
				out = append(out, p)
			}
		}
		return out
	}
}

func regexReplace(repls []config.RegexReplacement) (preprocessor, error) {
	if len(repls) == 0 {
		return nil, fmt.Errorf("%w: regex-replace without replacements", ErrInvalidPreprocessingStep)
	}
	type compiled struct {
		re   *regexp.Regexp
		repl string
	}
	rules := make([]compiled, 0, len(repls))
	for _, r := range repls {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPreprocessingStep, err)
		}
		rules = append(rules, compiled{re: re, repl: r.Replace})
	}
	return func(phrases []query.Phrase) []query.Phrase {
		out := phrases[:0]
		for _, p := range phrases {
			for _, r := range rules {
				p.Text = r.re.ReplaceAllString(p.Text, r.repl)
			}
			if p.Text = strings.TrimSpace(p.Text); p.Text != "" {
				out = append(out, p)
			}
		}
		return out
	}, nil
}

// splitPhrases splits phrase texts at commas. The parts keep the type of
// the phrase they came from.
func splitPhrases(phrases []query.Phrase) []query.Phrase {
	out := make([]query.Phrase, 0, len(phrases))
	for _, p := range phrases {
		for part := range strings.SplitSeq(p.Text, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, query.Phrase{Type: p.Type, Text: part})
			}
		}
	}
	return out
}

// splitTerms splits phrase text into words and the break that follows each
// word. Of several adjacent separators the strongest one determines the
// break. The break after the last word is always a phrase break.
func splitTerms(text string) ([]string, []query.BreakType) {
	var words []string
	var breaks []query.BreakType
	var cur strings.Builder
	var pending query.BreakType
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		if len(words) > 0 {
			breaks[len(breaks)-1] = pending
		}
		words = append(words, cur.String())
		breaks = append(breaks, query.BreakPhrase)
		cur.Reset()
		pending = 0
	}
	for _, c := range text {
		var b query.BreakType
		switch c {
		case ':':
			b = query.BreakSoftPhrase
		case ' ', '\t':
			b = query.BreakWord
		case '-':
			b = query.BreakPart
		default:
			cur.WriteRune(c)
			continue
		}
		flush()
		if breakStrength(b) > breakStrength(pending) {
			pending = b
		}
	}
	flush()
	return words, breaks
}

func breakStrength(b query.BreakType) int {
	switch b {
	case query.BreakSoftPhrase:
		return 3
	case query.BreakWord:
		return 2
	case query.BreakPart:
		return 1
	}
	return 0
}
