package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/placefinder/config"
	"github.com/poiesic/placefinder/core"
	"github.com/poiesic/placefinder/normalize"
	"github.com/poiesic/placefinder/query"
)

// Analyzer turns raw query phrases into a token graph.
type Analyzer struct {
	norm          *normalize.Normalizer
	lookup        WordLookup
	postcodes     *PostcodeParser
	preprocessors []preprocessor
	logger        *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *Analyzer) error {
		if logger == nil {
			logger = slog.Default()
		}
		a.logger = logger.With("component", "analyzer")
		return nil
	}
}

// NewAnalyzer creates an analyzer using the given normalizer and word
// lookup. The query preprocessing steps and postcode patterns are taken
// from cfg.
func NewAnalyzer(norm *normalize.Normalizer, lookup WordLookup, cfg *config.Config, opts ...Option) (*Analyzer, error) {
	if norm == nil {
		return nil, ErrNormalizerRequired
	}
	if lookup == nil {
		return nil, ErrLookupRequired
	}
	pre, err := buildPreprocessors(cfg.Rules.QueryPreprocessing, norm)
	if err != nil {
		return nil, err
	}
	pcs, err := NewPostcodeParser(cfg.Countries)
	if err != nil {
		return nil, err
	}

	a := &Analyzer{
		norm:          norm,
		lookup:        lookup,
		postcodes:     pcs,
		preprocessors: pre,
		logger:        slog.Default().With("component", "analyzer"),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// NormalizeText applies the query normalization to arbitrary text, for
// example a result's display name.
func (a *Analyzer) NormalizeText(text string) string {
	return a.norm.SearchNormalize(text)
}

// Analyze builds the token graph for the phrases. The returned graph may
// have no terms at all when nothing useful was left after normalization.
func (a *Analyzer) Analyze(ctx context.Context, phrases []query.Phrase) (*query.QueryStruct, error) {
	phrases = slices.Clone(phrases)
	for _, p := range a.preprocessors {
		phrases = p(phrases)
	}
	phrases = splitPhrases(phrases)

	q := query.NewQueryStruct(phrases)
	if len(phrases) == 0 || isSingleLetterSoup(phrases) {
		return q, nil
	}

	a.buildGraph(q, phrases)
	if q.NumTokenSlots() == 0 {
		return q, nil
	}

	words := q.ExtractWords(0, -1)
	lookups := make([]string, 0, len(words))
	for w := range words {
		lookups = append(lookups, w)
	}
	slices.Sort(lookups)

	rows, err := a.lookup.FindTokens(ctx, lookups)
	if err != nil {
		a.logger.Error("error looking up query tokens", "err", err)
		return nil, fmt.Errorf("looking up tokens: %w", err)
	}

	a.addRows(q, words, rows)
	addExtraTokens(q)
	for _, m := range a.postcodes.Parse(q) {
		q.AddToken(m.Range, query.TokenPostcode, &query.Token{
			Penalty:    0.1,
			Count:      1,
			AddrCount:  1,
			LookupWord: m.Postcode,
			WordToken:  m.Term,
		})
	}
	rerankTokens(q)

	for _, node := range q.Nodes {
		node.Penalty = query.BreakPenalty(node.BType)
	}
	q.ComputeDirectionPenalty()

	if a.logger.Enabled(ctx, slog.LevelDebug) {
		a.logger.Debug("query analyzed", "terms", q.NumTokenSlots(), "dir_penalty", q.DirPenalty, "graph", q.String())
	}
	return q, nil
}

// isSingleLetterSoup reports whether the query consists of many very short
// words only, which cannot be searched in a meaningful way.
func isSingleLetterSoup(phrases []query.Phrase) bool {
	if len(phrases) != 1 || strings.Count(phrases[0].Text, " ") <= 3 {
		return false
	}
	for _, w := range strings.Fields(phrases[0].Text) {
		if utf8.RuneCountInString(w) >= 3 {
			return false
		}
	}
	return true
}

func (a *Analyzer) buildGraph(q *query.QueryStruct, phrases []query.Phrase) {
	for _, phrase := range phrases {
		q.Nodes[len(q.Nodes)-1].PType = phrase.Type
		added := false
		words, breaks := splitTerms(phrase.Text)
		for i, word := range words {
			terms := strings.Fields(a.norm.Transliterate(word))
			if len(terms) == 0 {
				continue
			}
			for _, term := range terms {
				q.AddNode(query.BreakToken, phrase.Type, term, word)
			}
			q.Nodes[len(q.Nodes)-1].BType = breaks[i]
			added = true
		}
		if added {
			q.Nodes[len(q.Nodes)-1].BType = query.BreakPhrase
		}
	}
	if len(q.Nodes) > 1 {
		q.Nodes[len(q.Nodes)-1].BType = query.BreakEnd
	}
}

func (a *Analyzer) addRows(q *query.QueryStruct, words map[string][]query.TokenRange, rows []*core.WordRow) {
	type rowKey struct {
		typ   core.WordType
		token string
		id    int
	}
	seen := make(map[rowKey]bool, len(rows))
	for _, row := range rows {
		k := rowKey{row.Type, row.WordToken, row.ID}
		if seen[k] {
			continue
		}
		seen[k] = true

		for _, trange := range words[row.WordToken] {
			switch row.Type {
			case core.WordFull:
				q.AddToken(trange, query.TokenWord, tokenFromRow(row))
			case core.WordPartial:
				if trange.Len() == 1 && q.Nodes[trange.Start].Partial == nil {
					q.AddToken(trange, query.TokenPartial, tokenFromRow(row))
				}
			case core.WordHousenumber:
				q.AddToken(trange, query.TokenHousenumber, tokenFromRow(row))
			case core.WordCountry:
				q.AddToken(trange, query.TokenCountry, tokenFromRow(row))
			case core.WordSpecial:
				a.addSpecial(q, trange, row)
			}
		}
	}
}

// addSpecial adds a special phrase either as a near item or as a
// qualifier. Phrases with an explicit "in" or "near" operator are only
// accepted at the query start.
func (a *Analyzer) addSpecial(q *query.QueryStruct, trange query.TokenRange, row *core.WordRow) {
	tok := tokenFromRow(row)
	switch operatorOf(row) {
	case "in", "near":
		if trange.Start == 0 {
			q.AddToken(trange, query.TokenNearItem, tok)
		}
	default:
		if trange.Start == 0 && trange.End == q.NumTokenSlots() {
			q.AddToken(trange, query.TokenNearItem, tok)
		} else {
			q.AddToken(trange, query.TokenQualifier, tok)
		}
	}
}

// addExtraTokens adds housenumber tokens for short numeric terms that
// are not yet known as housenumbers.
func addExtraTokens(q *query.QueryStruct) {
	needHnr := false
	for i, node := range q.Nodes {
		isFull := node.BType.IsFullTerm()
		if needHnr && isFull && len(node.TermNormalized) <= 4 && isDigits(node.TermNormalized) {
			q.AddToken(query.TokenRange{Start: i - 1, End: i}, query.TokenHousenumber, &query.Token{
				Penalty:    0.5,
				Count:      1,
				AddrCount:  1,
				LookupWord: node.TermLookup,
				WordToken:  node.TermLookup,
			})
		}
		needHnr = isFull && i+1 < len(q.Nodes) && !node.HasTokens(i+1, query.TokenHousenumber)
	}
}

// rerankTokens adjusts token penalties by looking at competing tokens on
// the same edge and at how well each token matches the query text.
// Partial tokens are on edges of their own and only get rematched.
func rerankTokens(q *query.QueryStruct) {
	for edge := range q.IterTokensByEdge() {
		if len(edge.Tokens) > 1 {
			if _, ok := edge.Tokens[query.TokenPostcode]; ok {
				shortTerm := len(q.Nodes[edge.End].TermLookup) <= 4
				for ttype, tokens := range edge.Tokens {
					if ttype == query.TokenPostcode || (ttype == query.TokenHousenumber && shortTerm) {
						continue
					}
					for _, t := range tokens {
						t.Penalty += postcodeCompetitionPenalty
					}
				}
			}
			if hnrs, ok := edge.Tokens[query.TokenHousenumber]; ok && isSimpleHousenumber(hnrs[0].LookupWord) {
				penalty := 0.5 - hnrs[0].Penalty
				for ttype, tokens := range edge.Tokens {
					if ttype == query.TokenHousenumber {
						continue
					}
					for _, t := range tokens {
						t.Penalty += penalty
					}
				}
			}
		}

		norm := q.NormalizedText(query.TokenRange{Start: edge.Start, End: edge.End})
		for ttype, tokens := range edge.Tokens {
			if ttype == query.TokenCountry {
				continue
			}
			for _, t := range tokens {
				rematch(t, norm)
			}
		}
	}
}

// postcodeCompetitionPenalty is added to all tokens that cover the same
// terms as a postcode.
const postcodeCompetitionPenalty = 0.39

// isSimpleHousenumber reports whether a housenumber lookup word is short
// and contains a digit.
func isSimpleHousenumber(lookup string) bool {
	return len(lookup) <= 3 && strings.ContainsAny(lookup, "0123456789")
}
