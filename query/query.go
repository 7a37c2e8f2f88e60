package query

import (
	"fmt"
	"iter"
	"slices"
	"strings"
)

// maxWordTerms limits the number of terms a lookup word may span.
const maxWordTerms = 20

// QueryStruct is the token graph of a single query.
//
// Nodes are break positions; node 0 is the query start and the last node
// the query end. Tokens reference nodes by index. A QueryStruct is mutated
// by the analyzer only and must not be shared between goroutines before
// analysis is complete.
type QueryStruct struct {
	Source     []Phrase
	Nodes      []*QueryNode
	DirPenalty float64
}

// NewQueryStruct creates an empty graph with the start node in place.
func NewQueryStruct(source []Phrase) *QueryStruct {
	ptype := PhraseAny
	if len(source) > 0 {
		ptype = source[0].Type
	}
	return &QueryStruct{
		Source: source,
		Nodes:  []*QueryNode{{BType: BreakStart, PType: ptype}},
	}
}

// NumTokenSlots returns the number of terms in the query.
func (q *QueryStruct) NumTokenSlots() int {
	return len(q.Nodes) - 1
}

// AddNode appends a new break position. The term ending at the new node
// is described by termLookup and termNormalized.
func (q *QueryStruct) AddNode(btype BreakType, ptype PhraseType, termLookup, termNormalized string) {
	q.Nodes = append(q.Nodes, &QueryNode{
		BType:          btype,
		PType:          ptype,
		TermLookup:     termLookup,
		TermNormalized: termNormalized,
	})
}

func (q *QueryStruct) checkRange(trange TokenRange) {
	if trange.Start < 0 || trange.End >= len(q.Nodes) || trange.Start >= trange.End {
		panic(fmt.Sprintf("token range %s outside of query with %d nodes", trange, len(q.Nodes)))
	}
}

// AddToken attaches a token to the graph. Tokens that are not compatible
// with the phrase type at the start node are silently dropped.
// Panics when the range lies outside the graph or when a second partial
// token is added to the same node.
func (q *QueryStruct) AddToken(trange TokenRange, ttype TokenType, token *Token) {
	q.checkRange(trange)
	token.Type = ttype
	snode := q.Nodes[trange.Start]

	if ttype == TokenPartial {
		if trange.Len() != 1 {
			panic(fmt.Sprintf("partial token must span exactly one term, got %s", trange))
		}
		if snode.Partial != nil {
			panic(fmt.Sprintf("node %d already has a partial token", trange.Start))
		}
		if snode.PType.CompatibleWith(TokenPartial, false) {
			snode.Partial = token
		}
		return
	}

	fullPhrase := (snode.BType == BreakStart || snode.BType == BreakPhrase) &&
		(q.Nodes[trange.End].BType == BreakPhrase || q.Nodes[trange.End].BType == BreakEnd)
	if !snode.PType.CompatibleWith(ttype, fullPhrase) {
		return
	}
	if tl := snode.tokenList(trange.End, ttype); tl != nil {
		tl.Tokens = append(tl.Tokens, token)
		return
	}
	snode.Starting = append(snode.Starting, &TokenList{End: trange.End, Type: ttype, Tokens: []*Token{token}})
}

// GetTokens returns the tokens of the given type for exactly the given range.
func (q *QueryStruct) GetTokens(trange TokenRange, ttype TokenType) []*Token {
	q.checkRange(trange)
	if ttype == TokenPartial {
		if trange.Len() == 1 && q.Nodes[trange.Start].Partial != nil {
			return []*Token{q.Nodes[trange.Start].Partial}
		}
		return nil
	}
	if tl := q.Nodes[trange.Start].tokenList(trange.End, ttype); tl != nil {
		return tl.Tokens
	}
	return nil
}

// GetPartialsList returns the partial tokens of every term in the range.
// Terms without a partial are skipped.
func (q *QueryStruct) GetPartialsList(trange TokenRange) []*Token {
	q.checkRange(trange)
	out := make([]*Token, 0, trange.Len())
	for i := trange.Start; i < trange.End; i++ {
		if p := q.Nodes[i].Partial; p != nil {
			out = append(out, p)
		}
	}
	return out
}

// InWordPenalty sums the break penalties inside the range. The result is
// never negative.
func (q *QueryStruct) InWordPenalty(trange TokenRange) float64 {
	q.checkRange(trange)
	var sum float64
	for i := trange.Start + 1; i < trange.End; i++ {
		sum += q.Nodes[i].Penalty
	}
	return max(sum, 0)
}

// ExtractWords collects all lookup words that can be formed from
// consecutive terms starting at node start and ending at or before node
// end (use -1 for the query end). Words never cross a hard phrase break
// and span at most 20 terms. Each word maps to every range it covers.
func (q *QueryStruct) ExtractWords(start, end int) map[string][]TokenRange {
	if end < 0 || end > len(q.Nodes) {
		end = len(q.Nodes)
	}
	words := make(map[string][]TokenRange)
	for first := start; first+1 < end; first++ {
		node := q.Nodes[first+1]
		word := node.TermLookup
		words[word] = append(words[word], TokenRange{Start: first, End: first + 1})
		if node.BType == BreakPhrase {
			continue
		}
		maxLast := min(first+maxWordTerms, end-1)
		for last := first + 2; last <= maxLast; last++ {
			prev := q.Nodes[last-1]
			lnode := q.Nodes[last]
			if prev.BType == BreakToken {
				word += lnode.TermLookup
			} else {
				word += " " + lnode.TermLookup
			}
			words[word] = append(words[word], TokenRange{Start: first, End: last})
			if lnode.BType == BreakPhrase {
				break
			}
		}
	}
	return words
}

// linfac[n] is the denominator of the least-squares slope over n points.
var linfac = func() []float64 {
	out := make([]float64, 50)
	for n := range out {
		var sq float64
		for i := 0; i < n; i++ {
			sq += float64(i * i)
		}
		fn := float64(n)
		out[n] = fn*sq - (fn-1)*(fn-1)*fn*fn/4
	}
	return out
}()

// ComputeDirectionPenalty derives the reading direction from the partial
// tokens' name/address usage ratios. A query whose name-like terms are at
// the front gets a negative penalty (left-to-right reading), one whose
// name-like terms are at the end a positive one.
func (q *QueryStruct) ComputeDirectionPenalty() {
	n := q.NumTokenSlots()
	switch {
	case n <= 1 || n >= len(linfac):
		q.DirPenalty = 0
	case n == 2:
		q.DirPenalty = (q.Nodes[1].NameAddressRatio() - q.Nodes[0].NameAddressRatio()) / 3
	default:
		var sumR, sumIR float64
		for i, node := range q.Nodes[:n] {
			r := node.NameAddressRatio()
			sumR += r
			sumIR += float64(i) * r
		}
		fn := float64(n)
		q.DirPenalty = (fn*sumIR - sumR*fn*(fn-1)/2) / linfac[n]
	}
}

// Edge groups all tokens that span the same pair of nodes.
type Edge struct {
	Start  int
	End    int
	Tokens map[TokenType][]*Token
}

// Types returns the token types present on the edge in a stable order.
func (e Edge) Types() []TokenType {
	out := make([]TokenType, 0, len(e.Tokens))
	for _, t := range tokenTypeOrder {
		if _, ok := e.Tokens[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// IterTokensByEdge yields every (start, end) pair that carries tokens,
// ordered by start and then end node. The partial token of a node is
// yielded as an edge of its own before the token lists of that node, so
// it never competes with them.
func (q *QueryStruct) IterTokensByEdge() iter.Seq[Edge] {
	return func(yield func(Edge) bool) {
		for i, node := range q.Nodes {
			if node.Partial != nil {
				if !yield(Edge{Start: i, End: i + 1, Tokens: map[TokenType][]*Token{TokenPartial: {node.Partial}}}) {
					return
				}
			}
			edges := make(map[int]map[TokenType][]*Token)
			for _, tl := range node.Starting {
				if edges[tl.End] == nil {
					edges[tl.End] = make(map[TokenType][]*Token)
				}
				edges[tl.End][tl.Type] = tl.Tokens
			}
			ends := make([]int, 0, len(edges))
			for end := range edges {
				ends = append(ends, end)
			}
			slices.Sort(ends)
			for _, end := range ends {
				if !yield(Edge{Start: i, End: end, Tokens: edges[end]}) {
					return
				}
			}
		}
	}
}

// NormalizedText returns the normalized text covered by the range, leaving
// out repetitions of words that were split into several terms.
func (q *QueryStruct) NormalizedText(trange TokenRange) string {
	q.checkRange(trange)
	parts := make([]string, 0, trange.Len())
	for _, n := range q.Nodes[trange.Start+1 : trange.End+1] {
		if n.BType != BreakToken {
			parts = append(parts, n.TermNormalized)
		}
	}
	return strings.Join(parts, " ")
}

// LookupText returns the lookup terms covered by the range joined by spaces.
func (q *QueryStruct) LookupText(trange TokenRange) string {
	q.checkRange(trange)
	parts := make([]string, 0, trange.Len())
	for _, n := range q.Nodes[trange.Start+1 : trange.End+1] {
		parts = append(parts, n.TermLookup)
	}
	return strings.Join(parts, " ")
}

// String renders the graph for debugging.
func (q *QueryStruct) String() string {
	var sb strings.Builder
	for i, n := range q.Nodes {
		fmt.Fprintf(&sb, "%d %c %s %q", i, byte(n.BType), n.PType, n.TermLookup)
		if n.Partial != nil {
			fmt.Fprintf(&sb, " partial=%s", n.Partial)
		}
		for _, tl := range n.Starting {
			fmt.Fprintf(&sb, " ->%d %s%v", tl.End, tl.Type, tl.Tokens)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
