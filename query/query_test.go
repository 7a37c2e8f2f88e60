package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildQuery creates a graph from terms. Each term is followed by the
// given break; the last break is always replaced by BreakEnd.
func buildQuery(ptype PhraseType, terms []string, breaks []BreakType) *QueryStruct {
	q := NewQueryStruct([]Phrase{{Type: ptype}})
	for i, term := range terms {
		q.AddNode(breaks[i], ptype, term, term)
	}
	q.Nodes[len(q.Nodes)-1].BType = BreakEnd
	return q
}

func TestTokenRange(t *testing.T) {
	a := TokenRange{Start: 0, End: 2}
	b := TokenRange{Start: 2, End: 3}

	assert.True(t, a.Precedes(b))
	assert.False(t, b.Precedes(a))
	assert.True(t, b.Follows(a))
	assert.Equal(t, 2, a.Len())

	l, r := TokenRange{Start: 1, End: 4}.Split(2)
	assert.Equal(t, TokenRange{Start: 1, End: 2}, l)
	assert.Equal(t, TokenRange{Start: 2, End: 4}, r)
}

func TestQueryStruct_AddToken(t *testing.T) {
	t.Run("groups tokens by end and type", func(t *testing.T) {
		q := buildQuery(PhraseAny, []string{"a", "b"}, []BreakType{BreakWord, BreakEnd})
		q.AddToken(TokenRange{0, 2}, TokenWord, &Token{ID: 1})
		q.AddToken(TokenRange{0, 2}, TokenWord, &Token{ID: 2})
		q.AddToken(TokenRange{0, 1}, TokenWord, &Token{ID: 3})

		require.Len(t, q.Nodes[0].Starting, 2)
		assert.Len(t, q.GetTokens(TokenRange{0, 2}, TokenWord), 2)
		assert.Len(t, q.GetTokens(TokenRange{0, 1}, TokenWord), 1)
		assert.Equal(t, TokenWord, q.GetTokens(TokenRange{0, 1}, TokenWord)[0].Type)
	})

	t.Run("partial token", func(t *testing.T) {
		q := buildQuery(PhraseAny, []string{"a", "b"}, []BreakType{BreakWord, BreakEnd})
		q.AddToken(TokenRange{1, 2}, TokenPartial, &Token{ID: 5})
		assert.True(t, q.Nodes[1].HasTokens(2, TokenPartial))
		assert.Len(t, q.GetPartialsList(TokenRange{0, 2}), 1)
	})

	t.Run("second partial panics", func(t *testing.T) {
		q := buildQuery(PhraseAny, []string{"a"}, []BreakType{BreakEnd})
		q.AddToken(TokenRange{0, 1}, TokenPartial, &Token{ID: 1})
		assert.Panics(t, func() {
			q.AddToken(TokenRange{0, 1}, TokenPartial, &Token{ID: 2})
		})
	})

	t.Run("out of range panics", func(t *testing.T) {
		q := buildQuery(PhraseAny, []string{"a"}, []BreakType{BreakEnd})
		assert.Panics(t, func() {
			q.AddToken(TokenRange{0, 2}, TokenWord, &Token{ID: 1})
		})
	})

	t.Run("incompatible phrase type drops token", func(t *testing.T) {
		q := buildQuery(PhrasePostcode, []string{"12345"}, []BreakType{BreakEnd})
		q.AddToken(TokenRange{0, 1}, TokenWord, &Token{ID: 1})
		q.AddToken(TokenRange{0, 1}, TokenPartial, &Token{ID: 2})
		q.AddToken(TokenRange{0, 1}, TokenPostcode, &Token{ID: 3})

		assert.Nil(t, q.Nodes[0].Partial)
		assert.Empty(t, q.GetTokens(TokenRange{0, 1}, TokenWord))
		assert.Len(t, q.GetTokens(TokenRange{0, 1}, TokenPostcode), 1)
	})

	t.Run("amenity phrase distinguishes full phrase", func(t *testing.T) {
		q := buildQuery(PhraseAmenity, []string{"bar", "x"}, []BreakType{BreakWord, BreakEnd})
		q.AddToken(TokenRange{0, 2}, TokenNearItem, &Token{ID: 1})
		q.AddToken(TokenRange{0, 1}, TokenNearItem, &Token{ID: 2})
		q.AddToken(TokenRange{0, 1}, TokenQualifier, &Token{ID: 3})

		assert.Len(t, q.GetTokens(TokenRange{0, 2}, TokenNearItem), 1)
		assert.Empty(t, q.GetTokens(TokenRange{0, 1}, TokenNearItem))
		assert.Len(t, q.GetTokens(TokenRange{0, 1}, TokenQualifier), 1)
	})
}

func TestQueryStruct_ExtractWords(t *testing.T) {
	q := buildQuery(PhraseAny,
		[]string{"10", "downing", "street", "london"},
		[]BreakType{BreakWord, BreakWord, BreakPhrase, BreakEnd})

	words := q.ExtractWords(0, -1)

	assert.Equal(t, []TokenRange{{0, 1}}, words["10"])
	assert.Equal(t, []TokenRange{{1, 3}}, words["downing street"])
	assert.Equal(t, []TokenRange{{0, 3}}, words["10 downing street"])
	assert.Equal(t, []TokenRange{{3, 4}}, words["london"])
	assert.NotContains(t, words, "street london")
	assert.NotContains(t, words, "downing street london")
}

func TestQueryStruct_ExtractWords_TokenBreak(t *testing.T) {
	q := buildQuery(PhraseAny, []string{"bei", "jing"}, []BreakType{BreakToken, BreakEnd})

	words := q.ExtractWords(0, -1)
	assert.Equal(t, []TokenRange{{0, 2}}, words["beijing"])
	assert.Contains(t, words, "bei")
}

func TestQueryStruct_ExtractWords_RepeatedWord(t *testing.T) {
	q := buildQuery(PhraseAny, []string{"new", "york", "new"}, []BreakType{BreakWord, BreakWord, BreakEnd})

	words := q.ExtractWords(0, -1)
	assert.Equal(t, []TokenRange{{0, 1}, {2, 3}}, words["new"])
}

func TestQueryStruct_ComputeDirectionPenalty(t *testing.T) {
	t.Run("single term", func(t *testing.T) {
		q := buildQuery(PhraseAny, []string{"a"}, []BreakType{BreakEnd})
		q.AddToken(TokenRange{0, 1}, TokenPartial, &Token{Count: 10, AddrCount: 1})
		q.ComputeDirectionPenalty()
		assert.Equal(t, 0.0, q.DirPenalty)
	})

	t.Run("name first favours left-to-right", func(t *testing.T) {
		q := buildQuery(PhraseAny, []string{"a", "b", "c"}, []BreakType{BreakWord, BreakWord, BreakEnd})
		q.AddToken(TokenRange{0, 1}, TokenPartial, &Token{Count: 90, AddrCount: 10})
		q.AddToken(TokenRange{1, 2}, TokenPartial, &Token{Count: 50, AddrCount: 50})
		q.AddToken(TokenRange{2, 3}, TokenPartial, &Token{Count: 10, AddrCount: 90})
		q.ComputeDirectionPenalty()
		assert.Less(t, q.DirPenalty, 0.0)
		// slope of 0.9, 0.5, 0.1
		assert.InDelta(t, -0.4, q.DirPenalty, 1e-9)
	})

	t.Run("name last favours right-to-left", func(t *testing.T) {
		q := buildQuery(PhraseAny, []string{"a", "b"}, []BreakType{BreakWord, BreakEnd})
		q.AddToken(TokenRange{0, 1}, TokenPartial, &Token{Count: 10, AddrCount: 90})
		q.AddToken(TokenRange{1, 2}, TokenPartial, &Token{Count: 90, AddrCount: 10})
		q.ComputeDirectionPenalty()
		assert.Greater(t, q.DirPenalty, 0.0)
	})
}

func TestQueryStruct_IterTokensByEdge(t *testing.T) {
	q := buildQuery(PhraseAny, []string{"a", "b"}, []BreakType{BreakWord, BreakEnd})
	q.AddToken(TokenRange{0, 1}, TokenPartial, &Token{ID: 1})
	q.AddToken(TokenRange{0, 1}, TokenWord, &Token{ID: 2})
	q.AddToken(TokenRange{0, 2}, TokenWord, &Token{ID: 3})
	q.AddToken(TokenRange{1, 2}, TokenHousenumber, &Token{ID: 4})

	var edges []Edge
	for e := range q.IterTokensByEdge() {
		edges = append(edges, e)
	}

	require.Len(t, edges, 4)

	t.Run("partial is an edge of its own", func(t *testing.T) {
		assert.Equal(t, 0, edges[0].Start)
		assert.Equal(t, 1, edges[0].End)
		assert.Equal(t, []TokenType{TokenPartial}, edges[0].Types())
	})

	t.Run("token lists are grouped by end node", func(t *testing.T) {
		assert.Equal(t, 0, edges[1].Start)
		assert.Equal(t, 1, edges[1].End)
		assert.Equal(t, []TokenType{TokenWord}, edges[1].Types())
		assert.Equal(t, 2, edges[2].End)
		assert.Equal(t, 1, edges[3].Start)
		assert.Equal(t, []TokenType{TokenHousenumber}, edges[3].Types())
	})

	t.Run("stops early", func(t *testing.T) {
		n := 0
		for range q.IterTokensByEdge() {
			n++
			break
		}
		assert.Equal(t, 1, n)
	})
}

func TestQueryStruct_NormalizedText(t *testing.T) {
	q := NewQueryStruct([]Phrase{{Type: PhraseAny, Text: "北京 street"}})
	q.AddNode(BreakToken, PhraseAny, "bei", "北京")
	q.AddNode(BreakWord, PhraseAny, "jing", "北京")
	q.AddNode(BreakEnd, PhraseAny, "street", "street")

	assert.Equal(t, "北京 street", q.NormalizedText(TokenRange{0, 3}))
	assert.Equal(t, "bei jing street", q.LookupText(TokenRange{0, 3}))
}

func TestParsePhraseType(t *testing.T) {
	pt, err := ParsePhraseType("Street")
	require.NoError(t, err)
	assert.Equal(t, PhraseStreet, pt)

	_, err = ParsePhraseType("galaxy")
	assert.ErrorIs(t, err, ErrUnknownPhraseType)
}
