package assignment

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/placefinder/query"
)

type graphTerm struct {
	term  string
	btype query.BreakType
}

func newGraph(sources []query.Phrase, terms ...graphTerm) *query.QueryStruct {
	q := query.NewQueryStruct(sources)
	for _, t := range terms {
		q.AddNode(t.btype, q.Nodes[0].PType, t.term, t.term)
	}
	for _, n := range q.Nodes {
		n.Penalty = query.BreakPenalty(n.BType)
	}
	return q
}

func rng(start, end int) query.TokenRange {
	return query.TokenRange{Start: start, End: end}
}

func collect(t *testing.T, q *query.QueryStruct) []TokenAssignment {
	t.Helper()
	e, err := NewEnumerator()
	require.NoError(t, err)
	var out []TokenAssignment
	for a := range e.Assignments(q) {
		out = append(out, a)
	}
	return out
}

func rangePtr(r query.TokenRange) *query.TokenRange {
	return &r
}

// checkCoverage verifies that the ranges of an assignment cover the
// query without overlapping.
func checkCoverage(t *testing.T, q *query.QueryStruct, a TokenAssignment) {
	t.Helper()
	ranges := a.Ranges()
	slices.SortFunc(ranges, func(x, y query.TokenRange) int { return x.Start - y.Start })
	pos := 0
	for _, r := range ranges {
		assert.Equal(t, pos, r.Start, "gap or overlap in %s", a)
		pos = r.End
	}
	assert.Equal(t, q.NumTokenSlots(), pos, "assignment %s does not cover query", a)
}

func downingStreetGraph() *query.QueryStruct {
	q := newGraph(
		[]query.Phrase{{Type: query.PhraseAny, Text: "10 downing street"}, {Type: query.PhraseAny, Text: "london"}},
		graphTerm{"10", query.BreakWord},
		graphTerm{"downing", query.BreakWord},
		graphTerm{"street", query.BreakPhrase},
		graphTerm{"london", query.BreakEnd},
	)
	q.AddToken(rng(0, 1), query.TokenHousenumber, &query.Token{Penalty: 0.5, Count: 1, AddrCount: 1, LookupWord: "10"})
	q.AddToken(rng(1, 2), query.TokenPartial, &query.Token{ID: 1, Count: 5, AddrCount: 2})
	q.AddToken(rng(2, 3), query.TokenPartial, &query.Token{ID: 2, Count: 1000, AddrCount: 800})
	q.AddToken(rng(3, 4), query.TokenPartial, &query.Token{ID: 3, Count: 20, AddrCount: 5000})
	q.AddToken(rng(1, 3), query.TokenWord, &query.Token{ID: 10, Count: 3})
	q.AddToken(rng(3, 4), query.TokenWord, &query.Token{ID: 11, Count: 4})
	return q
}

func TestEnumerator_HousenumberForcesDirection(t *testing.T) {
	q := downingStreetGraph()
	got := collect(t, q)
	require.NotEmpty(t, got)

	found := false
	for _, a := range got {
		checkCoverage(t, q, a)
		require.NotNil(t, a.Housenumber)
		assert.Equal(t, rng(0, 1), *a.Housenumber)
		if a.Name != nil && *a.Name == rng(1, 3) {
			assert.Equal(t, []query.TokenRange{rng(3, 4)}, a.Address)
			assert.InDelta(t, 0.1, a.Penalty, 1e-9)
			found = true
		}
	}
	assert.True(t, found, "no assignment with name 'downing street' in %v", got)
}

func TestEnumerator_PostcodeOnly(t *testing.T) {
	q := newGraph(
		[]query.Phrase{{Type: query.PhrasePostcode, Text: "sw1a 1aa"}},
		graphTerm{"sw1a", query.BreakWord},
		graphTerm{"1aa", query.BreakEnd},
	)
	q.AddToken(rng(0, 2), query.TokenPostcode, &query.Token{Penalty: 0.1, LookupWord: "SW1A 1AA"})

	got := collect(t, q)
	require.Len(t, got, 1)
	assert.Equal(t, rangePtr(rng(0, 2)), got[0].Postcode)
	assert.Empty(t, got[0].Address)
	assert.Nil(t, got[0].Name)
	assert.InDelta(t, 0.0, got[0].Penalty, 1e-9)
}

func TestEnumerator_CompetingQualifiers(t *testing.T) {
	q := newGraph(
		[]query.Phrase{{Type: query.PhraseAny}},
		graphTerm{"pub", query.BreakWord},
		graphTerm{"bar", query.BreakEnd},
	)
	q.AddToken(rng(0, 1), query.TokenQualifier, &query.Token{ID: 1})
	q.AddToken(rng(0, 1), query.TokenQualifier, &query.Token{ID: 2})
	q.AddToken(rng(1, 2), query.TokenQualifier, &query.Token{ID: 3})

	assert.Empty(t, collect(t, q))

	t.Run("second qualifier is never appendable", func(t *testing.T) {
		for _, dir := range []int{dirUnknown, dirLeftToRight, dirRightToLeft} {
			s := &tokenSequence{
				seq:       []TypedRange{{Type: query.TokenQualifier, Range: rng(0, 1)}},
				direction: dir,
			}
			_, ok := s.appendable(query.TokenQualifier)
			assert.False(t, ok, "direction %d", dir)
		}
	})
}

func TestEnumerator_SpecialTypesAppearOnce(t *testing.T) {
	for _, ttype := range []query.TokenType{query.TokenHousenumber, query.TokenPostcode, query.TokenCountry, query.TokenNearItem} {
		s := &tokenSequence{
			seq: []TypedRange{
				{Type: query.TokenPartial, Range: rng(0, 1)},
				{Type: ttype, Range: rng(1, 2)},
			},
		}
		_, ok := s.appendable(ttype)
		assert.False(t, ok, "type %s", ttype)
	}
}

func TestEnumerator_CountryFirstReadsRightToLeft(t *testing.T) {
	q := newGraph(
		[]query.Phrase{{Type: query.PhraseAny}},
		graphTerm{"de", query.BreakWord},
		graphTerm{"berlin", query.BreakEnd},
	)
	q.AddToken(rng(0, 1), query.TokenCountry, &query.Token{LookupWord: "de"})
	q.AddToken(rng(1, 2), query.TokenPartial, &query.Token{ID: 7, Count: 10, AddrCount: 10})

	got := collect(t, q)
	require.Len(t, got, 1)
	assert.Equal(t, rangePtr(rng(1, 2)), got[0].Name)
	assert.Equal(t, rangePtr(rng(0, 1)), got[0].Country)
	assert.InDelta(t, 0.1, got[0].Penalty, 1e-9)
}

func TestEnumerator_Coverage(t *testing.T) {
	q := newGraph(
		[]query.Phrase{{Type: query.PhraseAny}},
		graphTerm{"main", query.BreakWord},
		graphTerm{"st", query.BreakWord},
		graphTerm{"12345", query.BreakWord},
		graphTerm{"us", query.BreakEnd},
	)
	q.AddToken(rng(0, 1), query.TokenPartial, &query.Token{ID: 1, Count: 10, AddrCount: 10})
	q.AddToken(rng(1, 2), query.TokenPartial, &query.Token{ID: 2, Count: 100, AddrCount: 100})
	q.AddToken(rng(2, 3), query.TokenPartial, &query.Token{ID: 3, Count: 1, AddrCount: 1})
	q.AddToken(rng(3, 4), query.TokenPartial, &query.Token{ID: 4, Count: 10, AddrCount: 10})
	q.AddToken(rng(2, 3), query.TokenPostcode, &query.Token{Penalty: 0.1})
	q.AddToken(rng(2, 3), query.TokenHousenumber, &query.Token{Penalty: 0.5})
	q.AddToken(rng(3, 4), query.TokenCountry, &query.Token{})

	got := collect(t, q)
	require.NotEmpty(t, got)
	for _, a := range got {
		checkCoverage(t, q, a)
		assert.GreaterOrEqual(t, a.Penalty, 0.0)
	}
}

func TestEnumerator_AddressesAreIndependent(t *testing.T) {
	graph := func() *query.QueryStruct {
		q := newGraph(
			[]query.Phrase{{Type: query.PhraseAny}},
			graphTerm{"unter", query.BreakWord},
			graphTerm{"den", query.BreakWord},
			graphTerm{"linden", query.BreakWord},
			graphTerm{"berlin", query.BreakEnd},
		)
		for i := range 4 {
			q.AddToken(rng(i, i+1), query.TokenPartial, &query.Token{ID: i + 1, Count: 10, AddrCount: 10})
		}
		return q
	}
	want := collect(t, graph())

	e, err := NewEnumerator()
	require.NoError(t, err)
	var got []TokenAssignment
	for a := range e.Assignments(graph()) {
		got = append(got, a)
		snapshot := a
		snapshot.Address = slices.Clone(a.Address)
		// scribble over the yielded slice and grow it in place
		for i := range a.Address {
			a.Address[i] = rng(0, 0)
		}
		if len(a.Address) > 0 {
			_ = append(a.Address[:len(a.Address)-1], rng(0, 0), rng(0, 0))
		}
		got[len(got)-1] = snapshot
	}

	require.Equal(t, len(want), len(got))
	for i := range want {
		assert.Equal(t, want[i].Address, got[i].Address, "assignment %d", i)
	}
}

func TestEnumerator_StopsEarly(t *testing.T) {
	q := downingStreetGraph()
	e, err := NewEnumerator()
	require.NoError(t, err)

	n := 0
	for range e.Assignments(q) {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestEnumerator_EmptyQuery(t *testing.T) {
	q := query.NewQueryStruct(nil)
	assert.Empty(t, collect(t, q))
}

func TestTokenSequence_Recheck(t *testing.T) {
	tuning := DefaultTuning()
	twoPriors := []TypedRange{
		{Type: query.TokenPartial, Range: rng(0, 1)},
		{Type: query.TokenPartial, Range: rng(1, 2)},
		{Type: query.TokenHousenumber, Range: rng(2, 3)},
	}

	t.Run("unknown direction gets resolved", func(t *testing.T) {
		s := &tokenSequence{seq: twoPriors, direction: dirUnknown}
		assert.True(t, s.recheck(tuning))
		assert.Equal(t, dirRightToLeft, s.direction)
		assert.InDelta(t, 0.0, s.penalty, 1e-9)
	})

	t.Run("two priors are penalized", func(t *testing.T) {
		s := &tokenSequence{seq: twoPriors, direction: dirLeftToRight}
		assert.True(t, s.recheck(tuning))
		assert.InDelta(t, tuning.PriorsPenalty, s.penalty, 1e-9)
	})

	t.Run("three priors are rejected", func(t *testing.T) {
		seq := append([]TypedRange{{Type: query.TokenPartial, Range: rng(0, 1)}}, twoPriors...)
		s := &tokenSequence{seq: seq, direction: dirLeftToRight}
		assert.False(t, s.recheck(tuning))
	})

	t.Run("near item with housenumber", func(t *testing.T) {
		s := &tokenSequence{
			seq: []TypedRange{
				{Type: query.TokenNearItem, Range: rng(0, 1)},
				{Type: query.TokenHousenumber, Range: rng(1, 2)},
			},
			direction: dirLeftToRight,
		}
		assert.True(t, s.recheck(tuning))
		assert.InDelta(t, tuning.NearHousenumberPenalty, s.penalty, 1e-9)
	})
}

func TestTokenSequence_Advance(t *testing.T) {
	s := &tokenSequence{direction: dirUnknown}

	next, ok := s.advance(query.TokenWord, 1, query.BreakStart)
	assert.False(t, ok)
	assert.Nil(t, next)

	next, ok = s.advance(query.TokenPartial, 1, query.BreakStart)
	require.True(t, ok)

	t.Run("same type extends within phrase", func(t *testing.T) {
		ext, ok := next.advance(query.TokenPartial, 2, query.BreakWord)
		require.True(t, ok)
		require.Len(t, ext.seq, 1)
		assert.Equal(t, rng(0, 2), ext.seq[0].Range)
		assert.InDelta(t, 0.0, ext.penalty, 1e-9)
	})

	t.Run("phrase break starts new range", func(t *testing.T) {
		ext, ok := next.advance(query.TokenPartial, 2, query.BreakPhrase)
		require.True(t, ok)
		require.Len(t, ext.seq, 2)
		assert.Equal(t, rng(1, 2), ext.seq[1].Range)
	})

	t.Run("type change pays transition", func(t *testing.T) {
		ext, ok := next.advance(query.TokenHousenumber, 2, query.BreakPart)
		require.True(t, ok)
		assert.InDelta(t, 0.2, ext.penalty, 1e-9)
		// original state is untouched
		assert.Len(t, next.seq, 1)
	})
}

func TestWithTuning_Invalid(t *testing.T) {
	_, err := NewEnumerator(WithTuning(Tuning{}))
	assert.ErrorIs(t, err, ErrInvalidTuning)
}
