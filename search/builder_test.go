package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/placefinder/assignment"
	"github.com/poiesic/placefinder/core"
	"github.com/poiesic/placefinder/query"
)

type term struct {
	text  string
	btype query.BreakType
}

func newGraph(terms ...term) *query.QueryStruct {
	text := ""
	for _, t := range terms {
		text += t.text + " "
	}
	q := query.NewQueryStruct([]query.Phrase{{Type: query.PhraseAny, Text: text}})
	for _, t := range terms {
		q.AddNode(t.btype, query.PhraseAny, t.text, t.text)
	}
	for _, n := range q.Nodes {
		n.Penalty = query.BreakPenalty(n.BType)
	}
	return q
}

func rng(start, end int) query.TokenRange {
	return query.TokenRange{Start: start, End: end}
}

func rangePtr(r query.TokenRange) *query.TokenRange {
	return &r
}

func buildAll(b *Builder, a assignment.TokenAssignment) []AbstractSearch {
	var out []AbstractSearch
	for s := range b.Build(a) {
		out = append(out, s)
	}
	return out
}

func berlinGraph(partialCount int) *query.QueryStruct {
	q := newGraph(term{"berlin", query.BreakEnd})
	q.AddToken(rng(0, 1), query.TokenPartial, &query.Token{ID: 1, Count: partialCount, AddrCount: 1, LookupWord: "berlin"})
	q.AddToken(rng(0, 1), query.TokenWord, &query.Token{ID: 2, Count: 3, AddrCount: 1, LookupWord: "berlin"})
	return q
}

func TestBuilder_NameOnly(t *testing.T) {
	q := berlinGraph(5)
	got := buildAll(NewBuilder(q, nil), assignment.TokenAssignment{Name: rangePtr(rng(0, 1))})
	require.Len(t, got, 1)

	s, ok := got[0].(*PlaceSearch)
	require.True(t, ok, "got %T", got[0])
	assert.InDelta(t, 0.0, s.Penalty(), 1e-9)
	assert.Equal(t, []core.FieldLookup{{Column: core.ColumnName, Tokens: []int{1}, LookupType: core.LookupAll}}, s.data.Lookups)
	require.Len(t, s.data.Rankings, 1)
	assert.Equal(t, []int{2}, s.data.Rankings[0].Rankings[0].Tokens)
	assert.InDelta(t, 0.2, s.data.Rankings[0].Default, 1e-9)
}

func TestBuilder_FrequentNameUsesFullWords(t *testing.T) {
	q := berlinGraph(50000)
	got := buildAll(NewBuilder(q, nil), assignment.TokenAssignment{Name: rangePtr(rng(0, 1))})
	require.Len(t, got, 1)

	s := got[0].(*PlaceSearch)
	assert.Equal(t, []core.FieldLookup{{Column: core.ColumnName, Tokens: []int{2}, LookupType: core.LookupAny}}, s.data.Lookups)
}

func TestBuilder_AssignmentPenaltyIsAdded(t *testing.T) {
	q := berlinGraph(5)
	got := buildAll(NewBuilder(q, nil), assignment.TokenAssignment{Penalty: 0.7, Name: rangePtr(rng(0, 1))})
	require.Len(t, got, 1)
	assert.InDelta(t, 0.7, got[0].Penalty(), 1e-9)
}

func TestBuilder_PostcodeOnly(t *testing.T) {
	q := newGraph(term{"sw1a", query.BreakWord}, term{"1aa", query.BreakEnd})
	q.AddToken(rng(0, 2), query.TokenPostcode, &query.Token{Penalty: 0.1, LookupWord: "SW1A 1AA"})

	got := buildAll(NewBuilder(q, nil), assignment.TokenAssignment{Postcode: rangePtr(rng(0, 2))})
	require.Len(t, got, 1)
	s, ok := got[0].(*PostcodeSearch)
	require.True(t, ok, "got %T", got[0])
	assert.InDelta(t, 0.2, s.Penalty(), 1e-9)
	assert.Equal(t, []string{"SW1A 1AA"}, s.data.Postcodes.Values)

	t.Run("not configured for postcodes", func(t *testing.T) {
		details := core.DefaultSearchDetails()
		details.MinRank = 26
		assert.Empty(t, buildAll(NewBuilder(q, details), assignment.TokenAssignment{Postcode: rangePtr(rng(0, 2))}))
	})
}

func TestBuilder_CountryOnly(t *testing.T) {
	q := newGraph(term{"de", query.BreakEnd})
	q.AddToken(rng(0, 1), query.TokenCountry, &query.Token{LookupWord: "de"})
	a := assignment.TokenAssignment{Country: rangePtr(rng(0, 1))}

	got := buildAll(NewBuilder(q, nil), a)
	require.Len(t, got, 1)
	s, ok := got[0].(*CountrySearch)
	require.True(t, ok, "got %T", got[0])
	assert.Equal(t, priorityCountry, s.Priority())

	t.Run("country excluded by details", func(t *testing.T) {
		details := core.DefaultSearchDetails()
		details.Countries = []string{"fr"}
		assert.Empty(t, buildAll(NewBuilder(q, details), a))
	})
}

func hauptstrGraph() *query.QueryStruct {
	q := newGraph(term{"12", query.BreakWord}, term{"hauptstr", query.BreakEnd})
	q.AddToken(rng(0, 1), query.TokenHousenumber, &query.Token{ID: 50, Count: 3, LookupWord: "12"})
	q.AddToken(rng(1, 2), query.TokenPartial, &query.Token{ID: 7, Count: 10, AddrCount: 100})
	return q
}

func TestBuilder_HousenumberAsName(t *testing.T) {
	q := hauptstrGraph()
	a := assignment.TokenAssignment{Housenumber: rangePtr(rng(0, 1)), Address: []query.TokenRange{rng(1, 2)}}

	got := buildAll(NewBuilder(q, nil), a)
	require.Len(t, got, 1)
	s, ok := got[0].(*PlaceSearch)
	require.True(t, ok, "got %T", got[0])
	assert.InDelta(t, 0.25, s.Penalty(), 1e-9)
	assert.Equal(t, []core.FieldLookup{
		{Column: core.ColumnName, Tokens: []int{50}, LookupType: core.LookupAny},
		{Column: core.ColumnAddress, Tokens: []int{7}, LookupType: core.Restrict},
	}, s.data.Lookups)
	assert.Zero(t, s.data.Housenumbers.Len())

	t.Run("synthetic housenumbers cannot be looked up", func(t *testing.T) {
		q := newGraph(term{"12", query.BreakWord}, term{"hauptstr", query.BreakEnd})
		q.AddToken(rng(0, 1), query.TokenHousenumber, &query.Token{Penalty: 0.5, Count: 1, LookupWord: "12"})
		q.AddToken(rng(1, 2), query.TokenPartial, &query.Token{ID: 7, Count: 10, AddrCount: 100})
		assert.Empty(t, buildAll(NewBuilder(q, nil), a))
	})
}

func TestBuilder_AddressSearch(t *testing.T) {
	q := newGraph(term{"hauptstr", query.BreakWord}, term{"12", query.BreakEnd})
	q.AddToken(rng(0, 1), query.TokenPartial, &query.Token{ID: 7, Count: 10, AddrCount: 100})
	q.AddToken(rng(1, 2), query.TokenHousenumber, &query.Token{ID: 50, Count: 3, LookupWord: "12"})
	a := assignment.TokenAssignment{Name: rangePtr(rng(0, 1)), Housenumber: rangePtr(rng(1, 2))}

	got := buildAll(NewBuilder(q, nil), a)
	require.Len(t, got, 1)
	s, ok := got[0].(*AddressSearch)
	require.True(t, ok, "got %T", got[0])
	assert.Equal(t, []string{"12"}, s.data.Housenumbers.Values)

	t.Run("not configured for housenumbers", func(t *testing.T) {
		details := core.DefaultSearchDetails()
		details.MaxRank = 26
		assert.Empty(t, buildAll(NewBuilder(q, details), a))
	})
}

func TestBuilder_NearItem(t *testing.T) {
	pub := core.Category{Class: "amenity", Type: "pub"}
	q := newGraph(term{"pub", query.BreakWord}, term{"berlin", query.BreakEnd})
	q.AddToken(rng(0, 1), query.TokenNearItem, &query.Token{Penalty: 0.1, Category: pub})
	q.AddToken(rng(1, 2), query.TokenPartial, &query.Token{ID: 1, Count: 5, AddrCount: 1})
	q.AddToken(rng(1, 2), query.TokenWord, &query.Token{ID: 2, Count: 3, AddrCount: 1})

	t.Run("wraps the name search", func(t *testing.T) {
		got := buildAll(NewBuilder(q, nil), assignment.TokenAssignment{
			NearItem: rangePtr(rng(0, 1)),
			Name:     rangePtr(rng(1, 2)),
		})
		require.Len(t, got, 1)
		s, ok := got[0].(*NearSearch)
		require.True(t, ok, "got %T", got[0])
		assert.InDelta(t, 0.1, s.Penalty(), 1e-9)
		assert.Equal(t, []core.Category{pub}, s.categories.Values)
		assert.InDelta(t, 0.0, s.search.Penalty(), 1e-9)
		assert.Equal(t, priorityCategory, s.Priority())
	})

	t.Run("without name it is a poi search", func(t *testing.T) {
		q := newGraph(term{"pub", query.BreakEnd})
		q.AddToken(rng(0, 1), query.TokenNearItem, &query.Token{Penalty: 0.1, Category: pub})
		got := buildAll(NewBuilder(q, nil), assignment.TokenAssignment{NearItem: rangePtr(rng(0, 1))})
		require.Len(t, got, 1)
		s, ok := got[0].(*PoiSearch)
		require.True(t, ok, "got %T", got[0])
		assert.Equal(t, []core.Category{pub}, s.data.Qualifiers.Values)
	})

	t.Run("category excluded by details", func(t *testing.T) {
		details := core.DefaultSearchDetails()
		details.Categories = []core.Category{{Class: "amenity", Type: "cafe"}}
		assert.Empty(t, buildAll(NewBuilder(q, details), assignment.TokenAssignment{
			NearItem: rangePtr(rng(0, 1)),
			Name:     rangePtr(rng(1, 2)),
		}))
	})
}

func TestBuilder_NearItemPenaltyCountedOnce(t *testing.T) {
	pub := core.Category{Class: "amenity", Type: "pub"}
	bar := core.Category{Class: "amenity", Type: "bar"}
	q := newGraph(term{"pub", query.BreakWord}, term{"berlin", query.BreakEnd})
	q.AddToken(rng(0, 1), query.TokenNearItem, &query.Token{Penalty: 0.3, Category: pub})
	q.AddToken(rng(0, 1), query.TokenNearItem, &query.Token{Penalty: 0.5, Category: bar})
	q.AddToken(rng(1, 2), query.TokenPartial, &query.Token{ID: 1, Count: 5, AddrCount: 1})
	q.AddToken(rng(1, 2), query.TokenWord, &query.Token{ID: 2, Count: 3, AddrCount: 1})

	got := buildAll(NewBuilder(q, nil), assignment.TokenAssignment{
		NearItem: rangePtr(rng(0, 1)),
		Name:     rangePtr(rng(1, 2)),
	})
	require.Len(t, got, 1)
	s, ok := got[0].(*NearSearch)
	require.True(t, ok, "got %T", got[0])
	assert.InDelta(t, 0.3, s.Penalty(), 1e-9)
	require.Equal(t, []core.Category{pub, bar}, s.categories.Values)
	assert.InDeltaSlice(t, []float64{0, 0.2}, s.categories.Penalties, 1e-9)

	t.Run("result accuracy", func(t *testing.T) {
		anchor := &core.Place{
			ID: core.IDFromContent("R62422"), OSMType: "R", OSMID: 62422,
			Class: "place", Type: "city", Names: map[string]string{"name": "Berlin"},
			RankSearch: 16, RankAddress: 16, NameVector: []int{1, 2},
			Centroid: core.Point{Lon: 13.4, Lat: 52.5},
		}
		place := func(id string, c core.Category) *core.Place {
			return &core.Place{
				ID: core.IDFromContent(id), OSMType: id[:1], OSMID: 1,
				Class: c.Class, Type: c.Type, Names: map[string]string{"name": id},
				RankSearch: 30, RankAddress: 30,
				Centroid: core.Point{Lon: 13.401, Lat: 52.501},
			}
		}
		store := &fakeStore{places: []*core.Place{anchor, place("N1", pub), place("N2", bar)}}
		details := core.DefaultSearchDetails()

		anchors, err := s.search.Lookup(context.Background(), store, details)
		require.NoError(t, err)
		require.Len(t, anchors, 1)

		results, err := s.Lookup(context.Background(), store, details)
		require.NoError(t, err)
		require.Len(t, results, 2)
		for _, r := range results {
			want := s.Penalty() + anchors[0].Accuracy
			if r.Category == bar {
				want += 0.2
			}
			assert.InDelta(t, want, r.Accuracy, 1e-9, r.Category.String())
		}
	})
}

func TestBuilder_PoiSearchPenalty(t *testing.T) {
	pub := core.Category{Class: "amenity", Type: "pub"}
	q := newGraph(term{"pub", query.BreakEnd})
	q.AddToken(rng(0, 1), query.TokenNearItem, &query.Token{Penalty: 0.3, Category: pub})

	got := buildAll(NewBuilder(q, nil), assignment.TokenAssignment{NearItem: rangePtr(rng(0, 1))})
	require.Len(t, got, 1)
	s, ok := got[0].(*PoiSearch)
	require.True(t, ok, "got %T", got[0])
	assert.InDelta(t, 0.3, s.Penalty(), 1e-9)
	assert.InDeltaSlice(t, []float64{0}, s.data.Qualifiers.Penalties, 1e-9)
}

func streetsGraph(middle query.BreakType) *query.QueryStruct {
	q := newGraph(
		term{"main", query.BreakWord},
		term{"st", middle},
		term{"oak", query.BreakWord},
		term{"ave", query.BreakEnd},
	)
	for i := range 4 {
		q.AddToken(rng(i, i+1), query.TokenPartial, &query.Token{ID: i + 1, Count: 10, AddrCount: 10})
	}
	return q
}

func TestBuilder_Intersection(t *testing.T) {
	a := assignment.TokenAssignment{Name: rangePtr(rng(0, 2)), Address: []query.TokenRange{rng(2, 4)}}

	got := buildAll(NewBuilder(streetsGraph(query.BreakSoftPhrase), nil), a)
	var inter *IntersectionSearch
	for _, s := range got {
		if is, ok := s.(*IntersectionSearch); ok {
			inter = is
		}
	}
	require.NotNil(t, inter, "no intersection search in %v", got)
	assert.InDelta(t, 0.8, inter.Penalty(), 1e-9)
	assert.Equal(t, []int{1, 2}, inter.first.Lookups[0].Tokens)
	assert.Equal(t, []int{3, 4}, inter.second.Lookups[0].Tokens)

	t.Run("needs a soft phrase break", func(t *testing.T) {
		for _, s := range buildAll(NewBuilder(streetsGraph(query.BreakWord), nil), a) {
			assert.NotContains(t, s.String(), "intersection")
		}
	})
}

func TestBuilder_AddressRanking(t *testing.T) {
	q := newGraph(term{"unter", query.BreakWord}, term{"linden", query.BreakEnd})
	q.AddToken(rng(0, 1), query.TokenPartial, &query.Token{ID: 1, Penalty: 0.1, Count: 10, AddrCount: 10})
	q.AddToken(rng(1, 2), query.TokenPartial, &query.Token{ID: 2, Penalty: 0.1, Count: 10, AddrCount: 10})
	q.AddToken(rng(0, 2), query.TokenWord, &query.Token{ID: 10, Count: 10})

	r := NewBuilder(q, nil).addressRanking(rng(0, 2))
	assert.Equal(t, core.ColumnAddress, r.Column)
	assert.InDelta(t, 0.6, r.Default, 1e-9)
	require.Len(t, r.Rankings, 1)
	assert.Equal(t, []int{10}, r.Rankings[0].Tokens)
	assert.InDelta(t, 0.0, r.Rankings[0].Penalty, 1e-9)

	t.Run("no tokens at all", func(t *testing.T) {
		q := newGraph(term{"x", query.BreakEnd})
		r := NewBuilder(q, nil).addressRanking(rng(0, 1))
		assert.InDelta(t, 0.2, r.Default, 1e-9)
		assert.Empty(t, r.Rankings)
	})
}

func TestSortSearches(t *testing.T) {
	data := &SearchData{}
	searches := []AbstractSearch{
		newPoiSearch(&SearchData{Penalty: 0.5}),
		newPlaceSearch(0.5, data, 0, false),
		newCountrySearch(&SearchData{Penalty: 0.5}),
		newPlaceSearch(0.1, data, 0, false),
	}
	sortSearches(searches)
	assert.InDelta(t, 0.1, searches[0].Penalty(), 1e-9)
	assert.IsType(t, &CountrySearch{}, searches[1])
	assert.IsType(t, &PlaceSearch{}, searches[2])
	assert.IsType(t, &PoiSearch{}, searches[3])
}
