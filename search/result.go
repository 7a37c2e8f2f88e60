package search

import (
	"cmp"
	"slices"

	"github.com/poiesic/placefinder/core"
)

// Result is a single place found by a search.
type Result struct {
	Source      core.SourceTable
	PlaceID     core.ID
	Place       *core.Place    // set for place, country and intersection results
	Postcode    *core.Postcode // set for postcode results
	Housenumber string
	CountryCode string
	Category    core.Category
	DisplayName string
	Centroid    core.Point
	BBox        core.BBox
	RankSearch  int
	RankAddress int
	Importance  float64

	// Accuracy is the accumulated penalty of the match. Lower is better.
	Accuracy float64
}

func newPlaceResult(source core.SourceTable, p *core.Place, accuracy float64) *Result {
	return &Result{
		Source:      source,
		PlaceID:     p.ID,
		Place:       p,
		Housenumber: p.Housenumber,
		CountryCode: p.CountryCode,
		Category:    p.Category(),
		DisplayName: p.DisplayName(),
		Centroid:    p.Centroid,
		BBox:        p.BBox,
		RankSearch:  p.RankSearch,
		RankAddress: p.RankAddress,
		Importance:  p.Importance,
		Accuracy:    accuracy,
	}
}

func newPostcodeResult(pc *core.Postcode, accuracy float64) *Result {
	name := pc.Postcode
	for _, a := range pc.Address {
		name += ", " + a
	}
	return &Result{
		Source:      core.SourcePostcode,
		PlaceID:     pc.ID,
		Postcode:    pc,
		CountryCode: pc.CountryCode,
		Category:    core.Category{Class: "place", Type: "postcode"},
		DisplayName: name,
		Centroid:    pc.Centroid,
		RankSearch:  21,
		RankAddress: 5,
		Accuracy:    accuracy,
	}
}

// CalculatedImportance returns the importance of the result, estimated
// from the search rank when the place has none.
func (r *Result) CalculatedImportance() float64 {
	if r.Importance != 0 {
		return r.Importance
	}
	return 0.40001 - float64(r.RankSearch)/75.0
}

// Ranking is the final sort key of the result. Lower is better.
func (r *Result) Ranking() float64 {
	return r.Accuracy - r.CalculatedImportance()
}

type resultKey struct {
	source      core.SourceTable
	id          core.ID
	housenumber string
	country     string
}

// resultSet deduplicates results, keeping the best accuracy for each.
type resultSet struct {
	index   map[resultKey]*Result
	results []*Result
}

func newResultSet() *resultSet {
	return &resultSet{index: make(map[resultKey]*Result)}
}

func (s *resultSet) Len() int {
	return len(s.results)
}

func (s *resultSet) add(r *Result) {
	key := resultKey{source: r.Source, id: r.PlaceID, housenumber: r.Housenumber, country: r.CountryCode}
	if prev, ok := s.index[key]; ok {
		prev.Accuracy = min(prev.Accuracy, r.Accuracy)
		return
	}
	s.index[key] = r
	s.results = append(s.results, r)
}

func sortResults(results []*Result) {
	slices.SortStableFunc(results, func(a, b *Result) int {
		return cmp.Or(
			cmp.Compare(a.Ranking(), b.Ranking()),
			cmp.Compare(b.BBox.Area(), a.BBox.Area()),
		)
	})
}

// prefilterResults drops results whose ranking is margin or more worse
// than the best.
func prefilterResults(results []*Result, margin float64) []*Result {
	if len(results) == 0 {
		return results
	}
	best := results[0].Ranking()
	for _, r := range results[1:] {
		best = min(best, r.Ranking())
	}
	out := results[:0:0]
	for _, r := range results {
		if r.Ranking() < best+margin {
			out = append(out, r)
		}
	}
	return out
}

// sortAndCut sorts the results and removes those that are clearly worse
// than the best one. Results of higher search rank than the best need
// a better ranking to survive. At most limit results are returned.
func sortAndCut(results []*Result, margin float64, limit int) []*Result {
	if len(results) == 0 {
		return results
	}
	sortResults(results)
	minRank := results[0].RankSearch
	minRanking := results[0].Ranking()
	out := make([]*Result, 0, len(results))
	for _, r := range results {
		if r.Ranking()+0.03*float64(r.RankSearch-minRank) < minRanking+margin {
			out = append(out, r)
			minRank = min(minRank, r.RankSearch)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
