package search

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/poiesic/placefinder/core"
	"github.com/poiesic/placefinder/storage"
)

const (
	// placeCandidateLimit caps the number of places a single index lookup
	// may return.
	placeCandidateLimit = 500
	// categoryCandidateLimit caps the number of places fetched per category lookup.
	categoryCandidateLimit = 1000
	// nearAnchorLimit is the number of inner results a near search looks around.
	nearAnchorLimit = 10

	housenumberMissPenalty = 0.5
	postcodeMissPenalty    = 0.4
	viewboxPenalty         = 0.5

	// postcodeAreaRadius is the distance in degrees within which a place
	// counts as inside a postcode area.
	postcodeAreaRadius = 0.1
	// intersectionTolerance grows street boxes before testing for a crossing.
	intersectionTolerance = 0.0002
)

// Search priorities. Searches of equal penalty run in this order.
const (
	priorityCountry = iota
	priorityPlace
	priorityCategory
)

// AbstractSearch is one executable search plan. The set of
// implementations is closed: CountrySearch, PostcodeSearch, PlaceSearch,
// AddressSearch, PoiSearch, NearSearch and IntersectionSearch.
type AbstractSearch interface {
	fmt.Stringer
	// Penalty is the cost attached to every result of the search.
	Penalty() float64
	// Priority orders searches of equal penalty, lower first.
	Priority() int
	// Lookup runs the search against the store.
	Lookup(ctx context.Context, store storage.SearchStore, details *core.SearchDetails) ([]*Result, error)

	base() *baseSearch
}

type baseSearch struct {
	penalty float64
}

func (b *baseSearch) Penalty() float64 { return b.penalty }

func (b *baseSearch) base() *baseSearch { return b }

// sortSearches orders searches by penalty, then priority.
func sortSearches(searches []AbstractSearch) {
	slices.SortStableFunc(searches, func(a, b AbstractSearch) int {
		return cmp.Or(cmp.Compare(a.Penalty(), b.Penalty()), cmp.Compare(a.Priority(), b.Priority()))
	})
}

// placeFilter applies the caller restrictions and the shared search
// data to a candidate place. It returns the extra penalty of the place
// and false when the place must be dropped.
type placeFilter struct {
	data    *SearchData
	details *core.SearchDetails
	// postcode area centroids by postcode, for postcode matching
	postcodeAreas map[string][]core.Point
}

func (f *placeFilter) accept(p *core.Place) (float64, bool) {
	d := f.details
	if d.IsExcluded(p.ID) || !d.HasCountry(p.CountryCode) || !d.AcceptsLocation(p.Centroid) {
		return 0, false
	}
	if p.RankSearch < d.MinRank || p.RankSearch > d.MaxRank {
		return 0, false
	}

	var penalty float64
	if f.data.Countries.Len() > 0 {
		cp, ok := f.data.Countries.Penalty(p.CountryCode)
		if !ok {
			return 0, false
		}
		penalty += cp
	}
	if f.data.Qualifiers.Len() > 0 {
		qp, ok := f.data.Qualifiers.Penalty(p.Category())
		if !ok {
			return 0, false
		}
		penalty += qp
	}
	if f.data.Postcodes.Len() > 0 {
		penalty += f.postcodePenalty(p)
	}
	if !d.Viewbox.IsZero() && !d.BoundedViewbox && !d.Viewbox.Contains(p.Centroid) {
		penalty += viewboxPenalty
	}
	return penalty + f.data.rankPenalty(p), true
}

func (f *placeFilter) postcodePenalty(p *core.Place) float64 {
	best := postcodeMissPenalty
	for i, pc := range f.data.Postcodes.Values {
		pp := f.data.Postcodes.Penalties[i]
		if strings.EqualFold(p.Postcode, pc) {
			best = min(best, pp)
			continue
		}
		for _, c := range f.postcodeAreas[pc] {
			if core.Distance(c, p.Centroid) <= postcodeAreaRadius {
				best = min(best, pp)
			}
		}
	}
	return best
}

func newPlaceFilter(ctx context.Context, store storage.SearchStore, data *SearchData, details *core.SearchDetails) (*placeFilter, error) {
	f := &placeFilter{data: data, details: details}
	if data.Postcodes.Len() == 0 {
		return f, nil
	}
	areas, err := store.FindPostcodes(ctx, data.Postcodes.Values)
	if err != nil {
		return nil, fmt.Errorf("finding postcode areas: %w", err)
	}
	f.postcodeAreas = make(map[string][]core.Point, len(areas))
	for _, a := range areas {
		f.postcodeAreas[a.Postcode] = append(f.postcodeAreas[a.Postcode], a.Centroid)
	}
	return f, nil
}

// lookupMatches runs the index lookup and filters the candidates.
// It returns the accepted places with their accuracy.
func lookupMatches(ctx context.Context, store storage.SearchStore, data *SearchData, details *core.SearchDetails, penalty float64) ([]*core.Place, []float64, error) {
	filter, err := newPlaceFilter(ctx, store, data, details)
	if err != nil {
		return nil, nil, err
	}
	places, err := store.LookupPlaces(ctx, data.Lookups, placeCandidateLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("looking up places: %w", err)
	}
	var (
		out        []*core.Place
		accuracies []float64
	)
	for _, p := range places {
		extra, ok := filter.accept(p)
		if !ok {
			continue
		}
		out = append(out, p)
		accuracies = append(accuracies, penalty+extra)
	}
	return out, accuracies, nil
}

// CountrySearch finds countries by their country code.
type CountrySearch struct {
	baseSearch
	data *SearchData
}

func newCountrySearch(data *SearchData) *CountrySearch {
	return &CountrySearch{baseSearch: baseSearch{penalty: data.Penalty}, data: data}
}

func (s *CountrySearch) Priority() int { return priorityCountry }

func (s *CountrySearch) String() string {
	return fmt.Sprintf("country(%.3f) %v", s.penalty, s.data.Countries.Values)
}

func (s *CountrySearch) Lookup(ctx context.Context, store storage.SearchStore, details *core.SearchDetails) ([]*Result, error) {
	places, err := store.FindCountries(ctx, s.data.Countries.Values)
	if err != nil {
		return nil, fmt.Errorf("finding countries: %w", err)
	}
	var out []*Result
	for _, p := range places {
		cp, ok := s.data.Countries.Penalty(p.CountryCode)
		if !ok || details.IsExcluded(p.ID) || !details.AcceptsLocation(p.Centroid) {
			continue
		}
		out = append(out, newPlaceResult(core.SourceCountry, p, s.penalty+cp))
	}
	return out, nil
}

// PostcodeSearch finds postcode areas, optionally restricted by address
// tokens.
type PostcodeSearch struct {
	baseSearch
	data *SearchData
}

func newPostcodeSearch(extra float64, data *SearchData) *PostcodeSearch {
	return &PostcodeSearch{baseSearch: baseSearch{penalty: extra + data.Penalty}, data: data}
}

func (s *PostcodeSearch) Priority() int { return priorityPlace }

func (s *PostcodeSearch) String() string {
	return fmt.Sprintf("postcode(%.3f) %v lookups=%v", s.penalty, s.data.Postcodes.Values, s.data.Lookups)
}

func (s *PostcodeSearch) Lookup(ctx context.Context, store storage.SearchStore, details *core.SearchDetails) ([]*Result, error) {
	areas, err := store.FindPostcodes(ctx, s.data.Postcodes.Values)
	if err != nil {
		return nil, fmt.Errorf("finding postcodes: %w", err)
	}
	var out []*Result
	for _, pc := range areas {
		if !details.HasCountry(pc.CountryCode) || !details.AcceptsLocation(pc.Centroid) || details.IsExcluded(pc.ID) {
			continue
		}
		accuracy := s.penalty
		if s.data.Countries.Len() > 0 {
			cp, ok := s.data.Countries.Penalty(pc.CountryCode)
			if !ok {
				continue
			}
			accuracy += cp
		}
		if !matchesAll(s.data.Lookups, pc.AddressVector) {
			continue
		}
		pp, _ := s.data.Postcodes.Penalty(pc.Postcode)
		accuracy += pp
		for i := range s.data.Rankings {
			accuracy += s.data.Rankings[i].PenaltyFor(pc.AddressVector)
		}
		out = append(out, newPostcodeResult(pc, accuracy))
	}
	return out, nil
}

func matchesAll(lookups []core.FieldLookup, vector []int) bool {
	for _, l := range lookups {
		if !l.Matches(vector) {
			return false
		}
	}
	return true
}

// PlaceSearch finds named places, optionally restricted by address.
type PlaceSearch struct {
	baseSearch
	data          *SearchData
	expectedCount float64
	hasAddress    bool
}

func newPlaceSearch(extra float64, data *SearchData, expected float64, hasAddress bool) *PlaceSearch {
	return &PlaceSearch{
		baseSearch:    baseSearch{penalty: extra + data.Penalty},
		data:          data,
		expectedCount: expected,
		hasAddress:    hasAddress,
	}
}

func (s *PlaceSearch) Priority() int { return priorityPlace }

func (s *PlaceSearch) String() string {
	return fmt.Sprintf("place(%.3f) expected=%.0f %s", s.penalty, s.expectedCount, s.data)
}

func (s *PlaceSearch) Lookup(ctx context.Context, store storage.SearchStore, details *core.SearchDetails) ([]*Result, error) {
	places, accuracies, err := lookupMatches(ctx, store, s.data, details, s.penalty)
	if err != nil {
		return nil, err
	}
	out := make([]*Result, len(places))
	for i, p := range places {
		out[i] = newPlaceResult(core.SourcePlace, p, accuracies[i])
	}
	return out, nil
}

// AddressSearch finds streets or places and resolves the housenumber
// below them. A parent without the housenumber is returned itself with
// an extra penalty.
type AddressSearch struct {
	baseSearch
	data          *SearchData
	expectedCount float64
	hasAddress    bool
}

func newAddressSearch(extra float64, data *SearchData, expected float64, hasAddress bool) *AddressSearch {
	return &AddressSearch{
		baseSearch:    baseSearch{penalty: extra + data.Penalty},
		data:          data,
		expectedCount: expected,
		hasAddress:    hasAddress,
	}
}

func (s *AddressSearch) Priority() int { return priorityPlace }

func (s *AddressSearch) String() string {
	return fmt.Sprintf("address(%.3f) expected=%.0f %s", s.penalty, s.expectedCount, s.data)
}

func (s *AddressSearch) Lookup(ctx context.Context, store storage.SearchStore, details *core.SearchDetails) ([]*Result, error) {
	// housenumber candidates must not be filtered by the rank restriction
	// of their parents
	parentDetails := *details
	parentDetails.MaxRank = 30
	parents, accuracies, err := lookupMatches(ctx, store, s.data, &parentDetails, s.penalty)
	if err != nil {
		return nil, err
	}
	if len(parents) == 0 {
		return nil, nil
	}

	ids := make([]core.ID, len(parents))
	accuracyOf := make(map[core.ID]float64, len(parents))
	for i, p := range parents {
		ids[i] = p.ID
		accuracyOf[p.ID] = accuracies[i]
	}
	hnrs, err := store.FindHousenumbers(ctx, ids, s.data.Housenumbers.Values)
	if err != nil {
		return nil, fmt.Errorf("finding housenumbers: %w", err)
	}

	var out []*Result
	found := make(map[core.ID]bool, len(parents))
	for _, h := range hnrs {
		parentAcc, ok := accuracyOf[h.ParentID]
		if !ok || details.IsExcluded(h.ID) || !details.AcceptsLocation(h.Centroid) {
			continue
		}
		hp, ok := s.data.Housenumbers.Penalty(strings.ToLower(h.Housenumber))
		if !ok {
			continue
		}
		found[h.ParentID] = true
		out = append(out, newPlaceResult(core.SourcePlace, h, parentAcc+hp))
	}
	for i, p := range parents {
		if found[p.ID] || p.RankSearch < details.MinRank || p.RankSearch > details.MaxRank {
			continue
		}
		out = append(out, newPlaceResult(core.SourcePlace, p, accuracies[i]+housenumberMissPenalty))
	}
	return out, nil
}

// PoiSearch finds places by category only. It needs a location
// restriction: a near point, a bounded viewbox or countries.
type PoiSearch struct {
	baseSearch
	data *SearchData
}

func newPoiSearch(data *SearchData) *PoiSearch {
	return &PoiSearch{baseSearch: baseSearch{penalty: data.Penalty}, data: data}
}

func (s *PoiSearch) Priority() int { return priorityCategory }

func (s *PoiSearch) String() string {
	return fmt.Sprintf("poi(%.3f) %v", s.penalty, s.data.Qualifiers.Values)
}

func (s *PoiSearch) Lookup(ctx context.Context, store storage.SearchStore, details *core.SearchDetails) ([]*Result, error) {
	bounded := details.BoundedViewbox && !details.Viewbox.IsZero()
	if details.Near == nil && !bounded && s.data.Countries.Len() == 0 {
		return nil, nil
	}
	places, err := store.FindByCategory(ctx, s.data.Qualifiers.Values, categoryCandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("finding categories: %w", err)
	}
	filter, err := newPlaceFilter(ctx, store, s.data, details)
	if err != nil {
		return nil, err
	}
	var out []*Result
	for _, p := range places {
		extra, ok := filter.accept(p)
		if !ok {
			continue
		}
		accuracy := s.penalty + extra
		if details.Near != nil {
			accuracy += core.Distance(*details.Near, p.Centroid)
		}
		out = append(out, newPlaceResult(core.SourcePlace, p, accuracy))
	}
	return out, nil
}

// NearSearch finds places of the given categories around the results
// of an inner search.
type NearSearch struct {
	baseSearch
	categories WeightedCategories
	search     AbstractSearch
}

func newNearSearch(penalty float64, categories WeightedCategories, inner AbstractSearch) *NearSearch {
	return &NearSearch{baseSearch: baseSearch{penalty: penalty}, categories: categories, search: inner}
}

func (s *NearSearch) Priority() int { return priorityCategory }

func (s *NearSearch) String() string {
	return fmt.Sprintf("near(%.3f) %v around {%s}", s.penalty, s.categories.Values, s.search)
}

// nearRadius returns the search radius in degrees around a place of
// the given search rank.
func nearRadius(rankSearch int) float64 {
	switch {
	case rankSearch < 16:
		return 0.05
	case rankSearch < 26:
		return 0.02
	case rankSearch < 28:
		return 0.005
	}
	return 0.002
}

func (s *NearSearch) Lookup(ctx context.Context, store storage.SearchStore, details *core.SearchDetails) ([]*Result, error) {
	innerDetails := *details
	innerDetails.Categories = nil
	innerDetails.MinRank, innerDetails.MaxRank = 0, 30
	anchors, err := s.search.Lookup(ctx, store, &innerDetails)
	if err != nil {
		return nil, err
	}
	if len(anchors) == 0 {
		return nil, nil
	}
	slices.SortStableFunc(anchors, func(a, b *Result) int { return cmp.Compare(a.Accuracy, b.Accuracy) })
	anchors = anchors[:min(len(anchors), nearAnchorLimit)]

	candidates, err := store.FindByCategory(ctx, s.categories.Values, categoryCandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("finding categories: %w", err)
	}

	var out []*Result
	for _, c := range candidates {
		if details.IsExcluded(c.ID) || !details.HasCountry(c.CountryCode) || !details.AcceptsLocation(c.Centroid) {
			continue
		}
		if c.RankSearch < details.MinRank || c.RankSearch > details.MaxRank {
			continue
		}
		cp, ok := s.categories.Penalty(c.Category())
		if !ok {
			continue
		}
		for _, a := range anchors {
			radius := details.NearRadius
			if radius <= 0 {
				radius = nearRadius(a.RankSearch)
			}
			if a.PlaceID == c.ID || core.Distance(a.Centroid, c.Centroid) > radius {
				continue
			}
			out = append(out, newPlaceResult(core.SourcePlace, c, s.penalty+a.Accuracy+cp))
		}
	}
	return out, nil
}

// IntersectionSearch finds the crossing of two streets.
type IntersectionSearch struct {
	baseSearch
	first  *SearchData
	second *SearchData
}

func newIntersectionSearch(penalty float64, first, second *SearchData) *IntersectionSearch {
	return &IntersectionSearch{baseSearch: baseSearch{penalty: penalty}, first: first, second: second}
}

func (s *IntersectionSearch) Priority() int { return priorityPlace }

func (s *IntersectionSearch) String() string {
	return fmt.Sprintf("intersection(%.3f) {%s} x {%s}", s.penalty, s.first, s.second)
}

func isStreet(p *core.Place) bool {
	return p.RankAddress >= 26 && p.RankAddress <= 27
}

func (s *IntersectionSearch) Lookup(ctx context.Context, store storage.SearchStore, details *core.SearchDetails) ([]*Result, error) {
	streetDetails := *details
	streetDetails.MinRank, streetDetails.MaxRank = 0, 30
	a, accA, err := lookupMatches(ctx, store, s.first, &streetDetails, 0)
	if err != nil {
		return nil, err
	}
	b, accB, err := lookupMatches(ctx, store, s.second, &streetDetails, 0)
	if err != nil {
		return nil, err
	}

	var out []*Result
	for i, x := range a {
		if !isStreet(x) {
			continue
		}
		xbox := x.BBox.Expand(intersectionTolerance)
		for j, y := range b {
			if !isStreet(y) || x.ID == y.ID {
				continue
			}
			ybox := y.BBox.Expand(intersectionTolerance)
			if !xbox.Intersects(ybox) {
				continue
			}
			crossing := xbox.Intersection(ybox)
			if !details.AcceptsLocation(crossing.Center()) {
				continue
			}
			r := newPlaceResult(core.SourceIntersection, x, s.penalty+accA[i]+accB[j])
			r.PlaceID = core.IDFromContent(x.Ref() + "/" + y.Ref())
			r.DisplayName = x.PrimaryName() + " / " + y.DisplayName()
			r.Centroid = crossing.Center()
			r.BBox = crossing
			out = append(out, r)
		}
	}
	return out, nil
}
