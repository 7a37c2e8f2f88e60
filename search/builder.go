package search

import (
	"cmp"
	"container/heap"
	"iter"
	"slices"

	"github.com/poiesic/placefinder/assignment"
	"github.com/poiesic/placefinder/core"
	"github.com/poiesic/placefinder/query"
)

const (
	// nameIndexLimit is the number of rows below which a name partial
	// is good enough for an index lookup.
	nameIndexLimit = 20000
	// nameIndexFactor is the assumed selectivity of every further partial.
	nameIndexFactor = 5
	// fullNameLimit caps the combined frequency of full names used for
	// an index lookup.
	fullNameLimit = 80000
	// nameAddressLimit caps the expected rows of a name and address search.
	nameAddressLimit = 10000
	// addrRestrictCount is the address frequency above which an address
	// token only filters.
	addrRestrictCount = 20000
	// housenumberIndexLimit decides between restricting and looking up
	// the address of a housenumber search.
	housenumberIndexLimit = 10000
	maxAddressFulls       = 5
	maxAddressRankings    = 10
)

// Builder turns token assignments into executable searches.
type Builder struct {
	query   *query.QueryStruct
	details *core.SearchDetails
}

// NewBuilder creates a builder for the given analyzed query.
func NewBuilder(q *query.QueryStruct, details *core.SearchDetails) *Builder {
	if details == nil {
		details = core.DefaultSearchDetails()
	}
	return &Builder{query: q, details: details}
}

func (b *Builder) configuredForCountry() bool {
	return b.details.MinRank <= 4 && b.details.MaxRank >= 4
}

func (b *Builder) configuredForPostcode() bool {
	return b.details.MinRank <= 5 && b.details.MaxRank >= 11
}

func (b *Builder) configuredForHousenumbers() bool {
	return b.details.MaxRank >= 30
}

// Build returns the searches for one assignment. The assignment penalty
// is included in the penalty of every search.
func (b *Builder) Build(a assignment.TokenAssignment) iter.Seq[AbstractSearch] {
	return func(yield func(AbstractSearch) bool) {
		for _, s := range b.build(a) {
			if !yield(s) {
				return
			}
		}
	}
}

func (b *Builder) build(a assignment.TokenAssignment) []AbstractSearch {
	sdata := b.searchData(a)
	if sdata == nil {
		return nil
	}
	near, nearPenalty, hasNear := b.nearItems(a)
	if hasNear && near.Len() == 0 {
		// all categories were excluded by the caller
		return nil
	}

	var searches []AbstractSearch
	switch {
	case a.Name == nil && hasNear && sdata.Postcodes.Len() == 0:
		sdata.Qualifiers = near
		sdata.Penalty += nearPenalty
		hasNear = false
		searches = b.poiSearch(sdata)
	case a.Name == nil && a.Housenumber != nil:
		searches = b.housenumberSearch(sdata, b.query.GetTokens(*a.Housenumber, query.TokenHousenumber), a.Address)
	case a.Name == nil:
		searches = b.specialSearch(sdata, a.Address, hasNear)
	default:
		searches = b.nameSearch(sdata, *a.Name, a.Address, hasNear)
		if s := b.intersectionSearch(a); s != nil {
			searches = append(searches, s)
		}
	}

	if hasNear {
		out := make([]AbstractSearch, 0, len(searches))
		for _, s := range searches {
			penalty := nearPenalty + a.Penalty + s.Penalty()
			s.base().penalty = 0
			out = append(out, newNearSearch(penalty, near, s))
		}
		return out
	}
	for _, s := range searches {
		s.base().penalty += a.Penalty
	}
	return searches
}

// searchData collects the restrictions that are shared by all searches
// of an assignment. Returns nil when the assignment cannot match.
func (b *Builder) searchData(a assignment.TokenAssignment) *SearchData {
	sdata := &SearchData{}

	if a.Country != nil {
		tokens := b.countryTokens(*a.Country)
		if len(tokens) == 0 {
			return nil
		}
		sdata.SetStrings(&sdata.Countries, tokens)
		sdata.Penalty += b.query.InWordPenalty(*a.Country)
	} else if len(b.details.Countries) > 0 {
		sdata.Countries = WeightedStrings{
			Values:    slices.Clone(b.details.Countries),
			Penalties: make([]float64, len(b.details.Countries)),
		}
	}

	if a.Housenumber != nil {
		sdata.SetStrings(&sdata.Housenumbers, b.query.GetTokens(*a.Housenumber, query.TokenHousenumber))
		sdata.Penalty += b.query.InWordPenalty(*a.Housenumber)
	}

	if a.Postcode != nil {
		sdata.SetStrings(&sdata.Postcodes, b.query.GetTokens(*a.Postcode, query.TokenPostcode))
		sdata.Penalty += b.query.InWordPenalty(*a.Postcode)
	}

	if a.Qualifier != nil {
		tokens := b.qualifierTokens(*a.Qualifier)
		if len(tokens) == 0 {
			return nil
		}
		sdata.SetQualifiers(tokens)
	} else if len(b.details.Categories) > 0 {
		sdata.Qualifiers = WeightedCategories{
			Values:    slices.Clone(b.details.Categories),
			Penalties: make([]float64, len(b.details.Categories)),
		}
	}

	if len(a.Address) > 0 {
		rankings := make([]FieldRanking, 0, len(a.Address))
		rest := a.Address
		if a.Name == nil && a.Housenumber != nil {
			// The first address part takes the role of the name, so it must
			// be ranked like one for penalties to stay comparable.
			rankings = append(rankings, b.nameRanking(a.Address[0], core.ColumnAddress))
			rest = a.Address[1:]
		}
		for _, r := range rest {
			rankings = append(rankings, b.addressRanking(r))
		}
		sdata.SetRanking(rankings)
	}

	return sdata
}

func (b *Builder) countryTokens(r query.TokenRange) []*query.Token {
	var out []*query.Token
	for _, t := range b.query.GetTokens(r, query.TokenCountry) {
		if b.details.HasCountry(t.LookupWord) {
			out = append(out, t)
		}
	}
	return out
}

func (b *Builder) qualifierTokens(r query.TokenRange) []*query.Token {
	var out []*query.Token
	for _, t := range b.query.GetTokens(r, query.TokenQualifier) {
		if b.details.HasCategory(t.Category) {
			out = append(out, t)
		}
	}
	return out
}

// nearItems returns the categories of the near item with the smallest
// penalty moved out of the list.
func (b *Builder) nearItems(a assignment.TokenAssignment) (WeightedCategories, float64, bool) {
	if a.NearItem == nil {
		return WeightedCategories{}, 0, false
	}
	var tokens []*query.Token
	for _, t := range b.query.GetTokens(*a.NearItem, query.TokenNearItem) {
		if b.details.HasCategory(t.Category) {
			tokens = append(tokens, t)
		}
	}
	wc, minPenalty := normalizedCategoriesFrom(tokens)
	return wc, minPenalty, true
}

func (b *Builder) poiSearch(sdata *SearchData) []AbstractSearch {
	if sdata.Qualifiers.Len() == 0 {
		return nil
	}
	return []AbstractSearch{newPoiSearch(sdata)}
}

// specialSearch builds searches for queries without a name: countries
// and postcodes.
func (b *Builder) specialSearch(sdata *SearchData, address []query.TokenRange, isCategory bool) []AbstractSearch {
	if sdata.Qualifiers.Len() > 0 {
		return nil
	}

	var out []AbstractSearch
	if sdata.Countries.Len() > 0 && len(address) == 0 && sdata.Postcodes.Len() == 0 && b.configuredForCountry() {
		out = append(out, newCountrySearch(sdata.clone()))
	}

	if sdata.Postcodes.Len() > 0 && (isCategory || b.configuredForPostcode()) {
		penalty := 0.1
		if sdata.Countries.Len() > 0 {
			penalty = 0.0
		}
		data := sdata.clone()
		if len(address) > 0 {
			var ids []int
			for _, r := range address {
				ids = append(ids, tokenIDs(b.query.GetPartialsList(r))...)
			}
			data.Lookups = []core.FieldLookup{{Column: core.ColumnAddress, Tokens: ids, LookupType: core.Restrict}}
		}
		out = append(out, newPostcodeSearch(penalty, data))
	}
	return out
}

// housenumberSearch builds a search for places that have a housenumber
// but no name. The housenumber tokens are looked up in the name column.
func (b *Builder) housenumberSearch(sdata *SearchData, hnrs []*query.Token, address []query.TokenRange) []AbstractSearch {
	var indexed []*query.Token
	expected := 0
	for _, t := range hnrs {
		if t.ID > 0 {
			indexed = append(indexed, t)
			expected += t.Count
		}
	}
	if len(indexed) == 0 || len(address) == 0 {
		return nil
	}

	var partials []*query.Token
	for _, r := range address {
		partials = append(partials, b.query.GetPartialsList(r)...)
	}
	if len(partials) == 0 {
		return nil
	}
	partialIDs := tokenIDs(partials)

	data := sdata.clone()
	data.Lookups = []core.FieldLookup{{Column: core.ColumnName, Tokens: tokenIDs(indexed), LookupType: core.LookupAny}}
	switch {
	case expected < housenumberIndexLimit:
		data.Lookups = append(data.Lookups, core.FieldLookup{Column: core.ColumnAddress, Tokens: partialIDs, LookupType: core.Restrict})
	case len(partialIDs) != 1 || partials[0].AddrCount < housenumberIndexLimit:
		data.Lookups = append(data.Lookups, core.FieldLookup{Column: core.ColumnAddress, Tokens: partialIDs, LookupType: core.LookupAll})
	default:
		fulls := b.query.GetTokens(address[0], query.TokenWord)
		if len(fulls) == 0 || len(fulls) > maxAddressFulls {
			return nil
		}
		data.Lookups = append(data.Lookups, core.FieldLookup{Column: core.ColumnAddress, Tokens: tokenIDs(fulls), LookupType: core.LookupAny})
	}
	data.Housenumbers = WeightedStrings{}
	return []AbstractSearch{newPlaceSearch(0.05, data, float64(expected), true)}
}

// nameSearch builds the searches for a name with optional address parts.
func (b *Builder) nameSearch(sdata *SearchData, name query.TokenRange, address []query.TokenRange, isCategory bool) []AbstractSearch {
	if !isCategory && sdata.Housenumbers.Len() > 0 && !b.configuredForHousenumbers() {
		return nil
	}

	ranking := b.nameRanking(name, core.ColumnName)
	namePenalty := ranking.NormalizePenalty()
	base := sdata.clone()
	if len(ranking.Rankings) > 0 {
		base.Rankings = append(base.Rankings, ranking)
	}

	var out []AbstractSearch
	for _, lk := range b.lookups(name, address) {
		data := base.clone()
		data.Lookups = lk.lookups
		if data.Housenumbers.Len() > 0 {
			out = append(out, newAddressSearch(lk.penalty+namePenalty, data, lk.expected, len(address) > 0))
		} else {
			out = append(out, newPlaceSearch(lk.penalty+namePenalty, data, lk.expected, len(address) > 0))
		}
	}
	return out
}

type lookupPlan struct {
	penalty  float64
	expected float64
	lookups  []core.FieldLookup
}

// lookups decides how the name and address tokens are used to find
// places. Rare name partials drive an index lookup directly. When they
// are too frequent, full names and then the address are tried.
func (b *Builder) lookups(name query.TokenRange, address []query.TokenRange) []lookupPlan {
	namePartials := NewCountedTokenIDs(b.query.GetPartialsList(name), false)
	var addrPartials []*query.Token
	for _, r := range address {
		addrPartials = append(addrPartials, b.query.GetPartialsList(r)...)
	}

	if split := namePartials.GetNumLookupTokens(nameIndexLimit, nameIndexFactor); split > 0 {
		lookups := lookupByNames(namePartials.GetHead(split), tokenIDs(addrPartials))
		if tail := namePartials.GetTail(split); len(tail) > 0 {
			lookups = append(lookups, core.FieldLookup{Column: core.ColumnName, Tokens: tail, LookupType: core.Restrict})
		}
		return []lookupPlan{{expected: namePartials.ExpectedForAllSearch(nameIndexFactor), lookups: lookups}}
	}

	var out []lookupPlan
	addrCount := 50000
	if addrIDs := NewCountedTokenIDs(addrPartials, true); addrIDs.Len() > 0 {
		addrCount = addrIDs.MinCount()
	}
	restrict, lookup := splitAddressTokens(addrPartials)

	fulls := b.query.GetTokens(name, query.TokenWord)
	if len(fulls) > 0 {
		fullsCount := 0
		for _, t := range fulls {
			fullsCount += t.Count
		}
		if fullsCount < fullNameLimit {
			out = append(out, lookupPlan{
				expected: float64(fullsCount),
				lookups:  lookupByAnyName(tokenIDs(fulls), restrict, lookup),
			})
		}
	}

	expected := namePartials.ExpectedForAllSearch(nameIndexFactor) / float64(int(1)<<len(address))
	if namePartials.Len() > 0 && len(lookup) > 0 && expected < nameAddressLimit && addrCount < addrRestrictCount {
		fullsWeight := 0.1
		if len(fulls) > 0 {
			fullsWeight = 1.0
		}
		lookups := lookupByAddr(namePartials.GetTokens(), lookup)
		if len(restrict) > 0 {
			lookups = append(lookups, core.FieldLookup{Column: core.ColumnAddress, Tokens: restrict, LookupType: core.Restrict})
		}
		out = append(out, lookupPlan{
			penalty:  0.35 * max(fullsWeight, float64(5-namePartials.Len()-len(address))),
			expected: expected,
			lookups:  lookups,
		})
	}
	return out
}

// splitAddressTokens separates frequent address partials, which only
// filter, from rare ones, which may drive the lookup.
func splitAddressTokens(partials []*query.Token) (restrict, lookup []int) {
	seen := make(map[int]struct{}, len(partials))
	for _, t := range partials {
		if _, ok := seen[t.ID]; ok {
			continue
		}
		seen[t.ID] = struct{}{}
		if t.AddrCount > addrRestrictCount {
			restrict = append(restrict, t.ID)
		} else {
			lookup = append(lookup, t.ID)
		}
	}
	return restrict, lookup
}

// intersectionSearch builds a search for the crossing of two streets
// written as "street a : street b".
func (b *Builder) intersectionSearch(a assignment.TokenAssignment) AbstractSearch {
	if a.Name == nil || len(a.Address) != 1 || a.Housenumber != nil || a.Postcode != nil || a.Qualifier != nil {
		return nil
	}
	name, addr := *a.Name, a.Address[0]
	var boundary int
	switch {
	case name.End == addr.Start:
		boundary = name.End
	case addr.End == name.Start:
		boundary = addr.End
	default:
		return nil
	}
	if b.query.Nodes[boundary].BType != query.BreakSoftPhrase {
		return nil
	}

	first, second := b.streetData(name), b.streetData(addr)
	if first == nil || second == nil {
		return nil
	}
	return newIntersectionSearch(first.Penalty+second.Penalty+0.2, first, second)
}

func (b *Builder) streetData(r query.TokenRange) *SearchData {
	partials := NewCountedTokenIDs(b.query.GetPartialsList(r), false)
	if partials.Len() == 0 {
		return nil
	}
	d := &SearchData{}
	d.SetRanking([]FieldRanking{b.nameRanking(r, core.ColumnName)})
	d.Lookups = lookupByNames(partials.GetTokens(), nil)
	if len(b.details.Countries) > 0 {
		d.Countries = WeightedStrings{
			Values:    slices.Clone(b.details.Countries),
			Penalties: make([]float64, len(b.details.Countries)),
		}
	}
	return d
}

// nameRanking ranks places by the full words matching the range. The
// default is what matching through partials alone costs.
func (b *Builder) nameRanking(r query.TokenRange, col core.Column) FieldRanking {
	words := b.query.GetTokens(r, query.TokenWord)
	ranks := make([]RankedTokens, 0, len(words))
	for _, t := range words {
		ranks = append(ranks, RankedTokens{Penalty: t.Penalty, Tokens: []int{t.ID}})
	}
	slices.SortStableFunc(ranks, func(x, y RankedTokens) int { return cmp.Compare(x.Penalty, y.Penalty) })

	def := 0.2 + b.query.InWordPenalty(r)
	for _, t := range b.query.GetPartialsList(r) {
		def += t.Penalty
	}
	return FieldRanking{Column: col, Default: def, Rankings: ranks}
}

type rankState struct {
	negLen int
	pos    int
	rank   RankedTokens
}

type rankQueue []rankState

func (q rankQueue) Len() int { return len(q) }
func (q rankQueue) Less(i, j int) bool {
	if q[i].negLen != q[j].negLen {
		return q[i].negLen < q[j].negLen
	}
	return q[i].pos < q[j].pos
}
func (q rankQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *rankQueue) Push(x any)   { *q = append(*q, x.(rankState)) }
func (q *rankQueue) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}

// addressRanking enumerates the ways the range can be covered by full
// words and partials. The cheapest cover with the fewest full words
// becomes the default.
func (b *Builder) addressRanking(r query.TokenRange) FieldRanking {
	partialsDefault := 0.2
	for _, t := range b.query.GetPartialsList(r) {
		partialsDefault += t.Penalty
	}

	todo := &rankQueue{{pos: r.Start}}
	var ranks []RankedTokens
	for todo.Len() > 0 {
		st := heap.Pop(todo).(rankState)
		node := b.query.Nodes[st.pos]

		if p := node.Partial; p != nil {
			if st.pos+1 < r.End {
				penalty := st.rank.Penalty + p.Penalty + query.TransitionPenalty(b.query.Nodes[st.pos+1].BType)
				heap.Push(todo, rankState{negLen: st.negLen - 1, pos: st.pos + 1, rank: RankedTokens{Penalty: penalty, Tokens: st.rank.Tokens}})
			} else {
				ranks = append(ranks, RankedTokens{Penalty: st.rank.Penalty + p.Penalty, Tokens: st.rank.Tokens})
			}
		}

		for _, tl := range node.Starting {
			if tl.Type != query.TokenWord {
				continue
			}
			switch {
			case tl.End < r.End:
				change := query.TransitionPenalty(b.query.Nodes[tl.End].BType)
				for _, t := range tl.Tokens {
					heap.Push(todo, rankState{negLen: st.negLen - 1, pos: tl.End, rank: st.rank.withToken(t, change)})
				}
			case tl.End == r.End:
				for _, t := range tl.Tokens {
					ranks = append(ranks, st.rank.withToken(t, 0))
				}
			}
		}

		if len(ranks) >= maxAddressRankings {
			ranks = append(ranks, RankedTokens{Penalty: st.rank.Penalty + partialsDefault})
			break
		}
	}

	if len(ranks) == 0 {
		return FieldRanking{Column: core.ColumnAddress, Default: partialsDefault}
	}

	slices.SortStableFunc(ranks, func(x, y RankedTokens) int { return cmp.Compare(len(x.Tokens), len(y.Tokens)) })
	def := ranks[0].Penalty + 0.3
	ranks = ranks[1:]
	slices.SortStableFunc(ranks, func(x, y RankedTokens) int { return cmp.Compare(x.Penalty, y.Penalty) })
	return FieldRanking{Column: core.ColumnAddress, Default: def, Rankings: ranks}
}
