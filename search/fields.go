package search

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/poiesic/placefinder/core"
	"github.com/poiesic/placefinder/query"
)

// WeightedStrings is a list of alternative strings with their penalties.
type WeightedStrings struct {
	Values    []string
	Penalties []float64
}

// Len returns the number of alternatives.
func (w WeightedStrings) Len() int {
	return len(w.Values)
}

// Penalty returns the penalty of value and whether it is part of the list.
func (w WeightedStrings) Penalty(value string) (float64, bool) {
	for i, v := range w.Values {
		if v == value {
			return w.Penalties[i], true
		}
	}
	return 0, false
}

// WeightedCategories is a list of alternative categories with their penalties.
type WeightedCategories struct {
	Values    []core.Category
	Penalties []float64
}

// Len returns the number of alternatives.
func (w WeightedCategories) Len() int {
	return len(w.Values)
}

// Penalty returns the penalty of c and whether it is part of the list.
func (w WeightedCategories) Penalty(c core.Category) (float64, bool) {
	for i, v := range w.Values {
		if v == c {
			return w.Penalties[i], true
		}
	}
	return 0, false
}

// MinPenalty returns the smallest penalty of the list or 0 when it is empty.
func (w WeightedCategories) MinPenalty() float64 {
	if len(w.Penalties) == 0 {
		return 0
	}
	return slices.Min(w.Penalties)
}

// RankedTokens is a set of token ids which, when all present in a
// column, give the place the attached penalty.
type RankedTokens struct {
	Penalty float64
	Tokens  []int
}

func (r RankedTokens) withToken(t *query.Token, transition float64) RankedTokens {
	tokens := make([]int, len(r.Tokens), len(r.Tokens)+1)
	copy(tokens, r.Tokens)
	return RankedTokens{
		Penalty: r.Penalty + t.Penalty + transition,
		Tokens:  append(tokens, t.ID),
	}
}

// FieldRanking computes a penalty for a place from the tokens present in
// one of its columns. The penalty of the first matching alternative is
// used, Default when none matches.
type FieldRanking struct {
	Column   core.Column
	Default  float64
	Rankings []RankedTokens
}

// NormalizePenalty subtracts the smallest achievable penalty from the
// default and all alternatives and returns it. Afterwards the best
// alternative (or the default) has penalty 0.
func (f *FieldRanking) NormalizePenalty() float64 {
	minPenalty := f.Default
	for _, r := range f.Rankings {
		minPenalty = min(minPenalty, r.Penalty)
	}
	f.Default -= minPenalty
	for i := range f.Rankings {
		f.Rankings[i].Penalty -= minPenalty
	}
	return minPenalty
}

// PenaltyFor returns the penalty for a place whose column holds vector.
func (f *FieldRanking) PenaltyFor(vector []int) float64 {
	best := f.Default
	for _, r := range f.Rankings {
		if r.Penalty < best && containsAll(vector, r.Tokens) {
			best = r.Penalty
		}
	}
	return best
}

func containsAll(vector, tokens []int) bool {
	for _, t := range tokens {
		if !slices.Contains(vector, t) {
			return false
		}
	}
	return true
}

// SearchData collects everything a search needs to find and rank places.
type SearchData struct {
	Penalty      float64
	Lookups      []core.FieldLookup
	Rankings     []FieldRanking
	Countries    WeightedStrings
	Housenumbers WeightedStrings
	Postcodes    WeightedStrings
	Qualifiers   WeightedCategories
}

// weightedStringsFrom groups the tokens by lookup word, keeping the
// lowest penalty. The penalties are returned relative to the overall
// minimum, which is returned separately.
func weightedStringsFrom(tokens []*query.Token) (WeightedStrings, float64) {
	if len(tokens) == 0 {
		return WeightedStrings{}, 0
	}
	minPenalty := math.Inf(1)
	var out WeightedStrings
	index := make(map[string]int, len(tokens))
	for _, t := range tokens {
		minPenalty = min(minPenalty, t.Penalty)
		if i, ok := index[t.LookupWord]; ok {
			out.Penalties[i] = min(out.Penalties[i], t.Penalty)
			continue
		}
		index[t.LookupWord] = len(out.Values)
		out.Values = append(out.Values, t.LookupWord)
		out.Penalties = append(out.Penalties, t.Penalty)
	}
	for i := range out.Penalties {
		out.Penalties[i] -= minPenalty
	}
	return out, minPenalty
}

// weightedCategoriesFrom groups the tokens by category, keeping the
// lowest penalty.
func weightedCategoriesFrom(tokens []*query.Token) WeightedCategories {
	var out WeightedCategories
	index := make(map[core.Category]int, len(tokens))
	for _, t := range tokens {
		if i, ok := index[t.Category]; ok {
			out.Penalties[i] = min(out.Penalties[i], t.Penalty)
			continue
		}
		index[t.Category] = len(out.Values)
		out.Values = append(out.Values, t.Category)
		out.Penalties = append(out.Penalties, t.Penalty)
	}
	return out
}

// SetStrings fills one of the string fields from tokens and moves the
// smallest token penalty into the search penalty.
func (d *SearchData) SetStrings(field *WeightedStrings, tokens []*query.Token) {
	ws, minPenalty := weightedStringsFrom(tokens)
	*field = ws
	d.Penalty += minPenalty
}

// SetQualifiers fills the qualifiers from tokens and moves the smallest
// token penalty into the search penalty.
func (d *SearchData) SetQualifiers(tokens []*query.Token) {
	if len(tokens) == 0 {
		return
	}
	wc, minPenalty := normalizedCategoriesFrom(tokens)
	d.Qualifiers = wc
	d.Penalty += minPenalty
}

// normalizedCategoriesFrom groups the tokens by category and shifts the
// penalties so that the best category has none. The shift is returned.
func normalizedCategoriesFrom(tokens []*query.Token) (WeightedCategories, float64) {
	wc := weightedCategoriesFrom(tokens)
	minPenalty := wc.MinPenalty()
	for i := range wc.Penalties {
		wc.Penalties[i] -= minPenalty
	}
	return wc, minPenalty
}

// SetRanking normalizes the rankings and adds them to the search.
// Rankings without alternatives only contribute their default penalty.
func (d *SearchData) SetRanking(rankings []FieldRanking) {
	d.Rankings = nil
	for _, r := range rankings {
		d.Penalty += r.NormalizePenalty()
		if len(r.Rankings) > 0 {
			d.Rankings = append(d.Rankings, r)
		}
	}
}

// rankPenalty sums the ranking penalties for a place.
func (d *SearchData) rankPenalty(p *core.Place) float64 {
	var sum float64
	for i := range d.Rankings {
		sum += d.Rankings[i].PenaltyFor(p.Vector(d.Rankings[i].Column))
	}
	return sum
}

// clone returns a copy that can be modified without touching d.
func (d *SearchData) clone() *SearchData {
	c := *d
	c.Lookups = slices.Clone(d.Lookups)
	c.Rankings = slices.Clone(d.Rankings)
	return &c
}

func (d *SearchData) String() string {
	return fmt.Sprintf("penalty=%.3f lookups=%v rankings=%d countries=%v hnrs=%v postcodes=%v qualifiers=%v",
		d.Penalty, d.Lookups, len(d.Rankings), d.Countries.Values, d.Housenumbers.Values,
		d.Postcodes.Values, d.Qualifiers.Values)
}

// noStatisticsCount is the count assumed for tokens without frequency
// information.
const noStatisticsCount = 100000

type countedToken struct {
	count int
	id    int
}

// CountedTokenIDs is a set of token ids ordered by their frequency,
// rarest first.
type CountedTokenIDs struct {
	tokens []countedToken
}

// NewCountedTokenIDs creates the set from tokens, using the address
// counts when useAddrCount is set. Tokens with a count of 1 carry no
// statistics and sort last.
func NewCountedTokenIDs(tokens []*query.Token, useAddrCount bool) CountedTokenIDs {
	seen := make(map[countedToken]struct{}, len(tokens))
	out := make([]countedToken, 0, len(tokens))
	for _, t := range tokens {
		ct := countedToken{count: t.Count, id: t.ID}
		if useAddrCount {
			ct.count = t.AddrCount
		}
		if _, ok := seen[ct]; ok {
			continue
		}
		seen[ct] = struct{}{}
		out = append(out, ct)
	}
	slices.SortFunc(out, func(a, b countedToken) int {
		return cmp.Or(cmp.Compare(effectiveCount(a.count), effectiveCount(b.count)), cmp.Compare(a.id, b.id))
	})
	return CountedTokenIDs{tokens: out}
}

func effectiveCount(c int) int {
	if c <= 1 {
		return noStatisticsCount
	}
	return c
}

// Len returns the number of tokens.
func (c CountedTokenIDs) Len() int {
	return len(c.tokens)
}

// MinCount returns the count of the rarest token.
func (c CountedTokenIDs) MinCount() int {
	if len(c.tokens) == 0 {
		return 0
	}
	return c.tokens[0].count
}

// GetTokens returns all token ids, rarest first.
func (c CountedTokenIDs) GetTokens() []int {
	out := make([]int, len(c.tokens))
	for i, t := range c.tokens {
		out[i] = t.id
	}
	return out
}

// GetHead returns the ids of the n rarest tokens.
func (c CountedTokenIDs) GetHead(n int) []int {
	return c.GetTokens()[:min(n, len(c.tokens))]
}

// GetTail returns the ids of all but the n rarest tokens.
func (c CountedTokenIDs) GetTail(n int) []int {
	return c.GetTokens()[min(n, len(c.tokens)):]
}

// GetNumLookupTokens suggests how many of the rarest tokens should be
// used for an index lookup. The lookup accepts when the expected number
// of rows is below limit; every additional token multiplies the limit
// by fac. Returns -1 when the tokens are unsuitable for an index lookup.
// Tokens without statistics count as frequent.
func (c CountedTokenIDs) GetNumLookupTokens(limit, fac float64) int {
	n := len(c.tokens)
	if n == 0 {
		return -1
	}
	minCount := effectiveCount(c.tokens[0].count)
	for i := range min(n, 3) {
		if float64(minCount) < limit {
			return i + 1
		}
		limit *= fac
	}
	return -1
}

// ExpectedForAllSearch estimates the number of places containing all
// tokens, assuming each further token divides the count by fac.
func (c CountedTokenIDs) ExpectedForAllSearch(fac float64) float64 {
	if len(c.tokens) == 0 {
		return 0
	}
	return float64(effectiveCount(c.tokens[0].count)) / math.Pow(fac, float64(len(c.tokens)-1))
}

func tokenIDs(tokens []*query.Token) []int {
	seen := make(map[int]struct{}, len(tokens))
	out := make([]int, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t.ID]; !ok {
			seen[t.ID] = struct{}{}
			out = append(out, t.ID)
		}
	}
	return out
}

func lookupByNames(nameTokens, addrTokens []int) []core.FieldLookup {
	lookups := []core.FieldLookup{{Column: core.ColumnName, Tokens: nameTokens, LookupType: core.LookupAll}}
	if len(addrTokens) > 0 {
		lookups = append(lookups, core.FieldLookup{Column: core.ColumnAddress, Tokens: addrTokens, LookupType: core.Restrict})
	}
	return lookups
}

func lookupByAnyName(nameTokens, addrRestrict, addrLookup []int) []core.FieldLookup {
	lookups := []core.FieldLookup{{Column: core.ColumnName, Tokens: nameTokens, LookupType: core.LookupAny}}
	if len(addrRestrict) > 0 {
		lookups = append(lookups, core.FieldLookup{Column: core.ColumnAddress, Tokens: addrRestrict, LookupType: core.Restrict})
	}
	if len(addrLookup) > 0 {
		lookups = append(lookups, core.FieldLookup{Column: core.ColumnAddress, Tokens: addrLookup, LookupType: core.LookupAll})
	}
	return lookups
}

func lookupByAddr(nameTokens, addrTokens []int) []core.FieldLookup {
	return []core.FieldLookup{
		{Column: core.ColumnName, Tokens: nameTokens, LookupType: core.Restrict},
		{Column: core.ColumnAddress, Tokens: addrTokens, LookupType: core.LookupAll},
	}
}
