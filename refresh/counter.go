package refresh

import (
	"slices"

	"github.com/poiesic/placefinder/core"
	"github.com/poiesic/placefinder/storage"
)

// tokenCounts accumulates per token how many places use it in their name
// and in their address.
type tokenCounts map[int]storage.WordCount

func (c tokenCounts) addPlace(p *core.Place) {
	for _, t := range distinct(p.NameVector) {
		wc := c[t]
		wc.Count++
		c[t] = wc
	}
	for _, t := range distinct(p.AddressVector) {
		wc := c[t]
		wc.AddrCount++
		c[t] = wc
	}
}

func (c tokenCounts) merge(o tokenCounts) {
	for t, n := range o {
		wc := c[t]
		wc.Count += n.Count
		wc.AddrCount += n.AddrCount
		c[t] = wc
	}
}

func distinct(vector []int) []int {
	sorted := slices.Clone(vector)
	slices.Sort(sorted)
	return slices.Compact(sorted)
}
