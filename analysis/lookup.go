package analysis

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/poiesic/placefinder/core"
)

// WordLookup retrieves word index rows for a set of lookup strings.
// Implementations must not return postcode rows and must be safe for
// concurrent use.
type WordLookup interface {
	FindTokens(ctx context.Context, lookups []string) ([]*core.WordRow, error)
}

// CachedLookup memoizes word lookups per lookup string, including
// negative results.
type CachedLookup struct {
	inner WordLookup
	cache *ristretto.Cache[string, []*core.WordRow]
}

var _ WordLookup = (*CachedLookup)(nil)

// NewCachedLookup wraps a lookup with a cache holding up to maxEntries lookup strings.
func NewCachedLookup(inner WordLookup, maxEntries int64) (*CachedLookup, error) {
	if inner == nil {
		return nil, ErrLookupRequired
	}
	if maxEntries <= 0 {
		return nil, fmt.Errorf("%w: cache size must be positive", ErrInvalidCacheSize)
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, []*core.WordRow]{
		NumCounters:        maxEntries * 10,
		MaxCost:            maxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &CachedLookup{inner: inner, cache: cache}, nil
}

// FindTokens returns cached rows and fetches the missing lookup strings in
// a single call to the wrapped lookup.
func (c *CachedLookup) FindTokens(ctx context.Context, lookups []string) ([]*core.WordRow, error) {
	var out []*core.WordRow
	var missing []string
	for _, l := range lookups {
		if rows, ok := c.cache.Get(l); ok {
			out = append(out, rows...)
		} else {
			missing = append(missing, l)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	rows, err := c.inner.FindTokens(ctx, missing)
	if err != nil {
		return nil, err
	}
	byToken := make(map[string][]*core.WordRow, len(missing))
	for _, row := range rows {
		byToken[row.WordToken] = append(byToken[row.WordToken], row)
	}
	for _, l := range missing {
		c.cache.Set(l, byToken[l], 1)
	}
	return append(out, rows...), nil
}

// Clear drops all cached entries. Call after the word index changed.
func (c *CachedLookup) Clear() {
	c.cache.Clear()
}

// Wait blocks until pending cache writes are visible.
func (c *CachedLookup) Wait() {
	c.cache.Wait()
}

// Close releases the cache.
func (c *CachedLookup) Close() {
	c.cache.Close()
}
