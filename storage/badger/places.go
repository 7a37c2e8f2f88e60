package badger

import (
	"context"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/placefinder/core"
	"github.com/poiesic/placefinder/storage"
)

func readPlace(tx *badger.Txn, id core.ID) (*core.Place, bool, error) {
	return readValue(tx, makePlaceKey(id), storage.UnmarshalPlace)
}

// placeIndexKeys returns every secondary index key of a place.
func placeIndexKeys(p *core.Place) [][]byte {
	var keys [][]byte
	for _, t := range p.NameVector {
		keys = append(keys, makeTokenKey(core.ColumnName, t, p.ID))
	}
	for _, t := range p.AddressVector {
		keys = append(keys, makeTokenKey(core.ColumnAddress, t, p.ID))
	}
	if p.Housenumber != "" && p.ParentID != 0 {
		keys = append(keys, makeHousenumberKey(p.ParentID, p.Housenumber, p.ID))
	}
	if p.Class != "" {
		keys = append(keys, makeCategoryKey(p.Category(), p.ID))
	}
	if p.RankAddress == 4 && p.CountryCode != "" {
		keys = append(keys, makeCountryKey(p.CountryCode, p.ID))
	}
	return keys
}

// AddPlaces stores places together with their index entries.
// Places without an ID get one derived from their reference.
func (s *Store) AddPlaces(ctx context.Context, places ...*core.Place) error {
	return s.backend.WithTx(ctx, func(tx *badger.Txn) error {
		for _, place := range places {
			if place.ID == 0 {
				place.ID = core.IDFromContent(place.Ref())
			}

			old, ok, err := readPlace(tx, place.ID)
			if err != nil {
				return err
			}
			if ok {
				for _, key := range placeIndexKeys(old) {
					if err := tx.Delete(key); err != nil {
						return err
					}
				}
			}

			if err := tx.Set(makePlaceKey(place.ID), storage.MarshalPlace(place)); err != nil {
				return err
			}
			for _, key := range placeIndexKeys(place) {
				if err := tx.Set(key, nil); err != nil {
					return err
				}
			}
		}
		return nil
	}, true)
}

// GetPlaces retrieves places by ID, skipping unknown IDs.
func (s *Store) GetPlaces(ctx context.Context, ids ...core.ID) ([]*core.Place, error) {
	var result []*core.Place
	err := s.backend.WithTx(ctx, func(tx *badger.Txn) error {
		var err error
		result, err = getPlaces(tx, ids)
		return err
	}, false)
	return result, err
}

func getPlaces(tx *badger.Txn, ids []core.ID) ([]*core.Place, error) {
	var result []*core.Place
	for _, id := range ids {
		place, ok, err := readPlace(tx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			result = append(result, place)
		}
	}
	return result, nil
}

// countPostings returns the number of index entries of a token.
func countPostings(ctx context.Context, tx *badger.Txn, col core.Column, token int) (int, error) {
	n := 0
	err := scanKeys(ctx, tx, makeTokenPrefix(col, token), func([]byte) error {
		n++
		return nil
	})
	return n, err
}

// postings returns the place IDs indexed for a token.
func postings(ctx context.Context, tx *badger.Txn, col core.Column, token int) ([]core.ID, error) {
	var ids []core.ID
	err := scanKeys(ctx, tx, makeTokenPrefix(col, token), func(key []byte) error {
		ids = append(ids, idSuffix(key))
		return nil
	})
	return ids, err
}

// candidateIDs picks the cheapest index lookup and returns its postings.
// It returns false when no lookup can use the index.
func candidateIDs(ctx context.Context, tx *badger.Txn, lookups []core.FieldLookup) ([]core.ID, bool, error) {
	var (
		best      []core.ID
		bestFound bool
	)
	for _, l := range lookups {
		if len(l.Tokens) == 0 {
			continue
		}
		var ids []core.ID
		switch l.LookupType {
		case core.LookupAll:
			// the rarest token bounds the result
			rarest, rarestCount := l.Tokens[0], -1
			for _, t := range l.Tokens {
				n, err := countPostings(ctx, tx, l.Column, t)
				if err != nil {
					return nil, false, err
				}
				if rarestCount < 0 || n < rarestCount {
					rarest, rarestCount = t, n
				}
			}
			var err error
			if ids, err = postings(ctx, tx, l.Column, rarest); err != nil {
				return nil, false, err
			}
		case core.LookupAny:
			seen := make(map[core.ID]struct{})
			for _, t := range l.Tokens {
				tids, err := postings(ctx, tx, l.Column, t)
				if err != nil {
					return nil, false, err
				}
				for _, id := range tids {
					if _, ok := seen[id]; !ok {
						seen[id] = struct{}{}
						ids = append(ids, id)
					}
				}
			}
		default:
			continue
		}
		if !bestFound || len(ids) < len(best) {
			best, bestFound = ids, true
		}
	}
	return best, bestFound, nil
}

func matchesLookups(p *core.Place, lookups []core.FieldLookup) bool {
	for _, l := range lookups {
		if !l.Matches(p.Vector(l.Column)) {
			return false
		}
	}
	return true
}

// LookupPlaces returns up to limit places satisfying every lookup.
func (s *Store) LookupPlaces(ctx context.Context, lookups []core.FieldLookup, limit int) ([]*core.Place, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}
	var result []*core.Place
	err := s.backend.WithTx(ctx, func(tx *badger.Txn) error {
		ids, indexed, err := candidateIDs(ctx, tx, lookups)
		if err != nil {
			return err
		}
		if !indexed {
			s.logger.Debug("place lookup without index", "lookups", len(lookups))
			return scanValues(ctx, tx, []byte(placePrefix), func(val []byte) error {
				p, err := storage.UnmarshalPlace(val)
				if err != nil {
					return err
				}
				if matchesLookups(p, lookups) {
					result = append(result, p)
				}
				if len(result) >= limit {
					return errStopScan
				}
				return nil
			})
		}

		slices.Sort(ids)
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, ok, err := readPlace(tx, id)
			if err != nil {
				return err
			}
			if ok && matchesLookups(p, lookups) {
				result = append(result, p)
				if len(result) >= limit {
					break
				}
			}
		}
		return nil
	}, false)
	return result, err
}

// collectPlaces loads the places whose IDs end the index keys below prefix.
func collectPlaces(ctx context.Context, tx *badger.Txn, prefix []byte, limit int, out []*core.Place) ([]*core.Place, error) {
	var ids []core.ID
	err := scanKeys(ctx, tx, prefix, func(key []byte) error {
		ids = append(ids, idSuffix(key))
		if limit > 0 && len(out)+len(ids) >= limit {
			return errStopScan
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	places, err := getPlaces(tx, ids)
	if err != nil {
		return nil, err
	}
	return append(out, places...), nil
}

// FindHousenumbers returns the address points with the given
// housenumbers below the given parents.
func (s *Store) FindHousenumbers(ctx context.Context, parentIDs []core.ID, housenumbers []string) ([]*core.Place, error) {
	var result []*core.Place
	err := s.backend.WithTx(ctx, func(tx *badger.Txn) error {
		for _, parent := range parentIDs {
			for _, hnr := range housenumbers {
				var err error
				result, err = collectPlaces(ctx, tx, makeHousenumberPrefix(parent, hnr), 0, result)
				if err != nil {
					return err
				}
			}
		}
		return nil
	}, false)
	return result, err
}

// FindByCategory returns up to limit places of the given categories.
func (s *Store) FindByCategory(ctx context.Context, categories []core.Category, limit int) ([]*core.Place, error) {
	var result []*core.Place
	err := s.backend.WithTx(ctx, func(tx *badger.Txn) error {
		for _, c := range categories {
			if limit > 0 && len(result) >= limit {
				break
			}
			var err error
			result, err = collectPlaces(ctx, tx, makeCategoryPrefix(c), limit, result)
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	return result, err
}

// FindCountries returns the country places for the given codes.
func (s *Store) FindCountries(ctx context.Context, codes []string) ([]*core.Place, error) {
	var result []*core.Place
	err := s.backend.WithTx(ctx, func(tx *badger.Txn) error {
		for _, cc := range codes {
			var err error
			result, err = collectPlaces(ctx, tx, makeCountryPrefix(cc), 0, result)
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	return result, err
}

// ForEachPlace calls fn for every stored place.
func (s *Store) ForEachPlace(ctx context.Context, fn func(*core.Place) error) error {
	return s.backend.WithTx(ctx, func(tx *badger.Txn) error {
		return scanValues(ctx, tx, []byte(placePrefix), func(val []byte) error {
			p, err := storage.UnmarshalPlace(val)
			if err != nil {
				return err
			}
			return fn(p)
		})
	}, false)
}
