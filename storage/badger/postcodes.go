package badger

import (
	"context"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/placefinder/core"
	"github.com/poiesic/placefinder/storage"
)

// AddPostcodes stores postcode areas, replacing areas with the same ID.
func (s *Store) AddPostcodes(ctx context.Context, postcodes ...*core.Postcode) error {
	return s.backend.WithTx(ctx, func(tx *badger.Txn) error {
		for _, pc := range postcodes {
			if pc.ID == 0 {
				pc.ID = core.IDFromContent(pc.CountryCode + ":" + pc.Postcode)
			}
			old, ok, err := readValue(tx, makePostcodeKey(pc.ID), storage.UnmarshalPostcode)
			if err != nil {
				return err
			}
			if ok {
				if err := tx.Delete(makePostcodeIndexKey(old.Postcode, old.ID)); err != nil {
					return err
				}
			}
			if err := tx.Set(makePostcodeKey(pc.ID), storage.MarshalPostcode(pc)); err != nil {
				return err
			}
			if err := tx.Set(makePostcodeIndexKey(pc.Postcode, pc.ID), nil); err != nil {
				return err
			}
		}
		return nil
	}, true)
}

// FindPostcodes returns the areas of the given postcodes. Matching
// ignores case.
func (s *Store) FindPostcodes(ctx context.Context, postcodes []string) ([]*core.Postcode, error) {
	var result []*core.Postcode
	err := s.backend.WithTx(ctx, func(tx *badger.Txn) error {
		for _, code := range postcodes {
			var ids []core.ID
			err := scanKeys(ctx, tx, makePostcodeIndexPrefix(code), func(key []byte) error {
				ids = append(ids, idSuffix(key))
				return nil
			})
			if err != nil {
				return err
			}
			for _, id := range ids {
				pc, ok, err := readValue(tx, makePostcodeKey(id), storage.UnmarshalPostcode)
				if err != nil {
					return err
				}
				if ok {
					result = append(result, pc)
				}
			}
		}
		return nil
	}, false)
	return result, err
}
