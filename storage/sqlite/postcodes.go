package sqlite

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/poiesic/placefinder/core"
	"github.com/poiesic/placefinder/storage"
)

// AddPostcodes stores postcode areas, replacing areas with the same ID.
func (s *Store) AddPostcodes(ctx context.Context, postcodes ...*core.Postcode) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx,
			`INSERT OR REPLACE INTO location_postcode (id, postcode, data) VALUES (?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, pc := range postcodes {
			if pc.ID == 0 {
				pc.ID = core.IDFromContent(pc.CountryCode + ":" + pc.Postcode)
			}
			_, err := stmt.ExecContext(ctx, dbID(pc.ID), strings.ToUpper(pc.Postcode), storage.MarshalPostcode(pc))
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// FindPostcodes returns the areas of the given postcodes. Matching
// ignores case.
func (s *Store) FindPostcodes(ctx context.Context, postcodes []string) ([]*core.Postcode, error) {
	if len(postcodes) == 0 {
		return nil, nil
	}
	upper := make([]string, len(postcodes))
	for i, pc := range postcodes {
		upper[i] = strings.ToUpper(pc)
	}
	query, args, err := sqlx.In(`SELECT data FROM location_postcode WHERE postcode IN (?) ORDER BY id`, upper)
	if err != nil {
		return nil, err
	}
	var blobs [][]byte
	if err := sqlx.SelectContext(ctx, s.conn(ctx), &blobs, query, args...); err != nil {
		return nil, err
	}
	result := make([]*core.Postcode, 0, len(blobs))
	for _, b := range blobs {
		pc, err := storage.UnmarshalPostcode(b)
		if err != nil {
			return nil, err
		}
		result = append(result, pc)
	}
	return result, nil
}
