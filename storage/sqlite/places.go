package sqlite

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/poiesic/placefinder/core"
	"github.com/poiesic/placefinder/storage"
)

// SQLite integers are signed; place IDs are stored bit for bit.
func dbID(id core.ID) int64 { return int64(id) }

func colNumber(c core.Column) int {
	if c == core.ColumnAddress {
		return 1
	}
	return 0
}

// AddPlaces stores places together with their search_name rows.
func (s *Store) AddPlaces(ctx context.Context, places ...*core.Place) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		upsert, err := tx.PreparexContext(ctx, `INSERT OR REPLACE INTO placex
			(place_id, class, type, country_code, rank_address, parent_place_id, housenumber, data)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer upsert.Close()
		unindex, err := tx.PreparexContext(ctx, `DELETE FROM search_name WHERE place_id = ?`)
		if err != nil {
			return err
		}
		defer unindex.Close()
		index, err := tx.PreparexContext(ctx, `INSERT OR IGNORE INTO search_name (col, token, place_id) VALUES (?, ?, ?)`)
		if err != nil {
			return err
		}
		defer index.Close()

		for _, p := range places {
			if p.ID == 0 {
				p.ID = core.IDFromContent(p.Ref())
			}
			id := dbID(p.ID)
			_, err := upsert.ExecContext(ctx, id, p.Class, p.Type, p.CountryCode, p.RankAddress,
				dbID(p.ParentID), strings.ToLower(p.Housenumber), storage.MarshalPlace(p))
			if err != nil {
				return fmt.Errorf("storing place %s: %w", p.Ref(), err)
			}
			if _, err := unindex.ExecContext(ctx, id); err != nil {
				return err
			}
			for _, col := range []core.Column{core.ColumnName, core.ColumnAddress} {
				for _, t := range p.Vector(col) {
					if _, err := index.ExecContext(ctx, colNumber(col), t, id); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
}

// selectPlaces decodes the data column of every row returned by query.
func (s *Store) selectPlaces(ctx context.Context, query string, args ...any) ([]*core.Place, error) {
	var blobs [][]byte
	if err := sqlx.SelectContext(ctx, s.conn(ctx), &blobs, query, args...); err != nil {
		return nil, err
	}
	places := make([]*core.Place, 0, len(blobs))
	for _, b := range blobs {
		p, err := storage.UnmarshalPlace(b)
		if err != nil {
			return nil, err
		}
		places = append(places, p)
	}
	return places, nil
}

// selectIn runs a query with a single IN (?) list.
func (s *Store) selectIn(ctx context.Context, query string, args ...any) ([]*core.Place, error) {
	q, expanded, err := sqlx.In(query, args...)
	if err != nil {
		return nil, err
	}
	return s.selectPlaces(ctx, s.db.Rebind(q), expanded...)
}

// GetPlaces retrieves places by ID, skipping unknown IDs.
func (s *Store) GetPlaces(ctx context.Context, ids ...core.ID) ([]*core.Place, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	dbIDs := make([]int64, len(ids))
	for i, id := range ids {
		dbIDs[i] = dbID(id)
	}
	return s.selectIn(ctx, `SELECT data FROM placex WHERE place_id IN (?)`, dbIDs)
}

// indexQuery translates the index-driving lookups into one compound
// select over search_name. It returns false when no lookup can use the
// index.
func indexQuery(lookups []core.FieldLookup) (string, []any, bool) {
	var (
		parts []string
		args  []any
	)
	for _, l := range lookups {
		if len(l.Tokens) == 0 || (l.LookupType != core.LookupAll && l.LookupType != core.LookupAny) {
			continue
		}
		marks := strings.TrimSuffix(strings.Repeat("?,", len(l.Tokens)), ",")
		part := fmt.Sprintf(`SELECT place_id FROM search_name WHERE col = ? AND token IN (%s)`, marks)
		args = append(args, colNumber(l.Column))
		for _, t := range l.Tokens {
			args = append(args, t)
		}
		if l.LookupType == core.LookupAll {
			part += ` GROUP BY place_id HAVING COUNT(*) = ?`
			args = append(args, len(uniqueTokens(l.Tokens)))
		}
		parts = append(parts, part)
	}
	if len(parts) == 0 {
		return "", nil, false
	}
	return strings.Join(parts, " INTERSECT ") + ` ORDER BY 1`, args, true
}

func uniqueTokens(tokens []int) map[int]struct{} {
	set := make(map[int]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
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
	collect := func(places []*core.Place) bool {
		for _, p := range places {
			if matchesLookups(p, lookups) {
				result = append(result, p)
				if len(result) >= limit {
					return true
				}
			}
		}
		return false
	}

	query, args, indexed := indexQuery(lookups)
	if !indexed {
		s.logger.Debug("place lookup without index", "lookups", len(lookups))
		err := s.forEachPage(ctx, func(page []*core.Place) (bool, error) {
			return collect(page), nil
		})
		return result, err
	}

	var ids []int64
	if err := sqlx.SelectContext(ctx, s.conn(ctx), &ids, query, args...); err != nil {
		return nil, fmt.Errorf("looking up places: %w", err)
	}
	for start := 0; start < len(ids); start += pageSize {
		page, err := s.selectIn(ctx, `SELECT data FROM placex WHERE place_id IN (?) ORDER BY place_id`,
			ids[start:min(start+pageSize, len(ids))])
		if err != nil {
			return nil, err
		}
		if collect(page) {
			break
		}
	}
	return result, nil
}

// FindHousenumbers returns the address points with the given
// housenumbers below the given parents.
func (s *Store) FindHousenumbers(ctx context.Context, parentIDs []core.ID, housenumbers []string) ([]*core.Place, error) {
	if len(parentIDs) == 0 || len(housenumbers) == 0 {
		return nil, nil
	}
	parents := make([]int64, len(parentIDs))
	for i, id := range parentIDs {
		parents[i] = dbID(id)
	}
	hnrs := make([]string, len(housenumbers))
	for i, h := range housenumbers {
		hnrs[i] = strings.ToLower(h)
	}
	return s.selectIn(ctx,
		`SELECT data FROM placex WHERE parent_place_id IN (?) AND housenumber IN (?) ORDER BY place_id`,
		parents, hnrs)
}

// FindByCategory returns up to limit places of the given categories.
func (s *Store) FindByCategory(ctx context.Context, categories []core.Category, limit int) ([]*core.Place, error) {
	var result []*core.Place
	for _, c := range categories {
		remaining := limit - len(result)
		if limit > 0 && remaining <= 0 {
			break
		}
		if limit <= 0 {
			remaining = -1
		}
		places, err := s.selectPlaces(ctx,
			`SELECT data FROM placex WHERE class = ? AND type = ? ORDER BY place_id LIMIT ?`,
			c.Class, c.Type, remaining)
		if err != nil {
			return nil, err
		}
		result = append(result, places...)
	}
	return result, nil
}

// FindCountries returns the country places for the given codes.
func (s *Store) FindCountries(ctx context.Context, codes []string) ([]*core.Place, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	return s.selectIn(ctx,
		`SELECT data FROM placex WHERE rank_address = 4 AND country_code IN (?) ORDER BY place_id`, codes)
}

// forEachPage reads all places in place_id order, one page at a time,
// until fn returns true.
func (s *Store) forEachPage(ctx context.Context, fn func([]*core.Place) (bool, error)) error {
	lower := int64(math.MinInt64)
	for {
		var rows []struct {
			ID   int64  `db:"place_id"`
			Data []byte `db:"data"`
		}
		err := sqlx.SelectContext(ctx, s.conn(ctx), &rows,
			`SELECT place_id, data FROM placex WHERE place_id >= ? ORDER BY place_id LIMIT ?`, lower, pageSize)
		if err != nil {
			return err
		}
		page := make([]*core.Place, len(rows))
		for i, r := range rows {
			if page[i], err = storage.UnmarshalPlace(r.Data); err != nil {
				return err
			}
		}
		stop, err := fn(page)
		if err != nil || stop || len(rows) < pageSize {
			return err
		}
		last := rows[len(rows)-1].ID
		if last == math.MaxInt64 {
			return nil
		}
		lower = last + 1
	}
}

// ForEachPlace calls fn for every stored place.
func (s *Store) ForEachPlace(ctx context.Context, fn func(*core.Place) error) error {
	return s.forEachPage(ctx, func(page []*core.Place) (bool, error) {
		for _, p := range page {
			if err := fn(p); err != nil {
				return true, err
			}
		}
		return false, nil
	})
}
