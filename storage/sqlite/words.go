package sqlite

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/jmoiron/sqlx"

	"github.com/poiesic/placefinder/core"
	"github.com/poiesic/placefinder/storage"
)

// pageSize bounds the rows read per query when iterating whole tables.
const pageSize = 1000

type wordRecord struct {
	ID        int    `db:"word_id"`
	WordToken string `db:"word_token"`
	Type      string `db:"type"`
	Word      string `db:"word"`
	Info      string `db:"info"`
	Count     int    `db:"count"`
	AddrCount int    `db:"addr_count"`
}

func (w *wordRecord) toCore() *core.WordRow {
	row := &core.WordRow{
		ID:        w.ID,
		WordToken: w.WordToken,
		Word:      w.Word,
		Info:      w.Info,
		Count:     w.Count,
		AddrCount: w.AddrCount,
	}
	if w.Type != "" {
		row.Type = core.WordType(w.Type[0])
	}
	return row
}

const wordColumns = `word_id, word_token, type, word, info, count, addr_count`

// FindTokens returns the word rows for the given lookup strings.
func (s *Store) FindTokens(ctx context.Context, lookups []string) ([]*core.WordRow, error) {
	if len(lookups) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(
		`SELECT `+wordColumns+` FROM word WHERE word_token IN (?) AND type != ? ORDER BY word_id`,
		lookups, string(rune(core.WordPostcode)))
	if err != nil {
		return nil, err
	}
	var records []wordRecord
	if err := sqlx.SelectContext(ctx, s.conn(ctx), &records, query, args...); err != nil {
		return nil, fmt.Errorf("finding tokens: %w", err)
	}
	result := make([]*core.WordRow, len(records))
	for i := range records {
		result[i] = records[i].toCore()
	}
	return result, nil
}

// GetOrCreateWords returns the stored rows for the given rows, creating
// the missing ones.
func (s *Store) GetOrCreateWords(ctx context.Context, rows ...*core.WordRow) ([]*core.WordRow, error) {
	result := make([]*core.WordRow, len(rows))
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		insert, err := tx.PreparexContext(ctx,
			`INSERT OR IGNORE INTO word (word_token, type, word, info) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer insert.Close()
		get, err := tx.PreparexContext(ctx,
			`SELECT `+wordColumns+` FROM word WHERE word_token = ? AND type = ? AND word = ?`)
		if err != nil {
			return err
		}
		defer get.Close()

		for i, row := range rows {
			if row.WordToken == "" {
				return fmt.Errorf("%w: word row without lookup string", storage.ErrInvalidQuery)
			}
			wtype := string(rune(row.Type))
			if _, err := insert.ExecContext(ctx, row.WordToken, wtype, row.Word, row.Info); err != nil {
				return err
			}
			var rec wordRecord
			if err := get.GetContext(ctx, &rec, row.WordToken, wtype, row.Word); err != nil {
				return err
			}
			result[i] = rec.toCore()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateWordCounts replaces the counters of the given words.
func (s *Store) UpdateWordCounts(ctx context.Context, counts map[int]storage.WordCount) error {
	ids := slices.Sorted(maps.Keys(counts))
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, `UPDATE word SET count = ?, addr_count = ? WHERE word_id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, id := range ids {
			c := counts[id]
			if _, err := stmt.ExecContext(ctx, c.Count, c.AddrCount, id); err != nil {
				return fmt.Errorf("updating word counts: %w", err)
			}
		}
		return nil
	})
}

// ForEachWord calls fn for every stored word row.
func (s *Store) ForEachWord(ctx context.Context, fn func(*core.WordRow) error) error {
	last := 0
	for {
		var records []wordRecord
		err := sqlx.SelectContext(ctx, s.conn(ctx), &records,
			`SELECT `+wordColumns+` FROM word WHERE word_id > ? ORDER BY word_id LIMIT ?`, last, pageSize)
		if err != nil {
			return err
		}
		for i := range records {
			if err := fn(records[i].toCore()); err != nil {
				return err
			}
		}
		if len(records) < pageSize {
			return nil
		}
		last = records[len(records)-1].ID
	}
}
