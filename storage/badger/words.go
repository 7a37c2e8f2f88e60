package badger

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/placefinder/core"
	"github.com/poiesic/placefinder/storage"
)

// wordCountBatch bounds the number of rows rewritten per transaction.
const wordCountBatch = 1000

func readWord(tx *badger.Txn, key []byte) (*core.WordRow, bool, error) {
	return readValue(tx, key, storage.UnmarshalWordRow)
}

// FindTokens returns the word rows for the given lookup strings.
func (s *Store) FindTokens(ctx context.Context, lookups []string) ([]*core.WordRow, error) {
	var result []*core.WordRow
	seen := make(map[string]struct{}, len(lookups))
	err := s.backend.WithTx(ctx, func(tx *badger.Txn) error {
		for _, lookup := range lookups {
			if _, ok := seen[lookup]; ok {
				continue
			}
			seen[lookup] = struct{}{}
			err := scanValues(ctx, tx, makeWordLookupPrefix(lookup), func(val []byte) error {
				row, err := storage.UnmarshalWordRow(val)
				if err != nil {
					return err
				}
				if row.Type != core.WordPostcode {
					result = append(result, row)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	return result, err
}

// GetOrCreateWords returns the stored rows for the given rows, creating
// the missing ones.
func (s *Store) GetOrCreateWords(ctx context.Context, rows ...*core.WordRow) ([]*core.WordRow, error) {
	s.wordMu.Lock()
	defer s.wordMu.Unlock()

	result := make([]*core.WordRow, len(rows))
	err := s.backend.WithTx(ctx, func(tx *badger.Txn) error {
		created := make(map[string]*core.WordRow)
		for i, row := range rows {
			if row.WordToken == "" {
				return fmt.Errorf("%w: word row without lookup string", storage.ErrInvalidQuery)
			}
			if existing, ok := created[row.Key()]; ok {
				result[i] = existing
				continue
			}
			key := makeWordKey(row)
			existing, ok, err := readWord(tx, key)
			if err != nil {
				return err
			}
			if ok {
				result[i] = existing
				continue
			}

			next, err := s.wordSeq.Next()
			if err != nil {
				return err
			}
			stored := *row
			stored.ID = int(next) + 1
			if err := tx.Set(key, storage.MarshalWordRow(&stored)); err != nil {
				return err
			}
			if err := tx.Set(makeWordIDKey(stored.ID), key); err != nil {
				return err
			}
			created[row.Key()] = &stored
			result[i] = &stored
		}
		return nil
	}, true)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateWordCounts replaces the counters of the given words.
func (s *Store) UpdateWordCounts(ctx context.Context, counts map[int]storage.WordCount) error {
	ids := slices.Sorted(maps.Keys(counts))
	for chunk := range slices.Chunk(ids, wordCountBatch) {
		err := s.backend.WithTx(ctx, func(tx *badger.Txn) error {
			for _, id := range chunk {
				item, err := tx.Get(makeWordIDKey(id))
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				if err != nil {
					return err
				}
				key, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				row, ok, err := readWord(tx, key)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
				row.Count = counts[id].Count
				row.AddrCount = counts[id].AddrCount
				if err := tx.Set(key, storage.MarshalWordRow(row)); err != nil {
					return err
				}
			}
			return nil
		}, true)
		if err != nil {
			return fmt.Errorf("updating word counts: %w", err)
		}
	}
	return nil
}

// ForEachWord calls fn for every stored word row.
func (s *Store) ForEachWord(ctx context.Context, fn func(*core.WordRow) error) error {
	return s.backend.WithTx(ctx, func(tx *badger.Txn) error {
		return scanValues(ctx, tx, []byte(wordPrefix), func(val []byte) error {
			row, err := storage.UnmarshalWordRow(val)
			if err != nil {
				return err
			}
			return fn(row)
		})
	}, false)
}
