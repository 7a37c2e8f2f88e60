package badger

import (
	"context"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/placefinder/storage"
)

// GetProperty returns the value of a database property.
func (s *Store) GetProperty(ctx context.Context, name string) (string, error) {
	var value string
	err := s.backend.WithTx(ctx, func(tx *badger.Txn) error {
		v, ok, err := readValue(tx, makePropertyKey(name), func(val []byte) (string, error) {
			return string(val), nil
		})
		if err != nil {
			return err
		}
		if !ok {
			return storage.ErrNotFound
		}
		value = v
		return nil
	}, false)
	return value, err
}

// SetProperty sets the value of a database property.
func (s *Store) SetProperty(ctx context.Context, name, value string) error {
	return s.backend.WithTx(ctx, func(tx *badger.Txn) error {
		return tx.Set(makePropertyKey(name), []byte(value))
	}, true)
}
