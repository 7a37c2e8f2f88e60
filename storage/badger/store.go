package badger

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/placefinder/storage"
)

// Store implements storage.Store on top of a single BadgerDB.
type Store struct {
	backend *Backend
	logger  *slog.Logger

	// serializes word creation so concurrent imports do not conflict
	wordMu  sync.Mutex
	wordSeq *badger.Sequence
}

var _ storage.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewStore opens or creates a database in the directory at path.
func NewStore(path string, opts ...Option) (storage.Store, error) {
	return openStore(path, false, opts...)
}

func openStore(path string, inMemory bool, opts ...Option) (*Store, error) {
	s := &Store{logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	backend, err := OpenBackend(path, inMemory, s.logger)
	if err != nil {
		return nil, err
	}
	seq, err := backend.GetSequence(wordIDSeq)
	if err != nil {
		backend.Close()
		return nil, err
	}
	s.backend = backend
	s.wordSeq = seq
	s.logger = s.logger.With("component", "store")
	return s, nil
}

// WithTransaction delegates to the backend.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.backend.WithTransaction(ctx, fn)
}

// Close releases the word sequence and closes the database.
func (s *Store) Close() error {
	if s.backend.IsClosed() {
		return nil
	}
	return errors.Join(s.wordSeq.Release(), s.backend.Close())
}
