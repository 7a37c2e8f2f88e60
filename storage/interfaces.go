package storage

import (
	"context"

	"github.com/poiesic/placefinder/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	// The context passed to fn may contain transaction state.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// WordCount holds the occurrence counters of a word index entry.
type WordCount struct {
	Count     int
	AddrCount int
}

// WordRepository provides operations on the word index.
type WordRepository interface {
	Repository
	// FindTokens returns every word row whose lookup string is one of lookups.
	// Postcode rows are never returned: postcodes are recognized by pattern.
	FindTokens(ctx context.Context, lookups []string) ([]*core.WordRow, error)

	// GetOrCreateWords returns the stored rows matching the given rows by
	// Key(). Rows that do not exist yet are created with IDs from a sequence.
	// The result has the same order as the input.
	GetOrCreateWords(ctx context.Context, rows ...*core.WordRow) ([]*core.WordRow, error)

	// UpdateWordCounts replaces the counters of the words with the given IDs.
	// Unknown IDs are ignored.
	UpdateWordCounts(ctx context.Context, counts map[int]WordCount) error

	// ForEachWord calls fn for every row of the word index.
	ForEachWord(ctx context.Context, fn func(*core.WordRow) error) error
}

// PlaceRepository provides operations on places.
type PlaceRepository interface {
	Repository
	// AddPlaces stores places and their indices, replacing existing places
	// with the same ID.
	AddPlaces(ctx context.Context, places ...*core.Place) error

	// GetPlaces retrieves places by ID.
	// Returns only the places that exist (no error for missing places).
	GetPlaces(ctx context.Context, ids ...core.ID) ([]*core.Place, error)

	// LookupPlaces returns up to limit places satisfying every lookup.
	// LookupAll and LookupAny lookups may drive an index scan, Restrict
	// lookups only filter. Without any index lookup all places are scanned.
	LookupPlaces(ctx context.Context, lookups []core.FieldLookup, limit int) ([]*core.Place, error)

	// FindHousenumbers returns the address points below the given parents
	// whose housenumber is one of housenumbers.
	FindHousenumbers(ctx context.Context, parentIDs []core.ID, housenumbers []string) ([]*core.Place, error)

	// FindByCategory returns up to limit places of the given categories.
	FindByCategory(ctx context.Context, categories []core.Category, limit int) ([]*core.Place, error)

	// FindCountries returns the country places for the given country codes.
	FindCountries(ctx context.Context, codes []string) ([]*core.Place, error)

	// ForEachPlace calls fn for every stored place. Iteration stops at the
	// first error returned by fn.
	ForEachPlace(ctx context.Context, fn func(*core.Place) error) error
}

// PostcodeRepository provides operations on postcode areas.
type PostcodeRepository interface {
	Repository
	// AddPostcodes stores postcode areas, replacing existing ones with the same ID.
	AddPostcodes(ctx context.Context, postcodes ...*core.Postcode) error

	// FindPostcodes returns the postcode areas whose normalized postcode is
	// one of postcodes.
	FindPostcodes(ctx context.Context, postcodes []string) ([]*core.Postcode, error)
}

// PropertyRepository stores database-wide properties such as the
// fingerprint of the tokenizer configuration used at import time.
type PropertyRepository interface {
	Repository
	// GetProperty returns the value of a property.
	// Returns ErrNotFound if the property was never set.
	GetProperty(ctx context.Context, name string) (string, error)

	// SetProperty sets the value of a property.
	SetProperty(ctx context.Context, name, value string) error
}

// SearchStore is the read side needed to execute searches.
type SearchStore interface {
	PlaceRepository
	PostcodeRepository
}

// Store combines every repository of a geocoding database.
type Store interface {
	WordRepository
	PlaceRepository
	PostcodeRepository
	PropertyRepository
}
