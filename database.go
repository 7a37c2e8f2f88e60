// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package placefinder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/poiesic/placefinder/analysis"
	"github.com/poiesic/placefinder/config"
	"github.com/poiesic/placefinder/core"
	"github.com/poiesic/placefinder/ingestion"
	"github.com/poiesic/placefinder/normalize"
	"github.com/poiesic/placefinder/query"
	"github.com/poiesic/placefinder/refresh"
	"github.com/poiesic/placefinder/search"
	"github.com/poiesic/placefinder/storage"
	"github.com/poiesic/placefinder/storage/badger"
	"github.com/poiesic/placefinder/storage/sqlite"
)

// PropertyFingerprint names the database property holding the fingerprint
// of the normalization rules the word index was built with.
const PropertyFingerprint = "normalization_fingerprint"

// sqliteFile is the name of the database file inside the database
// directory when the sqlite backend is used.
const sqliteFile = "placefinder.sqlite"

var (
	// ErrConfigMismatch is returned when a database was built with other
	// normalization rules than the configured ones.
	ErrConfigMismatch = errors.New("database was built with different normalization rules")

	// ErrUnknownBackend is returned for an unsupported storage backend.
	ErrUnknownBackend = errors.New("unknown storage backend")
)

// Database ties a store to the query pipeline configured for it.
type Database struct {
	cfg      *config.Config
	store    storage.Store
	norm     *normalize.Normalizer
	lookup   *analysis.CachedLookup
	analyzer *analysis.Analyzer
	searcher *search.Searcher
	logger   *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	cfg      *config.Config
	logger   *slog.Logger
	inMemory bool
}

// WithConfig sets the configuration. Default is config.Default().
func WithConfig(cfg *config.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.cfg = cfg
	}
}

// WithLogger sets a custom logger passed to every component.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// InMemory keeps the database in memory; the path is ignored.
func InMemory() DatabaseOption {
	return func(o *databaseOptions) {
		o.inMemory = true
	}
}

// Open opens or creates the database in directory path.
func Open(path string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	cfg := options.cfg
	if cfg == nil {
		var err error
		if cfg, err = config.Default(); err != nil {
			return nil, err
		}
	}

	store, err := openStore(path, cfg.Settings.Storage.Backend, options)
	if err != nil {
		return nil, err
	}

	db, err := newDatabase(store, cfg, options.logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	return db, nil
}

func openStore(path, backend string, options *databaseOptions) (storage.Store, error) {
	switch backend {
	case "", "badger":
		if options.inMemory {
			return badger.NewMemoryStore(badger.WithLogger(options.logger))
		}
		return badger.NewStore(path, badger.WithLogger(options.logger))
	case "sqlite":
		if options.inMemory {
			return sqlite.NewMemoryStore(sqlite.WithLogger(options.logger))
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, err
		}
		return sqlite.NewStore(filepath.Join(path, sqliteFile), sqlite.WithLogger(options.logger))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

func newDatabase(store storage.Store, cfg *config.Config, logger *slog.Logger) (*Database, error) {
	if err := checkFingerprint(store, cfg); err != nil {
		return nil, err
	}

	norm, err := normalize.New(cfg.Rules)
	if err != nil {
		return nil, err
	}
	lookup, err := analysis.NewCachedLookup(store, cfg.Settings.Cache.WordCacheSize)
	if err != nil {
		return nil, err
	}
	analyzer, err := analysis.NewAnalyzer(norm, lookup, cfg, analysis.WithLogger(logger))
	if err != nil {
		lookup.Close()
		return nil, err
	}
	searcher, err := search.NewSearcher(analyzer, store, cfg, search.WithLogger(logger))
	if err != nil {
		lookup.Close()
		return nil, err
	}

	return &Database{
		cfg:      cfg,
		store:    store,
		norm:     norm,
		lookup:   lookup,
		analyzer: analyzer,
		searcher: searcher,
		logger:   logger,
	}, nil
}

// checkFingerprint records the rule fingerprint in a new database and
// compares it in an existing one.
func checkFingerprint(store storage.Store, cfg *config.Config) error {
	ctx := context.Background()
	want := strconv.FormatUint(cfg.Fingerprint(), 16)
	got, err := store.GetProperty(ctx, PropertyFingerprint)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return store.SetProperty(ctx, PropertyFingerprint, want)
	case err != nil:
		return err
	case got != want:
		return fmt.Errorf("%w: stored %s, configured %s", ErrConfigMismatch, got, want)
	}
	return nil
}

// Close releases the cache and closes the store.
func (db *Database) Close() error {
	db.lookup.Close()
	if err := db.store.Close(); err != nil {
		db.logger.Error("error closing storage", "err", err)
		return err
	}
	return nil
}

// Config returns the configuration the database was opened with.
func (db *Database) Config() *config.Config {
	return db.cfg
}

// Store returns the underlying store.
func (db *Database) Store() storage.Store {
	return db.store
}

// Searcher returns the searcher of the database.
func (db *Database) Searcher() *search.Searcher {
	return db.searcher
}

// Phrases turns free text into a single unstructured phrase. Commas in the
// text separate phrases during analysis.
func Phrases(text string) []query.Phrase {
	return []query.Phrase{{Type: query.PhraseAny, Text: text}}
}

// Analyze builds the token graph of a free-text query.
func (db *Database) Analyze(ctx context.Context, text string) (*query.QueryStruct, error) {
	if err := core.ValidateQueryText(text); err != nil {
		return nil, err
	}
	return db.analyzer.Analyze(ctx, Phrases(text))
}

// Search runs a free-text query. A nil details uses the defaults.
func (db *Database) Search(ctx context.Context, text string, details *core.SearchDetails) ([]*search.Result, error) {
	if details == nil {
		details = core.DefaultSearchDetails()
	}
	return db.searcher.Search(ctx, Phrases(text), details)
}

// SearchStructured runs a query made of typed phrases.
func (db *Database) SearchStructured(ctx context.Context, phrases []query.Phrase, details *core.SearchDetails) ([]*search.Result, error) {
	if details == nil {
		details = core.DefaultSearchDetails()
	}
	return db.searcher.Search(ctx, phrases, details)
}

// NewIngestionPipeline creates an import pipeline writing to the database.
func (db *Database) NewIngestionPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	opts = append([]ingestion.Option{ingestion.WithLogger(db.logger)}, opts...)
	return ingestion.NewPipeline(db.store, db.norm, opts...)
}

// NewRefresher creates a word count refresher for the database.
func (db *Database) NewRefresher(cfg *refresh.Config, progress io.Writer) (*refresh.Refresher, error) {
	return refresh.NewRefresher(db.store, cfg, progress, refresh.WithLogger(db.logger))
}

// ClearCache drops all cached word lookups, for example after an import
// or a refresh into an open database.
func (db *Database) ClearCache() {
	db.lookup.Clear()
}
