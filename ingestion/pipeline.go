package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"runtime"
	"slices"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/placefinder/config"
	"github.com/poiesic/placefinder/core"
	"github.com/poiesic/placefinder/normalize"
	"github.com/poiesic/placefinder/storage"
)

// DefaultBatchSize is the number of places stored per transaction.
const DefaultBatchSize = 500

// Stats summarizes an import.
type Stats struct {
	Places    int // places stored
	Postcodes int // postcode areas stored
	Skipped   int // places rejected by validation
	Words     int // distinct word rows looked up or created
}

func (s *Stats) add(o *Stats) {
	s.Places += o.Places
	s.Postcodes += o.Postcodes
	s.Skipped += o.Skipped
	s.Words += o.Words
}

// Pipeline orchestrates the import of places into the search index.
type Pipeline struct {
	store     storage.Store
	builder   wordBuilder
	pool      *ants.Pool
	proc      processor
	batchSize int
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for word derivation.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		// Release old pool
		if p.pool != nil {
			p.pool.Release()
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithBatchSize sets the number of places written per transaction.
// Default is DefaultBatchSize.
func WithBatchSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = DefaultBatchSize
		}
		p.batchSize = size
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger.With("component", "ingestion")
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(store storage.Store, norm *normalize.Normalizer, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if norm == nil {
		return nil, ErrNormalizerRequired
	}

	// Default pool size
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		store:     store,
		builder:   wordBuilder{norm: norm},
		pool:      pool,
		batchSize: DefaultBatchSize,
		logger:    slog.Default().With("component", "ingestion"),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	// Create the processor after options are applied (so it gets the final pool)
	proc, err := newPlaceProcessor(store, norm, p.pool, p.logger)
	if err != nil {
		p.Release()
		return nil, err
	}
	p.proc = proc

	return p, nil
}

// Ingest validates and stores places. Invalid places are logged and
// skipped. Places are written in batches; a failing batch aborts the
// import, earlier batches stay stored.
func (p *Pipeline) Ingest(ctx context.Context, places ...*core.Place) (*Stats, error) {
	total := &Stats{}
	for batch := range slices.Chunk(places, p.batchSize) {
		stats, err := p.proc.process(ctx, batch)
		if err != nil {
			return total, err
		}
		total.add(stats)
		p.logger.Debug("stored batch", "places", stats.Places, "postcodes", stats.Postcodes, "skipped", stats.Skipped)
	}
	return total, nil
}

// IngestSpecialPhrases adds the special phrases to the word index.
func (p *Pipeline) IngestSpecialPhrases(ctx context.Context, phrases []config.SpecialPhrase) (int, error) {
	rows := make([]*core.WordRow, 0, len(phrases))
	for _, sp := range phrases {
		row, err := p.builder.specialRow(sp)
		if err != nil {
			return 0, err
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if _, err := p.store.GetOrCreateWords(ctx, rows...); err != nil {
		return 0, fmt.Errorf("storing special phrases: %w", err)
	}
	p.logger.Info("special phrases imported", "count", len(rows))
	return len(rows), nil
}

// IngestCountries adds the configured country names to the word index.
func (p *Pipeline) IngestCountries(ctx context.Context, countries map[string]config.CountrySettings) (int, error) {
	var rows []*core.WordRow
	for _, cc := range slices.Sorted(maps.Keys(countries)) {
		if err := core.ValidateCountryCode(cc); err != nil {
			return 0, err
		}
		rows = append(rows, p.builder.countryRows(cc, countries[cc].Names)...)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if _, err := p.store.GetOrCreateWords(ctx, rows...); err != nil {
		return 0, fmt.Errorf("storing country names: %w", err)
	}
	p.logger.Info("country names imported", "countries", len(countries), "words", len(rows))
	return len(rows), nil
}

// Release releases resources including the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
