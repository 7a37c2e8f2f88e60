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


package refresh

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"runtime"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/poiesic/placefinder/core"
	"github.com/poiesic/placefinder/storage"
)

// PropertyLastRefresh names the database property holding the time of the
// last completed refresh.
const PropertyLastRefresh = "word_counts_refreshed"

// Config holds configuration for the refresh operation.
type Config struct {
	// BatchSize is the number of places per batch and of words per update
	BatchSize int

	// Workers is the number of goroutines counting tokens
	Workers int

	// ReportInterval is how often to report progress (number of places)
	ReportInterval int

	// MaxRetries is the maximum number of attempts for a counter update
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		Workers:        max(runtime.NumCPU()/2, 1),
		ReportInterval: 10000,
		MaxRetries:     3,
		RetryDelay:     100 * time.Millisecond,
	}
}

// Result summarizes a refresh.
type Result struct {
	Places  int // places counted
	Updated int // words whose counters changed
}

// Refresher recomputes the word counters of a database.
type Refresher struct {
	store    storage.Store
	config   *Config
	progress io.Writer
	iterator *PlaceIterator
	logger   *slog.Logger
}

// Option configures a Refresher.
type Option func(*Refresher)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Refresher) {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger.With("component", "refresh")
	}
}

// NewRefresher creates a new refresher.
// progress: where to write progress output (typically os.Stderr, nil for none)
func NewRefresher(store storage.Store, config *Config, progress io.Writer, opts ...Option) (*Refresher, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}
	r := &Refresher{
		store:    store,
		config:   config,
		progress: progress,
		iterator: NewPlaceIterator(store, config.BatchSize),
		logger:   slog.Default().With("component", "refresh"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run counts the token usage of all places and stores the new counters.
// Words of other types than full and partial words keep their counters.
func (r *Refresher) Run(ctx context.Context) (*Result, error) {
	total, err := r.iterator.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count places: %w", err)
	}
	fmt.Fprintf(r.progress, "Counting tokens of %d places (batch size: %d, workers: %d)\n",
		total, r.iterator.batchSize, max(r.config.Workers, 1))

	tracker := NewProgressTracker(r.progress, "places", total, r.config.ReportInterval)
	tracker.Start()

	counts, err := r.count(ctx, tracker)
	if err != nil {
		return nil, err
	}
	tracker.Finish()

	updates, err := r.changedCounts(ctx, counts)
	if err != nil {
		return nil, err
	}
	if err := r.write(ctx, updates); err != nil {
		return nil, err
	}
	if err := r.store.SetProperty(ctx, PropertyLastRefresh, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return nil, err
	}

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Refresh complete. Counted %d places in %v, updated %d words\n",
		tracker.Current(), elapsed.Round(time.Millisecond), len(updates))
	r.logger.Info("word counts refreshed", "places", tracker.Current(), "updated", len(updates), "elapsed", elapsed)

	return &Result{Places: tracker.Current(), Updated: len(updates)}, nil
}

// count fans the place batches out to the workers and merges their counts.
func (r *Refresher) count(ctx context.Context, tracker *ProgressTracker) (tokenCounts, error) {
	workers := max(r.config.Workers, 1)
	batches := make(chan []*core.Place)
	partial := make([]tokenCounts, workers)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(batches)
		return r.iterator.ForEach(gctx, func(batch []*core.Place) error {
			select {
			case batches <- batch:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})
	for i := range workers {
		counts := tokenCounts{}
		partial[i] = counts
		g.Go(func() error {
			for batch := range batches {
				for _, p := range batch {
					counts.addPlace(p)
				}
				tracker.Increment(len(batch))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to count tokens: %w", err)
	}

	merged := partial[0]
	for _, counts := range partial[1:] {
		merged.merge(counts)
	}
	return merged, nil
}

// changedCounts returns the new counters of all full and partial words
// whose stored counters differ.
func (r *Refresher) changedCounts(ctx context.Context, counts tokenCounts) (map[int]storage.WordCount, error) {
	updates := make(map[int]storage.WordCount)
	err := r.store.ForEachWord(ctx, func(w *core.WordRow) error {
		if w.Type != core.WordFull && w.Type != core.WordPartial {
			return nil
		}
		next := counts[w.ID]
		if next.Count != w.Count || next.AddrCount != w.AddrCount {
			updates[w.ID] = next
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read words: %w", err)
	}
	return updates, nil
}

func (r *Refresher) write(ctx context.Context, updates map[int]storage.WordCount) error {
	for chunk := range slices.Chunk(slices.Sorted(maps.Keys(updates)), max(r.iterator.batchSize, 1)) {
		part := make(map[int]storage.WordCount, len(chunk))
		for _, id := range chunk {
			part[id] = updates[id]
		}
		err := RetryWithBackoff(ctx, r.logger, func(ctx context.Context) error {
			return r.store.UpdateWordCounts(ctx, part)
		}, r.config.MaxRetries, r.config.RetryDelay)
		if err != nil {
			return fmt.Errorf("failed to update word counts after %d attempts: %w", r.config.MaxRetries, err)
		}
	}
	return nil
}
