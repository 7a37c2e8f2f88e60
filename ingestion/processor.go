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


package ingestion

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/placefinder/core"
	"github.com/poiesic/placefinder/normalize"
	"github.com/poiesic/placefinder/storage"
)

// processor is an internal interface for importing a batch of places.
type processor interface {
	// process derives the words of the places and stores the places.
	process(ctx context.Context, places []*core.Place) (*Stats, error)
}

type placeProcessor struct {
	store   storage.Store
	builder wordBuilder
	pool    *ants.Pool
	logger  *slog.Logger
}

var _ processor = (*placeProcessor)(nil)

func newPlaceProcessor(store storage.Store, norm *normalize.Normalizer, pool *ants.Pool, logger *slog.Logger) (processor, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if norm == nil {
		return nil, ErrNormalizerRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &placeProcessor{
		store:   store,
		builder: wordBuilder{norm: norm},
		pool:    pool,
		logger:  logger,
	}, nil
}

// analyze derives the word rows of every place on the worker pool.
func (pp *placeProcessor) analyze(ctx context.Context, places []*core.Place) ([]*placeWords, error) {
	words := make([]*placeWords, len(places))
	var wg sync.WaitGroup
	for i, p := range places {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, err
		}
		wg.Add(1)
		err := pp.pool.Submit(func() {
			defer wg.Done()
			words[i] = pp.builder.placeRows(p)
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return nil, fmt.Errorf("submitting place %s: %w", p.Ref(), err)
		}
	}
	wg.Wait()
	return words, nil
}

func (pp *placeProcessor) process(ctx context.Context, places []*core.Place) (*Stats, error) {
	stats := &Stats{}
	valid := make([]*core.Place, 0, len(places))
	for _, p := range places {
		if err := core.ValidatePlace(p); err != nil {
			pp.logger.Warn("skipping place", "err", err)
			stats.Skipped++
			continue
		}
		valid = append(valid, p)
	}
	if len(valid) == 0 {
		return stats, nil
	}

	words, err := pp.analyze(ctx, valid)
	if err != nil {
		return nil, err
	}

	// One lookup per distinct row, shared by all places of the batch.
	index := make(map[string]int)
	var unique []*core.WordRow
	for _, pw := range words {
		for _, rows := range [][]*core.WordRow{pw.name, pw.address, pw.extra} {
			for _, row := range rows {
				if _, ok := index[row.Key()]; !ok {
					index[row.Key()] = len(unique)
					unique = append(unique, row)
				}
			}
		}
	}

	err = pp.store.WithTransaction(ctx, func(ctx context.Context) error {
		stored, err := pp.store.GetOrCreateWords(ctx, unique...)
		if err != nil {
			return fmt.Errorf("creating words: %w", err)
		}
		tokenID := func(row *core.WordRow) int { return stored[index[row.Key()]].ID }

		var (
			toPlace    []*core.Place
			toPostcode []*core.Postcode
		)
		for i, p := range valid {
			p.NameVector = tokenVector(words[i].name, tokenID)
			p.AddressVector = tokenVector(words[i].address, tokenID)
			if pc := postcodeArea(p); pc != nil {
				toPostcode = append(toPostcode, pc)
				continue
			}
			toPlace = append(toPlace, p)
		}
		if len(toPlace) > 0 {
			if err := pp.store.AddPlaces(ctx, toPlace...); err != nil {
				return fmt.Errorf("storing places: %w", err)
			}
		}
		if len(toPostcode) > 0 {
			if err := pp.store.AddPostcodes(ctx, toPostcode...); err != nil {
				return fmt.Errorf("storing postcodes: %w", err)
			}
		}
		stats.Places += len(toPlace)
		stats.Postcodes += len(toPostcode)
		stats.Words += len(unique)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// tokenVector returns the sorted, distinct token IDs of rows.
func tokenVector(rows []*core.WordRow, tokenID func(*core.WordRow) int) []int {
	if len(rows) == 0 {
		return nil
	}
	vector := make([]int, len(rows))
	for i, row := range rows {
		vector[i] = tokenID(row)
	}
	slices.Sort(vector)
	return slices.Compact(vector)
}

// postcodeArea converts a place=postcode object into a postcode area.
// It returns nil for all other places.
func postcodeArea(p *core.Place) *core.Postcode {
	if p.Class != "place" || p.Type != "postcode" {
		return nil
	}
	postcode := cmp.Or(strings.TrimSpace(p.Postcode), p.PrimaryName())
	if postcode == "" {
		return nil
	}
	return &core.Postcode{
		CountryCode:   p.CountryCode,
		Postcode:      strings.ToUpper(postcode),
		Centroid:      p.Centroid,
		AddressVector: p.AddressVector,
		Address:       p.Address,
	}
}
