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

	"github.com/poiesic/placefinder/core"
	"github.com/poiesic/placefinder/storage"
)

const (
	// DefaultBatchSize is the default number of places handed out per batch
	DefaultBatchSize = 1000
)

// PlaceIterator iterates over all stored places in batches.
type PlaceIterator struct {
	repo      storage.PlaceRepository
	batchSize int
}

// NewPlaceIterator creates a new place iterator.
// batchSize: number of places per batch (DefaultBatchSize if <= 0)
func NewPlaceIterator(repo storage.PlaceRepository, batchSize int) *PlaceIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &PlaceIterator{
		repo:      repo,
		batchSize: batchSize,
	}
}

// ForEach streams all places, calling fn for each full batch and once for
// the remainder. Iteration stops on the first error from fn or when the
// context is done. Every batch is a fresh slice.
func (it *PlaceIterator) ForEach(ctx context.Context, fn func([]*core.Place) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	batch := make([]*core.Place, 0, it.batchSize)
	err := it.repo.ForEachPlace(ctx, func(p *core.Place) error {
		batch = append(batch, p)
		if len(batch) < it.batchSize {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		batch = make([]*core.Place, 0, it.batchSize)
		return ctx.Err()
	})
	if err != nil {
		return err
	}
	if len(batch) > 0 {
		return fn(batch)
	}
	return nil
}

// Count returns the number of stored places.
func (it *PlaceIterator) Count(ctx context.Context) (int, error) {
	n := 0
	err := it.repo.ForEachPlace(ctx, func(*core.Place) error {
		n++
		return nil
	})
	return n, err
}
