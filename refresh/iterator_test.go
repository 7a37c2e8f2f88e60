package refresh

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/placefinder/core"
)

func TestPlaceIterator_ForEach(t *testing.T) {
	store := setupTestStore(t)
	seedStore(t, store, 5)
	ctx := context.Background()

	t.Run("batches", func(t *testing.T) {
		var sizes []int
		ids := map[core.ID]bool{}
		err := NewPlaceIterator(store, 2).ForEach(ctx, func(batch []*core.Place) error {
			sizes = append(sizes, len(batch))
			for _, p := range batch {
				ids[p.ID] = true
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []int{2, 2, 1}, sizes)
		assert.Len(t, ids, 5, "batches do not share places")
	})

	t.Run("exact multiple", func(t *testing.T) {
		var sizes []int
		err := NewPlaceIterator(store, 5).ForEach(ctx, func(batch []*core.Place) error {
			sizes = append(sizes, len(batch))
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []int{5}, sizes)
	})

	t.Run("default batch size", func(t *testing.T) {
		it := NewPlaceIterator(store, 0)
		assert.Equal(t, DefaultBatchSize, it.batchSize)
	})

	t.Run("error stops iteration", func(t *testing.T) {
		calls := 0
		boom := errors.New("boom")
		err := NewPlaceIterator(store, 1).ForEach(ctx, func([]*core.Place) error {
			calls++
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := NewPlaceIterator(store, 2).ForEach(cctx, func([]*core.Place) error { return nil })
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("count", func(t *testing.T) {
		n, err := NewPlaceIterator(store, 2).Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5, n)
	})
}
