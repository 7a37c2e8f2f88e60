package refresh

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/placefinder/core"
	"github.com/poiesic/placefinder/storage"
	"github.com/poiesic/placefinder/storage/badger"
	"github.com/poiesic/placefinder/storage/sqlite"
)

func setupTestStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// seedStore creates four words and n places named after the first two.
func seedStore(t *testing.T, store storage.Store, n int) []*core.WordRow {
	t.Helper()
	ctx := context.Background()
	words, err := store.GetOrCreateWords(ctx,
		&core.WordRow{WordToken: "berlin", Type: core.WordFull, Word: "berlin"},
		&core.WordRow{WordToken: "berlin", Type: core.WordPartial},
		&core.WordRow{WordToken: "mitte", Type: core.WordPartial},
		&core.WordRow{WordToken: "10117", Type: core.WordPostcode, Word: "10117"},
	)
	require.NoError(t, err)

	places := make([]*core.Place, n)
	for i := range places {
		places[i] = &core.Place{
			OSMType:       "N",
			OSMID:         int64(i + 1),
			Names:         map[string]string{"name": "Berlin"},
			NameVector:    []int{words[0].ID, words[1].ID, words[1].ID},
			AddressVector: []int{words[2].ID},
		}
	}
	require.NoError(t, store.AddPlaces(ctx, places...))
	return words
}

func countsOf(t *testing.T, store storage.Store) map[int]storage.WordCount {
	t.Helper()
	counts := map[int]storage.WordCount{}
	require.NoError(t, store.ForEachWord(context.Background(), func(w *core.WordRow) error {
		counts[w.ID] = storage.WordCount{Count: w.Count, AddrCount: w.AddrCount}
		return nil
	}))
	return counts
}

func TestNewRefresher(t *testing.T) {
	t.Run("nil store", func(t *testing.T) {
		_, err := NewRefresher(nil, nil, nil)
		assert.ErrorIs(t, err, ErrStoreRequired)
	})

	t.Run("defaults", func(t *testing.T) {
		r, err := NewRefresher(setupTestStore(t), nil, nil, WithLogger(nil))
		require.NoError(t, err)
		assert.Equal(t, DefaultBatchSize, r.config.BatchSize)
		assert.NotNil(t, r.logger)
	})
}

func TestRefresher_Run(t *testing.T) {
	backends := map[string]func(t *testing.T) storage.Store{
		"badger": setupTestStore,
		"sqlite": func(t *testing.T) storage.Store {
			store, err := sqlite.NewMemoryStore()
			require.NoError(t, err)
			t.Cleanup(func() { store.Close() })
			return store
		},
	}

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			words := seedStore(t, store, 25)
			ctx := context.Background()

			var out bytes.Buffer
			r, err := NewRefresher(store, &Config{
				BatchSize: 4, Workers: 3, ReportInterval: 5, MaxRetries: 1, RetryDelay: time.Millisecond,
			}, &out)
			require.NoError(t, err)

			result, err := r.Run(ctx)
			require.NoError(t, err)
			assert.Equal(t, 25, result.Places)
			assert.Equal(t, 3, result.Updated)

			counts := countsOf(t, store)
			assert.Equal(t, storage.WordCount{Count: 25}, counts[words[0].ID])
			assert.Equal(t, storage.WordCount{Count: 25}, counts[words[1].ID], "duplicate tokens count once")
			assert.Equal(t, storage.WordCount{AddrCount: 25}, counts[words[2].ID])
			assert.Equal(t, storage.WordCount{}, counts[words[3].ID])
			assert.Contains(t, out.String(), "Refresh complete")

			stamp, err := store.GetProperty(ctx, PropertyLastRefresh)
			require.NoError(t, err)
			_, err = time.Parse(time.RFC3339, stamp)
			assert.NoError(t, err)

			t.Run("second run changes nothing", func(t *testing.T) {
				result, err := r.Run(ctx)
				require.NoError(t, err)
				assert.Zero(t, result.Updated)
			})

			t.Run("unused words are reset", func(t *testing.T) {
				require.NoError(t, store.AddPlaces(ctx, &core.Place{
					OSMType: "N", OSMID: 1, Names: map[string]string{"name": "Berlin"},
					NameVector: []int{words[0].ID},
				}))
				for i := 2; i <= 25; i++ {
					require.NoError(t, store.AddPlaces(ctx, &core.Place{
						OSMType: "N", OSMID: int64(i), Housenumber: "1",
					}))
				}
				result, err := r.Run(ctx)
				require.NoError(t, err)
				assert.Equal(t, 3, result.Updated)

				counts := countsOf(t, store)
				assert.Equal(t, storage.WordCount{Count: 1}, counts[words[0].ID])
				assert.Equal(t, storage.WordCount{}, counts[words[1].ID])
				assert.Equal(t, storage.WordCount{}, counts[words[2].ID])
			})
		})
	}
}

func TestRefresher_Run_EmptyStore(t *testing.T) {
	r, err := NewRefresher(setupTestStore(t), nil, nil)
	require.NoError(t, err)

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Result{}, result)
}

func TestRefresher_Run_Cancelled(t *testing.T) {
	store := setupTestStore(t)
	seedStore(t, store, 10)
	r, err := NewRefresher(store, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// flakyStore fails the first counter updates.
type flakyStore struct {
	storage.Store
	failures int
	calls    int
}

func (s *flakyStore) UpdateWordCounts(ctx context.Context, counts map[int]storage.WordCount) error {
	s.calls++
	if s.calls <= s.failures {
		return errors.New("database is locked")
	}
	return s.Store.UpdateWordCounts(ctx, counts)
}

func TestRefresher_Run_RetriesUpdates(t *testing.T) {
	store := &flakyStore{Store: setupTestStore(t), failures: 2}
	words := seedStore(t, store, 3)

	cfg := DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	r, err := NewRefresher(store, cfg, nil)
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, store.calls)
	assert.Equal(t, 3, countsOf(t, store)[words[0].ID].Count)

	t.Run("gives up after max retries", func(t *testing.T) {
		store.calls, store.failures = 0, 10
		seedStore(t, store, 5)
		_, err := r.Run(context.Background())
		assert.ErrorContains(t, err, "database is locked")
		assert.Equal(t, cfg.MaxRetries, store.calls)
	})
}
