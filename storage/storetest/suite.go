// Package storetest holds the behavioural tests every storage.Store
// implementation must pass.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/placefinder/core"
	"github.com/poiesic/placefinder/storage"
)

// Factory creates an empty store. The suite closes it.
type Factory func(t *testing.T) storage.Store

func newTestStore(t *testing.T, factory Factory) storage.Store {
	t.Helper()
	store := factory(t)
	t.Cleanup(func() { store.Close() })
	return store
}

func placeIDs(places []*core.Place) []core.ID {
	ids := make([]core.ID, len(places))
	for i, p := range places {
		ids[i] = p.ID
	}
	return ids
}

// Run executes the whole suite against stores created by factory.
func Run(t *testing.T, factory Factory) {
	t.Run("words", func(t *testing.T) { testWords(t, factory) })
	t.Run("places", func(t *testing.T) { testPlaces(t, factory) })
	t.Run("postcodes", func(t *testing.T) { testPostcodes(t, factory) })
	t.Run("properties", func(t *testing.T) { testProperties(t, factory) })
	t.Run("transaction", func(t *testing.T) { testTransaction(t, factory) })
}

func testWords(t *testing.T, factory Factory) {
	store := newTestStore(t, factory)
	ctx := context.Background()

	t.Run("get or create is idempotent", func(t *testing.T) {
		rows, err := store.GetOrCreateWords(ctx,
			&core.WordRow{WordToken: "haupt", Type: core.WordPartial},
			&core.WordRow{WordToken: "hauptstrasse", Type: core.WordFull, Word: "hauptstrasse"},
			&core.WordRow{WordToken: "haupt", Type: core.WordPartial},
		)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.NotZero(t, rows[0].ID)
		assert.NotEqual(t, rows[0].ID, rows[1].ID)
		assert.Equal(t, rows[0].ID, rows[2].ID)

		again, err := store.GetOrCreateWords(ctx, &core.WordRow{WordToken: "hauptstrasse", Type: core.WordFull, Word: "hauptstrasse"})
		require.NoError(t, err)
		assert.Equal(t, rows[1].ID, again[0].ID)
	})

	t.Run("rows without lookup string are rejected", func(t *testing.T) {
		_, err := store.GetOrCreateWords(ctx, &core.WordRow{Type: core.WordPartial})
		assert.ErrorIs(t, err, storage.ErrInvalidQuery)
	})

	t.Run("find tokens skips postcodes", func(t *testing.T) {
		_, err := store.GetOrCreateWords(ctx,
			&core.WordRow{WordToken: "10115", Type: core.WordPostcode, Word: "10115"},
			&core.WordRow{WordToken: "10115", Type: core.WordPartial},
		)
		require.NoError(t, err)

		found, err := store.FindTokens(ctx, []string{"10115", "10115", "unknown"})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, core.WordPartial, found[0].Type)
	})

	t.Run("prefix of another lookup does not match", func(t *testing.T) {
		found, err := store.FindTokens(ctx, []string{"hau"})
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("update counts", func(t *testing.T) {
		rows, err := store.FindTokens(ctx, []string{"haupt"})
		require.NoError(t, err)
		require.Len(t, rows, 1)

		err = store.UpdateWordCounts(ctx, map[int]storage.WordCount{
			rows[0].ID: {Count: 12, AddrCount: 40},
			99999:      {Count: 1},
		})
		require.NoError(t, err)

		rows, err = store.FindTokens(ctx, []string{"haupt"})
		require.NoError(t, err)
		assert.Equal(t, 12, rows[0].Count)
		assert.Equal(t, 40, rows[0].AddrCount)
	})

	t.Run("for each word", func(t *testing.T) {
		n := 0
		require.NoError(t, store.ForEachWord(ctx, func(*core.WordRow) error {
			n++
			return nil
		}))
		assert.Equal(t, 4, n)
	})
}

func samplePlaces() []*core.Place {
	return []*core.Place{
		{
			OSMType: "R", OSMID: 1, Class: "boundary", Type: "administrative",
			Names: map[string]string{"name": "Deutschland"}, CountryCode: "de",
			RankSearch: 4, RankAddress: 4, NameVector: []int{100},
		},
		{
			OSMType: "R", OSMID: 2, Class: "place", Type: "city",
			Names: map[string]string{"name": "Berlin"}, CountryCode: "de",
			RankSearch: 16, RankAddress: 16, NameVector: []int{1, 2}, AddressVector: []int{100},
		},
		{
			OSMType: "W", OSMID: 3, Class: "highway", Type: "residential",
			Names: map[string]string{"name": "Hauptstraße"}, CountryCode: "de",
			RankSearch: 26, RankAddress: 26, NameVector: []int{3, 4}, AddressVector: []int{1, 100},
		},
		{
			OSMType: "N", OSMID: 4, Class: "place", Type: "house", Housenumber: "12A",
			CountryCode: "de", RankSearch: 30, RankAddress: 30,
			ParentID: core.IDFromContent("W3"), AddressVector: []int{3, 1, 100},
		},
		{
			OSMType: "N", OSMID: 5, Class: "amenity", Type: "pub",
			Names: map[string]string{"name": "Zum Hirsch"}, CountryCode: "de",
			RankSearch: 30, RankAddress: 30, NameVector: []int{5}, AddressVector: []int{3, 1},
		},
	}
}

func testPlaces(t *testing.T, factory Factory) {
	store := newTestStore(t, factory)
	ctx := context.Background()
	require.NoError(t, store.AddPlaces(ctx, samplePlaces()...))

	berlin := core.IDFromContent("R2")
	street := core.IDFromContent("W3")
	house := core.IDFromContent("N4")
	pub := core.IDFromContent("N5")

	t.Run("get places", func(t *testing.T) {
		places, err := store.GetPlaces(ctx, berlin, 42)
		require.NoError(t, err)
		require.Len(t, places, 1)
		assert.Equal(t, "Berlin", places[0].PrimaryName())
	})

	t.Run("lookup all", func(t *testing.T) {
		places, err := store.LookupPlaces(ctx, []core.FieldLookup{
			{Column: core.ColumnName, Tokens: []int{1, 2}, LookupType: core.LookupAll},
		}, 10)
		require.NoError(t, err)
		assert.Equal(t, []core.ID{berlin}, placeIDs(places))
	})

	t.Run("lookup any with restriction", func(t *testing.T) {
		places, err := store.LookupPlaces(ctx, []core.FieldLookup{
			{Column: core.ColumnAddress, Tokens: []int{3}, LookupType: core.LookupAny},
			{Column: core.ColumnName, Tokens: []int{5}, LookupType: core.Restrict},
		}, 10)
		require.NoError(t, err)
		assert.Equal(t, []core.ID{pub}, placeIDs(places))
	})

	t.Run("address index", func(t *testing.T) {
		places, err := store.LookupPlaces(ctx, []core.FieldLookup{
			{Column: core.ColumnAddress, Tokens: []int{1}, LookupType: core.LookupAll},
		}, 10)
		require.NoError(t, err)
		assert.ElementsMatch(t, []core.ID{street, house, pub}, placeIDs(places))
	})

	t.Run("restrict only scans everything", func(t *testing.T) {
		places, err := store.LookupPlaces(ctx, []core.FieldLookup{
			{Column: core.ColumnAddress, Tokens: []int{100}, LookupType: core.Restrict},
		}, 10)
		require.NoError(t, err)
		assert.ElementsMatch(t, []core.ID{berlin, street, house}, placeIDs(places))
	})

	t.Run("limit", func(t *testing.T) {
		places, err := store.LookupPlaces(ctx, []core.FieldLookup{
			{Column: core.ColumnAddress, Tokens: []int{1}, LookupType: core.LookupAll},
		}, 2)
		require.NoError(t, err)
		assert.Len(t, places, 2)

		_, err = store.LookupPlaces(ctx, nil, 0)
		assert.ErrorIs(t, err, storage.ErrInvalidQuery)
	})

	t.Run("housenumbers", func(t *testing.T) {
		places, err := store.FindHousenumbers(ctx, []core.ID{street, berlin}, []string{"12a", "13"})
		require.NoError(t, err)
		assert.Equal(t, []core.ID{house}, placeIDs(places))
	})

	t.Run("categories", func(t *testing.T) {
		places, err := store.FindByCategory(ctx, []core.Category{{Class: "amenity", Type: "pub"}, {Class: "amenity", Type: "bar"}}, 10)
		require.NoError(t, err)
		assert.Equal(t, []core.ID{pub}, placeIDs(places))
	})

	t.Run("countries", func(t *testing.T) {
		places, err := store.FindCountries(ctx, []string{"de", "fr"})
		require.NoError(t, err)
		assert.Equal(t, []core.ID{core.IDFromContent("R1")}, placeIDs(places))
	})

	t.Run("replacing a place updates its index", func(t *testing.T) {
		renamed := samplePlaces()[4]
		renamed.NameVector = []int{6}
		require.NoError(t, store.AddPlaces(ctx, renamed))

		places, err := store.LookupPlaces(ctx, []core.FieldLookup{
			{Column: core.ColumnName, Tokens: []int{5}, LookupType: core.LookupAll},
		}, 10)
		require.NoError(t, err)
		assert.Empty(t, places)

		places, err = store.LookupPlaces(ctx, []core.FieldLookup{
			{Column: core.ColumnName, Tokens: []int{6}, LookupType: core.LookupAll},
		}, 10)
		require.NoError(t, err)
		assert.Equal(t, []core.ID{pub}, placeIDs(places))
	})

	t.Run("for each place", func(t *testing.T) {
		n := 0
		require.NoError(t, store.ForEachPlace(ctx, func(*core.Place) error {
			n++
			return nil
		}))
		assert.Equal(t, 5, n)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := store.LookupPlaces(cctx, []core.FieldLookup{
			{Column: core.ColumnAddress, Tokens: []int{1}, LookupType: core.LookupAll},
		}, 10)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func testPostcodes(t *testing.T, factory Factory) {
	store := newTestStore(t, factory)
	ctx := context.Background()

	require.NoError(t, store.AddPostcodes(ctx,
		&core.Postcode{CountryCode: "gb", Postcode: "EC1A 1BB", Centroid: core.Point{Lon: -0.1, Lat: 51.5}},
		&core.Postcode{CountryCode: "de", Postcode: "10115", Centroid: core.Point{Lon: 13.38, Lat: 52.53}},
	))

	found, err := store.FindPostcodes(ctx, []string{"ec1a 1bb"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "gb", found[0].CountryCode)

	found, err = store.FindPostcodes(ctx, []string{"10115", "99999"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "de", found[0].CountryCode)
}

func testProperties(t *testing.T, factory Factory) {
	store := newTestStore(t, factory)
	ctx := context.Background()

	_, err := store.GetProperty(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.SetProperty(ctx, "p", "1"))
	require.NoError(t, store.SetProperty(ctx, "p", "2"))
	v, err := store.GetProperty(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
}

func testTransaction(t *testing.T, factory Factory) {
	store := newTestStore(t, factory)
	ctx := context.Background()

	err := store.WithTransaction(ctx, func(ctx context.Context) error {
		if err := store.AddPlaces(ctx, samplePlaces()[1]); err != nil {
			return err
		}
		return store.SetProperty(ctx, "imported", "yes")
	})
	require.NoError(t, err)

	places, err := store.GetPlaces(ctx, core.IDFromContent("R2"))
	require.NoError(t, err)
	assert.Len(t, places, 1)
}
