package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/poiesic/placefinder/config"
	"github.com/poiesic/placefinder/core"
	"github.com/poiesic/placefinder/normalize"
)

func newTestNormalizer(t *testing.T) *normalize.Normalizer {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	norm, err := normalize.New(cfg.Rules)
	require.NoError(t, err)
	return norm
}

func tokensOf(rows []*core.WordRow, typ core.WordType) []string {
	var tokens []string
	for _, r := range rows {
		if r.Type == typ {
			tokens = append(tokens, r.WordToken)
		}
	}
	return tokens
}

func TestWordBuilder_NameRows(t *testing.T) {
	b := wordBuilder{norm: newTestNormalizer(t)}

	t.Run("single term", func(t *testing.T) {
		rows := b.nameRows("Berlin")
		assert.Equal(t, []string{"berlin"}, tokensOf(rows, core.WordFull))
		assert.Equal(t, []string{"berlin"}, tokensOf(rows, core.WordPartial))
		assert.Equal(t, "berlin", rows[0].Word)
	})

	t.Run("multiple terms", func(t *testing.T) {
		rows := b.nameRows("Berliner Dom")
		assert.Equal(t, []string{"berliner dom"}, tokensOf(rows, core.WordFull))
		assert.ElementsMatch(t, []string{"berliner", "dom"}, tokensOf(rows, core.WordPartial))
	})

	t.Run("variants share partials", func(t *testing.T) {
		rows := b.nameRows("Hauptstraße")
		full := tokensOf(rows, core.WordFull)
		assert.Contains(t, full, "hauptstrasse")
		assert.Contains(t, full, "hauptstr")
		for _, r := range rows {
			if r.Type == core.WordFull {
				assert.Equal(t, "hauptstraße", r.Word)
			}
		}
		assert.ElementsMatch(t, []string{"haupt", "str", "strasse", "hauptstr", "hauptstrasse"},
			tokensOf(rows, core.WordPartial))
	})

	t.Run("empty name", func(t *testing.T) {
		assert.Empty(t, b.nameRows("  "))
		assert.Empty(t, b.nameRows("!!!"))
	})
}

func TestWordBuilder_SpecialRow(t *testing.T) {
	b := wordBuilder{norm: newTestNormalizer(t)}

	t.Run("plain phrase", func(t *testing.T) {
		row, err := b.specialRow(config.SpecialPhrase{Phrase: "Pub", Class: "amenity", Type: "pub"})
		require.NoError(t, err)
		assert.Equal(t, "pub", row.WordToken)
		assert.Equal(t, core.WordSpecial, row.Type)
		assert.Equal(t, "pub@amenity=pub", row.Word)
		assert.Equal(t, "amenity", gjson.Get(row.Info, "class").String())
		assert.Equal(t, "pub", gjson.Get(row.Info, "type").String())
		assert.False(t, gjson.Get(row.Info, "op").Exists())
	})

	t.Run("with operator", func(t *testing.T) {
		row, err := b.specialRow(config.SpecialPhrase{Phrase: "hotels in", Class: "tourism", Type: "hotel", Operator: "in"})
		require.NoError(t, err)
		assert.Equal(t, "hotels in", row.WordToken)
		assert.Equal(t, "in", gjson.Get(row.Info, "op").String())
		assert.Equal(t, "hotels in@tourism=hotel:in", row.Word)
	})

	t.Run("same phrase for two categories", func(t *testing.T) {
		a, err := b.specialRow(config.SpecialPhrase{Phrase: "bar", Class: "amenity", Type: "bar"})
		require.NoError(t, err)
		c, err := b.specialRow(config.SpecialPhrase{Phrase: "bar", Class: "amenity", Type: "pub"})
		require.NoError(t, err)
		assert.NotEqual(t, a.Key(), c.Key())
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := b.specialRow(config.SpecialPhrase{Phrase: "", Class: "amenity", Type: "pub"})
		assert.ErrorIs(t, err, ErrInvalidPhrase)
		_, err = b.specialRow(config.SpecialPhrase{Phrase: "pub", Class: "amenity"})
		assert.ErrorIs(t, err, ErrInvalidPhrase)
		_, err = b.specialRow(config.SpecialPhrase{Phrase: "pub", Class: "amenity", Type: "pub", Operator: "around"})
		assert.ErrorIs(t, err, ErrInvalidPhrase)
	})
}

func TestWordBuilder_PlaceRows(t *testing.T) {
	b := wordBuilder{norm: newTestNormalizer(t)}

	t.Run("address point", func(t *testing.T) {
		pw := b.placeRows(&core.Place{
			OSMType: "N", OSMID: 1, Housenumber: "12A", Postcode: "10117",
			Address: []string{"Hauptstraße", "Berlin"},
		})
		assert.Empty(t, pw.name)
		assert.Contains(t, tokensOf(pw.address, core.WordFull), "berlin")
		assert.Equal(t, []string{"12a"}, tokensOf(pw.extra, core.WordHousenumber))
		assert.Equal(t, []string{"10117"}, tokensOf(pw.extra, core.WordPostcode))
	})

	t.Run("country", func(t *testing.T) {
		pw := b.placeRows(&core.Place{
			OSMType: "R", OSMID: 51477, CountryCode: "de", RankAddress: 4,
			Names: map[string]string{"name": "Deutschland", "name:en": "Germany"},
		})
		assert.ElementsMatch(t, []string{"deutschland", "germany"}, tokensOf(pw.extra, core.WordCountry))
		for _, r := range pw.extra {
			assert.Equal(t, "de", r.Word)
		}
	})

	t.Run("duplicate names", func(t *testing.T) {
		pw := b.placeRows(&core.Place{
			OSMType: "R", OSMID: 2,
			Names: map[string]string{"name": "Berlin", "name:de": "Berlin"},
		})
		assert.Equal(t, []string{"berlin"}, tokensOf(pw.name, core.WordFull))
	})
}
