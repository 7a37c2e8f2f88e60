package normalize

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/placefinder/config"
)

func newDefaultNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	n, err := New(cfg.Rules)
	require.NoError(t, err)
	return n
}

func TestNormalizer_Normalize(t *testing.T) {
	n := newDefaultNormalizer(t)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercase and trim", "  Berlin ", "berlin"},
		{"keeps accents", "Rue de l'Église", "rue de l église"},
		{"keeps hyphen", "Saint-Denis", "saint-denis"},
		{"compatibility forms", "ﬁeld", "field"},
		{"only punctuation", "!!!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.Normalize(tt.input))
		})
	}
}

func TestNormalizer_SearchNormalize(t *testing.T) {
	n := newDefaultNormalizer(t)

	assert.Equal(t, "10 downing street, london", n.SearchNormalize("10 Downing Street, London"))
	assert.Equal(t, "main st : high st", n.SearchNormalize("Main St & High St"))
}

func TestNormalizer_Transliterate(t *testing.T) {
	n := newDefaultNormalizer(t)

	assert.Equal(t, "rue de l eglise", n.Transliterate("rue de l église"))
	assert.Equal(t, "hauptstrasse", n.Transliterate("hauptstraße"))
	assert.Equal(t, "", n.Transliterate("東京"))
}

func TestNormalizer_VariantsASCII(t *testing.T) {
	n := newDefaultNormalizer(t)

	t.Run("suffix decomposition", func(t *testing.T) {
		got := n.VariantsASCII("hauptstrasse")
		assert.Equal(t, []string{"haupt str", "haupt strasse", "hauptstr", "hauptstrasse"}, got)
	})

	t.Run("non ascii source", func(t *testing.T) {
		got := n.VariantsASCII(n.Normalize("Hauptstraße"))
		assert.ElementsMatch(t, []string{"haupt str", "haupt strasse", "hauptstr", "hauptstrasse"}, got)
	})

	t.Run("mutations", func(t *testing.T) {
		got := n.VariantsASCII(n.Normalize("Müllerstraße"))
		assert.Contains(t, got, "muellerstr")
		assert.Contains(t, got, "mullerstr")
		assert.Contains(t, got, "mueller strasse")
	})

	t.Run("anchored prefix", func(t *testing.T) {
		got := n.VariantsASCII("north road")
		assert.ElementsMatch(t, []string{"n rd", "n road", "north rd", "north road"}, got)
	})

	t.Run("no rule matches", func(t *testing.T) {
		assert.Equal(t, []string{"london"}, n.VariantsASCII("london"))
	})

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, n.VariantsASCII(""))
	})

	t.Run("untransliterable input stays searchable", func(t *testing.T) {
		assert.Equal(t, []string{"東京"}, n.VariantsASCII("東京"))
	})
}

func TestNormalizer_VariantsRoundTrip(t *testing.T) {
	n := newDefaultNormalizer(t)

	for _, name := range []string{"Hauptstraße", "North Road", "Saint Mary Avenue", "Zürich", "10 Downing Street"} {
		t.Run(name, func(t *testing.T) {
			variants := n.VariantsASCII(n.Normalize(name))
			require.NotEmpty(t, variants)
			for _, v := range variants {
				assert.Equal(t, v, n.Transliterate(n.Normalize(v)), "variant %q does not round-trip", v)
			}
		})
	}
}

func TestNormalizer_VariantCap(t *testing.T) {
	rules := config.TokenizerRules{
		Normalization:   []config.RuleStep{{Op: "lower"}},
		Transliteration: []config.RuleStep{{Op: "ascii"}, {Op: "collapse-spaces"}},
		Variants: []config.VariantSection{{Words: []string{
			"a -> b, c, d, e",
		}}},
	}
	n, err := New(rules)
	require.NoError(t, err)

	// 5^4 combinations exceed the cap, only the unchanged name remains
	got := n.VariantsASCII("a a a a")
	assert.Equal(t, []string{"a a a a"}, got)

	got = n.VariantsASCII("a x")
	assert.Len(t, got, 5)
}

func TestNew_InvalidRules(t *testing.T) {
	base := func() config.TokenizerRules {
		return config.TokenizerRules{
			Normalization:   []config.RuleStep{{Op: "lower"}},
			Transliteration: []config.RuleStep{{Op: "ascii"}},
		}
	}

	tests := []struct {
		name    string
		modify  func(r *config.TokenizerRules)
		wantErr error
	}{
		{
			name:    "variant without arrow",
			modify:  func(r *config.TokenizerRules) { r.Variants = []config.VariantSection{{Words: []string{"strasse str"}}} },
			wantErr: ErrInvalidVariantRule,
		},
		{
			name:    "double decomposition flag",
			modify:  func(r *config.TokenizerRules) { r.Variants = []config.VariantSection{{Words: []string{"~x~ -> y"}}} },
			wantErr: ErrInvalidVariantRule,
		},
		{
			name:    "mutation with group",
			modify:  func(r *config.TokenizerRules) { r.Mutations = []config.Mutation{{Pattern: "(ä)", Replacements: []string{"ae"}}} },
			wantErr: ErrInvalidMutation,
		},
		{
			name:    "unknown step",
			modify:  func(r *config.TokenizerRules) { r.Normalization = append(r.Normalization, config.RuleStep{Op: "shout"}) },
			wantErr: ErrInvalidRule,
		},
		{
			name:    "bad character class",
			modify:  func(r *config.TokenizerRules) { r.Transliteration = []config.RuleStep{{Op: "keep", Arg: "\\p{Nope}"}} },
			wantErr: ErrInvalidRule,
		},
		{
			name:    "unknown mode",
			modify:  func(r *config.TokenizerRules) { r.Mode = "fancy" },
			wantErr: ErrInvalidRule,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := base()
			tt.modify(&rules)
			_, err := New(rules)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.True(t, errors.Is(err, config.ErrInvalidRule))
		})
	}
}
