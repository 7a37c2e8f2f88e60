package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Settings.Search.MaxResults)
	assert.Equal(t, 50, cfg.Settings.Search.MaxSearches)
	assert.Equal(t, 15, cfg.Settings.Search.MinSearchesBeforeCut)
	assert.Equal(t, 2*time.Second, cfg.SearchTimeout())
	assert.Equal(t, "badger", cfg.Settings.Storage.Backend)

	assert.NotEmpty(t, cfg.Rules.Normalization)
	assert.NotEmpty(t, cfg.Rules.Transliteration)
	require.NotEmpty(t, cfg.Rules.QueryPreprocessing)
	assert.Equal(t, "normalize", cfg.Rules.QueryPreprocessing[0].Step)

	require.Contains(t, cfg.Countries, "gb")
	require.NotNil(t, cfg.Countries["gb"].Postcode)
	assert.Equal(t, `\1 \2`, cfg.Countries["gb"].Postcode.Output)
	assert.Equal(t, "Deutschland", cfg.Countries["de"].Names["name"])

	assert.NotEmpty(t, cfg.SpecialPhrases)
}

func TestRuleStep_UnmarshalYAML(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	var ops []string
	for _, s := range cfg.Rules.QueryNormalization {
		ops = append(ops, s.Op)
	}
	assert.Equal(t, []string{"nfkc", "lower", "replace", "keep", "collapse-spaces"}, ops)
	assert.Equal(t, ":", cfg.Rules.QueryNormalization[2].Replace["&"])
	assert.Equal(t, `\p{L}\p{N}\p{M} ,:\-`, cfg.Rules.QueryNormalization[3].Arg)
}

func TestFingerprint(t *testing.T) {
	a, err := Default()
	require.NoError(t, err)
	b, err := Default()
	require.NoError(t, err)

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	// query-only rules do not change the index
	b.Rules.QueryPreprocessing = nil
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	b.Rules.Variants = append(b.Rules.Variants, VariantSection{Words: []string{"gasse -> g"}})
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "rules/tokenizer.yaml", `
normalization:
  - lower
transliteration:
  - ascii
variants:
  - words: ["weg -> w"]
`)
	writeFile(t, dir, "phrases/de/amenities.yaml", `
- {phrase: kneipe, class: amenity, type: pub}
`)
	writeFile(t, dir, "phrases/fr/amenities.yaml", `
- {phrase: boulangerie, class: shop, type: bakery}
`)
	path := writeFile(t, dir, "settings.toml", `
[tokenizer]
rules = "rules/tokenizer.yaml"

[special_phrases]
files = ["phrases/**/*.yaml"]

[search]
timeout = "500ms"
max_results = 5

[storage]
backend = "sqlite"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, cfg.SearchTimeout())
	assert.Equal(t, 5, cfg.Settings.Search.MaxResults)
	assert.Equal(t, "sqlite", cfg.Settings.Storage.Backend)
	assert.Equal(t, []string{"weg -> w"}, cfg.Rules.Variants[0].Words)
	require.Len(t, cfg.SpecialPhrases, 2)
	assert.Equal(t, "kneipe", cfg.SpecialPhrases[0].Phrase)
	assert.Equal(t, "boulangerie", cfg.SpecialPhrases[1].Phrase)

	// countries come from the embedded defaults
	assert.Contains(t, cfg.Countries, "de")
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name     string
		settings string
		files    map[string]string
		wantErr  error
	}{
		{
			name:     "bad timeout",
			settings: "[search]\ntimeout = \"soon\"\n",
			wantErr:  ErrInvalidConfig,
		},
		{
			name:     "unknown backend",
			settings: "[storage]\nbackend = \"postgres\"\n",
			wantErr:  ErrInvalidConfig,
		},
		{
			name:     "broken toml",
			settings: "[search\n",
			wantErr:  ErrInvalidConfig,
		},
		{
			name:     "missing rule file",
			settings: "[tokenizer]\nrules = \"nope.yaml\"\n",
			wantErr:  ErrInvalidConfig,
		},
		{
			name:     "malformed rule step",
			settings: "[tokenizer]\nrules = \"r.yaml\"\n",
			files:    map[string]string{"r.yaml": "normalization:\n  - {lower: 1, upper: 2}\n"},
			wantErr:  ErrInvalidRule,
		},
		{
			name:     "incomplete special phrase",
			settings: "[special_phrases]\nfiles = [\"p.yaml\"]\n",
			files:    map[string]string{"p.yaml": "- {phrase: pub}\n"},
			wantErr:  ErrInvalidRule,
		},
		{
			name:     "empty postcode pattern",
			settings: "[countries]\nfile = \"c.yaml\"\n",
			files:    map[string]string{"c.yaml": "xx:\n  postcode: {pattern: \"\"}\n"},
			wantErr:  ErrInvalidRule,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.files {
				writeFile(t, dir, name, content)
			}
			path := writeFile(t, dir, "settings.toml", tt.settings)

			_, err := Load(path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}
