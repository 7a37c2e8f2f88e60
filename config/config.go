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


// Package config loads geocoder settings and rule files.
//
// A Config is built once at startup, either from the embedded defaults
// (Default) or from a TOML settings file (Load) that points to YAML rule
// files. It is read-only afterwards and safe to share.
package config

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

//go:embed defaults
var defaultsFS embed.FS

const (
	defaultSettingsFile  = "defaults/settings.toml"
	defaultRulesFile     = "defaults/tokenizer.yaml"
	defaultCountriesFile = "defaults/countries.yaml"
	defaultPhrasesGlob   = "defaults/phrases/*.yaml"
)

// Settings mirrors the TOML settings file.
type Settings struct {
	Tokenizer struct {
		Rules string `toml:"rules"`
	} `toml:"tokenizer"`
	Countries struct {
		File string `toml:"file"`
	} `toml:"countries"`
	SpecialPhrases struct {
		Files []string `toml:"files"`
	} `toml:"special_phrases"`
	Search  SearchSettings  `toml:"search"`
	Storage StorageSettings `toml:"storage"`
	Cache   CacheSettings   `toml:"cache"`
}

// SearchSettings tunes the search orchestrator.
type SearchSettings struct {
	MaxResults           int     `toml:"max_results"`
	Timeout              string  `toml:"timeout"`
	MaxSearches          int     `toml:"max_searches"`
	MinSearchesBeforeCut int     `toml:"min_searches_before_cut"`
	AccuracyMargin       float64 `toml:"accuracy_margin"`
	PrefilterMargin      float64 `toml:"prefilter_margin"`
}

// StorageSettings selects the storage backend.
type StorageSettings struct {
	Backend string `toml:"backend"` // "badger" or "sqlite"
}

// CacheSettings sizes the word lookup cache.
type CacheSettings struct {
	WordCacheSize int64 `toml:"word_cache_size"`
}

// Config is the fully loaded configuration.
type Config struct {
	Settings       Settings
	Rules          TokenizerRules
	Countries      map[string]CountrySettings
	SpecialPhrases []SpecialPhrase

	timeout time.Duration
}

// Default returns the configuration built from the embedded defaults.
func Default() (*Config, error) {
	data, err := defaultsFS.ReadFile(defaultSettingsFile)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := toml.Unmarshal(data, &cfg.Settings); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, defaultSettingsFile, err)
	}
	if err := cfg.loadDefaults(true, true, true); err != nil {
		return nil, err
	}
	return cfg, cfg.finish()
}

// Load reads a TOML settings file. Rule files are resolved relative to the
// settings file; sections that name no file fall back to the embedded defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	cfg := &Config{}
	if err := toml.Unmarshal(data, &cfg.Settings); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	base := filepath.Dir(path)
	s := &cfg.Settings

	if s.Tokenizer.Rules != "" {
		if err := readYAMLFile(resolve(base, s.Tokenizer.Rules), &cfg.Rules); err != nil {
			return nil, err
		}
	}
	if s.Countries.File != "" {
		if err := readYAMLFile(resolve(base, s.Countries.File), &cfg.Countries); err != nil {
			return nil, err
		}
	}
	for _, pattern := range s.SpecialPhrases.Files {
		matches, err := doublestar.FilepathGlob(resolve(base, pattern))
		if err != nil {
			return nil, fmt.Errorf("%w: special phrase pattern %q: %w", ErrInvalidConfig, pattern, err)
		}
		sort.Strings(matches)
		for _, m := range matches {
			var phrases []SpecialPhrase
			if err := readYAMLFile(m, &phrases); err != nil {
				return nil, err
			}
			cfg.SpecialPhrases = append(cfg.SpecialPhrases, phrases...)
		}
	}

	if err := cfg.loadDefaults(s.Tokenizer.Rules == "", s.Countries.File == "", len(s.SpecialPhrases.Files) == 0); err != nil {
		return nil, err
	}
	return cfg, cfg.finish()
}

func (c *Config) loadDefaults(rules, countries, phrases bool) error {
	if rules {
		if err := readYAMLFS(defaultsFS, defaultRulesFile, &c.Rules); err != nil {
			return err
		}
	}
	if countries {
		if err := readYAMLFS(defaultsFS, defaultCountriesFile, &c.Countries); err != nil {
			return err
		}
	}
	if phrases {
		matches, err := doublestar.Glob(defaultsFS, defaultPhrasesGlob)
		if err != nil {
			return err
		}
		sort.Strings(matches)
		for _, m := range matches {
			var list []SpecialPhrase
			if err := readYAMLFS(defaultsFS, m, &list); err != nil {
				return err
			}
			c.SpecialPhrases = append(c.SpecialPhrases, list...)
		}
	}
	return nil
}

// finish fills in defaults and validates the search section.
func (c *Config) finish() error {
	s := &c.Settings.Search
	if s.MaxResults <= 0 {
		s.MaxResults = 10
	}
	if s.MaxSearches <= 0 {
		s.MaxSearches = 50
	}
	if s.MinSearchesBeforeCut <= 0 {
		s.MinSearchesBeforeCut = 15
	}
	if s.AccuracyMargin <= 0 {
		s.AccuracyMargin = 2.0
	}
	if s.PrefilterMargin <= 0 {
		s.PrefilterMargin = 0.5
	}
	if s.Timeout == "" {
		s.Timeout = "2s"
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil || d <= 0 {
		return fmt.Errorf("%w: search timeout %q", ErrInvalidConfig, s.Timeout)
	}
	c.timeout = d

	switch c.Settings.Storage.Backend {
	case "":
		c.Settings.Storage.Backend = "badger"
	case "badger", "sqlite":
	default:
		return fmt.Errorf("%w: unknown storage backend %q", ErrInvalidConfig, c.Settings.Storage.Backend)
	}
	if c.Settings.Cache.WordCacheSize <= 0 {
		c.Settings.Cache.WordCacheSize = 10000
	}

	for cc, cs := range c.Countries {
		if len(cc) != 2 {
			return fmt.Errorf("%w: country code %q", ErrInvalidConfig, cc)
		}
		if cs.Postcode != nil && cs.Postcode.Pattern == "" {
			return fmt.Errorf("%w: empty postcode pattern for %s", ErrInvalidRule, cc)
		}
	}
	for _, sp := range c.SpecialPhrases {
		if sp.Phrase == "" || sp.Class == "" || sp.Type == "" {
			return fmt.Errorf("%w: incomplete special phrase %+v", ErrInvalidRule, sp)
		}
		if sp.Operator != "" && sp.Operator != "in" && sp.Operator != "near" && sp.Operator != "-" {
			return fmt.Errorf("%w: special phrase operator %q", ErrInvalidRule, sp.Operator)
		}
	}
	return nil
}

// SearchTimeout returns the parsed search deadline.
func (c *Config) SearchTimeout() time.Duration {
	return c.timeout
}

// Fingerprint hashes the rules that influence the content of the word
// index. Two configurations with the same fingerprint produce the same
// tokens for the same names.
func (c *Config) Fingerprint() uint64 {
	relevant := struct {
		Normalization   []RuleStep       `yaml:"normalization"`
		Transliteration []RuleStep       `yaml:"transliteration"`
		Variants        []VariantSection `yaml:"variants"`
		Mutations       []Mutation       `yaml:"mutations"`
		Mode            string           `yaml:"mode"`
	}{c.Rules.Normalization, c.Rules.Transliteration, c.Rules.Variants, c.Rules.Mutations, c.Rules.Mode}
	data, err := yaml.Marshal(relevant)
	if err != nil {
		// only reachable with a broken marshaler implementation
		panic(err)
	}
	return xxhash.Sum64(data)
}

func resolve(base, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

func readYAMLFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidRule, path, err)
	}
	return nil
}

func readYAMLFS(fsys fs.FS, path string, out any) error {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidRule, path, err)
	}
	return nil
}
