package ingestion

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/poiesic/placefinder/config"
	"github.com/poiesic/placefinder/core"
	"github.com/poiesic/placefinder/normalize"
)

// placeWords holds the word rows derived from a single place.
type placeWords struct {
	name    []*core.WordRow
	address []*core.WordRow
	// rows that are indexed but not part of a token vector
	extra []*core.WordRow
}

// wordBuilder derives word rows from names using the import-time
// normalization rules.
type wordBuilder struct {
	norm *normalize.Normalizer
}

// lookupForm returns the transliterated lookup string of normalized text
// with single spaces between terms.
func (b wordBuilder) lookupForm(normalized string) string {
	return strings.Join(strings.Fields(b.norm.Transliterate(normalized)), " ")
}

// nameRows returns one full word row per spelling variant of name and a
// partial row per distinct term of the variants.
func (b wordBuilder) nameRows(name string) []*core.WordRow {
	normName := strings.TrimSpace(b.norm.Normalize(name))
	if normName == "" {
		return nil
	}
	var (
		rows     []*core.WordRow
		partials = map[string]struct{}{}
	)
	for _, variant := range b.norm.VariantsASCII(normName) {
		rows = append(rows, &core.WordRow{WordToken: variant, Type: core.WordFull, Word: normName})
		for _, term := range strings.Fields(variant) {
			if _, ok := partials[term]; ok {
				continue
			}
			partials[term] = struct{}{}
			rows = append(rows, &core.WordRow{WordToken: term, Type: core.WordPartial})
		}
	}
	return rows
}

func (b wordBuilder) housenumberRow(hnr string) *core.WordRow {
	normalized := strings.TrimSpace(b.norm.Normalize(hnr))
	token := b.lookupForm(normalized)
	if token == "" {
		return nil
	}
	return &core.WordRow{WordToken: token, Type: core.WordHousenumber, Word: normalized}
}

func (b wordBuilder) postcodeRow(postcode string) *core.WordRow {
	token := b.lookupForm(b.norm.Normalize(postcode))
	if token == "" {
		return nil
	}
	return &core.WordRow{
		WordToken: token,
		Type:      core.WordPostcode,
		Word:      strings.ToUpper(strings.TrimSpace(postcode)),
	}
}

// countryRows returns a country row for every spelling of every name.
func (b wordBuilder) countryRows(cc string, names map[string]string) []*core.WordRow {
	var rows []*core.WordRow
	for _, key := range sortedKeys(names) {
		normName := strings.TrimSpace(b.norm.Normalize(names[key]))
		for _, variant := range b.norm.VariantsASCII(normName) {
			rows = append(rows, &core.WordRow{WordToken: variant, Type: core.WordCountry, Word: cc})
		}
	}
	return rows
}

type phraseInfo struct {
	Class string `json:"class"`
	Type  string `json:"type"`
	Op    string `json:"op,omitempty"`
}

// specialRow returns the row of a special phrase. The category is kept
// behind an '@' in Word so that one phrase may map to several categories.
func (b wordBuilder) specialRow(sp config.SpecialPhrase) (*core.WordRow, error) {
	normPhrase := strings.TrimSpace(b.norm.Normalize(sp.Phrase))
	token := b.lookupForm(normPhrase)
	if token == "" || sp.Class == "" || sp.Type == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPhrase, sp.Phrase)
	}
	switch sp.Operator {
	case "", "in", "near":
	default:
		return nil, fmt.Errorf("%w: %q: unknown operator %q", ErrInvalidPhrase, sp.Phrase, sp.Operator)
	}
	info, err := json.Marshal(phraseInfo{Class: sp.Class, Type: sp.Type, Op: sp.Operator})
	if err != nil {
		return nil, err
	}
	word := normPhrase + "@" + sp.Class + "=" + sp.Type
	if sp.Operator != "" {
		word += ":" + sp.Operator
	}
	return &core.WordRow{WordToken: token, Type: core.WordSpecial, Word: word, Info: string(info)}, nil
}

// placeRows derives all word rows of a place.
func (b wordBuilder) placeRows(p *core.Place) *placeWords {
	pw := &placeWords{}
	for _, name := range distinctValues(p.Names) {
		pw.name = append(pw.name, b.nameRows(name)...)
	}
	for _, part := range p.Address {
		pw.address = append(pw.address, b.nameRows(part)...)
	}
	if p.Housenumber != "" {
		if row := b.housenumberRow(p.Housenumber); row != nil {
			pw.extra = append(pw.extra, row)
		}
	}
	if p.Postcode != "" {
		if row := b.postcodeRow(p.Postcode); row != nil {
			pw.extra = append(pw.extra, row)
		}
	}
	if p.RankAddress == 4 && p.CountryCode != "" {
		pw.extra = append(pw.extra, b.countryRows(p.CountryCode, p.Names)...)
	}
	return pw
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func distinctValues(m map[string]string) []string {
	values := make([]string, 0, len(m))
	for _, k := range sortedKeys(m) {
		if !slices.Contains(values, m[k]) {
			values = append(values, m[k])
		}
	}
	return values
}
