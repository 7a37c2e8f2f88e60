// Package normalize turns free text into normalized and ASCII-searchable
// forms using configurable rewrite rules.
package normalize

import (
	"fmt"
	"slices"
	"strings"

	"github.com/poiesic/placefinder/config"
)

// Normalizer holds compiled rewrite rules. It has no per-call state and is
// safe for concurrent use.
type Normalizer struct {
	normalization      chain
	queryNormalization chain
	transliteration    chain
	variants           *variantTrie
	mutations          []*mutation
	variantOnly        bool
}

// New compiles the tokenizer rules. Malformed rules are reported as
// errors wrapping ErrInvalidRule.
func New(rules config.TokenizerRules) (*Normalizer, error) {
	n := &Normalizer{variants: newVariantTrie()}
	var err error

	if n.normalization, err = compileChain("normalization", rules.Normalization); err != nil {
		return nil, err
	}
	if len(rules.QueryNormalization) > 0 {
		if n.queryNormalization, err = compileChain("query-normalization", rules.QueryNormalization); err != nil {
			return nil, err
		}
	} else {
		n.queryNormalization = n.normalization
	}
	if n.transliteration, err = compileChain("transliteration", rules.Transliteration); err != nil {
		return nil, err
	}

	for _, section := range rules.Variants {
		for _, rule := range section.Words {
			if err := compileVariantRule(rule, n.Normalize, n.variants); err != nil {
				return nil, err
			}
		}
	}

	for _, m := range rules.Mutations {
		mut, err := compileMutation(m)
		if err != nil {
			return nil, err
		}
		n.mutations = append(n.mutations, mut)
	}

	switch rules.Mode {
	case "", "variant-only":
		n.variantOnly = rules.Mode == "variant-only"
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidRule, rules.Mode)
	}

	return n, nil
}

// Normalize applies the import-time normalization rules.
func (n *Normalizer) Normalize(text string) string {
	return n.normalization.apply(text)
}

// SearchNormalize applies the query-time normalization rules.
func (n *Normalizer) SearchNormalize(text string) string {
	return n.queryNormalization.apply(text)
}

// Transliterate converts normalized text into its ASCII lookup form.
func (n *Normalizer) Transliterate(text string) string {
	return n.transliteration.apply(text)
}

// VariantsASCII returns every ASCII-searchable spelling of a normalized
// name implied by the variant and mutation rules. The result is sorted and
// free of duplicates. It is empty only for empty input.
func (n *Normalizer) VariantsASCII(normName string) []string {
	normName = strings.TrimSpace(normName)
	if normName == "" {
		return nil
	}

	variants := generateWordVariants(n.variants, normName)
	if n.variantOnly {
		variants = slices.DeleteFunc(variants, func(v string) bool { return v == normName })
	}
	for _, m := range n.mutations {
		variants = m.generate(variants)
	}

	out := make([]string, 0, len(variants))
	for _, v := range variants {
		if t := n.Transliterate(v); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		// nothing survived transliteration, keep the name searchable as is
		out = append(out, normName)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
