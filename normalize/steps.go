package normalize

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/poiesic/placefinder/config"
)

// step is one compiled rewrite of a rule chain.
type step func(string) string

// chain applies its steps in order and trims the result.
type chain []step

func (c chain) apply(s string) string {
	for _, st := range c {
		s = st(s)
	}
	return strings.TrimSpace(s)
}

// compileChain turns configured rule steps into a chain.
// x/text transformers keep internal state, so they are built per call.
func compileChain(section string, steps []config.RuleStep) (chain, error) {
	out := make(chain, 0, len(steps))
	for i, rs := range steps {
		st, err := compileStep(rs)
		if err != nil {
			return nil, fmt.Errorf("%w: %s step %d (%s): %w", ErrInvalidRule, section, i, rs.Op, err)
		}
		out = append(out, st)
	}
	return out, nil
}

func compileStep(rs config.RuleStep) (step, error) {
	switch rs.Op {
	case "nfc":
		return norm.NFC.String, nil
	case "nfd":
		return norm.NFD.String, nil
	case "nfkc":
		return norm.NFKC.String, nil
	case "nfkd":
		return norm.NFKD.String, nil
	case "lower":
		return func(s string) string {
			return cases.Lower(language.Und).String(s)
		}, nil
	case "strip-marks":
		return func(s string) string {
			t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
			out, _, err := transform.String(t, s)
			if err != nil {
				return s
			}
			return out
		}, nil
	case "ascii":
		return func(s string) string {
			t := runes.Map(func(r rune) rune {
				if r > unicode.MaxASCII {
					return ' '
				}
				return r
			})
			out, _, err := transform.String(t, s)
			if err != nil {
				return s
			}
			return out
		}, nil
	case "collapse-spaces":
		return func(s string) string {
			return strings.Join(strings.Fields(s), " ")
		}, nil
	case "replace":
		if len(rs.Replace) == 0 {
			return nil, fmt.Errorf("empty replacement table")
		}
		keys := make([]string, 0, len(rs.Replace))
		for k := range rs.Replace {
			if k == "" {
				return nil, fmt.Errorf("empty replacement source")
			}
			keys = append(keys, k)
		}
		// longest sources first so that they win over their prefixes
		slices.SortFunc(keys, func(a, b string) int {
			if len(a) != len(b) {
				return len(b) - len(a)
			}
			return strings.Compare(a, b)
		})
		pairs := make([]string, 0, 2*len(keys))
		for _, k := range keys {
			pairs = append(pairs, k, rs.Replace[k])
		}
		return strings.NewReplacer(pairs...).Replace, nil
	case "keep":
		if rs.Arg == "" {
			return nil, fmt.Errorf("empty character class")
		}
		re, err := regexp.Compile("[^" + rs.Arg + "]+")
		if err != nil {
			return nil, err
		}
		return func(s string) string {
			return re.ReplaceAllString(s, " ")
		}, nil
	case "regex":
		if rs.Pattern == "" {
			return nil, fmt.Errorf("empty pattern")
		}
		re, err := regexp.Compile(rs.Pattern)
		if err != nil {
			return nil, err
		}
		repl := rs.Arg
		return func(s string) string {
			return re.ReplaceAllString(s, repl)
		}, nil
	}
	return nil, fmt.Errorf("unknown operation")
}
