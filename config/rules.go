package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// RuleStep is one step of a normalization or transliteration chain.
//
// In YAML a step is either a bare operation name ("lower", "nfkc",
// "strip-marks", "ascii", "collapse-spaces") or a single-key mapping:
//
//	- replace: {"ß": "ss"}
//	- keep: "\\pL\\pN "
//	- regex: {pattern: "(\\d)([a-z])", replace: "$1 $2"}
type RuleStep struct {
	Op      string
	Arg     string
	Pattern string
	Replace map[string]string
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *RuleStep) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		s.Op = value.Value
		return nil
	case yaml.MappingNode:
		if len(value.Content) != 2 {
			return fmt.Errorf("%w: line %d: rule step needs exactly one operation", ErrInvalidRule, value.Line)
		}
		s.Op = value.Content[0].Value
		arg := value.Content[1]
		switch s.Op {
		case "replace":
			return arg.Decode(&s.Replace)
		case "regex":
			var r RegexReplacement
			if err := arg.Decode(&r); err != nil {
				return err
			}
			s.Pattern, s.Arg = r.Pattern, r.Replace
			return nil
		default:
			s.Arg = arg.Value
			return nil
		}
	}
	return fmt.Errorf("%w: line %d: unexpected rule step", ErrInvalidRule, value.Line)
}

// MarshalYAML implements yaml.Marshaler so that rule sets can be fingerprinted.
func (s RuleStep) MarshalYAML() (any, error) {
	switch {
	case s.Replace != nil:
		return map[string]any{s.Op: s.Replace}, nil
	case s.Pattern != "":
		return map[string]any{s.Op: RegexReplacement{Pattern: s.Pattern, Replace: s.Arg}}, nil
	case s.Arg != "":
		return map[string]any{s.Op: s.Arg}, nil
	}
	return s.Op, nil
}

// RegexReplacement replaces all matches of Pattern with Replace.
type RegexReplacement struct {
	Pattern string `yaml:"pattern"`
	Replace string `yaml:"replace"`
}

// VariantSection groups variant rules, e.g. "~strasse -> str".
type VariantSection struct {
	Words []string `yaml:"words"`
}

// Mutation replaces every match of Pattern with each of the replacements.
type Mutation struct {
	Pattern      string   `yaml:"pattern"`
	Replacements []string `yaml:"replacements"`
}

// PreprocessingStep is a query preprocessing step.
type PreprocessingStep struct {
	Step         string             `yaml:"step"`
	Replacements []RegexReplacement `yaml:"replacements,omitempty"`
}

// TokenizerRules holds everything needed to build the normalizer and the
// query analyzer.
type TokenizerRules struct {
	Normalization      []RuleStep          `yaml:"normalization"`
	QueryNormalization []RuleStep          `yaml:"query-normalization,omitempty"`
	Transliteration    []RuleStep          `yaml:"transliteration"`
	Variants           []VariantSection    `yaml:"variants,omitempty"`
	Mutations          []Mutation          `yaml:"mutations,omitempty"`
	Mode               string              `yaml:"mode,omitempty"`
	QueryPreprocessing []PreprocessingStep `yaml:"query-preprocessing,omitempty"`
}

// PostcodeSettings describes the postcode format of a country.
// In Pattern, 'd' stands for a digit and 'l' for a letter.
type PostcodeSettings struct {
	Pattern string `yaml:"pattern"`
	Output  string `yaml:"output,omitempty"`
}

// CountrySettings holds per-country configuration.
type CountrySettings struct {
	Names    map[string]string `yaml:"names"`
	Postcode *PostcodeSettings `yaml:"postcode,omitempty"`
}

// SpecialPhrase maps a phrase to an OSM category.
type SpecialPhrase struct {
	Phrase   string `yaml:"phrase"`
	Class    string `yaml:"class"`
	Type     string `yaml:"type"`
	Operator string `yaml:"operator,omitempty"` // "in", "near" or empty
}
