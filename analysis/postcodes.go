package analysis

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/poiesic/placefinder/config"
	"github.com/poiesic/placefinder/query"
)

// maxPostcodeTerms is the number of terms a postcode in free text may span.
const maxPostcodeTerms = 3

var outputRefRe = regexp.MustCompile(`\\(\d)`)

type countryPostcode struct {
	cc     string
	re     *regexp.Regexp
	output string
}

// PostcodeMatch is a postcode found in the query graph.
type PostcodeMatch struct {
	Range       query.TokenRange
	Postcode    string
	CountryCode string
	Term        string
}

// PostcodeParser detects postcodes in a query graph using the per-country
// postcode patterns.
type PostcodeParser struct {
	global   *regexp.Regexp
	patterns []countryPostcode
}

// NewPostcodeParser compiles the postcode patterns of all countries that
// define one. Countries are processed in code order.
func NewPostcodeParser(countries map[string]config.CountrySettings) (*PostcodeParser, error) {
	codes := make([]string, 0, len(countries))
	for cc, c := range countries {
		if c.Postcode != nil {
			codes = append(codes, cc)
		}
	}
	slices.Sort(codes)

	p := &PostcodeParser{}
	var unique []string
	for _, cc := range codes {
		pc := countries[cc].Postcode
		pattern := convertPostcodePattern(pc.Pattern)
		re, err := regexp.Compile(`^(` + pattern + `)[ ,:>]`)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPostcodePattern, cc, err)
		}
		p.patterns = append(p.patterns, countryPostcode{
			cc:     strings.ToLower(cc),
			re:     re,
			output: outputRefRe.ReplaceAllStringFunc(pc.Output, shiftGroupRef),
		})
		if !slices.Contains(unique, pattern) {
			unique = append(unique, pattern)
		}
	}
	if len(unique) > 0 {
		global, err := regexp.Compile(`^(?:[A-Z][A-Z][ -]?)?(?:` + strings.Join(unique, "|") + `)[ ,:>]`)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPostcodePattern, err)
		}
		p.global = global
	}
	return p, nil
}

// convertPostcodePattern turns the shorthand pattern into a regular
// expression: d is a digit, l an upper-case letter and a space may also be
// written as a hyphen.
func convertPostcodePattern(pattern string) string {
	var sb strings.Builder
	escaped := false
	for _, c := range pattern {
		switch {
		case escaped:
			sb.WriteRune(c)
			escaped = false
		case c == '\\':
			sb.WriteRune(c)
			escaped = true
		case c == 'd':
			sb.WriteString("[0-9]")
		case c == 'l':
			sb.WriteString("[A-Z]")
		case c == ' ':
			sb.WriteString("[ -]")
		default:
			sb.WriteRune(c)
		}
	}
	return sb.String()
}

// shiftGroupRef rewrites \N into a template reference. Group 1 of the
// compiled pattern is the whole postcode, so user groups are shifted by one.
func shiftGroupRef(ref string) string {
	n, _ := strconv.Atoi(ref[1:])
	return "${" + strconv.Itoa(n+1) + "}"
}

// Parse returns all postcodes found in the graph.
func (p *PostcodeParser) Parse(q *query.QueryStruct) []PostcodeMatch {
	if p.global == nil {
		return nil
	}
	nodes := q.Nodes
	terms := make([]string, len(nodes))
	for i := 1; i < len(nodes); i++ {
		terms[i] = strings.ToUpper(nodes[i].TermNormalized) + string(rune(nodes[i].BType))
	}

	var out []PostcodeMatch
	type matchKey struct {
		r  query.TokenRange
		pc string
	}
	seen := make(map[matchKey]bool)
	add := func(ms []PostcodeMatch) {
		for _, m := range ms {
			k := matchKey{m.Range, m.Postcode}
			if !seen[k] {
				seen[k] = true
				out = append(out, m)
			}
		}
	}

	for i := 0; i+1 < len(nodes); i++ {
		if !strings.ContainsRune("<,: ", rune(nodes[i].BType)) || nodes[i+1].BType == query.BreakToken {
			continue
		}
		// the phrase type of a term is kept on its start node
		switch nodes[i].PType {
		case query.PhraseAny:
			word := terms[i+1]
			for j := i + 2; j < len(nodes) && j-i <= maxPostcodeTerms; j++ {
				last := word[len(word)-1]
				if (last != ' ' && last != '-') || nodes[j].BType == query.BreakToken || nodes[j-1].PType != query.PhraseAny {
					break
				}
				word += terms[j]
			}
			add(p.matchWord(word, i, -1))
		case query.PhrasePostcode:
			if nodes[i].BType != query.BreakStart && nodes[i].BType != query.BreakPhrase {
				continue
			}
			end := i + 1
			word := terms[end]
			for end+1 < len(nodes) && nodes[end].BType != query.BreakPhrase && nodes[end].BType != query.BreakEnd {
				end++
				word += terms[end]
			}
			add(p.matchWord(word, i, end))
		}
	}
	return out
}

// matchWord tries all postcode patterns on word, which starts after node
// start. With fullEnd >= 0 the match must end exactly at that node.
func (p *PostcodeParser) matchWord(word string, start, fullEnd int) []PostcodeMatch {
	if !p.global.MatchString(word) {
		return nil
	}

	type candidate struct {
		text  string
		cc    string
		extra int
	}
	cands := []candidate{{text: word}}
	if len(word) > 3 && isUpperASCII(word[0]) && isUpperASCII(word[1]) {
		cc := strings.ToLower(word[:2])
		if word[2] == ' ' || word[2] == '-' {
			cands = append(cands, candidate{text: word[3:], cc: cc, extra: 1})
		} else {
			cands = append(cands, candidate{text: word[2:], cc: cc})
		}
	}

	var out []PostcodeMatch
	for _, cand := range cands {
		for _, pat := range p.patterns {
			if cand.cc != "" && cand.cc != pat.cc {
				continue
			}
			loc := pat.re.FindStringSubmatchIndex(cand.text)
			if loc == nil {
				continue
			}
			matched := cand.text[:loc[3]]
			end := start + 1 + cand.extra + strings.Count(matched, " ") + strings.Count(matched, "-")
			if fullEnd >= 0 && end != fullEnd {
				continue
			}
			pc := strings.ReplaceAll(matched, "-", " ")
			if pat.output != "" {
				pc = string(pat.re.ExpandString(nil, pat.output, cand.text, loc))
			}
			out = append(out, PostcodeMatch{
				Range:       query.TokenRange{Start: start, End: end},
				Postcode:    pc,
				CountryCode: pat.cc,
				Term:        cand.text[:loc[3]],
			})
		}
	}
	return out
}

func isUpperASCII(c byte) bool {
	return c >= 'A' && c <= 'Z'
}
