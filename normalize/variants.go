package normalize

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// maxPartialVariants caps the number of intermediate variants. Names that
// produce more are only used in their unchanged form.
const maxPartialVariants = 128

var (
	variantRuleRe = regexp.MustCompile(`^(.*?)(\|)?([=-])>(.*)$`)
	variantWordRe = regexp.MustCompile(`^([~^]?)([^~$^]*)([~$]?)$`)
)

// variantWord is a parsed source term of a variant rule.
type variantWord struct {
	norm     string
	preflag  string
	postflag string
}

// variantTrie maps replacement sources to their replacements.
type variantTrie struct {
	children map[byte]*variantTrie
	repl     []string
	full     string
	terminal bool
}

func newVariantTrie() *variantTrie {
	return &variantTrie{children: make(map[byte]*variantTrie)}
}

func (t *variantTrie) add(src, repl string) {
	node := t
	for i := 0; i < len(src); i++ {
		next, ok := node.children[src[i]]
		if !ok {
			next = newVariantTrie()
			node.children[src[i]] = next
		}
		node = next
	}
	node.terminal = true
	node.full = src
	if !slices.Contains(node.repl, repl) {
		node.repl = append(node.repl, repl)
	}
}

// longestPrefix returns the longest source that is a prefix of s.
func (t *variantTrie) longestPrefix(s string) (string, []string, bool) {
	node := t
	var best *variantTrie
	for i := 0; i < len(s); i++ {
		next, ok := node.children[s[i]]
		if !ok {
			break
		}
		node = next
		if node.terminal {
			best = node
		}
	}
	if best == nil {
		return "", nil, false
	}
	return best.full, best.repl, true
}

func (t *variantTrie) empty() bool {
	return len(t.children) == 0
}

var flagMatch = map[string]string{"^": "^ ", "$": " ^", "": " "}

// compileVariantRule parses a rule like "~strasse -> str" and adds the
// resulting source/replacement pairs to the trie. normFn normalizes the
// terms of the rule.
//
// "->" keeps the source as an alternative, "=>" replaces it. A "|" before
// the arrow disables decomposition. "~" before or after a source term allows
// it to be attached to or separated from the rest of the word; "^" and "$"
// anchor it at the start or end of the name.
func compileVariantRule(rule string, normFn func(string) string, trie *variantTrie) error {
	m := variantRuleRe.FindStringSubmatch(rule)
	if m == nil {
		return fmt.Errorf("%w: syntax error in %q", ErrInvalidVariantRule, rule)
	}
	decompose := m[2] == ""
	keepSource := m[3] == "-"

	var sources []variantWord
	for _, term := range strings.Split(m[1], ",") {
		w, ok, err := parseVariantWord(term, normFn)
		if err != nil {
			return fmt.Errorf("%w: %q: %w", ErrInvalidVariantRule, rule, err)
		}
		if ok {
			sources = append(sources, w)
		}
	}
	var repls []string
	for _, term := range strings.Split(m[4], ",") {
		if r := normFn(term); r != "" {
			repls = append(repls, r)
		}
	}

	if keepSource {
		for _, src := range sources {
			for _, v := range createVariants(src, src.norm, decompose) {
				trie.add(v[0], v[1])
			}
		}
	}
	for _, src := range sources {
		for _, repl := range repls {
			for _, v := range createVariants(src, repl, decompose) {
				trie.add(v[0], v[1])
			}
		}
	}
	return nil
}

func parseVariantWord(term string, normFn func(string) string) (variantWord, bool, error) {
	term = strings.TrimSpace(term)
	m := variantWordRe.FindStringSubmatch(term)
	if m == nil || (m[1] == "~" && m[3] == "~") {
		return variantWord{}, false, fmt.Errorf("invalid variant word %q", term)
	}
	n := normFn(m[2])
	if n == "" {
		return variantWord{}, false, nil
	}
	return variantWord{norm: n, preflag: m[1], postflag: m[3]}, true, nil
}

// createVariants returns the (source, replacement) pairs for one term.
func createVariants(src variantWord, repl string, decompose bool) [][2]string {
	var out [][2]string
	switch {
	case src.preflag == "~":
		postfix := flagMatch[src.postflag]
		s, r := src.norm+postfix, repl+postfix
		out = append(out, [2]string{s, r}, [2]string{" " + s, " " + r})
		if decompose {
			out = append(out, [2]string{s, " " + r}, [2]string{" " + s, r})
		}
	case src.postflag == "~":
		prefix := flagMatch[src.preflag]
		s, r := prefix+src.norm, prefix+repl
		out = append(out, [2]string{s, r}, [2]string{s + " ", r + " "})
		if decompose {
			out = append(out, [2]string{s, r + " "}, [2]string{s + " ", r})
		}
	default:
		prefix, postfix := flagMatch[src.preflag], flagMatch[src.postflag]
		out = append(out, [2]string{prefix + src.norm + postfix, prefix + repl + postfix})
	}
	return out
}

// generateWordVariants scans the anchored name for rule sources and forks
// the partial results at each match.
func generateWordVariants(trie *variantTrie, normName string) []string {
	if trie.empty() {
		return []string{normName}
	}
	baseform := "^ " + normName + " ^"
	baselen := len(baseform)
	partials := []string{""}

	startpos := 0
	pos := 0
	forceSpace := false
	for pos < baselen {
		full, repl, ok := trie.longestPrefix(baseform[pos:])
		if !ok {
			pos++
			forceSpace = false
			continue
		}
		done := baseform[startpos:pos]
		next := make([]string, 0, len(partials)*len(repl))
		for _, v := range partials {
			for _, r := range repl {
				if !forceSpace || strings.HasPrefix(r, " ") {
					next = append(next, v+done+r)
				}
			}
		}
		if len(next) > maxPartialVariants {
			startpos = 0
			break
		}
		partials = next
		startpos = pos + len(full)
		if strings.HasSuffix(full, " ") {
			startpos--
			forceSpace = true
		}
		pos = startpos
	}

	if startpos == 0 {
		return []string{normName}
	}

	rest := ""
	if startpos < baselen {
		rest = baseform[startpos:]
	}
	out := make([]string, 0, len(partials))
	for _, v := range partials {
		name := strings.Trim(v+rest, "^ ")
		name = strings.Join(strings.Fields(strings.ReplaceAll(name, "^", " ")), " ")
		if name != "" && !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}
