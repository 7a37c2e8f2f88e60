package normalize

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/poiesic/placefinder/config"
)

// mutation rewrites every match of a pattern with each replacement in turn.
type mutation struct {
	pattern      *regexp.Regexp
	replacements []string
}

func compileMutation(m config.Mutation) (*mutation, error) {
	re, err := regexp.Compile(m.Pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidMutation, m.Pattern, err)
	}
	if re.NumSubexp() > 0 {
		return nil, fmt.Errorf("%w: pattern %q may not contain groups", ErrInvalidMutation, m.Pattern)
	}
	if len(m.Replacements) == 0 {
		return nil, fmt.Errorf("%w: pattern %q has no replacements", ErrInvalidMutation, m.Pattern)
	}
	return &mutation{pattern: re, replacements: m.Replacements}, nil
}

// generate yields all mutated forms of the names.
func (m *mutation) generate(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		parts := m.pattern.Split(name, -1)
		if len(parts) == 1 {
			out = append(out, name)
			continue
		}
		// every gap between two parts gets each replacement in turn
		idx := make([]int, len(parts)-1)
		for {
			var sb strings.Builder
			for i, p := range parts {
				sb.WriteString(p)
				if i < len(idx) {
					sb.WriteString(m.replacements[idx[i]])
				}
			}
			out = append(out, sb.String())
			if len(out) > maxPartialVariants {
				return out
			}

			i := len(idx) - 1
			for ; i >= 0; i-- {
				idx[i]++
				if idx[i] < len(m.replacements) {
					break
				}
				idx[i] = 0
			}
			if i < 0 {
				break
			}
		}
	}
	return out
}
