package analysis

import (
	"strings"
	"unicode"

	"github.com/tidwall/gjson"

	"github.com/poiesic/placefinder/core"
	"github.com/poiesic/placefinder/query"
)

// tokenFromRow creates a query token from a word index row and assigns its
// base penalty.
func tokenFromRow(row *core.WordRow) *query.Token {
	penalty := 0.0
	switch row.Type {
	case core.WordPartial:
		penalty += 0.3
	case core.WordFull:
		if len([]rune(row.WordToken)) == 1 && row.WordToken == row.Word {
			if isDigits(row.Word) {
				penalty += 0.2
			} else {
				penalty += 0.3
			}
		}
	case core.WordHousenumber:
		hasDigit := false
		for _, c := range row.WordToken {
			if unicode.IsDigit(c) {
				hasDigit = true
			} else if c != ' ' {
				penalty += 0.1
			}
		}
		if !hasDigit {
			penalty += 0.2 * float64(len([]rune(row.WordToken))-1)
		}
	case core.WordCountry:
		if len(row.WordToken) == 1 {
			penalty += 0.3
		}
	}

	lookup := row.Word
	if l := gjson.Get(row.Info, "lookup"); l.Exists() {
		lookup = l.String()
	}
	if i := strings.IndexByte(lookup, '@'); i >= 0 {
		lookup = lookup[:i]
	}
	if lookup == "" {
		lookup = row.WordToken
	}

	tok := &query.Token{
		Penalty:    penalty,
		ID:         row.ID,
		Count:      max(row.Count, 1),
		AddrCount:  max(row.AddrCount, 1),
		LookupWord: lookup,
		WordToken:  row.WordToken,
	}
	if row.Type == core.WordSpecial {
		tok.Category = core.Category{
			Class: gjson.Get(row.Info, "class").String(),
			Type:  gjson.Get(row.Info, "type").String(),
		}
	}
	return tok
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// rematch adds a penalty for the difference between the token's lookup
// word and the normalized text it was matched against. Insertions and
// deletions at the word boundary are cheap, replacements cost the longer
// of the two changed spans.
func rematch(tok *query.Token, norm string) {
	if tok.LookupWord == "" {
		return
	}
	a := []rune(strings.ToLower(tok.LookupWord))
	b := []rune(norm)
	distance := 0
	for _, op := range editOpcodes(a, b) {
		switch {
		case (op.tag == opDelete || op.tag == opInsert) && (op.aFrom == 0 || op.aTo == len(a)):
			distance++
		case op.tag == opReplace:
			distance += max(op.aTo-op.aFrom, op.bTo-op.bFrom)
		case op.tag != opEqual:
			distance += abs((op.aTo - op.aFrom) - (op.bTo - op.bFrom))
		}
	}
	tok.Penalty += float64(distance) / float64(len(a))
}

type opTag int

const (
	opEqual opTag = iota
	opReplace
	opDelete
	opInsert
)

// opcode describes how a[aFrom:aTo] turns into b[bFrom:bTo].
type opcode struct {
	tag        opTag
	aFrom, aTo int
	bFrom, bTo int
}

// editOpcodes computes a minimal Levenshtein alignment of a and b and
// groups it into runs of equal and changed characters.
func editOpcodes(a, b []rune) []opcode {
	n, m := len(a), len(b)
	d := make([][]int, n+1)
	for i := range d {
		d[i] = make([]int, m+1)
		d[i][0] = i
	}
	for j := 0; j <= m; j++ {
		d[0][j] = j
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			d[i][j] = min(d[i-1][j-1]+cost, d[i-1][j]+1, d[i][j-1]+1)
		}
	}

	// backtrack; steps are collected in reverse
	type step struct {
		equal  bool
		da, db int
	}
	var steps []step
	i, j := n, m
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && a[i-1] == b[j-1] && d[i][j] == d[i-1][j-1]:
			steps = append(steps, step{equal: true, da: 1, db: 1})
			i, j = i-1, j-1
		case i > 0 && j > 0 && d[i][j] == d[i-1][j-1]+1:
			steps = append(steps, step{da: 1, db: 1})
			i, j = i-1, j-1
		case i > 0 && d[i][j] == d[i-1][j]+1:
			steps = append(steps, step{da: 1})
			i--
		default:
			steps = append(steps, step{db: 1})
			j--
		}
	}

	var ops []opcode
	ai, bi := 0, 0
	for k := len(steps) - 1; k >= 0; {
		s := steps[k]
		start := opcode{aFrom: ai, bFrom: bi}
		if s.equal {
			for k >= 0 && steps[k].equal {
				ai, bi = ai+1, bi+1
				k--
			}
			start.tag = opEqual
		} else {
			for k >= 0 && !steps[k].equal {
				ai += steps[k].da
				bi += steps[k].db
				k--
			}
			switch {
			case ai == start.aFrom:
				start.tag = opInsert
			case bi == start.bFrom:
				start.tag = opDelete
			default:
				start.tag = opReplace
			}
		}
		start.aTo, start.bTo = ai, bi
		ops = append(ops, start)
	}
	return ops
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// operatorOf returns the operator of a special phrase row.
func operatorOf(row *core.WordRow) string {
	return gjson.Get(row.Info, "op").String()
}
