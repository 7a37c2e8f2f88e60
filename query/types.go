package query

import (
	"fmt"
	"strings"

	"github.com/poiesic/placefinder/core"
)

// PhraseType designates what kind of information a phrase contains.
type PhraseType int

const (
	// PhraseAny is free-form text.
	PhraseAny PhraseType = iota
	PhraseAmenity
	PhraseStreet
	PhraseCity
	PhraseCounty
	PhraseState
	PhrasePostcode
	PhraseCountry
)

var phraseTypeNames = []string{"any", "amenity", "street", "city", "county", "state", "postcode", "country"}

func (p PhraseType) String() string {
	if int(p) < len(phraseTypeNames) {
		return phraseTypeNames[p]
	}
	return fmt.Sprintf("PhraseType(%d)", int(p))
}

// ParsePhraseType converts a designation name into a PhraseType.
func ParsePhraseType(s string) (PhraseType, error) {
	for i, n := range phraseTypeNames {
		if strings.EqualFold(n, s) {
			return PhraseType(i), nil
		}
	}
	return PhraseAny, fmt.Errorf("%w: %q", ErrUnknownPhraseType, s)
}

// CompatibleWith reports whether a token of the given type may appear in a
// phrase of this type. isFullPhrase is true when the token covers the whole phrase.
func (p PhraseType) CompatibleWith(ttype TokenType, isFullPhrase bool) bool {
	switch p {
	case PhraseAny:
		return true
	case PhraseAmenity:
		return ttype == TokenWord || ttype == TokenPartial ||
			(isFullPhrase && ttype == TokenNearItem) ||
			(!isFullPhrase && ttype == TokenQualifier)
	case PhraseStreet:
		return ttype == TokenWord || ttype == TokenPartial || ttype == TokenHousenumber
	case PhrasePostcode:
		return ttype == TokenPostcode
	case PhraseCountry:
		return ttype == TokenCountry
	}
	return ttype == TokenWord || ttype == TokenPartial
}

// Phrase is a designated piece of input text.
type Phrase struct {
	Type PhraseType
	Text string
}

// BreakType is the kind of separation between two adjacent terms.
// The values double as the characters used in postcode matching.
type BreakType byte

const (
	BreakStart      BreakType = '<'
	BreakEnd        BreakType = '>'
	BreakPhrase     BreakType = ','
	BreakSoftPhrase BreakType = ':'
	BreakWord       BreakType = ' '
	BreakPart       BreakType = '-'
	BreakToken      BreakType = '`'
)

// IsFullTerm reports whether the break ends a complete word.
func (b BreakType) IsFullTerm() bool {
	return b != BreakToken && b != BreakPart
}

// BreakTypeFromSeparator maps an input separator to a break type.
func BreakTypeFromSeparator(sep string) BreakType {
	switch sep {
	case " ":
		return BreakWord
	case "-":
		return BreakPart
	case ":":
		return BreakSoftPhrase
	}
	return BreakPhrase
}

// BreakPenalty is the penalty attached to a node of the given break type.
func BreakPenalty(b BreakType) float64 {
	switch b {
	case BreakSoftPhrase:
		return -0.5
	case BreakWord:
		return 0.1
	case BreakPart:
		return 0.2
	case BreakToken:
		return 0.4
	}
	return 0.0
}

// TransitionPenalty is paid when a role assignment changes at a break.
func TransitionPenalty(b BreakType) float64 {
	switch b {
	case BreakWord:
		return 0.1
	case BreakPart:
		return 0.2
	case BreakToken:
		return 0.4
	}
	return 0.0
}

// TokenType is the role a token can play in a query.
type TokenType byte

const (
	TokenWord        TokenType = 'W'
	TokenPartial     TokenType = 'w'
	TokenHousenumber TokenType = 'H'
	TokenPostcode    TokenType = 'P'
	TokenCountry     TokenType = 'C'
	TokenQualifier   TokenType = 'Q'
	TokenNearItem    TokenType = 'N'
)

// tokenTypeOrder fixes the iteration order over token types.
var tokenTypeOrder = []TokenType{
	TokenWord, TokenPartial, TokenHousenumber, TokenPostcode,
	TokenCountry, TokenQualifier, TokenNearItem,
}

func (t TokenType) String() string {
	switch t {
	case TokenWord:
		return "word"
	case TokenPartial:
		return "partial"
	case TokenHousenumber:
		return "housenumber"
	case TokenPostcode:
		return "postcode"
	case TokenCountry:
		return "country"
	case TokenQualifier:
		return "qualifier"
	case TokenNearItem:
		return "near_item"
	}
	return fmt.Sprintf("TokenType(%c)", byte(t))
}

// Token is a recognized or synthesized unit of meaning.
// The Type decides which of the optional fields carry meaning:
// Category is set for qualifiers and near items only.
type Token struct {
	Type       TokenType
	Penalty    float64
	ID         int
	Count      int
	AddrCount  int
	LookupWord string // canonical form used for result matching
	WordToken  string // normalized string the token was looked up with
	Category   core.Category
}

func (t *Token) String() string {
	return fmt.Sprintf("%s(%d,%q,%.3f)", t.Type, t.ID, t.LookupWord, t.Penalty)
}

// TokenRange is a half-open interval [Start, End) over node indices.
type TokenRange struct {
	Start int
	End   int
}

// Len returns the number of terms covered.
func (r TokenRange) Len() int {
	return r.End - r.Start
}

// Precedes reports whether r ends at or before o starts.
func (r TokenRange) Precedes(o TokenRange) bool {
	return r.End <= o.Start
}

// Follows reports whether r starts at or after o ends.
func (r TokenRange) Follows(o TokenRange) bool {
	return r.Start >= o.End
}

// ReplaceEnd returns a copy with a new end position.
func (r TokenRange) ReplaceEnd(end int) TokenRange {
	return TokenRange{Start: r.Start, End: end}
}

// Split cuts the range at index i into [Start, i) and [i, End).
func (r TokenRange) Split(i int) (TokenRange, TokenRange) {
	return TokenRange{Start: r.Start, End: i}, TokenRange{Start: i, End: r.End}
}

func (r TokenRange) String() string {
	return fmt.Sprintf("[%d:%d]", r.Start, r.End)
}

// TokenList is the list of tokens of one type that span from a node to End.
type TokenList struct {
	End    int
	Type   TokenType
	Tokens []*Token
}

// QueryNode is a break position between two terms.
type QueryNode struct {
	BType   BreakType
	PType   PhraseType
	Penalty float64

	// Lookup and normalized text of the term ending at this node.
	TermLookup     string
	TermNormalized string

	Starting []*TokenList
	// Partial covers the gap to the next node.
	Partial *Token
}

// HasTokens reports whether tokens of the given type end at end.
func (n *QueryNode) HasTokens(end int, ttype TokenType) bool {
	if ttype == TokenPartial {
		return n.Partial != nil
	}
	return n.tokenList(end, ttype) != nil
}

// NameAddressRatio returns how often the partial starting here is used in
// names compared to addresses. 0.5 if unknown.
func (n *QueryNode) NameAddressRatio() float64 {
	if n.Partial == nil {
		return 0.5
	}
	count := float64(n.Partial.Count)
	total := count + float64(n.Partial.AddrCount)
	if total == 0 {
		return 0.5
	}
	return count / total
}

func (n *QueryNode) tokenList(end int, ttype TokenType) *TokenList {
	for _, tl := range n.Starting {
		if tl.End == end && tl.Type == ttype {
			return tl
		}
	}
	return nil
}
