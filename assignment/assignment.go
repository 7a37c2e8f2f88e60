// Package assignment enumerates the possible interpretations of a query
// graph.
//
// An interpretation (TokenAssignment) labels spans of the query with the
// roles name, address, housenumber, postcode, country, qualifier and near
// item. Assignments are produced lazily, so a consumer may stop early.
package assignment

import (
	"fmt"
	"strings"

	"github.com/poiesic/placefinder/query"
)

// TypedRange is a range of the query together with the token type
// it is interpreted as.
type TypedRange struct {
	Type  query.TokenType
	Range query.TokenRange
}

// TokenAssignment is one complete interpretation of a query.
// Optional roles are nil when absent.
type TokenAssignment struct {
	Penalty     float64
	Name        *query.TokenRange
	Address     []query.TokenRange
	Housenumber *query.TokenRange
	Postcode    *query.TokenRange
	Country     *query.TokenRange
	NearItem    *query.TokenRange
	Qualifier   *query.TokenRange
}

// FromRanges creates an assignment from a sequence of typed ranges.
// Partial ranges become address parts. Full words never appear in a
// sequence and are ignored.
func FromRanges(ranges []TypedRange) TokenAssignment {
	var out TokenAssignment
	for _, tr := range ranges {
		r := tr.Range
		switch tr.Type {
		case query.TokenPartial:
			out.Address = append(out.Address, r)
		case query.TokenHousenumber:
			out.Housenumber = &r
		case query.TokenPostcode:
			out.Postcode = &r
		case query.TokenCountry:
			out.Country = &r
		case query.TokenNearItem:
			out.NearItem = &r
		case query.TokenQualifier:
			out.Qualifier = &r
		}
	}
	return out
}

// Ranges returns every range of the assignment.
func (a TokenAssignment) Ranges() []query.TokenRange {
	out := make([]query.TokenRange, 0, len(a.Address)+6)
	for _, r := range []*query.TokenRange{a.Name, a.Housenumber, a.Postcode, a.Country, a.NearItem, a.Qualifier} {
		if r != nil {
			out = append(out, *r)
		}
	}
	return append(out, a.Address...)
}

func (a TokenAssignment) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "penalty=%.3f", a.Penalty)
	field := func(name string, r *query.TokenRange) {
		if r != nil {
			fmt.Fprintf(&sb, " %s=%s", name, r)
		}
	}
	field("name", a.Name)
	if len(a.Address) > 0 {
		fmt.Fprintf(&sb, " address=%v", a.Address)
	}
	field("housenumber", a.Housenumber)
	field("postcode", a.Postcode)
	field("country", a.Country)
	field("near", a.NearItem)
	field("qualifier", a.Qualifier)
	return sb.String()
}
