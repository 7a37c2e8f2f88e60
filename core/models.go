package core

import (
	"encoding/binary"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for places and postcode areas.
// It is generated using content-based hashing of the source object reference.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// SourceTable names the kind of storage object a result was produced from.
type SourceTable string

const (
	// SourcePlace is a regular named or addressable place.
	SourcePlace SourceTable = "placex"
	// SourcePostcode is a postcode area centroid.
	SourcePostcode SourceTable = "postcode"
	// SourceCountry is a country fallback geometry.
	SourceCountry SourceTable = "country"
	// SourceIntersection is the crossing of two streets.
	SourceIntersection SourceTable = "intersection"
)

// Point is a WGS84 coordinate.
type Point struct {
	Lon float64
	Lat float64
}

// BBox is an axis-aligned bounding box in WGS84 coordinates.
type BBox struct {
	MinLon float64
	MinLat float64
	MaxLon float64
	MaxLat float64
}

// IsZero reports whether the box is unset.
func (b BBox) IsZero() bool {
	return b == BBox{}
}

// Contains reports whether p lies inside the box (inclusive).
func (b BBox) Contains(p Point) bool {
	return p.Lon >= b.MinLon && p.Lon <= b.MaxLon && p.Lat >= b.MinLat && p.Lat <= b.MaxLat
}

// Intersects reports whether the two boxes share at least one point.
func (b BBox) Intersects(o BBox) bool {
	return b.MinLon <= o.MaxLon && o.MinLon <= b.MaxLon && b.MinLat <= o.MaxLat && o.MinLat <= b.MaxLat
}

// Intersection returns the overlapping box. The result is only meaningful
// when Intersects returns true.
func (b BBox) Intersection(o BBox) BBox {
	return BBox{
		MinLon: math.Max(b.MinLon, o.MinLon),
		MinLat: math.Max(b.MinLat, o.MinLat),
		MaxLon: math.Min(b.MaxLon, o.MaxLon),
		MaxLat: math.Min(b.MaxLat, o.MaxLat),
	}
}

// Center returns the middle of the box.
func (b BBox) Center() Point {
	return Point{Lon: (b.MinLon + b.MaxLon) / 2, Lat: (b.MinLat + b.MaxLat) / 2}
}

// Area returns the box area in square degrees.
func (b BBox) Area() float64 {
	return (b.MaxLon - b.MinLon) * (b.MaxLat - b.MinLat)
}

// Expand returns the box grown by d degrees in every direction.
func (b BBox) Expand(d float64) BBox {
	return BBox{MinLon: b.MinLon - d, MinLat: b.MinLat - d, MaxLon: b.MaxLon + d, MaxLat: b.MaxLat + d}
}

// BBoxAround returns a box of radius d degrees around p.
func BBoxAround(p Point, d float64) BBox {
	return BBox{MinLon: p.Lon - d, MinLat: p.Lat - d, MaxLon: p.Lon + d, MaxLat: p.Lat + d}
}

// Distance returns the approximate distance between two points in degrees
// using an equirectangular projection.
func Distance(a, b Point) float64 {
	x := (b.Lon - a.Lon) * math.Cos((a.Lat+b.Lat)/2*math.Pi/180)
	y := b.Lat - a.Lat
	return math.Sqrt(x*x + y*y)
}

// Category is an OSM-style class/type pair, e.g. amenity=restaurant.
type Category struct {
	Class string
	Type  string
}

func (c Category) String() string {
	return c.Class + "=" + c.Type
}

// ParseCategory parses a "class=type" string.
func ParseCategory(s string) (Category, bool) {
	class, typ, ok := strings.Cut(s, "=")
	if !ok || class == "" || typ == "" {
		return Category{}, false
	}
	return Category{Class: class, Type: typ}, true
}

// Place is a geocodable object: a named feature, a street or an address point.
type Place struct {
	ID          ID
	OSMType     string // N, W or R
	OSMID       int64
	Class       string
	Type        string
	Names       map[string]string // name tags, "name" is the default
	Housenumber string
	Postcode    string
	CountryCode string
	RankSearch  int
	RankAddress int
	Importance  float64
	ParentID    ID
	Centroid    Point
	BBox        BBox

	// Token ids of the place's own names and of the names of its address parents.
	NameVector    []int
	AddressVector []int

	// Address lists the display names of the address parents, most specific first.
	Address []string
}

// Ref returns the source reference used to derive the place ID, e.g. "W1234".
func (p *Place) Ref() string {
	return p.OSMType + strconv.FormatInt(p.OSMID, 10)
}

// Category returns the class/type pair of the place.
func (p *Place) Category() Category {
	return Category{Class: p.Class, Type: p.Type}
}

// PrimaryName returns the default name, falling back to the
// alphabetically first name tag.
func (p *Place) PrimaryName() string {
	if n, ok := p.Names["name"]; ok {
		return n
	}
	keys := make([]string, 0, len(p.Names))
	for k := range p.Names {
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	return p.Names[keys[0]]
}

// DisplayName joins the place's name (or housenumber) with its address parts.
func (p *Place) DisplayName() string {
	parts := make([]string, 0, len(p.Address)+2)
	name := p.PrimaryName()
	switch {
	case p.Housenumber != "" && name != "":
		parts = append(parts, name, p.Housenumber)
	case p.Housenumber != "":
		parts = append(parts, p.Housenumber)
	case name != "":
		parts = append(parts, name)
	}
	parts = append(parts, p.Address...)
	if p.Postcode != "" {
		parts = append(parts, p.Postcode)
	}
	return strings.Join(parts, ", ")
}

// Postcode is a postcode area centroid.
type Postcode struct {
	ID            ID
	CountryCode   string
	Postcode      string
	Centroid      Point
	AddressVector []int
	Address       []string
}

// WordType tags the kind of entry in the word index.
type WordType byte

const (
	WordFull        WordType = 'W'
	WordPartial     WordType = 'w'
	WordHousenumber WordType = 'H'
	WordPostcode    WordType = 'P'
	WordCountry     WordType = 'C'
	WordSpecial     WordType = 'S'
)

// WordRow is a single entry of the word index.
type WordRow struct {
	ID        int
	WordToken string   // normalized lookup string
	Type      WordType
	Word      string // canonical word, country code or housenumber
	Info      string // JSON metadata (lookup, class, type, op)
	Count     int    // occurrences in place names
	AddrCount int    // occurrences in address names
}

// Key returns the identity of the row inside the word index.
func (w *WordRow) Key() string {
	return w.WordToken + "\x00" + string(w.Type) + "\x00" + w.Word
}

// Column names the token vector a FieldLookup or ranking runs against.
type Column string

const (
	ColumnName    Column = "name_vector"
	ColumnAddress Column = "nameaddress_vector"
)

// LookupType selects how a set of token ids is matched against a column.
type LookupType int

const (
	// LookupAll requires every token and may use the index.
	LookupAll LookupType = iota
	// LookupAny requires at least one token and may use the index.
	LookupAny
	// Restrict requires every token but never drives an index scan.
	Restrict
)

func (l LookupType) String() string {
	switch l {
	case LookupAll:
		return "all"
	case LookupAny:
		return "any"
	case Restrict:
		return "restrict"
	}
	return "unknown"
}

// FieldLookup describes a filter over a token column.
type FieldLookup struct {
	Column     Column
	Tokens     []int
	LookupType LookupType
}

// Matches reports whether the given vector satisfies the lookup.
func (f FieldLookup) Matches(vector []int) bool {
	if len(f.Tokens) == 0 {
		return true
	}
	set := make(map[int]struct{}, len(vector))
	for _, v := range vector {
		set[v] = struct{}{}
	}
	if f.LookupType == LookupAny {
		for _, t := range f.Tokens {
			if _, ok := set[t]; ok {
				return true
			}
		}
		return false
	}
	for _, t := range f.Tokens {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}

// Vector returns the token vector of the place for the given column.
func (p *Place) Vector(col Column) []int {
	if col == ColumnName {
		return p.NameVector
	}
	return p.AddressVector
}

// SearchDetails holds the caller's restrictions on a search.
type SearchDetails struct {
	MaxResults     int
	MinRank        int
	MaxRank        int
	Countries      []string
	Categories     []Category
	Viewbox        BBox
	BoundedViewbox bool
	Near           *Point
	NearRadius     float64 // degrees
	ExcludedIDs    []ID
}

// DefaultSearchDetails returns unrestricted details returning ten results.
func DefaultSearchDetails() *SearchDetails {
	return &SearchDetails{MaxResults: 10, MinRank: 0, MaxRank: 30}
}

// HasCountry reports whether cc is allowed by the country restriction.
func (d *SearchDetails) HasCountry(cc string) bool {
	if len(d.Countries) == 0 {
		return true
	}
	for _, c := range d.Countries {
		if c == cc {
			return true
		}
	}
	return false
}

// HasCategory reports whether c is allowed by the category restriction.
func (d *SearchDetails) HasCategory(c Category) bool {
	if len(d.Categories) == 0 {
		return true
	}
	for _, dc := range d.Categories {
		if dc == c {
			return true
		}
	}
	return false
}

// IsExcluded reports whether the place id was excluded by the caller.
func (d *SearchDetails) IsExcluded(id ID) bool {
	for _, e := range d.ExcludedIDs {
		if e == id {
			return true
		}
	}
	return false
}

// AcceptsLocation checks the bounded viewbox and near radius restrictions.
func (d *SearchDetails) AcceptsLocation(p Point) bool {
	if d.BoundedViewbox && !d.Viewbox.IsZero() && !d.Viewbox.Contains(p) {
		return false
	}
	if d.Near != nil && d.NearRadius > 0 && Distance(*d.Near, p) > d.NearRadius {
		return false
	}
	return true
}
