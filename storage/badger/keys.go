package badger

import (
	"encoding/binary"
	"strings"

	"github.com/poiesic/placefinder/core"
)

// Key prefixes for different data types
const (
	wordPrefix        = "wrd:"
	wordIDPrefix      = "wid:"
	wordIDSeq         = "wrdseq"
	placePrefix       = "plc:"
	nameIndexPrefix   = "nam:"
	addressIdxPrefix  = "adr:"
	housenumberPrefix = "hnr:"
	categoryPrefix    = "cat:"
	countryPrefix     = "cty:"
	postcodePrefix    = "pst:"
	postcodeIdxPrefix = "pcd:"
	propertyPrefix    = "prp:"
)

// appendUint64 writes v in BigEndian order so lexicographic sort works correctly.
func appendUint64(buf []byte, v uint64) []byte {
	return binary.BigEndian.AppendUint64(buf, v)
}

// idSuffix extracts the trailing place ID from an index key.
func idSuffix(key []byte) core.ID {
	return core.ID(binary.BigEndian.Uint64(key[len(key)-8:]))
}

// makeWordKey generates the primary key of a word row.
// Format: prefix:token\0type\0word
func makeWordKey(row *core.WordRow) []byte {
	return append([]byte(wordPrefix), row.Key()...)
}

// makeWordLookupPrefix generates a partial key matching all rows of a lookup string.
func makeWordLookupPrefix(token string) []byte {
	buf := append([]byte(wordPrefix), token...)
	return append(buf, 0)
}

// makeWordIDKey generates the key mapping a word ID to its primary key.
func makeWordIDKey(id int) []byte {
	return appendUint64([]byte(wordIDPrefix), uint64(id))
}

// makePlaceKey generates a key for a place by ID.
func makePlaceKey(id core.ID) []byte {
	return appendUint64([]byte(placePrefix), uint64(id))
}

// makeTokenPrefix generates a partial key for the postings of a token.
// Format: prefix:token
func makeTokenPrefix(col core.Column, token int) []byte {
	prefix := nameIndexPrefix
	if col == core.ColumnAddress {
		prefix = addressIdxPrefix
	}
	return appendUint64([]byte(prefix), uint64(token))
}

// makeTokenKey generates a posting key of the token index.
// Format: prefix:token:placeID
func makeTokenKey(col core.Column, token int, id core.ID) []byte {
	return appendUint64(makeTokenPrefix(col, token), uint64(id))
}

// makeHousenumberPrefix generates a partial key for a housenumber below a parent.
// Format: prefix:parentID:housenumber\0
func makeHousenumberPrefix(parent core.ID, hnr string) []byte {
	buf := appendUint64([]byte(housenumberPrefix), uint64(parent))
	buf = append(buf, strings.ToLower(hnr)...)
	return append(buf, 0)
}

func makeHousenumberKey(parent core.ID, hnr string, id core.ID) []byte {
	return appendUint64(makeHousenumberPrefix(parent, hnr), uint64(id))
}

// makeCategoryPrefix generates a partial key for all places of a category.
// Format: prefix:class\0type\0
func makeCategoryPrefix(c core.Category) []byte {
	buf := append([]byte(categoryPrefix), c.Class...)
	buf = append(buf, 0)
	buf = append(buf, c.Type...)
	return append(buf, 0)
}

func makeCategoryKey(c core.Category, id core.ID) []byte {
	return appendUint64(makeCategoryPrefix(c), uint64(id))
}

// makeCountryPrefix generates a partial key for the country places of a code.
func makeCountryPrefix(cc string) []byte {
	buf := append([]byte(countryPrefix), cc...)
	return append(buf, 0)
}

func makeCountryKey(cc string, id core.ID) []byte {
	return appendUint64(makeCountryPrefix(cc), uint64(id))
}

// makePostcodeKey generates a key for a postcode area by ID.
func makePostcodeKey(id core.ID) []byte {
	return appendUint64([]byte(postcodePrefix), uint64(id))
}

// makePostcodeIndexPrefix generates a partial key for the areas of a postcode.
func makePostcodeIndexPrefix(pc string) []byte {
	buf := append([]byte(postcodeIdxPrefix), strings.ToUpper(pc)...)
	return append(buf, 0)
}

func makePostcodeIndexKey(pc string, id core.ID) []byte {
	return appendUint64(makePostcodeIndexPrefix(pc), uint64(id))
}

// makePropertyKey generates a key for a database property.
func makePropertyKey(name string) []byte {
	return append([]byte(propertyPrefix), name...)
}
