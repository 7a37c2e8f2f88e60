// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"fmt"
	"sort"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"

	"github.com/poiesic/placefinder/core"
)

// serializer is the subset of the mus serializer contract used here.
type serializer[T any] interface {
	Marshal(v T, bs []byte) (n int)
	Unmarshal(bs []byte) (v T, n int, err error)
	Size(v T) (size int)
}

type sliceMUS[T any] struct {
	elem serializer[T]
}

func (s sliceMUS[T]) Marshal(v []T, bs []byte) (n int) {
	n = varint.Int.Marshal(len(v), bs)
	for _, e := range v {
		n += s.elem.Marshal(e, bs[n:])
	}
	return
}

func (s sliceMUS[T]) Unmarshal(bs []byte) (v []T, n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return
	}
	if length < 0 || length > len(bs)-n {
		return nil, n, ErrTruncatedData
	}
	if length == 0 {
		return nil, n, nil
	}
	v = make([]T, length)
	for i := range v {
		var m int
		v[i], m, err = s.elem.Unmarshal(bs[n:])
		n += m
		if err != nil {
			return
		}
	}
	return
}

func (s sliceMUS[T]) Size(v []T) (size int) {
	size = varint.Int.Size(len(v))
	for _, e := range v {
		size += s.elem.Size(e)
	}
	return
}

// namesMUS writes name tags sorted by key so equal maps give equal bytes.
type namesMUS struct{}

func (namesMUS) keys(v map[string]string) []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s namesMUS) Marshal(v map[string]string, bs []byte) (n int) {
	n = varint.Int.Marshal(len(v), bs)
	for _, k := range s.keys(v) {
		n += ord.String.Marshal(k, bs[n:])
		n += ord.String.Marshal(v[k], bs[n:])
	}
	return
}

func (namesMUS) Unmarshal(bs []byte) (v map[string]string, n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return
	}
	if length < 0 || length > len(bs)-n {
		return nil, n, ErrTruncatedData
	}
	if length == 0 {
		return nil, n, nil
	}
	v = make(map[string]string, length)
	for range length {
		var (
			key, val string
			m        int
		)
		key, m, err = ord.String.Unmarshal(bs[n:])
		n += m
		if err != nil {
			return
		}
		val, m, err = ord.String.Unmarshal(bs[n:])
		n += m
		if err != nil {
			return
		}
		v[key] = val
	}
	return
}

func (s namesMUS) Size(v map[string]string) (size int) {
	size = varint.Int.Size(len(v))
	for k, val := range v {
		size += ord.String.Size(k) + ord.String.Size(val)
	}
	return
}

type idMUS struct{}

func (idMUS) Marshal(v core.ID, bs []byte) (n int) {
	return varint.Uint64.Marshal(uint64(v), bs)
}

func (idMUS) Unmarshal(bs []byte) (v core.ID, n int, err error) {
	u, n, err := varint.Uint64.Unmarshal(bs)
	return core.ID(u), n, err
}

func (idMUS) Size(v core.ID) (size int) {
	return varint.Uint64.Size(uint64(v))
}

type pointMUS struct{}

func (pointMUS) Marshal(v core.Point, bs []byte) (n int) {
	n = varint.Float64.Marshal(v.Lon, bs)
	n += varint.Float64.Marshal(v.Lat, bs[n:])
	return
}

func (pointMUS) Unmarshal(bs []byte) (v core.Point, n int, err error) {
	v.Lon, n, err = varint.Float64.Unmarshal(bs)
	if err != nil {
		return
	}
	var m int
	v.Lat, m, err = varint.Float64.Unmarshal(bs[n:])
	n += m
	return
}

func (pointMUS) Size(v core.Point) (size int) {
	return varint.Float64.Size(v.Lon) + varint.Float64.Size(v.Lat)
}

type bboxMUS struct{}

func (bboxMUS) Marshal(v core.BBox, bs []byte) (n int) {
	n = PointMUS.Marshal(core.Point{Lon: v.MinLon, Lat: v.MinLat}, bs)
	n += PointMUS.Marshal(core.Point{Lon: v.MaxLon, Lat: v.MaxLat}, bs[n:])
	return
}

func (bboxMUS) Unmarshal(bs []byte) (v core.BBox, n int, err error) {
	lo, n, err := PointMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	hi, m, err := PointMUS.Unmarshal(bs[n:])
	n += m
	if err != nil {
		return
	}
	return core.BBox{MinLon: lo.Lon, MinLat: lo.Lat, MaxLon: hi.Lon, MaxLat: hi.Lat}, n, nil
}

func (bboxMUS) Size(v core.BBox) (size int) {
	return PointMUS.Size(core.Point{Lon: v.MinLon, Lat: v.MinLat}) +
		PointMUS.Size(core.Point{Lon: v.MaxLon, Lat: v.MaxLat})
}

type wordRowMUS struct{}

func (wordRowMUS) Marshal(v core.WordRow, bs []byte) (n int) {
	n = varint.Int.Marshal(v.ID, bs)
	n += ord.String.Marshal(v.WordToken, bs[n:])
	n += varint.Int.Marshal(int(v.Type), bs[n:])
	n += ord.String.Marshal(v.Word, bs[n:])
	n += ord.String.Marshal(v.Info, bs[n:])
	n += varint.Int.Marshal(v.Count, bs[n:])
	n += varint.Int.Marshal(v.AddrCount, bs[n:])
	return
}

func (wordRowMUS) Unmarshal(bs []byte) (v core.WordRow, n int, err error) {
	var (
		m     int
		wtype int
	)
	if v.ID, n, err = varint.Int.Unmarshal(bs); err != nil {
		return
	}
	if v.WordToken, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if wtype, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	v.Type = core.WordType(wtype)
	if v.Word, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.Info, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.Count, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	v.AddrCount, m, err = varint.Int.Unmarshal(bs[n:])
	n += m
	return
}

func (wordRowMUS) Size(v core.WordRow) (size int) {
	return varint.Int.Size(v.ID) +
		ord.String.Size(v.WordToken) +
		varint.Int.Size(int(v.Type)) +
		ord.String.Size(v.Word) +
		ord.String.Size(v.Info) +
		varint.Int.Size(v.Count) +
		varint.Int.Size(v.AddrCount)
}

type placeMUS struct{}

func (placeMUS) Marshal(v core.Place, bs []byte) (n int) {
	n = IDMUS.Marshal(v.ID, bs)
	n += ord.String.Marshal(v.OSMType, bs[n:])
	n += varint.Int64.Marshal(v.OSMID, bs[n:])
	n += ord.String.Marshal(v.Class, bs[n:])
	n += ord.String.Marshal(v.Type, bs[n:])
	n += namesMUS{}.Marshal(v.Names, bs[n:])
	n += ord.String.Marshal(v.Housenumber, bs[n:])
	n += ord.String.Marshal(v.Postcode, bs[n:])
	n += ord.String.Marshal(v.CountryCode, bs[n:])
	n += varint.Int.Marshal(v.RankSearch, bs[n:])
	n += varint.Int.Marshal(v.RankAddress, bs[n:])
	n += varint.Float64.Marshal(v.Importance, bs[n:])
	n += IDMUS.Marshal(v.ParentID, bs[n:])
	n += PointMUS.Marshal(v.Centroid, bs[n:])
	n += bboxMUS{}.Marshal(v.BBox, bs[n:])
	n += tokenVectorMUS.Marshal(v.NameVector, bs[n:])
	n += tokenVectorMUS.Marshal(v.AddressVector, bs[n:])
	n += stringsMUS.Marshal(v.Address, bs[n:])
	return
}

func (placeMUS) Unmarshal(bs []byte) (v core.Place, n int, err error) {
	steps := []func(b []byte) (int, error){
		func(b []byte) (m int, err error) { v.ID, m, err = IDMUS.Unmarshal(b); return },
		func(b []byte) (m int, err error) { v.OSMType, m, err = ord.String.Unmarshal(b); return },
		func(b []byte) (m int, err error) { v.OSMID, m, err = varint.Int64.Unmarshal(b); return },
		func(b []byte) (m int, err error) { v.Class, m, err = ord.String.Unmarshal(b); return },
		func(b []byte) (m int, err error) { v.Type, m, err = ord.String.Unmarshal(b); return },
		func(b []byte) (m int, err error) { v.Names, m, err = namesMUS{}.Unmarshal(b); return },
		func(b []byte) (m int, err error) { v.Housenumber, m, err = ord.String.Unmarshal(b); return },
		func(b []byte) (m int, err error) { v.Postcode, m, err = ord.String.Unmarshal(b); return },
		func(b []byte) (m int, err error) { v.CountryCode, m, err = ord.String.Unmarshal(b); return },
		func(b []byte) (m int, err error) { v.RankSearch, m, err = varint.Int.Unmarshal(b); return },
		func(b []byte) (m int, err error) { v.RankAddress, m, err = varint.Int.Unmarshal(b); return },
		func(b []byte) (m int, err error) { v.Importance, m, err = varint.Float64.Unmarshal(b); return },
		func(b []byte) (m int, err error) { v.ParentID, m, err = IDMUS.Unmarshal(b); return },
		func(b []byte) (m int, err error) { v.Centroid, m, err = PointMUS.Unmarshal(b); return },
		func(b []byte) (m int, err error) { v.BBox, m, err = bboxMUS{}.Unmarshal(b); return },
		func(b []byte) (m int, err error) { v.NameVector, m, err = tokenVectorMUS.Unmarshal(b); return },
		func(b []byte) (m int, err error) { v.AddressVector, m, err = tokenVectorMUS.Unmarshal(b); return },
		func(b []byte) (m int, err error) { v.Address, m, err = stringsMUS.Unmarshal(b); return },
	}
	for _, step := range steps {
		var m int
		m, err = step(bs[n:])
		n += m
		if err != nil {
			return
		}
	}
	return
}

func (placeMUS) Size(v core.Place) (size int) {
	return IDMUS.Size(v.ID) +
		ord.String.Size(v.OSMType) +
		varint.Int64.Size(v.OSMID) +
		ord.String.Size(v.Class) +
		ord.String.Size(v.Type) +
		namesMUS{}.Size(v.Names) +
		ord.String.Size(v.Housenumber) +
		ord.String.Size(v.Postcode) +
		ord.String.Size(v.CountryCode) +
		varint.Int.Size(v.RankSearch) +
		varint.Int.Size(v.RankAddress) +
		varint.Float64.Size(v.Importance) +
		IDMUS.Size(v.ParentID) +
		PointMUS.Size(v.Centroid) +
		bboxMUS{}.Size(v.BBox) +
		tokenVectorMUS.Size(v.NameVector) +
		tokenVectorMUS.Size(v.AddressVector) +
		stringsMUS.Size(v.Address)
}

type postcodeMUS struct{}

func (postcodeMUS) Marshal(v core.Postcode, bs []byte) (n int) {
	n = IDMUS.Marshal(v.ID, bs)
	n += ord.String.Marshal(v.CountryCode, bs[n:])
	n += ord.String.Marshal(v.Postcode, bs[n:])
	n += PointMUS.Marshal(v.Centroid, bs[n:])
	n += tokenVectorMUS.Marshal(v.AddressVector, bs[n:])
	n += stringsMUS.Marshal(v.Address, bs[n:])
	return
}

func (postcodeMUS) Unmarshal(bs []byte) (v core.Postcode, n int, err error) {
	var m int
	if v.ID, n, err = IDMUS.Unmarshal(bs); err != nil {
		return
	}
	if v.CountryCode, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.Postcode, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.Centroid, m, err = PointMUS.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if v.AddressVector, m, err = tokenVectorMUS.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	v.Address, m, err = stringsMUS.Unmarshal(bs[n:])
	n += m
	return
}

func (postcodeMUS) Size(v core.Postcode) (size int) {
	return IDMUS.Size(v.ID) +
		ord.String.Size(v.CountryCode) +
		ord.String.Size(v.Postcode) +
		PointMUS.Size(v.Centroid) +
		tokenVectorMUS.Size(v.AddressVector) +
		stringsMUS.Size(v.Address)
}

var (
	// IDMUS serializes place ids.
	IDMUS = idMUS{}
	// PointMUS serializes coordinates.
	PointMUS = pointMUS{}
	// WordRowMUS serializes word index rows.
	WordRowMUS = wordRowMUS{}
	// PlaceMUS serializes places.
	PlaceMUS = placeMUS{}
	// PostcodeMUS serializes postcode areas.
	PostcodeMUS = postcodeMUS{}

	tokenVectorMUS = sliceMUS[int]{elem: varint.Int}
	stringsMUS     = sliceMUS[string]{elem: ord.String}
)

func unmarshalErr(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrSerializationFailed, what, err)
}

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, IDMUS.Size(id))
	IDMUS.Marshal(id, buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	id, _, err := IDMUS.Unmarshal(data)
	if err != nil {
		return 0, unmarshalErr("id", err)
	}
	return id, nil
}

// MarshalIDs serializes a list of IDs, used for index postings.
func MarshalIDs(ids []core.ID) []byte {
	s := sliceMUS[core.ID]{elem: IDMUS}
	buf := make([]byte, s.Size(ids))
	s.Marshal(ids, buf)
	return buf
}

// UnmarshalIDs deserializes a list of IDs.
func UnmarshalIDs(data []byte) ([]core.ID, error) {
	ids, _, err := sliceMUS[core.ID]{elem: IDMUS}.Unmarshal(data)
	if err != nil {
		return nil, unmarshalErr("id list", err)
	}
	return ids, nil
}

// MarshalWordRow serializes a WordRow to bytes.
func MarshalWordRow(row *core.WordRow) []byte {
	buf := make([]byte, WordRowMUS.Size(*row))
	WordRowMUS.Marshal(*row, buf)
	return buf
}

// UnmarshalWordRow deserializes a WordRow from bytes.
func UnmarshalWordRow(data []byte) (*core.WordRow, error) {
	row, _, err := WordRowMUS.Unmarshal(data)
	if err != nil {
		return nil, unmarshalErr("word row", err)
	}
	return &row, nil
}

// MarshalPlace serializes a Place to bytes.
func MarshalPlace(place *core.Place) []byte {
	buf := make([]byte, PlaceMUS.Size(*place))
	PlaceMUS.Marshal(*place, buf)
	return buf
}

// UnmarshalPlace deserializes a Place from bytes.
func UnmarshalPlace(data []byte) (*core.Place, error) {
	place, _, err := PlaceMUS.Unmarshal(data)
	if err != nil {
		return nil, unmarshalErr("place", err)
	}
	return &place, nil
}

// MarshalPostcode serializes a Postcode to bytes.
func MarshalPostcode(pc *core.Postcode) []byte {
	buf := make([]byte, PostcodeMUS.Size(*pc))
	PostcodeMUS.Marshal(*pc, buf)
	return buf
}

// UnmarshalPostcode deserializes a Postcode from bytes.
func UnmarshalPostcode(data []byte) (*core.Postcode, error) {
	pc, _, err := PostcodeMUS.Unmarshal(data)
	if err != nil {
		return nil, unmarshalErr("postcode", err)
	}
	return &pc, nil
}
