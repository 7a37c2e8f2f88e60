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


package core

import "errors"

// Domain validation errors
var (
	// ErrEmptyQuery indicates a query without any text.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrInvalidRankRange indicates min/max rank restrictions that cannot be satisfied.
	ErrInvalidRankRange = errors.New("invalid rank range")

	// ErrInvalidSearchDetails indicates search restrictions failed validation.
	ErrInvalidSearchDetails = errors.New("invalid search details")

	// ErrInvalidPlace indicates a Place failed validation.
	ErrInvalidPlace = errors.New("invalid place")

	// ErrEmptyPlaceRef indicates a place without OSM type or id.
	ErrEmptyPlaceRef = errors.New("place reference cannot be empty")

	// ErrUnnamedPlace indicates a place without names and without housenumber.
	ErrUnnamedPlace = errors.New("place needs a name or a housenumber")

	// ErrInvalidCountryCode indicates a country code that is not two lowercase letters.
	ErrInvalidCountryCode = errors.New("invalid country code")
)
