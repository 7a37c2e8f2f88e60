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

import (
	"fmt"
	"strings"
)

// ValidateQueryText rejects queries that contain nothing but whitespace
// and separators.
func ValidateQueryText(texts ...string) error {
	for _, t := range texts {
		if strings.Trim(t, " \t\n,:-") != "" {
			return nil
		}
	}
	return ErrEmptyQuery
}

// ValidateSearchDetails validates caller restrictions according to domain rules.
//
// Validation rules:
//   - MinRank and MaxRank must be within 0..30
//   - MinRank must not exceed MaxRank
//   - country codes must be two lowercase letters
//   - MaxResults must not be negative
func ValidateSearchDetails(details *SearchDetails) error {
	if details == nil {
		return fmt.Errorf("%w: details are nil", ErrInvalidSearchDetails)
	}

	if details.MinRank < 0 || details.MaxRank > 30 || details.MinRank > details.MaxRank {
		return fmt.Errorf("%w: %w: %d..%d", ErrInvalidSearchDetails, ErrInvalidRankRange,
			details.MinRank, details.MaxRank)
	}

	for _, cc := range details.Countries {
		if err := ValidateCountryCode(cc); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSearchDetails, err)
		}
	}

	if details.MaxResults < 0 {
		return fmt.Errorf("%w: negative result limit", ErrInvalidSearchDetails)
	}

	return nil
}

// ValidatePlace validates a Place before import.
//
// Validation rules:
//   - OSMType and OSMID must be set
//   - at least one name or a housenumber must be present
//   - CountryCode, if set, must be two lowercase letters
//
// NOT validated (populated by the import):
//   - ID (derived from the reference)
//   - NameVector and AddressVector
func ValidatePlace(place *Place) error {
	if place == nil {
		return fmt.Errorf("%w: place is nil", ErrInvalidPlace)
	}

	if place.OSMType == "" || place.OSMID == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidPlace, ErrEmptyPlaceRef)
	}

	if len(place.Names) == 0 && place.Housenumber == "" {
		return fmt.Errorf("%w: %w", ErrInvalidPlace, ErrUnnamedPlace)
	}

	if place.CountryCode != "" {
		if err := ValidateCountryCode(place.CountryCode); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidPlace, err)
		}
	}

	return nil
}

// ValidateCountryCode checks for a two-letter lowercase code.
func ValidateCountryCode(cc string) error {
	if len(cc) != 2 || cc[0] < 'a' || cc[0] > 'z' || cc[1] < 'a' || cc[1] > 'z' {
		return fmt.Errorf("%w: %q", ErrInvalidCountryCode, cc)
	}
	return nil
}
