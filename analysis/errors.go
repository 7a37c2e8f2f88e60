package analysis

import (
	"errors"
	"fmt"

	"github.com/poiesic/placefinder/config"
)

var (
	// ErrLookupRequired is returned when no word lookup is provided.
	ErrLookupRequired = errors.New("word lookup required")

	// ErrNormalizerRequired is returned when no normalizer is provided.
	ErrNormalizerRequired = errors.New("normalizer required")

	// ErrInvalidCacheSize is returned for a non-positive cache size.
	ErrInvalidCacheSize = errors.New("invalid cache size")

	// ErrInvalidPostcodePattern indicates a country postcode pattern that
	// does not compile. It wraps config.ErrInvalidRule.
	ErrInvalidPostcodePattern = fmt.Errorf("postcode pattern: %w", config.ErrInvalidRule)

	// ErrInvalidPreprocessingStep indicates an unknown or malformed query
	// preprocessing step. It wraps config.ErrInvalidRule.
	ErrInvalidPreprocessingStep = fmt.Errorf("query preprocessing: %w", config.ErrInvalidRule)
)
