package normalize

import (
	"fmt"

	"github.com/poiesic/placefinder/config"
)

var (
	// ErrInvalidRule indicates a normalization or transliteration step that
	// cannot be compiled. It wraps config.ErrInvalidRule.
	ErrInvalidRule = fmt.Errorf("normalizer: %w", config.ErrInvalidRule)

	// ErrInvalidVariantRule indicates a syntax error in a variant rule.
	ErrInvalidVariantRule = fmt.Errorf("%w: variant", ErrInvalidRule)

	// ErrInvalidMutation indicates a mutation pattern that cannot be used.
	ErrInvalidMutation = fmt.Errorf("%w: mutation", ErrInvalidRule)
)
