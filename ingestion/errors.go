package ingestion

import "errors"

var (
	// ErrStoreRequired is returned when no store is provided.
	ErrStoreRequired = errors.New("store required")

	// ErrNormalizerRequired is returned when no normalizer is provided.
	ErrNormalizerRequired = errors.New("normalizer required")

	// ErrInvalidPhrase is returned for special phrases without text or category.
	ErrInvalidPhrase = errors.New("invalid special phrase")
)
