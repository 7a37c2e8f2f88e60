package query

import "errors"

var (
	// ErrUnknownPhraseType is returned when a phrase designation cannot be parsed.
	ErrUnknownPhraseType = errors.New("unknown phrase type")
)
