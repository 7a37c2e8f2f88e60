package config

import "errors"

var (
	// ErrInvalidConfig indicates a settings file that cannot be used.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidRule indicates a malformed rule file or rule entry.
	ErrInvalidRule = errors.New("invalid rule")
)
