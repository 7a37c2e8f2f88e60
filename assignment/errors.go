package assignment

import "errors"

// ErrInvalidTuning is returned for enumerator thresholds that cannot work.
var ErrInvalidTuning = errors.New("invalid enumerator tuning")
