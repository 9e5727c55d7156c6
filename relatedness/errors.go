package relatedness

import "errors"

var (
	// ErrNoSeeds indicates a fingerprint request without any usable seed.
	ErrNoSeeds = errors.New("no usable seeds")

	// ErrInvalidParameter indicates an out-of-range engine option.
	ErrInvalidParameter = errors.New("invalid relatedness parameter")
)
