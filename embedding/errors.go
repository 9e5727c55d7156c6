package embedding

import "errors"

var (
	// ErrDimensionMismatch indicates a query or node vector of the wrong size.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrInvalidConfig indicates an out-of-range index or chunker parameter.
	ErrInvalidConfig = errors.New("invalid embedding configuration")
)
