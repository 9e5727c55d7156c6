package search

import "errors"

var (
	// ErrSourceRequired is returned when no graph state source is provided.
	ErrSourceRequired = errors.New("graph state source required")

	// ErrInterpreterRequired is returned when no query interpreter is provided.
	ErrInterpreterRequired = errors.New("query interpreter required")

	// ErrEngineRequired is returned when no relatedness engine is provided.
	ErrEngineRequired = errors.New("relatedness engine required")

	// ErrInvalidRequest is returned for malformed search parameters.
	ErrInvalidRequest = errors.New("invalid search request")

	// ErrInvalidOption is returned by options given out-of-range values.
	ErrInvalidOption = errors.New("invalid searcher option")

	// ErrNotFound is returned when a provision id does not resolve.
	ErrNotFound = errors.New("provision not found")
)
