package query

import "errors"

var (
	// ErrInvalidScope indicates a scope that is neither "all" nor a known act.
	ErrInvalidScope = errors.New("invalid scope")

	// ErrInvalidParameter indicates an out-of-range interpreter option.
	ErrInvalidParameter = errors.New("invalid interpreter parameter")
)
