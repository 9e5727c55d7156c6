package cache

import "errors"

// ErrInvalidConfig indicates an unusable cache option.
var ErrInvalidConfig = errors.New("invalid cache configuration")
