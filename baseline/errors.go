package baseline

import "errors"

// ErrInvalidParameter indicates an out-of-range analyzer option.
var ErrInvalidParameter = errors.New("invalid baseline parameter")
