package functions

import "errors"

// ErrNotFound indicates an unknown function id was requested.
var ErrNotFound = errors.New("function not found")
