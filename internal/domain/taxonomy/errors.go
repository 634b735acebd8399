package taxonomy

import "errors"

// ErrNotFound indicates an unknown tactic or technique id was requested.
var ErrNotFound = errors.New("taxonomy entry not found")
