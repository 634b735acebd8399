package mapping

import "errors"

// ErrUnknownTechnique indicates a mapping insert referenced a technique id
// that does not exist in the taxonomy. This is a validation failure on the
// caller's input, distinct from taxonomy.ErrNotFound on lookups.
var ErrUnknownTechnique = errors.New("mapping references unknown technique")
